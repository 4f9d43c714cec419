// Package events defines the challenge lifecycle event sink and a gossip
// implementation for downstream notification and telemetry consumers.
package events

// ChallengeCreated is emitted when a challenge is assigned to workers.
type ChallengeCreated struct {
	ChallengeID     string   `json:"challenge_id"`
	WorkType        string   `json:"work_type"`
	Level           string   `json:"level"`
	AssignedWorkers []string `json:"assigned_workers"`
	ExpiresAt       int64    `json:"expires_at"` // unix ms
}

// ChallengeCompleted is emitted when a challenge reaches a terminal state.
type ChallengeCompleted struct {
	ChallengeID    string   `json:"challenge_id"`
	WorkType       string   `json:"work_type"`
	Status         string   `json:"status"`
	Achieved       bool     `json:"achieved"`
	AgreementRatio float64  `json:"agreement_ratio"`
	Confidence     float64  `json:"confidence"`
	Dissenters     []string `json:"dissenters,omitempty"`
}

// Emitter receives challenge lifecycle events. Implementations must not
// block the caller: the consensus engine emits from its hot path.
type Emitter interface {
	EmitChallengeCreated(ev ChallengeCreated)
	EmitChallengeCompleted(ev ChallengeCompleted)
}

// Nop is an Emitter that discards all events.
type Nop struct{}

// EmitChallengeCreated discards the event.
func (Nop) EmitChallengeCreated(ChallengeCreated) {}

// EmitChallengeCompleted discards the event.
func (Nop) EmitChallengeCompleted(ChallengeCompleted) {}
