package consensus

import (
	"sync"

	"github.com/attestnet/attestnet/internal/difficulty"
	"github.com/attestnet/attestnet/pkg/types"
)

// Status is the lifecycle state of a challenge.
type Status string

// Challenge lifecycle: pending → voting → {consensus_reached |
// consensus_failed}, or expired when the submission window closes first.
const (
	StatusPending          Status = "pending"
	StatusVoting           Status = "voting"
	StatusConsensusReached Status = "consensus_reached"
	StatusConsensusFailed  Status = "consensus_failed"
	StatusExpired          Status = "expired"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusConsensusReached, StatusConsensusFailed, StatusExpired:
		return true
	}
	return false
}

// Submission is one worker's result for a challenge.
type Submission struct {
	WorkerID    string         `json:"worker_id"`
	Result      map[string]any `json:"result"`
	Hash        types.Hash     `json:"hash"`
	SubmittedAt int64          `json:"submitted_at"` // unix ms
}

// Result is the outcome of a consensus evaluation.
type Result struct {
	Achieved       bool           `json:"achieved"`
	AgreementRatio float64        `json:"agreement_ratio"`
	Confidence     float64        `json:"confidence"`
	Value          map[string]any `json:"value,omitempty"`
	ValueHash      types.Hash     `json:"value_hash,omitempty"`
	Dissenters     []string       `json:"dissenters,omitempty"`
	Submissions    int            `json:"submissions"`
	FailureReason  string         `json:"failure_reason,omitempty"`
	EvaluatedAt    int64          `json:"evaluated_at"` // unix ms
}

// challenge is the engine's internal per-challenge state. The embedded
// mutex serializes submissions and evaluation for this challenge only;
// different challenges proceed independently.
type challenge struct {
	mu sync.Mutex

	id              types.ChallengeID
	workType        string
	inputData       map[string]any
	assignedWorkers []string
	submissions     map[string]*Submission
	createdAt       int64 // unix ms
	expiresAt       int64 // unix ms
	status          Status
	assessment      difficulty.Assessment
	result          *Result
	evaluated       bool
}

// isAssigned reports whether the worker is in the fixed assignment set.
// Caller holds the challenge lock (the set is immutable after creation,
// but callers are already serialized anyway).
func (c *challenge) isAssigned(workerID string) bool {
	for _, id := range c.assignedWorkers {
		if id == workerID {
			return true
		}
	}
	return false
}

// ChallengeInfo is the caller-facing snapshot of a challenge.
type ChallengeInfo struct {
	ID                 types.ChallengeID `json:"id"`
	WorkType           string            `json:"work_type"`
	Status             Status            `json:"status"`
	Level              string            `json:"level"`
	RequiredWorkers    int               `json:"required_workers"`
	ConsensusThreshold float64           `json:"consensus_threshold"`
	RewardMultiplier   float64           `json:"reward_multiplier"`
	AssignedWorkers    []string          `json:"assigned_workers"`
	Submissions        int               `json:"submissions"`
	CreatedAt          int64             `json:"created_at"`
	ExpiresAt          int64             `json:"expires_at"`
	Result             *Result           `json:"result,omitempty"`
}

// snapshot builds a ChallengeInfo copy. Caller holds the challenge lock.
func (c *challenge) snapshot() *ChallengeInfo {
	info := &ChallengeInfo{
		ID:                 c.id,
		WorkType:           c.workType,
		Status:             c.status,
		Level:              c.assessment.Level.String(),
		RequiredWorkers:    c.assessment.RequiredWorkers,
		ConsensusThreshold: c.assessment.ConsensusThreshold,
		RewardMultiplier:   c.assessment.RewardMultiplier,
		AssignedWorkers:    append([]string(nil), c.assignedWorkers...),
		Submissions:        len(c.submissions),
		CreatedAt:          c.createdAt,
		ExpiresAt:          c.expiresAt,
	}
	if c.result != nil {
		cp := *c.result
		info.Result = &cp
	}
	return info
}

// WorkerStats are rolling per-worker consensus counters. Never deleted:
// they are the worker's historical record.
type WorkerStats struct {
	WorkerID      string  `json:"worker_id"`
	Participated  uint64  `json:"challenges_participated"`
	Agreements    uint64  `json:"consensus_agreements"`
	Disagreements uint64  `json:"consensus_disagreements"`
	AgreementRate float64 `json:"agreement_rate"`
}

// rate derives the agreement rate from the counters.
func (w *WorkerStats) rate() float64 {
	total := w.Agreements + w.Disagreements
	if total == 0 {
		return 0
	}
	return float64(w.Agreements) / float64(total)
}

// EngineStats summarizes the engine.
type EngineStats struct {
	Active           int     `json:"active_challenges"`
	ConsensusReached uint64  `json:"consensus_reached"`
	ConsensusFailed  uint64  `json:"consensus_failed"`
	Expired          uint64  `json:"expired"`
	TrackedWorkers   int     `json:"tracked_workers"`
	MeanAgreement    float64 `json:"mean_agreement_rate"`
}
