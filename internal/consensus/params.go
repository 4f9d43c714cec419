package consensus

import (
	"time"

	"github.com/attestnet/attestnet/internal/staking"
)

// Params holds the engine's operational policy. Defaults reproduce the
// platform's calibrated values; deployments may override per instance.
type Params struct {
	// MinWorkers is the hard minimum eligible-pool size for creating any
	// challenge, independent of difficulty.
	MinWorkers int

	// MaxWorkersPerChallenge caps the assignment size regardless of the
	// difficulty profile or caller override.
	MaxWorkersPerChallenge int

	// SubmissionWindow is how long assigned workers have to submit.
	SubmissionWindow time.Duration

	// RetentionWindow is how long finished or expired challenges are kept
	// before the sweep deletes them.
	RetentionWindow time.Duration

	// SweepInterval is how often the expiry sweep runs.
	SweepInterval time.Duration

	// TrustSelectionRatio is the fraction of each assignment chosen by
	// descending trust; the remainder is drawn uniformly at random from the
	// rest of the pool. Pure trust ranking would let a colluding trusted
	// minority always co-assign each other.
	TrustSelectionRatio float64

	// RepeatOffenderDisagreements and RepeatOffenderMaxAgreement select the
	// repeated_violations slash type for habitual dissenters. The dissent
	// being judged counts toward the disagreement threshold.
	RepeatOffenderDisagreements uint64
	RepeatOffenderMaxAgreement  float64
}

// DefaultParams returns the default engine policy.
func DefaultParams() Params {
	return Params{
		MinWorkers:                  3,
		MaxWorkersPerChallenge:      25,
		SubmissionWindow:            5 * time.Minute,
		RetentionWindow:             24 * time.Hour,
		SweepInterval:               30 * time.Second,
		TrustSelectionRatio:         0.6,
		RepeatOffenderDisagreements: 3,
		RepeatOffenderMaxAgreement:  0.5,
	}
}

// StakeLedger is the slice of the staking ledger the engine consumes.
// A nil ledger disables stake filtering and slashing entirely.
type StakeLedger interface {
	HasStake(stakerID string) bool
	IsCurrentValidator(stakerID string) bool
	Slash(stakerID string, violation staking.ViolationType, challengeID, details string) staking.SlashResult
}

// Availability is the slice of the worker registry the engine consumes.
type Availability interface {
	EligibleWorkers() []string
	IncrementLoad(workerID string)
	DecrementLoad(workerID string)
}

// ReputationSink receives non-monetary reputation adjustments. Implemented
// by an external collaborator; the engine only calls it.
type ReputationSink interface {
	AdjustWorkerReputation(workerID, reason string)
}

// TrustSource reports a per-worker trust multiplier derived from historical
// behavior, used to weight selection and consensus confidence.
type TrustSource interface {
	WorkerTrustMultiplier(workerID string) float64
}

// Reputation adjustment reasons passed to the sink.
const (
	ReasonConsensusAgreement    = "consensus_agreement"
	ReasonConsensusDisagreement = "consensus_disagreement"
	ReasonMissedConsensus       = "missed_consensus"
)
