package staking

import (
	"time"

	"github.com/attestnet/attestnet/pkg/types"
)

// ViolationType classifies a slashing violation.
type ViolationType string

// Violation types, ordered by severity of their slash rate.
const (
	ViolationMissedConsensus       ViolationType = "missed_consensus"
	ViolationConsensusDisagreement ViolationType = "consensus_disagreement"
	ViolationRepeatedViolations    ViolationType = "repeated_violations"
	ViolationFraudDetected         ViolationType = "fraud_detected"
)

// Params holds the staking policy. The defaults reproduce the platform's
// calibrated economics; deployments may override them per instance.
type Params struct {
	// MinimumStake is the smallest accepted stake, in base units.
	MinimumStake types.Amount

	// ValidatorThreshold is the stake at which a staker becomes a validator.
	ValidatorThreshold types.Amount

	// MaxValidators caps the elected validator set per epoch.
	MaxValidators int

	// EpochDuration is the length of one governance epoch.
	EpochDuration time.Duration

	// SlashDivisors maps violation types to integer slash divisors:
	// slash amount = staked / divisor. Integer division, no floats.
	SlashDivisors map[ViolationType]int64

	// RepeatOffenderViolations is the consensus_disagreement count, including
	// the violation being slashed, at which the repeated_violations penalty
	// is layered on.
	RepeatOffenderViolations int

	// RepeatOffenderMaxAgreement is the rolling agreement rate below which
	// a staker with enough prior violations is treated as a repeat offender.
	RepeatOffenderMaxAgreement float64
}

// DefaultParams returns the default staking policy.
func DefaultParams() Params {
	return Params{
		MinimumStake:       types.NewAmount(1_000),
		ValidatorThreshold: types.NewAmount(10_000),
		MaxValidators:      21,
		EpochDuration:      time.Hour,
		SlashDivisors: map[ViolationType]int64{
			ViolationMissedConsensus:       200, // 0.5%
			ViolationConsensusDisagreement: 100, // 1%
			ViolationRepeatedViolations:    20,  // 5%, layered on top
			ViolationFraudDetected:         4,   // 25%
		},
		RepeatOffenderViolations:   3,
		RepeatOffenderMaxAgreement: 0.5,
	}
}

// AgreementRates reports a worker's rolling consensus agreement rate.
// Implemented by the consensus engine's worker statistics; the second
// return is false when the worker has no evaluated history.
type AgreementRates interface {
	AgreementRate(workerID string) (float64, bool)
}
