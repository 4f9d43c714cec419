// Package difficulty maps work types to verification requirements.
//
// The assessor is a pure function: given a work type and its input, it
// returns how many workers must verify the work, what fraction of them must
// agree, and the reward multiplier. It holds no state and performs no I/O.
package difficulty

import (
	"fmt"
	"math"
	"math/big"

	"github.com/attestnet/attestnet/pkg/types"
)

// Level is a verification difficulty level.
type Level int

// Difficulty levels, in strictly increasing order of scrutiny.
const (
	Trivial Level = iota
	Routine
	Important
	Critical
	Maximum
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case Trivial:
		return "trivial"
	case Routine:
		return "routine"
	case Important:
		return "important"
	case Critical:
		return "critical"
	case Maximum:
		return "maximum"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// MarshalText encodes the level as its name, so assessments carry
// "maximum" rather than an opaque number over the wire.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *Level) UnmarshalText(text []byte) error {
	switch string(text) {
	case "trivial":
		*l = Trivial
	case "routine":
		*l = Routine
	case "important":
		*l = Important
	case "critical":
		*l = Critical
	case "maximum":
		*l = Maximum
	default:
		return fmt.Errorf("unknown difficulty level %q", text)
	}
	return nil
}

// Profile is the verification requirement tuple for one level.
type Profile struct {
	RequiredWorkers    int
	ConsensusThreshold float64
	RewardMultiplier   float64
}

// Assessment is the assessor's output for one piece of work.
type Assessment struct {
	Level              Level    `json:"level"`
	RequiredWorkers    int      `json:"required_workers"`
	ConsensusThreshold float64  `json:"consensus_threshold"`
	RewardMultiplier   float64  `json:"reward_multiplier"`
	Reasons            []string `json:"reasons"`
}

// Params holds the assessor's policy tables. The defaults reproduce the
// platform's calibrated values; deployments may override them.
type Params struct {
	// BaseLevels maps work types to their base difficulty.
	// Unknown work types assess as Trivial.
	BaseLevels map[string]Level

	// Profiles maps each level to its requirement tuple. Worker counts and
	// thresholds must increase strictly with the level.
	Profiles map[Level]Profile

	// CriticalEntityTypes escalate entity extraction to at least Critical.
	CriticalEntityTypes map[string]bool

	// HighValueThreshold escalates transactions above this value by one level.
	HighValueThreshold types.Amount
}

// DefaultParams returns the default difficulty policy.
func DefaultParams() Params {
	return Params{
		BaseLevels: map[string]Level{
			"fraud_detection":      Maximum,
			"security_audit":       Critical,
			"pattern_detection":    Important,
			"entity_extraction":    Routine,
			"market_analysis":      Routine,
			"transaction_indexing": Trivial,
		},
		Profiles: map[Level]Profile{
			Trivial:   {RequiredWorkers: 3, ConsensusThreshold: 0.67, RewardMultiplier: 1.0},
			Routine:   {RequiredWorkers: 5, ConsensusThreshold: 0.70, RewardMultiplier: 1.25},
			Important: {RequiredWorkers: 7, ConsensusThreshold: 0.75, RewardMultiplier: 1.5},
			Critical:  {RequiredWorkers: 10, ConsensusThreshold: 0.80, RewardMultiplier: 2.0},
			Maximum:   {RequiredWorkers: 15, ConsensusThreshold: 0.85, RewardMultiplier: 3.0},
		},
		CriticalEntityTypes: map[string]bool{
			"infrastructure":          true,
			"critical_infrastructure": true,
			"government":              true,
			"financial_institution":   true,
		},
		HighValueThreshold: types.NewAmount(1_000_000),
	}
}

// Assessor computes difficulty assessments from a fixed policy.
type Assessor struct {
	params Params
}

// New creates an assessor with the given policy.
func New(params Params) *Assessor {
	return &Assessor{params: params}
}

// Assess returns the verification requirements for the given work.
// Deterministic: the same inputs always produce the same assessment.
//
// The base level comes from the work-type table. Data-sensitivity rules are
// evaluated independently and can only escalate, never de-escalate; the
// final level is the maximum produced by any rule. Each fired rule appends
// a human-readable reason for the audit trail.
func (a *Assessor) Assess(workType string, input map[string]any) Assessment {
	level, known := a.params.BaseLevels[workType]
	if !known {
		level = Trivial
	}
	reasons := []string{fmt.Sprintf("base level %s for work type %q", level, workType)}

	if escalated, reason := a.escalateEntityType(workType, input); escalated > level {
		level = escalated
		reasons = append(reasons, reason)
	}
	if escalated, reason, fired := a.escalateHighValue(level, input); fired {
		if escalated > level {
			level = escalated
		}
		reasons = append(reasons, reason)
	}

	profile := a.params.Profiles[level]
	return Assessment{
		Level:              level,
		RequiredWorkers:    profile.RequiredWorkers,
		ConsensusThreshold: profile.ConsensusThreshold,
		RewardMultiplier:   profile.RewardMultiplier,
		Reasons:            reasons,
	}
}

// escalateEntityType raises entity extraction against critical-infrastructure
// entity types to at least Critical.
func (a *Assessor) escalateEntityType(workType string, input map[string]any) (Level, string) {
	if workType != "entity_extraction" {
		return Trivial, ""
	}
	entityType, _ := input["entity_type"].(string)
	if entityType == "" || !a.params.CriticalEntityTypes[entityType] {
		return Trivial, ""
	}
	return Critical, fmt.Sprintf("entity type %q is critical infrastructure", entityType)
}

// escalateHighValue bumps the level by one when the transaction value
// exceeds the high-value threshold. Returns fired=false when the input has
// no parseable value or the threshold is not crossed.
func (a *Assessor) escalateHighValue(current Level, input map[string]any) (Level, string, bool) {
	value, ok := transactionValue(input)
	if !ok || value.Cmp(a.params.HighValueThreshold) <= 0 {
		return current, "", false
	}
	next := current + 1
	if next > Maximum {
		next = Maximum
	}
	return next, fmt.Sprintf("transaction value %s exceeds high-value threshold %s",
		value, a.params.HighValueThreshold), true
}

// transactionValue extracts a transaction value from the input, accepting
// either a decimal string (preferred, arbitrary precision) or a JSON number.
func transactionValue(input map[string]any) (types.Amount, bool) {
	raw, ok := input["value"]
	if !ok {
		raw, ok = input["transaction_value"]
	}
	if !ok {
		return types.Amount{}, false
	}
	switch v := raw.(type) {
	case string:
		amt, err := types.ParseAmount(v)
		if err != nil {
			return types.Amount{}, false
		}
		return amt, true
	case float64:
		// NaN and infinities carry no value; finite floats go through
		// big.Float so magnitudes beyond int64 keep escalating.
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return types.Amount{}, false
		}
		i, _ := new(big.Float).SetFloat64(v).Int(nil)
		return types.AmountFromBig(i), true
	case int:
		return types.NewAmount(int64(v)), true
	case int64:
		return types.NewAmount(v), true
	default:
		return types.Amount{}, false
	}
}
