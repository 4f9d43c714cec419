// Package staking implements the economic trust layer: per-staker balances
// with lock periods, violation-based slashing, and epoch-scoped validator
// election. Amounts are arbitrary-precision integers in base units; no
// floating point touches stake arithmetic.
package staking

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/attestnet/attestnet/internal/storage"
	"github.com/attestnet/attestnet/pkg/types"
)

// Ledger errors.
var (
	ErrBelowMinimum      = errors.New("stake amount below minimum")
	ErrNoStake           = errors.New("no stake found")
	ErrStakeLocked       = errors.New("stake is locked")
	ErrInsufficientStake = errors.New("insufficient stake")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Violation is one recorded slashing event against a staker.
type Violation struct {
	Type        ViolationType `json:"type"`
	ChallengeID string        `json:"challenge_id"`
	Details     string        `json:"details,omitempty"`
	Timestamp   int64         `json:"timestamp"` // unix ms
}

// StakeRecord is the ledger's internal state for one staker.
// Invariant: StakedAmount >= 0; a record reaching zero is removed.
type StakeRecord struct {
	StakerID      string       `json:"staker_id"`
	StakedAmount  types.Amount `json:"staked_amount"`
	SlashedAmount types.Amount `json:"slashed_amount"`
	LockedUntil   int64        `json:"locked_until,omitempty"` // unix ms, 0 = unlocked
	Violations    []Violation  `json:"violations,omitempty"`
}

// StakeInfo is the caller-facing view of a stake record.
type StakeInfo struct {
	StakerID      string       `json:"staker_id"`
	StakedAmount  types.Amount `json:"staked_amount"`
	SlashedAmount types.Amount `json:"slashed_amount"`
	LockedUntil   int64        `json:"locked_until,omitempty"`
	IsValidator   bool         `json:"is_validator"`
	Violations    []Violation  `json:"violations,omitempty"`
}

// SlashResult reports the outcome of a slash operation.
type SlashResult struct {
	Slashed bool         `json:"slashed"`
	Amount  types.Amount `json:"amount"`
}

// Stats summarizes the ledger.
type Stats struct {
	Stakers      int          `json:"stakers"`
	Validators   int          `json:"validators"`
	TotalStaked  types.Amount `json:"total_staked"`
	TotalSlashed types.Amount `json:"total_slashed"`
	CurrentEpoch uint64       `json:"current_epoch,omitempty"`
}

// Ledger owns all stake records and epoch state. All mutations on a single
// staker are serialized behind the ledger mutex; reads take the read lock.
type Ledger struct {
	mu     sync.RWMutex
	params Params
	logger zerolog.Logger

	stakes storage.DB // persisted records, one JSON value per staker
	epochs storage.DB // persisted epochs

	records map[string]*StakeRecord
	current *Epoch // active epoch, nil before the first rotation
	epochID uint64

	rates AgreementRates // nil until the consensus engine is attached
}

// Storage key prefixes within the ledger database.
var (
	prefixStakes = []byte("s/")
	prefixEpochs = []byte("e/")
)

// NewLedger creates a ledger backed by db, loading any persisted state.
func NewLedger(db storage.DB, params Params, logger zerolog.Logger) (*Ledger, error) {
	l := &Ledger{
		params:  params,
		logger:  logger,
		stakes:  storage.NewPrefixDB(db, prefixStakes),
		epochs:  storage.NewPrefixDB(db, prefixEpochs),
		records: make(map[string]*StakeRecord),
	}
	if err := l.load(); err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return l, nil
}

// SetAgreementRates attaches the rolling agreement-rate source used by the
// repeat-offender escalation. Safe to call once during wiring.
func (l *Ledger) SetAgreementRates(rates AgreementRates) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rates = rates
}

// Stake adds amount to the staker's balance, creating the record on first
// stake. A non-zero lockDuration sets lockedUntil = now + lockDuration;
// locks are monotonic, so a later stake never shortens an existing lock.
func (l *Ledger) Stake(stakerID string, amount types.Amount, lockDuration time.Duration) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.Cmp(l.params.MinimumStake) < 0 {
		return fmt.Errorf("%w: %s < %s", ErrBelowMinimum, amount, l.params.MinimumStake)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[stakerID]
	if !ok {
		rec = &StakeRecord{StakerID: stakerID}
		l.records[stakerID] = rec
	}
	rec.StakedAmount = rec.StakedAmount.Add(amount)

	if lockDuration > 0 {
		until := nowMillis() + lockDuration.Milliseconds()
		if until > rec.LockedUntil {
			rec.LockedUntil = until
		}
	}

	if err := l.saveRecord(rec); err != nil {
		return err
	}

	l.logger.Info().
		Str("staker", stakerID).
		Str("amount", amount.String()).
		Str("total", rec.StakedAmount.String()).
		Bool("validator", l.isValidatorLocked(rec)).
		Msg("stake added")
	return nil
}

// Unstake withdraws amount from the staker's balance. Fails while the stake
// is locked or when the amount exceeds the balance. A fully-withdrawn
// record is removed from the ledger.
func (l *Ledger) Unstake(stakerID string, amount types.Amount) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[stakerID]
	if !ok {
		return fmt.Errorf("%w for %s", ErrNoStake, stakerID)
	}
	if now := nowMillis(); now < rec.LockedUntil {
		return fmt.Errorf("%w until %s", ErrStakeLocked,
			time.UnixMilli(rec.LockedUntil).UTC().Format(time.RFC3339))
	}
	if amount.Cmp(rec.StakedAmount) > 0 {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientStake, rec.StakedAmount, amount)
	}

	rec.StakedAmount = rec.StakedAmount.Sub(amount)
	if rec.StakedAmount.IsZero() {
		delete(l.records, stakerID)
		if err := l.stakes.Delete([]byte(stakerID)); err != nil {
			return fmt.Errorf("delete stake record: %w", err)
		}
	} else if err := l.saveRecord(rec); err != nil {
		return err
	}

	l.logger.Info().
		Str("staker", stakerID).
		Str("amount", amount.String()).
		Str("remaining", rec.StakedAmount.String()).
		Msg("stake withdrawn")
	return nil
}

// Slash deducts a violation-dependent fraction of the staker's balance and
// records the violation. Unknown stakers are a no-op returning a zero
// result: an unstaked worker has nothing at risk.
//
// Escalation: the violation being slashed counts toward the repeat-offender
// threshold, so a staker reaching RepeatOffenderViolations consensus
// disagreements (this one included) with a rolling agreement rate below the
// configured cutoff receives an additional repeated_violations penalty
// layered on top of the base slash.
func (l *Ledger) Slash(stakerID string, violation ViolationType, challengeID, details string) SlashResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[stakerID]
	if !ok {
		return SlashResult{Slashed: false, Amount: types.NewAmount(0)}
	}

	total := l.slashPortion(rec, violation)

	escalated := false
	if violation != ViolationRepeatedViolations && l.isRepeatOffenderLocked(rec, violation) {
		total = total.Add(l.slashPortion(rec, ViolationRepeatedViolations))
		escalated = true
	}
	if total.Cmp(rec.StakedAmount) > 0 {
		total = rec.StakedAmount
	}

	now := nowMillis()
	rec.StakedAmount = rec.StakedAmount.Sub(total)
	rec.SlashedAmount = rec.SlashedAmount.Add(total)
	rec.Violations = append(rec.Violations, Violation{
		Type:        violation,
		ChallengeID: challengeID,
		Details:     details,
		Timestamp:   now,
	})
	if escalated {
		rec.Violations = append(rec.Violations, Violation{
			Type:        ViolationRepeatedViolations,
			ChallengeID: challengeID,
			Details:     "layered on repeated consensus disagreements",
			Timestamp:   now,
		})
	}

	if rec.StakedAmount.IsZero() {
		delete(l.records, stakerID)
		if err := l.stakes.Delete([]byte(stakerID)); err != nil {
			l.logger.Error().Err(err).Str("staker", stakerID).Msg("delete slashed-out record")
		}
	} else if err := l.saveRecord(rec); err != nil {
		l.logger.Error().Err(err).Str("staker", stakerID).Msg("persist slashed record")
	}

	l.logger.Warn().
		Str("staker", stakerID).
		Str("violation", string(violation)).
		Str("challenge", challengeID).
		Str("amount", total.String()).
		Bool("escalated", escalated).
		Msg("stake slashed")
	return SlashResult{Slashed: true, Amount: total}
}

// slashPortion computes staked/divisor for the violation type.
// Caller holds the lock.
func (l *Ledger) slashPortion(rec *StakeRecord, violation ViolationType) types.Amount {
	div, ok := l.params.SlashDivisors[violation]
	if !ok || div <= 0 {
		return types.NewAmount(0)
	}
	return rec.StakedAmount.Div(div)
}

// isRepeatOffenderLocked reports whether the staker qualifies for the
// repeated_violations escalation. The violation currently being slashed
// counts toward the threshold: the third consecutive disagreement already
// escalates, not the fourth. Caller holds the lock.
func (l *Ledger) isRepeatOffenderLocked(rec *StakeRecord, current ViolationType) bool {
	disagreements := 0
	if current == ViolationConsensusDisagreement {
		disagreements = 1
	}
	for _, v := range rec.Violations {
		if v.Type == ViolationConsensusDisagreement {
			disagreements++
		}
	}
	if disagreements < l.params.RepeatOffenderViolations {
		return false
	}
	if l.rates == nil {
		// Without a rate source the violation history alone decides.
		return true
	}
	rate, ok := l.rates.AgreementRate(rec.StakerID)
	return ok && rate < l.params.RepeatOffenderMaxAgreement
}

// GetStakeInfo returns the staker's current state, or nil if unstaked.
func (l *Ledger) GetStakeInfo(stakerID string) *StakeInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[stakerID]
	if !ok {
		return nil
	}
	return l.infoLocked(rec)
}

// GetAllStakers returns every staker sorted descending by staked amount.
func (l *Ledger) GetAllStakers() []*StakeInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*StakeInfo, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, l.infoLocked(rec))
	}
	sortByStakeDesc(out)
	return out
}

// GetValidatorLeaderboard returns up to limit stakers at or above the
// validator threshold, sorted descending by stake.
func (l *Ledger) GetValidatorLeaderboard(limit int) []*StakeInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*StakeInfo, 0)
	for _, rec := range l.records {
		if l.isValidatorLocked(rec) {
			out = append(out, l.infoLocked(rec))
		}
	}
	sortByStakeDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// IsCurrentValidator reports whether the staker holds validator status.
// A staker below the threshold is never a validator, even outside an
// active epoch; within an active epoch the capped elected set decides.
func (l *Ledger) IsCurrentValidator(stakerID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[stakerID]
	if !ok || !l.isValidatorLocked(rec) {
		return false
	}
	if l.current == nil || l.current.Status != EpochActive {
		return true
	}
	for _, id := range l.current.Validators {
		if id == stakerID {
			return true
		}
	}
	return false
}

// GetStakingStats returns ledger-wide totals.
func (l *Ledger) GetStakingStats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		Stakers:      len(l.records),
		TotalStaked:  types.NewAmount(0),
		TotalSlashed: types.NewAmount(0),
	}
	for _, rec := range l.records {
		stats.TotalStaked = stats.TotalStaked.Add(rec.StakedAmount)
		stats.TotalSlashed = stats.TotalSlashed.Add(rec.SlashedAmount)
		if l.isValidatorLocked(rec) {
			stats.Validators++
		}
	}
	if l.current != nil {
		stats.CurrentEpoch = l.current.ID
	}
	return stats
}

// HasStake reports whether the staker holds any stake at all.
func (l *Ledger) HasStake(stakerID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.records[stakerID]
	return ok
}

// isValidatorLocked derives validator status. Caller holds the lock.
func (l *Ledger) isValidatorLocked(rec *StakeRecord) bool {
	return rec.StakedAmount.Cmp(l.params.ValidatorThreshold) >= 0
}

// infoLocked builds a caller-facing copy. Caller holds the lock.
func (l *Ledger) infoLocked(rec *StakeRecord) *StakeInfo {
	violations := make([]Violation, len(rec.Violations))
	copy(violations, rec.Violations)
	return &StakeInfo{
		StakerID:      rec.StakerID,
		StakedAmount:  rec.StakedAmount,
		SlashedAmount: rec.SlashedAmount,
		LockedUntil:   rec.LockedUntil,
		IsValidator:   l.isValidatorLocked(rec),
		Violations:    violations,
	}
}

// saveRecord persists one record. Caller holds the lock.
func (l *Ledger) saveRecord(rec *StakeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal stake record: %w", err)
	}
	if err := l.stakes.Put([]byte(rec.StakerID), data); err != nil {
		return fmt.Errorf("persist stake record: %w", err)
	}
	return nil
}

// load restores records and epoch state from storage.
func (l *Ledger) load() error {
	err := l.stakes.ForEach(nil, func(_, value []byte) error {
		var rec StakeRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("unmarshal stake record: %w", err)
		}
		l.records[rec.StakerID] = &rec
		return nil
	})
	if err != nil {
		return err
	}

	return l.epochs.ForEach(nil, func(_, value []byte) error {
		var ep Epoch
		if err := json.Unmarshal(value, &ep); err != nil {
			return fmt.Errorf("unmarshal epoch: %w", err)
		}
		if ep.ID > l.epochID {
			l.epochID = ep.ID
		}
		if ep.Status == EpochActive {
			if l.current == nil || ep.ID > l.current.ID {
				l.current = &ep
			}
		}
		return nil
	})
}

func sortByStakeDesc(infos []*StakeInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if c := infos[i].StakedAmount.Cmp(infos[j].StakedAmount); c != 0 {
			return c > 0
		}
		return infos[i].StakerID < infos[j].StakerID
	})
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
