package staking

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/attestnet/attestnet/pkg/types"
)

// EpochStatus is the lifecycle state of an epoch.
type EpochStatus string

const (
	EpochActive EpochStatus = "active"
	EpochClosed EpochStatus = "closed"
)

// Epoch is one time-boxed governance period with its elected validator set.
// At most one epoch is active at a time.
type Epoch struct {
	ID         uint64       `json:"id"`
	StartTime  int64        `json:"start_time"` // unix ms
	EndTime    int64        `json:"end_time"`   // unix ms
	Status     EpochStatus  `json:"status"`
	Validators []string     `json:"validators"`
	TotalStake types.Amount `json:"total_stake"`
}

// Election is the result of a validator election.
type Election struct {
	Validators []string     `json:"validators"`
	TotalStake types.Amount `json:"total_stake"`
}

// ElectValidators selects the validator set from current stakes: stakers at
// or above the threshold, sorted descending by stake, capped at
// MaxValidators. TotalStake sums the elected set only.
func (l *Ledger) ElectValidators() Election {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.electLocked()
}

// electLocked runs the election. Caller holds at least the read lock.
func (l *Ledger) electLocked() Election {
	qualified := make([]*StakeInfo, 0)
	for _, rec := range l.records {
		if l.isValidatorLocked(rec) {
			qualified = append(qualified, l.infoLocked(rec))
		}
	}
	sortByStakeDesc(qualified)
	if len(qualified) > l.params.MaxValidators {
		qualified = qualified[:l.params.MaxValidators]
	}

	election := Election{
		Validators: make([]string, 0, len(qualified)),
		TotalStake: types.NewAmount(0),
	}
	for _, info := range qualified {
		election.Validators = append(election.Validators, info.StakerID)
		election.TotalStake = election.TotalStake.Add(info.StakedAmount)
	}
	return election
}

// StartNewEpoch closes any active epoch, elects a fresh validator set from
// current stakes, and opens the next epoch. This is the single global
// serialization point for epoch rotation.
func (l *Ledger) StartNewEpoch() (*Epoch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := nowMillis()
	if l.current != nil && l.current.Status == EpochActive {
		l.current.Status = EpochClosed
		l.current.EndTime = now
		if err := l.saveEpoch(l.current); err != nil {
			return nil, err
		}
	}

	election := l.electLocked()
	l.epochID++
	epoch := &Epoch{
		ID:         l.epochID,
		StartTime:  now,
		EndTime:    now + l.params.EpochDuration.Milliseconds(),
		Status:     EpochActive,
		Validators: election.Validators,
		TotalStake: election.TotalStake,
	}
	if err := l.saveEpoch(epoch); err != nil {
		return nil, err
	}
	l.current = epoch

	l.logger.Info().
		Uint64("epoch", epoch.ID).
		Int("validators", len(epoch.Validators)).
		Str("total_stake", epoch.TotalStake.String()).
		Msg("epoch started")

	cp := *epoch
	return &cp, nil
}

// GetCurrentEpoch returns a copy of the active epoch, or nil before the
// first rotation.
func (l *Ledger) GetCurrentEpoch() *Epoch {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.current == nil {
		return nil
	}
	cp := *l.current
	cp.Validators = append([]string(nil), l.current.Validators...)
	return &cp
}

// saveEpoch persists one epoch keyed by its big-endian ID. Caller holds
// the lock.
func (l *Ledger) saveEpoch(ep *Epoch) error {
	data, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("marshal epoch: %w", err)
	}
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], ep.ID)
	if err := l.epochs.Put(key[:], data); err != nil {
		return fmt.Errorf("persist epoch: %w", err)
	}
	return nil
}
