package consensus

import (
	"github.com/attestnet/attestnet/pkg/types"
)

// ExpireDue transitions every pending or voting challenge whose submission
// window has closed to expired, and garbage-collects terminal challenges
// older than the retention window. Workers that never submitted get a
// missed_consensus reputation penalty and their load slot back; missing a
// deadline is not dissent, so no stake is slashed.
func (e *Engine) ExpireDue() (expired, removed int) {
	now := nowMillis()

	e.mu.RLock()
	candidates := make([]*challenge, 0, len(e.challenges))
	for _, ch := range e.challenges {
		candidates = append(candidates, ch)
	}
	e.mu.RUnlock()

	retentionMs := e.params.RetentionWindow.Milliseconds()
	stale := make([]types.ChallengeID, 0)

	for _, ch := range candidates {
		ch.mu.Lock()
		if !ch.status.Terminal() && !ch.evaluated && now > ch.expiresAt {
			e.expireLocked(ch)
			expired++
		}
		if ch.status.Terminal() && now-ch.expiresAt > retentionMs {
			stale = append(stale, ch.id)
		}
		ch.mu.Unlock()
	}

	if len(stale) > 0 {
		e.mu.Lock()
		for _, id := range stale {
			delete(e.challenges, id)
		}
		e.mu.Unlock()
		removed = len(stale)
		e.logger.Debug().Int("removed", removed).Msg("retention sweep")
	}

	return expired, removed
}

// expireLocked marks one challenge expired and penalizes the silent
// workers. Caller holds the challenge lock.
func (e *Engine) expireLocked(ch *challenge) {
	ch.status = StatusExpired
	ch.evaluated = true
	e.bumpCounter(&e.expired)

	missed := make([]string, 0)
	for _, workerID := range ch.assignedWorkers {
		if _, ok := ch.submissions[workerID]; !ok {
			missed = append(missed, workerID)
			e.registry.DecrementLoad(workerID)
		}
	}
	e.adjustReputation(missed, ReasonMissedConsensus)

	e.emitCompleted(ch)

	e.logger.Info().
		Str("challenge", ch.id.String()).
		Int("submitted", len(ch.submissions)).
		Int("missed", len(missed)).
		Msg("challenge expired")
}
