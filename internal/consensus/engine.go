// Package consensus implements the challenge engine: it distributes one
// piece of work to several independent workers, groups their results by
// canonical hash, and accepts the dominant result when it clears the
// difficulty-scaled agreement threshold. Dissenting staked workers are
// slashed through the staking ledger.
package consensus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/attestnet/attestnet/internal/difficulty"
	"github.com/attestnet/attestnet/internal/events"
	"github.com/attestnet/attestnet/internal/staking"
	"github.com/attestnet/attestnet/pkg/crypto"
	"github.com/attestnet/attestnet/pkg/types"
)

// Engine errors.
var (
	ErrInsufficientWorkers = errors.New("not enough eligible workers")
)

// Submission rejection reasons. Callers branch on these routinely, so they
// are returned as values, never raised as errors.
const (
	RejectUnknownChallenge = "Challenge not found"
	RejectNotAssigned      = "Worker not assigned to this challenge"
	RejectExpired          = "Challenge expired"
	RejectDuplicate        = "Already submitted"
	RejectClosed           = "Challenge no longer accepting submissions"
)

// SubmitOutcome reports whether a submission was accepted.
type SubmitOutcome struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Engine orchestrates the challenge lifecycle. Per-challenge state is
// serialized behind each challenge's own mutex; the engine mutex guards
// only the challenge map and worker statistics.
type Engine struct {
	params   Params
	assessor *difficulty.Assessor
	registry Availability
	logger   zerolog.Logger

	// External collaborators. ledger nil disables stake filtering and
	// slashing; reputation and trust default to no-ops; emitter defaults
	// to events.Nop.
	ledger     StakeLedger
	reputation ReputationSink
	trust      TrustSource
	emitter    events.Emitter

	mu         sync.RWMutex
	challenges map[types.ChallengeID]*challenge
	stats      map[string]*WorkerStats
	reached    uint64
	failed     uint64
	expired    uint64
	seq        uint64

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates an engine. Collaborators are attached with the Set methods
// before first use.
func New(assessor *difficulty.Assessor, registry Availability, params Params, logger zerolog.Logger) *Engine {
	return &Engine{
		params:     params,
		assessor:   assessor,
		registry:   registry,
		logger:     logger,
		emitter:    events.Nop{},
		challenges: make(map[types.ChallengeID]*challenge),
		stats:      make(map[string]*WorkerStats),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetStakeLedger enables stake-aware selection and dissent slashing.
func (e *Engine) SetStakeLedger(ledger StakeLedger) { e.ledger = ledger }

// SetReputationSink attaches the external reputation collaborator.
func (e *Engine) SetReputationSink(sink ReputationSink) { e.reputation = sink }

// SetTrustSource attaches the external trust-score collaborator.
func (e *Engine) SetTrustSource(trust TrustSource) { e.trust = trust }

// SetEmitter attaches the challenge event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) { e.emitter = emitter }

// SetRand replaces the selection RNG. Tests pass a fixed-seed source to
// make the random 40% of each assignment deterministic.
func (e *Engine) SetRand(rng *rand.Rand) {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	e.rng = rng
}

// CreateChallenge assesses the work, selects an assignment from the
// eligible pool, and opens a pending challenge. Creation is all-or-nothing:
// when the eligible pool is below the hard minimum the challenge is not
// created and ErrInsufficientWorkers is returned.
func (e *Engine) CreateChallenge(workType string, input map[string]any, requiredOverride int) (*ChallengeInfo, error) {
	assessment := e.assessor.Assess(workType, input)

	pool := e.registry.EligibleWorkers()

	// A positive override replaces the profile's worker count in either
	// direction; the per-challenge cap and the pool size still bound it.
	required := assessment.RequiredWorkers
	if requiredOverride > 0 {
		required = requiredOverride
	}
	if required > e.params.MaxWorkersPerChallenge {
		required = e.params.MaxWorkersPerChallenge
	}

	// Prefer workers with skin in the game when enough of them exist.
	if e.ledger != nil {
		staked := make([]string, 0, len(pool))
		for _, id := range pool {
			if e.ledger.HasStake(id) {
				staked = append(staked, id)
			}
		}
		if len(staked) >= required && len(staked) >= e.params.MinWorkers {
			pool = staked
		}
	}

	if len(pool) < e.params.MinWorkers {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientWorkers, len(pool), e.params.MinWorkers)
	}
	if required > len(pool) {
		required = len(pool)
	}

	assigned := e.selectWorkers(pool, required)

	now := nowMillis()
	ch := &challenge{
		id:              e.nextChallengeID(workType, input, now),
		workType:        workType,
		inputData:       input,
		assignedWorkers: assigned,
		submissions:     make(map[string]*Submission, len(assigned)),
		createdAt:       now,
		expiresAt:       now + e.params.SubmissionWindow.Milliseconds(),
		status:          StatusPending,
		assessment:      assessment,
	}

	e.mu.Lock()
	e.challenges[ch.id] = ch
	e.mu.Unlock()

	for _, id := range assigned {
		e.registry.IncrementLoad(id)
	}

	e.emitter.EmitChallengeCreated(events.ChallengeCreated{
		ChallengeID:     ch.id.String(),
		WorkType:        workType,
		Level:           assessment.Level.String(),
		AssignedWorkers: assigned,
		ExpiresAt:       ch.expiresAt,
	})

	e.logger.Info().
		Str("challenge", ch.id.String()).
		Str("work_type", workType).
		Str("level", assessment.Level.String()).
		Int("workers", len(assigned)).
		Float64("threshold", assessment.ConsensusThreshold).
		Msg("challenge created")

	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.snapshot(), nil
}

// selectWorkers picks n workers from the pool: the top share by trust,
// the remainder uniformly at random from the rest.
func (e *Engine) selectWorkers(pool []string, n int) []string {
	ranked := append([]string(nil), pool...)
	sort.Slice(ranked, func(i, j int) bool {
		ti, tj := e.trustMultiplier(ranked[i]), e.trustMultiplier(ranked[j])
		if ti != tj {
			return ti > tj
		}
		return ranked[i] < ranked[j]
	})

	byTrust := int(math.Round(float64(n) * e.params.TrustSelectionRatio))
	if byTrust > n {
		byTrust = n
	}

	selected := append([]string(nil), ranked[:byTrust]...)
	rest := append([]string(nil), ranked[byTrust:]...)

	e.rngMu.Lock()
	e.rng.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
	e.rngMu.Unlock()

	for _, id := range rest {
		if len(selected) == n {
			break
		}
		selected = append(selected, id)
	}
	return selected
}

// nextChallengeID derives a unique ID from the work, the creation time,
// and a process-local sequence number.
func (e *Engine) nextChallengeID(workType string, input map[string]any, now int64) types.ChallengeID {
	e.mu.Lock()
	e.seq++
	seq := e.seq
	e.mu.Unlock()

	inputHash := HashResult(input)
	buf := make([]byte, 0, len(workType)+types.HashSize+16)
	buf = append(buf, workType...)
	buf = append(buf, inputHash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(now))
	buf = binary.LittleEndian.AppendUint64(buf, seq)
	return types.ChallengeID(crypto.Hash(buf))
}

// SubmitResult records one worker's result. The first submission from each
// assigned worker wins; duplicates, non-assigned workers, unknown and
// expired challenges are each rejected with a distinct reason. When the
// last assigned worker submits, the challenge moves to voting and is
// evaluated exactly once.
func (e *Engine) SubmitResult(id types.ChallengeID, workerID string, result map[string]any) SubmitOutcome {
	e.mu.RLock()
	ch, ok := e.challenges[id]
	e.mu.RUnlock()
	if !ok {
		return SubmitOutcome{Accepted: false, Reason: RejectUnknownChallenge}
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.status == StatusExpired {
		return SubmitOutcome{Accepted: false, Reason: RejectExpired}
	}
	if ch.status.Terminal() || ch.evaluated {
		return SubmitOutcome{Accepted: false, Reason: RejectClosed}
	}
	if !ch.isAssigned(workerID) {
		return SubmitOutcome{Accepted: false, Reason: RejectNotAssigned}
	}
	if nowMillis() > ch.expiresAt {
		return SubmitOutcome{Accepted: false, Reason: RejectExpired}
	}
	if _, dup := ch.submissions[workerID]; dup {
		return SubmitOutcome{Accepted: false, Reason: RejectDuplicate}
	}

	ch.submissions[workerID] = &Submission{
		WorkerID:    workerID,
		Result:      result,
		Hash:        HashResult(result),
		SubmittedAt: nowMillis(),
	}
	e.registry.DecrementLoad(workerID)

	// Quorum: every assigned worker has submitted.
	if len(ch.submissions) >= len(ch.assignedWorkers) && !ch.evaluated {
		ch.evaluated = true
		ch.status = StatusVoting
		e.evaluate(ch)
	}

	return SubmitOutcome{Accepted: true}
}

// evaluate groups submissions by canonical hash, checks the dominant group
// against the challenge threshold, and applies reputation and slashing
// consequences. Caller holds the challenge lock.
func (e *Engine) evaluate(ch *challenge) {
	total := len(ch.submissions)
	if total == 0 {
		ch.status = StatusConsensusFailed
		ch.result = &Result{FailureReason: "no submissions", EvaluatedAt: nowMillis()}
		e.bumpCounter(&e.failed)
		e.emitCompleted(ch)
		return
	}

	groups := make(map[types.Hash][]string)
	for _, sub := range ch.submissions {
		groups[sub.Hash] = append(groups[sub.Hash], sub.WorkerID)
	}

	var dominantHash types.Hash
	dominantSize := -1
	for h, members := range groups {
		// Ties break on the hash string so evaluation is deterministic.
		if len(members) > dominantSize ||
			(len(members) == dominantSize && h.String() < dominantHash.String()) {
			dominantHash = h
			dominantSize = len(members)
		}
	}

	dominant := groups[dominantHash]
	sort.Strings(dominant)
	ratio := float64(dominantSize) / float64(total)
	achieved := ratio >= ch.assessment.ConsensusThreshold

	dissenters := make([]string, 0)
	for _, sub := range ch.submissions {
		if sub.Hash != dominantHash {
			dissenters = append(dissenters, sub.WorkerID)
		}
	}
	sort.Strings(dissenters)

	result := &Result{
		AgreementRatio: ratio,
		Submissions:    total,
		EvaluatedAt:    nowMillis(),
	}

	if achieved {
		result.Achieved = true
		result.ValueHash = dominantHash
		result.Value = ch.submissions[dominant[0]].Result
		result.Dissenters = dissenters
		result.Confidence = clamp01(ratio * e.meanTrust(dominant))

		prior := e.updateStats(dominant, dissenters)
		e.adjustReputation(dominant, ReasonConsensusAgreement)
		e.adjustReputation(dissenters, ReasonConsensusDisagreement)

		if e.ledger != nil && len(dissenters) > 0 {
			e.applyDissentSlashing(ch, dissenters, prior)
		}

		ch.status = StatusConsensusReached
		e.bumpCounter(&e.reached)
	} else {
		result.FailureReason = "below threshold"
		e.updateParticipation(ch)
		ch.status = StatusConsensusFailed
		e.bumpCounter(&e.failed)
	}

	ch.result = result
	e.emitCompleted(ch)

	e.logger.Info().
		Str("challenge", ch.id.String()).
		Bool("achieved", achieved).
		Float64("ratio", ratio).
		Int("submissions", total).
		Int("dissenters", len(dissenters)).
		Msg("consensus evaluated")
}

// applyDissentSlashing slashes staked dissenters. Unstaked dissenters keep
// only the reputation penalty: they have nothing at risk. No slashing ever
// happens on failed consensus, because no dominant truth was established.
func (e *Engine) applyDissentSlashing(ch *challenge, dissenters []string, prior map[string]WorkerStats) {
	for _, workerID := range dissenters {
		if !e.ledger.HasStake(workerID) {
			continue
		}
		violation := e.dissentViolation(prior[workerID], ch.assessment.Level, workerID)
		res := e.ledger.Slash(workerID, violation, ch.id.String(),
			fmt.Sprintf("dissent from consensus on %s work", ch.workType))
		if res.Slashed {
			e.logger.Warn().
				Str("challenge", ch.id.String()).
				Str("worker", workerID).
				Str("violation", string(violation)).
				Str("amount", res.Amount.String()).
				Msg("dissenter slashed")
		}
	}
}

// dissentViolation picks the violation type for one dissenter. The dissent
// being judged counts toward the repeat-offender threshold, matching the
// ledger's escalation rule. At critical and maximum difficulty a current
// validator answers for fraud, since validators carry higher accountability.
func (e *Engine) dissentViolation(prior WorkerStats, level difficulty.Level, workerID string) staking.ViolationType {
	disagreements := prior.Disagreements + 1
	rate := float64(prior.Agreements) / float64(prior.Agreements+disagreements)
	if disagreements >= e.params.RepeatOffenderDisagreements &&
		rate < e.params.RepeatOffenderMaxAgreement {
		return staking.ViolationRepeatedViolations
	}
	if level >= difficulty.Critical && e.ledger.IsCurrentValidator(workerID) {
		return staking.ViolationFraudDetected
	}
	return staking.ViolationConsensusDisagreement
}

// updateStats applies one evaluated challenge to the rolling counters and
// returns each touched worker's stats as they were before the update.
func (e *Engine) updateStats(agreed, dissented []string) map[string]WorkerStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	prior := make(map[string]WorkerStats, len(agreed)+len(dissented))
	for _, id := range agreed {
		s := e.statsLocked(id)
		prior[id] = *s
		s.Participated++
		s.Agreements++
		s.AgreementRate = s.rate()
	}
	for _, id := range dissented {
		s := e.statsLocked(id)
		prior[id] = *s
		s.Participated++
		s.Disagreements++
		s.AgreementRate = s.rate()
	}
	return prior
}

// updateParticipation counts a failed evaluation for every submitter
// without moving their agreement counters.
func (e *Engine) updateParticipation(ch *challenge) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for workerID := range ch.submissions {
		s := e.statsLocked(workerID)
		s.Participated++
		s.AgreementRate = s.rate()
	}
}

// statsLocked fetches or creates a worker's counters. Caller holds e.mu.
func (e *Engine) statsLocked(workerID string) *WorkerStats {
	s, ok := e.stats[workerID]
	if !ok {
		s = &WorkerStats{WorkerID: workerID}
		e.stats[workerID] = s
	}
	return s
}

// adjustReputation forwards adjustments to the external sink, if attached.
func (e *Engine) adjustReputation(workers []string, reason string) {
	if e.reputation == nil {
		return
	}
	for _, id := range workers {
		e.reputation.AdjustWorkerReputation(id, reason)
	}
}

// meanTrust averages the trust multipliers of a worker group.
func (e *Engine) meanTrust(workers []string) float64 {
	if len(workers) == 0 {
		return 0
	}
	var sum float64
	for _, id := range workers {
		sum += e.trustMultiplier(id)
	}
	return sum / float64(len(workers))
}

// trustMultiplier queries the trust source, defaulting to neutral.
func (e *Engine) trustMultiplier(workerID string) float64 {
	if e.trust == nil {
		return 1.0
	}
	m := e.trust.WorkerTrustMultiplier(workerID)
	if m < 0 {
		return 0
	}
	return m
}

func (e *Engine) bumpCounter(counter *uint64) {
	e.mu.Lock()
	*counter++
	e.mu.Unlock()
}

// emitCompleted publishes the terminal event. Caller holds the challenge
// lock; the snapshot is taken inside it.
func (e *Engine) emitCompleted(ch *challenge) {
	ev := events.ChallengeCompleted{
		ChallengeID: ch.id.String(),
		WorkType:    ch.workType,
		Status:      string(ch.status),
	}
	if ch.result != nil {
		ev.Achieved = ch.result.Achieved
		ev.AgreementRatio = ch.result.AgreementRatio
		ev.Confidence = ch.result.Confidence
		ev.Dissenters = ch.result.Dissenters
	}
	e.emitter.EmitChallengeCompleted(ev)
}

// GetChallenge returns a snapshot of one challenge, or nil if unknown.
func (e *Engine) GetChallenge(id types.ChallengeID) *ChallengeInfo {
	e.mu.RLock()
	ch, ok := e.challenges[id]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.snapshot()
}

// GetResult returns the evaluation result for a challenge, or nil while the
// challenge is still collecting submissions.
func (e *Engine) GetResult(id types.ChallengeID) *Result {
	e.mu.RLock()
	ch, ok := e.challenges[id]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.result == nil {
		return nil
	}
	cp := *ch.result
	return &cp
}

// GetWorkerChallenges returns snapshots of every retained challenge the
// worker is assigned to, newest first.
func (e *Engine) GetWorkerChallenges(workerID string) []*ChallengeInfo {
	e.mu.RLock()
	matched := make([]*challenge, 0)
	for _, ch := range e.challenges {
		matched = append(matched, ch)
	}
	e.mu.RUnlock()

	out := make([]*ChallengeInfo, 0)
	for _, ch := range matched {
		ch.mu.Lock()
		if ch.isAssigned(workerID) {
			out = append(out, ch.snapshot())
		}
		ch.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out
}

// GetWorkerStats returns a copy of the worker's rolling counters, or nil
// if the worker has never been evaluated.
func (e *Engine) GetWorkerStats(workerID string) *WorkerStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.stats[workerID]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// AgreementRate implements staking.AgreementRates for the repeat-offender
// escalation in the ledger.
func (e *Engine) AgreementRate(workerID string) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.stats[workerID]
	if !ok || s.Agreements+s.Disagreements == 0 {
		return 0, false
	}
	return s.rate(), true
}

// GetStats summarizes the engine.
func (e *Engine) GetStats() EngineStats {
	e.mu.RLock()
	stats := EngineStats{
		ConsensusReached: e.reached,
		ConsensusFailed:  e.failed,
		Expired:          e.expired,
		TrackedWorkers:   len(e.stats),
	}
	var rateSum float64
	var rated int
	for _, s := range e.stats {
		if s.Agreements+s.Disagreements > 0 {
			rateSum += s.rate()
			rated++
		}
	}
	if rated > 0 {
		stats.MeanAgreement = rateSum / float64(rated)
	}
	live := make([]*challenge, 0, len(e.challenges))
	for _, ch := range e.challenges {
		live = append(live, ch)
	}
	e.mu.RUnlock()

	for _, ch := range live {
		ch.mu.Lock()
		if !ch.status.Terminal() {
			stats.Active++
		}
		ch.mu.Unlock()
	}
	return stats
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
