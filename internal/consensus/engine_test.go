package consensus

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/attestnet/attestnet/internal/difficulty"
	"github.com/attestnet/attestnet/internal/staking"
	"github.com/attestnet/attestnet/pkg/types"
)

// stubRegistry is an in-memory Availability with a fixed eligible pool.
type stubRegistry struct {
	mu   sync.Mutex
	pool []string
	load map[string]int
}

func newStubRegistry(n int) *stubRegistry {
	pool := make([]string, n)
	for i := range pool {
		pool[i] = fmt.Sprintf("w%02d", i)
	}
	return &stubRegistry{pool: pool, load: make(map[string]int)}
}

func (s *stubRegistry) EligibleWorkers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.pool...)
}

func (s *stubRegistry) IncrementLoad(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load[id]++
}

func (s *stubRegistry) DecrementLoad(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load[id]--
}

func (s *stubRegistry) loadOf(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load[id]
}

// slashCall records one Slash invocation on the stub ledger.
type slashCall struct {
	workerID  string
	violation staking.ViolationType
}

// stubLedger is a StakeLedger that records slashes.
type stubLedger struct {
	mu         sync.Mutex
	staked     map[string]bool
	validators map[string]bool
	slashes    []slashCall
}

func newStubLedger(staked ...string) *stubLedger {
	l := &stubLedger{staked: make(map[string]bool), validators: make(map[string]bool)}
	for _, id := range staked {
		l.staked[id] = true
	}
	return l
}

func (l *stubLedger) HasStake(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.staked[id]
}

func (l *stubLedger) IsCurrentValidator(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.validators[id]
}

func (l *stubLedger) Slash(id string, violation staking.ViolationType, challengeID, details string) staking.SlashResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.slashes = append(l.slashes, slashCall{workerID: id, violation: violation})
	return staking.SlashResult{Slashed: true, Amount: types.NewAmount(10)}
}

func (l *stubLedger) slashed() []slashCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]slashCall(nil), l.slashes...)
}

// repRecorder collects reputation adjustments per worker.
type repRecorder struct {
	mu    sync.Mutex
	calls map[string][]string
}

func newRepRecorder() *repRecorder {
	return &repRecorder{calls: make(map[string][]string)}
}

func (r *repRecorder) AdjustWorkerReputation(id, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[id] = append(r.calls[id], reason)
}

func (r *repRecorder) reasonsFor(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls[id]...)
}

// fixedTrust is a TrustSource returning per-worker multipliers.
type fixedTrust struct {
	byWorker map[string]float64
	fallback float64
}

func (f fixedTrust) WorkerTrustMultiplier(id string) float64 {
	if m, ok := f.byWorker[id]; ok {
		return m
	}
	return f.fallback
}

func newTestEngine(t *testing.T, workers int, params Params) (*Engine, *stubRegistry) {
	t.Helper()
	reg := newStubRegistry(workers)
	e := New(difficulty.New(difficulty.DefaultParams()), reg, params, zerolog.Nop())
	e.SetRand(rand.New(rand.NewSource(1)))
	return e, reg
}

// submitAll sends the same result for every assigned worker except those in
// dissent, which get dissentResult instead.
func submitAll(t *testing.T, e *Engine, info *ChallengeInfo, agree, dissentResult map[string]any, dissent ...string) {
	t.Helper()
	dissenting := make(map[string]bool, len(dissent))
	for _, id := range dissent {
		dissenting[id] = true
	}
	for _, id := range info.AssignedWorkers {
		result := agree
		if dissenting[id] {
			result = dissentResult
		}
		outcome := e.SubmitResult(info.ID, id, result)
		if !outcome.Accepted {
			t.Fatalf("SubmitResult(%s) rejected: %s", id, outcome.Reason)
		}
	}
}

func TestCreateChallengeInsufficientWorkers(t *testing.T) {
	e, _ := newTestEngine(t, 2, DefaultParams())

	info, err := e.CreateChallenge("transaction_indexing", nil, 0)
	if !errors.Is(err, ErrInsufficientWorkers) {
		t.Fatalf("error = %v, want ErrInsufficientWorkers", err)
	}
	if info != nil {
		t.Error("challenge must not be created below the worker minimum")
	}
}

func TestCreateChallengeAssignment(t *testing.T) {
	e, reg := newTestEngine(t, 8, DefaultParams())

	info, err := e.CreateChallenge("market_analysis", nil, 0)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}
	if info.Status != StatusPending {
		t.Errorf("status = %s, want pending", info.Status)
	}
	if len(info.AssignedWorkers) != 5 {
		t.Errorf("assigned = %d, want 5 (routine profile)", len(info.AssignedWorkers))
	}
	if info.ConsensusThreshold != 0.70 {
		t.Errorf("threshold = %v, want 0.70", info.ConsensusThreshold)
	}
	if info.ExpiresAt <= info.CreatedAt {
		t.Error("expiry must be after creation")
	}

	seen := make(map[string]bool)
	for _, id := range info.AssignedWorkers {
		if seen[id] {
			t.Errorf("worker %s assigned twice", id)
		}
		seen[id] = true
		if reg.loadOf(id) != 1 {
			t.Errorf("load of %s = %d, want 1", id, reg.loadOf(id))
		}
	}
}

func TestCreateChallengeShrinksToPool(t *testing.T) {
	// Routine work wants 5 workers; a pool of 3 still meets the hard
	// minimum and the whole pool is assigned.
	e, _ := newTestEngine(t, 3, DefaultParams())

	info, err := e.CreateChallenge("market_analysis", nil, 0)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}
	if len(info.AssignedWorkers) != 3 {
		t.Errorf("assigned = %d, want 3", len(info.AssignedWorkers))
	}
}

func TestCreateChallengeOverride(t *testing.T) {
	e, _ := newTestEngine(t, 10, DefaultParams())

	// The override lowers the routine profile's 5.
	info, err := e.CreateChallenge("market_analysis", nil, 3)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}
	if len(info.AssignedWorkers) != 3 {
		t.Errorf("assigned = %d, want override of 3", len(info.AssignedWorkers))
	}

	// The override also raises it above the profile requirement.
	info, err = e.CreateChallenge("market_analysis", nil, 9)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}
	if len(info.AssignedWorkers) != 9 {
		t.Errorf("assigned = %d, want override of 9", len(info.AssignedWorkers))
	}

	// An oversized override is clamped to the pool.
	info, err = e.CreateChallenge("market_analysis", nil, 40)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}
	if len(info.AssignedWorkers) != 10 {
		t.Errorf("assigned = %d, want the full pool of 10", len(info.AssignedWorkers))
	}
}

func TestCreateChallengeOverrideRaisesTrivialWork(t *testing.T) {
	// Trivial work wants 3 workers, but a caller may request redundancy
	// beyond the profile: 5 eligible workers, all 5 assigned.
	e, _ := newTestEngine(t, 5, DefaultParams())

	info, err := e.CreateChallenge("transaction_indexing", nil, 5)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}
	if len(info.AssignedWorkers) != 5 {
		t.Fatalf("assigned = %d, want 5", len(info.AssignedWorkers))
	}

	submitAll(t, e, info, map[string]any{"indexed": true}, nil)
	res := e.GetResult(info.ID)
	if res == nil || !res.Achieved {
		t.Fatal("all five submissions must evaluate and reach consensus")
	}
	if res.Submissions != 5 {
		t.Errorf("submissions = %d, want 5", res.Submissions)
	}
}

func TestCreateChallengePrefersStakedWorkers(t *testing.T) {
	e, _ := newTestEngine(t, 8, DefaultParams())
	e.SetStakeLedger(newStubLedger("w00", "w01", "w02"))

	info, err := e.CreateChallenge("transaction_indexing", nil, 0)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}
	staked := map[string]bool{"w00": true, "w01": true, "w02": true}
	for _, id := range info.AssignedWorkers {
		if !staked[id] {
			t.Errorf("unstaked worker %s assigned while enough staked workers exist", id)
		}
	}
}

func TestSelectionFavorsTrustedWorkers(t *testing.T) {
	e, _ := newTestEngine(t, 6, DefaultParams())
	e.SetTrustSource(fixedTrust{
		byWorker: map[string]float64{"w03": 5.0, "w05": 4.0},
		fallback: 1.0,
	})

	// Trivial work takes 3 workers; 60% of the assignment (2 slots) goes to
	// the top-trust workers.
	info, err := e.CreateChallenge("transaction_indexing", nil, 0)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}
	assigned := make(map[string]bool)
	for _, id := range info.AssignedWorkers {
		assigned[id] = true
	}
	if !assigned["w03"] || !assigned["w05"] {
		t.Errorf("assignment %v missing the top-trust workers", info.AssignedWorkers)
	}
}

func TestSubmitResultRejections(t *testing.T) {
	e, _ := newTestEngine(t, 5, DefaultParams())

	// Unknown challenge.
	outcome := e.SubmitResult(types.ChallengeID{1}, "w00", nil)
	if outcome.Accepted || outcome.Reason != RejectUnknownChallenge {
		t.Errorf("unknown challenge outcome = %+v", outcome)
	}

	info, err := e.CreateChallenge("transaction_indexing", nil, 0)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}

	// Worker outside the assignment set.
	outcome = e.SubmitResult(info.ID, "intruder", map[string]any{"v": 1})
	if outcome.Accepted || outcome.Reason != RejectNotAssigned {
		t.Errorf("not-assigned outcome = %+v", outcome)
	}

	// Duplicate submission.
	first := info.AssignedWorkers[0]
	if out := e.SubmitResult(info.ID, first, map[string]any{"v": 1}); !out.Accepted {
		t.Fatalf("first submission rejected: %s", out.Reason)
	}
	outcome = e.SubmitResult(info.ID, first, map[string]any{"v": 2})
	if outcome.Accepted || outcome.Reason != RejectDuplicate {
		t.Errorf("duplicate outcome = %+v", outcome)
	}
}

func TestUnanimousConsensus(t *testing.T) {
	e, reg := newTestEngine(t, 3, DefaultParams())
	rep := newRepRecorder()
	e.SetReputationSink(rep)

	info, err := e.CreateChallenge("transaction_indexing", nil, 0)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}

	result := map[string]any{"verdict": "indexed", "rows": float64(42)}
	submitAll(t, e, info, result, nil)

	got := e.GetChallenge(info.ID)
	if got.Status != StatusConsensusReached {
		t.Fatalf("status = %s, want consensus_reached", got.Status)
	}

	res := e.GetResult(info.ID)
	if !res.Achieved {
		t.Error("consensus not achieved")
	}
	if res.AgreementRatio != 1.0 {
		t.Errorf("ratio = %v, want 1.0", res.AgreementRatio)
	}
	if res.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0 with neutral trust", res.Confidence)
	}
	if len(res.Dissenters) != 0 {
		t.Errorf("dissenters = %v, want none", res.Dissenters)
	}
	if res.Value["verdict"] != "indexed" {
		t.Errorf("value = %v, want the agreed result", res.Value)
	}

	for _, id := range info.AssignedWorkers {
		if reg.loadOf(id) != 0 {
			t.Errorf("load of %s = %d after submission, want 0", id, reg.loadOf(id))
		}
		stats := e.GetWorkerStats(id)
		if stats == nil || stats.Agreements != 1 || stats.AgreementRate != 1.0 {
			t.Errorf("stats of %s = %+v, want 1 agreement", id, stats)
		}
		reasons := rep.reasonsFor(id)
		if len(reasons) != 1 || reasons[0] != ReasonConsensusAgreement {
			t.Errorf("reputation of %s = %v, want [consensus_agreement]", id, reasons)
		}
	}
}

func TestSupermajorityWithDissent(t *testing.T) {
	e, _ := newTestEngine(t, 5, DefaultParams())
	ledger := newStubLedger("w00", "w01", "w02", "w03", "w04")
	e.SetStakeLedger(ledger)
	rep := newRepRecorder()
	e.SetReputationSink(rep)

	info, err := e.CreateChallenge("market_analysis", nil, 0)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}
	dissenter := info.AssignedWorkers[len(info.AssignedWorkers)-1]

	submitAll(t, e, info,
		map[string]any{"trend": "bullish"},
		map[string]any{"trend": "bearish"},
		dissenter)

	res := e.GetResult(info.ID)
	if !res.Achieved {
		t.Fatal("4/5 agreement must clear the 0.70 threshold")
	}
	if res.AgreementRatio != 0.8 {
		t.Errorf("ratio = %v, want 0.8", res.AgreementRatio)
	}
	if len(res.Dissenters) != 1 || res.Dissenters[0] != dissenter {
		t.Errorf("dissenters = %v, want [%s]", res.Dissenters, dissenter)
	}
	if res.Value["trend"] != "bullish" {
		t.Errorf("value = %v, want the dominant result", res.Value)
	}

	slashes := ledger.slashed()
	if len(slashes) != 1 {
		t.Fatalf("len(slashes) = %d, want 1", len(slashes))
	}
	if slashes[0].workerID != dissenter || slashes[0].violation != staking.ViolationConsensusDisagreement {
		t.Errorf("slash = %+v, want consensus_disagreement on %s", slashes[0], dissenter)
	}

	reasons := rep.reasonsFor(dissenter)
	if len(reasons) != 1 || reasons[0] != ReasonConsensusDisagreement {
		t.Errorf("dissenter reputation = %v, want [consensus_disagreement]", reasons)
	}

	stats := e.GetWorkerStats(dissenter)
	if stats.Disagreements != 1 {
		t.Errorf("disagreements = %d, want 1", stats.Disagreements)
	}
}

func TestConsensusFailure(t *testing.T) {
	e, _ := newTestEngine(t, 3, DefaultParams())
	ledger := newStubLedger("w00", "w01", "w02")
	e.SetStakeLedger(ledger)

	info, err := e.CreateChallenge("transaction_indexing", nil, 0)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}

	// Pairwise distinct results: no dominant group clears the threshold.
	for i, id := range info.AssignedWorkers {
		out := e.SubmitResult(info.ID, id, map[string]any{"answer": float64(i)})
		if !out.Accepted {
			t.Fatalf("SubmitResult(%s) rejected: %s", id, out.Reason)
		}
	}

	got := e.GetChallenge(info.ID)
	if got.Status != StatusConsensusFailed {
		t.Fatalf("status = %s, want consensus_failed", got.Status)
	}

	res := e.GetResult(info.ID)
	if res.Achieved {
		t.Error("achieved = true on failure")
	}
	if res.FailureReason == "" {
		t.Error("failure reason missing")
	}
	if len(ledger.slashed()) != 0 {
		t.Error("no slashing may happen when consensus fails")
	}

	// Participation counts, but nobody gains or loses agreement standing.
	stats := e.GetWorkerStats(info.AssignedWorkers[0])
	if stats.Participated != 1 || stats.Agreements != 0 || stats.Disagreements != 0 {
		t.Errorf("stats = %+v, want participation only", stats)
	}
}

func TestRepeatOffenderEscalatesToRepeatedViolations(t *testing.T) {
	e, _ := newTestEngine(t, 5, DefaultParams())
	ledger := newStubLedger("w00", "w01", "w02", "w03", "w04")
	e.SetStakeLedger(ledger)

	// The same worker dissents in four consecutive challenges.
	for i := 0; i < 4; i++ {
		info, err := e.CreateChallenge("market_analysis", nil, 0)
		if err != nil {
			t.Fatalf("CreateChallenge() error: %v", err)
		}
		submitAll(t, e, info,
			map[string]any{"round": float64(i), "trend": "up"},
			map[string]any{"round": float64(i), "trend": "down"},
			"w04")
	}

	slashes := ledger.slashed()
	if len(slashes) != 4 {
		t.Fatalf("len(slashes) = %d, want 4", len(slashes))
	}
	for i := 0; i < 2; i++ {
		if slashes[i].violation != staking.ViolationConsensusDisagreement {
			t.Errorf("slash %d = %s, want consensus_disagreement", i+1, slashes[i].violation)
		}
	}
	// The third dissent reaches the disagreement threshold (the dissent
	// being judged counts) with a 0% agreement rate, and stays escalated.
	for i := 2; i < 4; i++ {
		if slashes[i].violation != staking.ViolationRepeatedViolations {
			t.Errorf("slash %d = %s, want repeated_violations", i+1, slashes[i].violation)
		}
	}

	rate, ok := e.AgreementRate("w04")
	if !ok {
		t.Fatal("AgreementRate() not available after evaluated challenges")
	}
	if rate != 0 {
		t.Errorf("agreement rate = %v, want 0", rate)
	}
}

func TestValidatorDissentAtMaximumIsFraud(t *testing.T) {
	e, _ := newTestEngine(t, 15, DefaultParams())
	ledger := newStubLedger()
	for i := 0; i < 15; i++ {
		ledger.staked[fmt.Sprintf("w%02d", i)] = true
	}
	ledger.validators["w07"] = true
	e.SetStakeLedger(ledger)

	info, err := e.CreateChallenge("fraud_detection", nil, 0)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}
	submitAll(t, e, info,
		map[string]any{"verdict": "legitimate"},
		map[string]any{"verdict": "fraudulent"},
		"w07")

	slashes := ledger.slashed()
	if len(slashes) != 1 {
		t.Fatalf("len(slashes) = %d, want 1", len(slashes))
	}
	if slashes[0].violation != staking.ViolationFraudDetected {
		t.Errorf("violation = %s, want fraud_detected for a validator at maximum difficulty",
			slashes[0].violation)
	}
}

func TestUnstakedDissenterIsNotSlashed(t *testing.T) {
	e, _ := newTestEngine(t, 5, DefaultParams())
	ledger := newStubLedger("w00", "w01", "w02", "w03") // w04 unstaked
	e.SetStakeLedger(ledger)
	rep := newRepRecorder()
	e.SetReputationSink(rep)

	info, err := e.CreateChallenge("market_analysis", nil, 0)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}
	submitAll(t, e, info,
		map[string]any{"trend": "flat"},
		map[string]any{"trend": "down"},
		"w04")

	if len(ledger.slashed()) != 0 {
		t.Error("unstaked dissenter must not be slashed")
	}
	reasons := rep.reasonsFor("w04")
	if len(reasons) != 1 || reasons[0] != ReasonConsensusDisagreement {
		t.Errorf("reputation = %v, want the disagreement penalty to still apply", reasons)
	}
}

func TestConfidenceScalesWithTrust(t *testing.T) {
	e, _ := newTestEngine(t, 3, DefaultParams())
	e.SetTrustSource(fixedTrust{fallback: 0.5})

	info, err := e.CreateChallenge("transaction_indexing", nil, 0)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}
	submitAll(t, e, info, map[string]any{"ok": true}, nil)

	res := e.GetResult(info.ID)
	if res.Confidence != 0.5 {
		t.Errorf("confidence = %v, want ratio 1.0 x trust 0.5", res.Confidence)
	}
}

func TestExpireDue(t *testing.T) {
	params := DefaultParams()
	params.SubmissionWindow = 5 * time.Millisecond
	e, reg := newTestEngine(t, 3, params)
	rep := newRepRecorder()
	e.SetReputationSink(rep)

	info, err := e.CreateChallenge("transaction_indexing", nil, 0)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}
	submitter := info.AssignedWorkers[0]
	if out := e.SubmitResult(info.ID, submitter, map[string]any{"ok": true}); !out.Accepted {
		t.Fatalf("SubmitResult() rejected: %s", out.Reason)
	}

	time.Sleep(20 * time.Millisecond)

	// Late submissions are refused.
	late := info.AssignedWorkers[1]
	out := e.SubmitResult(info.ID, late, map[string]any{"ok": true})
	if out.Accepted || out.Reason != RejectExpired {
		t.Errorf("late submission outcome = %+v, want expired rejection", out)
	}

	expired, _ := e.ExpireDue()
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}

	got := e.GetChallenge(info.ID)
	if got.Status != StatusExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}

	// Non-submitters get the missed-consensus penalty and their slot back.
	for _, id := range info.AssignedWorkers[1:] {
		reasons := rep.reasonsFor(id)
		if len(reasons) != 1 || reasons[0] != ReasonMissedConsensus {
			t.Errorf("reputation of %s = %v, want [missed_consensus]", id, reasons)
		}
		if reg.loadOf(id) != 0 {
			t.Errorf("load of %s = %d, want 0", id, reg.loadOf(id))
		}
	}
	// The submitter already released its slot and is not penalized.
	if got := rep.reasonsFor(submitter); len(got) != 0 {
		t.Errorf("reputation of submitter = %v, want none", got)
	}

	// Expiry is idempotent.
	expired, _ = e.ExpireDue()
	if expired != 0 {
		t.Errorf("second sweep expired = %d, want 0", expired)
	}
}

func TestRetentionSweepRemovesOldChallenges(t *testing.T) {
	params := DefaultParams()
	params.SubmissionWindow = time.Millisecond
	params.RetentionWindow = 0
	e, _ := newTestEngine(t, 3, params)

	info, err := e.CreateChallenge("transaction_indexing", nil, 0)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	expired, removed := e.ExpireDue()
	if expired != 1 || removed != 1 {
		t.Fatalf("expired, removed = %d, %d; want 1, 1", expired, removed)
	}
	if e.GetChallenge(info.ID) != nil {
		t.Error("challenge still retained after the retention window")
	}
}

func TestGetWorkerChallengesAndStats(t *testing.T) {
	e, _ := newTestEngine(t, 3, DefaultParams())

	first, err := e.CreateChallenge("transaction_indexing", nil, 0)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}
	submitAll(t, e, first, map[string]any{"n": float64(1)}, nil)

	second, err := e.CreateChallenge("transaction_indexing", nil, 0)
	if err != nil {
		t.Fatalf("CreateChallenge() error: %v", err)
	}

	worker := second.AssignedWorkers[0]
	challenges := e.GetWorkerChallenges(worker)
	if len(challenges) != 2 {
		t.Fatalf("len(challenges) = %d, want 2", len(challenges))
	}
	if challenges[0].CreatedAt < challenges[1].CreatedAt {
		t.Error("challenges not sorted newest first")
	}

	stats := e.GetStats()
	if stats.ConsensusReached != 1 {
		t.Errorf("reached = %d, want 1", stats.ConsensusReached)
	}
	if stats.Active != 1 {
		t.Errorf("active = %d, want 1", stats.Active)
	}
	if stats.TrackedWorkers != 3 {
		t.Errorf("tracked workers = %d, want 3", stats.TrackedWorkers)
	}
}
