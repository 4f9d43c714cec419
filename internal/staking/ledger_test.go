package staking

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/attestnet/attestnet/internal/storage"
	"github.com/attestnet/attestnet/pkg/types"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return newTestLedgerWith(t, storage.NewMemory(), DefaultParams())
}

func newTestLedgerWith(t *testing.T, db storage.DB, params Params) *Ledger {
	t.Helper()
	l, err := NewLedger(db, params, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLedger() error: %v", err)
	}
	return l
}

func amt(t *testing.T, s string) types.Amount {
	t.Helper()
	a, err := types.ParseAmount(s)
	if err != nil {
		t.Fatalf("ParseAmount(%q) error: %v", s, err)
	}
	return a
}

// fixedRates is an AgreementRates stub returning one rate for all workers.
type fixedRates struct {
	rate float64
	ok   bool
}

func (f fixedRates) AgreementRate(string) (float64, bool) { return f.rate, f.ok }

func TestStakeBelowMinimum(t *testing.T) {
	l := newTestLedger(t)

	err := l.Stake("alice", types.NewAmount(999), 0)
	if !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("Stake() error = %v, want ErrBelowMinimum", err)
	}
	if !strings.Contains(err.Error(), "minimum") {
		t.Errorf("error %q does not mention the minimum", err)
	}
	if l.HasStake("alice") {
		t.Error("rejected stake must not create a record")
	}
}

func TestStakeRejectsNonPositive(t *testing.T) {
	l := newTestLedger(t)

	if err := l.Stake("alice", types.NewAmount(0), 0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Stake(0) error = %v, want ErrInvalidAmount", err)
	}
	if err := l.Stake("alice", types.NewAmount(-5000), 0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Stake(-5000) error = %v, want ErrInvalidAmount", err)
	}
}

func TestStakeAccumulates(t *testing.T) {
	l := newTestLedger(t)

	if err := l.Stake("alice", types.NewAmount(1_000), 0); err != nil {
		t.Fatalf("Stake() error: %v", err)
	}
	if err := l.Stake("alice", types.NewAmount(2_500), 0); err != nil {
		t.Fatalf("Stake() error: %v", err)
	}

	info := l.GetStakeInfo("alice")
	if info == nil {
		t.Fatal("GetStakeInfo() = nil")
	}
	if got := info.StakedAmount.String(); got != "3500" {
		t.Errorf("staked = %s, want 3500", got)
	}
	if info.IsValidator {
		t.Error("3500 staked is below the validator threshold")
	}
}

func TestValidatorThreshold(t *testing.T) {
	l := newTestLedger(t)

	if err := l.Stake("val", types.NewAmount(10_000), 0); err != nil {
		t.Fatalf("Stake() error: %v", err)
	}

	info := l.GetStakeInfo("val")
	if !info.IsValidator {
		t.Error("10000 staked must grant validator status")
	}
	if !l.IsCurrentValidator("val") {
		t.Error("IsCurrentValidator() = false before any epoch")
	}
}

func TestUnstakeWhileLocked(t *testing.T) {
	l := newTestLedger(t)

	if err := l.Stake("alice", types.NewAmount(5_000), time.Hour); err != nil {
		t.Fatalf("Stake() error: %v", err)
	}

	err := l.Unstake("alice", types.NewAmount(1_000))
	if !errors.Is(err, ErrStakeLocked) {
		t.Fatalf("Unstake() error = %v, want ErrStakeLocked", err)
	}
	if !strings.Contains(err.Error(), "locked") {
		t.Errorf("error %q does not mention the lock", err)
	}
}

func TestLocksAreMonotonic(t *testing.T) {
	l := newTestLedger(t)

	if err := l.Stake("alice", types.NewAmount(5_000), time.Hour); err != nil {
		t.Fatalf("Stake() error: %v", err)
	}
	first := l.GetStakeInfo("alice").LockedUntil

	// A later unlocked stake must not shorten the existing lock.
	if err := l.Stake("alice", types.NewAmount(1_000), 0); err != nil {
		t.Fatalf("Stake() error: %v", err)
	}
	if got := l.GetStakeInfo("alice").LockedUntil; got != first {
		t.Errorf("lockedUntil changed from %d to %d", first, got)
	}

	// A longer lock extends it.
	if err := l.Stake("alice", types.NewAmount(1_000), 2*time.Hour); err != nil {
		t.Fatalf("Stake() error: %v", err)
	}
	if got := l.GetStakeInfo("alice").LockedUntil; got <= first {
		t.Errorf("lockedUntil = %d, want > %d", got, first)
	}
}

func TestUnstakeErrors(t *testing.T) {
	l := newTestLedger(t)

	if err := l.Unstake("ghost", types.NewAmount(100)); !errors.Is(err, ErrNoStake) {
		t.Errorf("Unstake(unknown) error = %v, want ErrNoStake", err)
	}

	if err := l.Stake("alice", types.NewAmount(2_000), 0); err != nil {
		t.Fatalf("Stake() error: %v", err)
	}
	if err := l.Unstake("alice", types.NewAmount(3_000)); !errors.Is(err, ErrInsufficientStake) {
		t.Errorf("Unstake(too much) error = %v, want ErrInsufficientStake", err)
	}
	if err := l.Unstake("alice", types.NewAmount(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Unstake(-1) error = %v, want ErrInvalidAmount", err)
	}
}

func TestUnstakeToZeroRemovesRecord(t *testing.T) {
	l := newTestLedger(t)

	if err := l.Stake("alice", types.NewAmount(2_000), 0); err != nil {
		t.Fatalf("Stake() error: %v", err)
	}
	if err := l.Unstake("alice", types.NewAmount(2_000)); err != nil {
		t.Fatalf("Unstake() error: %v", err)
	}

	if l.HasStake("alice") {
		t.Error("HasStake() = true after full withdrawal")
	}
	if l.GetStakeInfo("alice") != nil {
		t.Error("GetStakeInfo() != nil after full withdrawal")
	}
}

func TestSlashUnknownStakerIsNoop(t *testing.T) {
	l := newTestLedger(t)

	res := l.Slash("ghost", ViolationFraudDetected, "c1", "")
	if res.Slashed {
		t.Error("Slash() on unknown staker must not report slashed")
	}
	if !res.Amount.IsZero() {
		t.Errorf("slash amount = %s, want 0", res.Amount)
	}
}

func TestSlashRates(t *testing.T) {
	tests := []struct {
		violation ViolationType
		staked    int64
		want      string
	}{
		{ViolationMissedConsensus, 10_000, "50"},         // 0.5%
		{ViolationConsensusDisagreement, 10_000, "100"},  // 1%
		{ViolationRepeatedViolations, 10_000, "500"},     // 5%
		{ViolationFraudDetected, 10_000, "2500"},         // 25%
		{ViolationConsensusDisagreement, 1_050, "10"},    // truncating division
	}

	for _, tt := range tests {
		t.Run(string(tt.violation), func(t *testing.T) {
			l := newTestLedger(t)
			if err := l.Stake("w", types.NewAmount(tt.staked), 0); err != nil {
				t.Fatalf("Stake() error: %v", err)
			}

			res := l.Slash("w", tt.violation, "c1", "test")
			if !res.Slashed {
				t.Fatal("Slash() did not slash")
			}
			if got := res.Amount.String(); got != tt.want {
				t.Errorf("slash amount = %s, want %s", got, tt.want)
			}

			info := l.GetStakeInfo("w")
			if got := info.SlashedAmount.String(); got != tt.want {
				t.Errorf("recorded slashed = %s, want %s", got, tt.want)
			}
			if len(info.Violations) != 1 {
				t.Errorf("len(violations) = %d, want 1", len(info.Violations))
			}
		})
	}
}

func TestRepeatOffenderEscalation(t *testing.T) {
	l := newTestLedger(t)

	if err := l.Stake("w", types.NewAmount(100_000), 0); err != nil {
		t.Fatalf("Stake() error: %v", err)
	}

	// The first two disagreements take the base 1%: 1000, then 990.
	for i, want := range []string{"1000", "990"} {
		res := l.Slash("w", ViolationConsensusDisagreement, "c", "")
		if got := res.Amount.String(); got != want {
			t.Fatalf("slash %d = %s, want %s", i+1, got, want)
		}
	}

	// The third disagreement counts itself toward the threshold and layers
	// the 5% repeated_violations penalty: 98010/100 + 98010/20 = 980 + 4900.
	res := l.Slash("w", ViolationConsensusDisagreement, "c3", "")
	if got := res.Amount.String(); got != "5880" {
		t.Errorf("escalated slash = %s, want 5880", got)
	}

	info := l.GetStakeInfo("w")
	if got := info.StakedAmount.String(); got != "92130" {
		t.Errorf("staked after 3 slashes = %s, want 92130", got)
	}
	// Three consecutive disagreements must cost strictly more than a flat
	// 3 x 1% of the original stake.
	if info.SlashedAmount.Cmp(types.NewAmount(3_000)) <= 0 {
		t.Errorf("total slashed = %s, want > 3000", info.SlashedAmount)
	}
	if len(info.Violations) != 4 {
		t.Errorf("len(violations) = %d, want 4 (3 disagreements + 1 layered)", len(info.Violations))
	}
}

func TestRepeatOffenderRespectsAgreementRate(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Stake("w", types.NewAmount(100_000), 0); err != nil {
		t.Fatalf("Stake() error: %v", err)
	}
	for i := 0; i < 2; i++ {
		l.Slash("w", ViolationConsensusDisagreement, "c", "")
	}

	// A healthy agreement rate suppresses the escalation, even at the
	// violation threshold.
	l.SetAgreementRates(fixedRates{rate: 0.9, ok: true})
	staked := l.GetStakeInfo("w").StakedAmount
	res := l.Slash("w", ViolationConsensusDisagreement, "c3", "")
	if got, want := res.Amount.String(), staked.Div(100).String(); got != want {
		t.Errorf("slash with healthy rate = %s, want base %s", got, want)
	}

	// A poor rate triggers it.
	l.SetAgreementRates(fixedRates{rate: 0.3, ok: true})
	staked = l.GetStakeInfo("w").StakedAmount
	res = l.Slash("w", ViolationConsensusDisagreement, "c4", "")
	want := staked.Div(100).Add(staked.Div(20)).String()
	if got := res.Amount.String(); got != want {
		t.Errorf("slash with poor rate = %s, want %s", got, want)
	}
}

func TestSlashCapsAtStakedAmount(t *testing.T) {
	params := DefaultParams()
	params.SlashDivisors[ViolationFraudDetected] = 1
	l := newTestLedgerWith(t, storage.NewMemory(), params)

	if err := l.Stake("w", types.NewAmount(5_000), 0); err != nil {
		t.Fatalf("Stake() error: %v", err)
	}

	res := l.Slash("w", ViolationFraudDetected, "c1", "")
	if got := res.Amount.String(); got != "5000" {
		t.Errorf("slash amount = %s, want full 5000", got)
	}
	if l.HasStake("w") {
		t.Error("slashed-out staker must be removed from the ledger")
	}
}

func TestGetAllStakersSortedDescending(t *testing.T) {
	l := newTestLedger(t)

	l.Stake("small", types.NewAmount(1_000), 0)
	l.Stake("big", types.NewAmount(50_000), 0)
	l.Stake("mid", types.NewAmount(5_000), 0)

	all := l.GetAllStakers()
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].StakerID != "big" || all[1].StakerID != "mid" || all[2].StakerID != "small" {
		t.Errorf("order = %s, %s, %s; want big, mid, small",
			all[0].StakerID, all[1].StakerID, all[2].StakerID)
	}
}

func TestLeaderboardFiltersAndLimits(t *testing.T) {
	l := newTestLedger(t)

	l.Stake("v1", types.NewAmount(30_000), 0)
	l.Stake("v2", types.NewAmount(20_000), 0)
	l.Stake("v3", types.NewAmount(10_000), 0)
	l.Stake("nobody", types.NewAmount(1_000), 0)

	board := l.GetValidatorLeaderboard(2)
	if len(board) != 2 {
		t.Fatalf("len = %d, want 2", len(board))
	}
	if board[0].StakerID != "v1" || board[1].StakerID != "v2" {
		t.Errorf("leaderboard = %s, %s; want v1, v2", board[0].StakerID, board[1].StakerID)
	}
}

func TestStakingStats(t *testing.T) {
	l := newTestLedger(t)

	l.Stake("v", types.NewAmount(10_000), 0)
	l.Stake("w", types.NewAmount(2_000), 0)
	l.Slash("w", ViolationConsensusDisagreement, "c1", "")

	stats := l.GetStakingStats()
	if stats.Stakers != 2 {
		t.Errorf("stakers = %d, want 2", stats.Stakers)
	}
	if stats.Validators != 1 {
		t.Errorf("validators = %d, want 1", stats.Validators)
	}
	if got := stats.TotalStaked.String(); got != "11980" {
		t.Errorf("total staked = %s, want 11980", got)
	}
	if got := stats.TotalSlashed.String(); got != "20" {
		t.Errorf("total slashed = %s, want 20", got)
	}
}

func TestLedgerPersistsAcrossRestart(t *testing.T) {
	db := storage.NewMemory()

	l := newTestLedgerWith(t, db, DefaultParams())
	if err := l.Stake("alice", types.NewAmount(15_000), time.Hour); err != nil {
		t.Fatalf("Stake() error: %v", err)
	}
	l.Slash("alice", ViolationConsensusDisagreement, "c1", "dissent")

	// A fresh ledger over the same database sees the same state.
	reloaded := newTestLedgerWith(t, db, DefaultParams())
	info := reloaded.GetStakeInfo("alice")
	if info == nil {
		t.Fatal("record lost across restart")
	}
	if got := info.StakedAmount.String(); got != "14850" {
		t.Errorf("staked = %s, want 14850", got)
	}
	if len(info.Violations) != 1 {
		t.Errorf("len(violations) = %d, want 1", len(info.Violations))
	}
	if info.LockedUntil == 0 {
		t.Error("lock lost across restart")
	}
}
