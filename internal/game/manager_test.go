package game

import (
	"errors"
	"math"
	"testing"
	"time"
)

func newTestManager(t *testing.T, startingBalance float64) (*Manager, *fakeClock, *recorder) {
	t.Helper()
	cfg := DefaultCrashConfig()
	cfg.ServerSeed = testSeed
	cfg.StartingBalance = startingBalance

	clock := newFakeClock()
	rec := &recorder{}
	m := NewManager(cfg, rec)
	m.now = clock.Now
	m.launch = func(*crashRound) {}
	return m, clock, rec
}

// The first round under the test seed is cr_1700000000000_1 with a raw
// threshold of ~7.768.
func TestManager_TwoPlayerScenario(t *testing.T) {
	m, clock, rec := newTestManager(t, 100)

	ja, err := m.Join("A", 2, "seed-a")
	if err != nil {
		t.Fatalf("Join(A) error = %v", err)
	}
	jb, err := m.Join("B", 3, "seed-b")
	if err != nil {
		t.Fatalf("Join(B) error = %v", err)
	}
	if ja.RoundID != "cr_1700000000000_1" || jb.RoundID != ja.RoundID {
		t.Fatalf("round ids = %s, %s", ja.RoundID, jb.RoundID)
	}
	if ja.State != StatusCountdown {
		t.Errorf("State = %s, want COUNTDOWN", ja.State)
	}
	if m.Balance("A") != 100 || m.Balance("B") != 100 {
		t.Error("stakes must not be debited at join time")
	}

	clock.Advance(COUNTDOWN_TIME)
	r := m.round
	if !m.lockRound(r) {
		t.Fatal("lockRound() = false with two players")
	}
	if got := m.Balance("A"); got != 98 {
		t.Errorf("Balance(A) after lock = %v, want 98", got)
	}
	if got := m.Balance("B"); got != 97 {
		t.Errorf("Balance(B) after lock = %v, want 97", got)
	}

	clock.Advance(5850 * time.Millisecond)
	if m.tick(r) {
		t.Fatal("round crashed before 1.50x")
	}
	res, err := m.Cashout("A")
	if err != nil {
		t.Fatalf("Cashout(A) error = %v", err)
	}
	if res.AtMultiplier != 1.5 || res.Payout != 3 || res.BalanceAfter != 101 {
		t.Errorf("Cashout(A) = %+v, want 1.50x paying 3 to 101", res)
	}

	clock.Advance(30 * time.Second)
	if !m.tick(r) {
		t.Fatal("tick() did not crash past the threshold")
	}
	if _, err := m.Cashout("B"); !errors.Is(err, ErrRoundCrashed) {
		t.Errorf("Cashout(B) after crash error = %v, want ErrRoundCrashed", err)
	}

	clock.Advance(CRASH_PAUSE)
	m.finishRound(r)

	if got := m.Balance("B"); got != 97 {
		t.Errorf("Balance(B) = %v, want 97", got)
	}
	if m.CurrentRound() != nil {
		t.Error("round should be cleared after finish")
	}

	item, err := m.History().Get(ja.RoundID)
	if err != nil {
		t.Fatalf("History().Get() error = %v", err)
	}
	if item.ResultMultiplier != 7.77 || len(item.Players) != 2 {
		t.Errorf("history item = %+v", item)
	}
	if item.Players[0].CashedOut == nil || item.Players[1].CashedOut != nil {
		t.Errorf("history players = %+v", item.Players)
	}

	st := m.Stats()
	if st.Rounds != 1 || st.TotalStake != 5 || st.TotalPayout != 3 || st.HouseProfit != 2 {
		t.Errorf("Stats() = %+v", st)
	}
	if st.LastCrashMultiplier == nil || *st.LastCrashMultiplier != 7.77 {
		t.Errorf("LastCrashMultiplier = %v, want 7.77", st.LastCrashMultiplier)
	}

	crashed := rec.ofType(EventCrashed)
	if len(crashed) != 1 || crashed[0].(CrashedEvent).CrashMultiplier != 7.77 {
		t.Errorf("crashed events = %+v", crashed)
	}
	for _, want := range []string{EventRoundStarted, EventCashedOut, EventRoundFinished, EventHistoryUpdate} {
		if !rec.has(want) {
			t.Errorf("missing %s event", want)
		}
	}
	types := rec.types()
	if types[len(types)-1] != EventRoundUpdate {
		t.Errorf("last event = %s, want idle round_update", types[len(types)-1])
	}
}

func TestManager_JoinValidation(t *testing.T) {
	tests := []struct {
		name    string
		balance float64
		userID  string
		bet     float64
		wantErr error
	}{
		{"zero bet", 100, "u", 0, ErrInvalidBet},
		{"negative bet", 100, "u", -2, ErrInvalidBet},
		{"above max", 100, "u", 11, ErrInvalidBet},
		{"nan bet", 100, "u", math.NaN(), ErrInvalidBet},
		{"missing user", 100, "", 1, ErrInvalidPayload},
		{"insufficient balance", 5, "u", 6, ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, rec := newTestManager(t, tt.balance)

			if _, err := m.Join(tt.userID, tt.bet, ""); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Join() error = %v, want %v", err, tt.wantErr)
			}
			if m.CurrentRound() != nil {
				t.Error("rejected join opened a round")
			}
			if len(rec.types()) != 0 {
				t.Errorf("rejected join published %v", rec.types())
			}
		})
	}
}

func TestManager_RejoinOverwrites(t *testing.T) {
	m, _, _ := newTestManager(t, 100)

	m.Join("A", 2, "one")
	m.Join("A", 5, "two")

	view := m.CurrentRound()
	if len(view.Players) != 1 {
		t.Fatalf("players = %d, want 1", len(view.Players))
	}
	if p := view.Players[0]; p.Bet != 5 || p.ClientSeed != "two" {
		t.Errorf("player = %+v, want bet 5 seed two", p)
	}
}

func TestManager_JoinLocked(t *testing.T) {
	m, clock, _ := newTestManager(t, 100)
	m.Join("A", 1, "")

	clock.Advance(COUNTDOWN_TIME)
	if _, err := m.Join("B", 1, ""); !errors.Is(err, ErrRoundLocked) {
		t.Errorf("Join() at deadline error = %v, want ErrRoundLocked", err)
	}

	m.lockRound(m.round)
	if _, err := m.Join("B", 1, ""); !errors.Is(err, ErrRoundLocked) {
		t.Errorf("Join() while running error = %v, want ErrRoundLocked", err)
	}
	if view := m.CurrentRound(); view.State != StatusRunning || len(view.Players) != 1 {
		t.Errorf("running round changed: %+v", view)
	}
	if m.Balance("B") != 100 {
		t.Error("rejected join touched the ledger")
	}
}

func TestManager_CashoutRejections(t *testing.T) {
	m, clock, _ := newTestManager(t, 100)

	if _, err := m.Cashout("A"); !errors.Is(err, ErrNoActiveRound) {
		t.Errorf("Cashout() while idle error = %v", err)
	}

	m.Join("A", 2, "")
	if _, err := m.Cashout("A"); !errors.Is(err, ErrNoActiveRound) {
		t.Errorf("Cashout() in countdown error = %v", err)
	}

	clock.Advance(COUNTDOWN_TIME)
	m.lockRound(m.round)
	clock.Advance(time.Second)

	if _, err := m.Cashout("stranger"); !errors.Is(err, ErrPlayerNotInRound) {
		t.Errorf("Cashout(stranger) error = %v", err)
	}
	if _, err := m.Cashout("A"); err != nil {
		t.Fatalf("Cashout(A) error = %v", err)
	}
	balance := m.Balance("A")
	if _, err := m.Cashout("A"); !errors.Is(err, ErrAlreadyCashedOut) {
		t.Errorf("second Cashout(A) error = %v", err)
	}
	if m.Balance("A") != balance {
		t.Error("second cashout changed the balance")
	}
	if ErrorCode(ErrAlreadyCashedOut, CodeCashoutFailed) != CodeCashoutFailed {
		t.Error("already cashed out should surface as CASHOUT_FAILED")
	}
}

func TestManager_CrashWinsTies(t *testing.T) {
	m, clock, _ := newTestManager(t, 100)
	m.Join("A", 2, "")
	clock.Advance(COUNTDOWN_TIME)
	r := m.round
	m.lockRound(r)

	// Past the threshold but before the next tick has run.
	clock.Advance(30 * time.Second)
	if _, err := m.Cashout("A"); !errors.Is(err, ErrRoundCrashed) {
		t.Errorf("Cashout() past threshold error = %v, want ErrRoundCrashed", err)
	}
	if got := m.Balance("A"); got != 98 {
		t.Errorf("Balance(A) = %v, want 98", got)
	}
}

func TestManager_EmptyCountdownReturnsToIdle(t *testing.T) {
	m, clock, rec := newTestManager(t, 100)
	m.Join("A", 1, "")

	r := m.round
	r.players = map[string]*Player{}
	r.order = nil

	clock.Advance(COUNTDOWN_TIME)
	if m.lockRound(r) {
		t.Fatal("lockRound() = true for an empty round")
	}
	if m.CurrentRound() != nil {
		t.Error("empty round should be discarded")
	}
	if st := m.Stats(); st.Rounds != 0 || st.TotalStake != 0 {
		t.Errorf("Stats() = %+v, want untouched", st)
	}
	if rec.has(EventRoundStarted) {
		t.Error("empty round must not start")
	}

	next, err := m.Join("A", 1, "")
	if err != nil || next.RoundID == r.id {
		t.Errorf("Join() after empty round = %+v, %v", next, err)
	}
}

func TestManager_StaleCallbacksIgnored(t *testing.T) {
	m, clock, _ := newTestManager(t, 100)
	m.Join("A", 1, "")
	clock.Advance(COUNTDOWN_TIME)
	r := m.round
	m.lockRound(r)
	clock.Advance(30 * time.Second)
	m.tick(r)
	m.finishRound(r)

	if m.lockRound(r) {
		t.Error("lockRound() on a finished round should be a no-op")
	}
	if !m.tick(r) {
		t.Error("tick() on a finished round should report done")
	}
	m.finishRound(r)
	if m.History().Len() != 1 {
		t.Errorf("History().Len() = %d, want 1", m.History().Len())
	}
}

func TestManager_CurrentRoundView(t *testing.T) {
	m, clock, _ := newTestManager(t, 100)
	m.Join("A", 1, "")
	clock.Advance(4 * time.Second)

	view := m.CurrentRound()
	if view.TimeLeftMs != 6000 {
		t.Errorf("TimeLeftMs = %d, want 6000", view.TimeLeftMs)
	}
	if view.Fair.ServerSeedHash != m.Commitment() || view.Fair.Nonce != 1 {
		t.Errorf("Fair = %+v", view.Fair)
	}

	clock.Advance(6 * time.Second)
	m.lockRound(m.round)
	clock.Advance(10 * time.Second)

	view = m.CurrentRound()
	if view.State != StatusRunning || view.Multiplier != 2 {
		t.Errorf("running view = %+v, want multiplier 2 after one half-life", view)
	}
}

func TestManager_Lifecycle(t *testing.T) {
	cfg := DefaultCrashConfig()
	cfg.ServerSeed = testSeed
	cfg.Countdown = 50 * time.Millisecond
	cfg.BroadcastInterval = 10 * time.Millisecond
	cfg.TickInterval = 5 * time.Millisecond
	cfg.CrashPause = 10 * time.Millisecond
	cfg.HalfLife = 10 * time.Millisecond

	rec := &recorder{}
	m := NewManager(cfg, rec)
	defer m.Stop()

	if _, err := m.Join("A", 1, ""); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for m.History().Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("round did not finish, events %v", rec.types())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if m.CurrentRound() != nil {
		t.Error("round should be cleared after finish")
	}

	order := []string{EventRoundStarted, EventCrashed, EventRoundFinished, EventHistoryUpdate}
	types := rec.types()
	pos := 0
	for _, typ := range types {
		if pos < len(order) && typ == order[pos] {
			pos++
		}
	}
	if pos != len(order) {
		t.Errorf("events %v do not contain %v in order", types, order)
	}
	if got := len(rec.ofType(EventCrashed)); got != 1 {
		t.Errorf("crashed events = %d, want 1", got)
	}
}

func TestManager_StopRejectsJoins(t *testing.T) {
	m, _, _ := newTestManager(t, 100)
	m.Stop()

	if _, err := m.Join("A", 1, ""); err == nil {
		t.Error("Join() after Stop() should fail")
	}
}
