package game

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestPlinkoRounds(t *testing.T) (*PlinkoRounds, *PlinkoEngine, *fakeClock, *recorder) {
	t.Helper()
	engine := newTestPlinko(100)
	clock := newFakeClock()
	rec := &recorder{}
	pr := NewPlinkoRounds(DefaultPlinkoRoundsConfig(), engine, rec)
	pr.now = clock.Now
	pr.launch = func(*plinkoRound) {}
	return pr, engine, clock, rec
}

func TestPlinkoRounds_SettlesInJoinOrder(t *testing.T) {
	pr, engine, clock, rec := newTestPlinkoRounds(t)

	ja, err := pr.Join(PlinkoBetRequest{UserID: "A", Bet: 1, Risk: PlinkoRiskEasy, ClientSeed: "client"})
	if err != nil {
		t.Fatalf("Join(A) error = %v", err)
	}
	if !strings.HasPrefix(ja.RoundID, "round_1700000000000_") {
		t.Errorf("RoundID = %s", ja.RoundID)
	}
	if _, err := pr.Join(PlinkoBetRequest{UserID: "B", Bet: 2, Rows: 8, Risk: PlinkoRiskHard}); err != nil {
		t.Fatalf("Join(B) error = %v", err)
	}
	if engine.Balance("A") != 100 {
		t.Error("joining must not debit")
	}

	clock.Advance(COUNTDOWN_TIME)
	r := pr.round
	entries := pr.lockRound(r)
	if len(entries) != 2 || entries[0].UserID != "A" || entries[1].UserID != "B" {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Rows != PLINKO_ROWS {
		t.Errorf("rows = %d, want default %d", entries[0].Rows, PLINKO_ROWS)
	}

	if _, err := pr.Join(PlinkoBetRequest{UserID: "C", Bet: 1, Risk: PlinkoRiskEasy}); !errors.Is(err, ErrRoundLocked) {
		t.Errorf("Join() while settling error = %v, want ErrRoundLocked", err)
	}

	for _, e := range entries {
		pr.settle(r, e)
	}
	clock.Advance(time.Second)
	pr.finishRound(r)

	results := rec.ofType(EventYourResult)
	if len(results) != 2 {
		t.Fatalf("your_result events = %d, want 2", len(results))
	}
	first := results[0].(YourResultEvent)
	if first.UserID != "A" || first.RoundID != r.id || first.Bin != 3 {
		t.Errorf("first result = %+v", first)
	}
	if got := engine.Balance("A"); got != 100.2 {
		t.Errorf("Balance(A) = %v, want 100.2", got)
	}
	if engine.Stats().TotalBets != 2 {
		t.Errorf("TotalBets = %d, want 2", engine.Stats().TotalBets)
	}

	if pr.CurrentRound() != nil {
		t.Error("round should be cleared")
	}
	types := rec.types()
	if types[len(types)-2] != EventRoundFinished || types[len(types)-1] != EventRoundUpdate {
		t.Errorf("events end with %v", types[len(types)-2:])
	}
}

func TestPlinkoRounds_JoinValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     PlinkoBetRequest
		wantErr error
	}{
		{"bad rows", PlinkoBetRequest{UserID: "u", Bet: 1, Rows: 12, Risk: PlinkoRiskEasy}, ErrInvalidRows},
		{"bad risk", PlinkoBetRequest{UserID: "u", Bet: 1, Risk: "wild"}, ErrInvalidRisk},
		{"bad bet", PlinkoBetRequest{UserID: "u", Bet: 50, Risk: PlinkoRiskEasy}, ErrInvalidBet},
		{"max bet accepted", PlinkoBetRequest{UserID: "u", Bet: 10, Risk: PlinkoRiskEasy}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr, _, _, _ := newTestPlinkoRounds(t)
			_, err := pr.Join(tt.req)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Join() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Join() error = %v, want %v", err, tt.wantErr)
			}
			if pr.CurrentRound() != nil {
				t.Error("rejected join opened a round")
			}
		})
	}
}

func TestPlinkoRounds_InsufficientBalance(t *testing.T) {
	engine := NewPlinkoEngine(PlinkoConfig{MaxBet: 10, StartingBalance: 1, ServerSeed: testSeed})
	pr := NewPlinkoRounds(DefaultPlinkoRoundsConfig(), engine, nil)
	pr.launch = func(*plinkoRound) {}

	if _, err := pr.Join(PlinkoBetRequest{UserID: "u", Bet: 2, Risk: PlinkoRiskEasy}); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Join() error = %v, want ErrInsufficientBalance", err)
	}
}

func TestPlinkoRounds_Lifecycle(t *testing.T) {
	engine := newTestPlinko(100)
	rec := &recorder{}
	pr := NewPlinkoRounds(PlinkoRoundsConfig{
		Countdown:         40 * time.Millisecond,
		BroadcastInterval: 10 * time.Millisecond,
		ResultSpacing:     5 * time.Millisecond,
		SettlePause:       5 * time.Millisecond,
	}, engine, rec)
	defer pr.Stop()

	pr.Join(PlinkoBetRequest{UserID: "A", Bet: 1, Risk: PlinkoRiskMedium})
	pr.Join(PlinkoBetRequest{UserID: "B", Bet: 1, Risk: PlinkoRiskMedium})

	deadline := time.Now().Add(3 * time.Second)
	for !rec.has(EventRoundFinished) {
		if time.Now().After(deadline) {
			t.Fatalf("round did not finish, events %v", rec.types())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := len(rec.ofType(EventYourResult)); got != 2 {
		t.Errorf("your_result events = %d, want 2", got)
	}
	if pr.CurrentRound() != nil {
		t.Error("round should be cleared")
	}
}
