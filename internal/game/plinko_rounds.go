package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	PLINKO_RESULT_SPACING = 300 * time.Millisecond
	PLINKO_SETTLE_PAUSE   = 1500 * time.Millisecond
)

type PlinkoRoundsConfig struct {
	Countdown         time.Duration
	BroadcastInterval time.Duration
	ResultSpacing     time.Duration
	SettlePause       time.Duration
}

func DefaultPlinkoRoundsConfig() PlinkoRoundsConfig {
	return PlinkoRoundsConfig{
		Countdown:         COUNTDOWN_TIME,
		BroadcastInterval: BROADCAST_INTERVAL,
		ResultSpacing:     PLINKO_RESULT_SPACING,
		SettlePause:       PLINKO_SETTLE_PAUSE,
	}
}

type plinkoRound struct {
	id              string
	state           RoundStatus
	countdownEndsAt time.Time
	startedAt       time.Time
	entries         map[string]PlinkoBetRequest
	order           []string
}

// PlinkoRounds batches plinko bets into shared countdown rounds. Each locked
// entry is settled through the engine in join order.
type PlinkoRounds struct {
	mu       sync.Mutex
	cfg      PlinkoRoundsConfig
	engine   *PlinkoEngine
	pub      Publisher
	round    *plinkoRound
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	now    func() time.Time
	launch func(r *plinkoRound)
}

func NewPlinkoRounds(cfg PlinkoRoundsConfig, engine *PlinkoEngine, pub Publisher) *PlinkoRounds {
	if pub == nil {
		pub = nopPublisher{}
	}
	pr := &PlinkoRounds{
		cfg:      cfg,
		engine:   engine,
		pub:      pub,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
	pr.launch = func(r *plinkoRound) {
		pr.wg.Add(1)
		go pr.runRound(r)
	}
	return pr
}

func (pr *PlinkoRounds) GetType() GameType {
	return GameTypePlinkoRounds
}

func (pr *PlinkoRounds) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			pr.Stop()
		case <-pr.stopChan:
		}
	}()
	log.Println("[PLINKO] Round manager started")
	return nil
}

func (pr *PlinkoRounds) Stop() error {
	pr.stopOnce.Do(func() {
		pr.mu.Lock()
		close(pr.stopChan)
		pr.mu.Unlock()
		log.Println("[PLINKO] Round manager stopped")
	})
	pr.wg.Wait()
	return nil
}

func (pr *PlinkoRounds) Commitment() string {
	return pr.engine.Commitment()
}

func (pr *PlinkoRounds) GetState() interface{} {
	return pr.CurrentRound()
}

// Join enters req into the round in countdown. Rows default to 8.
func (pr *PlinkoRounds) Join(req PlinkoBetRequest) (JoinResult, error) {
	if req.Rows == 0 {
		req.Rows = PLINKO_ROWS
	}
	if err := pr.engine.Validate(req); err != nil {
		return JoinResult{}, err
	}
	if !pr.engine.CanAfford(req.UserID, req.Bet) {
		return JoinResult{}, ErrInsufficientBalance
	}

	pr.mu.Lock()
	defer pr.mu.Unlock()

	select {
	case <-pr.stopChan:
		return JoinResult{}, ErrInternal
	default:
	}

	now := pr.now()
	r := pr.round
	if r == nil {
		r = &plinkoRound{
			id:              fmt.Sprintf("round_%d_%s", unixMs(now), uuid.NewString()[:8]),
			state:           StatusCountdown,
			countdownEndsAt: now.Add(pr.cfg.Countdown),
			entries:         make(map[string]PlinkoBetRequest),
		}
		pr.round = r
		pr.launch(r)
		log.WithField("round_id", r.id).Info("[PLINKO] Countdown started")
	} else if r.state != StatusCountdown || !now.Before(r.countdownEndsAt) {
		return JoinResult{}, ErrRoundLocked
	}

	if _, ok := r.entries[req.UserID]; !ok {
		r.order = append(r.order, req.UserID)
	}
	r.entries[req.UserID] = req
	pr.pub.Publish(pr.countdownUpdateLocked(r, now))

	return JoinResult{
		RoundID:         r.id,
		State:           r.state,
		CountdownEndsAt: unixMs(r.countdownEndsAt),
	}, nil
}

func (pr *PlinkoRounds) CurrentRound() *RoundView {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	r := pr.round
	if r == nil {
		return nil
	}
	view := &RoundView{
		RoundID:         r.id,
		State:           r.state,
		CountdownEndsAt: unixMs(r.countdownEndsAt),
		Multiplier:      1.0,
		Players:         make([]Player, 0, len(r.order)),
		Fair:            FairProof{ServerSeedHash: pr.engine.Commitment()},
	}
	if r.state == StatusCountdown {
		view.TimeLeftMs = timeLeft(r.countdownEndsAt, pr.now())
	} else {
		view.StartedAt = unixMs(r.startedAt)
	}
	for _, userID := range r.order {
		e := r.entries[userID]
		view.Players = append(view.Players, Player{UserID: e.UserID, Bet: e.Bet, ClientSeed: e.ClientSeed})
	}
	return view
}

func (pr *PlinkoRounds) runRound(r *plinkoRound) {
	defer pr.wg.Done()

	wait := r.countdownEndsAt.Sub(pr.now())
	if !waitCountdown(wait, pr.cfg.BroadcastInterval, pr.stopChan, func() { pr.broadcastCountdown(r) }) {
		return
	}
	entries := pr.lockRound(r)
	if entries == nil {
		return
	}
	for i, req := range entries {
		if i > 0 && !sleep(pr.cfg.ResultSpacing, pr.stopChan) {
			return
		}
		pr.settle(r, req)
	}
	if !sleep(pr.cfg.SettlePause, pr.stopChan) {
		return
	}
	pr.finishRound(r)
}

func (pr *PlinkoRounds) broadcastCountdown(r *plinkoRound) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.round != r || r.state != StatusCountdown {
		return
	}
	pr.pub.Publish(pr.countdownUpdateLocked(r, pr.now()))
}

func (pr *PlinkoRounds) countdownUpdateLocked(r *plinkoRound, now time.Time) RoundUpdateEvent {
	id := r.id
	left := timeLeft(r.countdownEndsAt, now)
	return RoundUpdateEvent{
		State:      StatusCountdown,
		RoundID:    &id,
		Players:    len(r.entries),
		TimeLeftMs: &left,
	}
}

// lockRound freezes the entries and returns them in join order. Empty rounds
// go straight back to idle and yield nil.
func (pr *PlinkoRounds) lockRound(r *plinkoRound) []PlinkoBetRequest {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if pr.round != r || r.state != StatusCountdown {
		return nil
	}
	if len(r.entries) == 0 {
		pr.round = nil
		pr.pub.Publish(idleUpdate())
		return nil
	}

	r.state = StatusRunning
	r.startedAt = pr.now()
	entries := make([]PlinkoBetRequest, 0, len(r.order))
	for _, userID := range r.order {
		entries = append(entries, r.entries[userID])
	}

	log.WithField("round_id", r.id).Infof("[PLINKO] Round locked with %d players", len(entries))
	pr.pub.Publish(RoundStartedEvent{
		RoundID:       r.id,
		LockedPlayers: len(entries),
		StartedAt:     unixMs(r.startedAt),
		Fair:          &FairCommitment{ServerSeedHash: pr.engine.Commitment()},
	})
	return entries
}

func (pr *PlinkoRounds) settle(r *plinkoRound, req PlinkoBetRequest) {
	record, err := pr.engine.PlaceBet(context.Background(), req)
	if err != nil {
		log.WithFields(log.Fields{"round_id": r.id, "user_id": req.UserID}).
			WithError(err).Warn("[PLINKO] Settlement rejected")
		return
	}
	pr.pub.Publish(YourResultEvent{BetRecord: record, RoundID: r.id})
}

func (pr *PlinkoRounds) finishRound(r *plinkoRound) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if pr.round != r {
		return
	}
	pr.round = nil
	pr.pub.Publish(RoundFinishedEvent{RoundID: r.id, DurationMs: pr.now().Sub(r.startedAt).Milliseconds()})
	pr.pub.Publish(idleUpdate())
}
