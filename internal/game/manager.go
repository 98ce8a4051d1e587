package game

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	TICK_INTERVAL    = 100 * time.Millisecond
	CRASH_PAUSE      = 1000 * time.Millisecond
	GROWTH_HALF_LIFE = 10 * time.Second
	HISTORY_CHIPS    = 20
)

type CrashConfig struct {
	MaxBet            float64
	StartingBalance   float64
	Countdown         time.Duration
	BroadcastInterval time.Duration
	TickInterval      time.Duration
	CrashPause        time.Duration
	HalfLife          time.Duration
	HistoryLimit      int
	ServerSeed        string
	Curve             CrashCurve
}

func DefaultCrashConfig() CrashConfig {
	return CrashConfig{
		MaxBet:            MAX_BET,
		StartingBalance:   STARTING_BALANCE,
		Countdown:         COUNTDOWN_TIME,
		BroadcastInterval: BROADCAST_INTERVAL,
		TickInterval:      TICK_INTERVAL,
		CrashPause:        CRASH_PAUSE,
		HalfLife:          GROWTH_HALF_LIFE,
		HistoryLimit:      HISTORY_LIMIT,
		Curve:             DefaultCrashCurve(),
	}
}

type crashRound struct {
	id              string
	state           RoundStatus
	nonce           uint64
	countdownEndsAt time.Time
	startedAt       time.Time
	players         map[string]*Player
	order           []string
	threshold       CrashThreshold
	publicSeed      string
	crashed         bool
}

// Manager runs crash rounds. All round state sits behind mu; each round is
// driven by one lifecycle goroutine that owns its timers.
type Manager struct {
	mu        sync.Mutex
	cfg       CrashConfig
	fair      *Fairness
	ledger    *Ledger
	history   *History
	pub       Publisher
	archive   Archiver
	round     *crashRound
	counter   uint64
	rounds    int
	tally     tally
	lastCrash *float64
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	now    func() time.Time
	launch func(r *crashRound)
}

func NewManager(cfg CrashConfig, pub Publisher) *Manager {
	if pub == nil {
		pub = nopPublisher{}
	}
	m := &Manager{
		cfg:      cfg,
		fair:     NewFairness(cfg.ServerSeed, cfg.Curve),
		ledger:   NewLedger(cfg.StartingBalance),
		history:  NewHistory(cfg.HistoryLimit),
		pub:      pub,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
	m.launch = func(r *crashRound) {
		m.wg.Add(1)
		go m.runRound(r)
	}
	return m
}

func (m *Manager) SetArchiver(a Archiver) {
	m.archive = a
}

func (m *Manager) GetType() GameType {
	return GameTypeCrash
}

// Start stops the manager once ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			m.Stop()
		case <-m.stopChan:
		}
	}()
	log.Println("[CRASH] Engine started")
	return nil
}

// Stop halts the active round's goroutine and waits for it to exit.
func (m *Manager) Stop() error {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		close(m.stopChan)
		m.mu.Unlock()
		log.Println("[CRASH] Game loop stopped")
	})
	m.wg.Wait()
	return nil
}

func (m *Manager) GetState() interface{} {
	return m.CurrentRound()
}

func (m *Manager) Commitment() string {
	return m.fair.Commitment()
}

func (m *Manager) Balance(userID string) float64 {
	return m.ledger.Balance(userID)
}

func (m *Manager) History() *History {
	return m.history
}

func (m *Manager) Stats() CrashStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stake, payout, profit := m.tally.totals()
	stats := CrashStats{
		Rounds:      m.rounds,
		TotalStake:  stake,
		TotalPayout: payout,
		HouseProfit: profit,
	}
	if m.lastCrash != nil {
		last := *m.lastCrash
		stats.LastCrashMultiplier = &last
	}
	return stats
}

// Join adds userID to the round in countdown, opening one if the game is idle.
// Stakes are only debited when the round locks.
func (m *Manager) Join(userID string, bet float64, clientSeed string) (JoinResult, error) {
	if userID == "" {
		return JoinResult{}, ErrInvalidPayload
	}
	if math.IsNaN(bet) || bet <= 0 || bet > m.cfg.MaxBet {
		return JoinResult{}, ErrInvalidBet
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.stopChan:
		return JoinResult{}, ErrInternal
	default:
	}

	if !m.ledger.CanAfford(userID, bet) {
		return JoinResult{}, ErrInsufficientBalance
	}

	now := m.now()
	r := m.round
	if r == nil {
		r = m.newRoundLocked(now)
		m.round = r
		m.launch(r)
	} else if r.state != StatusCountdown || !now.Before(r.countdownEndsAt) {
		return JoinResult{}, ErrRoundLocked
	}

	if p, ok := r.players[userID]; ok {
		p.Bet = bet
		p.ClientSeed = clientSeed
	} else {
		r.players[userID] = &Player{UserID: userID, Bet: bet, ClientSeed: clientSeed}
		r.order = append(r.order, userID)
	}

	log.WithFields(log.Fields{"round_id": r.id, "user_id": userID}).Infof("[CRASH] Joined with %.2f", bet)
	m.pub.Publish(m.countdownUpdateLocked(r, now))

	return JoinResult{
		RoundID:         r.id,
		State:           r.state,
		CountdownEndsAt: unixMs(r.countdownEndsAt),
	}, nil
}

func (m *Manager) newRoundLocked(now time.Time) *crashRound {
	m.counter++
	id := fmt.Sprintf("cr_%d_%d", unixMs(now), m.counter)
	r := &crashRound{
		id:              id,
		state:           StatusCountdown,
		nonce:           m.counter,
		countdownEndsAt: now.Add(m.cfg.Countdown),
		players:         make(map[string]*Player),
		threshold:       m.fair.CrashThreshold(id),
		publicSeed:      randomHex(16),
	}
	log.WithField("round_id", id).Infof("[CRASH] Countdown started, commitment %s...", m.fair.Commitment()[:16])
	return r
}

// Cashout settles userID at the live multiplier. A request that arrives when
// the crash condition already holds loses to the crash.
func (m *Manager) Cashout(userID string) (CashoutResult, error) {
	if userID == "" {
		return CashoutResult{}, ErrInvalidPayload
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.round
	if r == nil || r.state != StatusRunning {
		return CashoutResult{}, ErrNoActiveRound
	}
	p, ok := r.players[userID]
	if !ok {
		return CashoutResult{}, ErrPlayerNotInRound
	}
	if p.CashedOut != nil {
		return CashoutResult{}, ErrAlreadyCashedOut
	}

	now := m.now()
	live := m.liveMultiplier(r, now)
	if r.crashed || live >= r.threshold.Raw {
		return CashoutResult{}, ErrRoundCrashed
	}

	payout := mulRound2(p.Bet, live)
	balance := m.ledger.Credit(userID, payout)
	p.CashedOut = &CashoutInfo{AtMultiplier: live, Payout: payout, AtMs: unixMs(now)}
	m.tally.addPayout(payout)

	log.WithFields(log.Fields{"round_id": r.id, "user_id": userID}).
		Infof("[CRASH] Cashed out at %.2fx (payout %.2f)", live, payout)

	m.pub.Publish(CashedOutEvent{
		RoundID:      r.id,
		UserID:       userID,
		AtMultiplier: live,
		Payout:       payout,
		BalanceAfter: balance,
		CreatedAt:    now.UTC().Format(time.RFC3339Nano),
	})

	return CashoutResult{
		RoundID:      r.id,
		UserID:       userID,
		AtMultiplier: live,
		Payout:       payout,
		BalanceAfter: balance,
	}, nil
}

// CurrentRound returns a snapshot of the active round, or nil when idle.
func (m *Manager) CurrentRound() *RoundView {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.round
	if r == nil {
		return nil
	}
	now := m.now()
	view := &RoundView{
		RoundID:         r.id,
		State:           r.state,
		CountdownEndsAt: unixMs(r.countdownEndsAt),
		Multiplier:      1.0,
		Players:         r.snapshotPlayers(),
		Fair:            FairProof{ServerSeedHash: m.fair.Commitment(), Nonce: r.nonce},
	}
	if r.state == StatusCountdown {
		view.TimeLeftMs = timeLeft(r.countdownEndsAt, now)
	} else {
		view.StartedAt = unixMs(r.startedAt)
		view.Multiplier = m.liveMultiplier(r, now)
	}
	return view
}

func (m *Manager) liveMultiplier(r *crashRound, now time.Time) float64 {
	if r.startedAt.IsZero() {
		return 1.0
	}
	growth := math.Ln2 / m.cfg.HalfLife.Seconds()
	elapsed := now.Sub(r.startedAt).Seconds()
	return round2(math.Exp(growth * elapsed))
}

func (m *Manager) runRound(r *crashRound) {
	defer m.wg.Done()

	wait := r.countdownEndsAt.Sub(m.now())
	if !waitCountdown(wait, m.cfg.BroadcastInterval, m.stopChan, func() { m.broadcastCountdown(r) }) {
		return
	}
	if !m.lockRound(r) {
		return
	}
	if !m.runUntilCrash(r) {
		return
	}
	if !sleep(m.cfg.CrashPause, m.stopChan) {
		return
	}
	m.finishRound(r)
}

func (m *Manager) runUntilCrash(r *crashRound) bool {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if m.tick(r) {
				return true
			}
		case <-m.stopChan:
			return false
		}
	}
}

func (m *Manager) broadcastCountdown(r *crashRound) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.round != r || r.state != StatusCountdown {
		return
	}
	m.pub.Publish(m.countdownUpdateLocked(r, m.now()))
}

func (m *Manager) countdownUpdateLocked(r *crashRound, now time.Time) RoundUpdateEvent {
	id := r.id
	left := timeLeft(r.countdownEndsAt, now)
	return RoundUpdateEvent{
		State:      StatusCountdown,
		RoundID:    &id,
		Players:    len(r.players),
		TimeLeftMs: &left,
	}
}

// lockRound ends the countdown. An empty round is discarded; otherwise every
// stake is debited and the round starts running. It reports whether r runs.
func (m *Manager) lockRound(r *crashRound) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.round != r || r.state != StatusCountdown {
		return false
	}
	if len(r.players) == 0 {
		m.round = nil
		log.WithField("round_id", r.id).Info("[CRASH] No players, back to idle")
		m.pub.Publish(idleUpdate())
		return false
	}

	for _, userID := range r.order {
		p := r.players[userID]
		m.ledger.Debit(userID, p.Bet)
		m.tally.addStake(p.Bet)
	}
	r.state = StatusRunning
	r.startedAt = m.now()
	m.rounds++

	log.WithField("round_id", r.id).Infof("[CRASH] Round running with %d players", len(r.players))
	m.pub.Publish(RoundStartedEvent{
		RoundID:       r.id,
		LockedPlayers: len(r.players),
		StartedAt:     unixMs(r.startedAt),
		Fair:          &FairCommitment{ServerSeedHash: m.fair.Commitment()},
	})
	return true
}

// tick advances the running round and reports whether it is over.
func (m *Manager) tick(r *crashRound) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.round != r || r.state != StatusRunning || r.crashed {
		return true
	}

	live := m.liveMultiplier(r, m.now())
	if live >= r.threshold.Raw {
		r.crashed = true
		display := r.threshold.Display
		m.lastCrash = &display

		log.WithField("round_id", r.id).Infof("[CRASH] Crashed at %.2fx", display)
		m.pub.Publish(CrashedEvent{RoundID: r.id, CrashMultiplier: display})
		return true
	}

	id := r.id
	m.pub.Publish(RoundUpdateEvent{
		State:      StatusRunning,
		RoundID:    &id,
		Players:    len(r.players),
		Multiplier: &live,
	})
	return false
}

// finishRound records the crashed round in history and returns to idle.
func (m *Manager) finishRound(r *crashRound) {
	m.mu.Lock()

	if m.round != r || !r.crashed {
		m.mu.Unlock()
		return
	}

	now := m.now()
	players := make([]PlayerResult, 0, len(r.order))
	for _, userID := range r.order {
		p := r.players[userID]
		players = append(players, PlayerResult{UserID: p.UserID, Bet: p.Bet, CashedOut: p.CashedOut})
	}
	item := HistoryItem{
		RoundID:             r.id,
		ResultMultiplier:    r.threshold.Display,
		ResultMultiplierRaw: r.threshold.Raw,
		StartedAt:           unixMs(r.startedAt),
		FinishedAt:          unixMs(now),
		ServerSeedHash:      m.fair.Commitment(),
		PublicSeed:          r.publicSeed,
		Players:             players,
	}
	m.history.Record(item)
	m.round = nil

	m.pub.Publish(RoundFinishedEvent{RoundID: r.id, DurationMs: now.Sub(r.startedAt).Milliseconds()})
	m.pub.Publish(HistoryUpdateEvent{Latest: &item, Chips: m.history.DedupByOutcome(HISTORY_CHIPS)})
	m.pub.Publish(idleUpdate())
	m.mu.Unlock()

	if m.archive != nil {
		if err := m.archive.ArchiveRound(context.Background(), item); err != nil {
			log.WithError(err).Warn("[CRASH] Failed to archive round")
		}
	}
}

func (r *crashRound) snapshotPlayers() []Player {
	out := make([]Player, 0, len(r.order))
	for _, userID := range r.order {
		p := *r.players[userID]
		if p.CashedOut != nil {
			c := *p.CashedOut
			p.CashedOut = &c
		}
		out = append(out, p)
	}
	return out
}

func timeLeft(deadline, now time.Time) int64 {
	left := deadline.Sub(now).Milliseconds()
	if left < 0 {
		return 0
	}
	return left
}
