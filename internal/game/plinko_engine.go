package game

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const PLINKO_ROWS = 8

// PlinkoRisk represents the risk level
type PlinkoRisk string

const (
	PlinkoRiskEasy   PlinkoRisk = "easy"
	PlinkoRiskMedium PlinkoRisk = "medium"
	PlinkoRiskHard   PlinkoRisk = "hard"
)

func (r PlinkoRisk) Valid() bool {
	_, ok := plinkoMultipliers[r]
	return ok
}

// Payout multipliers per risk level and row count, indexed by bin.
var plinkoMultipliers = map[PlinkoRisk]map[int][]float64{
	PlinkoRiskEasy: {
		8: {0.5, 0.8, 1.0, 1.2, 1.5, 1.2, 1.0, 0.8, 0.5},
	},
	PlinkoRiskMedium: {
		8: {0.2, 0.6, 0.9, 1.2, 2.4, 1.2, 0.9, 0.6, 0.2},
	},
	PlinkoRiskHard: {
		8: {0.1, 0.3, 0.8, 1.5, 5.6, 1.5, 0.8, 0.3, 0.1},
	},
}

type BetResult string

const (
	ResultWin  BetResult = "win"
	ResultLoss BetResult = "loss"
	ResultPush BetResult = "push"
)

type BetProof struct {
	ServerSeedHash string `json:"serverSeedHash"`
	ClientSeed     string `json:"clientSeed"`
	Nonce          uint64 `json:"nonce"`
}

// BetRecord is a settled plinko bet. Records are never modified once
// appended to the bet log.
type BetRecord struct {
	BetID        string     `json:"betId"`
	UserID       string     `json:"userId"`
	Bet          float64    `json:"bet"`
	Rows         int        `json:"rows"`
	Risk         PlinkoRisk `json:"risk"`
	Path         []int      `json:"path"`
	Bin          int        `json:"bin"`
	Multiplier   float64    `json:"multiplier"`
	Payout       float64    `json:"payout"`
	Result       BetResult  `json:"result"`
	Proof        BetProof   `json:"proof"`
	BalanceAfter float64    `json:"balanceAfter"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type PlinkoBetRequest struct {
	UserID     string     `json:"userId"`
	Bet        float64    `json:"bet"`
	Rows       int        `json:"rows"`
	Risk       PlinkoRisk `json:"risk"`
	ClientSeed string     `json:"clientSeed,omitempty"`
}

// UserFairState is a user's seed and the nonce of their next bet.
type UserFairState struct {
	ClientSeed string `json:"clientSeed"`
	Nonce      uint64 `json:"nonce"`
}

type PlinkoConfig struct {
	MaxBet          float64
	StartingBalance float64
	ServerSeed      string
}

func DefaultPlinkoConfig() PlinkoConfig {
	return PlinkoConfig{
		MaxBet:          MAX_BET,
		StartingBalance: STARTING_BALANCE,
	}
}

// PlinkoEngine settles plinko bets. Each bet is its own atomic round.
type PlinkoEngine struct {
	mu         sync.Mutex
	cfg        PlinkoConfig
	fair       *Fairness
	ledger     *Ledger
	archive    Archiver
	userFair   map[string]*UserFairState
	bets       []BetRecord
	betIndex   map[string]int
	betCounter uint64
	tally      tally
	winCount   int
	lossCount  int
	pushCount  int
	now        func() time.Time
}

// NewPlinkoEngine creates a new Plinko game engine
func NewPlinkoEngine(cfg PlinkoConfig) *PlinkoEngine {
	return &PlinkoEngine{
		cfg:      cfg,
		fair:     NewFairness(cfg.ServerSeed, DefaultCrashCurve()),
		ledger:   NewLedger(cfg.StartingBalance),
		userFair: make(map[string]*UserFairState),
		betIndex: make(map[string]int),
		now:      time.Now,
	}
}

func (p *PlinkoEngine) SetArchiver(a Archiver) {
	p.archive = a
}

// GetType returns the game type
func (p *PlinkoEngine) GetType() GameType {
	return GameTypePlinko
}

func (p *PlinkoEngine) Start(ctx context.Context) error {
	log.Println("[PLINKO] Engine started")
	return nil
}

func (p *PlinkoEngine) Stop() error {
	log.Println("[PLINKO] Engine stopped")
	return nil
}

func (p *PlinkoEngine) GetState() interface{} {
	return p.Stats()
}

func (p *PlinkoEngine) Commitment() string {
	return p.fair.Commitment()
}

func (p *PlinkoEngine) Balance(userID string) float64 {
	return p.ledger.Balance(userID)
}

// Validate checks the request fields that do not depend on state.
func (p *PlinkoEngine) Validate(req PlinkoBetRequest) error {
	if req.UserID == "" {
		return ErrInvalidPayload
	}
	if math.IsNaN(req.Bet) || req.Bet <= 0 || req.Bet > p.cfg.MaxBet {
		return ErrInvalidBet
	}
	if !req.Risk.Valid() {
		return ErrInvalidRisk
	}
	if _, ok := plinkoMultipliers[req.Risk][req.Rows]; !ok {
		return ErrInvalidRows
	}
	return nil
}

// CanAfford reports whether userID could stake bet right now.
func (p *PlinkoEngine) CanAfford(userID string, bet float64) bool {
	return p.ledger.CanAfford(userID, bet)
}

// PlaceBet debits the stake, drops the ball and credits the payout.
func (p *PlinkoEngine) PlaceBet(ctx context.Context, req PlinkoBetRequest) (BetRecord, error) {
	if err := p.Validate(req); err != nil {
		return BetRecord{}, err
	}

	record, err := p.settle(req)
	if err != nil {
		return BetRecord{}, err
	}

	log.WithFields(log.Fields{"bet_id": record.BetID, "user_id": record.UserID}).
		Infof("[PLINKO] Ball landed at bin %d, multiplier %.2fx, payout %.2f", record.Bin, record.Multiplier, record.Payout)

	if p.archive != nil {
		if err := p.archive.ArchiveBet(ctx, record); err != nil {
			log.WithError(err).Warn("[PLINKO] Failed to archive bet")
		}
	}
	return record, nil
}

func (p *PlinkoEngine) settle(req PlinkoBetRequest) (BetRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ledger.CanAfford(req.UserID, req.Bet) {
		return BetRecord{}, ErrInsufficientBalance
	}
	p.ledger.Debit(req.UserID, req.Bet)

	fair := p.fairStateLocked(req.UserID)
	if req.ClientSeed != "" {
		fair.ClientSeed = req.ClientSeed
	}
	nonce := fair.Nonce
	fair.Nonce++

	path, bin := p.fair.PlinkoPath(fair.ClientSeed, nonce, req.Rows)
	multiplier := payoutMultiplier(req.Risk, req.Rows, bin)
	payout := mulRound2(req.Bet, multiplier)
	balanceAfter := p.ledger.Credit(req.UserID, payout)

	now := p.now()
	p.betCounter++
	record := BetRecord{
		BetID:      fmt.Sprintf("b_%d_%d", unixMs(now), p.betCounter),
		UserID:     req.UserID,
		Bet:        req.Bet,
		Rows:       req.Rows,
		Risk:       req.Risk,
		Path:       path,
		Bin:        bin,
		Multiplier: multiplier,
		Payout:     payout,
		Result:     classifyResult(req.Bet, payout),
		Proof: BetProof{
			ServerSeedHash: p.fair.Commitment(),
			ClientSeed:     fair.ClientSeed,
			Nonce:          nonce,
		},
		BalanceAfter: balanceAfter,
		CreatedAt:    now.UTC(),
	}

	p.tally.addStake(req.Bet)
	p.tally.addPayout(payout)
	switch record.Result {
	case ResultWin:
		p.winCount++
	case ResultLoss:
		p.lossCount++
	default:
		p.pushCount++
	}
	p.betIndex[record.BetID] = len(p.bets)
	p.bets = append(p.bets, record)

	return record, nil
}

func (p *PlinkoEngine) fairStateLocked(userID string) *UserFairState {
	fair, ok := p.userFair[userID]
	if !ok {
		fair = &UserFairState{ClientSeed: randomHex(16)}
		p.userFair[userID] = fair
	}
	return fair
}

// FairState returns the user's current client seed and next nonce.
func (p *PlinkoEngine) FairState(userID string) UserFairState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.fairStateLocked(userID)
}

func (p *PlinkoEngine) Bet(betID string) (BetRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.betIndex[betID]
	if !ok {
		return BetRecord{}, ErrBetNotFound
	}
	return p.bets[idx], nil
}

// Bets returns up to limit of the user's bets, newest first.
func (p *PlinkoEngine) Bets(userID string, limit int) []BetRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]BetRecord, 0)
	for i := len(p.bets) - 1; i >= 0 && len(out) < limit; i-- {
		if p.bets[i].UserID == userID {
			out = append(out, p.bets[i])
		}
	}
	return out
}

func (p *PlinkoEngine) Stats() PlinkoStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := len(p.bets)
	stake, payout, profit := p.tally.totals()
	return PlinkoStats{
		TotalBets:      total,
		TotalStake:     stake,
		TotalPayout:    payout,
		HouseProfit:    profit,
		WinCount:       p.winCount,
		LossCount:      p.lossCount,
		PushCount:      p.pushCount,
		WinRate:        rate(p.winCount, total),
		LossRate:       rate(p.lossCount, total),
		PushRate:       rate(p.pushCount, total),
		ServerSeedHash: p.fair.Commitment(),
	}
}

// payoutMultiplier looks up the table value. Under hard risk the edge bins
// always pay nothing.
func payoutMultiplier(risk PlinkoRisk, rows, bin int) float64 {
	if risk == PlinkoRiskHard && (bin == 0 || bin == rows) {
		return 0
	}
	return plinkoMultipliers[risk][rows][bin]
}

func classifyResult(bet, payout float64) BetResult {
	switch {
	case payout > bet:
		return ResultWin
	case payout < bet:
		return ResultLoss
	}
	return ResultPush
}

func rate(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
}
