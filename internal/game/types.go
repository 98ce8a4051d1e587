package game

import (
	"time"
)

type RoundStatus string

const (
	StatusIdle      RoundStatus = "IDLE"
	StatusCountdown RoundStatus = "COUNTDOWN"
	StatusRunning   RoundStatus = "RUNNING"
)

const (
	MAX_BET            = 10.0
	COUNTDOWN_TIME     = 10 * time.Second
	BROADCAST_INTERVAL = 250 * time.Millisecond
)

type CashoutInfo struct {
	AtMultiplier float64 `json:"atMultiplier"`
	Payout       float64 `json:"payout"`
	AtMs         int64   `json:"atMs"`
}

// Player is a crash round participant. CashedOut is set at most once.
type Player struct {
	UserID     string       `json:"userId"`
	Bet        float64      `json:"bet"`
	ClientSeed string       `json:"clientSeed"`
	CashedOut  *CashoutInfo `json:"cashedOut,omitempty"`
}

type FairProof struct {
	ServerSeedHash string `json:"serverSeedHash"`
	Nonce          uint64 `json:"nonce"`
}

// FairCommitment is the public half of a seed pair.
type FairCommitment struct {
	ServerSeedHash string `json:"serverSeedHash"`
}

// RoundView is the client-visible snapshot of an active crash round. It never
// carries the threshold.
type RoundView struct {
	RoundID         string      `json:"roundId"`
	State           RoundStatus `json:"state"`
	CountdownEndsAt int64       `json:"countdownEndsAt"`
	StartedAt       int64       `json:"startedAt,omitempty"`
	TimeLeftMs      int64       `json:"timeLeftMs"`
	Multiplier      float64     `json:"multiplier"`
	Players         []Player    `json:"players"`
	Fair            FairProof   `json:"fair"`
}

type JoinResult struct {
	RoundID         string      `json:"roundId"`
	State           RoundStatus `json:"state"`
	CountdownEndsAt int64       `json:"countdownEndsAt"`
}

type CashoutResult struct {
	RoundID      string  `json:"roundId"`
	UserID       string  `json:"userId"`
	AtMultiplier float64 `json:"atMultiplier"`
	Payout       float64 `json:"payout"`
	BalanceAfter float64 `json:"balanceAfter"`
}

type CrashStats struct {
	Rounds              int      `json:"rounds"`
	TotalStake          float64  `json:"totalStake"`
	TotalPayout         float64  `json:"totalPayout"`
	HouseProfit         float64  `json:"houseProfit"`
	LastCrashMultiplier *float64 `json:"lastCrashMultiplier,omitempty"`
}

type PlinkoStats struct {
	TotalBets      int     `json:"totalBets"`
	TotalStake     float64 `json:"totalStake"`
	TotalPayout    float64 `json:"totalPayout"`
	HouseProfit    float64 `json:"houseProfit"`
	WinCount       int     `json:"winCount"`
	LossCount      int     `json:"lossCount"`
	PushCount      int     `json:"pushCount"`
	WinRate        string  `json:"winRate"`
	LossRate       string  `json:"lossRate"`
	PushRate       string  `json:"pushRate"`
	ServerSeedHash string  `json:"serverSeedHash"`
}

func unixMs(t time.Time) int64 {
	return t.UnixMilli()
}
