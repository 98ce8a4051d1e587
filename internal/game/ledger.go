package game

import (
	"sync"

	"github.com/shopspring/decimal"
)

const STARTING_BALANCE = 100.0

// Ledger keeps one balance per user. Debit and Credit never reject: callers
// check affordability before debiting.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	starting decimal.Decimal
}

func NewLedger(startingBalance float64) *Ledger {
	return &Ledger{
		balances: make(map[string]decimal.Decimal),
		starting: decimal.NewFromFloat(startingBalance),
	}
}

// Balance returns the user's balance rounded to cents, opening the account at
// the starting balance on first access.
func (l *Ledger) Balance(userID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(userID).Round(2).InexactFloat64()
}

// CanAfford reports whether the unrounded balance covers amount.
func (l *Ledger) CanAfford(userID string, amount float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(userID).GreaterThanOrEqual(decimal.NewFromFloat(amount))
}

func (l *Ledger) Debit(userID string, amount float64) float64 {
	return l.apply(userID, decimal.NewFromFloat(amount).Neg())
}

func (l *Ledger) Credit(userID string, amount float64) float64 {
	return l.apply(userID, decimal.NewFromFloat(amount))
}

func (l *Ledger) apply(userID string, delta decimal.Decimal) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.balanceLocked(userID).Add(delta)
	l.balances[userID] = next
	return next.Round(2).InexactFloat64()
}

func (l *Ledger) balanceLocked(userID string) decimal.Decimal {
	balance, ok := l.balances[userID]
	if !ok {
		balance = l.starting
		l.balances[userID] = balance
	}
	return balance
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// mulRound2 returns round2(a*b) computed on exact decimals.
func mulRound2(a, b float64) float64 {
	return decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

// tally accumulates stake and payout totals without float drift.
type tally struct {
	stake  decimal.Decimal
	payout decimal.Decimal
}

func (t *tally) addStake(v float64)  { t.stake = t.stake.Add(decimal.NewFromFloat(v)) }
func (t *tally) addPayout(v float64) { t.payout = t.payout.Add(decimal.NewFromFloat(v)) }

func (t *tally) totals() (stake, payout, profit float64) {
	return t.stake.Round(2).InexactFloat64(),
		t.payout.Round(2).InexactFloat64(),
		t.stake.Sub(t.payout).Round(2).InexactFloat64()
}
