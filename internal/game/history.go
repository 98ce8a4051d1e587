package game

import (
	"math"
	"sync"
)

const HISTORY_LIMIT = 50

type PlayerResult struct {
	UserID    string       `json:"userId"`
	Bet       float64      `json:"bet"`
	CashedOut *CashoutInfo `json:"cashedOut,omitempty"`
}

// HistoryItem is the immutable record of a finished crash round.
type HistoryItem struct {
	RoundID             string         `json:"roundId"`
	ResultMultiplier    float64        `json:"resultMultiplier"`
	ResultMultiplierRaw float64        `json:"resultMultiplierRaw"`
	StartedAt           int64          `json:"startedAt"`
	FinishedAt          int64          `json:"finishedAt"`
	ServerSeedHash      string         `json:"serverSeedHash"`
	PublicSeed          string         `json:"publicSeed"`
	Players             []PlayerResult `json:"players"`
}

type Loser struct {
	UserID string  `json:"userId"`
	Bet    float64 `json:"bet"`
}

// HistoryGroup is one dedup chip: all recent rounds that busted at the same
// displayed multiplier.
type HistoryGroup struct {
	Multiplier float64  `json:"multiplier"`
	Count      int      `json:"count"`
	Rounds     []string `json:"rounds"`
	Losers     []Loser  `json:"losers"`
}

// History is a fixed-size ring of finished rounds, read newest first.
type History struct {
	mu    sync.RWMutex
	items []HistoryItem
	next  int
	size  int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = HISTORY_LIMIT
	}
	return &History{items: make([]HistoryItem, capacity)}
}

func (h *History) Capacity() int {
	return len(h.items)
}

// Record stores item, evicting the oldest entry once the ring is full.
func (h *History) Record(item HistoryItem) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items[h.next] = item
	h.next = (h.next + 1) % len(h.items)
	if h.size < len(h.items) {
		h.size++
	}
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// List returns up to limit items newest first. limit is clamped to
// [1, capacity].
func (h *History) List(limit int) []HistoryItem {
	h.mu.RLock()
	defer h.mu.RUnlock()

	limit = clampLimit(limit, len(h.items))
	if limit > h.size {
		limit = h.size
	}
	out := make([]HistoryItem, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, h.at(i))
	}
	return out
}

// Latest returns the most recent item.
func (h *History) Latest() (HistoryItem, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.size == 0 {
		return HistoryItem{}, false
	}
	return h.at(0), true
}

func (h *History) Get(roundID string) (HistoryItem, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := 0; i < h.size; i++ {
		if item := h.at(i); item.RoundID == roundID {
			return item, nil
		}
	}
	return HistoryItem{}, ErrRoundNotFound
}

// DedupByOutcome groups the whole history by displayed multiplier. Groups are
// emitted in the order their newest round appears, at most limit of them.
func (h *History) DedupByOutcome(limit int) []HistoryGroup {
	h.mu.RLock()
	defer h.mu.RUnlock()

	limit = clampLimit(limit, len(h.items))
	groups := make(map[int64]*HistoryGroup)
	order := make([]int64, 0)

	for i := 0; i < h.size; i++ {
		item := h.at(i)
		key := int64(math.Round(item.ResultMultiplier * 100))

		g, ok := groups[key]
		if !ok {
			g = &HistoryGroup{
				Multiplier: float64(key) / 100,
				Rounds:     []string{},
				Losers:     []Loser{},
			}
			groups[key] = g
			order = append(order, key)
		}
		g.Count++
		g.Rounds = append(g.Rounds, item.RoundID)
		for _, p := range item.Players {
			if p.CashedOut == nil {
				g.Losers = append(g.Losers, Loser{UserID: p.UserID, Bet: p.Bet})
			}
		}
	}

	if len(order) > limit {
		order = order[:limit]
	}
	out := make([]HistoryGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	return out
}

// at returns the i-th newest item. Caller holds the lock.
func (h *History) at(i int) HistoryItem {
	idx := (h.next - 1 - i + 2*len(h.items)) % len(h.items)
	return h.items[idx]
}

func clampLimit(limit, capacity int) int {
	if limit < 1 {
		return 1
	}
	if limit > capacity {
		return capacity
	}
	return limit
}
