package game

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

const (
	MIN_CRASH   = 1.03
	MAX_CRASH   = 1000.0
	DISPLAY_CAP = 100.0
	HOUSE_EDGE  = 0.99

	// 52 high-order bits of the digest feed the crash variate.
	crashBits = 52
)

// CrashThreshold is the concealed bust point of a crash round. Raw is compared
// against the live multiplier, Display is what gets disclosed.
type CrashThreshold struct {
	Raw     float64 `json:"raw"`
	Display float64 `json:"display"`
}

// CrashCurve holds the tunables of the crash threshold mapping.
type CrashCurve struct {
	HouseEdge  float64
	MinCrash   float64
	MaxCrash   float64
	DisplayCap float64
}

// DefaultCrashCurve returns the reference curve.
func DefaultCrashCurve() CrashCurve {
	return CrashCurve{
		HouseEdge:  HOUSE_EDGE,
		MinCrash:   MIN_CRASH,
		MaxCrash:   MAX_CRASH,
		DisplayCap: DISPLAY_CAP,
	}
}

// Fairness owns a secret server seed and derives every random outcome of a
// game instance from it with HMAC-SHA256.
type Fairness struct {
	serverSeed string
	commitment string
	curve      CrashCurve
}

// NewFairness creates an engine around serverSeed. An empty seed gets a fresh
// random one.
func NewFairness(serverSeed string, curve CrashCurve) *Fairness {
	if serverSeed == "" {
		serverSeed = GenerateSeed()
	}
	return &Fairness{
		serverSeed: serverSeed,
		commitment: HashCommitment(serverSeed),
		curve:      curve,
	}
}

// Commitment returns the published SHA256 hash of the server seed.
func (f *Fairness) Commitment() string {
	return f.commitment
}

// Derive returns HMAC-SHA256(serverSeed, context). Callers must never reuse a
// context within the lifetime of the engine.
func (f *Fairness) Derive(context []byte) [sha256.Size]byte {
	return derive(f.serverSeed, context)
}

// CrashThreshold derives the bust point of the round identified by roundID.
func (f *Fairness) CrashThreshold(roundID string) CrashThreshold {
	return crashThreshold(f.serverSeed, roundID, f.curve)
}

// PlinkoPath draws rows left/right steps for one bet. 0 = left, 1 = right.
func (f *Fairness) PlinkoPath(clientSeed string, nonce uint64, rows int) ([]int, int) {
	return plinkoPath(f.serverSeed, clientSeed, nonce, rows)
}

func derive(serverSeed string, context []byte) [sha256.Size]byte {
	h := hmac.New(sha256.New, []byte(serverSeed))
	h.Write(context)
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

func crashThreshold(serverSeed, roundID string, curve CrashCurve) CrashThreshold {
	digest := derive(serverSeed, []byte(roundID))

	// Top 52 bits of the first 8 digest bytes, big-endian.
	r := binary.BigEndian.Uint64(digest[:8]) >> (64 - crashBits)
	u := float64(r+1) / float64(uint64(1)<<crashBits)

	// u == 1 gives +Inf, which the clamp turns into MaxCrash.
	raw := curve.HouseEdge / (1 - u)
	raw = math.Max(curve.MinCrash, math.Min(raw, curve.MaxCrash))

	return CrashThreshold{
		Raw:     raw,
		Display: round2(math.Min(raw, curve.DisplayCap)),
	}
}

func plinkoPath(serverSeed, clientSeed string, nonce uint64, rows int) ([]int, int) {
	path := make([]int, rows)
	bin := 0

	for counter := 0; counter < rows; counter++ {
		context := fmt.Sprintf("%s:%d:%d", clientSeed, nonce, counter)
		digest := derive(serverSeed, []byte(context))

		direction := int(digest[0] & 1)
		path[counter] = direction
		bin += direction
	}

	return path, bin
}

// GenerateSeed creates a cryptographically secure random seed
func GenerateSeed() string {
	return randomHex(32)
}

// HashCommitment creates a SHA256 hash of the seed for commitment
func HashCommitment(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(b)
}

// VerifyCrashRound recomputes the disclosed multiplier of a crash round once
// its server seed has been revealed. curve must be the one the round ran with.
func VerifyCrashRound(serverSeed, roundID string, curve CrashCurve, claimedDisplay float64) (CrashThreshold, bool) {
	threshold := crashThreshold(serverSeed, roundID, curve)
	return threshold, math.Abs(threshold.Display-claimedDisplay) < 0.005
}

// VerifyPlinkoBet recomputes the path of a plinko bet and checks the bin.
func VerifyPlinkoBet(serverSeed, clientSeed string, nonce uint64, rows, claimedBin int) ([]int, bool) {
	path, bin := plinkoPath(serverSeed, clientSeed, nonce, rows)
	return path, bin == claimedBin
}
