package game

import (
	"encoding/binary"
	"fmt"
	"math"
	"testing"
)

func TestFairness_Commitment(t *testing.T) {
	f := NewFairness(testSeed, DefaultCrashCurve())

	want := "41edd15aeaa5d9532b515a809e6aaa81f2cad2cd7937ef3e30ec0f908c5e0f45"
	if got := f.Commitment(); got != want {
		t.Errorf("Commitment() = %s, want %s", got, want)
	}
	if f.Commitment() != f.Commitment() {
		t.Error("Commitment() should be stable")
	}
	if got := HashCommitment(testSeed); got != want {
		t.Errorf("HashCommitment() = %s, want %s", got, want)
	}
}

func TestFairness_EmptySeedGeneratesOne(t *testing.T) {
	a := NewFairness("", DefaultCrashCurve())
	b := NewFairness("", DefaultCrashCurve())

	if len(a.Commitment()) != 64 {
		t.Errorf("commitment length = %d, want 64", len(a.Commitment()))
	}
	if a.Commitment() == b.Commitment() {
		t.Error("two generated seeds should not collide")
	}
}

func TestFairness_CrashThreshold(t *testing.T) {
	f := NewFairness(testSeed, DefaultCrashCurve())

	tests := []struct {
		roundID     string
		wantRaw     float64
		wantDisplay float64
	}{
		{"cr_1700000000000_1", 7.76829148498418, 7.77},
		{"cr_1700000000000_2", 2.1089100685312694, 2.11},
		{"cr_1700000000000_3", 2.72594892876396, 2.73},
	}

	for _, tt := range tests {
		t.Run(tt.roundID, func(t *testing.T) {
			got := f.CrashThreshold(tt.roundID)
			if math.Abs(got.Raw-tt.wantRaw) > 1e-9 {
				t.Errorf("Raw = %v, want %v", got.Raw, tt.wantRaw)
			}
			if got.Display != tt.wantDisplay {
				t.Errorf("Display = %v, want %v", got.Display, tt.wantDisplay)
			}
		})
	}
}

func TestFairness_CrashThreshold_Deterministic(t *testing.T) {
	f := NewFairness(testSeed, DefaultCrashCurve())
	g := NewFairness(testSeed, DefaultCrashCurve())

	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("cr_1_%d", i)
		if f.CrashThreshold(id) != g.CrashThreshold(id) {
			t.Fatalf("CrashThreshold(%s) is not reproducible", id)
		}
	}
}

func TestFairness_CrashThreshold_Range(t *testing.T) {
	f := NewFairness(GenerateSeed(), DefaultCrashCurve())

	for i := 0; i < 5000; i++ {
		th := f.CrashThreshold(fmt.Sprintf("cr_%d_%d", 1700000000000+i, i))
		if th.Raw < MIN_CRASH || th.Raw > MAX_CRASH {
			t.Fatalf("Raw %v out of [%v, %v]", th.Raw, MIN_CRASH, MAX_CRASH)
		}
		if th.Display < MIN_CRASH || th.Display > DISPLAY_CAP {
			t.Fatalf("Display %v out of [%v, %v]", th.Display, MIN_CRASH, DISPLAY_CAP)
		}
		if th.Display != round2(th.Display) {
			t.Fatalf("Display %v has more than 2 decimals", th.Display)
		}
	}
}

func TestFairness_CrashThreshold_Uses52HighBits(t *testing.T) {
	f := NewFairness(testSeed, DefaultCrashCurve())
	roundID := "cr_1700000000000_1"

	digest := f.Derive([]byte(roundID))
	r := binary.BigEndian.Uint64(digest[:8]) >> 12
	u := float64(r+1) / math.Pow(2, 52)
	want := math.Max(MIN_CRASH, math.Min(HOUSE_EDGE/(1-u), MAX_CRASH))

	if got := f.CrashThreshold(roundID).Raw; got != want {
		t.Errorf("Raw = %v, want %v", got, want)
	}
}

func TestCrashThreshold_Clamp(t *testing.T) {
	curve := CrashCurve{HouseEdge: 0.99, MinCrash: 1.03, MaxCrash: 2, DisplayCap: 1.5}
	f := NewFairness(testSeed, curve)

	for i := 0; i < 500; i++ {
		th := f.CrashThreshold(fmt.Sprintf("r%d", i))
		if th.Raw > 2 {
			t.Fatalf("Raw %v above max", th.Raw)
		}
		if th.Display > 1.5 {
			t.Fatalf("Display %v above cap", th.Display)
		}
	}
}

func TestFairness_PlinkoPath(t *testing.T) {
	f := NewFairness(testSeed, DefaultCrashCurve())

	tests := []struct {
		name     string
		nonce    uint64
		wantPath []int
		wantBin  int
	}{
		{"nonce 0", 0, []int{0, 1, 0, 0, 1, 1, 0, 0}, 3},
		{"nonce 1", 1, []int{1, 0, 1, 1, 0, 0, 1, 0}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, bin := f.PlinkoPath("client", tt.nonce, 8)
			if bin != tt.wantBin {
				t.Errorf("bin = %d, want %d", bin, tt.wantBin)
			}
			if fmt.Sprint(path) != fmt.Sprint(tt.wantPath) {
				t.Errorf("path = %v, want %v", path, tt.wantPath)
			}
		})
	}
}

func TestFairness_PlinkoPath_Range(t *testing.T) {
	f := NewFairness(GenerateSeed(), DefaultCrashCurve())

	for nonce := uint64(0); nonce < 2000; nonce++ {
		path, bin := f.PlinkoPath("seed", nonce, PLINKO_ROWS)
		if len(path) != PLINKO_ROWS {
			t.Fatalf("len(path) = %d, want %d", len(path), PLINKO_ROWS)
		}
		sum := 0
		for _, step := range path {
			if step != 0 && step != 1 {
				t.Fatalf("invalid step %d", step)
			}
			sum += step
		}
		if bin != sum || bin < 0 || bin > PLINKO_ROWS {
			t.Fatalf("bin = %d, sum of path = %d", bin, sum)
		}
	}
}

func TestVerifyCrashRound(t *testing.T) {
	th, ok := VerifyCrashRound(testSeed, "cr_1700000000000_1", DefaultCrashCurve(), 7.77)
	if !ok {
		t.Errorf("VerifyCrashRound() rejected a genuine claim, threshold %+v", th)
	}
	if _, ok := VerifyCrashRound(testSeed, "cr_1700000000000_1", DefaultCrashCurve(), 7.78); ok {
		t.Error("VerifyCrashRound() accepted a forged claim")
	}
}

func TestVerifyCrashRound_CustomCurve(t *testing.T) {
	lowCap := DefaultCrashCurve()
	lowCap.DisplayCap = 5
	highFloor := DefaultCrashCurve()
	highFloor.MinCrash = 3

	tests := []struct {
		name    string
		roundID string
		curve   CrashCurve
		claimed float64
	}{
		{"display cap", "cr_1700000000000_1", lowCap, 5},
		{"raised minimum", "cr_1700000000000_2", highFloor, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if th, ok := VerifyCrashRound(testSeed, tt.roundID, tt.curve, tt.claimed); !ok {
				t.Errorf("VerifyCrashRound() rejected a round of its own curve, threshold %+v", th)
			}
			if _, ok := VerifyCrashRound(testSeed, tt.roundID, DefaultCrashCurve(), tt.claimed); ok {
				t.Error("the default curve should not reproduce a custom-curve outcome")
			}
		})
	}
}

func TestVerifyPlinkoBet(t *testing.T) {
	if _, ok := VerifyPlinkoBet(testSeed, "client", 0, 8, 3); !ok {
		t.Error("VerifyPlinkoBet() rejected a genuine claim")
	}
	if _, ok := VerifyPlinkoBet(testSeed, "client", 0, 8, 4); ok {
		t.Error("VerifyPlinkoBet() accepted a forged claim")
	}
}

func TestGenerateSeed(t *testing.T) {
	seed1 := GenerateSeed()
	seed2 := GenerateSeed()

	if len(seed1) != 64 {
		t.Errorf("GenerateSeed() length = %d, want 64", len(seed1))
	}
	if seed1 == seed2 {
		t.Error("GenerateSeed() produced the same seed twice")
	}
}

func BenchmarkCrashThreshold(b *testing.B) {
	f := NewFairness(testSeed, DefaultCrashCurve())
	for i := 0; i < b.N; i++ {
		f.CrashThreshold("cr_1700000000000_1")
	}
}

func BenchmarkPlinkoPath(b *testing.B) {
	f := NewFairness(testSeed, DefaultCrashCurve())
	for i := 0; i < b.N; i++ {
		f.PlinkoPath("client", uint64(i), PLINKO_ROWS)
	}
}
