package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fairhouse/internal/game"
)

// report is the outcome of one verification, ready for rendering.
type report struct {
	title string
	rows  [][]string
	// checked is false when no claimed value was given.
	checked bool
	ok      bool
}

var errUsage = errors.New("usage: verify crash|plinko [flags]")

func parseAndVerify(args []string, stderr io.Writer) (report, error) {
	if len(args) == 0 {
		return report{}, errUsage
	}
	switch args[0] {
	case "crash":
		return verifyCrash(args[1:], stderr)
	case "plinko":
		return verifyPlinko(args[1:], stderr)
	}
	return report{}, fmt.Errorf("unknown game %q: %w", args[0], errUsage)
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// commitmentRow compares the revealed seed with a previously published hash.
func commitmentRow(seed, published string) ([]string, bool) {
	actual := game.HashCommitment(seed)
	if published == "" {
		return []string{"serverSeedHash", actual, ""}, true
	}
	ok := strings.EqualFold(actual, published)
	return []string{"serverSeedHash", actual, mark(ok)}, ok
}

func mark(ok bool) string {
	if ok {
		return "match"
	}
	return "MISMATCH"
}

func verifyCrash(args []string, stderr io.Writer) (report, error) {
	fs := newFlagSet("crash", stderr)
	seed := fs.String("server-seed", "", "revealed server seed")
	roundID := fs.String("round-id", "", "round id, e.g. cr_1700000000000_1")
	claimed := fs.Float64("claimed", 0, "disclosed crash multiplier to check")
	published := fs.String("commitment", "", "server seed hash published before the round")
	curve := game.DefaultCrashCurve()
	fs.Float64Var(&curve.HouseEdge, "house-edge", curve.HouseEdge, "HOUSE_EDGE the server ran with")
	fs.Float64Var(&curve.MinCrash, "min-crash", curve.MinCrash, "MIN_CRASH the server ran with")
	fs.Float64Var(&curve.MaxCrash, "max-crash", curve.MaxCrash, "MAX_CRASH the server ran with")
	fs.Float64Var(&curve.DisplayCap, "display-cap", curve.DisplayCap, "DISPLAY_CAP the server ran with")
	if err := fs.Parse(args); err != nil {
		return report{}, err
	}
	if *seed == "" || *roundID == "" {
		return report{}, errors.New("crash: --server-seed and --round-id are required")
	}
	if curve.HouseEdge <= 0 || curve.HouseEdge > 1 || curve.MinCrash < 1 || curve.MaxCrash < curve.MinCrash {
		return report{}, fmt.Errorf("crash: curve %+v is invalid", curve)
	}

	threshold, match := game.VerifyCrashRound(*seed, *roundID, curve, *claimed)
	commitRow, commitOK := commitmentRow(*seed, *published)

	r := report{
		title: "Crash round " + *roundID,
		rows: [][]string{
			{"field", "value", "check"},
			commitRow,
			{"raw multiplier", strconv.FormatFloat(threshold.Raw, 'f', -1, 64), ""},
			{"display multiplier", strconv.FormatFloat(threshold.Display, 'f', 2, 64), ""},
		},
		checked: *published != "",
		ok:      commitOK,
	}
	if isSet(fs, "claimed") {
		r.rows = append(r.rows, []string{"claimed", strconv.FormatFloat(*claimed, 'f', 2, 64), mark(match)})
		r.checked = true
		r.ok = r.ok && match
	}
	return r, nil
}

func verifyPlinko(args []string, stderr io.Writer) (report, error) {
	fs := newFlagSet("plinko", stderr)
	seed := fs.String("server-seed", "", "revealed server seed")
	clientSeed := fs.String("client-seed", "", "client seed of the bet")
	nonce := fs.Uint64("nonce", 0, "nonce of the bet")
	rows := fs.Int("rows", game.PLINKO_ROWS, "board rows")
	claimedBin := fs.Int("claimed-bin", 0, "bin the ball was reported to land in")
	published := fs.String("commitment", "", "server seed hash published before the bet")
	if err := fs.Parse(args); err != nil {
		return report{}, err
	}
	if *seed == "" || *clientSeed == "" {
		return report{}, errors.New("plinko: --server-seed and --client-seed are required")
	}
	if *rows <= 0 {
		return report{}, fmt.Errorf("plinko: rows must be positive, got %d", *rows)
	}

	path, match := game.VerifyPlinkoBet(*seed, *clientSeed, *nonce, *rows, *claimedBin)
	bin := 0
	steps := make([]string, len(path))
	for i, step := range path {
		bin += step
		steps[i] = strconv.Itoa(step)
	}
	commitRow, commitOK := commitmentRow(*seed, *published)

	r := report{
		title: fmt.Sprintf("Plinko bet %s:%d", *clientSeed, *nonce),
		rows: [][]string{
			{"field", "value", "check"},
			commitRow,
			{"path", strings.Join(steps, " "), ""},
			{"bin", strconv.Itoa(bin), ""},
		},
		checked: *published != "",
		ok:      commitOK,
	}
	if isSet(fs, "claimed-bin") {
		r.rows = append(r.rows, []string{"claimed bin", strconv.Itoa(*claimedBin), mark(match)})
		r.checked = true
		r.ok = r.ok && match
	}
	return r, nil
}
