package main

import (
	"errors"
	"flag"
	"os"

	"github.com/pterm/pterm"
)

func main() {
	r, err := parseAndVerify(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		pterm.Error.Println(err)
		pterm.Info.Println("verify crash --server-seed S --round-id R [--claimed X] [--commitment H] [--house-edge E --min-crash A --max-crash B --display-cap C]")
		pterm.Info.Println("verify plinko --server-seed S --client-seed C --nonce N [--rows 8] [--claimed-bin B] [--commitment H]")
		os.Exit(2)
	}

	pterm.DefaultSection.Println(r.title)
	if err := pterm.DefaultTable.WithHasHeader().WithData(r.rows).Render(); err != nil {
		pterm.Error.Println(err)
		os.Exit(2)
	}

	switch {
	case !r.checked:
		pterm.Info.Println("Nothing claimed, outcome recomputed only")
	case r.ok:
		pterm.Success.Println("Outcome verified")
	default:
		pterm.Error.Println("Verification failed")
		os.Exit(1)
	}
}
