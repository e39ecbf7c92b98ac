// Command replay runs a recorded fixture through a fresh in-memory
// engine and checks the expected outcomes, exiting non-zero on any
// mismatch. Used for regression-testing engine changes against known
// runs.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/crowdcal/crowdcal/internal/replay"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON")
	jsonOut := flag.Bool("json", false, "output results as JSON")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [--json]")
		os.Exit(2)
	}

	f, err := replay.LoadFixture(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	sum, err := replay.Replay(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum.Results); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Printf("%s: processed=%d skipped=%d\n", sum.Description, sum.Processed, sum.Skipped)
		for _, res := range sum.Results {
			mark := "ok"
			if !res.Match {
				mark = "MISMATCH"
			}
			fmt.Printf("  %-24s want %s/%s got %s/%s  %s\n",
				res.SubjectID, res.WantStatus, orAny(res.WantState), res.GotStatus, res.GotState, mark)
		}
	}

	if sum.Mismatches > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d expectations failed\n", sum.Mismatches, len(sum.Results))
		os.Exit(1)
	}
}

// #endregion main

// #region helpers

func orAny(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

// #endregion helpers
