// Command refine re-estimates confusion matrices and posteriors from
// the full annotation record with EM, reports how the batch fit differs
// from the online estimates, and can commit the refined state as a new
// checkpoint.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/crowdcal/crowdcal/internal/config"
	"github.com/crowdcal/crowdcal/internal/offline"
	"github.com/crowdcal/crowdcal/internal/registry"
	"github.com/crowdcal/crowdcal/internal/state"
)

// #region main

func main() {
	configPath := flag.String("config", "crowdcal.yaml", "path to run configuration")
	snapshotID := flag.String("snapshot", "", "refine a specific checkpoint instead of the active one")
	apply := flag.Bool("apply", false, "write the refined state back as a new checkpoint")
	jsonOut := flag.Bool("json", false, "output as JSON instead of a table")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, *snapshotID, *apply, *jsonOut); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region run

func run(cfg config.File, snapshotID string, apply, jsonOut bool) error {
	store, err := state.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	var rec state.SnapshotRecord
	if snapshotID != "" {
		rec, err = store.Get(snapshotID)
	} else {
		rec, err = store.Current()
	}
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}

	bureau := registry.RestoreBureau(rec.Bureau, cfg.ToAgentConfig())
	sample := registry.RestoreCollection(rec.Sample, cfg.ToSubjectConfig())

	res, err := offline.Refine(bureau, sample, cfg.ToRefineConfig())
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printTable(res)
	}

	if !apply {
		return nil
	}

	offline.Apply(bureau, sample, res)
	next, err := store.Commit(state.SnapshotRecord{
		ParentID:    rec.SnapshotID,
		Watermark:   rec.Watermark,
		WatermarkID: rec.WatermarkID,
		Bureau:      bureau.TakeSnapshot(),
		Sample:      sample.TakeSnapshot(),
	})
	if err != nil {
		return fmt.Errorf("commit refined checkpoint: %w", err)
	}
	fmt.Printf("refined checkpoint %s committed (parent %s)\n", next.SnapshotID, rec.SnapshotID)
	return nil
}

// #endregion run

// #region table

func printTable(res offline.Result) {
	fmt.Printf("iterations=%d epsilon=%.3g converged=%v pi=%.4g subjects=%d\n\n",
		res.Iterations, res.Epsilon, res.Converged, res.Pi, len(res.Taus))

	names := make([]string, 0, len(res.Agents))
	for name := range res.Agents {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("%-24s %8s %8s %10s %10s %8s\n", "AGENT", "THETA1", "THETA0", "ONLINE_PL", "ONLINE_PD", "VOTES")
	for _, name := range names {
		est := res.Agents[name]
		fmt.Printf("%-24s %8.4f %8.4f %10.4f %10.4f %8d\n",
			name, est.Theta1, est.Theta0, est.OnlinePL, est.OnlinePD, est.Subjects)
	}
}

// #endregion table
