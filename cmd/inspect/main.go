// Command inspect reads a checkpoint store and reports what the run has
// decided so far: checkpoint lineage, batch provenance, the selection
// function against the training sample, and per-agent skill.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/crowdcal/crowdcal/internal/agent"
	"github.com/crowdcal/crowdcal/internal/calibration"
	"github.com/crowdcal/crowdcal/internal/domain"
	"github.com/crowdcal/crowdcal/internal/logging"
	"github.com/crowdcal/crowdcal/internal/registry"
	"github.com/crowdcal/crowdcal/internal/state"
	"github.com/crowdcal/crowdcal/internal/subject"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the checkpoint store")
	last := flag.Int("last", 20, "show N most recent checkpoints and batches")
	snapshotID := flag.String("snapshot", "", "show single checkpoint detail")
	jsonOut := flag.Bool("json", false, "output as JSON instead of a table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/crowdcal.db [--last N] [--snapshot id] [--json]")
		os.Exit(2)
	}

	store, err := state.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *snapshotID != "" {
		err = runDetailMode(store, *snapshotID, *jsonOut)
	} else {
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	SnapshotID string `json:"snapshot_id"`
	ParentID   string `json:"parent_id,omitempty"`
	TakenAt    string `json:"taken_at"`
	Watermark  string `json:"watermark,omitempty"`
}

func runListMode(store *state.Store, last int, jsonOut bool) error {
	infos, err := store.List(last)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(os.Stderr, "no checkpoints found")
		return nil
	}

	rows := make([]listRow, len(infos))
	for i, info := range infos {
		rows[i] = listRow{
			SnapshotID: info.SnapshotID,
			ParentID:   info.ParentID,
			TakenAt:    info.TakenAt.Format("2006-01-02 15:04:05"),
		}
		if !info.Watermark.IsZero() {
			rows[i].Watermark = info.Watermark.Format("2006-01-02 15:04:05")
		}
	}

	batches, err := logging.ListBatches(store.DB(), last)
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Checkpoints []listRow           `json:"checkpoints"`
			Batches     []logging.BatchEntry `json:"batches"`
		}{rows, batches})
	}

	fmt.Printf("%-36s %-36s %-19s %-19s\n", "SNAPSHOT", "PARENT", "TAKEN", "WATERMARK")
	for _, r := range rows {
		fmt.Printf("%-36s %-36s %-19s %-19s\n", r.SnapshotID, orDash(r.ParentID), r.TakenAt, orDash(r.Watermark))
	}

	fmt.Printf("\n%-36s %6s %6s %9s %7s\n", "BATCH -> SNAPSHOT", "SEEN", "SKIP", "PROCESSED", "MORE")
	for _, b := range batches {
		fmt.Printf("%-36s %6d %6d %9d %7v\n", b.SnapshotID, b.Seen, b.Skipped, b.Processed, b.HasMore)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detail struct {
	SnapshotID   string             `json:"snapshot_id"`
	Agents       int                `json:"agents"`
	Subjects     int                `json:"subjects"`
	StatusCounts map[string]int     `json:"status_counts"`
	Report       calibration.Report `json:"report"`
	TopAgents    []agentRow         `json:"top_agents"`
}

type agentRow struct {
	Name     string  `json:"name"`
	PL       float64 `json:"pl"`
	PD       float64 `json:"pd"`
	Skill    float64 `json:"skill"`
	Training int     `json:"training"`
	Total    int     `json:"total"`
}

func runDetailMode(store *state.Store, snapshotID string, jsonOut bool) error {
	rec, err := store.Get(snapshotID)
	if err != nil {
		return err
	}

	bureau := registry.RestoreBureau(rec.Bureau, agent.DefaultConfig())
	sample := registry.RestoreCollection(rec.Sample, subject.DefaultConfig())

	d := detail{
		SnapshotID:   rec.SnapshotID,
		Agents:       bureau.Size(),
		Subjects:     sample.Size(),
		StatusCounts: map[string]int{},
		Report:       calibration.BuildReport(sample),
	}
	for status, n := range sample.StatusCounts() {
		d.StatusCounts[string(status)] = n
	}

	stats := bureau.Stats()
	names := bureau.List()
	for i, name := range names {
		d.TopAgents = append(d.TopAgents, agentRow{
			Name:     name,
			PL:       stats.PL[i],
			PD:       stats.PD[i],
			Skill:    stats.Skill[i],
			Training: stats.Training[i],
			Total:    stats.Total[i],
		})
	}
	// Highest skill first, capped for readability.
	sortAgents(d.TopAgents)
	if len(d.TopAgents) > 20 {
		d.TopAgents = d.TopAgents[:20]
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}

	fmt.Printf("checkpoint %s: %d agents, %d subjects\n", d.SnapshotID, d.Agents, d.Subjects)
	for _, status := range []domain.Status{domain.StatusUndecided, domain.StatusDetected, domain.StatusRejected} {
		fmt.Printf("  %-10s %d\n", status, d.StatusCounts[string(status)])
	}
	fmt.Printf("\nselection function: completeness=%.3f purity=%.3f\n", d.Report.Completeness, d.Report.Purity)
	fmt.Printf("  candidates=%d true_positives=%d false_positives=%d false_negatives=%d\n",
		len(d.Report.Candidates), len(d.Report.TruePositives), len(d.Report.FalsePositives), len(d.Report.FalseNegatives))

	fmt.Printf("\n%-24s %8s %8s %8s %9s %7s\n", "AGENT", "PL", "PD", "SKILL", "TRAINING", "TOTAL")
	for _, a := range d.TopAgents {
		fmt.Printf("%-24s %8.4f %8.4f %8.4f %9d %7d\n", a.Name, a.PL, a.PD, a.Skill, a.Training, a.Total)
	}
	return nil
}

// #endregion detail-mode

// #region helpers

func sortAgents(rows []agentRow) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Skill > rows[j].Skill })
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// #endregion helpers
