// Command crowdcal runs one online batch: resume from the last
// checkpoint, fold in new classification events, and commit a new
// checkpoint with its provenance. Designed to be run repeatedly, e.g.
// from cron, one batch per invocation.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/crowdcal/crowdcal/internal/config"
	"github.com/crowdcal/crowdcal/internal/engine"
	"github.com/crowdcal/crowdcal/internal/logging"
	"github.com/crowdcal/crowdcal/internal/registry"
	"github.com/crowdcal/crowdcal/internal/state"
	"github.com/crowdcal/crowdcal/internal/stream"
)

// #region main
func main() {
	configPath := flag.String("config", envOr("CROWDCAL_CONFIG", "crowdcal.yaml"), "path to run configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Survey.Database == "" {
		log.Fatalf("config %s: survey.database is required", *configPath)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("batch failed: %v", err)
	}
}

// #endregion main

// #region run
func run(cfg config.File) error {
	store, err := state.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	// Resume from the active checkpoint, or start fresh.
	var bureau *registry.Bureau
	var sample *registry.Collection
	var parentID string
	var watermark time.Time
	var watermarkID string

	prev, err := store.Current()
	switch {
	case errors.Is(err, state.ErrNoSnapshot):
		log.Printf("[RUN] no checkpoint found, starting from scratch")
		bureau = registry.NewBureau(cfg.ToAgentConfig())
		sample = registry.NewCollection(cfg.ToSubjectConfig())
	case err != nil:
		return fmt.Errorf("read checkpoint: %w", err)
	default:
		parentID = prev.SnapshotID
		watermark = prev.Watermark
		watermarkID = prev.WatermarkID
		bureau = registry.RestoreBureau(prev.Bureau, cfg.ToAgentConfig())
		sample = registry.RestoreCollection(prev.Sample, cfg.ToSubjectConfig())
		log.Printf("[RUN] resuming from checkpoint %s (watermark %s, %d agents, %d subjects)",
			prev.SnapshotID, watermark.Format(time.RFC3339), bureau.Size(), sample.Size())
	}

	src, err := stream.OpenSQLite(cfg.Survey.Database, cfg.ToFilter(watermark, watermarkID))
	if err != nil {
		return fmt.Errorf("open events: %w", err)
	}
	defer src.Close()

	eng := engine.New(cfg.ToEngineConfig(), bureau, sample)
	started := time.Now().UTC()
	sum, err := eng.Run(src)
	if err != nil {
		return err
	}

	if sum.Empty {
		log.Printf("[RUN] nothing to do (seen=%d skipped=%d)", sum.Seen, sum.Skipped)
		return nil
	}

	rec, err := store.Commit(state.SnapshotRecord{
		ParentID:    parentID,
		Watermark:   sum.Resume,
		WatermarkID: sum.ResumeID,
		Bureau:      bureau.TakeSnapshot(),
		Sample:      sample.TakeSnapshot(),
	})
	if err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}

	err = logging.LogBatch(store.DB(), logging.BatchEntry{
		SnapshotID: rec.SnapshotID,
		StartedAt:  started,
		FirstEvent: sum.Watermark,
		LastEvent:  sum.Resume,
		Seen:       sum.Seen,
		Skipped:    sum.Skipped,
		Processed:  sum.Processed,
		HasMore:    sum.HasMore,
	})
	if err != nil {
		return fmt.Errorf("log batch: %w", err)
	}

	counts := sample.StatusCounts()
	log.Printf("[RUN] checkpoint %s committed: processed=%d skipped=%d hasMore=%v", rec.SnapshotID, sum.Processed, sum.Skipped, sum.HasMore)
	log.Printf("[RUN] collection: %d subjects (%v), bureau: %d agents", sample.Size(), counts, bureau.Size())
	return nil
}

// #endregion run

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
