// Command toygen writes a synthetic classification database, sized and
// shaped like a small survey, for exercising the batch runner end to
// end without real data.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"github.com/crowdcal/crowdcal/internal/stream"
)

// #region main

func main() {
	out := flag.String("out", "", "path of the SQLite database to write")
	events := flag.Int("events", 0, "number of classification events")
	volunteers := flag.Int("volunteers", 0, "number of volunteers")
	subjects := flag.Int("subjects", 0, "number of subjects")
	survey := flag.String("survey", "", "survey name stamped on every event")
	stage := flag.Int("stage", 0, "survey stage stamped on every event")
	seed := flag.Uint64("seed", 0, "generator seed (0 means nondeterministic)")
	flag.Parse()

	if *out == "" {
		fmt.Fprintln(os.Stderr, "usage: toygen --out toy.db [--events N] [--volunteers N] [--subjects N] [--survey name] [--stage N] [--seed N]")
		os.Exit(2)
	}

	cfg := stream.DefaultToyConfig()
	if *events > 0 {
		cfg.Events = *events
	}
	if *volunteers > 0 {
		cfg.Volunteers = *volunteers
	}
	if *subjects > 0 {
		cfg.Subjects = *subjects
	}
	if *survey != "" {
		cfg.Survey = *survey
	}
	if *stage > 0 {
		cfg.Stage = *stage
	}
	cfg.Seed = *seed

	if err := run(*out, cfg); err != nil {
		log.Fatalf("[TOYGEN] %v", err)
	}
}

func run(path string, cfg stream.ToyConfig) error {
	feed := stream.Toy(cfg)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	if err := stream.EnsureSchema(db); err != nil {
		return err
	}
	if err := stream.WriteEvents(db, feed); err != nil {
		return err
	}

	log.Printf("[TOYGEN] wrote %d events (%d volunteers, %d subjects, survey=%s stage=%d) to %s",
		len(feed), cfg.Volunteers, cfg.Subjects, cfg.Survey, cfg.Stage, path)
	return nil
}

// #endregion main
