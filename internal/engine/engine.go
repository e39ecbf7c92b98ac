// Package engine runs the online, single-pass update loop: one
// classification event at a time, agent and subject updated in a fixed
// order, with a resumable watermark and explicit batch accounting.
package engine

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"time"

	"github.com/crowdcal/crowdcal/internal/domain"
	"github.com/crowdcal/crowdcal/internal/registry"
	"github.com/crowdcal/crowdcal/internal/stream"
	"github.com/crowdcal/crowdcal/internal/subject"
)

// #region config

// Config holds the online-loop parameters.
type Config struct {
	// BatchLimit stops the batch after this many processed events.
	// Zero means no limit.
	BatchLimit int

	// End is an optional cutoff; an event after it ends the batch with
	// work remaining. Zero means no cutoff.
	End time.Time

	// GracePeriod is the number of learned training observations an
	// agent needs before its labels move any posterior.
	GracePeriod int

	// Hasty freezes decided or retired subjects instead of updating
	// them.
	Hasty bool

	// Learning enables supervised confusion-matrix updates from
	// training events.
	Learning bool

	// Unsupervised additionally nudges confusion matrices from test
	// events using the subject's current posterior.
	Unsupervised bool

	// AgentFirst updates the agent's confusion matrix before the
	// subject's posterior for the same event. The default, false, scores
	// each event with the pre-event confusion matrix; both orders exist
	// in this project's history and downstream calibration may depend on
	// either.
	AgentFirst bool

	// Seed fixes the Monte-Carlo source. Zero seeds from the clock.
	Seed uint64
}

// DefaultConfig returns the standard online-loop settings.
func DefaultConfig() Config {
	return Config{
		BatchLimit: 0,
		Learning:   true,
		Hasty:      false,
	}
}

// #endregion config

// #region summary

// Summary is the explicit result of one batch run. "Nothing to do" is a
// value here, never an error: an exhausted survey is an expected steady
// state.
type Summary struct {
	Seen      int // events pulled from the cursor, including skips
	Skipped   int // malformed or out-of-scope events
	Processed int // events that updated the registries

	// Watermark is the timestamp of the first event processed in this
	// batch; Resume and ResumeID identify the last event folded in, the
	// point the next batch starts strictly after. The id breaks ties
	// when a batch boundary falls between events sharing a timestamp.
	Watermark time.Time
	Resume    time.Time
	ResumeID  string

	// HasMore reports whether the batch stopped before exhausting the
	// feed.
	HasMore bool

	// Empty reports a zero-progress batch.
	Empty bool
}

// #endregion summary

// #region engine-struct

// Engine drives the online loop over one bureau/collection pair. It is
// single-threaded by design: events are strictly ordered, and each
// update is O(K).
type Engine struct {
	cfg    Config
	bureau *registry.Bureau
	sample *registry.Collection
	src    rand.Source
}

// New wires an engine to its registries.
func New(cfg Config, bureau *registry.Bureau, sample *registry.Collection) *Engine {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Engine{
		cfg:    cfg,
		bureau: bureau,
		sample: sample,
		src:    rand.NewPCG(seed, seed^0xda3e39cb94b95bdb),
	}
}

// Bureau returns the agent registry the engine mutates.
func (e *Engine) Bureau() *registry.Bureau { return e.bureau }

// Sample returns the subject registry the engine mutates.
func (e *Engine) Sample() *registry.Collection { return e.sample }

// #endregion engine-struct

// #region run

// Run consumes events from src until the feed is exhausted, the batch
// limit is reached, or the end cutoff passes. Malformed events are
// skipped and counted; a schema violation aborts with an error and a
// partial summary.
func (e *Engine) Run(src stream.Source) (Summary, error) {
	var sum Summary
	var lastAt time.Time
	var lastID string

	for {
		if e.cfg.BatchLimit > 0 && sum.Processed >= e.cfg.BatchLimit {
			// Without peeking there is no telling a full batch from an
			// exactly exhausted feed; the follow-up run comes back Empty
			// and the caller stops there.
			sum.HasMore = true
			break
		}

		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, stream.ErrMalformed) {
			sum.Seen++
			sum.Skipped++
			continue
		}
		if err != nil {
			sum.Empty = sum.Processed == 0
			return sum, fmt.Errorf("batch aborted after %d events: %w", sum.Processed, err)
		}

		sum.Seen++

		if !e.cfg.End.IsZero() && ev.At.After(e.cfg.End) {
			sum.HasMore = true
			break
		}
		if !lastAt.IsZero() && ev.At.Before(lastAt) {
			// The cursor promised time order; note the violation but
			// keep the watermark honest by not rewinding it.
			log.Printf("[ENGINE] out-of-order event %s at %s (cursor at %s)", ev.ID, ev.At, lastAt)
		} else {
			lastAt = ev.At
			lastID = ev.ID
		}

		if err := e.process(ev); err != nil {
			sum.Empty = sum.Processed == 0
			return sum, fmt.Errorf("event %s: %w", ev.ID, err)
		}

		if sum.Processed == 0 {
			sum.Watermark = ev.At
		}
		sum.Processed++
		sum.Resume = lastAt
		sum.ResumeID = lastID
	}

	sum.Empty = sum.Processed == 0
	log.Printf("[ENGINE] batch done: seen=%d skipped=%d processed=%d hasMore=%v",
		sum.Seen, sum.Skipped, sum.Processed, sum.HasMore)
	return sum, nil
}

// #endregion run

// #region process

// process applies one event in the fixed order: subject posterior first
// (scored with the pre-event confusion matrix), then agent learning.
// AgentFirst reverses the two.
func (e *Engine) process(ev stream.Event) error {
	ag := e.bureau.Member(ev.AgentName)
	sub, err := e.sample.Member(ev.SubjectID, ev.DisplayID, ev.Category, ev.Kind)
	if err != nil {
		return err
	}

	if ag.Banned {
		// Keep the audit trail, freeze everything else.
		return sub.Observe(ag, ev.Said, ev.At, ev.Click, subject.ObserveOptions{LogOnly: true})
	}

	observe := func() error {
		return sub.Observe(ag, ev.Said, ev.At, ev.Click, subject.ObserveOptions{
			GracePeriod: e.cfg.GracePeriod,
			Hasty:       e.cfg.Hasty,
			Src:         e.src,
		})
	}

	priorBefore := sub.Mean

	learn := func() error {
		switch ev.Category {
		case domain.CategoryTraining:
			return ag.HeardTraining(ev.Said, ev.Truth, e.cfg.Learning)
		case domain.CategoryTest:
			ag.RecordTest(ev.SubjectID, priorBefore, ev.Said)
			if e.cfg.Unsupervised {
				return ag.HeardEstimate(ev.Said, sub.Mean, e.cfg.Learning)
			}
			return nil
		}
		return fmt.Errorf("category %q: %w", ev.Category, domain.ErrInvalidLabel)
	}

	if e.cfg.AgentFirst {
		if err := learn(); err != nil {
			return err
		}
		return observe()
	}
	if err := observe(); err != nil {
		return err
	}
	return learn()
}

// #endregion process
