package replay

import (
	"fmt"

	"github.com/crowdcal/crowdcal/internal/engine"
	"github.com/crowdcal/crowdcal/internal/registry"
	"github.com/crowdcal/crowdcal/internal/stream"
)

// #region types

// Result compares one expectation against what the replayed run
// produced.
type Result struct {
	SubjectID  string
	WantStatus string
	GotStatus  string
	WantState  string
	GotState   string
	Match      bool
}

// Summary is the outcome of replaying one fixture in-memory.
type Summary struct {
	Description string
	Seen        int
	Skipped     int
	Processed   int

	Results    []Result
	Mismatches int

	// The registries the replay produced, for further inspection.
	Bureau *registry.Bureau
	Sample *registry.Collection
}

// #endregion types

// #region replay

// Replay runs a fixture's events through a fresh engine and checks each
// expectation. Operates entirely in-memory; a mismatch is a result, not
// an error.
func Replay(f *Fixture) (Summary, error) {
	events := make([]stream.Event, 0, len(f.Events))
	for i := range f.Events {
		ev, err := f.Events[i].ToEvent()
		if err != nil {
			return Summary{}, err
		}
		events = append(events, ev)
	}

	bureau := registry.NewBureau(f.Config.Agents.ToAgentConfig())
	sample := registry.NewCollection(f.Config.Subjects.ToSubjectConfig())
	eng := engine.New(f.Config.Engine.ToEngineConfig(), bureau, sample)

	batch, err := eng.Run(stream.NewSliceSource(events))
	if err != nil {
		return Summary{}, fmt.Errorf("replay %q: %w", f.Description, err)
	}

	sum := Summary{
		Description: f.Description,
		Seen:        batch.Seen,
		Skipped:     batch.Skipped,
		Processed:   batch.Processed,
		Bureau:      bureau,
		Sample:      sample,
	}

	for _, exp := range f.Expected {
		res := Result{
			SubjectID:  exp.SubjectID,
			WantStatus: exp.Status,
			WantState:  exp.State,
		}
		if sub, ok := sample.Lookup(exp.SubjectID); ok {
			res.GotStatus = string(sub.Status)
			res.GotState = string(sub.State)
		}
		res.Match = res.GotStatus == res.WantStatus &&
			(res.WantState == "" || res.GotState == res.WantState)
		if !res.Match {
			sum.Mismatches++
		}
		sum.Results = append(sum.Results, res)
	}
	return sum, nil
}

// #endregion replay
