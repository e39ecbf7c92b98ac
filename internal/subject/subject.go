// Package subject models one labeled item: an ensemble of posterior
// probability trajectories, scalar summaries, a decision state machine,
// and an annotation log.
package subject

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/crowdcal/crowdcal/internal/agent"
	"github.com/crowdcal/crowdcal/internal/domain"
)

// #region subject-struct

// Subject is one labeled item. Its posterior is not a single scalar but
// K independent trajectories, each updated with its own Monte-Carlo
// realization of the responsible agent's confusion matrix, so that the
// agent's estimation uncertainty becomes spread on the posterior.
type Subject struct {
	ID        string
	DisplayID string
	Category  domain.Category
	Kind      domain.Kind
	Truth     domain.Label

	cfg Config

	Trajectories []float64

	// Mean is the geometric mean across trajectories (mean in log
	// space); Median the 50th percentile. Thresholds act on Mean.
	Mean   float64
	Median float64

	Exposure int

	Status domain.Status
	State  domain.State

	RetiredAt     time.Time
	RetirementAge int

	History []Annotation
}

// #endregion subject-struct

// #region constructor

// New creates a subject at the configured prior. Category, kind and
// truth must be mutually consistent: training subjects carry a binary
// truth implied by their kind, test subjects are always UNKNOWN to the
// engine.
func New(id, displayID string, category domain.Category, kind domain.Kind, cfg Config) (*Subject, error) {
	var truth domain.Label
	switch category {
	case domain.CategoryTraining:
		if kind != domain.KindSim && kind != domain.KindDud {
			return nil, fmt.Errorf("subject %s: training subject with kind %q: %w", id, kind, domain.ErrInvalidLabel)
		}
		truth = kind.Truth()
	case domain.CategoryTest:
		if kind != domain.KindTest {
			return nil, fmt.Errorf("subject %s: test subject with kind %q: %w", id, kind, domain.ErrInvalidLabel)
		}
		truth = domain.LabelUnknown
	default:
		return nil, fmt.Errorf("subject %s: category %q: %w", id, category, domain.ErrInvalidLabel)
	}

	k := cfg.Trajectories
	if k < 1 {
		k = 1
	}
	traj := make([]float64, k)
	for i := range traj {
		traj[i] = cfg.Prior
	}

	s := &Subject{
		ID:           id,
		DisplayID:    displayID,
		Category:     category,
		Kind:         kind,
		Truth:        truth,
		cfg:          cfg,
		Trajectories: traj,
		Mean:         cfg.Prior,
		Median:       cfg.Prior,
		Status:       domain.StatusUndecided,
		State:        domain.StateActive,
	}
	return s, nil
}

// #endregion constructor

// #region observe

// Observe incorporates one classification by ag into all trajectories.
// The observation is always logged; it is a no-op on the posterior when
// hasty mode finds the subject already decided or retired, or when the
// agent has not cleared the grace period.
func (s *Subject) Observe(ag *agent.Agent, said domain.Label, at time.Time, click json.RawMessage, opts ObserveOptions) error {
	if !said.Binary() {
		return fmt.Errorf("subject %s: said %q: %w", s.ID, said, domain.ErrInvalidLabel)
	}

	s.pushAnnotation(Annotation{AgentName: ag.Name, Said: said, At: at, Click: click})

	if opts.LogOnly {
		return nil
	}
	if opts.Hasty && (s.State == domain.StateInactive || s.Status != domain.StatusUndecided) {
		return nil
	}
	if ag.NT < opts.GracePeriod {
		return nil
	}

	k := len(s.Trajectories)
	var pls, pds []float64
	if s.cfg.Deterministic || opts.Src == nil {
		pls = constant(k, ag.PL)
		pds = constant(k, ag.PD)
	} else {
		pls = ag.RealizePL(k, opts.Src)
		pds = ag.RealizePD(k, opts.Src)
	}

	for i := range s.Trajectories {
		s.Trajectories[i] = bayes(s.Trajectories[i], pls[i], pds[i], said, s.cfg.PMin)
	}

	s.refreshSummaries()
	s.Exposure++
	s.transition(at)
	return nil
}

// bayes applies the exact binary posterior update for one trajectory,
// floored at pmin.
func bayes(p, pl, pd float64, said domain.Label, pmin float64) float64 {
	var next float64
	if said == domain.LabelLens {
		den := p*pl + (1-p)*(1-pd)
		next = p * pl / den
	} else {
		den := p*(1-pl) + (1-p)*pd
		next = p * (1 - pl) / den
	}
	if next < pmin {
		next = pmin
	}
	return next
}

// #endregion observe

// #region summaries

func (s *Subject) refreshSummaries() {
	s.Mean = stat.GeometricMean(s.Trajectories, nil)

	sorted := make([]float64, len(s.Trajectories))
	copy(sorted, s.Trajectories)
	sort.Float64s(sorted)
	s.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// #endregion summaries

// #region state-machine

// transition runs the threshold state machine. Detected and Rejected are
// terminal; a rejected test subject is physically retired, while
// training subjects only accumulate status for selection-function
// scoring and never leave the stream.
func (s *Subject) transition(at time.Time) {
	if s.Status != domain.StatusUndecided {
		return
	}
	switch {
	case s.Mean > s.cfg.DetectionThreshold:
		s.Status = domain.StatusDetected
	case s.Mean < s.cfg.RejectionThreshold:
		s.Status = domain.StatusRejected
		if s.Category == domain.CategoryTest {
			s.State = domain.StateInactive
			s.RetiredAt = at
			s.RetirementAge = s.Exposure
		}
	}
}

// #endregion state-machine

// #region setters

// SetPosterior collapses every trajectory onto p, floored at pmin. Used
// by the offline refinement writeback, which replaces online posteriors
// wholesale.
func (s *Subject) SetPosterior(p float64) {
	if p < s.cfg.PMin {
		p = s.cfg.PMin
	}
	for i := range s.Trajectories {
		s.Trajectories[i] = p
	}
	s.Mean = p
	s.Median = p
}

// #endregion setters

// #region history

func (s *Subject) pushAnnotation(a Annotation) {
	s.History = append(s.History, a)
	if s.cfg.HistoryCap > 0 && len(s.History) > s.cfg.HistoryCap {
		s.History = s.History[len(s.History)-s.cfg.HistoryCap:]
	}
}

// #endregion history

// #region snapshot

// TakeSnapshot returns the serializable form of the subject.
func (s *Subject) TakeSnapshot() Snapshot {
	return Snapshot{
		ID:            s.ID,
		DisplayID:     s.DisplayID,
		Category:      s.Category,
		Kind:          s.Kind,
		Truth:         s.Truth,
		Trajectories:  s.Trajectories,
		Mean:          s.Mean,
		Median:        s.Median,
		Exposure:      s.Exposure,
		Status:        s.Status,
		State:         s.State,
		RetiredAt:     s.RetiredAt,
		RetirementAge: s.RetirementAge,
		History:       s.History,
	}
}

// FromSnapshot rebuilds a subject from a snapshot under the given
// config.
func FromSnapshot(snap Snapshot, cfg Config) *Subject {
	return &Subject{
		ID:            snap.ID,
		DisplayID:     snap.DisplayID,
		Category:      snap.Category,
		Kind:          snap.Kind,
		Truth:         snap.Truth,
		cfg:           cfg,
		Trajectories:  snap.Trajectories,
		Mean:          snap.Mean,
		Median:        snap.Median,
		Exposure:      snap.Exposure,
		Status:        snap.Status,
		State:         snap.State,
		RetiredAt:     snap.RetiredAt,
		RetirementAge: snap.RetirementAge,
		History:       snap.History,
	}
}

// #endregion snapshot

// #region helpers

func constant(k int, v float64) []float64 {
	out := make([]float64, k)
	for i := range out {
		out[i] = v
	}
	return out
}

// #endregion helpers
