// Package agent models one volunteer's reliability as a two-parameter
// confusion matrix, learned online from ground-truth-known observations
// and optionally nudged by unsupervised posterior estimates.
package agent

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/crowdcal/crowdcal/internal/domain"
	"github.com/crowdcal/crowdcal/internal/infometric"
)

// #region agent-struct

// Agent is the engine's model of one volunteer. PL and PD are the
// confusion-matrix elements Pr("LENS"|LENS) and Pr("NOT"|NOT); NL and
// ND are the effective observation counts behind them.
type Agent struct {
	Name string
	cfg  Config

	PL float64
	PD float64
	NL float64
	ND float64

	N  int // all-time classifications heard
	NT int // training classifications actually learned from

	// Skill is the expected information gain per classification at the
	// configured prior, recomputed after every heard observation.
	Skill float64

	// Banned excludes the agent from further updates without discarding
	// its history.
	Banned bool

	Training []TrainingRecord
	Tests    []TestRecord
}

// #endregion agent-struct

// #region constructor

// New creates an agent with the configured initial confusion matrix and
// pseudo-count base. The training timeline is seeded with the initial
// state so plots and audits start from the prior.
func New(name string, cfg Config) *Agent {
	a := &Agent{
		Name: name,
		cfg:  cfg,
		PL:   clamp(cfg.InitialPL, cfg.PLMin, cfg.PLMax),
		PD:   clamp(cfg.InitialPD, cfg.PDMin, cfg.PDMax),
		NL:   2 + cfg.Skepticism,
		ND:   2 + cfg.Skepticism,
	}
	a.updateSkill()
	a.pushTraining(TrainingRecord{
		PL:    a.PL,
		PD:    a.PD,
		Skill: a.Skill,
		Said:  domain.LabelUnknown,
		Truth: domain.LabelUnknown,
	})
	return a
}

// #endregion constructor

// #region heard-training

// HeardTraining updates the confusion matrix from one observation whose
// ground truth is known. When learn is false the observation is still
// logged but PL, PD, NL, ND stay frozen. An unrecognized label is a
// schema violation and returns domain.ErrInvalidLabel.
func (a *Agent) HeardTraining(said, truth domain.Label, learn bool) error {
	if !said.Binary() {
		return fmt.Errorf("said %q: %w", said, domain.ErrInvalidLabel)
	}

	switch truth {
	case domain.LabelLens:
		if learn {
			correct := 0.0
			if said == truth {
				correct = 1
			}
			a.PL = clamp((a.PL*a.NL+correct)/(a.NL+1), a.cfg.PLMin, a.cfg.PLMax)
			a.NL++
			a.NT++
		}
	case domain.LabelNot:
		if learn {
			correct := 0.0
			if said == truth {
				correct = 1
			}
			a.PD = clamp((a.PD*a.ND+correct)/(a.ND+1), a.cfg.PDMin, a.cfg.PDMax)
			a.ND++
			a.NT++
		}
	default:
		return fmt.Errorf("truth %q: %w", truth, domain.ErrInvalidLabel)
	}

	a.N++
	a.updateSkill()
	a.pushTraining(TrainingRecord{PL: a.PL, PD: a.PD, Skill: a.Skill, Said: said, Truth: truth})
	return nil
}

// #endregion heard-training

// #region heard-estimate

// HeardEstimate nudges the confusion matrix from an observation whose
// truth is unknown, using the subject's current posterior p as a
// fractional pseudo-count. This couples confusion-matrix quality to
// posterior quality; callers opt in via the unsupervised learning mode.
func (a *Agent) HeardEstimate(said domain.Label, p float64, learn bool) error {
	if !said.Binary() {
		return fmt.Errorf("said %q: %w", said, domain.ErrInvalidLabel)
	}

	if learn {
		switch said {
		case domain.LabelLens:
			a.PL = clamp((a.PL*a.NL+p)/(a.NL+p), a.cfg.PLMin, a.cfg.PLMax)
			a.NL += p
			a.PD = clamp((a.PD*a.ND)/(a.ND+(1-p)), a.cfg.PDMin, a.cfg.PDMax)
			a.ND += 1 - p
		case domain.LabelNot:
			a.PL = clamp((a.PL*a.NL)/(a.NL+p), a.cfg.PLMin, a.cfg.PLMax)
			a.NL += p
			a.PD = clamp((a.PD*a.ND+(1-p))/(a.ND+(1-p)), a.cfg.PDMin, a.cfg.PDMax)
			a.ND += 1 - p
		}
		// NT untouched: survey subjects do not count as training.
	}

	// N untouched too: the sighting was already counted by RecordTest
	// for the same classification.
	a.updateSkill()
	a.pushTraining(TrainingRecord{PL: a.PL, PD: a.PD, Skill: a.Skill, Said: said, Truth: domain.LabelUnknown})
	return nil
}

// #endregion heard-estimate

// #region record-test

// RecordTest logs the realized information gain of one classification of
// a survey subject that arrived with prior p0.
func (a *Agent) RecordTest(subjectID string, p0 float64, said domain.Label) {
	gain := infometric.InformationGain(p0, a.PL, a.PD, said == domain.LabelLens)
	a.N++
	a.pushTest(TestRecord{SubjectID: subjectID, Skill: a.Skill, Gain: gain, Said: said})
}

// #endregion record-test

// #region realizations

// RealizePL draws k Monte-Carlo realizations of PL from the binomial
// uncertainty implied by NL, clamped to the configured band. This is how
// the agent's own estimation uncertainty reaches subject posteriors.
func (a *Agent) RealizePL(k int, src rand.Source) []float64 {
	return realize(k, a.NL, a.PL, a.cfg.PLMin, a.cfg.PLMax, src)
}

// RealizePD draws k Monte-Carlo realizations of PD from the binomial
// uncertainty implied by ND, clamped to the configured band.
func (a *Agent) RealizePD(k int, src rand.Source) []float64 {
	return realize(k, a.ND, a.PD, a.cfg.PDMin, a.cfg.PDMax, src)
}

func realize(k int, n, p, lo, hi float64, src rand.Source) []float64 {
	// NL and ND can be fractional after unsupervised updates; the
	// binomial draw needs an integer trial count.
	trials := math.Max(1, math.Round(n))
	bin := distuv.Binomial{N: trials, P: p, Src: src}

	out := make([]float64, k)
	for i := range out {
		out[i] = clamp(bin.Rand()/trials, lo, hi)
	}
	return out
}

// #endregion realizations

// #region setters

// SetConfusion replaces the confusion matrix, clamped to the band, and
// recomputes skill. Used by the offline refinement writeback.
func (a *Agent) SetConfusion(pl, pd float64) {
	a.PL = clamp(pl, a.cfg.PLMin, a.cfg.PLMax)
	a.PD = clamp(pd, a.cfg.PDMin, a.cfg.PDMax)
	a.updateSkill()
}

// #endregion setters

// #region skill

func (a *Agent) updateSkill() {
	a.Skill = infometric.ExpectedInformationGain(a.cfg.SkillPrior, a.PL, a.PD)
}

// #endregion skill

// #region history

func (a *Agent) pushTraining(rec TrainingRecord) {
	a.Training = append(a.Training, rec)
	if a.cfg.HistoryCap > 0 && len(a.Training) > a.cfg.HistoryCap {
		a.Training = a.Training[len(a.Training)-a.cfg.HistoryCap:]
	}
}

func (a *Agent) pushTest(rec TestRecord) {
	a.Tests = append(a.Tests, rec)
	if a.cfg.HistoryCap > 0 && len(a.Tests) > a.cfg.HistoryCap {
		a.Tests = a.Tests[len(a.Tests)-a.cfg.HistoryCap:]
	}
}

// #endregion history

// #region snapshot

// TakeSnapshot returns the serializable form of the agent.
func (a *Agent) TakeSnapshot() Snapshot {
	return Snapshot{
		Name:     a.Name,
		PL:       a.PL,
		PD:       a.PD,
		NL:       a.NL,
		ND:       a.ND,
		N:        a.N,
		NT:       a.NT,
		Skill:    a.Skill,
		Banned:   a.Banned,
		Training: a.Training,
		Tests:    a.Tests,
	}
}

// FromSnapshot rebuilds an agent from a snapshot under the given config.
func FromSnapshot(snap Snapshot, cfg Config) *Agent {
	a := &Agent{
		Name:     snap.Name,
		cfg:      cfg,
		PL:       clamp(snap.PL, cfg.PLMin, cfg.PLMax),
		PD:       clamp(snap.PD, cfg.PDMin, cfg.PDMax),
		NL:       snap.NL,
		ND:       snap.ND,
		N:        snap.N,
		NT:       snap.NT,
		Banned:   snap.Banned,
		Training: snap.Training,
		Tests:    snap.Tests,
	}
	a.updateSkill()
	return a
}

// #endregion snapshot

// #region helpers

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// #endregion helpers
