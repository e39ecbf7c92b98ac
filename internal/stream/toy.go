package stream

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/crowdcal/crowdcal/internal/domain"
)

// #region toy-config

// ToyConfig shapes a synthetic classification feed. Every toy volunteer
// classifies with the same hidden confusion matrix, which makes the
// engine's recovered estimates easy to check.
type ToyConfig struct {
	Volunteers int
	Subjects   int
	Events     int

	// TrainingFraction of subjects have known truth; of those,
	// SimFraction are positives.
	TrainingFraction float64
	SimFraction      float64

	// PositiveFraction of test subjects are secretly positive, used only
	// to draw plausible labels.
	PositiveFraction float64

	// HiddenPL and HiddenPD are the volunteers' true confusion matrix.
	HiddenPL float64
	HiddenPD float64

	Survey string
	Stage  int

	Start time.Time
	Tick  time.Duration

	Seed uint64
}

// DefaultToyConfig mirrors the scale of the original toy database.
func DefaultToyConfig() ToyConfig {
	return ToyConfig{
		Volunteers:       100,
		Subjects:         1000,
		Events:           10000,
		TrainingFraction: 0.5,
		SimFraction:      0.5,
		PositiveFraction: 0.001,
		HiddenPL:         0.9,
		HiddenPD:         0.8,
		Survey:           "toy",
		Stage:            1,
		Start:            time.Date(2014, 3, 1, 0, 0, 0, 0, time.UTC),
		Tick:             time.Second,
	}
}

// #endregion toy-config

// #region toy-generator

type toySubject struct {
	id       string
	category domain.Category
	kind     domain.Kind
	truth    domain.Label
}

// Toy generates a time-ordered synthetic event stream.
func Toy(cfg ToyConfig) []Event {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	volunteers := make([]string, cfg.Volunteers)
	for i := range volunteers {
		volunteers[i] = fmt.Sprintf("volunteer-%03d", i)
	}

	subjects := make([]toySubject, cfg.Subjects)
	for i := range subjects {
		ts := toySubject{id: fmt.Sprintf("subject-%05d", i)}
		if rng.Float64() < cfg.TrainingFraction {
			ts.category = domain.CategoryTraining
			if rng.Float64() < cfg.SimFraction {
				ts.kind = domain.KindSim
			} else {
				ts.kind = domain.KindDud
			}
			ts.truth = ts.kind.Truth()
		} else {
			ts.category = domain.CategoryTest
			ts.kind = domain.KindTest
			// Hidden truth, never exposed on the event.
			if rng.Float64() < cfg.PositiveFraction {
				ts.truth = domain.LabelLens
			} else {
				ts.truth = domain.LabelNot
			}
		}
		subjects[i] = ts
	}

	events := make([]Event, cfg.Events)
	for i := range events {
		vol := volunteers[rng.IntN(len(volunteers))]
		sub := subjects[rng.IntN(len(subjects))]

		var said domain.Label
		if sub.truth == domain.LabelLens {
			if rng.Float64() < cfg.HiddenPL {
				said = domain.LabelLens
			} else {
				said = domain.LabelNot
			}
		} else {
			if rng.Float64() < cfg.HiddenPD {
				said = domain.LabelNot
			} else {
				said = domain.LabelLens
			}
		}

		truth := domain.LabelUnknown
		if sub.category == domain.CategoryTraining {
			truth = sub.truth
		}

		events[i] = Event{
			ID:        uuid.New().String(),
			At:        cfg.Start.Add(time.Duration(i) * cfg.Tick),
			AgentName: vol,
			SubjectID: sub.id,
			DisplayID: sub.id,
			Survey:    cfg.Survey,
			Stage:     cfg.Stage,
			Category:  sub.category,
			Kind:      sub.kind,
			Said:      said,
			Truth:     truth,
			Click:     []byte(fmt.Sprintf(`{"x":%d,"y":%d}`, rng.IntN(440), rng.IntN(440))),
		}
	}
	return events
}

// #endregion toy-generator
