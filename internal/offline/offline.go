// Package offline re-estimates confusion matrices and posteriors from
// the full annotation record with expectation maximization, instead of
// the one-pass online updates. The online pass is order-dependent and
// never revisits early events; this pass trades that for a batch
// fixed-point over everything seen so far.
package offline

import (
	"fmt"
	"log"
	"math"

	"github.com/crowdcal/crowdcal/internal/domain"
	"github.com/crowdcal/crowdcal/internal/registry"
)

// #region mode

// Mode selects which subjects anchor the maximization step.
type Mode string

const (
	// ModeSupervised pins training subjects to their known truth and
	// lets only them inform the confusion matrices.
	ModeSupervised Mode = "supervised"

	// ModeUnsupervised ignores truth entirely: test subjects contribute
	// with their estimated posteriors and training subjects sit out the
	// maximization, so the thetas come from survey data alone.
	ModeUnsupervised Mode = "unsupervised"

	// ModeBoth pins training truths and additionally lets test subjects
	// contribute with their estimated posteriors.
	ModeBoth Mode = "both"
)

// ParseMode maps a config string onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSupervised, ModeUnsupervised, ModeBoth:
		return Mode(s), nil
	}
	return "", fmt.Errorf("refinement mode %q: %w", s, domain.ErrInvalidLabel)
}

// #endregion mode

// #region config

// Config holds the EM parameters.
type Config struct {
	Mode Mode

	// Prior seeds every subject's tau before the first E step.
	Prior float64

	// InitialTheta seeds both confusion-matrix entries per agent.
	InitialTheta float64

	// MinAssessments is the smallest annotation count a subject needs to
	// enter the fit.
	MinAssessments int

	// MinIterations run unconditionally; after that the loop stops when
	// the tau movement drops below Epsilon or MaxIterations is reached.
	MinIterations int
	MaxIterations int
	Epsilon       float64
}

// DefaultConfig returns the standard refinement settings.
func DefaultConfig() Config {
	return Config{
		Mode:           ModeSupervised,
		Prior:          2e-4,
		InitialTheta:   0.75,
		MinAssessments: 1,
		MinIterations:  10,
		MaxIterations:  50,
		Epsilon:        1e-5,
	}
}

// #endregion config

// #region result

// Estimate is the refined confusion matrix of one agent, with the
// online values kept for comparison.
type Estimate struct {
	Theta1   float64 // Pr(says LENS | LENS)
	Theta0   float64 // Pr(says NOT | NOT)
	OnlinePL float64
	OnlinePD float64
	Subjects int
}

// Result is the converged state of one refinement run.
type Result struct {
	Pi     float64
	Taus   map[string]float64
	Agents map[string]Estimate

	Iterations     int
	Epsilon        float64
	EpsilonHistory []float64
	Converged      bool
}

// #endregion result

// #region assessment-graph

// vote is one edge of the bipartite agent/subject graph: x is 1 when
// the agent said LENS.
type vote struct {
	subjectID string
	x         float64
}

type fitAgent struct {
	theta1, theta0 float64
	votes          []vote
}

// anchorKind is how a subject enters the M step: pinned to truth, free,
// or excluded.
type anchorKind int

const (
	anchorFree anchorKind = iota
	anchorPinned
	anchorExcluded
)

// #endregion assessment-graph

// #region refine

// Refine runs EM over the annotation histories in sample, starting from
// cfg's seeds rather than the online estimates. It never mutates the
// registries; use Apply for the writeback.
func Refine(bureau *registry.Bureau, sample *registry.Collection, cfg Config) (Result, error) {
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return Result{}, err
	}

	agents := map[string]*fitAgent{}
	taus := map[string]float64{}
	anchors := map[string]anchorKind{}
	truths := map[string]float64{}

	for _, id := range sample.List() {
		sub, _ := sample.Lookup(id)
		if len(sub.History) < cfg.MinAssessments {
			continue
		}

		switch sub.Category {
		case domain.CategoryTraining:
			switch cfg.Mode {
			case ModeSupervised, ModeBoth:
				anchors[id] = anchorPinned
				if sub.Truth == domain.LabelLens {
					truths[id] = 1
				}
			default:
				// Unsupervised: the truth is ignored and so is the
				// subject. Its tau still moves in the E step, but only
				// survey subjects drive the thetas.
				anchors[id] = anchorExcluded
			}
		case domain.CategoryTest:
			if cfg.Mode == ModeSupervised {
				anchors[id] = anchorExcluded
			} else {
				anchors[id] = anchorFree
			}
		}

		taus[id] = cfg.Prior
		for _, ann := range sub.History {
			fa, ok := agents[ann.AgentName]
			if !ok {
				fa = &fitAgent{theta1: cfg.InitialTheta, theta0: cfg.InitialTheta}
				agents[ann.AgentName] = fa
			}
			x := 0.0
			if ann.Said == domain.LabelLens {
				x = 1
			}
			fa.votes = append(fa.votes, vote{subjectID: id, x: x})
		}
	}

	if len(taus) == 0 {
		return Result{}, fmt.Errorf("refine: no subject has %d assessments", cfg.MinAssessments)
	}

	pi := cfg.Prior
	res := Result{}
	eps := math.Inf(1)

	for (eps > cfg.Epsilon && res.Iterations < cfg.MaxIterations) || res.Iterations < cfg.MinIterations {
		next := estep(agents, taus)

		eps = 0
		for id, tau := range taus {
			d := tau - next[id]
			eps += d * d
		}
		eps = math.Sqrt(eps) / float64(len(taus))
		taus = next

		pi = mstep(agents, taus, anchors, truths)

		res.EpsilonHistory = append(res.EpsilonHistory, eps)
		res.Iterations++
	}

	res.Pi = pi
	res.Taus = taus
	res.Epsilon = eps
	res.Converged = eps <= cfg.Epsilon
	res.Agents = make(map[string]Estimate, len(agents))
	for name, fa := range agents {
		est := Estimate{Theta1: fa.theta1, Theta0: fa.theta0, Subjects: len(fa.votes)}
		if online, ok := bureau.Lookup(name); ok {
			est.OnlinePL = online.PL
			est.OnlinePD = online.PD
		}
		res.Agents[name] = est
	}

	log.Printf("[EM] mode=%s subjects=%d agents=%d iterations=%d epsilon=%.3g converged=%v",
		cfg.Mode, len(taus), len(agents), res.Iterations, res.Epsilon, res.Converged)
	return res, nil
}

// estep re-evaluates every tau as the mean, over the subject's votes, of
// the per-vote posterior odds of LENS under the current thetas.
func estep(agents map[string]*fitAgent, taus map[string]float64) map[string]float64 {
	sums := make(map[string]float64, len(taus))
	counts := make(map[string]float64, len(taus))

	for _, fa := range agents {
		for _, v := range fa.votes {
			tau, ok := taus[v.subjectID]
			if !ok {
				continue
			}
			pos := math.Pow(fa.theta1, v.x) * math.Pow(1-fa.theta1, 1-v.x) * tau
			neg := math.Pow(fa.theta0, 1-v.x) * math.Pow(1-fa.theta0, v.x) * (1 - tau)
			if pos+neg == 0 {
				continue
			}
			sums[v.subjectID] += pos / (pos + neg)
			counts[v.subjectID]++
		}
	}

	next := make(map[string]float64, len(taus))
	for id, tau := range taus {
		if counts[id] > 0 {
			next[id] = sums[id] / counts[id]
		} else {
			next[id] = tau
		}
	}
	return next
}

// mstep refits each agent's thetas against the current taus, with
// pinned subjects contributing their truth and excluded subjects
// skipped. Returns the refreshed global prior.
func mstep(agents map[string]*fitAgent, taus map[string]float64, anchors map[string]anchorKind, truths map[string]float64) float64 {
	var piNum, piDen float64

	for _, fa := range agents {
		var num1, den1, num0, den0, n float64
		for _, v := range fa.votes {
			var tau float64
			switch anchors[v.subjectID] {
			case anchorPinned:
				tau = truths[v.subjectID]
			case anchorFree:
				tau = taus[v.subjectID]
			default:
				continue
			}

			num1 += v.x * tau
			den1 += tau
			num0 += (1 - v.x) * (1 - tau)
			den0 += 1 - tau
			n++
		}

		// A one-sided vote set leaves a denominator empty; hold that
		// theta at its numerator scale rather than dividing by zero.
		if den1 == 0 {
			den1 = 1
		}
		if den0 == 0 {
			den0 = 1
		}
		fa.theta1 = num1 / den1
		fa.theta0 = num0 / den0

		piNum += den1
		piDen += n
	}

	if piDen == 0 {
		return 0
	}
	return piNum / piDen
}

// #endregion refine

// #region apply

// Apply writes a refinement back into the live registries: each agent's
// confusion matrix becomes its refined thetas, each subject's posterior
// collapses onto its tau.
func Apply(bureau *registry.Bureau, sample *registry.Collection, res Result) {
	for name, est := range res.Agents {
		if ag, ok := bureau.Lookup(name); ok {
			ag.SetConfusion(est.Theta1, est.Theta0)
		}
	}
	for id, tau := range res.Taus {
		if sub, ok := sample.Lookup(id); ok {
			sub.SetPosterior(tau)
		}
	}
	log.Printf("[EM] applied refinement: agents=%d subjects=%d pi=%.3g",
		len(res.Agents), len(res.Taus), res.Pi)
}

// #endregion apply
