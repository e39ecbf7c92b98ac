// Package calibration scores the run against the training subjects: how
// many simulated positives were caught, how many known negatives leaked
// through, and how both move as the decision threshold sweeps.
package calibration

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/crowdcal/crowdcal/internal/domain"
	"github.com/crowdcal/crowdcal/internal/registry"
)

// #region report

// Report buckets the collection by outcome. Candidates are survey
// subjects crossing the detection threshold; the three training buckets
// measure the selection function.
type Report struct {
	Candidates     []string // test subjects, detected
	TruePositives  []string // sims, detected
	FalsePositives []string // duds, detected
	FalseNegatives []string // sims, rejected

	// Completeness is the caught fraction of all sims; Purity the sim
	// fraction among everything detected in training.
	Completeness float64
	Purity       float64
}

// BuildReport walks the collection once and buckets every subject by
// category, kind and status.
func BuildReport(sample *registry.Collection) Report {
	var rep Report
	var sims, detectedSims int

	for _, id := range sample.List() {
		sub, _ := sample.Lookup(id)

		if sub.Category == domain.CategoryTest {
			if sub.Status == domain.StatusDetected {
				rep.Candidates = append(rep.Candidates, id)
			}
			continue
		}

		switch sub.Kind {
		case domain.KindSim:
			sims++
			switch sub.Status {
			case domain.StatusDetected:
				detectedSims++
				rep.TruePositives = append(rep.TruePositives, id)
			case domain.StatusRejected:
				rep.FalseNegatives = append(rep.FalseNegatives, id)
			}
		case domain.KindDud:
			if sub.Status == domain.StatusDetected {
				rep.FalsePositives = append(rep.FalsePositives, id)
			}
		}
	}

	sort.Strings(rep.Candidates)
	sort.Strings(rep.TruePositives)
	sort.Strings(rep.FalsePositives)
	sort.Strings(rep.FalseNegatives)

	if sims > 0 {
		rep.Completeness = float64(detectedSims) / float64(sims)
	}
	if det := len(rep.TruePositives) + len(rep.FalsePositives); det > 0 {
		rep.Purity = float64(len(rep.TruePositives)) / float64(det)
	}
	return rep
}

// #endregion report

// #region sweep

// Point is one operating point of the selection function: the fraction
// of sims (TPR) and duds (FPR) whose posterior clears the threshold.
type Point struct {
	Threshold    float64
	TPR          float64
	FPR          float64
	Completeness float64
	Purity       float64
}

// Sweep evaluates n log-spaced thresholds between lo and hi against the
// training posteriors. Posteriors span many decades, so a linear grid
// would waste almost all its points above the interesting region.
func Sweep(sample *registry.Collection, lo, hi float64, n int) []Point {
	if n < 2 || lo <= 0 || hi <= lo {
		return nil
	}

	sims := sample.Probabilities(domain.KindSim)
	duds := sample.Probabilities(domain.KindDud)

	thresholds := floats.LogSpan(make([]float64, n), lo, hi)
	points := make([]Point, 0, n)
	for _, thr := range thresholds {
		tp := countAbove(sims, thr)
		fp := countAbove(duds, thr)

		p := Point{Threshold: thr}
		if len(sims) > 0 {
			p.TPR = float64(tp) / float64(len(sims))
			p.Completeness = p.TPR
		}
		if len(duds) > 0 {
			p.FPR = float64(fp) / float64(len(duds))
		}
		if tp+fp > 0 {
			p.Purity = float64(tp) / float64(tp+fp)
		}
		points = append(points, p)
	}
	return points
}

func countAbove(ps []float64, thr float64) int {
	n := 0
	for _, p := range ps {
		if p > thr {
			n++
		}
	}
	return n
}

// #endregion sweep
