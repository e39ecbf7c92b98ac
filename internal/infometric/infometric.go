// Package infometric provides the Shannon-information helpers used to
// score a classifier's confusion matrix against a subject prior.
package infometric

import "math"

// #region shannon

// Shannon returns x*log2(x), with the convention Shannon(0) = 0. The
// guard is explicit: relying on IEEE 0*Inf propagation would leak NaNs
// into every downstream skill estimate.
func Shannon(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return x * math.Log2(x)
}

// #endregion

// #region expected-gain

// ExpectedInformationGain is the expectation, over both possible truths
// and both possible reported labels, of the mutual information one
// classification from a confusion matrix (pl, pd) contributes about a
// subject whose prior probability of being positive is p0.
//
// pl = Pr(says positive | truth positive), pd = Pr(says negative | truth
// negative).
func ExpectedInformationGain(p0, pl, pd float64) float64 {
	p1 := 1 - p0

	return p0*(Shannon(pl)+Shannon(1-pl)) +
		p1*(Shannon(pd)+Shannon(1-pd)) -
		Shannon(pl*p0+(1-pd)*p1) -
		Shannon((1-pl)*p0+pd*p1)
}

// #endregion

// #region realized-gain

// InformationGain is the information actually transmitted by one realized
// classification, as opposed to its expectation: the contribution of a
// classifier with confusion matrix (pl, pd) who called a subject of prior
// p0 positive (saidPositive) or negative.
func InformationGain(p0, pl, pd float64, saidPositive bool) float64 {
	p1 := 1 - p0

	var mcl, mcn float64
	if saidPositive {
		mcl = pl
		mcn = 1 - pd
	} else {
		mcl = 1 - pl
		mcn = pd
	}

	pc := mcl*p0 + mcn*p1
	if pc <= 0 {
		return 0
	}

	return p0*Shannon(mcl/pc) + p1*Shannon(mcn/pc)
}

// #endregion
