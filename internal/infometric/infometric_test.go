package infometric

import (
	"math"
	"testing"
)

func TestShannonZeroGuard(t *testing.T) {
	if got := Shannon(0); got != 0 {
		t.Fatalf("Shannon(0) = %v, want 0", got)
	}
	if got := Shannon(-0.1); got != 0 {
		t.Fatalf("Shannon(-0.1) = %v, want 0", got)
	}
	if math.IsNaN(Shannon(1e-300)) {
		t.Fatal("Shannon underflowed to NaN")
	}
}

func TestShannonHalf(t *testing.T) {
	// 0.5 * log2(0.5) = -0.5
	if got := Shannon(0.5); math.Abs(got+0.5) > 1e-12 {
		t.Fatalf("Shannon(0.5) = %v, want -0.5", got)
	}
}

func TestExpectedGainRandomClassifier(t *testing.T) {
	// A coin-flipping classifier contributes no information at any prior.
	for _, p0 := range []float64{0.5, 0.0002, 0.99} {
		got := ExpectedInformationGain(p0, 0.5, 0.5)
		if math.Abs(got) > 1e-12 {
			t.Fatalf("random classifier at p0=%v gained %v bits, want 0", p0, got)
		}
	}
}

func TestExpectedGainPerfectClassifier(t *testing.T) {
	// A perfect classifier at even prior contributes exactly one bit.
	got := ExpectedInformationGain(0.5, 1.0, 1.0)
	if math.Abs(got-1.0) > 1e-12 {
		t.Fatalf("perfect classifier gained %v bits, want 1", got)
	}
}

func TestExpectedGainExtremePriorFinite(t *testing.T) {
	for _, p0 := range []float64{0, 1, 1e-300} {
		got := ExpectedInformationGain(p0, 0.99, 0.99)
		if math.IsNaN(got) || math.IsInf(got, 0) {
			t.Fatalf("gain at p0=%v not finite: %v", p0, got)
		}
	}
}

func TestRealizedGainFinite(t *testing.T) {
	cases := []struct {
		p0, pl, pd float64
		said       bool
	}{
		{0.5, 0.8, 0.8, true},
		{0.5, 0.8, 0.8, false},
		{0.0002, 0.99, 0.99, true},
		{0.0002, 0.01, 0.01, false},
		{1, 1, 1, false}, // pc = 0 branch
	}
	for _, c := range cases {
		got := InformationGain(c.p0, c.pl, c.pd, c.said)
		if math.IsNaN(got) || math.IsInf(got, 0) {
			t.Fatalf("InformationGain(%v,%v,%v,%v) not finite: %v", c.p0, c.pl, c.pd, c.said, got)
		}
	}
}

func TestRealizedGainSkilledPositiveCall(t *testing.T) {
	// A skilled classifier calling a rare subject positive moves more
	// information than an unskilled one.
	skilled := InformationGain(0.0002, 0.9, 0.9, true)
	weak := InformationGain(0.0002, 0.55, 0.55, true)
	if math.Abs(skilled) <= math.Abs(weak) {
		t.Fatalf("skilled gain %v not larger than weak gain %v", skilled, weak)
	}
}
