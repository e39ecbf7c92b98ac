package subject

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crowdcal/crowdcal/internal/agent"
	"github.com/crowdcal/crowdcal/internal/domain"
)

func testAgent(pl, pd float64) *agent.Agent {
	cfg := agent.DefaultConfig()
	cfg.InitialPL = pl
	cfg.InitialPD = pd
	return agent.New("vol", cfg)
}

func deterministicConfig() Config {
	cfg := DefaultConfig()
	cfg.Deterministic = true
	return cfg
}

func TestNewValidation(t *testing.T) {
	_, err := New("s1", "", domain.CategoryTraining, domain.KindTest, DefaultConfig())
	require.ErrorIs(t, err, domain.ErrInvalidLabel)

	_, err = New("s2", "", domain.CategoryTest, domain.KindSim, DefaultConfig())
	require.ErrorIs(t, err, domain.ErrInvalidLabel)

	sim, err := New("s3", "", domain.CategoryTraining, domain.KindSim, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, domain.LabelLens, sim.Truth)

	tst, err := New("s4", "", domain.CategoryTest, domain.KindTest, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, domain.LabelUnknown, tst.Truth)
	require.Equal(t, domain.StateActive, tst.State)
}

func TestBayesUpdateExact(t *testing.T) {
	cfg := deterministicConfig()
	cfg.Prior = 0.5
	s, err := New("s", "", domain.CategoryTest, domain.KindTest, cfg)
	require.NoError(t, err)

	ag := testAgent(0.8, 0.8)
	require.NoError(t, s.Observe(ag, domain.LabelLens, time.Now(), nil, ObserveOptions{}))

	// 0.5*0.8 / (0.5*0.8 + 0.5*0.2) = 0.8 exactly.
	require.InDelta(t, 0.8, s.Mean, 1e-12)
	require.InDelta(t, 0.8, s.Median, 1e-12)
	require.Equal(t, 1, s.Exposure)
}

func TestTrajectoryFloor(t *testing.T) {
	cfg := deterministicConfig()
	s, err := New("s", "", domain.CategoryTest, domain.KindTest, cfg)
	require.NoError(t, err)

	ag := testAgent(0.9, 0.9)
	for i := 0; i < 50; i++ {
		require.NoError(t, s.Observe(ag, domain.LabelNot, time.Now(), nil, ObserveOptions{}))
	}
	for _, p := range s.Trajectories {
		require.GreaterOrEqual(t, p, cfg.PMin)
	}
}

func TestInvalidLabelFatal(t *testing.T) {
	s, err := New("s", "", domain.CategoryTest, domain.KindTest, deterministicConfig())
	require.NoError(t, err)
	err = s.Observe(testAgent(0.8, 0.8), domain.LabelUnknown, time.Now(), nil, ObserveOptions{})
	require.ErrorIs(t, err, domain.ErrInvalidLabel)
}

func TestGracePeriodBlocksUpdate(t *testing.T) {
	s, err := New("s", "", domain.CategoryTest, domain.KindTest, deterministicConfig())
	require.NoError(t, err)

	ag := testAgent(0.9, 0.9) // NT = 0, unvetted
	require.NoError(t, s.Observe(ag, domain.LabelLens, time.Now(), nil, ObserveOptions{GracePeriod: 5}))

	require.InDelta(t, s.Mean, 2e-4, 1e-12, "unvetted agent moved the posterior")
	require.Equal(t, 0, s.Exposure)
	require.Len(t, s.History, 1, "observation must still be logged")
}

func TestRetirementOfRejectedTestSubject(t *testing.T) {
	cfg := deterministicConfig()
	cfg.RejectionThreshold = 1e-5
	s, err := New("s", "disp-1", domain.CategoryTest, domain.KindTest, cfg)
	require.NoError(t, err)

	ag := testAgent(0.9, 0.9)
	at := time.Date(2014, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10 && s.Status == domain.StatusUndecided; i++ {
		require.NoError(t, s.Observe(ag, domain.LabelNot, at, nil, ObserveOptions{}))
	}

	require.Equal(t, domain.StatusRejected, s.Status)
	require.Equal(t, domain.StateInactive, s.State)
	require.Equal(t, at, s.RetiredAt)
	require.Equal(t, s.Exposure, s.RetirementAge)
}

func TestTrainingSubjectNeverRetires(t *testing.T) {
	cfg := deterministicConfig()
	s, err := New("s", "", domain.CategoryTraining, domain.KindSim, cfg)
	require.NoError(t, err)

	ag := testAgent(0.9, 0.9)
	for i := 0; i < 10 && s.Status == domain.StatusUndecided; i++ {
		require.NoError(t, s.Observe(ag, domain.LabelNot, time.Now(), nil, ObserveOptions{}))
	}

	require.Equal(t, domain.StatusRejected, s.Status)
	require.Equal(t, domain.StateActive, s.State, "training subjects stay active")
}

func TestHastyFreezesDecidedSubject(t *testing.T) {
	cfg := deterministicConfig()
	cfg.Prior = 0.5
	cfg.DetectionThreshold = 0.7
	s, err := New("s", "", domain.CategoryTest, domain.KindTest, cfg)
	require.NoError(t, err)

	ag := testAgent(0.9, 0.9)
	require.NoError(t, s.Observe(ag, domain.LabelLens, time.Now(), nil, ObserveOptions{Hasty: true}))
	require.Equal(t, domain.StatusDetected, s.Status)

	mean, median, exposure := s.Mean, s.Median, s.Exposure
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Observe(ag, domain.LabelNot, time.Now(), nil, ObserveOptions{Hasty: true}))
	}
	require.Equal(t, mean, s.Mean)
	require.Equal(t, median, s.Median)
	require.Equal(t, exposure, s.Exposure)
	require.Len(t, s.History, 6, "frozen observations still logged")
}

func TestStatusTerminalWithoutHasty(t *testing.T) {
	cfg := deterministicConfig()
	cfg.Prior = 0.5
	cfg.DetectionThreshold = 0.7
	s, err := New("s", "", domain.CategoryTest, domain.KindTest, cfg)
	require.NoError(t, err)

	ag := testAgent(0.9, 0.9)
	require.NoError(t, s.Observe(ag, domain.LabelLens, time.Now(), nil, ObserveOptions{}))
	require.Equal(t, domain.StatusDetected, s.Status)

	// Posterior may keep moving without hasty, but the decision stands.
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Observe(ag, domain.LabelNot, time.Now(), nil, ObserveOptions{}))
	}
	require.Equal(t, domain.StatusDetected, s.Status)
}

func TestResamplingSpreadsTrajectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Prior = 0.5
	s, err := New("s", "", domain.CategoryTest, domain.KindTest, cfg)
	require.NoError(t, err)

	// A lightly trained agent has wide binomial uncertainty.
	ag := testAgent(0.7, 0.7)
	src := rand.NewPCG(3, 9)
	require.NoError(t, s.Observe(ag, domain.LabelLens, time.Now(), nil, ObserveOptions{Src: src}))

	lo, hi := s.Trajectories[0], s.Trajectories[0]
	for _, p := range s.Trajectories {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	require.Greater(t, hi, lo, "resampled trajectories should not collapse to a point")
}

func TestSnapshotRoundTrip(t *testing.T) {
	cfg := deterministicConfig()
	s, err := New("s", "disp", domain.CategoryTest, domain.KindTest, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Observe(testAgent(0.8, 0.8), domain.LabelLens, time.Now(), []byte(`{"x":10,"y":20}`), ObserveOptions{}))

	r := FromSnapshot(s.TakeSnapshot(), cfg)
	require.Equal(t, s.Mean, r.Mean)
	require.Equal(t, s.Trajectories, r.Trajectories)
	require.Equal(t, s.Status, r.Status)
	require.Len(t, r.History, 1)
	require.JSONEq(t, `{"x":10,"y":20}`, string(r.History[0].Click))
}
