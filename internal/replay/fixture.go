package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/crowdcal/crowdcal/internal/agent"
	"github.com/crowdcal/crowdcal/internal/domain"
	"github.com/crowdcal/crowdcal/internal/engine"
	"github.com/crowdcal/crowdcal/internal/stream"
	"github.com/crowdcal/crowdcal/internal/subject"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a
// recorded slice of the classification feed plus the outcomes the run
// must reproduce.
type Fixture struct {
	Description string               `json:"description"`
	Config      FixtureConfig        `json:"config"`
	Events      []FixtureEvent       `json:"events"`
	Expected    []FixtureExpectation `json:"expected"`
}

// FixtureEvent mirrors stream.Event with JSON tags.
type FixtureEvent struct {
	ID        string          `json:"id"`
	At        time.Time       `json:"at"`
	AgentName string          `json:"agent"`
	SubjectID string          `json:"subject"`
	DisplayID string          `json:"display_id,omitempty"`
	Category  string          `json:"category"`
	Kind      string          `json:"kind"`
	Said      string          `json:"said"`
	Truth     string          `json:"truth,omitempty"`
	Click     json.RawMessage `json:"click,omitempty"`
}

// FixtureExpectation names the end state one subject must reach.
type FixtureExpectation struct {
	SubjectID string `json:"subject"`
	Status    string `json:"status"`
	State     string `json:"state,omitempty"`
}

// FixtureConfig bundles the sub-configs for a replay run.
type FixtureConfig struct {
	Agents   FixtureAgentConfig   `json:"agents"`
	Subjects FixtureSubjectConfig `json:"subjects"`
	Engine   FixtureEngineConfig  `json:"engine"`
}

// FixtureAgentConfig mirrors agent.Config with JSON tags.
type FixtureAgentConfig struct {
	InitialPL  float64 `json:"initial_pl"`
	InitialPD  float64 `json:"initial_pd"`
	PLMin      float64 `json:"pl_min"`
	PLMax      float64 `json:"pl_max"`
	PDMin      float64 `json:"pd_min"`
	PDMax      float64 `json:"pd_max"`
	Skepticism float64 `json:"skepticism"`
	SkillPrior float64 `json:"skill_prior"`
}

// FixtureSubjectConfig mirrors subject.Config with JSON tags.
type FixtureSubjectConfig struct {
	Prior              float64 `json:"prior"`
	PMin               float64 `json:"p_min"`
	Trajectories       int     `json:"trajectories"`
	DetectionThreshold float64 `json:"detection_threshold"`
	RejectionThreshold float64 `json:"rejection_threshold"`
}

// FixtureEngineConfig mirrors the engine knobs that matter to a replay.
type FixtureEngineConfig struct {
	GracePeriod  int    `json:"grace_period"`
	Hasty        bool   `json:"hasty"`
	Learning     bool   `json:"learning"`
	Unsupervised bool   `json:"unsupervised"`
	AgentFirst   bool   `json:"agent_first"`
	Seed         uint64 `json:"seed"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToEvent converts a FixtureEvent to a stream event.
func (fe *FixtureEvent) ToEvent() (stream.Event, error) {
	category, err := domain.ParseCategory(fe.Category)
	if err != nil {
		return stream.Event{}, fmt.Errorf("event %s: %w", fe.ID, err)
	}
	kind, err := domain.ParseKind(fe.Kind)
	if err != nil {
		return stream.Event{}, fmt.Errorf("event %s: %w", fe.ID, err)
	}
	said, err := domain.ParseLabel(fe.Said)
	if err != nil {
		return stream.Event{}, fmt.Errorf("event %s: %w", fe.ID, err)
	}

	truth := domain.LabelUnknown
	if fe.Truth != "" {
		truth, err = domain.ParseLabel(fe.Truth)
		if err != nil {
			return stream.Event{}, fmt.Errorf("event %s: %w", fe.ID, err)
		}
	}

	return stream.Event{
		ID:        fe.ID,
		At:        fe.At,
		AgentName: fe.AgentName,
		SubjectID: fe.SubjectID,
		DisplayID: fe.DisplayID,
		Category:  category,
		Kind:      kind,
		Said:      said,
		Truth:     truth,
		Click:     fe.Click,
	}, nil
}

// ToAgentConfig converts a FixtureAgentConfig, falling back to defaults
// for a zero value.
func (fc *FixtureAgentConfig) ToAgentConfig() agent.Config {
	if *fc == (FixtureAgentConfig{}) {
		return agent.DefaultConfig()
	}
	return agent.Config{
		InitialPL:  fc.InitialPL,
		InitialPD:  fc.InitialPD,
		PLMin:      fc.PLMin,
		PLMax:      fc.PLMax,
		PDMin:      fc.PDMin,
		PDMax:      fc.PDMax,
		Skepticism: fc.Skepticism,
		SkillPrior: fc.SkillPrior,
	}
}

// ToSubjectConfig converts a FixtureSubjectConfig, falling back to
// defaults for a zero value. Replays always run deterministically:
// resampled trajectories would make the expected outcomes unstable.
func (fc *FixtureSubjectConfig) ToSubjectConfig() subject.Config {
	cfg := subject.DefaultConfig()
	if *fc != (FixtureSubjectConfig{}) {
		cfg = subject.Config{
			Prior:              fc.Prior,
			PMin:               fc.PMin,
			Trajectories:       fc.Trajectories,
			DetectionThreshold: fc.DetectionThreshold,
			RejectionThreshold: fc.RejectionThreshold,
		}
	}
	cfg.Deterministic = true
	return cfg
}

// ToEngineConfig converts a FixtureEngineConfig.
func (fc *FixtureEngineConfig) ToEngineConfig() engine.Config {
	return engine.Config{
		GracePeriod:  fc.GracePeriod,
		Hasty:        fc.Hasty,
		Learning:     fc.Learning,
		Unsupervised: fc.Unsupervised,
		AgentFirst:   fc.AgentFirst,
		Seed:         fc.Seed,
	}
}

// #endregion fixture-loader
