// Package config loads the survey run configuration from YAML and
// converts it into the typed configs the engine packages take. The YAML
// structs mirror the domain configs field for field, so a config file
// never reaches past this package.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crowdcal/crowdcal/internal/agent"
	"github.com/crowdcal/crowdcal/internal/engine"
	"github.com/crowdcal/crowdcal/internal/offline"
	"github.com/crowdcal/crowdcal/internal/stream"
	"github.com/crowdcal/crowdcal/internal/subject"
)

// #region file-types

// File is the top-level YAML structure.
type File struct {
	Survey   SurveySection   `yaml:"survey"`
	Agents   AgentsSection   `yaml:"agents"`
	Subjects SubjectsSection `yaml:"subjects"`
	Engine   EngineSection   `yaml:"engine"`
	Refine   RefineSection   `yaml:"refine"`
	Store    StoreSection    `yaml:"store"`
}

// SurveySection names the event feed.
type SurveySection struct {
	Name     string `yaml:"name"`
	Stage    int    `yaml:"stage"`
	Database string `yaml:"database"`
}

// AgentsSection mirrors agent.Config.
type AgentsSection struct {
	InitialPL  float64 `yaml:"initial_pl"`
	InitialPD  float64 `yaml:"initial_pd"`
	PLMin      float64 `yaml:"pl_min"`
	PLMax      float64 `yaml:"pl_max"`
	PDMin      float64 `yaml:"pd_min"`
	PDMax      float64 `yaml:"pd_max"`
	Skepticism float64 `yaml:"skepticism"`
	SkillPrior float64 `yaml:"skill_prior"`
	HistoryCap int     `yaml:"history_cap"`
}

// SubjectsSection mirrors subject.Config.
type SubjectsSection struct {
	Prior              float64 `yaml:"prior"`
	PMin               float64 `yaml:"p_min"`
	Trajectories       int     `yaml:"trajectories"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	RejectionThreshold float64 `yaml:"rejection_threshold"`
	Deterministic      bool    `yaml:"deterministic"`
	HistoryCap         int     `yaml:"history_cap"`
}

// EngineSection mirrors engine.Config. End is RFC 3339; empty means no
// cutoff.
type EngineSection struct {
	BatchLimit   int    `yaml:"batch_limit"`
	End          string `yaml:"end"`
	GracePeriod  int    `yaml:"grace_period"`
	Hasty        bool   `yaml:"hasty"`
	Learning     bool   `yaml:"learning"`
	Unsupervised bool   `yaml:"unsupervised"`
	AgentFirst   bool   `yaml:"agent_first"`
	Seed         uint64 `yaml:"seed"`
}

// RefineSection mirrors offline.Config.
type RefineSection struct {
	Mode           string  `yaml:"mode"`
	Prior          float64 `yaml:"prior"`
	InitialTheta   float64 `yaml:"initial_theta"`
	MinAssessments int     `yaml:"min_assessments"`
	MinIterations  int     `yaml:"min_iterations"`
	MaxIterations  int     `yaml:"max_iterations"`
	Epsilon        float64 `yaml:"epsilon"`
}

// StoreSection locates the snapshot store.
type StoreSection struct {
	Path string `yaml:"path"`
}

// #endregion file-types

// #region defaults

// Default returns a File pre-filled with every package's defaults, so a
// config file only needs to name what it changes.
func Default() File {
	ag := agent.DefaultConfig()
	sub := subject.DefaultConfig()
	eng := engine.DefaultConfig()
	ref := offline.DefaultConfig()
	return File{
		Survey: SurveySection{Stage: 1},
		Agents: AgentsSection{
			InitialPL:  ag.InitialPL,
			InitialPD:  ag.InitialPD,
			PLMin:      ag.PLMin,
			PLMax:      ag.PLMax,
			PDMin:      ag.PDMin,
			PDMax:      ag.PDMax,
			Skepticism: ag.Skepticism,
			SkillPrior: ag.SkillPrior,
			HistoryCap: ag.HistoryCap,
		},
		Subjects: SubjectsSection{
			Prior:              sub.Prior,
			PMin:               sub.PMin,
			Trajectories:       sub.Trajectories,
			DetectionThreshold: sub.DetectionThreshold,
			RejectionThreshold: sub.RejectionThreshold,
			HistoryCap:         sub.HistoryCap,
		},
		Engine: EngineSection{
			BatchLimit:   eng.BatchLimit,
			GracePeriod:  eng.GracePeriod,
			Hasty:        eng.Hasty,
			Learning:     eng.Learning,
			Unsupervised: eng.Unsupervised,
			AgentFirst:   eng.AgentFirst,
		},
		Refine: RefineSection{
			Mode:           string(ref.Mode),
			Prior:          ref.Prior,
			InitialTheta:   ref.InitialTheta,
			MinAssessments: ref.MinAssessments,
			MinIterations:  ref.MinIterations,
			MaxIterations:  ref.MaxIterations,
			Epsilon:        ref.Epsilon,
		},
		Store: StoreSection{Path: "crowdcal.db"},
	}
}

// #endregion defaults

// #region load

// Load parses path over the defaults and validates the result.
func Load(path string) (File, error) {
	f := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return File{}, fmt.Errorf("config %s: %w", path, err)
	}
	return f, nil
}

// #endregion load

// #region validate

// Validate fails fast on any out-of-range parameter. A bad config must
// never reach the engine.
func (f File) Validate() error {
	a := f.Agents
	if a.PLMin <= 0 || a.PLMax >= 1 || a.PLMin >= a.PLMax {
		return fmt.Errorf("agents: pl band [%g, %g] must satisfy 0 < min < max < 1", a.PLMin, a.PLMax)
	}
	if a.PDMin <= 0 || a.PDMax >= 1 || a.PDMin >= a.PDMax {
		return fmt.Errorf("agents: pd band [%g, %g] must satisfy 0 < min < max < 1", a.PDMin, a.PDMax)
	}
	if a.Skepticism < 0 {
		return fmt.Errorf("agents: skepticism %g must not be negative", a.Skepticism)
	}
	if a.SkillPrior <= 0 || a.SkillPrior >= 1 {
		return fmt.Errorf("agents: skill prior %g must lie in (0, 1)", a.SkillPrior)
	}

	s := f.Subjects
	if s.Prior <= 0 || s.Prior >= 1 {
		return fmt.Errorf("subjects: prior %g must lie in (0, 1)", s.Prior)
	}
	if s.PMin <= 0 || s.PMin >= s.Prior {
		return fmt.Errorf("subjects: p_min %g must lie in (0, prior)", s.PMin)
	}
	if s.Trajectories < 1 {
		return fmt.Errorf("subjects: trajectories %d must be at least 1", s.Trajectories)
	}
	if s.DetectionThreshold <= 0 || s.DetectionThreshold >= 1 {
		return fmt.Errorf("subjects: detection threshold %g must lie in (0, 1)", s.DetectionThreshold)
	}
	if s.RejectionThreshold <= 0 || s.RejectionThreshold >= s.DetectionThreshold {
		return fmt.Errorf("subjects: rejection threshold %g must lie in (0, detection)", s.RejectionThreshold)
	}

	e := f.Engine
	if e.BatchLimit < 0 {
		return fmt.Errorf("engine: batch limit %d must not be negative", e.BatchLimit)
	}
	if e.GracePeriod < 0 {
		return fmt.Errorf("engine: grace period %d must not be negative", e.GracePeriod)
	}
	if e.End != "" {
		if _, err := time.Parse(time.RFC3339, e.End); err != nil {
			return fmt.Errorf("engine: end: %w", err)
		}
	}

	r := f.Refine
	if _, err := offline.ParseMode(r.Mode); err != nil {
		return fmt.Errorf("refine: %w", err)
	}
	if r.Prior <= 0 || r.Prior >= 1 {
		return fmt.Errorf("refine: prior %g must lie in (0, 1)", r.Prior)
	}
	if r.InitialTheta <= 0 || r.InitialTheta >= 1 {
		return fmt.Errorf("refine: initial theta %g must lie in (0, 1)", r.InitialTheta)
	}
	if r.MinAssessments < 1 {
		return fmt.Errorf("refine: min assessments %d must be at least 1", r.MinAssessments)
	}
	if r.MinIterations < 1 || r.MaxIterations < r.MinIterations {
		return fmt.Errorf("refine: iteration bounds [%d, %d] must satisfy 1 <= min <= max", r.MinIterations, r.MaxIterations)
	}
	if r.Epsilon <= 0 {
		return fmt.Errorf("refine: epsilon %g must be positive", r.Epsilon)
	}

	return nil
}

// #endregion validate

// #region conversions

// ToAgentConfig converts the agents section.
func (f File) ToAgentConfig() agent.Config {
	a := f.Agents
	return agent.Config{
		InitialPL:  a.InitialPL,
		InitialPD:  a.InitialPD,
		PLMin:      a.PLMin,
		PLMax:      a.PLMax,
		PDMin:      a.PDMin,
		PDMax:      a.PDMax,
		Skepticism: a.Skepticism,
		SkillPrior: a.SkillPrior,
		HistoryCap: a.HistoryCap,
	}
}

// ToSubjectConfig converts the subjects section.
func (f File) ToSubjectConfig() subject.Config {
	s := f.Subjects
	return subject.Config{
		Prior:              s.Prior,
		PMin:               s.PMin,
		Trajectories:       s.Trajectories,
		DetectionThreshold: s.DetectionThreshold,
		RejectionThreshold: s.RejectionThreshold,
		Deterministic:      s.Deterministic,
		HistoryCap:         s.HistoryCap,
	}
}

// ToEngineConfig converts the engine section. Validate has already
// vetted the End timestamp.
func (f File) ToEngineConfig() engine.Config {
	e := f.Engine
	var end time.Time
	if e.End != "" {
		end, _ = time.Parse(time.RFC3339, e.End)
	}
	return engine.Config{
		BatchLimit:   e.BatchLimit,
		End:          end,
		GracePeriod:  e.GracePeriod,
		Hasty:        e.Hasty,
		Learning:     e.Learning,
		Unsupervised: e.Unsupervised,
		AgentFirst:   e.AgentFirst,
		Seed:         e.Seed,
	}
}

// ToRefineConfig converts the refine section.
func (f File) ToRefineConfig() offline.Config {
	r := f.Refine
	return offline.Config{
		Mode:           offline.Mode(r.Mode),
		Prior:          r.Prior,
		InitialTheta:   r.InitialTheta,
		MinAssessments: r.MinAssessments,
		MinIterations:  r.MinIterations,
		MaxIterations:  r.MaxIterations,
		Epsilon:        r.Epsilon,
	}
}

// ToFilter converts the survey section into an event filter. The resume
// point (timestamp plus tie-breaking event id) comes from the snapshot
// store, not the config file.
func (f File) ToFilter(since time.Time, sinceID string) stream.Filter {
	return stream.Filter{
		Survey:  f.Survey.Name,
		Stage:   f.Survey.Stage,
		Since:   since,
		SinceID: sinceID,
	}
}

// #endregion conversions
