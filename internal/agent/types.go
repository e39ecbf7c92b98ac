package agent

import "github.com/crowdcal/crowdcal/internal/domain"

// #region config

// Config holds the confusion-matrix learning parameters. It is threaded
// through constructors so that concurrent experiments can run with
// different bounds; there is no package-level mutable state.
type Config struct {
	InitialPL float64 // starting Pr("LENS"|LENS)
	InitialPD float64 // starting Pr("NOT"|NOT)

	// Clamp band. No classifier is ever modeled as perfect or useless.
	PLMin, PLMax float64
	PDMin, PDMax float64

	// Skepticism adds to the pseudo-count base of 2, so a single
	// observation cannot swing PL or PD to an extreme.
	Skepticism float64

	// SkillPrior is the subject prior at which expected information gain
	// is evaluated.
	SkillPrior float64

	// HistoryCap bounds the training and test logs. Zero means
	// unbounded; when set, the oldest entries are dropped.
	HistoryCap int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		InitialPL:  0.5,
		InitialPD:  0.5,
		PLMin:      0.01,
		PLMax:      0.99,
		PDMin:      0.01,
		PDMax:      0.99,
		Skepticism: 0,
		SkillPrior: 0.5,
		HistoryCap: 0,
	}
}

// #endregion config

// #region history

// TrainingRecord is one line of an agent's confusion-matrix timeline.
// A line is appended for every heard observation, even when learning was
// disabled, so the skill history is a complete record of the agent's
// (possibly frozen) ability.
type TrainingRecord struct {
	PL    float64      `json:"pl"`
	PD    float64      `json:"pd"`
	Skill float64      `json:"skill"`
	Said  domain.Label `json:"said"`
	Truth domain.Label `json:"truth"`
}

// TestRecord is one line of an agent's contribution log on survey
// subjects: the information actually transmitted by that classification.
type TestRecord struct {
	SubjectID string       `json:"subject_id"`
	Skill     float64      `json:"skill"`
	Gain      float64      `json:"gain"`
	Said      domain.Label `json:"said"`
}

// #endregion history

// #region snapshot

// Snapshot is the JSON-serializable form of an Agent, used for registry
// persistence. Config is not part of the snapshot; it is re-supplied on
// restore.
type Snapshot struct {
	Name     string           `json:"name"`
	PL       float64          `json:"pl"`
	PD       float64          `json:"pd"`
	NL       float64          `json:"nl"`
	ND       float64          `json:"nd"`
	N        int              `json:"n"`
	NT       int              `json:"nt"`
	Skill    float64          `json:"skill"`
	Banned   bool             `json:"banned,omitempty"`
	Training []TrainingRecord `json:"training,omitempty"`
	Tests    []TestRecord     `json:"tests,omitempty"`
}

// #endregion snapshot
