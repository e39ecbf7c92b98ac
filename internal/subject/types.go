package subject

import (
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/crowdcal/crowdcal/internal/domain"
)

// #region config

// Config holds the posterior-update parameters for subjects. Threaded
// through constructors; no package-level state.
type Config struct {
	// Prior is the starting Pr(LENS) for every trajectory.
	Prior float64

	// PMin floors each trajectory so no posterior underflows to zero.
	PMin float64

	// Trajectories is K, the number of independent posterior copies.
	Trajectories int

	// DetectionThreshold and RejectionThreshold act on the geometric
	// mean across trajectories.
	DetectionThreshold float64
	RejectionThreshold float64

	// Deterministic skips confusion-matrix resampling and updates every
	// trajectory with the point estimates. Required by the offline
	// refinement pass, where resampling would break convergence.
	Deterministic bool

	// HistoryCap bounds the annotation log. Zero means unbounded.
	HistoryCap int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Prior:              2e-4,
		PMin:               2e-8,
		Trajectories:       50,
		DetectionThreshold: 0.95,
		RejectionThreshold: 1e-5,
	}
}

// #endregion config

// #region annotation

// Annotation is one classification event as seen by a subject. Click is
// an opaque spatial payload consumed only by visualization tooling.
type Annotation struct {
	AgentName string          `json:"agent"`
	Said      domain.Label    `json:"said"`
	At        time.Time       `json:"at"`
	Click     json.RawMessage `json:"click,omitempty"`
}

// #endregion annotation

// #region observe-options

// ObserveOptions carries the per-event knobs of the online loop into a
// posterior update.
type ObserveOptions struct {
	// GracePeriod is the number of training observations an agent must
	// have learned from before its labels can move any posterior.
	GracePeriod int

	// Hasty stops updating subjects that are already decided or retired;
	// their observations are still logged for audit.
	Hasty bool

	// LogOnly records the annotation and nothing else. Used for banned
	// agents, whose labels must stay in the audit trail without moving
	// any posterior.
	LogOnly bool

	// Src provides randomness for confusion-matrix realizations. Ignored
	// in deterministic mode.
	Src rand.Source
}

// #endregion observe-options

// #region snapshot

// Snapshot is the JSON-serializable form of a Subject. Config is
// re-supplied on restore.
type Snapshot struct {
	ID            string          `json:"id"`
	DisplayID     string          `json:"display_id,omitempty"`
	Category      domain.Category `json:"category"`
	Kind          domain.Kind     `json:"kind"`
	Truth         domain.Label    `json:"truth"`
	Trajectories  []float64       `json:"trajectories"`
	Mean          float64         `json:"mean"`
	Median        float64         `json:"median"`
	Exposure      int             `json:"exposure"`
	Status        domain.Status   `json:"status"`
	State         domain.State    `json:"state"`
	RetiredAt     time.Time       `json:"retired_at,omitzero"`
	RetirementAge int             `json:"retirement_age,omitempty"`
	History       []Annotation    `json:"history,omitempty"`
}

// #endregion snapshot
