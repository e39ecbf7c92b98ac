// Package stream defines the classification-event feed consumed by the
// online engine: the event shape, the cursor contract, a SQLite-backed
// source, and a synthetic generator for tests and demos.
package stream

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/crowdcal/crowdcal/internal/domain"
)

// #region errors

// ErrMalformed marks an event that should be skipped and counted, never
// processed: missing required fields, or outside the configured survey
// or stage. It is deliberately distinct from domain.ErrInvalidLabel,
// which is fatal.
var ErrMalformed = errors.New("malformed event")

// #endregion

// #region event

// Event is one classification from the feed.
type Event struct {
	ID        string
	At        time.Time
	AgentName string
	SubjectID string
	DisplayID string
	Survey    string
	Stage     int
	Category  domain.Category
	Kind      domain.Kind
	Said      domain.Label
	Truth     domain.Label

	// Click is an opaque spatial payload carried through to subject
	// histories for visualization tooling.
	Click json.RawMessage
}

// #endregion event

// #region source

// Source is an ordered cursor over classification events. Next returns
// io.EOF when the feed is exhausted, ErrMalformed for events to skip,
// and any other error to abort the batch.
type Source interface {
	Next() (Event, error)
}

// #endregion source
