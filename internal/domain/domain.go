// Package domain holds the closed vocabularies shared by the aggregation
// engine: labels, subject categories and kinds, and the subject lifecycle
// states. Everything here is a typed string so that switches stay explicit
// and serialized forms stay readable.
package domain

import (
	"errors"
	"fmt"
)

// #region errors

// ErrInvalidLabel reports a value outside the recognized vocabulary. It
// indicates a schema violation in the upstream feed, not expected noise,
// and must abort the batch rather than be defaulted away.
var ErrInvalidLabel = errors.New("invalid label")

// #endregion

// #region label

// Label is a binary verdict as reported by a volunteer, or the ground
// truth attached to a training subject.
type Label string

const (
	LabelLens    Label = "LENS"
	LabelNot     Label = "NOT"
	LabelUnknown Label = "UNKNOWN"
)

// ParseLabel maps a raw feed string onto a Label.
func ParseLabel(s string) (Label, error) {
	switch Label(s) {
	case LabelLens, LabelNot, LabelUnknown:
		return Label(s), nil
	}
	return "", fmt.Errorf("label %q: %w", s, ErrInvalidLabel)
}

// Binary reports whether the label is an actual verdict (LENS or NOT).
func (l Label) Binary() bool {
	return l == LabelLens || l == LabelNot
}

// #endregion

// #region category

// Category says whether the engine knows a subject's ground truth.
type Category string

const (
	CategoryTraining Category = "training"
	CategoryTest     Category = "test"
)

// ParseCategory maps a raw feed string onto a Category.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryTraining, CategoryTest:
		return Category(s), nil
	}
	return "", fmt.Errorf("category %q: %w", s, ErrInvalidLabel)
}

// #endregion

// #region kind

// Kind refines the category: sim is a known positive, dud a known
// negative, test an unknown survey subject.
type Kind string

const (
	KindSim  Kind = "sim"
	KindDud  Kind = "dud"
	KindTest Kind = "test"
)

// ParseKind maps a raw feed string onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindSim, KindDud, KindTest:
		return Kind(s), nil
	}
	return "", fmt.Errorf("kind %q: %w", s, ErrInvalidLabel)
}

// Truth returns the ground-truth label implied by the kind.
func (k Kind) Truth() Label {
	switch k {
	case KindSim:
		return LabelLens
	case KindDud:
		return LabelNot
	}
	return LabelUnknown
}

// #endregion

// #region status

// Status is the decision state of a subject. Detected and Rejected are
// terminal.
type Status string

const (
	StatusUndecided Status = "undecided"
	StatusDetected  Status = "detected"
	StatusRejected  Status = "rejected"
)

// #endregion

// #region state

// State says whether a subject still receives updates. Only test-kind
// subjects are ever retired; training subjects stay active for scoring.
type State string

const (
	StateActive   State = "active"
	StateInactive State = "inactive"
)

// #endregion
