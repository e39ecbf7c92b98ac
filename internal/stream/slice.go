package stream

import "io"

// #region slice-source

// SliceSource serves events from memory, for tests and replay fixtures.
type SliceSource struct {
	events []Event
	pos    int
}

// NewSliceSource wraps events in a Source. The slice is not re-sorted;
// callers provide time order.
func NewSliceSource(events []Event) *SliceSource {
	return &SliceSource{events: events}
}

// Next implements Source.
func (s *SliceSource) Next() (Event, error) {
	if s.pos >= len(s.events) {
		return Event{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

// #endregion slice-source
