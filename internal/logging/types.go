package logging

import "time"

// #region batch-entry
// BatchEntry is one row of the batch provenance log: which checkpoint a
// batch produced and what it consumed to get there.
type BatchEntry struct {
	SnapshotID string
	StartedAt  time.Time
	FirstEvent time.Time
	LastEvent  time.Time
	Seen       int
	Skipped    int
	Processed  int
	HasMore    bool
	Note       string
}

// #endregion batch-entry
