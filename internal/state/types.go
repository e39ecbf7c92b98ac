package state

import (
	"time"

	"github.com/crowdcal/crowdcal/internal/registry"
)

// #region snapshot-record
// SnapshotRecord is one versioned checkpoint of the whole run: both
// registries plus the watermark the next batch resumes after.
type SnapshotRecord struct {
	SnapshotID string
	ParentID   string
	TakenAt    time.Time

	// Watermark and WatermarkID identify the last event folded into
	// this snapshot; the next batch reads strictly after them. The id
	// disambiguates events sharing the watermark timestamp.
	Watermark   time.Time
	WatermarkID string

	Bureau registry.BureauSnapshot
	Sample registry.CollectionSnapshot
}

// #endregion snapshot-record

// #region snapshot-info
// SnapshotInfo is the metadata of a checkpoint without its payload, for
// listings.
type SnapshotInfo struct {
	SnapshotID string
	ParentID   string
	TakenAt    time.Time
	Watermark  time.Time
}

// #endregion snapshot-info
