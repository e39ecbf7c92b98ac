package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-batch
// LogBatch writes a provenance entry to the batch_log table.
func LogBatch(db *sql.DB, entry BatchEntry) error {
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO batch_log (snapshot_id, started_at, first_event, last_event, seen, skipped, processed, has_more, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SnapshotID,
		entry.StartedAt.Format(time.RFC3339Nano),
		nullIfZeroTime(entry.FirstEvent),
		nullIfZeroTime(entry.LastEvent),
		entry.Seen,
		entry.Skipped,
		entry.Processed,
		entry.HasMore,
		nullIfEmpty(entry.Note),
	)
	if err != nil {
		return fmt.Errorf("log batch: %w", err)
	}
	return nil
}

// #endregion log-batch

// #region list-batches
// ListBatches returns the most recent batch entries, newest first.
func ListBatches(db *sql.DB, limit int) ([]BatchEntry, error) {
	rows, err := db.Query(
		`SELECT snapshot_id, started_at, first_event, last_event, seen, skipped, processed, has_more, note
		 FROM batch_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var entries []BatchEntry
	for rows.Next() {
		var e BatchEntry
		var startedStr string
		var firstStr, lastStr, note sql.NullString
		if err := rows.Scan(&e.SnapshotID, &startedStr, &firstStr, &lastStr,
			&e.Seen, &e.Skipped, &e.Processed, &e.HasMore, &note); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
		if firstStr.Valid {
			e.FirstEvent, _ = time.Parse(time.RFC3339Nano, firstStr.String)
		}
		if lastStr.Valid {
			e.LastEvent, _ = time.Parse(time.RFC3339Nano, lastStr.String)
		}
		if note.Valid {
			e.Note = note.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion list-batches

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZeroTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// #endregion helpers
