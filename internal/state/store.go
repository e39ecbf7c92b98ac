package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	snapshot_id  TEXT PRIMARY KEY,
	parent_id    TEXT,
	taken_at     TEXT NOT NULL,
	watermark    TEXT,
	watermark_id TEXT,
	bureau_json  BLOB NOT NULL,
	sample_json  BLOB NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES snapshots(snapshot_id)
);

CREATE TABLE IF NOT EXISTS batch_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	snapshot_id  TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	first_event  TEXT,
	last_event   TEXT,
	seen         INTEGER NOT NULL,
	skipped      INTEGER NOT NULL,
	processed    INTEGER NOT NULL,
	has_more     INTEGER NOT NULL,
	note         TEXT,
	FOREIGN KEY (snapshot_id) REFERENCES snapshots(snapshot_id)
);

CREATE TABLE IF NOT EXISTS active_snapshot (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	snapshot_id  TEXT NOT NULL,
	FOREIGN KEY (snapshot_id) REFERENCES snapshots(snapshot_id)
);
`

// #endregion schema

// ErrNoSnapshot reports an empty store. First runs treat it as "start
// from scratch", not as a failure.
var ErrNoSnapshot = errors.New("no snapshot")

// #region store-struct
// Store manages versioned run checkpoints in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already-open database. The caller owns the
// connection and the schema.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g.
// batch logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region commit
// Commit inserts a new checkpoint and moves the active pointer to it
// atomically. A missing SnapshotID or TakenAt is filled in.
func (s *Store) Commit(rec SnapshotRecord) (SnapshotRecord, error) {
	if rec.SnapshotID == "" {
		rec.SnapshotID = uuid.New().String()
	}
	if rec.TakenAt.IsZero() {
		rec.TakenAt = time.Now().UTC()
	}

	bureauJSON, err := json.Marshal(rec.Bureau)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("marshal bureau: %w", err)
	}
	sampleJSON, err := json.Marshal(rec.Sample)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("marshal sample: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parentPtr interface{}
	if rec.ParentID != "" {
		parentPtr = rec.ParentID
	}
	var watermarkPtr interface{}
	if !rec.Watermark.IsZero() {
		watermarkPtr = rec.Watermark.UTC().Format(time.RFC3339Nano)
	}
	var watermarkIDPtr interface{}
	if rec.WatermarkID != "" {
		watermarkIDPtr = rec.WatermarkID
	}

	_, err = tx.Exec(
		`INSERT INTO snapshots (snapshot_id, parent_id, taken_at, watermark, watermark_id, bureau_json, sample_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SnapshotID, parentPtr, rec.TakenAt.UTC().Format(time.RFC3339Nano),
		watermarkPtr, watermarkIDPtr, bureauJSON, sampleJSON,
	)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("insert snapshot: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_snapshot (id, snapshot_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET snapshot_id = excluded.snapshot_id`,
		rec.SnapshotID,
	)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return SnapshotRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// #endregion commit

// #region current
// Current reads the active checkpoint, or ErrNoSnapshot on a fresh
// store.
func (s *Store) Current() (SnapshotRecord, error) {
	var id string
	err := s.db.QueryRow(`SELECT snapshot_id FROM active_snapshot WHERE id = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotRecord{}, ErrNoSnapshot
	}
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("get active: %w", err)
	}
	return s.Get(id)
}

// #endregion current

// #region get
// Get retrieves a specific checkpoint by ID.
func (s *Store) Get(id string) (SnapshotRecord, error) {
	var rec SnapshotRecord
	var parentID, watermark, watermarkID sql.NullString
	var takenStr string
	var bureauJSON, sampleJSON []byte

	err := s.db.QueryRow(
		`SELECT snapshot_id, parent_id, taken_at, watermark, watermark_id, bureau_json, sample_json
		 FROM snapshots WHERE snapshot_id = ?`, id,
	).Scan(&rec.SnapshotID, &parentID, &takenStr, &watermark, &watermarkID, &bureauJSON, &sampleJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotRecord{}, fmt.Errorf("snapshot %s: %w", id, ErrNoSnapshot)
	}
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("get snapshot %s: %w", id, err)
	}

	if parentID.Valid {
		rec.ParentID = parentID.String
	}
	rec.TakenAt, _ = time.Parse(time.RFC3339Nano, takenStr)
	if watermark.Valid {
		rec.Watermark, _ = time.Parse(time.RFC3339Nano, watermark.String)
	}
	if watermarkID.Valid {
		rec.WatermarkID = watermarkID.String
	}
	if err := json.Unmarshal(bureauJSON, &rec.Bureau); err != nil {
		return SnapshotRecord{}, fmt.Errorf("unmarshal bureau: %w", err)
	}
	if err := json.Unmarshal(sampleJSON, &rec.Sample); err != nil {
		return SnapshotRecord{}, fmt.Errorf("unmarshal sample: %w", err)
	}
	return rec, nil
}

// #endregion get

// #region rollback
// Rollback moves the active pointer to an earlier checkpoint, so a bad
// batch can be re-run after its events are fixed.
func (s *Store) Rollback(targetID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM snapshots WHERE snapshot_id = ?`, targetID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check snapshot: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("snapshot %s: %w", targetID, ErrNoSnapshot)
	}

	_, err = s.db.Exec(
		`INSERT INTO active_snapshot (id, snapshot_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET snapshot_id = excluded.snapshot_id`,
		targetID,
	)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list
// List returns the most recent checkpoints, payloads omitted.
func (s *Store) List(limit int) ([]SnapshotInfo, error) {
	rows, err := s.db.Query(
		`SELECT snapshot_id, parent_id, taken_at, watermark
		 FROM snapshots ORDER BY taken_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var parentID, watermark sql.NullString
		var takenStr string
		if err := rows.Scan(&info.SnapshotID, &parentID, &takenStr, &watermark); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if parentID.Valid {
			info.ParentID = parentID.String
		}
		info.TakenAt, _ = time.Parse(time.RFC3339Nano, takenStr)
		if watermark.Valid {
			info.Watermark, _ = time.Parse(time.RFC3339Nano, watermark.String)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// #endregion list
