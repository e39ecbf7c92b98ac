package stream

import (
	"database/sql"
	"fmt"
	"io"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crowdcal/crowdcal/internal/domain"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS classifications (
	id         TEXT PRIMARY KEY,
	at         TEXT NOT NULL,
	agent      TEXT,
	subject    TEXT,
	display_id TEXT,
	survey     TEXT,
	stage      INTEGER,
	category   TEXT,
	kind       TEXT,
	said       TEXT,
	truth      TEXT,
	click      TEXT
);

CREATE INDEX IF NOT EXISTS idx_classifications_at ON classifications(at);
`

// #endregion schema

// #region filter

// Filter restricts which feed rows belong to this run. Rows outside the
// filter are reported as ErrMalformed so the engine can count them as
// skips rather than silently dropping them in SQL.
type Filter struct {
	Survey string
	Stage  int

	// Since is the exclusive lower bound; zero means from the start.
	// SinceID breaks ties on the boundary timestamp: with it set, rows
	// at exactly Since are included when their id sorts after it, so a
	// batch cut between two same-second events loses neither.
	Since   time.Time
	SinceID string
}

// #endregion filter

// #region sqlite-source

// SQLiteSource reads classification events from a SQLite feed database
// in timestamp order.
type SQLiteSource struct {
	db     *sql.DB
	rows   *sql.Rows
	filter Filter
}

// OpenSQLite opens the feed at path and positions a cursor after
// filter.Since (tie-broken by filter.SinceID when set).
func OpenSQLite(path string, filter Filter) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open feed db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate feed db: %w", err)
	}

	since := filter.Since.UTC().Format(time.RFC3339Nano)
	where := `at > ?`
	args := []interface{}{since}
	if filter.SinceID != "" {
		where = `at > ? OR (at = ? AND id > ?)`
		args = []interface{}{since, since, filter.SinceID}
	}

	rows, err := db.Query(
		`SELECT id, at, agent, subject, display_id, survey, stage, category, kind, said, truth, click
		 FROM classifications WHERE `+where+` ORDER BY at, id`,
		args...,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("query feed: %w", err)
	}

	return &SQLiteSource{db: db, rows: rows, filter: filter}, nil
}

// Next implements Source. Rows with missing required fields, or outside
// the configured survey/stage, come back as ErrMalformed; unrecognized
// label, category or kind strings are schema violations and abort.
func (s *SQLiteSource) Next() (Event, error) {
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return Event{}, fmt.Errorf("feed cursor: %w", err)
		}
		return Event{}, io.EOF
	}

	var (
		id, atStr                                          string
		agent, subject, display, survey                    sql.NullString
		stage                                              sql.NullInt64
		category, kind, said, truth, click                 sql.NullString
	)
	if err := s.rows.Scan(&id, &atStr, &agent, &subject, &display, &survey,
		&stage, &category, &kind, &said, &truth, &click); err != nil {
		return Event{}, fmt.Errorf("scan feed row: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, atStr)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: bad timestamp %q: %w", id, atStr, ErrMalformed)
	}
	if !agent.Valid || agent.String == "" || !subject.Valid || subject.String == "" {
		return Event{}, fmt.Errorf("event %s: missing identity: %w", id, ErrMalformed)
	}
	if s.filter.Survey != "" && survey.String != s.filter.Survey {
		return Event{}, fmt.Errorf("event %s: survey %q: %w", id, survey.String, ErrMalformed)
	}
	if s.filter.Stage != 0 && int(stage.Int64) != s.filter.Stage {
		return Event{}, fmt.Errorf("event %s: stage %d: %w", id, stage.Int64, ErrMalformed)
	}

	cat, err := domain.ParseCategory(category.String)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: %w", id, err)
	}
	knd, err := domain.ParseKind(kind.String)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: %w", id, err)
	}
	lbl, err := domain.ParseLabel(said.String)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: %w", id, err)
	}
	truthLbl := domain.LabelUnknown
	if truth.Valid && truth.String != "" {
		if truthLbl, err = domain.ParseLabel(truth.String); err != nil {
			return Event{}, fmt.Errorf("event %s: %w", id, err)
		}
	}

	ev := Event{
		ID:        id,
		At:        at,
		AgentName: agent.String,
		SubjectID: subject.String,
		DisplayID: display.String,
		Survey:    survey.String,
		Stage:     int(stage.Int64),
		Category:  cat,
		Kind:      knd,
		Said:      lbl,
		Truth:     truthLbl,
	}
	if click.Valid && click.String != "" {
		ev.Click = []byte(click.String)
	}
	return ev, nil
}

// Close releases the cursor and the database handle.
func (s *SQLiteSource) Close() error {
	s.rows.Close()
	return s.db.Close()
}

// #endregion sqlite-source

// #region writer

// EnsureSchema creates the feed tables if absent.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate feed db: %w", err)
	}
	return nil
}

// WriteEvents inserts events into the feed database in one transaction.
func WriteEvents(db *sql.DB, events []Event) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO classifications (id, at, agent, subject, display_id, survey, stage, category, kind, said, truth, click)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		var click interface{}
		if len(ev.Click) > 0 {
			click = string(ev.Click)
		}
		if _, err := stmt.Exec(
			ev.ID, ev.At.UTC().Format(time.RFC3339Nano), ev.AgentName, ev.SubjectID,
			ev.DisplayID, ev.Survey, ev.Stage, string(ev.Category), string(ev.Kind),
			string(ev.Said), string(ev.Truth), click,
		); err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
	}
	return tx.Commit()
}

// #endregion writer
