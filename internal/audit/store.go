// Package audit keeps an append-only sqlite trail of hook events and gate
// decisions. It is never read back into live session state.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS hook_events (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	kind          TEXT NOT NULL,
	payload_json  TEXT,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS thoroughness_flags (
	id              TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL,
	prompt_number   INTEGER NOT NULL,
	confidence      TEXT NOT NULL,
	indicators_json TEXT NOT NULL,
	prompt          TEXT,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stop_decisions (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	action       TEXT NOT NULL,
	attempt      INTEGER NOT NULL DEFAULT 0,
	allowed      INTEGER NOT NULL,
	failed_open  INTEGER NOT NULL DEFAULT 0,
	reason       TEXT,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_hook_events_session ON hook_events(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_stop_decisions_session ON stop_decisions(session_id, created_at);
`

// #endregion schema

// #region store-struct

// Store writes audit rows to SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one writer; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for ad-hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region writes

// RecordEvent appends a hook event.
func (s *Store) RecordEvent(e Event) error {
	e.ID, e.CreatedAt = s.stamp(e.ID, e.CreatedAt)
	_, err := s.db.Exec(
		`INSERT INTO hook_events (id, session_id, kind, payload_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Kind, nullIfEmpty(e.PayloadJSON), e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// RecordFlag appends an adopted classification.
func (s *Store) RecordFlag(f Flag) error {
	f.ID, f.CreatedAt = s.stamp(f.ID, f.CreatedAt)
	indicators := f.Indicators
	if indicators == nil {
		indicators = []string{}
	}
	indJSON, err := json.Marshal(indicators)
	if err != nil {
		return fmt.Errorf("marshal indicators: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO thoroughness_flags (id, session_id, prompt_number, confidence, indicators_json, prompt, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.SessionID, f.PromptNumber, f.Confidence, string(indJSON), nullIfEmpty(f.Prompt),
		f.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record flag: %w", err)
	}
	return nil
}

// RecordDecision appends a stop-gate decision.
func (s *Store) RecordDecision(d Decision) error {
	d.ID, d.CreatedAt = s.stamp(d.ID, d.CreatedAt)
	_, err := s.db.Exec(
		`INSERT INTO stop_decisions (id, session_id, action, attempt, allowed, failed_open, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.SessionID, d.Action, d.Attempt, boolInt(d.Allowed), boolInt(d.FailedOpen),
		nullIfEmpty(d.Reason), d.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// #endregion writes

// #region reads

// ListEvents returns events oldest first. Empty sessionID lists all sessions;
// limit <= 0 means no limit.
func (s *Store) ListEvents(sessionID string, limit int) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, kind, COALESCE(payload_json, ''), created_at
		 FROM hook_events WHERE (? = '' OR session_id = ?)
		 ORDER BY rowid LIMIT ?`,
		sessionID, sessionID, sqlLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.PayloadJSON, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse event time: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListFlags returns adopted classifications oldest first.
func (s *Store) ListFlags(sessionID string, limit int) ([]Flag, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, prompt_number, confidence, indicators_json, COALESCE(prompt, ''), created_at
		 FROM thoroughness_flags WHERE (? = '' OR session_id = ?)
		 ORDER BY rowid LIMIT ?`,
		sessionID, sessionID, sqlLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query flags: %w", err)
	}
	defer rows.Close()

	var out []Flag
	for rows.Next() {
		var f Flag
		var indJSON, created string
		if err := rows.Scan(&f.ID, &f.SessionID, &f.PromptNumber, &f.Confidence, &indJSON, &f.Prompt, &created); err != nil {
			return nil, fmt.Errorf("scan flag: %w", err)
		}
		if err := json.Unmarshal([]byte(indJSON), &f.Indicators); err != nil {
			return nil, fmt.Errorf("unmarshal indicators: %w", err)
		}
		if f.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse flag time: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListDecisions returns stop decisions oldest first.
func (s *Store) ListDecisions(sessionID string, limit int) ([]Decision, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, action, attempt, allowed, failed_open, COALESCE(reason, ''), created_at
		 FROM stop_decisions WHERE (? = '' OR session_id = ?)
		 ORDER BY rowid LIMIT ?`,
		sessionID, sessionID, sqlLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		var allowed, failedOpen int
		var created string
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Action, &d.Attempt, &allowed, &failedOpen, &d.Reason, &created); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Allowed = allowed != 0
		d.FailedOpen = failedOpen != 0
		if d.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse decision time: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Sessions summarizes every session seen in the audit log, most recent first.
func (s *Store) Sessions() ([]SessionSummary, error) {
	rows, err := s.db.Query(
		`SELECT e.session_id, COUNT(*), MAX(e.created_at),
		        (SELECT COUNT(*) FROM stop_decisions d WHERE d.session_id = e.session_id AND d.action = 'deny')
		 FROM hook_events e
		 GROUP BY e.session_id
		 ORDER BY MAX(e.created_at) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var last string
		if err := rows.Scan(&sum.SessionID, &sum.Events, &last, &sum.Denials); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if sum.LastSeen, err = time.Parse(timeLayout, last); err != nil {
			return nil, fmt.Errorf("parse session time: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// #endregion reads

// #region helpers

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (s *Store) stamp(id string, at time.Time) (string, time.Time) {
	if id == "" {
		id = uuid.New().String()
	}
	if at.IsZero() {
		at = s.now()
	}
	return id, at.UTC()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// #endregion helpers
