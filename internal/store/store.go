// Package store persists Targets, Checks, DowntimeWindows, DebugSessions,
// NetworkEvents and ConsoleMessages in SQLite via modernc.org/sqlite (pure
// Go, no cgo). Schema, pragmas and connection pooling are grounded on the
// teacher's internal/controlplane/jobs/store.go: a single pooled connection
// (SQLite serializes writers anyway), WAL journal mode, a busy timeout so
// concurrent scheduler/debug-session goroutines block instead of erroring,
// and foreign keys on so cascade deletes follow ownership without manual
// fan-out queries.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sitewatch/monitor/internal/downtime"
	"github.com/sitewatch/monitor/internal/model"
)

// Store is the persistence layer described in spec.md's "Store" component.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the sitewatch database at dbPath and ensures its
// schema exists.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS targets (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			url                  TEXT NOT NULL UNIQUE,
			name                 TEXT NOT NULL,
			interval_seconds     INTEGER NOT NULL,
			enabled              INTEGER NOT NULL DEFAULT 1,
			consecutive_failures INTEGER NOT NULL DEFAULT 0,
			created_at           TEXT NOT NULL,
			updated_at           TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS checks (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			target_id        INTEGER NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
			timestamp        TEXT NOT NULL,
			available        INTEGER NOT NULL,
			status           INTEGER,
			response_time_ms REAL,
			error_kind       TEXT NOT NULL DEFAULT '',
			error_detail     TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checks_target_ts ON checks(target_id, timestamp DESC)`,
		`CREATE TABLE IF NOT EXISTS downtime_windows (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			target_id  INTEGER NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
			started_at TEXT NOT NULL,
			ended_at   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_downtime_target_started ON downtime_windows(target_id, started_at DESC)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_downtime_one_open_per_target
			ON downtime_windows(target_id) WHERE ended_at IS NULL`,
		`CREATE TABLE IF NOT EXISTS debug_sessions (
			id                      INTEGER PRIMARY KEY AUTOINCREMENT,
			target_id               INTEGER NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
			status                  TEXT NOT NULL,
			started_at              TEXT,
			stopped_at              TEXT,
			duration_limit_seconds  INTEGER,
			error_detail            TEXT NOT NULL DEFAULT '',
			created_at              TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_debug_sessions_one_active_per_target
			ON debug_sessions(target_id) WHERE status = 'active'`,
		`CREATE TABLE IF NOT EXISTS network_events (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id       INTEGER NOT NULL REFERENCES debug_sessions(id) ON DELETE CASCADE,
			kind             TEXT NOT NULL,
			url              TEXT NOT NULL,
			method           TEXT NOT NULL DEFAULT '',
			status           INTEGER,
			request_headers  TEXT NOT NULL DEFAULT '',
			response_headers TEXT NOT NULL DEFAULT '',
			request_body     TEXT NOT NULL DEFAULT '',
			response_body    TEXT NOT NULL DEFAULT '',
			resource_type    TEXT NOT NULL DEFAULT 'other',
			timestamp        TEXT NOT NULL,
			duration_ms      REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_network_events_session ON network_events(session_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS console_messages (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES debug_sessions(id) ON DELETE CASCADE,
			level      TEXT NOT NULL,
			message    TEXT NOT NULL,
			timestamp  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_console_messages_session ON console_messages(session_id, timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const timeFormat = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeFormat) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeFormat, s) }

func scanNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// --- Targets ---

// CreateTarget inserts a new Target. URL uniqueness is enforced by the
// targets.url UNIQUE constraint; a violation surfaces as model.ErrConflict.
func (s *Store) CreateTarget(ctx context.Context, t model.Target) (*model.Target, error) {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	res, err := s.db.ExecContext(ctx, `INSERT INTO targets
		(url, name, interval_seconds, enabled, consecutive_failures, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		t.URL, t.Name, t.IntervalSeconds, boolToInt(t.Enabled), formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueConstraint(err) {
			return nil, fmt.Errorf("target url %q: %w", t.URL, model.ErrConflict)
		}
		return nil, fmt.Errorf("insert target: %w", model.ErrPersistence)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read inserted target id: %w", model.ErrPersistence)
	}
	t.ID = id
	return &t, nil
}

// GetTarget fetches a Target by id.
func (s *Store) GetTarget(ctx context.Context, id int64) (*model.Target, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, url, name, interval_seconds, enabled,
		consecutive_failures, created_at, updated_at FROM targets WHERE id = ?`, id)
	return scanTarget(row)
}

func scanTarget(row *sql.Row) (*model.Target, error) {
	var (
		t                  model.Target
		enabled            int
		createdAt, updated string
	)
	if err := row.Scan(&t.ID, &t.URL, &t.Name, &t.IntervalSeconds, &enabled,
		&t.ConsecutiveFailures, &createdAt, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("target: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("scan target: %w", model.ErrPersistence)
	}
	t.Enabled = enabled != 0
	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse target created_at: %w", model.ErrPersistence)
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse target updated_at: %w", model.ErrPersistence)
	}
	return &t, nil
}

// ListTargets returns all Targets, optionally filtered to enabled ones.
func (s *Store) ListTargets(ctx context.Context, enabledOnly bool) ([]model.Target, error) {
	query := `SELECT id, url, name, interval_seconds, enabled, consecutive_failures,
		created_at, updated_at FROM targets`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", model.ErrPersistence)
	}
	defer rows.Close()

	var out []model.Target
	for rows.Next() {
		var (
			t                  model.Target
			enabled            int
			createdAt, updated string
		)
		if err := rows.Scan(&t.ID, &t.URL, &t.Name, &t.IntervalSeconds, &enabled,
			&t.ConsecutiveFailures, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("scan target: %w", model.ErrPersistence)
		}
		t.Enabled = enabled != 0
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse target created_at: %w", model.ErrPersistence)
		}
		if t.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("parse target updated_at: %w", model.ErrPersistence)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTarget updates a Target's mutable fields (name, URL, interval, enabled).
func (s *Store) UpdateTarget(ctx context.Context, t model.Target) (*model.Target, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `UPDATE targets SET url = ?, name = ?,
		interval_seconds = ?, enabled = ?, updated_at = ? WHERE id = ?`,
		t.URL, t.Name, t.IntervalSeconds, boolToInt(t.Enabled), formatTime(now), t.ID,
	)
	if err != nil {
		if isUniqueConstraint(err) {
			return nil, fmt.Errorf("target url %q: %w", t.URL, model.ErrConflict)
		}
		return nil, fmt.Errorf("update target: %w", model.ErrPersistence)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("target %d: %w", t.ID, model.ErrNotFound)
	}
	return s.GetTarget(ctx, t.ID)
}

// DeleteTarget deletes a Target; dependent Checks, DowntimeWindows and
// DebugSessions (and their NetworkEvents/ConsoleMessages) cascade via
// foreign keys.
func (s *Store) DeleteTarget(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete target: %w", model.ErrPersistence)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("target %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// SetConsecutiveFailures persists the supplemented consecutive-failures
// counter (see SPEC_FULL.md's "Supplemented features"), maintained by the
// Scheduler alongside (not inside) the CircuitBreaker.
func (s *Store) SetConsecutiveFailures(ctx context.Context, targetID int64, n int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE targets SET consecutive_failures = ? WHERE id = ?`, n, targetID)
	if err != nil {
		return fmt.Errorf("set consecutive_failures: %w", model.ErrPersistence)
	}
	return nil
}

// --- Checks + DowntimeWindows ---

// RecordCheck inserts a Check and applies the resulting DowntimeWindow
// transition in a single transaction, per spec.md §4.1 item 6. The window
// action is decided by the downtime package from the currently open window
// queried under the same transaction.
func (s *Store) RecordCheck(ctx context.Context, check model.Check) (*model.Check, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", model.ErrPersistence)
	}
	defer func() { _ = tx.Rollback() }()

	openID, openStarted, hasOpen, err := queryOpenWindow(ctx, tx, check.TargetID)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO checks
		(target_id, timestamp, available, status, response_time_ms, error_kind, error_detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		check.TargetID, formatTime(check.Timestamp), boolToInt(check.Available),
		check.Status, check.ResponseTimeMs, string(check.ErrorKind), check.ErrorDetail,
	)
	if err != nil {
		return nil, fmt.Errorf("insert check: %w", model.ErrPersistence)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read inserted check id: %w", model.ErrPersistence)
	}
	check.ID = id

	switch downtime.Fold(hasOpen, check.Available) {
	case downtime.Open:
		if _, err := tx.ExecContext(ctx, `INSERT INTO downtime_windows (target_id, started_at, ended_at)
			VALUES (?, ?, NULL)`, check.TargetID, formatTime(check.Timestamp)); err != nil {
			return nil, fmt.Errorf("open downtime window: %w", model.ErrPersistence)
		}
	case downtime.Close:
		if _, err := tx.ExecContext(ctx, `UPDATE downtime_windows SET ended_at = ? WHERE id = ?`,
			formatTime(check.Timestamp), openID); err != nil {
			return nil, fmt.Errorf("close downtime window: %w", model.ErrPersistence)
		}
	}
	_ = openStarted

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit check: %w", model.ErrPersistence)
	}
	return &check, nil
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx, letting
// queryOpenWindow run either inside a transaction or as a standalone read.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryOpenWindow(ctx context.Context, q rowQuerier, targetID int64) (id int64, startedAt time.Time, ok bool, err error) {
	var startedAtS string
	err = q.QueryRowContext(ctx, `SELECT id, started_at FROM downtime_windows
		WHERE target_id = ? AND ended_at IS NULL`, targetID).Scan(&id, &startedAtS)
	if err == sql.ErrNoRows {
		return 0, time.Time{}, false, nil
	}
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("query open window: %w", model.ErrPersistence)
	}
	startedAt, perr := parseTime(startedAtS)
	if perr != nil {
		return 0, time.Time{}, false, fmt.Errorf("parse window started_at: %w", model.ErrPersistence)
	}
	return id, startedAt, true, nil
}

// GetOpenDowntimeWindow returns the currently open window for a Target, or
// nil if none.
func (s *Store) GetOpenDowntimeWindow(ctx context.Context, targetID int64) (*model.DowntimeWindow, error) {
	id, startedAt, ok, err := queryOpenWindow(ctx, s.db, targetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &model.DowntimeWindow{ID: id, TargetID: targetID, StartedAt: startedAt}, nil
}

// ListChecks returns Checks for a Target within [start, end), most recent first.
func (s *Store) ListChecks(ctx context.Context, targetID int64, start, end time.Time) ([]model.Check, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, target_id, timestamp, available, status,
		response_time_ms, error_kind, error_detail FROM checks
		WHERE target_id = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp DESC`, targetID, formatTime(start), formatTime(end))
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", model.ErrPersistence)
	}
	defer rows.Close()

	var out []model.Check
	for rows.Next() {
		var (
			c         model.Check
			available int
			ts        string
			errKind   string
		)
		if err := rows.Scan(&c.ID, &c.TargetID, &ts, &available, &c.Status,
			&c.ResponseTimeMs, &errKind, &c.ErrorDetail); err != nil {
			return nil, fmt.Errorf("scan check: %w", model.ErrPersistence)
		}
		c.Available = available != 0
		c.ErrorKind = model.ErrorKind(errKind)
		if c.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse check timestamp: %w", model.ErrPersistence)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListDowntimeWindows returns DowntimeWindows for a Target overlapping [start, end).
func (s *Store) ListDowntimeWindows(ctx context.Context, targetID int64, start, end time.Time) ([]model.DowntimeWindow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, target_id, started_at, ended_at FROM downtime_windows
		WHERE target_id = ? AND started_at < ? AND (ended_at IS NULL OR ended_at >= ?)
		ORDER BY started_at`, targetID, formatTime(end), formatTime(start))
	if err != nil {
		return nil, fmt.Errorf("list downtime windows: %w", model.ErrPersistence)
	}
	defer rows.Close()

	var out []model.DowntimeWindow
	for rows.Next() {
		var (
			w                  model.DowntimeWindow
			startedAt          string
			endedAt            sql.NullString
		)
		if err := rows.Scan(&w.ID, &w.TargetID, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan downtime window: %w", model.ErrPersistence)
		}
		if w.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parse window started_at: %w", model.ErrPersistence)
		}
		if w.EndedAt, err = scanNullableTime(endedAt); err != nil {
			return nil, fmt.Errorf("parse window ended_at: %w", model.ErrPersistence)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// --- DebugSessions ---

// CreateDebugSession inserts a new DebugSession in the "pending" state. It
// fails with model.ErrConflict while the target already has an active session.
func (s *Store) CreateDebugSession(ctx context.Context, targetID int64, durationLimitSeconds *int) (*model.DebugSession, error) {
	var active int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM debug_sessions
		WHERE target_id = ? AND status = 'active'`, targetID).Scan(&active); err != nil {
		return nil, fmt.Errorf("check active debug session: %w", model.ErrPersistence)
	}
	if active > 0 {
		return nil, fmt.Errorf("target %d already has an active debug session: %w", targetID, model.ErrConflict)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO debug_sessions
		(target_id, status, duration_limit_seconds, created_at) VALUES (?, ?, ?, ?)`,
		targetID, string(model.DebugSessionPending), durationLimitSeconds, formatTime(now),
	)
	if err != nil {
		if isUniqueConstraint(err) {
			return nil, fmt.Errorf("target %d already has an active debug session: %w", targetID, model.ErrConflict)
		}
		return nil, fmt.Errorf("insert debug session: %w", model.ErrPersistence)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read inserted debug session id: %w", model.ErrPersistence)
	}
	return &model.DebugSession{
		ID: id, TargetID: targetID, Status: model.DebugSessionPending,
		DurationLimitSeconds: durationLimitSeconds, CreatedAt: now,
	}, nil
}

// GetDebugSession fetches a DebugSession by id.
func (s *Store) GetDebugSession(ctx context.Context, id int64) (*model.DebugSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, target_id, status, started_at, stopped_at,
		duration_limit_seconds, error_detail, created_at FROM debug_sessions WHERE id = ?`, id)
	return scanDebugSession(row)
}

func scanDebugSession(row *sql.Row) (*model.DebugSession, error) {
	var (
		ds                   model.DebugSession
		status               string
		startedAt, stoppedAt sql.NullString
		createdAt            string
	)
	if err := row.Scan(&ds.ID, &ds.TargetID, &status, &startedAt, &stoppedAt,
		&ds.DurationLimitSeconds, &ds.ErrorDetail, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("debug session: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("scan debug session: %w", model.ErrPersistence)
	}
	ds.Status = model.DebugSessionStatus(status)
	var err error
	if ds.StartedAt, err = scanNullableTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse session started_at: %w", model.ErrPersistence)
	}
	if ds.StoppedAt, err = scanNullableTime(stoppedAt); err != nil {
		return nil, fmt.Errorf("parse session stopped_at: %w", model.ErrPersistence)
	}
	if ds.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse session created_at: %w", model.ErrPersistence)
	}
	return &ds, nil
}

// GetActiveDebugSessionForTarget returns the active session for targetID, if any.
func (s *Store) GetActiveDebugSessionForTarget(ctx context.Context, targetID int64) (*model.DebugSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, target_id, status, started_at, stopped_at,
		duration_limit_seconds, error_detail, created_at FROM debug_sessions
		WHERE target_id = ? AND status = 'active'`, targetID)
	ds, err := scanDebugSession(row)
	if model.IsNotFound(err) {
		return nil, nil
	}
	return ds, err
}

// CountActiveDebugSessions returns the process-wide count of active
// sessions, for the supplemented max_concurrent_sessions soft cap.
func (s *Store) CountActiveDebugSessions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM debug_sessions WHERE status = 'active'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active debug sessions: %w", model.ErrPersistence)
	}
	return n, nil
}

// TransitionDebugSession moves a session from one of fromStatuses to
// toStatus, grounded on the teacher's transitionRun: the current status is
// checked and updated atomically via a WHERE-clause guard, so a concurrent
// transition loses the race rather than corrupting state.
func (s *Store) TransitionDebugSession(ctx context.Context, id int64, fromStatuses []model.DebugSessionStatus, toStatus model.DebugSessionStatus, errorDetail string) (*model.DebugSession, error) {
	now := time.Now().UTC()

	placeholders := make([]string, len(fromStatuses))
	for i := range fromStatuses {
		placeholders[i] = "?"
	}

	setStarted := ""
	if toStatus == model.DebugSessionActive {
		setStarted = fmt.Sprintf(", started_at = '%s'", formatTime(now))
	}
	setStopped := ""
	if toStatus.Terminal() {
		setStopped = fmt.Sprintf(", stopped_at = '%s'", formatTime(now))
	}

	query := fmt.Sprintf(`UPDATE debug_sessions SET status = ?, error_detail = ?%s%s
		WHERE id = ? AND status IN (%s)`, setStarted, setStopped, strings.Join(placeholders, ","))

	args := append([]any{string(toStatus), errorDetail, id}, toArgsAny(fromStatuses)...)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transition debug session: %w", model.ErrPersistence)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, getErr := s.GetDebugSession(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("session %d: invalid transition %s -> %s: %w", id, current.Status, toStatus, model.ErrConflict)
	}
	return s.GetDebugSession(ctx, id)
}

func toArgsAny(statuses []model.DebugSessionStatus) []any {
	out := make([]any, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

// InsertNetworkEventsBatch persists a batch of NetworkEvents within one
// transaction, matching DebugSessionEngine's periodic flush semantics.
func (s *Store) InsertNetworkEventsBatch(ctx context.Context, events []model.NetworkEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", model.ErrPersistence)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO network_events
		(session_id, kind, url, method, status, request_headers, response_headers,
		 request_body, response_body, resource_type, timestamp, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare network event insert: %w", model.ErrPersistence)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.SessionID, string(e.Kind), e.URL, e.Method, e.Status,
			e.RequestHeaders, e.ResponseHeaders, e.RequestBody, e.ResponseBody,
			string(e.ResourceType), formatTime(e.Timestamp), e.DurationMs); err != nil {
			return fmt.Errorf("insert network event: %w", model.ErrPersistence)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit network events batch: %w", model.ErrPersistence)
	}
	return nil
}

// InsertConsoleMessagesBatch persists a batch of ConsoleMessages within one
// transaction.
func (s *Store) InsertConsoleMessagesBatch(ctx context.Context, msgs []model.ConsoleMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", model.ErrPersistence)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO console_messages
		(session_id, level, message, timestamp) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare console message insert: %w", model.ErrPersistence)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, m.SessionID, string(m.Level), m.Message, formatTime(m.Timestamp)); err != nil {
			return fmt.Errorf("insert console message: %w", model.ErrPersistence)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit console messages batch: %w", model.ErrPersistence)
	}
	return nil
}

// ListNetworkEvents returns NetworkEvents for a session in capture order.
func (s *Store) ListNetworkEvents(ctx context.Context, sessionID int64) ([]model.NetworkEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, kind, url, method, status,
		request_headers, response_headers, request_body, response_body, resource_type,
		timestamp, duration_ms FROM network_events WHERE session_id = ? ORDER BY timestamp`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list network events: %w", model.ErrPersistence)
	}
	defer rows.Close()

	var out []model.NetworkEvent
	for rows.Next() {
		var (
			e            model.NetworkEvent
			kind, rtype  string
			ts           string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &e.URL, &e.Method, &e.Status,
			&e.RequestHeaders, &e.ResponseHeaders, &e.RequestBody, &e.ResponseBody,
			&rtype, &ts, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("scan network event: %w", model.ErrPersistence)
		}
		e.Kind = model.NetworkEventKind(kind)
		e.ResourceType = model.ResourceType(rtype)
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse network event timestamp: %w", model.ErrPersistence)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListConsoleMessages returns ConsoleMessages for a session in capture order.
func (s *Store) ListConsoleMessages(ctx context.Context, sessionID int64) ([]model.ConsoleMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, level, message, timestamp
		FROM console_messages WHERE session_id = ? ORDER BY timestamp`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list console messages: %w", model.ErrPersistence)
	}
	defer rows.Close()

	var out []model.ConsoleMessage
	for rows.Next() {
		var (
			m     model.ConsoleMessage
			level string
			ts    string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &level, &m.Message, &ts); err != nil {
			return nil, fmt.Errorf("scan console message: %w", model.ErrPersistence)
		}
		m.Level = model.ConsoleLevel(level)
		if m.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse console message timestamp: %w", model.ErrPersistence)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraint(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}
