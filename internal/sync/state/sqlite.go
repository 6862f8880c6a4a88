package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Pure Go SQLite driver
	_ "modernc.org/sqlite"

	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/payload"
	"github.com/stacklok/connector-sync/internal/status"
	"github.com/stacklok/connector-sync/internal/sync"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteJournal is a journal stored in a single SQLite file. Timestamps are
// stored as Unix nanoseconds and session errors as a JSON array.
type SQLiteJournal struct {
	db *sql.DB
}

var _ sync.Journal = (*SQLiteJournal)(nil)

// NewSQLiteJournal opens or creates the journal at path and applies its schema
func NewSQLiteJournal(ctx context.Context, path string) (*SQLiteJournal, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// One writer keeps version numbering serialized
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// Close closes the database
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// CreateSession implements sync.SessionStore
func (j *SQLiteJournal) CreateSession(ctx context.Context, s *sync.Session) error {
	if err := validateNewSession(s); err != nil {
		return err
	}
	errs, err := json.Marshal(nonNil(s.Errors))
	if err != nil {
		return fmt.Errorf("failed to encode errors: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
INSERT INTO sync_session (id, connector, org_unit, direction, phase, errors, started_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ConnectorID, s.OrgUnit, string(s.Direction), string(s.Phase), string(errs), s.StartedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FinishSession implements sync.SessionStore
func (j *SQLiteJournal) FinishSession(ctx context.Context, s *sync.Session) error {
	if err := status.Transition(status.PhaseActive, s.Phase); err != nil {
		return err
	}
	errs, err := json.Marshal(nonNil(s.Errors))
	if err != nil {
		return fmt.Errorf("failed to encode errors: %w", err)
	}

	res, err := j.db.ExecContext(ctx, `
UPDATE sync_session
SET phase = ?, direction = ?, operations_processed = ?, conflicts_detected = ?,
    operations_failed = ?, errors = ?, ended_at = ?
WHERE id = ? AND phase = 'active'`,
		string(s.Phase), string(s.Direction), s.OperationsProcessed, s.ConflictsDetected,
		s.OperationsFailed, string(errs), nanos(s.EndedAt), s.ID)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}

	stored, err := j.GetSession(ctx, s.ID)
	if err != nil {
		return err
	}
	return status.Transition(stored.Phase, s.Phase)
}

const sqliteSessionColumns = `id, connector, org_unit, direction, phase, operations_processed,
conflicts_detected, operations_failed, errors, started_at, ended_at`

// GetSession implements sync.SessionStore
func (j *SQLiteJournal) GetSession(ctx context.Context, id string) (*sync.Session, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+sqliteSessionColumns+` FROM sync_session WHERE id = ?`, id)
	s, err := scanSQLiteSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", sync.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return s, nil
}

// LastSuccessfulSession implements sync.SessionStore
func (j *SQLiteJournal) LastSuccessfulSession(ctx context.Context, orgUnit, connectorName string) (*sync.Session, error) {
	row := j.db.QueryRowContext(ctx, `
SELECT `+sqliteSessionColumns+`
FROM sync_session
WHERE org_unit = ? AND connector = ? AND phase = 'completed' AND json_array_length(errors) = 0
ORDER BY started_at DESC
LIMIT 1`, orgUnit, connectorName)
	s, err := scanSQLiteSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no successful session for connector '%s' in org unit '%s'",
			sync.ErrSessionNotFound, connectorName, orgUnit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return s, nil
}

// ListSessions implements sync.SessionStore
func (j *SQLiteJournal) ListSessions(ctx context.Context, filter sync.SessionFilter) ([]*sync.Session, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT `+sqliteSessionColumns+`
FROM sync_session
WHERE (?1 = '' OR org_unit = ?1) AND (?2 = '' OR connector = ?2)
ORDER BY started_at DESC, id
LIMIT ?3`, filter.OrgUnit, filter.Connector, sqliteLimit(filter.Limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*sync.Session{}
	for rows.Next() {
		s, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSession(row scanner) (*sync.Session, error) {
	var (
		s         sync.Session
		direction string
		phase     string
		errs      string
		startedAt int64
		endedAt   sql.NullInt64
	)
	err := row.Scan(&s.ID, &s.ConnectorID, &s.OrgUnit, &direction, &phase, &s.OperationsProcessed,
		&s.ConflictsDetected, &s.OperationsFailed, &errs, &startedAt, &endedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(errs), &s.Errors); err != nil {
		return nil, fmt.Errorf("session %s: failed to decode errors: %w", s.ID, err)
	}
	if s.Errors == nil {
		s.Errors = []string{}
	}
	s.Direction = connector.Direction(direction)
	s.Phase = status.Phase(phase)
	s.StartedAt = fromNanos(startedAt)
	if endedAt.Valid {
		t := fromNanos(endedAt.Int64)
		s.EndedAt = &t
	}
	return &s, nil
}

// AppendVersions implements sync.VersionStore. The single connection
// serializes the read of the highest version with the inserts.
func (j *SQLiteJournal) AppendVersions(ctx context.Context, versions []sync.DataVersion) ([]sync.DataVersion, error) {
	if len(versions) == 0 {
		return nil, nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	next := make(map[versionKey]int)
	out := make([]sync.DataVersion, len(versions))
	for i, v := range versions {
		key := versionKey{orgUnit: v.OrgUnit, collection: v.Collection, recordID: v.RecordID}
		n, ok := next[key]
		if !ok {
			var highest int
			err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(version_number), 0)
FROM data_version
WHERE org_unit = ? AND collection = ? AND record_id = ?`,
				key.orgUnit, key.collection, key.recordID).Scan(&highest)
			if err != nil {
				return nil, fmt.Errorf("failed to read version history: %w", err)
			}
			n = highest + 1
		}
		next[key] = n + 1
		v.VersionNumber = n

		snapshot, err := encodeJSON(v.Snapshot)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO data_version
    (org_unit, collection, record_id, version_number, snapshot, change_kind, outcome, session_id, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.OrgUnit, v.Collection, v.RecordID, v.VersionNumber, string(snapshot),
			string(v.ChangeKind), string(v.Outcome), v.SessionID, v.RecordedAt.UnixNano())
		if err != nil {
			return nil, fmt.Errorf("failed to append version: %w", err)
		}
		out[i] = v
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit versions: %w", err)
	}
	return out, nil
}

// ListVersions implements sync.VersionStore
func (j *SQLiteJournal) ListVersions(ctx context.Context, orgUnit, collection, recordID string) ([]sync.DataVersion, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT org_unit, collection, record_id, version_number, snapshot, change_kind, outcome, session_id, recorded_at
FROM data_version
WHERE org_unit = ? AND collection = ? AND record_id = ?
ORDER BY version_number`, orgUnit, collection, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	versions := []sync.DataVersion{}
	for rows.Next() {
		var (
			v          sync.DataVersion
			snapshot   string
			kind       string
			outcome    string
			recordedAt int64
		)
		err := rows.Scan(&v.OrgUnit, &v.Collection, &v.RecordID, &v.VersionNumber, &snapshot,
			&kind, &outcome, &v.SessionID, &recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to read version: %w", err)
		}
		if v.Snapshot, err = payload.Parse([]byte(snapshot)); err != nil {
			return nil, fmt.Errorf("version %d: %w", v.VersionNumber, err)
		}
		v.ChangeKind = sync.Kind(kind)
		v.Outcome = sync.Outcome(outcome)
		v.RecordedAt = fromNanos(recordedAt)
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// SaveConflict implements sync.ConflictStore
func (j *SQLiteJournal) SaveConflict(ctx context.Context, c *sync.Conflict) error {
	if err := validateConflict(c); err != nil {
		return err
	}
	source, err := encodeJSON(c.SourceSnapshot)
	if err != nil {
		return err
	}
	target, err := encodeJSON(c.TargetSnapshot)
	if err != nil {
		return err
	}

	_, err = j.db.ExecContext(ctx, `
INSERT INTO sync_conflict
    (id, session_id, org_unit, collection, record_id, kind, origin,
     source_snapshot, target_snapshot, source_timestamp, target_timestamp, detected_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SessionID, c.OrgUnit, c.Collection, c.RecordID, string(c.Kind), string(c.Origin),
		string(source), string(target),
		c.SourceTimestamp.UnixNano(), c.TargetTimestamp.UnixNano(), c.DetectedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save conflict: %w", err)
	}
	return nil
}

// ListConflicts implements sync.ConflictStore
func (j *SQLiteJournal) ListConflicts(ctx context.Context, filter sync.ConflictFilter) ([]*sync.Conflict, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT id, session_id, org_unit, collection, record_id, kind, origin,
       source_snapshot, target_snapshot, source_timestamp, target_timestamp, detected_at
FROM sync_conflict
WHERE (?1 = '' OR org_unit = ?1) AND (?2 = '' OR collection = ?2)
  AND (?3 = '' OR record_id = ?3) AND (?4 = '' OR session_id = ?4)
ORDER BY detected_at DESC
LIMIT ?5`, filter.OrgUnit, filter.Collection, filter.RecordID, filter.SessionID, sqliteLimit(filter.Limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	conflicts := []*sync.Conflict{}
	for rows.Next() {
		var (
			c                       sync.Conflict
			kind, origin            string
			source, target          string
			sourceTS, targetTS, det int64
		)
		err := rows.Scan(&c.ID, &c.SessionID, &c.OrgUnit, &c.Collection, &c.RecordID, &kind, &origin,
			&source, &target, &sourceTS, &targetTS, &det)
		if err != nil {
			return nil, fmt.Errorf("failed to read conflict: %w", err)
		}
		c.Kind = sync.ConflictKind(kind)
		c.Origin = connector.Side(origin)
		if c.SourceSnapshot, err = payload.Parse([]byte(source)); err != nil {
			return nil, fmt.Errorf("conflict %s: %w", c.ID, err)
		}
		if c.TargetSnapshot, err = payload.Parse([]byte(target)); err != nil {
			return nil, fmt.Errorf("conflict %s: %w", c.ID, err)
		}
		c.SourceTimestamp = fromNanos(sourceTS)
		c.TargetTimestamp = fromNanos(targetTS)
		c.DetectedAt = fromNanos(det)
		conflicts = append(conflicts, &c)
	}
	return conflicts, rows.Err()
}

// sqliteLimit maps "no limit" to -1, which SQLite reads as unbounded
func sqliteLimit(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}

func nanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
