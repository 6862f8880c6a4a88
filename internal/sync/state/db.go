package state

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/payload"
	"github.com/stacklok/connector-sync/internal/status"
	"github.com/stacklok/connector-sync/internal/sync"
)

type dbJournal struct {
	pool *pgxpool.Pool
}

// NewDBJournal creates a journal stored in PostgreSQL. The schema is created
// by the database migrations.
func NewDBJournal(pool *pgxpool.Pool) sync.Journal {
	return &dbJournal{pool: pool}
}

const sessionColumns = `id, connector, org_unit, direction, phase::text, operations_processed,
conflicts_detected, operations_failed, errors, started_at, ended_at`

func (d *dbJournal) CreateSession(ctx context.Context, s *sync.Session) error {
	if err := validateNewSession(s); err != nil {
		return err
	}
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return fmt.Errorf("invalid session id %s: %w", s.ID, err)
	}

	_, err = d.pool.Exec(ctx, `
INSERT INTO sync_session (id, connector, org_unit, direction, phase, errors, started_at)
VALUES ($1, $2, $3, $4, $5::sync_phase, $6, $7)`,
		id, s.ConnectorID, s.OrgUnit, string(s.Direction), string(s.Phase), nonNil(s.Errors), s.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (d *dbJournal) FinishSession(ctx context.Context, s *sync.Session) error {
	if err := status.Transition(status.PhaseActive, s.Phase); err != nil {
		return err
	}
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return fmt.Errorf("%w: %s", sync.ErrSessionNotFound, s.ID)
	}

	tag, err := d.pool.Exec(ctx, `
UPDATE sync_session
SET phase = $2::sync_phase, direction = $3, operations_processed = $4, conflicts_detected = $5,
    operations_failed = $6, errors = $7, ended_at = $8
WHERE id = $1 AND phase = 'active'`,
		id, string(s.Phase), string(s.Direction), s.OperationsProcessed, s.ConflictsDetected,
		s.OperationsFailed, nonNil(s.Errors), s.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	stored, err := d.GetSession(ctx, s.ID)
	if err != nil {
		return err
	}
	return status.Transition(stored.Phase, s.Phase)
}

func (d *dbJournal) GetSession(ctx context.Context, id string) (*sync.Session, error) {
	sessionID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", sync.ErrSessionNotFound, id)
	}

	rows, err := d.pool.Query(ctx, `SELECT `+sessionColumns+` FROM sync_session WHERE id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSession)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", sync.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return s, nil
}

func (d *dbJournal) LastSuccessfulSession(ctx context.Context, orgUnit, connectorName string) (*sync.Session, error) {
	rows, err := d.pool.Query(ctx, `
SELECT `+sessionColumns+`
FROM sync_session
WHERE org_unit = $1 AND connector = $2 AND phase = 'completed' AND cardinality(errors) = 0
ORDER BY started_at DESC
LIMIT 1`, orgUnit, connectorName)
	if err != nil {
		return nil, fmt.Errorf("failed to query last session: %w", err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSession)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: no successful session for connector '%s' in org unit '%s'",
			sync.ErrSessionNotFound, connectorName, orgUnit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return s, nil
}

func (d *dbJournal) ListSessions(ctx context.Context, filter sync.SessionFilter) ([]*sync.Session, error) {
	rows, err := d.pool.Query(ctx, `
SELECT `+sessionColumns+`
FROM sync_session
WHERE ($1 = '' OR org_unit = $1) AND ($2 = '' OR connector = $2)
ORDER BY started_at DESC, id
LIMIT $3`, filter.OrgUnit, filter.Connector, limitArg(filter.Limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	return sessions, nil
}

func scanSession(row pgx.CollectableRow) (*sync.Session, error) {
	var (
		s         sync.Session
		id        uuid.UUID
		direction string
		phase     string
	)
	err := row.Scan(&id, &s.ConnectorID, &s.OrgUnit, &direction, &phase, &s.OperationsProcessed,
		&s.ConflictsDetected, &s.OperationsFailed, &s.Errors, &s.StartedAt, &s.EndedAt)
	if err != nil {
		return nil, err
	}
	s.ID = id.String()
	s.Direction = connector.Direction(direction)
	s.Phase = status.Phase(phase)
	s.StartedAt = s.StartedAt.UTC()
	if s.EndedAt != nil {
		endedAt := s.EndedAt.UTC()
		s.EndedAt = &endedAt
	}
	if s.Errors == nil {
		s.Errors = []string{}
	}
	return &s, nil
}

// AppendVersions numbers versions inside one transaction. A transaction-scoped
// advisory lock per record serializes writers that would otherwise read the
// same maximum.
func (d *dbJournal) AppendVersions(ctx context.Context, versions []sync.DataVersion) ([]sync.DataVersion, error) {
	if len(versions) == 0 {
		return nil, nil
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	keys := make([]versionKey, 0, len(versions))
	seen := make(map[versionKey]bool)
	for _, v := range versions {
		key := versionKey{orgUnit: v.OrgUnit, collection: v.Collection, recordID: v.RecordID}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	// Fixed lock order between concurrent batches
	sort.Slice(keys, func(a, b int) bool {
		return keys[a].lockName() < keys[b].lockName()
	})

	next := make(map[versionKey]int, len(keys))
	for _, key := range keys {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key.lockName()); err != nil {
			return nil, fmt.Errorf("failed to lock record history: %w", err)
		}
		var highest int
		err := tx.QueryRow(ctx, `
SELECT COALESCE(MAX(version_number), 0)
FROM data_version
WHERE org_unit = $1 AND collection = $2 AND record_id = $3`,
			key.orgUnit, key.collection, key.recordID).Scan(&highest)
		if err != nil {
			return nil, fmt.Errorf("failed to read version history: %w", err)
		}
		next[key] = highest + 1
	}

	out := make([]sync.DataVersion, len(versions))
	for i, v := range versions {
		key := versionKey{orgUnit: v.OrgUnit, collection: v.Collection, recordID: v.RecordID}
		v.VersionNumber = next[key]
		next[key]++

		sessionID, err := uuid.Parse(v.SessionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", sync.ErrSessionNotFound, v.SessionID)
		}
		snapshot, err := encodeJSON(v.Snapshot)
		if err != nil {
			return nil, err
		}
		_, err = tx.Exec(ctx, `
INSERT INTO data_version
    (org_unit, collection, record_id, version_number, snapshot, change_kind, outcome, session_id, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			v.OrgUnit, v.Collection, v.RecordID, v.VersionNumber, snapshot,
			string(v.ChangeKind), string(v.Outcome), sessionID, v.RecordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to append version: %w", err)
		}
		out[i] = v
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit versions: %w", err)
	}
	return out, nil
}

func (k versionKey) lockName() string {
	return k.orgUnit + "\x00" + k.collection + "\x00" + k.recordID
}

func (d *dbJournal) ListVersions(ctx context.Context, orgUnit, collection, recordID string) ([]sync.DataVersion, error) {
	rows, err := d.pool.Query(ctx, `
SELECT org_unit, collection, record_id, version_number, snapshot, change_kind, outcome, session_id, recorded_at
FROM data_version
WHERE org_unit = $1 AND collection = $2 AND record_id = $3
ORDER BY version_number`, orgUnit, collection, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	versions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (sync.DataVersion, error) {
		var (
			v         sync.DataVersion
			snapshot  []byte
			kind      string
			outcome   string
			sessionID uuid.UUID
		)
		err := row.Scan(&v.OrgUnit, &v.Collection, &v.RecordID, &v.VersionNumber, &snapshot,
			&kind, &outcome, &sessionID, &v.RecordedAt)
		if err != nil {
			return v, err
		}
		if v.Snapshot, err = payload.Parse(snapshot); err != nil {
			return v, fmt.Errorf("version %d: %w", v.VersionNumber, err)
		}
		v.ChangeKind = sync.Kind(kind)
		v.Outcome = sync.Outcome(outcome)
		v.SessionID = sessionID.String()
		v.RecordedAt = v.RecordedAt.UTC()
		return v, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read versions: %w", err)
	}
	return versions, nil
}

func (d *dbJournal) SaveConflict(ctx context.Context, c *sync.Conflict) error {
	if err := validateConflict(c); err != nil {
		return err
	}
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return fmt.Errorf("invalid conflict id %s: %w", c.ID, err)
	}
	sessionID, err := uuid.Parse(c.SessionID)
	if err != nil {
		return fmt.Errorf("%w: %s", sync.ErrSessionNotFound, c.SessionID)
	}
	source, err := encodeJSON(c.SourceSnapshot)
	if err != nil {
		return err
	}
	target, err := encodeJSON(c.TargetSnapshot)
	if err != nil {
		return err
	}

	_, err = d.pool.Exec(ctx, `
INSERT INTO sync_conflict
    (id, session_id, org_unit, collection, record_id, kind, origin,
     source_snapshot, target_snapshot, source_timestamp, target_timestamp, detected_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id, sessionID, c.OrgUnit, c.Collection, c.RecordID, string(c.Kind), string(c.Origin),
		source, target, c.SourceTimestamp, c.TargetTimestamp, c.DetectedAt)
	if err != nil {
		return fmt.Errorf("failed to save conflict: %w", err)
	}
	return nil
}

func (d *dbJournal) ListConflicts(ctx context.Context, filter sync.ConflictFilter) ([]*sync.Conflict, error) {
	var sessionID *uuid.UUID
	if filter.SessionID != "" {
		id, err := uuid.Parse(filter.SessionID)
		if err != nil {
			return []*sync.Conflict{}, nil
		}
		sessionID = &id
	}

	rows, err := d.pool.Query(ctx, `
SELECT id, session_id, org_unit, collection, record_id, kind, origin,
       source_snapshot, target_snapshot, source_timestamp, target_timestamp, detected_at
FROM sync_conflict
WHERE ($1 = '' OR org_unit = $1) AND ($2 = '' OR collection = $2) AND ($3 = '' OR record_id = $3)
  AND ($4::uuid IS NULL OR session_id = $4)
ORDER BY detected_at DESC
LIMIT $5`, filter.OrgUnit, filter.Collection, filter.RecordID, sessionID, limitArg(filter.Limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	conflicts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*sync.Conflict, error) {
		var (
			c              sync.Conflict
			id, session    uuid.UUID
			kind, origin   string
			source, target []byte
		)
		err := row.Scan(&id, &session, &c.OrgUnit, &c.Collection, &c.RecordID, &kind, &origin,
			&source, &target, &c.SourceTimestamp, &c.TargetTimestamp, &c.DetectedAt)
		if err != nil {
			return nil, err
		}
		c.ID = id.String()
		c.SessionID = session.String()
		c.Kind = sync.ConflictKind(kind)
		c.Origin = connector.Side(origin)
		if c.SourceSnapshot, err = payload.Parse(source); err != nil {
			return nil, fmt.Errorf("conflict %s: %w", c.ID, err)
		}
		if c.TargetSnapshot, err = payload.Parse(target); err != nil {
			return nil, fmt.Errorf("conflict %s: %w", c.ID, err)
		}
		c.SourceTimestamp = c.SourceTimestamp.UTC()
		c.TargetTimestamp = c.TargetTimestamp.UTC()
		c.DetectedAt = c.DetectedAt.UTC()
		return &c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read conflicts: %w", err)
	}
	return conflicts, nil
}

// encodeJSON encodes a snapshot, writing an empty object for nil
func encodeJSON(p *payload.Payload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	data, err := p.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

func limitArg(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}

func nonNil(errs []string) []string {
	if errs == nil {
		return []string{}
	}
	return errs
}
