// Package postgres provides a PostgreSQL-backed RecordStore.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/connector-sync/internal/otel"
	"github.com/stacklok/connector-sync/internal/payload"
	"github.com/stacklok/connector-sync/internal/store"
)

// TracerName is the name used for the record store tracer
const TracerName = "github.com/stacklok/connector-sync/store/postgres"

const uniqueViolation = "23505"

// Store implements store.RecordStore on the records table. The data column is
// JSON rather than JSONB so that field order is kept as written.
type Store struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

var _ store.RecordStore = (*Store)(nil)

// Option is a functional option for configuring the store
type Option func(*Store)

// WithTracer enables spans around every query
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		s.tracer = tracer
	}
}

// New creates a store over pool
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) startSpan(ctx context.Context, name string, scope store.Scope) (context.Context, trace.Span) {
	return otel.StartSpan(ctx, s.tracer, name, trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		otel.AttrOrgUnit.String(scope.OrgUnit),
		otel.AttrCollection.String(scope.Collection),
	))
}

const listQuery = `
SELECT id, data, updated_at
FROM records
WHERE org_unit = $1 AND collection = $2
  AND ($3::timestamptz IS NULL OR updated_at >= $3)
ORDER BY updated_at, id
LIMIT $4`

// List implements store.RecordStore
func (s *Store) List(ctx context.Context, scope store.Scope, filter store.Filter) (_ []store.Record, err error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "store.List", scope)
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	var since *time.Time
	if !filter.UpdatedSince.IsZero() {
		since = &filter.UpdatedSince
	}
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}

	rows, err := s.pool.Query(ctx, listQuery, scope.OrgUnit, scope.Collection, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	span.SetAttributes(attribute.Int("result.count", len(records)))
	return records, nil
}

// Get implements store.RecordStore
func (s *Store) Get(ctx context.Context, scope store.Scope, id string) (_ *store.Record, err error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "store.Get", scope)
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	rows, err := s.pool.Query(ctx,
		`SELECT id, data, updated_at FROM records WHERE org_unit = $1 AND collection = $2 AND id = $3`,
		scope.OrgUnit, scope.Collection, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", store.ErrNotFound, scope.Collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	return &rec, nil
}

// Insert implements store.RecordStore
func (s *Store) Insert(ctx context.Context, scope store.Scope, rec store.Record) (err error) {
	if err := store.ValidateRecord(scope, rec); err != nil {
		return err
	}
	ctx, span := s.startSpan(ctx, "store.Insert", scope)
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	data, err := encode(rec)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO records (org_unit, collection, id, data, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		scope.OrgUnit, scope.Collection, rec.ID, data, rec.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s/%s", store.ErrAlreadyExists, scope.Collection, rec.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
	}
	return nil
}

// Upsert implements store.RecordStore
func (s *Store) Upsert(ctx context.Context, scope store.Scope, rec store.Record) (err error) {
	if err := store.ValidateRecord(scope, rec); err != nil {
		return err
	}
	ctx, span := s.startSpan(ctx, "store.Upsert", scope)
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	data, err := encode(rec)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO records (org_unit, collection, id, data, updated_at) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (org_unit, collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		scope.OrgUnit, scope.Collection, rec.ID, data, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
	}
	return nil
}

// Delete implements store.RecordStore
func (s *Store) Delete(ctx context.Context, scope store.Scope, id string) (err error) {
	if err := scope.Validate(); err != nil {
		return err
	}
	ctx, span := s.startSpan(ctx, "store.Delete", scope)
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM records WHERE org_unit = $1 AND collection = $2 AND id = $3`,
		scope.OrgUnit, scope.Collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", store.ErrNotFound, scope.Collection, id)
	}
	return nil
}

func encode(rec store.Record) ([]byte, error) {
	fields := rec.Fields
	if fields == nil {
		fields = payload.New()
	}
	data, err := fields.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
	}
	return data, nil
}

func scanRecord(row pgx.CollectableRow) (store.Record, error) {
	var (
		rec  store.Record
		data []byte
	)
	if err := row.Scan(&rec.ID, &data, &rec.UpdatedAt); err != nil {
		return store.Record{}, err
	}
	fields, err := payload.Parse(data)
	if err != nil {
		return store.Record{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	rec.Fields = fields
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}
