package writer

import (
	"context"
	"errors"
	"time"

	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/payload"
	"github.com/stacklok/connector-sync/internal/store"
)

// LocalWriter writes to the local record store, scoped to one org unit
type LocalWriter struct {
	store   store.RecordStore
	orgUnit string
}

var _ Target = (*LocalWriter)(nil)

// NewLocalWriter creates a local target for orgUnit
func NewLocalWriter(s store.RecordStore, orgUnit string) *LocalWriter {
	return &LocalWriter{store: s, orgUnit: orgUnit}
}

func (w *LocalWriter) scope(coll *connector.Collection) store.Scope {
	return store.Scope{OrgUnit: w.orgUnit, Collection: coll.Name}
}

// Side implements Target
func (*LocalWriter) Side() connector.Side {
	return connector.SideLocal
}

// Lookup implements Target
func (w *LocalWriter) Lookup(ctx context.Context, coll *connector.Collection, id string) (Counterpart, error) {
	rec, err := w.store.Get(ctx, w.scope(coll), id)
	if errors.Is(err, store.ErrNotFound) {
		return Counterpart{}, nil
	}
	if err != nil {
		return Counterpart{}, err
	}
	return Counterpart{Exists: true, Snapshot: rec.Fields, UpdatedAt: rec.UpdatedAt}, nil
}

// Create implements Target. The record keeps the origin timestamp as its
// update time so that it is not detected again as a local change.
func (w *LocalWriter) Create(
	ctx context.Context,
	coll *connector.Collection,
	id string,
	fields *payload.Payload,
	updatedAt time.Time,
) error {
	return w.store.Insert(ctx, w.scope(coll), store.Record{ID: id, Fields: fields, UpdatedAt: updatedAt})
}

// Update implements Target
func (w *LocalWriter) Update(
	ctx context.Context,
	coll *connector.Collection,
	id string,
	fields *payload.Payload,
	updatedAt time.Time,
) error {
	return w.store.Upsert(ctx, w.scope(coll), store.Record{ID: id, Fields: fields, UpdatedAt: updatedAt})
}

// Delete implements Target
func (w *LocalWriter) Delete(ctx context.Context, coll *connector.Collection, id string) error {
	err := w.store.Delete(ctx, w.scope(coll), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
