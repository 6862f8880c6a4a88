package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/payload"
	"github.com/stacklok/connector-sync/internal/store"
)

// LocalSource reads candidates from the local record store
type LocalSource struct {
	store store.RecordStore
}

var _ Source = (*LocalSource)(nil)

// NewLocalSource creates a source over s
func NewLocalSource(s store.RecordStore) *LocalSource {
	return &LocalSource{store: s}
}

// Side implements Source
func (*LocalSource) Side() connector.Side {
	return connector.SideLocal
}

// Fetch implements Source. Each record is materialized with its id under the
// collection id field and its update time under the first timestamp field,
// ahead of the stored fields.
func (s *LocalSource) Fetch(
	ctx context.Context,
	conn *connector.Connector,
	coll *connector.Collection,
	since time.Time,
) ([]*payload.Payload, error) {
	scope := store.Scope{OrgUnit: conn.OrgUnit, Collection: coll.Name}
	records, err := s.store.List(ctx, scope, store.Filter{UpdatedSince: since})
	if err != nil {
		return nil, fmt.Errorf("failed to list local records: %w", err)
	}

	out := make([]*payload.Payload, 0, len(records))
	for _, rec := range records {
		out = append(out, materialize(coll, rec))
	}
	return out, nil
}

func materialize(coll *connector.Collection, rec store.Record) *payload.Payload {
	p := payload.New()
	p.Set(coll.IDField, rec.ID)
	if len(coll.TimestampFields) > 0 {
		p.Set(coll.TimestampFields[0], rec.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	rec.Fields.Range(func(k string, v any) bool {
		if !p.Has(k) {
			p.Set(k, v)
		}
		return true
	})
	return p
}
