// Package writer applies translated payloads to one side of a connector and
// looks up the current state of records on that side.
package writer

//go:generate mockgen -destination=mocks/mock_target.go -package=mocks -source=writer.go Target

import (
	"context"
	"time"

	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/payload"
)

// Counterpart is the current state of a record on the target side
type Counterpart struct {
	Exists    bool
	Snapshot  *payload.Payload
	UpdatedAt time.Time
}

// Target is one side of a connector as seen by the applier. Every call
// touches exactly one record.
type Target interface {
	// Side reports which side the target writes
	Side() connector.Side

	// Lookup returns the counterpart of id, with Exists false when absent
	Lookup(ctx context.Context, coll *connector.Collection, id string) (Counterpart, error)

	// Create writes a record that does not exist yet
	Create(ctx context.Context, coll *connector.Collection, id string, fields *payload.Payload, updatedAt time.Time) error

	// Update replaces the mapped fields of an existing record
	Update(ctx context.Context, coll *connector.Collection, id string, fields *payload.Payload, updatedAt time.Time) error

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, coll *connector.Collection, id string) error
}
