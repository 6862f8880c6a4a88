package sync

import (
	"context"
	"fmt"

	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/sync/writer"
)

// Applier executes non-conflicting operations against their target
type Applier struct{}

// NewApplier creates an applier
func NewApplier() *Applier {
	return &Applier{}
}

// Apply translates the payload through the collection field map, validates it
// against the collection schema and writes it to target. It returns the kind
// that was actually applied: create when the counterpart is absent, update
// when it exists, delete for deletes.
func (*Applier) Apply(
	ctx context.Context,
	coll *connector.Collection,
	op *Operation,
	counterpart writer.Counterpart,
	target writer.Target,
) (Kind, error) {
	if target.Side() != op.Target() {
		return "", fmt.Errorf("operation from %s cannot be applied to %s", op.Origin, target.Side())
	}

	if op.Kind == KindDelete {
		if err := target.Delete(ctx, coll, op.RecordID); err != nil {
			return "", fmt.Errorf("failed to delete %s/%s: %w", coll.Name, op.RecordID, err)
		}
		return KindDelete, nil
	}

	fields := op.Payload.Translate(coll.FieldMap.For(op.Origin))
	if err := coll.Schema.Validate(fields); err != nil {
		return "", fmt.Errorf("%s/%s: %w", coll.Name, op.RecordID, err)
	}

	if counterpart.Exists {
		if err := target.Update(ctx, coll, op.RecordID, fields, op.OriginTimestamp); err != nil {
			return "", fmt.Errorf("failed to update %s/%s: %w", coll.Name, op.RecordID, err)
		}
		return KindUpdate, nil
	}

	if err := target.Create(ctx, coll, op.RecordID, fields, op.OriginTimestamp); err != nil {
		return "", fmt.Errorf("failed to create %s/%s: %w", coll.Name, op.RecordID, err)
	}
	return KindCreate, nil
}
