package sync

import (
	"github.com/stacklok/connector-sync/internal/sync/writer"
)

// DetectConflict compares op with the current state of its target. A target
// updated strictly after the origin timestamp is a conflict; equal timestamps
// are safe so that re-applying a change never conflicts with itself. The
// returned conflict carries no session fields.
func DetectConflict(op *Operation, counterpart writer.Counterpart) *Conflict {
	if op.Provisional || !counterpart.Exists {
		return nil
	}
	if !counterpart.UpdatedAt.After(op.OriginTimestamp) {
		return nil
	}

	kind := ConflictKindTimestamp
	if op.Kind == KindDelete {
		kind = ConflictKindDeleteUpdate
	}

	return &Conflict{
		Collection:      op.Collection,
		RecordID:        op.RecordID,
		Kind:            kind,
		Origin:          op.Origin,
		SourceSnapshot:  op.Payload,
		TargetSnapshot:  counterpart.Snapshot,
		SourceTimestamp: op.OriginTimestamp,
		TargetTimestamp: counterpart.UpdatedAt,
	}
}
