package sync

import (
	"context"
	"fmt"
	"time"
)

// Recorder appends data versions to the journal
type Recorder struct {
	store VersionStore
	now   func() time.Time
}

// NewRecorder creates a recorder writing to s
func NewRecorder(s VersionStore, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{store: s, now: now}
}

// Record appends versions in order and returns them with their assigned
// version numbers. Numbers continue from the highest existing version of each
// (org unit, collection, record id); several versions of one record in a call
// get consecutive numbers.
func (r *Recorder) Record(ctx context.Context, versions ...DataVersion) ([]DataVersion, error) {
	if len(versions) == 0 {
		return nil, nil
	}

	recordedAt := r.now().UTC()
	batch := make([]DataVersion, len(versions))
	for i, v := range versions {
		if v.Collection == "" || v.RecordID == "" {
			return nil, fmt.Errorf("version %d: collection and record id are required", i)
		}
		if v.SessionID == "" {
			return nil, fmt.Errorf("version %d: session id is required", i)
		}
		switch v.Outcome {
		case OutcomeApplied, OutcomeConflict:
		default:
			return nil, fmt.Errorf("version %d: unknown outcome '%s'", i, v.Outcome)
		}
		switch v.ChangeKind {
		case KindCreate, KindUpdate, KindDelete:
		default:
			return nil, fmt.Errorf("version %d: unknown change kind '%s'", i, v.ChangeKind)
		}
		v.VersionNumber = 0
		if v.RecordedAt.IsZero() {
			v.RecordedAt = recordedAt
		}
		batch[i] = v
	}

	recorded, err := r.store.AppendVersions(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to record versions: %w", err)
	}
	return recorded, nil
}
