package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/payload"
	"github.com/stacklok/connector-sync/internal/sync/writer"
)

func TestDetectConflict(t *testing.T) {
	t.Parallel()

	local := payload.FromMap(map[string]any{"id": "r1", "status": "draft"})
	remote := payload.FromMap(map[string]any{"external_id": "r1"})

	tests := []struct {
		name        string
		op          Operation
		counterpart writer.Counterpart
		wantKind    ConflictKind
	}{
		{
			name:        "target newer than origin",
			op:          Operation{Kind: KindUpdate, RecordID: "r1", OriginTimestamp: t0},
			counterpart: writer.Counterpart{Exists: true, Snapshot: remote, UpdatedAt: t0.Add(time.Hour)},
			wantKind:    ConflictKindTimestamp,
		},
		{
			name:        "delete against newer target",
			op:          Operation{Kind: KindDelete, RecordID: "r1", OriginTimestamp: t0},
			counterpart: writer.Counterpart{Exists: true, Snapshot: remote, UpdatedAt: t0.Add(time.Second)},
			wantKind:    ConflictKindDeleteUpdate,
		},
		{
			name:        "equal timestamps are safe",
			op:          Operation{Kind: KindUpdate, RecordID: "r1", OriginTimestamp: t0},
			counterpart: writer.Counterpart{Exists: true, Snapshot: remote, UpdatedAt: t0},
		},
		{
			name:        "older target",
			op:          Operation{Kind: KindUpdate, RecordID: "r1", OriginTimestamp: t0},
			counterpart: writer.Counterpart{Exists: true, Snapshot: remote, UpdatedAt: t0.Add(-time.Hour)},
		},
		{
			name: "no counterpart",
			op:   Operation{Kind: KindUpdate, RecordID: "r1", OriginTimestamp: t0},
		},
		{
			name:        "provisional record",
			op:          Operation{Kind: KindUpdate, RecordID: "tmp-1", Provisional: true, OriginTimestamp: t0},
			counterpart: writer.Counterpart{Exists: true, UpdatedAt: t0.Add(time.Hour)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			op := tt.op
			op.Collection = "projects"
			op.Origin = connector.SideLocal
			op.Payload = local

			c := DetectConflict(&op, tt.counterpart)
			if tt.wantKind == "" {
				assert.Nil(t, c)
				return
			}

			require.NotNil(t, c)
			assert.Equal(t, tt.wantKind, c.Kind)
			assert.Equal(t, "projects", c.Collection)
			assert.Equal(t, "r1", c.RecordID)
			assert.Equal(t, connector.SideLocal, c.Origin)
			assert.Same(t, local, c.SourceSnapshot)
			assert.Same(t, remote, c.TargetSnapshot)
			assert.Equal(t, op.OriginTimestamp, c.SourceTimestamp)
			assert.Equal(t, tt.counterpart.UpdatedAt, c.TargetTimestamp)
			assert.Empty(t, c.SessionID)
		})
	}
}
