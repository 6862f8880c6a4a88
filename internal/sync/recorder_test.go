package sync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/connector-sync/internal/payload"
	"github.com/stacklok/connector-sync/internal/sync"
	"github.com/stacklok/connector-sync/internal/sync/mocks"
)

func TestRecorder_Record(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	valid := sync.DataVersion{
		OrgUnit:       "acme",
		Collection:    "projects",
		RecordID:      "r1",
		VersionNumber: 99,
		Snapshot:      payload.New(),
		ChangeKind:    sync.KindCreate,
		Outcome:       sync.OutcomeApplied,
		SessionID:     "s1",
	}

	tests := []struct {
		name    string
		mutate  func(v *sync.DataVersion)
		setup   func(m *mocks.MockVersionStore)
		wantErr string
	}{
		{
			name: "assigns numbering to the store and stamps the time",
			setup: func(m *mocks.MockVersionStore) {
				m.EXPECT().AppendVersions(gomock.Any(), gomock.Cond(func(x any) bool {
					vs := x.([]sync.DataVersion)
					return len(vs) == 1 && vs[0].VersionNumber == 0 && vs[0].RecordedAt.Equal(now)
				})).DoAndReturn(func(_ context.Context, vs []sync.DataVersion) ([]sync.DataVersion, error) {
					vs[0].VersionNumber = 1
					return vs, nil
				})
			},
		},
		{
			name:    "missing record id",
			mutate:  func(v *sync.DataVersion) { v.RecordID = "" },
			wantErr: "collection and record id are required",
		},
		{
			name:    "missing session",
			mutate:  func(v *sync.DataVersion) { v.SessionID = "" },
			wantErr: "session id is required",
		},
		{
			name:    "unknown outcome",
			mutate:  func(v *sync.DataVersion) { v.Outcome = "skipped" },
			wantErr: "unknown outcome 'skipped'",
		},
		{
			name:    "unknown kind",
			mutate:  func(v *sync.DataVersion) { v.ChangeKind = "merge" },
			wantErr: "unknown change kind 'merge'",
		},
		{
			name: "store failure",
			setup: func(m *mocks.MockVersionStore) {
				m.EXPECT().AppendVersions(gomock.Any(), gomock.Any()).Return(nil, errors.New("locked"))
			},
			wantErr: "failed to record versions: locked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			versions := mocks.NewMockVersionStore(ctrl)
			if tt.setup != nil {
				tt.setup(versions)
			}

			v := valid
			if tt.mutate != nil {
				tt.mutate(&v)
			}

			got, err := sync.NewRecorder(versions, func() time.Time { return now }).Record(context.Background(), v)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, 1, got[0].VersionNumber)
		})
	}
}

func TestRecorder_Empty(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	got, err := sync.NewRecorder(mocks.NewMockVersionStore(ctrl), nil).Record(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}
