package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/connector-sync/internal/connector"
	connectormocks "github.com/stacklok/connector-sync/internal/connector/mocks"
	"github.com/stacklok/connector-sync/internal/status"
	"github.com/stacklok/connector-sync/internal/sync"
	syncmocks "github.com/stacklok/connector-sync/internal/sync/mocks"
)

var now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func TestIsDue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		last     *sync.Session
		expected bool
	}{
		{
			name:     "never ran",
			expected: true,
		},
		{
			name:     "interval elapsed",
			last:     &sync.Session{StartedAt: now.Add(-time.Hour)},
			expected: true,
		},
		{
			name:     "exactly one interval ago",
			last:     &sync.Session{StartedAt: now.Add(-30 * time.Minute)},
			expected: true,
		},
		{
			name:     "started recently",
			last:     &sync.Session{StartedAt: now.Add(-5 * time.Minute)},
			expected: false,
		},
		{
			name:     "recent failed session still counts",
			last:     &sync.Session{StartedAt: now.Add(-5 * time.Minute), Phase: status.PhaseFailed},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, isDue(30*time.Minute, tt.last, now))
		})
	}
}

func TestCalculatePollingInterval(t *testing.T) {
	t.Parallel()

	for range 50 {
		d := calculatePollingInterval()
		assert.GreaterOrEqual(t, d, basePollingInterval-pollingJitter)
		assert.Less(t, d, basePollingInterval+pollingJitter)
	}
}

func TestCoordinator_Stop_BeforeStart(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	coord := New(syncmocks.NewMockManager(ctrl), connectormocks.NewMockRegistry(ctrl), syncmocks.NewMockSessionStore(ctrl))

	assert.NoError(t, coord.Stop())
}

func TestRunDueConnectors(t *testing.T) {
	t.Parallel()

	periodic := connector.Ref{Name: "crm", OrgUnit: "acme"}
	onDemand := connector.Ref{Name: "erp", OrgUnit: "acme"}
	recent := connector.Ref{Name: "hr", OrgUnit: "acme"}
	broken := connector.Ref{Name: "legacy", OrgUnit: "acme"}

	ctrl := gomock.NewController(t)
	registry := connectormocks.NewMockRegistry(ctrl)
	sessions := syncmocks.NewMockSessionStore(ctrl)
	manager := syncmocks.NewMockManager(ctrl)

	registry.EXPECT().List(gomock.Any()).Return([]connector.Ref{periodic, onDemand, recent, broken}, nil)
	registry.EXPECT().Resolve(gomock.Any(), "acme", "crm").Return(&connector.Connector{Name: "crm", Interval: time.Hour}, nil)
	registry.EXPECT().Resolve(gomock.Any(), "acme", "erp").Return(&connector.Connector{Name: "erp"}, nil)
	registry.EXPECT().Resolve(gomock.Any(), "acme", "hr").Return(&connector.Connector{Name: "hr", Interval: time.Hour}, nil)
	registry.EXPECT().Resolve(gomock.Any(), "acme", "legacy").Return(nil, connector.ErrNotFound)

	sessions.EXPECT().
		ListSessions(gomock.Any(), sync.SessionFilter{OrgUnit: "acme", Connector: "crm", Limit: 1}).
		Return([]*sync.Session{{ID: "old", StartedAt: now.Add(-2 * time.Hour)}}, nil)
	sessions.EXPECT().
		ListSessions(gomock.Any(), sync.SessionFilter{OrgUnit: "acme", Connector: "hr", Limit: 1}).
		Return([]*sync.Session{{ID: "new", StartedAt: now.Add(-time.Minute)}}, nil)

	manager.EXPECT().
		Run(gomock.Any(), sync.Request{ConnectorName: "crm", OrgUnit: "acme"}).
		Return(&sync.Result{SessionID: "s1", Status: status.PhaseCompleted, Success: true}, nil)

	coord := New(manager, registry, sessions, WithClock(func() time.Time { return now })).(*defaultCoordinator)
	coord.runDueConnectors(context.Background())
}

func TestRunDueConnectors_ToleratesSessionErrors(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	registry := connectormocks.NewMockRegistry(ctrl)
	sessions := syncmocks.NewMockSessionStore(ctrl)
	manager := syncmocks.NewMockManager(ctrl)

	refs := []connector.Ref{{Name: "a", OrgUnit: "acme"}, {Name: "b", OrgUnit: "acme"}, {Name: "c", OrgUnit: "acme"}}
	registry.EXPECT().List(gomock.Any()).Return(refs, nil)
	for _, ref := range refs {
		registry.EXPECT().Resolve(gomock.Any(), ref.OrgUnit, ref.Name).Return(&connector.Connector{Name: ref.Name, Interval: time.Minute}, nil)
		sessions.EXPECT().ListSessions(gomock.Any(), gomock.Any()).Return(nil, nil)
	}

	manager.EXPECT().Run(gomock.Any(), sync.Request{ConnectorName: "a", OrgUnit: "acme"}).
		Return(nil, sync.ErrSessionInProgress)
	manager.EXPECT().Run(gomock.Any(), sync.Request{ConnectorName: "b", OrgUnit: "acme"}).
		Return(&sync.Result{Status: status.PhaseFailed}, &sync.ConfigError{Err: errors.New("bad")})
	manager.EXPECT().Run(gomock.Any(), sync.Request{ConnectorName: "c", OrgUnit: "acme"}).
		Return(&sync.Result{Status: status.PhaseCompleted}, nil)

	coord := New(manager, registry, sessions).(*defaultCoordinator)
	coord.runDueConnectors(context.Background())
}

func TestRunDueConnectors_ListFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	registry := connectormocks.NewMockRegistry(ctrl)
	registry.EXPECT().List(gomock.Any()).Return(nil, errors.New("apiserver unavailable"))

	coord := New(syncmocks.NewMockManager(ctrl), registry, syncmocks.NewMockSessionStore(ctrl)).(*defaultCoordinator)
	coord.runDueConnectors(context.Background())
}

func TestCoordinator_StartAndStop(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	registry := connectormocks.NewMockRegistry(ctrl)
	registry.EXPECT().List(gomock.Any()).Return(nil, nil).MinTimes(1)

	coord := New(syncmocks.NewMockManager(ctrl), registry, syncmocks.NewMockSessionStore(ctrl),
		WithPollingInterval(10*time.Millisecond))

	errCh := make(chan error, 1)
	go func() {
		errCh <- coord.Start(context.Background())
	}()

	require.Eventually(t, func() bool {
		c := coord.(*defaultCoordinator)
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.cancelFunc != nil
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, coord.Stop())
	require.NoError(t, <-errCh)
}
