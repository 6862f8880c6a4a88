package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	gosync "sync"
	"time"

	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/sync"
)

const (
	// basePollingInterval is the base interval at which the coordinator looks for due connectors
	basePollingInterval = time.Minute
	// pollingJitter is the maximum random offset (±10 seconds) applied to the polling interval
	pollingJitter = 10 * time.Second
)

// Coordinator schedules periodic sync sessions for all registered connectors
type Coordinator interface {
	// Start runs the scheduling loop.
	// Blocks until the context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop stops the loop and waits for the session in progress to finish
	Stop() error
}

type defaultCoordinator struct {
	manager  sync.Manager
	registry connector.Registry
	sessions sync.SessionStore
	now      func() time.Time
	interval func() time.Duration

	// Lifecycle management
	mu         gosync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithClock sets the time source used to decide which connectors are due
func WithClock(now func() time.Time) Option {
	return func(c *defaultCoordinator) {
		c.now = now
	}
}

// WithPollingInterval replaces the jittered polling interval
func WithPollingInterval(d time.Duration) Option {
	return func(c *defaultCoordinator) {
		c.interval = func() time.Duration { return d }
	}
}

// New creates a new coordinator with injected dependencies
func New(manager sync.Manager, registry connector.Registry, sessions sync.SessionStore, opts ...Option) Coordinator {
	c := &defaultCoordinator{
		manager:  manager,
		registry: registry,
		sessions: sessions,
		now:      time.Now,
		interval: calculatePollingInterval,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// calculatePollingInterval returns the base polling interval with a random jitter applied
// so that replicas do not poll in lockstep.
func calculatePollingInterval() time.Duration {
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	jitterOffset := time.Duration(rand.Int64N(int64(2*pollingJitter))) - pollingJitter
	return basePollingInterval + jitterOffset
}

// Start implements Coordinator
func (c *defaultCoordinator) Start(ctx context.Context) error {
	coordCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer func() {
		close(c.done)
		slog.Info("Sync coordinator shut down")
	}()

	pollingInterval := c.interval()
	slog.Info("Starting sync coordinator",
		"base_interval", basePollingInterval,
		"actual_interval", pollingInterval)

	ticker := time.NewTicker(pollingInterval)
	defer ticker.Stop()

	c.runDueConnectors(coordCtx)

	for {
		select {
		case <-ticker.C:
			c.runDueConnectors(coordCtx)
			ticker.Reset(c.interval())
		case <-coordCtx.Done():
			slog.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop implements Coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping sync coordinator")
		cancel()
		<-c.done
	}
	return nil
}

// runDueConnectors starts one session for every connector whose interval elapsed
func (c *defaultCoordinator) runDueConnectors(ctx context.Context) {
	refs, err := c.registry.List(ctx)
	if err != nil {
		slog.Error("Failed to list connectors", "error", err)
		return
	}

	for _, ref := range refs {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.registry.Resolve(ctx, ref.OrgUnit, ref.Name)
		if err != nil {
			slog.Error("Failed to resolve connector", "connector", ref.Name, "org_unit", ref.OrgUnit, "error", err)
			continue
		}
		if conn.Interval <= 0 {
			continue
		}

		last, err := c.lastSession(ctx, ref)
		if err != nil {
			slog.Error("Failed to read session history", "connector", ref.Name, "org_unit", ref.OrgUnit, "error", err)
			continue
		}
		if !isDue(conn.Interval, last, c.now()) {
			slog.Debug("Connector is not due", "connector", ref.Name, "org_unit", ref.OrgUnit)
			continue
		}

		c.runConnector(ctx, ref)
	}
}

func (c *defaultCoordinator) lastSession(ctx context.Context, ref connector.Ref) (*sync.Session, error) {
	sessions, err := c.sessions.ListSessions(ctx, sync.SessionFilter{
		OrgUnit:   ref.OrgUnit,
		Connector: ref.Name,
		Limit:     1,
	})
	if err != nil || len(sessions) == 0 {
		return nil, err
	}
	return sessions[0], nil
}

// isDue reports whether a connector with the given interval should run now.
// A connector that never ran is due immediately.
func isDue(interval time.Duration, last *sync.Session, now time.Time) bool {
	if last == nil {
		return true
	}
	return !now.Before(last.StartedAt.Add(interval))
}

func (c *defaultCoordinator) runConnector(ctx context.Context, ref connector.Ref) {
	slog.Info("Starting scheduled sync", "connector", ref.Name, "org_unit", ref.OrgUnit)

	result, err := c.manager.Run(ctx, sync.Request{ConnectorName: ref.Name, OrgUnit: ref.OrgUnit})
	switch {
	case errors.Is(err, sync.ErrSessionInProgress):
		slog.Info("Skipping scheduled sync, a session is already running",
			"connector", ref.Name, "org_unit", ref.OrgUnit)
		return
	case err != nil:
		slog.Error("Scheduled sync failed", "connector", ref.Name, "org_unit", ref.OrgUnit, "error", err)
		return
	}

	slog.Info("Scheduled sync finished",
		"connector", ref.Name,
		"org_unit", ref.OrgUnit,
		"session_id", result.SessionID,
		"status", result.Status,
		"processed", result.OperationsProcessed,
		"conflicts", result.ConflictsDetected,
		"failed", result.OperationsFailed)
}
