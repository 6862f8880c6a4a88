package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/stacklok/connector-sync/internal/config"
	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/httpclient"
	"github.com/stacklok/connector-sync/internal/otel"
	"github.com/stacklok/connector-sync/internal/sources"
	"github.com/stacklok/connector-sync/internal/status"
	"github.com/stacklok/connector-sync/internal/store"
	"github.com/stacklok/connector-sync/internal/sync/writer"
	"github.com/stacklok/connector-sync/internal/telemetry"
)

// errStopped is the cancellation cause used by Manager.Stop
var errStopped = errors.New("session stopped")

// Manager runs and tracks sync sessions
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/stacklok/connector-sync/internal/sync Manager
type Manager interface {
	// Run executes one session and blocks until it reaches a terminal phase.
	// Configuration failures return the failed result together with a
	// *ConfigError. ErrSessionInProgress is returned without a result.
	Run(ctx context.Context, req Request) (*Result, error)

	// Stop cancels a running session. Operations already started finish.
	Stop(ctx context.Context, sessionID string) error

	// Session returns the stored state of a session
	Session(ctx context.Context, sessionID string) (*Session, error)
}

// ClientFactory creates the HTTP client a session uses for one connector
type ClientFactory func(conn *connector.Connector) httpclient.Client

// DefaultClientFactory builds an authenticated client with the connector
// timeout and retry policy.
func DefaultClientFactory(conn *connector.Connector) httpclient.Client {
	return httpclient.NewDefaultClient(conn.Timeout,
		httpclient.WithCredentials(conn.Credentials),
		httpclient.WithRetryPolicy(conn.Retry),
	)
}

// DefaultManager implements Manager
type DefaultManager struct {
	registry connector.Registry
	store    store.RecordStore
	journal  Journal
	clients  ClientFactory
	metrics  *telemetry.SyncMetrics
	tracer   trace.Tracer
	now      func() time.Time
	lookback time.Duration

	normalizer *Normalizer
	applier    *Applier
	recorder   *Recorder

	mu      gosync.Mutex // Protects running and cancels
	running map[connector.Ref]string
	cancels map[string]context.CancelCauseFunc
}

var _ Manager = (*DefaultManager)(nil)

// Option is a functional option for configuring the manager
type Option func(*DefaultManager)

// WithClock sets the time source for sessions, versions and detection
func WithClock(now func() time.Time) Option {
	return func(m *DefaultManager) {
		m.now = now
	}
}

// WithLookback sets the checkpoint window used before the first successful session
func WithLookback(d time.Duration) Option {
	return func(m *DefaultManager) {
		m.lookback = d
	}
}

// WithClientFactory replaces DefaultClientFactory
func WithClientFactory(f ClientFactory) Option {
	return func(m *DefaultManager) {
		m.clients = f
	}
}

// WithMetrics records session and operation metrics
func WithMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(m *DefaultManager) {
		m.metrics = metrics
	}
}

// WithTracer enables session and operation spans
func WithTracer(tracer trace.Tracer) Option {
	return func(m *DefaultManager) {
		m.tracer = tracer
	}
}

// NewManager creates a manager. All three collaborators are required.
func NewManager(registry connector.Registry, records store.RecordStore, journal Journal, opts ...Option) *DefaultManager {
	m := &DefaultManager{
		registry: registry,
		store:    records,
		journal:  journal,
		clients:  DefaultClientFactory,
		now:      time.Now,
		lookback: config.DefaultLookback,
		applier:  NewApplier(),
		running:  make(map[connector.Ref]string),
		cancels:  make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.normalizer = NewNormalizer(m.now)
	m.recorder = NewRecorder(journal, m.now)
	return m
}

// session holds the mutable state of one run. Counters are only touched
// under mu.
type session struct {
	mu gosync.Mutex
	*Session
}

func (s *session) processed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OperationsProcessed++
}

func (s *session) conflict() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ConflictsDetected++
}

func (s *session) failed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OperationsFailed++
	s.Errors = append(s.Errors, err.Error())
}

func (s *session) addError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors = append(s.Errors, err.Error())
}

// Run implements Manager
func (m *DefaultManager) Run(ctx context.Context, req Request) (*Result, error) {
	ref := connector.Ref{Name: req.ConnectorName, OrgUnit: req.OrgUnit}
	sessionID := uuid.NewString()

	if err := m.reserve(ref, sessionID); err != nil {
		return nil, err
	}
	defer m.release(ref, sessionID)

	sess := &session{Session: &Session{
		ID:          sessionID,
		ConnectorID: req.ConnectorName,
		OrgUnit:     req.OrgUnit,
		Direction:   req.Direction,
		Phase:       status.PhaseActive,
		Errors:      []string{},
		StartedAt:   m.now().UTC(),
	}}
	if err := m.journal.CreateSession(ctx, sess.Session); err != nil {
		err = fmt.Errorf("failed to create session: %w", err)
		endedAt := m.now().UTC()
		sess.Phase = status.PhaseFailed
		sess.EndedAt = &endedAt
		sess.addError(err)
		return NewResult(sess.Session), err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	m.mu.Lock()
	m.cancels[sessionID] = cancel
	m.mu.Unlock()

	runCtx, span := otel.StartSpan(runCtx, m.tracer, "sync.session", trace.WithAttributes(
		otel.AttrSessionID.String(sessionID),
		otel.AttrConnector.String(req.ConnectorName),
		otel.AttrOrgUnit.String(req.OrgUnit),
	))
	defer span.End()

	ctxLogger := log.FromContext(runCtx).WithValues("sessionID", sessionID, "connector", req.ConnectorName, "orgUnit", req.OrgUnit)
	runCtx = log.IntoContext(runCtx, ctxLogger)
	ctxLogger.Info("Starting sync session")

	phase, runErr := m.run(runCtx, req, sess)
	if phase == status.PhaseStopped {
		ctxLogger.Info("Sync session stopped", "cause", context.Cause(runCtx).Error())
	}

	result, err := m.finish(context.WithoutCancel(ctx), sess, phase)
	if err != nil {
		otel.RecordError(span, err)
		ctxLogger.Error(err, "Failed to finalize sync session")
		return result, err
	}
	span.SetAttributes(
		attribute.String("sync.status", string(result.Status)),
		attribute.Int("sync.operations_processed", result.OperationsProcessed),
		attribute.Int("sync.conflicts_detected", result.ConflictsDetected),
		attribute.Int("sync.operations_failed", result.OperationsFailed),
	)
	if runErr != nil {
		otel.RecordError(span, runErr)
		ctxLogger.Error(runErr, "Sync session failed")
		return result, runErr
	}

	ctxLogger.Info("Sync session finished",
		"status", result.Status,
		"processed", result.OperationsProcessed,
		"conflicts", result.ConflictsDetected,
		"failed", result.OperationsFailed,
		"errors", len(result.Errors))
	return result, nil
}

func (m *DefaultManager) reserve(ref connector.Ref, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if active, ok := m.running[ref]; ok {
		return fmt.Errorf("%w: connector '%s' in org unit '%s' (session %s)",
			ErrSessionInProgress, ref.Name, ref.OrgUnit, active)
	}
	m.running[ref] = sessionID
	return nil
}

func (m *DefaultManager) release(ref connector.Ref, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, ref)
	delete(m.cancels, sessionID)
}

// run performs everything between session creation and finalization and
// returns the terminal phase. The error is non-nil only for configuration
// failures.
func (m *DefaultManager) run(ctx context.Context, req Request, sess *session) (status.Phase, error) {
	ctxLogger := log.FromContext(ctx)

	conn, err := m.registry.Resolve(ctx, req.OrgUnit, req.ConnectorName)
	if err != nil {
		if ctx.Err() != nil {
			return status.PhaseStopped, nil
		}
		return m.configFailure(sess, err)
	}

	direction := req.Direction
	if direction == "" {
		direction = conn.Direction
	}
	if err := conn.ValidateDirection(direction); err != nil {
		return m.configFailure(sess, err)
	}
	resolved := *conn
	resolved.Direction = direction
	sess.Direction = direction

	since, err := m.checkpoint(ctx, req)
	if err != nil {
		// Detect over the lookback window instead; the error keeps the
		// session from counting as a checkpoint for the next run.
		since = m.now().UTC().Add(-m.lookback)
		ctxLogger.Info("Checkpoint unavailable, using lookback window", "since", since, "error", err.Error())
		sess.addError(err)
	}

	client := m.clients(&resolved)
	detector := sources.NewDetector(
		sources.NewLocalSource(m.store),
		sources.NewAPISource(client),
		sources.WithMetrics(m.metrics),
		sources.WithClock(m.now),
	)
	candidates, err := detector.Detect(ctx, &resolved, since)
	if err != nil {
		return status.PhaseStopped, nil
	}
	for _, derr := range candidates.Errors {
		sess.addError(derr)
	}

	view := writer.NewRemoteView()
	ops := m.normalize(ctx, &resolved, candidates, view)
	ctxLogger.Info("Normalized operations", "operations", len(ops), "since", since, "direction", direction)

	targets := map[connector.Side]writer.Target{
		connector.SideLocal:  writer.NewLocalWriter(m.store, resolved.OrgUnit),
		connector.SideRemote: writer.NewRemoteWriter(client, &resolved, view),
	}

	var g errgroup.Group
	g.SetLimit(max(resolved.Concurrency, 1))
	for _, group := range groupOperations(ops) {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			for i := range group {
				if ctx.Err() != nil {
					return nil
				}
				// Started operations finish even when the session is stopped
				m.process(context.WithoutCancel(ctx), &resolved, sess, &group[i], targets[group[i].Target()])
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return status.PhaseStopped, nil
	}
	return status.PhaseCompleted, nil
}

func (*DefaultManager) configFailure(sess *session, err error) (status.Phase, error) {
	cfgErr := &ConfigError{Err: err}
	sess.addError(cfgErr)
	return status.PhaseFailed, cfgErr
}

// checkpoint returns the start of the last successful session, or now minus
// the lookback window when there is none.
func (m *DefaultManager) checkpoint(ctx context.Context, req Request) (time.Time, error) {
	last, err := m.journal.LastSuccessfulSession(ctx, req.OrgUnit, req.ConnectorName)
	if errors.Is(err, ErrSessionNotFound) {
		return m.now().UTC().Add(-m.lookback), nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return last.StartedAt, nil
}

// normalize converts candidates into operations for the sides the connector
// direction propagates. Every remote candidate is added to view.
func (m *DefaultManager) normalize(
	ctx context.Context,
	conn *connector.Connector,
	candidates *sources.Candidates,
	view *writer.RemoteView,
) []Operation {
	ops := make([]Operation, 0, len(candidates.Local)+len(candidates.Remote))

	if conn.Direction.Includes(connector.SideLocal) {
		for _, c := range candidates.Local {
			coll, ok := conn.Collection(c.Collection)
			if !ok {
				continue
			}
			ops = append(ops, m.normalizer.Normalize(ctx, coll, c))
		}
	}

	// Remote candidates are fetched for conflict tracking even when remote
	// changes do not propagate.
	for _, c := range candidates.Remote {
		coll, ok := conn.Collection(c.Collection)
		if !ok {
			continue
		}
		op := m.normalizer.Normalize(ctx, coll, c)
		if !op.Provisional && op.Kind != KindDelete {
			view.Put(op.Collection, op.RecordID, writer.Counterpart{Snapshot: op.Payload, UpdatedAt: op.OriginTimestamp})
		}
		if conn.Direction.Includes(connector.SideRemote) {
			ops = append(ops, op)
		}
	}

	return ops
}

// groupOperations groups operations by record, keeping first-seen group
// order. Each group is sorted by origin timestamp, local before remote on
// ties. Provisional records never share a group.
func groupOperations(ops []Operation) [][]Operation {
	index := make(map[RecordKey]int)
	var groups [][]Operation
	for _, op := range ops {
		if op.Provisional {
			groups = append(groups, []Operation{op})
			continue
		}
		i, ok := index[op.Key()]
		if !ok {
			i = len(groups)
			index[op.Key()] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], op)
	}

	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			if !group[i].OriginTimestamp.Equal(group[j].OriginTimestamp) {
				return group[i].OriginTimestamp.Before(group[j].OriginTimestamp)
			}
			return group[i].Origin == connector.SideLocal && group[j].Origin != connector.SideLocal
		})
	}
	return groups
}

// process runs conflict check, apply and version record for one operation.
// Every operation ends applied, conflicting or failed.
func (m *DefaultManager) process(
	ctx context.Context,
	conn *connector.Connector,
	sess *session,
	op *Operation,
	target writer.Target,
) {
	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.operation", trace.WithAttributes(
		otel.AttrCollection.String(op.Collection),
		otel.AttrRecordID.String(op.RecordID),
		otel.AttrOrigin.String(string(op.Origin)),
	))
	defer span.End()

	ctxLogger := log.FromContext(ctx).WithValues("collection", op.Collection, "recordID", op.RecordID, "origin", op.Origin)

	fail := func(err error) {
		err = fmt.Errorf("%s %s/%s: %w", op.Kind, op.Collection, op.RecordID, err)
		otel.RecordError(span, err)
		span.SetAttributes(otel.AttrOutcome.String(telemetry.OutcomeFailed))
		ctxLogger.Error(err, "Operation failed")
		m.metrics.RecordOperation(ctx, conn.Name, op.Collection, telemetry.OutcomeFailed)
		sess.failed(err)
	}

	coll, ok := conn.Collection(op.Collection)
	if !ok {
		fail(fmt.Errorf("unknown collection"))
		return
	}

	var counterpart writer.Counterpart
	if !op.Provisional {
		var err error
		counterpart, err = target.Lookup(ctx, coll, op.RecordID)
		if err != nil {
			fail(fmt.Errorf("failed to look up target: %w", err))
			return
		}
	}

	if coll.ConflictTracking {
		if c := DetectConflict(op, counterpart); c != nil {
			c.ID = uuid.NewString()
			c.SessionID = sess.ID
			c.OrgUnit = conn.OrgUnit
			c.DetectedAt = m.now().UTC()
			if err := m.journal.SaveConflict(ctx, c); err != nil {
				fail(fmt.Errorf("failed to save conflict: %w", err))
				return
			}
			sess.conflict()
			span.SetAttributes(otel.AttrOutcome.String(telemetry.OutcomeConflict))
			m.metrics.RecordOperation(ctx, conn.Name, op.Collection, telemetry.OutcomeConflict)
			ctxLogger.Info("Conflict detected, operation held",
				"kind", c.Kind, "sourceTimestamp", c.SourceTimestamp, "targetTimestamp", c.TargetTimestamp)
			m.recordVersion(ctx, conn, sess, op, OutcomeConflict)
			return
		}
	}

	kind, err := m.applier.Apply(ctx, coll, op, counterpart, target)
	if err != nil {
		fail(err)
		return
	}
	op.Kind = kind
	sess.processed()
	span.SetAttributes(otel.AttrOutcome.String(telemetry.OutcomeApplied))
	m.metrics.RecordOperation(ctx, conn.Name, op.Collection, telemetry.OutcomeApplied)
	m.recordVersion(ctx, conn, sess, op, OutcomeApplied)
}

// recordVersion snapshots the origin payload of op. A failure is reported in
// the session errors without changing the operation outcome.
func (m *DefaultManager) recordVersion(ctx context.Context, conn *connector.Connector, sess *session, op *Operation, outcome Outcome) {
	_, err := m.recorder.Record(ctx, DataVersion{
		OrgUnit:    conn.OrgUnit,
		Collection: op.Collection,
		RecordID:   op.RecordID,
		Snapshot:   op.Payload,
		ChangeKind: op.Kind,
		Outcome:    outcome,
		SessionID:  sess.ID,
	})
	if err != nil {
		err = fmt.Errorf("%s/%s: %w", op.Collection, op.RecordID, err)
		log.FromContext(ctx).Error(err, "Failed to record data version")
		sess.addError(err)
	}
}

// finish persists the terminal phase. Finalization ignores cancellation of the
// session context so a stopped session is still stored.
func (m *DefaultManager) finish(ctx context.Context, sess *session, phase status.Phase) (*Result, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := status.Transition(sess.Phase, phase); err != nil {
		return NewResult(sess.Session), err
	}
	endedAt := m.now().UTC()
	sess.Phase = phase
	sess.EndedAt = &endedAt

	if err := m.journal.FinishSession(ctx, sess.Session); err != nil {
		err = fmt.Errorf("failed to finalize session %s: %w", sess.ID, err)
		sess.Errors = append(sess.Errors, err.Error())
		return NewResult(sess.Session), err
	}
	m.metrics.RecordSessionDuration(ctx, sess.ConnectorID, endedAt.Sub(sess.StartedAt), string(phase))

	return NewResult(sess.Session), nil
}

// Stop implements Manager
func (m *DefaultManager) Stop(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	cancel, ok := m.cancels[sessionID]
	m.mu.Unlock()
	if ok {
		cancel(errStopped)
		return nil
	}

	s, err := m.journal.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Phase.IsTerminal() {
		return fmt.Errorf("%w: session %s is already %s", status.ErrInvalidTransition, sessionID, s.Phase)
	}
	// Active in the journal but not owned by this manager
	return fmt.Errorf("%w: session %s is not running in this process", ErrSessionNotFound, sessionID)
}

// Session implements Manager
func (m *DefaultManager) Session(ctx context.Context, sessionID string) (*Session, error) {
	return m.journal.GetSession(ctx, sessionID)
}
