package sources

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/payload"
	"github.com/stacklok/connector-sync/internal/telemetry"
)

// Detector implements ChangeDetector over a local and a remote Source
type Detector struct {
	local   Source
	remote  Source
	metrics *telemetry.SyncMetrics
	now     func() time.Time
}

var _ ChangeDetector = (*Detector)(nil)

// Option is a functional option for configuring the detector
type Option func(*Detector)

// WithMetrics records detection failures
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(d *Detector) {
		d.metrics = m
	}
}

// WithClock sets the source of detection times
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// NewDetector creates a detector reading local and remote
func NewDetector(local, remote Source, opts ...Option) *Detector {
	d := &Detector{local: local, remote: remote, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type fetchJob struct {
	source Source
	coll   *connector.Collection
}

type fetchResult struct {
	records    []*payload.Payload
	detectedAt time.Time
	err        error
}

// Detect implements ChangeDetector. Local records are read when the direction
// propagates local changes. Remote records are read when it propagates remote
// changes, and also for conflict-tracked collections otherwise since they
// provide the remote state local operations are compared against.
func (d *Detector) Detect(ctx context.Context, conn *connector.Connector, since time.Time) (*Candidates, error) {
	ctxLogger := log.FromContext(ctx).WithValues("connector", conn.Name, "orgUnit", conn.OrgUnit)

	jobs := d.plan(conn)
	results := make([]fetchResult, len(jobs))

	var g errgroup.Group
	g.SetLimit(max(conn.Concurrency, 1))
	for i, job := range jobs {
		g.Go(func() error {
			records, err := job.source.Fetch(ctx, conn, job.coll, since)
			results[i] = fetchResult{records: records, detectedAt: d.now(), err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Candidates{}
	for i, job := range jobs {
		side := job.source.Side()
		res := results[i]
		if res.err != nil {
			ctxLogger.Info("Change detection failed, continuing without candidates from this side",
				"side", side, "collection", job.coll.Name, "error", res.err.Error())
			d.metrics.RecordDetectionError(ctx, conn.Name, string(side))
			out.Errors = append(out.Errors, &DetectionError{Side: side, Collection: job.coll.Name, Err: res.err})
			continue
		}

		candidates := make([]Candidate, 0, len(res.records))
		for _, rec := range res.records {
			candidates = append(candidates, Candidate{
				Origin:     side,
				Collection: job.coll.Name,
				Fields:     rec,
				DetectedAt: res.detectedAt,
			})
		}
		if side == connector.SideLocal {
			out.Local = append(out.Local, candidates...)
		} else {
			out.Remote = append(out.Remote, candidates...)
		}
	}

	ctxLogger.Info("Detected candidate changes",
		"since", since, "local", len(out.Local), "remote", len(out.Remote), "failures", len(out.Errors))

	return out, nil
}

func (d *Detector) plan(conn *connector.Connector) []fetchJob {
	jobs := make([]fetchJob, 0, 2*len(conn.Collections))
	for _, coll := range conn.Collections {
		if conn.Direction.Includes(connector.SideLocal) {
			jobs = append(jobs, fetchJob{source: d.local, coll: coll})
		}
		if conn.Direction.Includes(connector.SideRemote) || coll.ConflictTracking {
			jobs = append(jobs, fetchJob{source: d.remote, coll: coll})
		}
	}
	return jobs
}
