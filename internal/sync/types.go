package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/payload"
	"github.com/stacklok/connector-sync/internal/status"
)

var (
	// ErrSessionNotFound is returned when no session has the requested id
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionInProgress is returned when the connector already has an active session
	ErrSessionInProgress = errors.New("sync session already in progress")
)

// Kind is the change an operation carries
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Operation is the canonical unit of work produced from one candidate.
// It is applied to Origin.Opposite() and nowhere else.
type Operation struct {
	ID              string           `json:"id"`
	Kind            Kind             `json:"kind"`
	Collection      string           `json:"collection"`
	RecordID        string           `json:"record_id"`
	Provisional     bool             `json:"provisional,omitempty"`
	Payload         *payload.Payload `json:"payload"`
	OriginTimestamp time.Time        `json:"origin_timestamp"`
	Origin          connector.Side   `json:"origin"`
}

// Target returns the side the operation is applied to
func (o *Operation) Target() connector.Side {
	return o.Origin.Opposite()
}

// RecordKey identifies a record across both sides
type RecordKey struct {
	Collection string
	RecordID   string
}

// Key returns the record key of the operation
func (o *Operation) Key() RecordKey {
	return RecordKey{Collection: o.Collection, RecordID: o.RecordID}
}

// ConflictKind classifies a conflict
type ConflictKind string

const (
	// ConflictKindTimestamp means the target changed after the origin
	ConflictKindTimestamp ConflictKind = "timestamp_conflict"

	// ConflictKindDeleteUpdate means a delete targets a record updated after it
	ConflictKindDeleteUpdate ConflictKind = "delete_update_conflict"
)

// Conflict holds both competing versions of a record for manual resolution
type Conflict struct {
	ID              string           `json:"id"`
	SessionID       string           `json:"session_id"`
	OrgUnit         string           `json:"org_unit"`
	Collection      string           `json:"collection"`
	RecordID        string           `json:"record_id"`
	Kind            ConflictKind     `json:"kind"`
	Origin          connector.Side   `json:"origin"`
	SourceSnapshot  *payload.Payload `json:"source_snapshot"`
	TargetSnapshot  *payload.Payload `json:"target_snapshot"`
	SourceTimestamp time.Time        `json:"source_timestamp"`
	TargetTimestamp time.Time        `json:"target_timestamp"`
	DetectedAt      time.Time        `json:"detected_at"`
}

// Outcome tells whether a recorded operation was applied or held
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeConflict Outcome = "conflict"
)

// DataVersion is an immutable snapshot of one processed operation.
// VersionNumber is assigned by the journal.
type DataVersion struct {
	OrgUnit       string           `json:"org_unit"`
	Collection    string           `json:"collection"`
	RecordID      string           `json:"record_id"`
	VersionNumber int              `json:"version_number"`
	Snapshot      *payload.Payload `json:"snapshot"`
	ChangeKind    Kind             `json:"change_kind"`
	Outcome       Outcome          `json:"outcome"`
	SessionID     string           `json:"session_id"`
	RecordedAt    time.Time        `json:"recorded_at"`
}

// Session is one run of the engine for one connector
type Session struct {
	ID                  string              `json:"id"`
	ConnectorID         string              `json:"connector_id"`
	OrgUnit             string              `json:"org_unit"`
	Direction           connector.Direction `json:"direction"`
	Phase               status.Phase        `json:"status"`
	OperationsProcessed int                 `json:"operations_processed"`
	ConflictsDetected   int                 `json:"conflicts_detected"`
	OperationsFailed    int                 `json:"operations_failed"`
	Errors              []string            `json:"errors"`
	StartedAt           time.Time           `json:"started_at"`
	EndedAt             *time.Time          `json:"ended_at,omitempty"`
}

// Result is the aggregate outcome returned to whoever triggered a session
type Result struct {
	SessionID           string       `json:"session_id"`
	Success             bool         `json:"success"`
	Status              status.Phase `json:"status"`
	OperationsProcessed int          `json:"operations_processed"`
	ConflictsDetected   int          `json:"conflicts_detected"`
	OperationsFailed    int          `json:"operations_failed"`
	Errors              []string     `json:"errors"`
}

// NewResult summarizes a finished session. Success requires the completed
// phase and no collected errors.
func NewResult(s *Session) *Result {
	errs := make([]string, len(s.Errors))
	copy(errs, s.Errors)
	return &Result{
		SessionID:           s.ID,
		Success:             s.Phase == status.PhaseCompleted && len(errs) == 0,
		Status:              s.Phase,
		OperationsProcessed: s.OperationsProcessed,
		ConflictsDetected:   s.ConflictsDetected,
		OperationsFailed:    s.OperationsFailed,
		Errors:              errs,
	}
}

// Request selects the connector a session runs for. An empty Direction uses
// the connector's configured direction.
type Request struct {
	ConnectorName string
	OrgUnit       string
	Direction     connector.Direction
}

// ConfigError is a configuration-class failure that fails the session before
// any operation is attempted.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
