package sources

//go:generate mockgen -destination=mocks/mock_source.go -package=mocks -source=types.go Source,ChangeDetector

import (
	"context"
	"fmt"
	"time"

	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/payload"
)

// Candidate is one raw record that changed at or after the checkpoint
type Candidate struct {
	Origin     connector.Side
	Collection string
	Fields     *payload.Payload
	DetectedAt time.Time
}

// DetectionError attributes a failed fetch to one side and collection
type DetectionError struct {
	Side       connector.Side
	Collection string
	Err        error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("%s detection failed for collection '%s': %v", e.Side, e.Collection, e.Err)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

// Candidates is the output of one detection pass
type Candidates struct {
	Local  []Candidate
	Remote []Candidate
	Errors []*DetectionError
}

// Source reads the records of one collection on one side
type Source interface {
	// Side reports which side the source reads
	Side() connector.Side

	// Fetch returns the records of coll modified at or after since
	Fetch(ctx context.Context, conn *connector.Connector, coll *connector.Collection, since time.Time) ([]*payload.Payload, error)
}

// ChangeDetector produces the candidates of both sides of a connector
type ChangeDetector interface {
	// Detect only fails when ctx is done. Per-collection failures are
	// reported in Candidates.Errors.
	Detect(ctx context.Context, conn *connector.Connector, since time.Time) (*Candidates, error)
}
