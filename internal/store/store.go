// Package store defines the collection-scoped contract of the local record
// store. The sync engine only writes local data through this interface.
package store

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go RecordStore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/connector-sync/internal/payload"
)

var (
	// ErrNotFound is returned when a record does not exist in the scope
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned by Insert when the id is taken
	ErrAlreadyExists = errors.New("record already exists")
)

// Scope restricts every store call to one collection of one org unit
type Scope struct {
	OrgUnit    string
	Collection string
}

// Validate checks that both scope fields are set
func (s Scope) Validate() error {
	if s.OrgUnit == "" {
		return fmt.Errorf("scope org unit is required")
	}
	if s.Collection == "" {
		return fmt.Errorf("scope collection is required")
	}
	return nil
}

// Record is one row of a local collection
type Record struct {
	ID        string
	Fields    *payload.Payload
	UpdatedAt time.Time
}

// Filter narrows List results
type Filter struct {
	// UpdatedSince keeps records with UpdatedAt at or after the instant. The
	// zero value disables the predicate.
	UpdatedSince time.Time

	// Limit caps the number of records, zero means no limit
	Limit int
}

// RecordStore is the collection-scoped CRUD interface of the local store
type RecordStore interface {
	// List returns records ordered by UpdatedAt then ID
	List(ctx context.Context, scope Scope, filter Filter) ([]Record, error)

	// Get returns ErrNotFound when the record does not exist
	Get(ctx context.Context, scope Scope, id string) (*Record, error)

	// Insert returns ErrAlreadyExists when the id is taken
	Insert(ctx context.Context, scope Scope, rec Record) error

	// Upsert replaces the record or creates it
	Upsert(ctx context.Context, scope Scope, rec Record) error

	// Delete returns ErrNotFound when the record does not exist
	Delete(ctx context.Context, scope Scope, id string) error
}

// ValidateRecord checks the fields every backend requires before a write
func ValidateRecord(scope Scope, rec Record) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if rec.UpdatedAt.IsZero() {
		return fmt.Errorf("record %s: updated_at is required", rec.ID)
	}
	return nil
}
