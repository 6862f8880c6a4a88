package sync

//go:generate mockgen -destination=mocks/mock_journal.go -package=mocks -source=journal.go SessionStore,VersionStore,ConflictStore,Journal

import (
	"context"
)

// SessionStore persists session lifecycle
type SessionStore interface {
	// CreateSession stores a new active session
	CreateSession(ctx context.Context, s *Session) error

	// FinishSession moves a stored active session into the terminal phase of s
	// and stores its counters, errors, direction and end time. It fails with
	// status.ErrInvalidTransition when the stored session is not active.
	FinishSession(ctx context.Context, s *Session) error

	// GetSession returns ErrSessionNotFound when id is unknown
	GetSession(ctx context.Context, id string) (*Session, error)

	// LastSuccessfulSession returns the most recently started completed
	// session without errors, or ErrSessionNotFound.
	LastSuccessfulSession(ctx context.Context, orgUnit, connectorName string) (*Session, error)

	// ListSessions returns sessions, most recent first
	ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error)
}

// SessionFilter narrows ListSessions. Empty fields match everything.
type SessionFilter struct {
	OrgUnit   string
	Connector string
	Limit     int
}

// VersionStore persists the append-only version history
type VersionStore interface {
	// AppendVersions assigns version numbers and stores the versions
	// atomically. Numbers continue from the highest stored version of each
	// (org unit, collection, record id) and are consecutive within the call.
	AppendVersions(ctx context.Context, versions []DataVersion) ([]DataVersion, error)

	// ListVersions returns the history of one record, oldest first
	ListVersions(ctx context.Context, orgUnit, collection, recordID string) ([]DataVersion, error)
}

// ConflictStore persists conflicts held for manual resolution
type ConflictStore interface {
	SaveConflict(ctx context.Context, c *Conflict) error

	// ListConflicts returns conflicts, most recently detected first
	ListConflicts(ctx context.Context, filter ConflictFilter) ([]*Conflict, error)
}

// ConflictFilter narrows ListConflicts. Empty fields match everything.
type ConflictFilter struct {
	OrgUnit    string
	Collection string
	RecordID   string
	SessionID  string
	Limit      int
}

// Journal is everything the engine persists besides the records themselves
type Journal interface {
	SessionStore
	VersionStore
	ConflictStore
}
