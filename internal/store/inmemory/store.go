// Package inmemory provides a map-backed RecordStore for development and tests.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stacklok/connector-sync/internal/store"
)

// Store implements store.RecordStore in memory
type Store struct {
	mu      sync.RWMutex // Protects records
	records map[store.Scope]map[string]store.Record
}

var _ store.RecordStore = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{records: make(map[store.Scope]map[string]store.Record)}
}

// List implements store.RecordStore
func (s *Store) List(_ context.Context, scope store.Scope, filter store.Filter) ([]store.Record, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Record, 0, len(s.records[scope]))
	for _, rec := range s.records[scope] {
		if !filter.UpdatedSince.IsZero() && rec.UpdatedAt.Before(filter.UpdatedSince) {
			continue
		}
		out = append(out, clone(rec))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Get implements store.RecordStore
func (s *Store) Get(_ context.Context, scope store.Scope, id string) (*store.Record, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[scope][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", store.ErrNotFound, scope.Collection, id)
	}
	c := clone(rec)
	return &c, nil
}

// Insert implements store.RecordStore
func (s *Store) Insert(_ context.Context, scope store.Scope, rec store.Record) error {
	if err := store.ValidateRecord(scope, rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[scope][rec.ID]; ok {
		return fmt.Errorf("%w: %s/%s", store.ErrAlreadyExists, scope.Collection, rec.ID)
	}
	s.putLocked(scope, rec)
	return nil
}

// Upsert implements store.RecordStore
func (s *Store) Upsert(_ context.Context, scope store.Scope, rec store.Record) error {
	if err := store.ValidateRecord(scope, rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.putLocked(scope, rec)
	return nil
}

// Delete implements store.RecordStore
func (s *Store) Delete(_ context.Context, scope store.Scope, id string) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[scope][id]; !ok {
		return fmt.Errorf("%w: %s/%s", store.ErrNotFound, scope.Collection, id)
	}
	delete(s.records[scope], id)
	return nil
}

// putLocked stores a copy of rec. Caller must hold s.mu write lock.
func (s *Store) putLocked(scope store.Scope, rec store.Record) {
	coll, ok := s.records[scope]
	if !ok {
		coll = make(map[string]store.Record)
		s.records[scope] = coll
	}
	coll[rec.ID] = clone(rec)
}

func clone(rec store.Record) store.Record {
	rec.Fields = rec.Fields.Clone()
	return rec
}
