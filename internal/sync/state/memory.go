package state

import (
	"context"
	"fmt"
	"sort"
	gosync "sync"

	"github.com/stacklok/connector-sync/internal/status"
	"github.com/stacklok/connector-sync/internal/sync"
)

type versionKey struct {
	orgUnit    string
	collection string
	recordID   string
}

type memoryJournal struct {
	mu        gosync.RWMutex
	sessions  map[string]*sync.Session
	versions  map[versionKey][]sync.DataVersion
	conflicts []*sync.Conflict
}

// NewMemoryJournal creates a journal kept in process memory
func NewMemoryJournal() sync.Journal {
	return &memoryJournal{
		sessions: make(map[string]*sync.Session),
		versions: make(map[versionKey][]sync.DataVersion),
	}
}

func (j *memoryJournal) CreateSession(_ context.Context, s *sync.Session) error {
	if err := validateNewSession(s); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	j.sessions[s.ID] = cloneSession(s)
	return nil
}

func (j *memoryJournal) FinishSession(_ context.Context, s *sync.Session) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	stored, ok := j.sessions[s.ID]
	if !ok {
		return fmt.Errorf("%w: %s", sync.ErrSessionNotFound, s.ID)
	}
	if err := status.Transition(stored.Phase, s.Phase); err != nil {
		return err
	}

	finished := cloneSession(s)
	finished.StartedAt = stored.StartedAt
	j.sessions[s.ID] = finished
	return nil
}

func (j *memoryJournal) GetSession(_ context.Context, id string) (*sync.Session, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	s, ok := j.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sync.ErrSessionNotFound, id)
	}
	return cloneSession(s), nil
}

func (j *memoryJournal) LastSuccessfulSession(_ context.Context, orgUnit, connectorName string) (*sync.Session, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var last *sync.Session
	for _, s := range j.sessions {
		if s.OrgUnit != orgUnit || s.ConnectorID != connectorName {
			continue
		}
		if s.Phase != status.PhaseCompleted || len(s.Errors) > 0 {
			continue
		}
		if last == nil || s.StartedAt.After(last.StartedAt) {
			last = s
		}
	}
	if last == nil {
		return nil, fmt.Errorf("%w: no successful session for connector '%s' in org unit '%s'",
			sync.ErrSessionNotFound, connectorName, orgUnit)
	}
	return cloneSession(last), nil
}

func (j *memoryJournal) ListSessions(_ context.Context, filter sync.SessionFilter) ([]*sync.Session, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]*sync.Session, 0, len(j.sessions))
	for _, s := range j.sessions {
		if filter.OrgUnit != "" && s.OrgUnit != filter.OrgUnit {
			continue
		}
		if filter.Connector != "" && s.ConnectorID != filter.Connector {
			continue
		}
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].StartedAt.Equal(out[b].StartedAt) {
			return out[a].StartedAt.After(out[b].StartedAt)
		}
		return out[a].ID < out[b].ID
	})
	return limit(out, filter.Limit), nil
}

func (j *memoryJournal) AppendVersions(_ context.Context, versions []sync.DataVersion) ([]sync.DataVersion, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, v := range versions {
		if _, ok := j.sessions[v.SessionID]; !ok {
			return nil, fmt.Errorf("%w: %s", sync.ErrSessionNotFound, v.SessionID)
		}
	}

	next := make(map[versionKey]int)
	out := make([]sync.DataVersion, len(versions))
	for i, v := range versions {
		key := versionKey{orgUnit: v.OrgUnit, collection: v.Collection, recordID: v.RecordID}
		n, ok := next[key]
		if !ok {
			n = len(j.versions[key]) + 1
		}
		next[key] = n + 1

		v.VersionNumber = n
		v.Snapshot = v.Snapshot.Clone()
		out[i] = v
	}
	for _, v := range out {
		key := versionKey{orgUnit: v.OrgUnit, collection: v.Collection, recordID: v.RecordID}
		j.versions[key] = append(j.versions[key], v)
	}
	return out, nil
}

func (j *memoryJournal) ListVersions(_ context.Context, orgUnit, collection, recordID string) ([]sync.DataVersion, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	stored := j.versions[versionKey{orgUnit: orgUnit, collection: collection, recordID: recordID}]
	out := make([]sync.DataVersion, len(stored))
	for i, v := range stored {
		v.Snapshot = v.Snapshot.Clone()
		out[i] = v
	}
	return out, nil
}

func (j *memoryJournal) SaveConflict(_ context.Context, c *sync.Conflict) error {
	if err := validateConflict(c); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.sessions[c.SessionID]; !ok {
		return fmt.Errorf("%w: %s", sync.ErrSessionNotFound, c.SessionID)
	}
	j.conflicts = append(j.conflicts, cloneConflict(c))
	return nil
}

func (j *memoryJournal) ListConflicts(_ context.Context, filter sync.ConflictFilter) ([]*sync.Conflict, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]*sync.Conflict, 0, len(j.conflicts))
	for _, c := range j.conflicts {
		if !matchConflict(c, filter) {
			continue
		}
		out = append(out, cloneConflict(c))
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].DetectedAt.After(out[b].DetectedAt)
	})
	return limit(out, filter.Limit), nil
}

func matchConflict(c *sync.Conflict, filter sync.ConflictFilter) bool {
	return (filter.OrgUnit == "" || c.OrgUnit == filter.OrgUnit) &&
		(filter.Collection == "" || c.Collection == filter.Collection) &&
		(filter.RecordID == "" || c.RecordID == filter.RecordID) &&
		(filter.SessionID == "" || c.SessionID == filter.SessionID)
}

func cloneSession(s *sync.Session) *sync.Session {
	c := *s
	c.Errors = append([]string{}, s.Errors...)
	if s.EndedAt != nil {
		endedAt := *s.EndedAt
		c.EndedAt = &endedAt
	}
	return &c
}

func cloneConflict(c *sync.Conflict) *sync.Conflict {
	out := *c
	out.SourceSnapshot = c.SourceSnapshot.Clone()
	out.TargetSnapshot = c.TargetSnapshot.Clone()
	return &out
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
