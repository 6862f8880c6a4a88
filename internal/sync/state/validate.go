package state

import (
	"fmt"

	"github.com/stacklok/connector-sync/internal/status"
	"github.com/stacklok/connector-sync/internal/sync"
)

func validateNewSession(s *sync.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if s.ConnectorID == "" || s.OrgUnit == "" {
		return fmt.Errorf("session %s: connector and org unit are required", s.ID)
	}
	if s.Phase != status.PhaseActive {
		return fmt.Errorf("session %s: new sessions must be %s, got %s", s.ID, status.PhaseActive, s.Phase)
	}
	if s.StartedAt.IsZero() {
		return fmt.Errorf("session %s: start time is required", s.ID)
	}
	return nil
}

func validateConflict(c *sync.Conflict) error {
	if c == nil || c.ID == "" || c.SessionID == "" {
		return fmt.Errorf("conflict id and session id are required")
	}
	if c.Collection == "" || c.RecordID == "" {
		return fmt.Errorf("conflict %s: collection and record id are required", c.ID)
	}
	return nil
}
