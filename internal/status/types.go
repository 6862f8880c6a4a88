// Package status defines the lifecycle phases of a sync session.
package status

import (
	"errors"
	"fmt"
)

// Phase is the lifecycle phase of a sync session.
type Phase string

const (
	// PhaseActive means the session is running
	PhaseActive Phase = "active"

	// PhaseCompleted means every detected operation was processed
	PhaseCompleted Phase = "completed"

	// PhaseFailed means the session could not be set up
	PhaseFailed Phase = "failed"

	// PhaseStopped means the session was cancelled before it finished
	PhaseStopped Phase = "stopped"
)

// ErrInvalidTransition is returned when a phase change is not allowed.
var ErrInvalidTransition = errors.New("invalid phase transition")

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseActive, PhaseCompleted, PhaseFailed, PhaseStopped:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave p.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseStopped
}

// Transition validates moving a session from one phase to another.
// Only active sessions move, and only into a terminal phase.
func Transition(from, to Phase) error {
	if from != PhaseActive || !to.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
