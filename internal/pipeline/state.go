package pipeline

import (
	"fmt"

	"strmsync/internal/progress"
)

// State is a step of the run state machine.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateParsing
	StateFiltering
	StateSynchronizing
	StateCleanup
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateParsing:
		return "parsing"
	case StateFiltering:
		return "filtering"
	case StateSynchronizing:
		return "synchronizing"
	case StateCleanup:
		return "cleanup"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Phase returns the progress phase reported while in s.
func (s State) Phase() progress.Phase {
	switch s {
	case StateScanning:
		return progress.PhaseScanning
	case StateParsing:
		return progress.PhaseParsing
	case StateFiltering:
		return progress.PhaseFiltering
	case StateSynchronizing:
		return progress.PhaseSynchronizing
	case StateCleanup:
		return progress.PhaseCleanup
	default:
		return ""
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// next returns the state that follows s on success.
func (s State) next() State {
	switch s {
	case StateIdle:
		return StateScanning
	case StateScanning:
		return StateParsing
	case StateParsing:
		return StateFiltering
	case StateFiltering:
		return StateSynchronizing
	case StateSynchronizing:
		return StateCleanup
	case StateCleanup:
		return StateDone
	default:
		return s
	}
}

// canTransition allows the strictly sequential success path plus a move to
// Failed from any non-terminal state.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	return to == StateFailed || to == from.next()
}
