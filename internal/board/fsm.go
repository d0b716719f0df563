// Package board is the scheduling board's interaction controller: it turns
// pointer and keyboard input into candidate placements, checks them against
// the availability oracle and commits them through the store.
package board

// State is the board-wide gesture state.
type State string

const (
	StateIdle       State = "idle"
	StateDragging   State = "dragging"
	StateResizing   State = "resizing"
	StateCommitting State = "committing"
	StateCancelled  State = "cancelled"
)

// GestureKind selects which boundaries a pointer gesture moves.
type GestureKind string

const (
	GestureMove        GestureKind = "move"
	GestureResizeStart GestureKind = "resize_start"
	GestureResizeEnd   GestureKind = "resize_end"
)

func (k GestureKind) state() State {
	if k == GestureMove {
		return StateDragging
	}
	return StateResizing
}

func (k GestureKind) valid() bool {
	switch k {
	case GestureMove, GestureResizeStart, GestureResizeEnd:
		return true
	}
	return false
}

// FSM holds the allowed gesture transitions.
type FSM struct {
	transitions map[State][]State
}

func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateIdle:       {StateDragging, StateResizing},
			StateDragging:   {StateCommitting, StateCancelled},
			StateResizing:   {StateCommitting, StateCancelled},
			StateCommitting: {StateIdle},
			StateCancelled:  {StateIdle},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to State) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
