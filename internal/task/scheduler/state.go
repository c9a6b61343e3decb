package scheduler

// State is the dispatcher's current phase.
type State int32

const (
	// StateIdle: nothing queued; blocked until an Add or Stop.
	StateIdle State = iota
	// StatePolling: entries queued, none due yet; sleeping until the earliest.
	StatePolling
	// StateDispatching: the earliest entry is due and is being handed off.
	StateDispatching
	// StateDraining: stopping, entries remain; sleeping until the earliest.
	StateDraining
	// StateTerminated: stopping and empty; the dispatcher has exited.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateDispatching:
		return "dispatching"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// nextState derives the dispatcher state from what it observes. due is only
// meaningful when the queue is not empty.
func nextState(stopping, empty, due bool) State {
	switch {
	case empty && stopping:
		return StateTerminated
	case empty:
		return StateIdle
	case due:
		return StateDispatching
	case stopping:
		return StateDraining
	default:
		return StatePolling
	}
}
