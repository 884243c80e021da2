// Package fsm models the agent connection lifecycle.
package fsm

import "fmt"

type State string

type Event string

const (
	StateListening State = "listening"
	StateServing   State = "serving"
	StateClosing   State = "closing"
	StateFailing   State = "failing"
	StateStopped   State = "stopped"
	StateExited    State = "exited"
)

const (
	EventAccept   Event = "accept"
	EventHangup   Event = "hangup"
	EventFail     Event = "fail"
	EventClosed   Event = "closed"
	EventShutdown Event = "shutdown"
)

// Transition returns the state reached from current on event.
//
//	listening --accept--> serving --hangup--> closing --closed--> listening
//	serving --fail--> failing --closed--> exited
//	listening|serving|closing --shutdown--> stopped
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateListening:
		switch event {
		case EventAccept:
			return StateServing, nil
		case EventShutdown:
			return StateStopped, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateServing:
		switch event {
		case EventHangup:
			return StateClosing, nil
		case EventFail:
			return StateFailing, nil
		case EventShutdown:
			return StateStopped, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateClosing:
		switch event {
		case EventClosed:
			return StateListening, nil
		case EventShutdown:
			return StateStopped, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFailing:
		switch event {
		case EventClosed:
			return StateExited, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStopped, StateExited:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Terminal reports whether s ends the accept loop.
func Terminal(s State) bool {
	return s == StateStopped || s == StateExited
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
