package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle         State = "idle"
	StateCapturing    State = "capturing"
	StateTranscribing State = "transcribing"
	StateDispatching  State = "dispatching"
	StateStopped      State = "stopped"
	StateError        State = "error"
)

const (
	EventDetect     Event = "detect"
	EventEndpoint   Event = "endpoint"
	EventTranscribe Event = "transcribed"
	EventDispatched Event = "dispatched"
	EventResume     Event = "resume"
	EventStop       Event = "stop"
	EventFail       Event = "fail"
	EventReset      Event = "reset"
)

func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		return StateError, nil
	}
	// The stop flag is polled once per frame in every state, so stop is
	// legal everywhere and terminal.
	if event == EventStop {
		return StateStopped, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventDetect:
			return StateCapturing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCapturing:
		switch event {
		case EventEndpoint:
			return StateTranscribing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateTranscribing:
		switch event {
		case EventTranscribe:
			return StateDispatching, nil
		case EventResume:
			// Empty buffer or blank transcript skips dispatching entirely.
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateDispatching:
		switch event {
		case EventDispatched:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateError:
		switch event {
		case EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStopped:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
