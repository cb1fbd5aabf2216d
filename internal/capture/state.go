package capture

import (
	"errors"
	"fmt"

	"screencap/internal/domain"
)

// ErrInvalidState is returned when an operation is not permitted from the
// current session state.
var ErrInvalidState = errors.New("invalid session state")

// State is the session lifecycle position.
type State = domain.SessionState

// Event drives the session state machine.
type Event string

const (
	EventStart          Event = "start"
	EventAcquired       Event = "acquired"
	EventAcquireFailed  Event = "acquire_failed"
	EventCancel         Event = "cancel"
	EventPause          Event = "pause"
	EventResume         Event = "resume"
	EventStop           Event = "stop"
	EventFail           Event = "fail"
	EventFinalized      Event = "finalized"
	EventFinalizeFailed Event = "finalize_failed"
)

// TransitionError reports an event the current state does not accept.
type TransitionError struct {
	From  State
	Event Event
}

// Error formats the rejected transition.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s while %s", ErrInvalidState, e.Event, e.From)
}

// Unwrap lets callers match ErrInvalidState.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidState
}

// Next returns the state reached by applying ev to from.
func Next(from State, ev Event) (State, error) {
	switch from {
	case domain.SessionIdle, domain.SessionFailed:
		if ev == EventStart {
			return domain.SessionAcquiring, nil
		}
	case domain.SessionAcquiring:
		switch ev {
		case EventAcquired:
			return domain.SessionRecording, nil
		case EventAcquireFailed:
			return domain.SessionFailed, nil
		case EventCancel:
			return domain.SessionIdle, nil
		}
	case domain.SessionRecording:
		switch ev {
		case EventPause:
			return domain.SessionPaused, nil
		case EventStop:
			return domain.SessionStopping, nil
		case EventFail:
			return domain.SessionFailed, nil
		}
	case domain.SessionPaused:
		switch ev {
		case EventResume:
			return domain.SessionRecording, nil
		case EventStop:
			return domain.SessionStopping, nil
		case EventFail:
			return domain.SessionFailed, nil
		}
	case domain.SessionStopping:
		switch ev {
		case EventFinalized:
			return domain.SessionIdle, nil
		case EventFinalizeFailed:
			return domain.SessionFailed, nil
		}
	}
	return from, &TransitionError{From: from, Event: ev}
}

// Active reports whether a state owns device handles.
func Active(state State) bool {
	switch state {
	case domain.SessionAcquiring, domain.SessionRecording, domain.SessionPaused, domain.SessionStopping:
		return true
	default:
		return false
	}
}
