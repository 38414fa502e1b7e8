package workitem

import (
	"errors"
	"fmt"
)

// Event is a lifecycle trigger validated against the status graph.
type Event string

const (
	// EventEnqueue marks an item eligible for processing. A new comment on a
	// reviewed task or a new message on a settled chat re-enters through the
	// same event.
	EventEnqueue Event = "enqueue"
	// EventClaim moves a pending item into its agent pass.
	EventClaim Event = "claim"
	// EventResolve ends a pass with all agents exhausted (continue or
	// comment-only outcomes throughout).
	EventResolve Event = "resolve"
	// EventNeedsReview ends a pass because an agent asked for human attention.
	EventNeedsReview Event = "needs_review"
	// EventError ends a pass after a process failure or timeout.
	EventError Event = "error"
	// EventCancel force-terminates a pending or running pass.
	EventCancel Event = "cancel"
	// EventSkipToReview is the no-agents fast path taken at enqueue time.
	EventSkipToReview Event = "skip_to_review"
	// EventApprove is the explicit human sign-off on a reviewed task.
	EventApprove Event = "approve"
	// EventReopen explicitly re-opens a done task.
	EventReopen Event = "reopen"
)

// ErrRejected is returned for transitions outside the status graph. Callers
// treat a rejection as a logged no-op, never as a fatal error.
var ErrRejected = errors.New("transition rejected")

var taskTransitions = map[Status]map[Event]Status{
	StatusTodo: {
		EventEnqueue:      StatusTodo,
		EventClaim:        StatusInProgress,
		EventSkipToReview: StatusInReview,
		EventCancel:       StatusInReview,
	},
	StatusInProgress: {
		EventResolve:     StatusInReview,
		EventNeedsReview: StatusInReview,
		EventError:       StatusInReview,
		EventCancel:      StatusInReview,
	},
	StatusInReview: {
		EventEnqueue: StatusTodo,
		EventApprove: StatusDone,
	},
	StatusDone: {
		EventReopen: StatusTodo,
	},
}

var chatTransitions = map[Status]map[Event]Status{
	StatusIdle: {
		EventEnqueue: StatusQueued,
	},
	StatusQueued: {
		EventEnqueue:      StatusQueued,
		EventClaim:        StatusInProgress,
		EventSkipToReview: StatusCompleted,
		EventCancel:       StatusFailed,
	},
	StatusInProgress: {
		EventResolve:     StatusCompleted,
		EventNeedsReview: StatusCompleted,
		EventError:       StatusFailed,
		EventCancel:      StatusFailed,
	},
	StatusCompleted: {
		EventEnqueue: StatusQueued,
	},
	StatusFailed: {
		EventEnqueue: StatusQueued,
	},
}

// Transition validates a status change request and returns the resulting
// status. It is a pure function over the two status graphs; every status
// write in the engine funnels through it.
func Transition(kind Kind, current Status, event Event) (Status, error) {
	var table map[Status]map[Event]Status
	switch kind {
	case KindTask:
		table = taskTransitions
	case KindChat:
		table = chatTransitions
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrRejected, kind)
	}

	events, ok := table[current]
	if !ok {
		return "", fmt.Errorf("%w: %s has no status %q", ErrRejected, kind, current)
	}
	next, ok := events[event]
	if !ok {
		return "", fmt.Errorf("%w: %s %s does not accept %s", ErrRejected, kind, current, event)
	}
	return next, nil
}
