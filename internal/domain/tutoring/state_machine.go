package tutoring

import (
	"fmt"
	"time"

	"github.com/techbridge/service-tutoring/internal/platform/apperr"
)

// Event is something that may move a tutoring to another status.
type Event string

const (
	EventAccept      Event = "accept"
	EventReject      Event = "reject"
	EventCancel      Event = "cancel"
	EventSweepStart  Event = "sweep-start"
	EventSweepEnd    Event = "sweep-end"
	EventSweepExpire Event = "sweep-expire"
)

// Actor is the relationship of whoever triggers an event to the booking.
type Actor string

const (
	ActorRequester Actor = "requester"
	ActorReceiver  Actor = "receiver"
	ActorSystem    Actor = "system"
	ActorOutsider  Actor = "outsider"
)

// transitions is the complete edge table. A status missing from the inner
// map for an event has no edge for it; terminal statuses have empty maps.
var transitions = map[Status]map[Event]Status{
	StatusCreated: {
		EventAccept:      StatusAccepted,
		EventReject:      StatusRejected,
		EventCancel:      StatusCanceled,
		EventSweepExpire: StatusCanceled,
	},
	StatusAccepted: {
		EventCancel:     StatusCanceled,
		EventSweepStart: StatusInProgress,
	},
	StatusInProgress: {
		EventSweepEnd: StatusCompleted,
	},
	StatusRejected:  {},
	StatusCompleted: {},
	StatusCanceled:  {},
}

var permissions = map[Event][]Actor{
	EventAccept:      {ActorReceiver},
	EventReject:      {ActorReceiver},
	EventCancel:      {ActorRequester, ActorReceiver},
	EventSweepStart:  {ActorSystem},
	EventSweepEnd:    {ActorSystem},
	EventSweepExpire: {ActorSystem},
}

// Transition returns the status reached by applying ev in status from.
// Accept and reject on an answered request fail with AlreadyProcessed; every
// other missing edge fails with InvalidState.
func Transition(from Status, ev Event) (Status, error) {
	edges, known := transitions[from]
	if !known {
		return "", apperr.NewValidationError(fmt.Sprintf("unknown tutoring status: %s", from))
	}

	switch ev {
	case EventAccept, EventReject:
		if !from.CanAcceptOrReject() {
			return "", apperr.NewAlreadyProcessedError(string(from))
		}
	case EventCancel:
		if !from.CanBeCanceled() {
			return "", apperr.NewInvalidStateError(string(from), string(StatusCanceled))
		}
	}

	if to, ok := edges[ev]; ok {
		return to, nil
	}

	switch ev {
	case EventAccept, EventReject:
		return "", apperr.NewAlreadyProcessedError(string(from))
	case EventCancel, EventSweepExpire:
		return "", apperr.NewInvalidStateError(string(from), string(StatusCanceled))
	case EventSweepStart:
		return "", apperr.NewInvalidStateError(string(from), string(StatusInProgress))
	case EventSweepEnd:
		return "", apperr.NewInvalidStateError(string(from), string(StatusCompleted))
	default:
		return "", apperr.NewValidationError(fmt.Sprintf("unknown tutoring event: %s", ev))
	}
}

// CanPerform reports whether actor may trigger ev.
func CanPerform(actor Actor, ev Event) bool {
	for _, a := range permissions[ev] {
		if a == actor {
			return true
		}
	}
	return false
}

// TimeBound names the booking timestamp a sweep rule compares against now.
type TimeBound string

const (
	BoundStart TimeBound = "start_time"
	BoundEnd   TimeBound = "end_time"
)

// SweepRule is one time-driven edge: every booking in From whose Bound is
// at or before now moves to To.
type SweepRule struct {
	Event Event
	From  Status
	To    Status
	Bound TimeBound
}

var sweepBounds = []struct {
	event Event
	bound TimeBound
}{
	{EventSweepStart, BoundStart},
	{EventSweepEnd, BoundEnd},
	{EventSweepExpire, BoundStart},
}

// SweepRules derives the scheduler's bulk rules from the edge table.
func SweepRules() []SweepRule {
	var rules []SweepRule
	for _, sb := range sweepBounds {
		for _, from := range AllStatuses() {
			if to, ok := transitions[from][sb.event]; ok {
				rules = append(rules, SweepRule{Event: sb.event, From: from, To: to, Bound: sb.bound})
			}
		}
	}
	return rules
}

// Due reports whether a booking in the rule's From status with the given
// window is due at now.
func (r SweepRule) Due(start, end, now time.Time) bool {
	bound := start
	if r.Bound == BoundEnd {
		bound = end
	}
	return !bound.After(now)
}
