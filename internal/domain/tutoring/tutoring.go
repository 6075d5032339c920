package tutoring

import (
	"time"

	"github.com/google/uuid"

	"github.com/techbridge/service-tutoring/internal/platform/apperr"
)

// Tutoring is the aggregate root for a one-on-one tutoring booking between
// a requester and a receiver.
type Tutoring struct {
	id          uuid.UUID
	requesterID uuid.UUID
	receiverID  uuid.UUID
	startTime   time.Time
	endTime     time.Time
	location    string
	status      Status

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// ValidateRequest checks the parts of a new request that need no storage:
// no self-booking, start strictly before end, and neither bound before now.
func ValidateRequest(requesterID, receiverID uuid.UUID, start, end, now time.Time) error {
	if requesterID == receiverID {
		return apperr.NewInvalidRequestError("cannot request a tutoring from yourself")
	}
	if !start.Before(end) {
		return apperr.NewInvalidTimeRangeError("start time must be before end time")
	}
	if start.Before(now) || end.Before(now) {
		return apperr.NewInvalidTimeRangeError("tutoring time must not be in the past")
	}
	return nil
}

// NewTutoring creates a booking in status CREATED. Times are kept in UTC at
// the microsecond precision PostgreSQL stores.
func NewTutoring(requesterID, receiverID uuid.UUID, start, end time.Time, location string, now time.Time) (*Tutoring, error) {
	if requesterID == uuid.Nil || receiverID == uuid.Nil {
		return nil, apperr.NewValidationError("requester and receiver are required")
	}

	start, end, now = storedTime(start), storedTime(end), storedTime(now)
	if err := ValidateRequest(requesterID, receiverID, start, end, now); err != nil {
		return nil, err
	}

	return &Tutoring{
		id:          uuid.New(),
		requesterID: requesterID,
		receiverID:  receiverID,
		startTime:   start,
		endTime:     end,
		location:    location,
		status:      StatusCreated,
		version:     1,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// Reconstruct rebuilds a Tutoring from persistence data (no validation).
func Reconstruct(
	id, requesterID, receiverID uuid.UUID,
	startTime, endTime time.Time,
	location string,
	status Status,
	version int64,
	createdAt, updatedAt time.Time,
) *Tutoring {
	return &Tutoring{
		id:          id,
		requesterID: requesterID,
		receiverID:  receiverID,
		startTime:   startTime,
		endTime:     endTime,
		location:    location,
		status:      status,
		version:     version,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

func (t *Tutoring) ID() uuid.UUID          { return t.id }
func (t *Tutoring) RequesterID() uuid.UUID { return t.requesterID }
func (t *Tutoring) ReceiverID() uuid.UUID  { return t.receiverID }
func (t *Tutoring) StartTime() time.Time   { return t.startTime }
func (t *Tutoring) EndTime() time.Time     { return t.endTime }
func (t *Tutoring) Location() string       { return t.location }
func (t *Tutoring) Status() Status         { return t.status }
func (t *Tutoring) Version() int64         { return t.version }
func (t *Tutoring) CreatedAt() time.Time   { return t.createdAt }
func (t *Tutoring) UpdatedAt() time.Time   { return t.updatedAt }

// ActorFor classifies memberID relative to this booking.
func (t *Tutoring) ActorFor(memberID uuid.UUID) Actor {
	switch memberID {
	case t.receiverID:
		return ActorReceiver
	case t.requesterID:
		return ActorRequester
	default:
		return ActorOutsider
	}
}

// Involves reports whether memberID is one of the two parties.
func (t *Tutoring) Involves(memberID uuid.UUID) bool {
	return memberID == t.requesterID || memberID == t.receiverID
}

// Apply moves the booking along the edge for ev. The version is left
// untouched; callers bump it with IncrementVersion before persisting.
func (t *Tutoring) Apply(ev Event, now time.Time) error {
	to, err := Transition(t.status, ev)
	if err != nil {
		return err
	}
	t.status = to
	t.updatedAt = storedTime(now)
	return nil
}

// IncrementVersion bumps the version for optimistic locking.
func (t *Tutoring) IncrementVersion() {
	t.version++
}

// Overlaps reports whether the half-open windows [s1,e1) and [s2,e2)
// intersect. Touching endpoints do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
