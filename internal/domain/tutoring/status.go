package tutoring

import "fmt"

// Status is the lifecycle state of a tutoring booking.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusAccepted   Status = "ACCEPTED"
	StatusRejected   Status = "REJECTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCanceled   Status = "CANCELED"
)

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusCreated,
		StatusAccepted,
		StatusRejected,
		StatusInProgress,
		StatusCompleted,
		StatusCanceled,
	}
}

// ActiveStatuses are the statuses that occupy a party's time slot and
// therefore count towards overlap conflicts.
func ActiveStatuses() []Status {
	var out []Status
	for _, s := range AllStatuses() {
		if s.IsActive() {
			out = append(out, s)
		}
	}
	return out
}

// IsValid returns true if the status is a recognized tutoring status.
func (s Status) IsValid() bool {
	_, exists := transitions[s]
	return exists
}

// IsActive returns true for ACCEPTED and IN_PROGRESS.
func (s Status) IsActive() bool {
	return s == StatusAccepted || s == StatusInProgress
}

// CanAcceptOrReject returns true while the request is still unanswered.
func (s Status) CanAcceptOrReject() bool {
	return s == StatusCreated
}

// CanBeCanceled returns true for CREATED and ACCEPTED. An ACCEPTED booking
// stays cancelable after its start time until the sweep promotes it.
func (s Status) CanBeCanceled() bool {
	return s == StatusCreated || s == StatusAccepted
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// ParseStatus converts a string to a Status, returning an error if invalid.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid tutoring status: %s", s)
	}
	return status, nil
}
