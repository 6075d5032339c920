package events

import (
	"time"

	"github.com/google/uuid"
)

// Topics.
const (
	TopicTutoringEvents = "tutoring.events"
	TopicMemberEvents   = "member.events"
)

// Event source of everything this service publishes.
const Source = "service-tutoring"

// Tutoring lifecycle event types.
const (
	TutoringRequested = "tutoring.requested"
	TutoringAccepted  = "tutoring.accepted"
	TutoringRejected  = "tutoring.rejected"
	TutoringCanceled  = "tutoring.canceled"
	TutoringSwept     = "tutoring.swept"
)

// Member event types consumed from the member service.
const (
	MemberUpdated     = "member.updated"
	MemberRoleChanged = "member.role_changed"
	MemberDeleted     = "member.deleted"
)

// TutoringRequestedEvent is published when a new request is stored.
type TutoringRequestedEvent struct {
	TutoringID  uuid.UUID `json:"tutoring_id"`
	RequesterID uuid.UUID `json:"requester_id"`
	ReceiverID  uuid.UUID `json:"receiver_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Location    string    `json:"location,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// TutoringStatusChangedEvent is published for accept, reject and cancel.
type TutoringStatusChangedEvent struct {
	TutoringID  uuid.UUID `json:"tutoring_id"`
	RequesterID uuid.UUID `json:"requester_id"`
	ReceiverID  uuid.UUID `json:"receiver_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	ActorID     uuid.UUID `json:"actor_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// TutoringSweptEvent summarizes one bulk rule of a scheduler tick.
type TutoringSweptEvent struct {
	Rule     string    `json:"rule"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Affected int64     `json:"affected"`
	SweptAt  time.Time `json:"swept_at"`
}

// MemberEvent is the payload of every member.events message this service reads.
type MemberEvent struct {
	MemberID   uuid.UUID `json:"member_id"`
	Role       string    `json:"role,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
