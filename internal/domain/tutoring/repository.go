package tutoring

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/techbridge/service-tutoring/internal/domain/member"
	"github.com/techbridge/service-tutoring/internal/platform/paging"
)

// Side is the viewer's side of the bookings being listed.
type Side string

const (
	SideRequester Side = "requester"
	SideReceiver  Side = "receiver"
)

// ListQuery selects one page of a member's sent or received bookings.
type ListQuery struct {
	Side     Side
	MemberID uuid.UUID
	Status   *Status
	Page     paging.Request
}

// Counterpart is the other party of a booking as seen by the viewer,
// with the role-specific profile fields the viewer is shown.
type Counterpart struct {
	MemberID        uuid.UUID
	Name            string
	ProfileRole     member.Role
	InterestedField string
	JobTitle        string
}

// View is a booking hydrated with its counterpart.
type View struct {
	Tutoring    *Tutoring
	Counterpart Counterpart
}

// ConflictChecker answers whether a party already holds an active booking
// overlapping a candidate window.
type ConflictChecker interface {
	// HasActiveOverlap reports whether partyID, as requester or receiver, has
	// an ACCEPTED or IN_PROGRESS booking with start < end' and end > start'.
	HasActiveOverlap(ctx context.Context, partyID uuid.UUID, start, end time.Time) (bool, error)
}

// Repository defines the persistence contract for tutoring aggregates.
type Repository interface {
	ConflictChecker

	// FindByID retrieves a booking, or a NotFound error.
	FindByID(ctx context.Context, id uuid.UUID) (*Tutoring, error)

	// Save persists a new booking.
	Save(ctx context.Context, t *Tutoring) error

	// Update persists a status change only if the stored version is
	// t.Version()-1; otherwise it returns a Conflict error.
	Update(ctx context.Context, t *Tutoring) error

	// FindPageIDs is phase one of a listing: IDs ordered by start time
	// descending plus the total count. It joins no profile data.
	FindPageIDs(ctx context.Context, q ListQuery) ([]uuid.UUID, int64, error)

	// FindViewsByIDs is phase two: the bookings with the given IDs joined
	// with the counterpart on the other side of viewerSide and that
	// counterpart's profileRole profile. Order is unspecified; bookings whose
	// counterpart lacks that profile are omitted.
	FindViewsByIDs(ctx context.Context, viewerSide Side, profileRole member.Role, ids []uuid.UUID) ([]View, error)

	// CountByStatusForMember counts a member's bookings on either side by status.
	CountByStatusForMember(ctx context.Context, memberID uuid.UUID) (map[Status]int64, error)

	// WithPartyLocks runs fn inside one transaction that holds an exclusive
	// lock per party ID for its whole duration. fn receives a Repository
	// bound to that transaction.
	WithPartyLocks(ctx context.Context, partyIDs []uuid.UUID, fn func(tx Repository) error) error
}

// Sweeper applies time-driven transitions in bulk.
type Sweeper interface {
	// ApplySweepRule moves every booking matching rule at now to rule.To in a
	// single conditional statement and returns the number of rows changed.
	ApplySweepRule(ctx context.Context, rule SweepRule, now time.Time) (int64, error)
}
