package application

import (
	"time"

	"github.com/google/uuid"

	tutoringDomain "github.com/techbridge/service-tutoring/internal/domain/tutoring"
)

// RequestTutoringRequest holds the data needed to request a new tutoring.
type RequestTutoringRequest struct {
	RequesterID uuid.UUID `json:"requester_id" binding:"required"`
	ReceiverID  uuid.UUID `json:"receiver_id" binding:"required"`
	StartTime   time.Time `json:"start_time" binding:"required"`
	EndTime     time.Time `json:"end_time" binding:"required"`
	Location    string    `json:"location" binding:"max=255"`
}

// TutoringDTO is the response representation of a tutoring.
type TutoringDTO struct {
	ID          uuid.UUID `json:"id"`
	RequesterID uuid.UUID `json:"requester_id"`
	ReceiverID  uuid.UUID `json:"receiver_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Location    string    `json:"location,omitempty"`
	Status      string    `json:"status"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CounterpartProfileDTO carries the role-specific profile field shown for
// the counterpart: interested_field for students, job_title for tutors.
type CounterpartProfileDTO struct {
	Role            string `json:"role"`
	InterestedField string `json:"interested_field,omitempty"`
	JobTitle        string `json:"job_title,omitempty"`
}

// TutoringSummaryDTO is one row of a sent or received listing.
type TutoringSummaryDTO struct {
	TutoringID         uuid.UUID             `json:"tutoring_id"`
	CounterpartID      uuid.UUID             `json:"counterpart_id"`
	CounterpartName    string                `json:"counterpart_name"`
	CounterpartProfile CounterpartProfileDTO `json:"counterpart_profile"`
	StartTime          time.Time             `json:"start_time"`
	EndTime            time.Time             `json:"end_time"`
	Location           string                `json:"location,omitempty"`
	Status             string                `json:"status"`
}

// StatsDTO holds a member's tutoring counts.
type StatsDTO struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
}

func toTutoringDTO(t *tutoringDomain.Tutoring) TutoringDTO {
	return TutoringDTO{
		ID:          t.ID(),
		RequesterID: t.RequesterID(),
		ReceiverID:  t.ReceiverID(),
		StartTime:   t.StartTime(),
		EndTime:     t.EndTime(),
		Location:    t.Location(),
		Status:      string(t.Status()),
		Version:     t.Version(),
		CreatedAt:   t.CreatedAt(),
		UpdatedAt:   t.UpdatedAt(),
	}
}

func toSummaryDTO(v tutoringDomain.View) TutoringSummaryDTO {
	return TutoringSummaryDTO{
		TutoringID:      v.Tutoring.ID(),
		CounterpartID:   v.Counterpart.MemberID,
		CounterpartName: v.Counterpart.Name,
		CounterpartProfile: CounterpartProfileDTO{
			Role:            string(v.Counterpart.ProfileRole),
			InterestedField: v.Counterpart.InterestedField,
			JobTitle:        v.Counterpart.JobTitle,
		},
		StartTime: v.Tutoring.StartTime(),
		EndTime:   v.Tutoring.EndTime(),
		Location:  v.Tutoring.Location(),
		Status:    string(v.Tutoring.Status()),
	}
}
