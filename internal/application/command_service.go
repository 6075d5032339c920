package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/techbridge/service-tutoring/internal/domain/member"
	tutoringDomain "github.com/techbridge/service-tutoring/internal/domain/tutoring"
	"github.com/techbridge/service-tutoring/internal/events"
	"github.com/techbridge/service-tutoring/internal/platform/apperr"
	"github.com/techbridge/service-tutoring/internal/platform/clock"
)

// ConflictPolicy selects how RequestTutoring guards against double booking.
type ConflictPolicy string

const (
	// ConflictPolicyOptimistic checks for overlaps and inserts without holding
	// any lock. Two concurrent requests for the same slot can both succeed.
	ConflictPolicyOptimistic ConflictPolicy = "optimistic"
	// ConflictPolicySerialized checks and inserts while holding a lock on both
	// parties, and re-checks overlaps on accept.
	ConflictPolicySerialized ConflictPolicy = "serialized"
)

// ParseConflictPolicy converts a config value to a ConflictPolicy.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(s); p {
	case ConflictPolicyOptimistic, ConflictPolicySerialized:
		return p, nil
	case "":
		return ConflictPolicyOptimistic, nil
	default:
		return "", fmt.Errorf("invalid conflict policy: %s", s)
	}
}

// CommandService is the application service for every operation that writes
// a tutoring.
type CommandService struct {
	repo      tutoringDomain.Repository
	members   member.Directory
	publisher EventPublisher
	policy    ConflictPolicy
	clock     clock.Clock
	logger    *zap.Logger
}

// NewCommandService creates a new CommandService.
func NewCommandService(
	repo tutoringDomain.Repository,
	members member.Directory,
	publisher EventPublisher,
	policy ConflictPolicy,
	clk clock.Clock,
	logger *zap.Logger,
) *CommandService {
	if policy == "" {
		policy = ConflictPolicyOptimistic
	}
	return &CommandService{
		repo:      repo,
		members:   members,
		publisher: publisher,
		policy:    policy,
		clock:     clk,
		logger:    logger,
	}
}

// RequestTutoring stores a new request in status CREATED. Checks run in a
// fixed order and the first failure is returned.
func (s *CommandService) RequestTutoring(ctx context.Context, actingID uuid.UUID, req RequestTutoringRequest) (*TutoringDTO, error) {
	if actingID != req.RequesterID {
		return nil, apperr.NewUnauthorizedError("only the requester can request a tutoring")
	}

	exists, err := s.members.Exists(ctx, req.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("failed to check receiver: %w", err)
	}
	if !exists {
		return nil, apperr.NewNotFoundError("Member", req.ReceiverID.String())
	}

	now := s.clock.Now()
	t, err := tutoringDomain.NewTutoring(req.RequesterID, req.ReceiverID, req.StartTime, req.EndTime, req.Location, now)
	if err != nil {
		return nil, err
	}

	create := func(repo tutoringDomain.Repository) error {
		if err := ensureNoOverlap(ctx, repo, t); err != nil {
			return err
		}
		return repo.Save(ctx, t)
	}

	if s.policy == ConflictPolicySerialized {
		err = s.repo.WithPartyLocks(ctx, []uuid.UUID{t.RequesterID(), t.ReceiverID()}, create)
	} else {
		err = create(s.repo)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("tutoring requested",
		zap.String("tutoring_id", t.ID().String()),
		zap.String("requester_id", t.RequesterID().String()),
		zap.String("receiver_id", t.ReceiverID().String()),
	)

	s.publishEvent(ctx, events.TutoringRequested, t.ID().String(), events.TutoringRequestedEvent{
		TutoringID:  t.ID(),
		RequesterID: t.RequesterID(),
		ReceiverID:  t.ReceiverID(),
		StartTime:   t.StartTime(),
		EndTime:     t.EndTime(),
		Location:    t.Location(),
		OccurredAt:  now,
	})

	result := toTutoringDTO(t)
	return &result, nil
}

// AcceptTutoring accepts a pending request. Only the receiver may accept.
func (s *CommandService) AcceptTutoring(ctx context.Context, id, actingID uuid.UUID) (*TutoringDTO, error) {
	return s.changeStatus(ctx, id, actingID, tutoringDomain.EventAccept)
}

// RejectTutoring rejects a pending request. Only the receiver may reject.
func (s *CommandService) RejectTutoring(ctx context.Context, id, actingID uuid.UUID) (*TutoringDTO, error) {
	return s.changeStatus(ctx, id, actingID, tutoringDomain.EventReject)
}

// CancelTutoring cancels a CREATED or ACCEPTED tutoring. Either party may cancel.
func (s *CommandService) CancelTutoring(ctx context.Context, id, actingID uuid.UUID) (*TutoringDTO, error) {
	return s.changeStatus(ctx, id, actingID, tutoringDomain.EventCancel)
}

// GetTutoring returns one tutoring to either of its parties.
func (s *CommandService) GetTutoring(ctx context.Context, id, actingID uuid.UUID) (*TutoringDTO, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Involves(actingID) {
		return nil, apperr.NewUnauthorizedError("tutoring does not belong to this member")
	}
	result := toTutoringDTO(t)
	return &result, nil
}

// CountMine returns the member's tutoring counts per status, on either side.
func (s *CommandService) CountMine(ctx context.Context, memberID uuid.UUID) (*StatsDTO, error) {
	counts, err := s.repo.CountByStatusForMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tutoring stats: %w", err)
	}

	stats := &StatsDTO{ByStatus: make(map[string]int64, len(tutoringDomain.AllStatuses()))}
	for _, status := range tutoringDomain.AllStatuses() {
		stats.ByStatus[string(status)] = counts[status]
		stats.Total += counts[status]
	}
	return stats, nil
}

func (s *CommandService) changeStatus(ctx context.Context, id, actingID uuid.UUID, ev tutoringDomain.Event) (*TutoringDTO, error) {
	var (
		t    *tutoringDomain.Tutoring
		from tutoringDomain.Status
		err  error
	)

	if s.policy == ConflictPolicySerialized && ev == tutoringDomain.EventAccept {
		// The parties are needed to take the locks; the row is re-read under them.
		current, findErr := s.repo.FindByID(ctx, id)
		if findErr != nil {
			return nil, findErr
		}
		err = s.repo.WithPartyLocks(ctx, []uuid.UUID{current.RequesterID(), current.ReceiverID()}, func(tx tutoringDomain.Repository) error {
			var applyErr error
			t, from, applyErr = s.apply(ctx, tx, id, actingID, ev, true)
			return applyErr
		})
	} else {
		t, from, err = s.apply(ctx, s.repo, id, actingID, ev, false)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("tutoring status changed",
		zap.String("tutoring_id", t.ID().String()),
		zap.String("from", string(from)),
		zap.String("to", string(t.Status())),
		zap.String("actor_id", actingID.String()),
	)

	s.publishEvent(ctx, statusEventType(t.Status()), t.ID().String(), events.TutoringStatusChangedEvent{
		TutoringID:  t.ID(),
		RequesterID: t.RequesterID(),
		ReceiverID:  t.ReceiverID(),
		From:        string(from),
		To:          string(t.Status()),
		ActorID:     actingID,
		OccurredAt:  t.UpdatedAt(),
	})

	result := toTutoringDTO(t)
	return &result, nil
}

// apply loads the tutoring, authorizes the actor, moves it along the edge
// for ev and writes it conditionally on the version that was read.
func (s *CommandService) apply(
	ctx context.Context,
	repo tutoringDomain.Repository,
	id, actingID uuid.UUID,
	ev tutoringDomain.Event,
	recheckOverlap bool,
) (*tutoringDomain.Tutoring, tutoringDomain.Status, error) {
	t, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, "", err
	}

	if !tutoringDomain.CanPerform(t.ActorFor(actingID), ev) {
		return nil, "", apperr.NewUnauthorizedError(fmt.Sprintf("member is not allowed to %s this tutoring", ev))
	}

	from := t.Status()
	if err := t.Apply(ev, s.clock.Now()); err != nil {
		return nil, "", err
	}

	if recheckOverlap {
		if err := ensureNoOverlap(ctx, repo, t); err != nil {
			return nil, "", err
		}
	}

	t.IncrementVersion()
	if err := repo.Update(ctx, t); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, "", s.raceLost(ctx, repo, id, ev, err)
		}
		return nil, "", err
	}
	return t, from, nil
}

// raceLost turns a lost conditional write into the error the guard would
// return against the row's current status.
func (s *CommandService) raceLost(ctx context.Context, repo tutoringDomain.Repository, id uuid.UUID, ev tutoringDomain.Event, conflict error) error {
	current, err := repo.FindByID(ctx, id)
	if err != nil {
		return conflict
	}
	if _, guardErr := tutoringDomain.Transition(current.Status(), ev); guardErr != nil {
		s.logger.Info("tutoring changed concurrently",
			zap.String("tutoring_id", id.String()),
			zap.String("event", string(ev)),
			zap.String("status", string(current.Status())),
		)
		return guardErr
	}
	return conflict
}

func ensureNoOverlap(ctx context.Context, checker tutoringDomain.ConflictChecker, t *tutoringDomain.Tutoring) error {
	for _, party := range []uuid.UUID{t.RequesterID(), t.ReceiverID()} {
		overlap, err := checker.HasActiveOverlap(ctx, party, t.StartTime(), t.EndTime())
		if err != nil {
			return fmt.Errorf("failed to check conflicts: %w", err)
		}
		if overlap {
			return apperr.NewConflictExistsError(fmt.Sprintf("member %s already has a tutoring in this time range", party))
		}
	}
	return nil
}

func statusEventType(s tutoringDomain.Status) string {
	switch s {
	case tutoringDomain.StatusAccepted:
		return events.TutoringAccepted
	case tutoringDomain.StatusRejected:
		return events.TutoringRejected
	default:
		return events.TutoringCanceled
	}
}

func (s *CommandService) publishEvent(ctx context.Context, eventType, subject string, data interface{}) {
	publishEvent(ctx, s.publisher, s.logger, eventType, subject, data)
}
