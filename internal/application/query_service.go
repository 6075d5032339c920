package application

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/techbridge/service-tutoring/internal/domain/member"
	tutoringDomain "github.com/techbridge/service-tutoring/internal/domain/tutoring"
	"github.com/techbridge/service-tutoring/internal/platform/paging"
)

// QueryService serves the sent and received listings.
type QueryService struct {
	repo    tutoringDomain.Repository
	members member.Directory
	logger  *zap.Logger
}

// NewQueryService creates a new QueryService.
func NewQueryService(repo tutoringDomain.Repository, members member.Directory, logger *zap.Logger) *QueryService {
	return &QueryService{
		repo:    repo,
		members: members,
		logger:  logger,
	}
}

// ListSent returns one page of the tutorings the member requested.
func (s *QueryService) ListSent(ctx context.Context, memberID uuid.UUID, status *tutoringDomain.Status, req paging.Request) (*paging.Page[TutoringSummaryDTO], error) {
	return s.list(ctx, tutoringDomain.SideRequester, memberID, status, req)
}

// ListReceived returns one page of the tutorings the member received.
func (s *QueryService) ListReceived(ctx context.Context, memberID uuid.UUID, status *tutoringDomain.Status, req paging.Request) (*paging.Page[TutoringSummaryDTO], error) {
	return s.list(ctx, tutoringDomain.SideReceiver, memberID, status, req)
}

// list fetches a page of IDs, hydrates them with the counterpart profile in
// one batch, and restores the order of the ID page. Rows that disappear
// between the two reads are dropped; the total still comes from the first.
func (s *QueryService) list(
	ctx context.Context,
	side tutoringDomain.Side,
	memberID uuid.UUID,
	status *tutoringDomain.Status,
	req paging.Request,
) (*paging.Page[TutoringSummaryDTO], error) {
	role, err := s.members.RoleOf(ctx, memberID)
	if err != nil {
		return nil, err
	}

	ids, total, err := s.repo.FindPageIDs(ctx, tutoringDomain.ListQuery{
		Side:     side,
		MemberID: memberID,
		Status:   status,
		Page:     req,
	})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		page := paging.NewPage[TutoringSummaryDTO](nil, req, total)
		return &page, nil
	}

	views, err := s.repo.FindViewsByIDs(ctx, side, role.CounterpartProfile(), ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]tutoringDomain.View, len(views))
	for _, v := range views {
		byID[v.Tutoring.ID()] = v
	}

	items := make([]TutoringSummaryDTO, 0, len(ids))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			items = append(items, toSummaryDTO(v))
		}
	}

	if dropped := len(ids) - len(items); dropped > 0 {
		s.logger.Debug("tutorings dropped from page",
			zap.String("member_id", memberID.String()),
			zap.String("side", string(side)),
			zap.Int("dropped", dropped),
		)
	}

	page := paging.NewPage(items, req, total)
	return &page, nil
}
