package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/techbridge/service-tutoring/internal/application"
	tutoringDomain "github.com/techbridge/service-tutoring/internal/domain/tutoring"
	"github.com/techbridge/service-tutoring/internal/platform/auth"
	"github.com/techbridge/service-tutoring/internal/platform/middleware"
	"github.com/techbridge/service-tutoring/internal/platform/paging"
	"github.com/techbridge/service-tutoring/internal/platform/response"
)

// TutoringCommands is the write side used by the handler.
type TutoringCommands interface {
	RequestTutoring(ctx context.Context, actingID uuid.UUID, req application.RequestTutoringRequest) (*application.TutoringDTO, error)
	AcceptTutoring(ctx context.Context, id, actingID uuid.UUID) (*application.TutoringDTO, error)
	RejectTutoring(ctx context.Context, id, actingID uuid.UUID) (*application.TutoringDTO, error)
	CancelTutoring(ctx context.Context, id, actingID uuid.UUID) (*application.TutoringDTO, error)
	GetTutoring(ctx context.Context, id, actingID uuid.UUID) (*application.TutoringDTO, error)
	CountMine(ctx context.Context, memberID uuid.UUID) (*application.StatsDTO, error)
}

// TutoringQueries is the listing side used by the handler.
type TutoringQueries interface {
	ListSent(ctx context.Context, memberID uuid.UUID, status *tutoringDomain.Status, req paging.Request) (*paging.Page[application.TutoringSummaryDTO], error)
	ListReceived(ctx context.Context, memberID uuid.UUID, status *tutoringDomain.Status, req paging.Request) (*paging.Page[application.TutoringSummaryDTO], error)
}

// TutoringHandler handles HTTP requests for tutoring operations.
type TutoringHandler struct {
	commands TutoringCommands
	queries  TutoringQueries
}

// NewTutoringHandler creates a new TutoringHandler.
func NewTutoringHandler(commands TutoringCommands, queries TutoringQueries) *TutoringHandler {
	return &TutoringHandler{commands: commands, queries: queries}
}

// RegisterRoutes registers all tutoring routes on the given router group.
func (h *TutoringHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)

	tutorings := r.Group("/api/v1/tutorings")
	tutorings.Use(authMW)
	{
		tutorings.POST("", h.RequestTutoring)
		tutorings.GET("/sent", h.ListSent)
		tutorings.GET("/received", h.ListReceived)
		tutorings.GET("/stats", h.GetStats)
		tutorings.GET("/:id", h.GetTutoring)
		tutorings.POST("/:id/accept", h.AcceptTutoring)
		tutorings.POST("/:id/reject", h.RejectTutoring)
		tutorings.POST("/:id/cancel", h.CancelTutoring)
	}
}

// RequestTutoring handles POST /api/v1/tutorings.
func (h *TutoringHandler) RequestTutoring(c *gin.Context) {
	memberID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthenticated(c, "unauthorized")
		return
	}

	var req application.RequestTutoringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.commands.RequestTutoring(c.Request.Context(), memberID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// AcceptTutoring handles POST /api/v1/tutorings/:id/accept.
func (h *TutoringHandler) AcceptTutoring(c *gin.Context) {
	h.byID(c, h.commands.AcceptTutoring)
}

// RejectTutoring handles POST /api/v1/tutorings/:id/reject.
func (h *TutoringHandler) RejectTutoring(c *gin.Context) {
	h.byID(c, h.commands.RejectTutoring)
}

// CancelTutoring handles POST /api/v1/tutorings/:id/cancel.
func (h *TutoringHandler) CancelTutoring(c *gin.Context) {
	h.byID(c, h.commands.CancelTutoring)
}

// GetTutoring handles GET /api/v1/tutorings/:id.
func (h *TutoringHandler) GetTutoring(c *gin.Context) {
	h.byID(c, h.commands.GetTutoring)
}

// ListSent handles GET /api/v1/tutorings/sent.
func (h *TutoringHandler) ListSent(c *gin.Context) {
	h.list(c, h.queries.ListSent)
}

// ListReceived handles GET /api/v1/tutorings/received.
func (h *TutoringHandler) ListReceived(c *gin.Context) {
	h.list(c, h.queries.ListReceived)
}

// GetStats handles GET /api/v1/tutorings/stats.
func (h *TutoringHandler) GetStats(c *gin.Context) {
	memberID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthenticated(c, "unauthorized")
		return
	}

	result, err := h.commands.CountMine(c.Request.Context(), memberID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

type idAction func(ctx context.Context, id, actingID uuid.UUID) (*application.TutoringDTO, error)

func (h *TutoringHandler) byID(c *gin.Context, action idAction) {
	tutoringID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid tutoring ID")
		return
	}

	memberID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthenticated(c, "unauthorized")
		return
	}

	result, err := action(c.Request.Context(), tutoringID, memberID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

type listAction func(ctx context.Context, memberID uuid.UUID, status *tutoringDomain.Status, req paging.Request) (*paging.Page[application.TutoringSummaryDTO], error)

func (h *TutoringHandler) list(c *gin.Context, action listAction) {
	memberID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthenticated(c, "unauthorized")
		return
	}

	status, err := parseStatusFilter(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := action(c.Request.Context(), memberID, status, parsePagination(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, *result)
}

// --- Helpers ---

func parsePagination(c *gin.Context) paging.Request {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(paging.DefaultSize)))
	return paging.NewRequest(page, size)
}

func parseStatusFilter(c *gin.Context) (*tutoringDomain.Status, error) {
	raw := c.Query("status")
	if raw == "" {
		return nil, nil
	}
	status, err := tutoringDomain.ParseStatus(raw)
	if err != nil {
		return nil, err
	}
	return &status, nil
}
