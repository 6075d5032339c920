package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/techbridge/service-tutoring/internal/platform/apperr"
	"github.com/techbridge/service-tutoring/internal/platform/paging"
)

// Body is the JSON envelope for every response.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success writes 200 with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created writes 201 with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// Paginated writes 200 with a page envelope.
func Paginated[T any](c *gin.Context, page paging.Page[T]) {
	c.JSON(http.StatusOK, Body{Success: true, Data: page})
}

// BadRequest writes 400 with message.
func BadRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, string(apperr.KindValidation), message)
}

// Unauthenticated writes 401 with message.
func Unauthenticated(c *gin.Context, message string) {
	abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", message)
}

// Error maps err to a status code. Errors without an apperr kind become 500
// and their message is not exposed.
func Error(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	message := "internal server error"
	if kind != apperr.KindInternal {
		message = err.Error()
		var e *apperr.Error
		if errors.As(err, &e) && e.Message != "" {
			message = e.Message
		}
	} else {
		_ = c.Error(err)
	}
	abort(c, status, string(kind), message)
}

// StatusFor returns the HTTP status for an error kind.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthorized:
		return http.StatusForbidden
	case apperr.KindInvalidRequest, apperr.KindInvalidTimeRange, apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflictExists, apperr.KindAlreadyProcessed, apperr.KindInvalidState, apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Body{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message},
	})
}
