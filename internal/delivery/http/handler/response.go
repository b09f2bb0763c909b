package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gdugdh24/mpit2026-discovery/internal/delivery/http/middleware"
	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
)

// ErrorResponse represents error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// errorStatus maps domain errors to an HTTP status and a message safe to
// show to the user. Anything unknown is a 500 with a generic message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrProfileNotFound):
		return http.StatusNotFound, "profile not found"
	case errors.Is(err, domain.ErrProfileAlreadyExists):
		return http.StatusConflict, "profile already exists"
	case errors.Is(err, domain.ErrUnderage),
		errors.Is(err, domain.ErrInvalidGender),
		errors.Is(err, domain.ErrIncompleteLocation),
		errors.Is(err, domain.ErrInvalidDecisionKind),
		errors.Is(err, domain.ErrCannotDecideSelf),
		errors.Is(err, ErrUnknownPhase),
		errors.Is(err, ErrBadMessage):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNoSession):
		return http.StatusNotFound, "no active discovery session"
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusGone, "discovery session closed"
	case errors.Is(err, domain.ErrQueueEmpty),
		errors.Is(err, domain.ErrGestureBusy),
		errors.Is(err, domain.ErrNoDrag):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrFetchFailed):
		return http.StatusServiceUnavailable, "We couldn't load new profiles. Check your connection and try again."
	}
	return http.StatusInternalServerError, "internal error"
}

func respondError(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	c.JSON(status, ErrorResponse{Error: msg})
}

func currentUserID(c *gin.Context) (int, bool) {
	userID, exists := c.Get(middleware.UserIDKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error: "unauthorized",
		})
		return 0, false
	}
	return userID.(int), true
}
