package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"travel/internal/gateway"
	"travel/internal/middleware"
	"travel/internal/repository"
	"travel/internal/service"
)

const internalErrorMessage = "internal server error"

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Unexpected errors are logged and hidden behind a generic message.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("request failed")
		message = internalErrorMessage
	}
	c.JSON(code, ErrorResponse{Error: message, RequestID: c.GetString(middleware.RequestIDKey)})
}

// respondBadRequest sends a 400 with a fixed message.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message, RequestID: c.GetString(middleware.RequestIDKey)})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository/gateway errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden

	// Validation and business rule errors - Bad Request
	case errors.Is(err, service.ErrAlreadyPaid),
		errors.Is(err, service.ErrMissingTxRef),
		errors.Is(err, service.ErrBookingNotPayable),
		errors.Is(err, service.ErrInvalidBookingID),
		errors.Is(err, service.ErrInvalidPaymentID),
		errors.Is(err, service.ErrInvalidListingID),
		errors.Is(err, service.ErrInvalidDateRange),
		errors.Is(err, service.ErrInvalidGuests),
		errors.Is(err, service.ErrInvalidTotal),
		errors.Is(err, gateway.ErrRejected):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, service.ErrBookingNotCancellable),
		errors.Is(err, service.ErrPaymentNotPending),
		errors.Is(err, service.ErrVerificationInProgress):
		return http.StatusConflict

	// Service unavailable
	case errors.Is(err, gateway.ErrUnavailable):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}

// currentUser returns the authenticated requester or writes a 401.
func currentUser(c *gin.Context) (*middleware.Claims, bool) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		respondError(c, service.ErrUnauthenticated)
		return nil, false
	}
	return claims, true
}
