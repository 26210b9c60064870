package api

import (
	"errors"
	"net/http"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/gin-gonic/gin"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCapacityExceeded),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrPaymentInProgress),
		errors.Is(err, domain.ErrPaymentMismatch):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPaymentInit):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}
	var capErr *domain.CapacityError
	if errors.As(err, &capErr) {
		body["available"] = capErr.Available
	}
	// Driver messages stay in the logs.
	if status == http.StatusInternalServerError {
		body["error"] = "internal error"
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}
