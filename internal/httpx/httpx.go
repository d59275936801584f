// Package httpx maps application errors onto HTTP responses.
package httpx

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/pkg/response"
)

// FromError writes err with the status its code maps to. Storage failures are
// reported without their cause.
func FromError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	msg := err.Error()
	if code == apperr.CodeStorage {
		msg = "internal server error"
	} else {
		var e *apperr.Error
		if errors.As(err, &e) {
			msg = e.Message
		}
	}
	response.Error(c, StatusOf(code), string(code), msg)
}

// StatusOf maps an error code to an HTTP status.
func StatusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation, apperr.CodePastEvent:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict, apperr.CodeDuplicateRegistration, apperr.CodeCapacityExceeded:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
