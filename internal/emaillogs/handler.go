package emaillogs

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-events/backend/internal/httpx"
	"github.com/aura-events/backend/pkg/response"
)

// Handler handles email log HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an email logs handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ListByEvent handles GET /events/:id/emails.
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	logs, err := h.svc.List(c.Request.Context(), eventID)
	if err != nil {
		httpx.FromError(c, err)
		return
	}
	response.OK(c, logs)
}

// ResendRequest is the body for POST /events/:id/emails/resend.
type ResendRequest struct {
	RegistrationID string `json:"registration_id" binding:"required,uuid"`
}

// Resend handles POST /events/:id/emails/resend.
func (h *Handler) Resend(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var body ResendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "registration_id required")
		return
	}
	registrationID, err := uuid.Parse(body.RegistrationID)
	if err != nil {
		response.BadRequest(c, "invalid registration_id")
		return
	}
	res, err := h.svc.Resend(c.Request.Context(), eventID, registrationID)
	if err != nil {
		httpx.FromError(c, err)
		return
	}
	if res.Queued {
		response.Accepted(c, res)
		return
	}
	response.OK(c, res)
}
