package exports

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-events/backend/internal/httpx"
	"github.com/aura-events/backend/pkg/response"
)

// Handler handles roster export endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an export handler. A nil service disables exports.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Export handles POST /events/:id/registrations/export.
func (h *Handler) Export(c *gin.Context) {
	if h.svc == nil {
		response.ServiceUnavailable(c, "roster export is not configured")
		return
	}
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	exp, err := h.svc.Export(c.Request.Context(), eventID)
	if err != nil {
		httpx.FromError(c, err)
		return
	}
	response.Created(c, exp)
}
