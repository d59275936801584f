package registrations

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/httpx"
	"github.com/aura-events/backend/pkg/response"
)

// RegisterRequest is the body for POST /events/:id/registrations.
type RegisterRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email,max=450"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register handles POST /events/:id/registrations.
func (h *Handler) Register(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	adm, err := h.svc.Admit(c.Request.Context(), eventID, req.Name, req.Email)
	if err != nil {
		httpx.FromError(c, err)
		return
	}
	response.Created(c, adm)
}

// ListByEvent handles GET /events/:id/registrations.
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.svc.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		httpx.FromError(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /registrations/:registrationId.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("registrationId"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	reg, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		httpx.FromError(c, err)
		return
	}
	response.OK(c, reg)
}

// Cancel handles DELETE /registrations/:registrationId.
func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("registrationId"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	if err := h.svc.Cancel(c.Request.Context(), id); err != nil {
		httpx.FromError(c, err)
		return
	}
	response.NoContent(c)
}
