// Package server assembles the HTTP router.
package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/emaillogs"
	"github.com/aura-events/backend/internal/events"
	"github.com/aura-events/backend/internal/exports"
	"github.com/aura-events/backend/internal/middleware"
	"github.com/aura-events/backend/internal/registrations"
	"github.com/aura-events/backend/pkg/response"
)

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the handlers and collaborators the router serves.
type Deps struct {
	ServiceName   string
	CORSOrigins   []string
	Health        Pinger
	Events        *events.Handler
	Registrations *registrations.Handler
	EmailLogs     *emaillogs.Handler
	Exports       *exports.Handler
	Logger        *zap.Logger
}

// NewRouter wires every route.
func NewRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(d.ServiceName))
	router.Use(middleware.CORS(d.CORSOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := d.Health.Ping(ctx); err != nil {
			logger.Warn("health check failed", zap.Error(err))
			response.ServiceUnavailable(c, "storage unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		// Events
		api.POST("/events", d.Events.Create)
		api.GET("/events", d.Events.List)
		api.GET("/events/:id", d.Events.Get)
		api.DELETE("/events/:id", d.Events.Delete)

		// Registrations
		api.POST("/events/:id/registrations", d.Registrations.Register)
		api.GET("/events/:id/registrations", d.Registrations.ListByEvent)
		api.POST("/events/:id/registrations/export", d.Exports.Export)
		api.GET("/registrations/:registrationId", d.Registrations.Get)
		api.DELETE("/registrations/:registrationId", d.Registrations.Cancel)

		// Confirmation emails
		api.GET("/events/:id/emails", d.EmailLogs.ListByEvent)
		api.POST("/events/:id/emails/resend", d.EmailLogs.Resend)
	}
	return router
}
