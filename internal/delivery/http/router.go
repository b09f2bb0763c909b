package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gdugdh24/mpit2026-discovery/internal/delivery/http/handler"
	"github.com/gdugdh24/mpit2026-discovery/internal/delivery/http/middleware"
)

type Router struct {
	profileHandler   *handler.ProfileHandler
	discoveryHandler *handler.DiscoveryHandler
	streamHandler    *handler.StreamHandler
	authMiddleware   *middleware.AuthMiddleware
	gatherer         prometheus.Gatherer
}

func NewRouter(
	profileHandler *handler.ProfileHandler,
	discoveryHandler *handler.DiscoveryHandler,
	streamHandler *handler.StreamHandler,
	authMiddleware *middleware.AuthMiddleware,
	gatherer prometheus.Gatherer,
) *Router {
	return &Router{
		profileHandler:   profileHandler,
		discoveryHandler: discoveryHandler,
		streamHandler:    streamHandler,
		authMiddleware:   authMiddleware,
		gatherer:         gatherer,
	}
}

func (r *Router) Setup() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Health check (supports both GET and HEAD)
	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	if r.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	// API v1
	v1 := router.Group("/api/v1")
	{
		// Protected routes
		protected := v1.Group("")
		protected.Use(r.authMiddleware.RequireAuth())
		{
			// Profile routes
			profile := protected.Group("/profile")
			{
				profile.POST("", r.profileHandler.CreateProfile)
				profile.GET("/me", r.profileHandler.GetMyProfile)
				profile.PUT("/me/preferences", r.profileHandler.UpdatePreferences)
				profile.GET("/:user_id", r.profileHandler.GetProfileByUserID)
			}

			// Discovery session routes
			session := protected.Group("/discovery/session")
			{
				session.POST("", r.discoveryHandler.OpenSession)
				session.GET("", r.discoveryHandler.GetSession)
				session.DELETE("", r.discoveryHandler.CloseSession)
				session.POST("/gesture", r.discoveryHandler.Gesture)
				session.POST("/animation-done", r.discoveryHandler.AnimationDone)
				session.POST("/decision", r.discoveryHandler.Decision)
				session.POST("/photo", r.discoveryHandler.Photo)
				session.POST("/replenish", r.discoveryHandler.Replenish)
				session.GET("/stream", r.streamHandler.Stream)
			}
		}
	}

	return router
}
