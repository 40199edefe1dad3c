package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/masteryloop-backend/internal/handlers"
	"github.com/yungbote/masteryloop-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler    *handlers.AuthHandler
	AuthMiddleware *middleware.AuthMiddleware
	SessionHandler *handlers.SessionHandler
	ReviewHandler  *handlers.ReviewHandler
	PolicyHandler  *handlers.PolicyHandler
	GraphHandler   *handlers.GraphHandler
	SSEHandler     *handlers.SSEHandler
	OTelEnabled    bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	if cfg.OTelEnabled {
		router.Use(otelgin.Middleware("masteryloop-backend"))
	}

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/register", cfg.AuthHandler.Register)
	router.POST("/login", cfg.AuthHandler.Login)
	router.POST("/refresh", cfg.AuthHandler.Refresh)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// Auth
	protected.POST("/logout", cfg.AuthHandler.Logout)
	// Tutoring loop
	protected.POST("/sessions/start", cfg.SessionHandler.Start)
	protected.POST("/sessions/diagnostic", cfg.SessionHandler.StartDiagnostic)
	protected.POST("/sessions/:id/respond", cfg.SessionHandler.Respond)
	protected.POST("/sessions/:id/resume", cfg.SessionHandler.Resume)
	// Reviews
	protected.GET("/reviews/due", cfg.ReviewHandler.Due)
	// Policy
	protected.GET("/policy/stats", cfg.PolicyHandler.Stats)
	// Knowledge graph
	protected.GET("/concepts", cfg.GraphHandler.Concepts)
	protected.GET("/concepts/path", cfg.GraphHandler.PathPlan)
	// SSE
	protected.GET("/sse/stream", cfg.SSEHandler.Stream)

	return router
}
