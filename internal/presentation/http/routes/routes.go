// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/sessionstory/sessionstory-go/internal/application/container"
	"github.com/sessionstory/sessionstory-go/internal/presentation/http/handlers"
	"github.com/sessionstory/sessionstory-go/internal/presentation/http/middleware"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	// Serve the recorder snippet so customer pages can load it from
	// the same host they post batches to.
	r.Static("/static", "web/static")

	// Initialize handlers
	sessionHandlers := handlers.NewSessionHandlers(container.IngestionService, container.RetrievalService, container.Logger, container.PerfTracker)
	aiHandlers := handlers.NewAIHandlers(container.SummaryService, container.Logger, container.PerfTracker)
	liveHandlers := handlers.NewLiveHandlers(container.LiveHub, container.Logger)
	healthHandlers := handlers.NewHealthHandlers(container.DB, container.PerfTracker)

	r.GET("/health", healthHandlers.GetHealth)
	r.GET("/health/metrics", healthHandlers.GetMetrics)

	session := r.Group("/session")
	{
		session.POST("/record/:ownerId", sessionHandlers.PostRecord)
		session.GET("/user/:ownerId", sessionHandlers.GetSessionsByOwner)
		session.GET("/live/:sessionId", liveHandlers.GetLiveSession)
		session.GET("/:sessionId", sessionHandlers.GetSession)

		session.GET("", middleware.AuthMiddleware(), sessionHandlers.GetOwnSessions)
	}

	aiGroup := r.Group("/ai")
	{
		aiGroup.GET("/summary/:sessionId", aiHandlers.GetSummary)
		aiGroup.POST("/translate", aiHandlers.PostTranslate)
	}

	return r
}
