package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up the API routes
func SetupRoutes(handler *Handler, logger *slog.Logger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(Logger(logger))

	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/progress", handler.GetProgress)
		v1.GET("/batches", handler.ListBatches)
		v1.GET("/dataset", handler.GetDataset)
		v1.GET("/stats", handler.GetStats)
	}

	return router
}
