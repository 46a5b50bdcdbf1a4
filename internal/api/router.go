package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/calebwren/rapport/internal/api/handler"
	"github.com/calebwren/rapport/internal/api/middleware"
	"github.com/calebwren/rapport/internal/config"
	"github.com/calebwren/rapport/internal/logger"
	"github.com/calebwren/rapport/internal/service"
	"github.com/calebwren/rapport/internal/storage"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	cfg *config.ServerConfig,
	log *logger.Logger,
	db *gorm.DB,
	index service.VectorIndex,
	jobs *service.JobService,
	personas *service.PersonaService,
	objects storage.ObjectStorage,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler(db, index)
	interactionHandler := handler.NewInteractionHandler(jobs, objects, cfg.MaxUploadMB, cfg.AllowedExtensions)
	personaHandler := handler.NewPersonaHandler(personas)

	// Health checks
	r.GET("/healthz", healthHandler.Health)
	r.GET("/readyz", healthHandler.Ready)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Interactions
		v1.POST("/interactions", interactionHandler.Submit)
		v1.GET("/interactions/:id", interactionHandler.Get)
		v1.POST("/interactions/:id/cancel", interactionHandler.Cancel)
		v1.GET("/users/:user_id/interactions", interactionHandler.ListByUser)

		// Personas
		v1.POST("/personas", personaHandler.Seed)
		v1.GET("/users/:user_id/personas", personaHandler.List)
		v1.DELETE("/users/:user_id/personas", personaHandler.Delete)
	}

	return r
}
