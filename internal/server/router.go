package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/studyos-backend/internal/handlers"
	"github.com/yungbote/studyos-backend/internal/utils"
)

type RouterConfig struct {
	SubjectHandler    *handlers.SubjectHandler
	GenerationHandler *handlers.GenerationHandler
	ConceptHandler    *handlers.ConceptHandler
	StreamHandler     *handlers.StreamHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173", nil), ",")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	// SSE
	router.GET("/sse/stream", cfg.StreamHandler.Stream)

	api := router.Group("/api")
	{
		// Subjects
		api.POST("/subjects", cfg.SubjectHandler.Create)
		api.GET("/subjects", cfg.SubjectHandler.List)
		api.GET("/subjects/:id", cfg.SubjectHandler.Get)
		api.DELETE("/subjects/:id", cfg.SubjectHandler.Delete)

		// Graph generation
		api.POST("/subjects/:id/generate", cfg.GenerationHandler.Generate)
		api.GET("/subjects/:id/generation", cfg.GenerationHandler.GetLatest)
		api.POST("/subjects/:id/generation/cancel", cfg.GenerationHandler.Cancel)

		// Concepts
		api.POST("/subjects/:id/concepts/:conceptId/exercises", cfg.ConceptHandler.GenerateExercises)
		api.POST("/subjects/:id/concepts/:conceptId/mastery", cfg.ConceptHandler.UpdateMastery)
	}

	return router
}
