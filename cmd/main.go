package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	redisclient "github.com/yungbote/studyos-backend/internal/clients/redis"
	"github.com/yungbote/studyos-backend/internal/db"
	"github.com/yungbote/studyos-backend/internal/handlers"
	"github.com/yungbote/studyos-backend/internal/logger"
	"github.com/yungbote/studyos-backend/internal/repos"
	"github.com/yungbote/studyos-backend/internal/server"
	"github.com/yungbote/studyos-backend/internal/services"
	"github.com/yungbote/studyos-backend/internal/sse"
	"github.com/yungbote/studyos-backend/internal/utils"
)

func main() {
	_ = godotenv.Load()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	subjectRepo := repos.NewSubjectRepo(thePG, log)
	generationRunRepo := repos.NewGenerationRunRepo(thePG, log)

	// SSE
	log.Info("Setting up SSE hub now...")
	hub := sse.NewHub(log)

	// Optional redis fan-out. Without REDIS_ADDR the in-memory hub is the
	// only delivery path.
	var publisher services.Publisher = hub
	if os.Getenv("REDIS_ADDR") != "" {
		bus, err := redisclient.NewBus(log)
		if err != nil {
			log.Warn("Redis bus init failed, running single-instance", "error", err)
		} else {
			if err := bus.StartForwarder(context.Background(), hub.Broadcast); err != nil {
				log.Warn("Redis forwarder failed, running single-instance", "error", err)
			} else {
				publisher = bus
				defer bus.Close()
			}
		}
	}

	// Services
	log.Info("Setting up services from main...")
	aiClient, err := services.NewAIClient(log)
	if err != nil {
		log.Error("Could not init AI client", "error", err)
		os.Exit(1)
	}
	graphService := services.NewGraphGenerationService(log, aiClient)
	exerciseService := services.NewExerciseGenerationService(log, aiClient)
	subjectGraphService := services.NewSubjectGraphService(log, subjectRepo, exerciseService)
	runnerService := services.NewGenerationRunnerService(log, subjectRepo, generationRunRepo, graphService, publisher)

	// Handlers
	log.Info("Setting up handlers from main...")
	subjectHandler := handlers.NewSubjectHandler(log, subjectRepo)
	generationHandler := handlers.NewGenerationHandler(log, runnerService)
	conceptHandler := handlers.NewConceptHandler(log, subjectGraphService)
	streamHandler := handlers.NewStreamHandler(log, hub)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		SubjectHandler:    subjectHandler,
		GenerationHandler: generationHandler,
		ConceptHandler:    conceptHandler,
		StreamHandler:     streamHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
