package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calebwren/rapport/internal/api"
	"github.com/calebwren/rapport/internal/config"
	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/logger"
	"github.com/calebwren/rapport/internal/repository"
	"github.com/calebwren/rapport/internal/service"
	"github.com/calebwren/rapport/internal/source"
	"github.com/calebwren/rapport/internal/source/developer"
	"github.com/calebwren/rapport/internal/source/emergingsocial"
	"github.com/calebwren/rapport/internal/source/imagesocial"
	"github.com/calebwren/rapport/internal/source/microblog"
	"github.com/calebwren/rapport/internal/source/professional"
	"github.com/calebwren/rapport/internal/source/shortvideo"
	"github.com/calebwren/rapport/internal/source/videoplatform"
	"github.com/calebwren/rapport/internal/source/websearch"
	"github.com/calebwren/rapport/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger.SetDefaultLogger(logger.New(&logger.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: "rapport-api",
		File:        cfg.Logging.File,
		FileOnly:    cfg.Logging.FileOnly,
		MaxSize:     cfg.Logging.MaxSize,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAge:      cfg.Logging.MaxAge,
		Compress:    cfg.Logging.Compress,
	}))
	defer logger.Sync()
	baseLog := logger.GetDefault()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// Initialize vector index
	qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		logger.Fatal("Failed to initialize Qdrant repository: %v", err)
	}
	defer qdrantRepo.Close()

	ctx := context.Background()
	if err := qdrantRepo.EnsureCollection(ctx); err != nil {
		logger.Fatal("Failed to ensure Qdrant collection: %v", err)
	}

	// Initialize object storage for uploaded audio
	objectStorage, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}

	// Initialize repositories
	jobRepo := repository.NewJobRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	personaRepo := repository.NewPersonaRepository(db)
	metricRepo := repository.NewMetricRepository(db)

	// Initialize provider clients
	transcriber := service.NewTranscriptionService(&cfg.Transcription)
	embedder := service.NewEmbeddingService(&cfg.Embedding)
	chat := service.NewChatService(&cfg.Chat)

	// Initialize enrichment pipeline
	registry, err := source.NewRegistry(enabledConnectors(cfg.Enrichment.EnabledSources)...)
	if err != nil {
		logger.Fatal("Failed to build source registry: %v", err)
	}
	limiter := service.NewRateLimiter(cfg.Enrichment.RateLimits)
	breaker := service.NewCircuitBreaker()
	dispatcher := service.NewSourceDispatcher(registry, limiter, breaker,
		cfg.Enrichment.SourceTimeout, cfg.Enrichment.BreakerCooldown)

	var scorer service.CandidateScorer
	if cfg.Resolver.UseLLM && chat.Enabled() {
		scorer = chat
	}
	resolver := service.NewIdentityResolver(&cfg.Resolver, scorer)

	// Initialize synthesis dependencies
	fusion := service.NewVectorFusion(&cfg.Fusion, cfg.Embedding.Dimension)
	synapses := service.NewSynapseService(qdrantRepo, &cfg.Synapse)
	outreach := service.NewOutreachService(chat)

	// Initialize API-facing services
	jobs := service.NewJobService(jobRepo)
	personas := service.NewPersonaService(personaRepo, qdrantRepo, embedder)

	// Run the workflow engine inside this process when configured to; larger
	// deployments run cmd/worker instead and leave the flag off.
	var engine *service.Engine
	if cfg.Workflow.Embedded {
		engine = service.NewEngine(jobRepo, &cfg.Workflow, &cfg.Transcription,
			service.NewTranscriptionStage(objectStorage, transcriber, embedder, conversationRepo),
			service.NewEnrichmentStage(dispatcher, resolver, cfg.Enrichment.SessionKey),
			service.NewSynthesisStage(embedder, fusion, synapses, outreach, qdrantRepo, metricRepo),
		)
		engine.Start()
		jobs.SetEnqueuer(engine.Enqueue)
		jobs.SetInterrupter(engine.Interrupt)
	}

	// Setup router
	router := api.SetupRouter(&cfg.Server, baseLog, db, qdrantRepo, jobs, personas, objectStorage)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.With(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info(ctx, "Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop accepting requests first, then stop the engine so in-flight
	// stages are interrupted and left for restart recovery.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}
	if engine != nil {
		engine.Stop()
	}

	logger.Info("Server exited")
}

// enabledConnectors builds the connector set, narrowed to the configured
// source tags when the deployment enables only a subset. Unknown configured
// tags are fatal rather than silently disabled.
func enabledConnectors(enabledTags []string) []source.Connector {
	connectors := []source.Connector{
		professional.NewAdapter(),
		developer.NewAdapter(),
		imagesocial.NewAdapter(),
		shortvideo.NewAdapter(),
		microblog.NewAdapter(),
		websearch.NewAdapter(),
		videoplatform.NewAdapter(),
		emergingsocial.NewAdapter(),
	}
	if len(enabledTags) == 0 {
		return connectors
	}

	allowed := make(map[domain.SourceTag]bool, len(enabledTags))
	for _, raw := range enabledTags {
		tag, err := domain.ParseSourceTag(raw)
		if err != nil {
			logger.Fatal("Invalid enrichment.enabled_sources entry: %v", err)
		}
		allowed[tag] = true
	}

	kept := connectors[:0]
	for _, c := range connectors {
		if allowed[c.Tag()] {
			kept = append(kept, c)
		}
	}
	return kept
}
