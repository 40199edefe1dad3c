package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/masteryloop-backend/internal/app"
	"github.com/yungbote/masteryloop-backend/internal/content"
	"github.com/yungbote/masteryloop-backend/internal/db"
	"github.com/yungbote/masteryloop-backend/internal/handlers"
	"github.com/yungbote/masteryloop-backend/internal/kgraph"
	"github.com/yungbote/masteryloop-backend/internal/logger"
	"github.com/yungbote/masteryloop-backend/internal/middleware"
	"github.com/yungbote/masteryloop-backend/internal/neo4jdb"
	"github.com/yungbote/masteryloop-backend/internal/observability"
	"github.com/yungbote/masteryloop-backend/internal/orchestrator"
	"github.com/yungbote/masteryloop-backend/internal/repos"
	"github.com/yungbote/masteryloop-backend/internal/server"
	"github.com/yungbote/masteryloop-backend/internal/services"
	"github.com/yungbote/masteryloop-backend/internal/sse"
)

func main() {
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

	// Config
	log.Info("Loading configuration from main...")
	cfg := app.LoadConfig(log)

	// Tracing
	ctx := context.Background()
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "masteryloop",
		Environment: cfg.Mode,
	})

	// Database
	dbService, err := db.NewService(log)
	if err != nil {
		log.Error("Database init failed", "error", err)
		os.Exit(1)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		log.Error("Database auto migration failed", "error", err)
		os.Exit(1)
	}
	gdb := dbService.DB()

	// Knowledge graph
	log.Info("Loading knowledge graph...", "path", cfg.KnowledgeGraphPath)
	graph, err := kgraph.LoadYAML(cfg.KnowledgeGraphPath)
	if err != nil {
		log.Error("Knowledge graph load failed", "error", err)
		os.Exit(1)
	}
	neoClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Neo4j init failed; graph mirror disabled", "error", err)
	}
	if neoClient != nil {
		if err := kgraph.SyncToNeo4j(ctx, neoClient, graph, log); err != nil {
			log.Warn("Neo4j graph sync failed", "error", err)
		}
		defer neoClient.Close(ctx)
	}

	// Repos
	log.Info("Setting up repos from main...")
	learnerRepo := repos.NewLearnerRepo(gdb, log)
	tokenRepo := repos.NewLearnerTokenRepo(gdb, log)
	recordRepo := repos.NewConceptRecordRepo(gdb, log)
	policyRepo := repos.NewPolicyStateRepo(gdb, log)
	sessionRepo := repos.NewTutorSessionRepo(gdb, log)
	eventRepo := repos.NewLearnerEventRepo(gdb, log)

	// Collaborators
	openaiClient, err := content.NewOpenAIClient(log)
	if err != nil {
		log.Error("Could not init OpenAI client", "error", err)
		os.Exit(1)
	}

	// SSE
	log.Info("Setting up SSE hub from main...")
	sseHub := sse.NewSSEHub(log)

	// Services
	log.Info("Setting up services from main...")
	tutorStore := services.NewTutorStore(gdb, recordRepo, policyRepo, sessionRepo, eventRepo, log)
	locker, err := services.NewSessionLocker(log)
	if err != nil {
		log.Error("Could not init session locker", "error", err)
		os.Exit(1)
	}
	orch := orchestrator.New(cfg.Orchestrator, graph, openaiClient, openaiClient, tutorStore, sse.NewHubSink(sseHub), log)
	tutorService := services.NewTutorService(orch, tutorStore, locker, graph, log)
	authService := services.NewAuthService(gdb, log, learnerRepo, tokenRepo, cfg.JWTSecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	// Handlers
	log.Info("Setting up handlers from main...")
	authHandler := handlers.NewAuthHandler(authService)
	sessionHandler := handlers.NewSessionHandler(tutorService)
	reviewHandler := handlers.NewReviewHandler(tutorService)
	policyHandler := handlers.NewPolicyHandler(tutorService)
	graphHandler := handlers.NewGraphHandler(tutorService)
	sseHandler := handlers.NewSSEHandler(sseHub)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:    authHandler,
		AuthMiddleware: authMiddleware,
		SessionHandler: sessionHandler,
		ReviewHandler:  reviewHandler,
		PolicyHandler:  policyHandler,
		GraphHandler:   graphHandler,
		SSEHandler:     sseHandler,
		OTelEnabled:    observability.Enabled(),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		log.Info("Server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server failed", "error", err)
	}
	if otelShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}
}
