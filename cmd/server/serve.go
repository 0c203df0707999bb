package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dandantas/assessment-orchestrator/internal/aiclient"
	"github.com/dandantas/assessment-orchestrator/internal/assessment"
	"github.com/dandantas/assessment-orchestrator/internal/config"
	"github.com/dandantas/assessment-orchestrator/internal/database"
	"github.com/dandantas/assessment-orchestrator/internal/durable"
	"github.com/dandantas/assessment-orchestrator/internal/handler"
	"github.com/dandantas/assessment-orchestrator/internal/service"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
)

// stores bundles the persistence backends selected by STORE_DRIVER
type stores struct {
	jobs     database.JobStore
	sessions database.SessionStore
	history  database.HistoryStore
	leases   database.LeaseStore
	db       *database.MongoDB
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the orchestration engine and the recovery sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	logger := config.InitLogger(cfg)
	slog.Info("Starting Assessment Orchestrator", "version", version, "store_driver", cfg.StoreDriver)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer func() {
			if err := st.db.Disconnect(context.Background()); err != nil {
				slog.Error("Failed to disconnect from MongoDB", "error", err)
			}
		}()
	}

	// AI generation client
	if cfg.AIEndpoint == "" {
		slog.Warn("AI_ENDPOINT is not set, every assessment generation will fail")
	}
	generator, err := aiclient.NewClient(aiclient.Config{
		Endpoint:     cfg.AIEndpoint,
		APIKey:       cfg.AIAPIKey,
		Model:        cfg.AIModel,
		Timeout:      cfg.AITimeout,
		ResponsePath: cfg.AIResponsePath,
		Temperature:  cfg.AITemperature,
	})
	if err != nil {
		return err
	}

	// Orchestration engine
	engine := durable.NewEngine(st.history, st.leases, durable.Options{
		Workers:   cfg.WorkerPoolSize,
		QueueSize: cfg.ActivityQueueSize,
		LeaseTTL:  cfg.LeaseTTL,
		Logger:    logger,
	})
	assessment.NewActivities(st.jobs, st.sessions, generator).Register(engine)
	assessment.NewOrchestrator().Register(engine)
	engine.Start()

	var recovery *durable.Recovery
	if cfg.RecoveryEnabled {
		recovery = durable.NewRecovery(engine, cfg.RecoverySchedule)
		if err := recovery.Start(ctx); err != nil {
			return err
		}
	}

	// Services and handlers
	jobService := service.NewJobService(st.jobs, st.sessions, engine, cfg.AIModel)
	assessmentService := service.NewAssessmentService(st.sessions)

	var pinger handler.Pinger
	if st.db != nil {
		pinger = st.db
	}

	router := handler.NewRouter(
		handler.NewJobHandler(jobService, cfg.PublicBaseURL),
		handler.NewAssessmentHandler(assessmentService),
		handler.NewHealthHandler(pinger, version),
		cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   cfg.CORSAllowedMethods,
			AllowedHeaders:   cfg.CORSAllowedHeaders,
			ExposedHeaders:   []string{"X-Correlation-ID"},
			AllowCredentials: cfg.CORSAllowCredentials,
			MaxAge:           cfg.CORSMaxAge,
		},
	)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigChan:
		slog.Info("Received shutdown signal, initiating graceful shutdown")
	case err := <-serverErr:
		runErr = fmt.Errorf("HTTP server error: %w", err)
		slog.Error("HTTP server failed, shutting down", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting submissions first
	slog.Info("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if recovery != nil {
		slog.Info("Stopping recovery sweep...")
		recovery.Stop(shutdownCtx)
	}

	// Running instances stop at their next checkpoint and are resumed by
	// whichever pod sweeps next
	slog.Info("Stopping orchestration engine...")
	engine.Shutdown(shutdownCtx)

	slog.Info("Assessment Orchestrator stopped")
	return runErr
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if !cfg.UsesMongo() {
		slog.Warn("Using in-memory stores, state is lost on restart")
		return &stores{
			jobs:     database.NewMemoryJobStore(),
			sessions: database.NewMemorySessionStore(),
			history:  database.NewMemoryHistoryStore(),
			leases:   database.NewMemoryLeaseStore(),
		}, nil
	}

	db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := database.CreateIndexes(ctx, db); err != nil {
		_ = db.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &stores{
		jobs:     database.NewJobRepository(db),
		sessions: database.NewSessionRepository(db),
		history:  database.NewHistoryRepository(db),
		leases:   database.NewLeaseRepository(db),
		db:       db,
	}, nil
}
