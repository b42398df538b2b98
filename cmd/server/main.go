package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"archive/internal/auth"
	"archive/internal/config"
	models "archive/internal/domain/models/archive"
	archiveSvc "archive/internal/domain/services/archive"
	"archive/internal/events"
	"archive/internal/handler"
	"archive/internal/metrics"
	"archive/internal/middleware"
	"archive/internal/repository/postgres"
	postgresArchive "archive/internal/repository/postgres/archive"
	service "archive/internal/service/archive"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	logger, logCloser, err := config.NewLogger(cfg, "server")
	if err != nil {
		log.Fatalf("Failed to setup logging: %v", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
		"republish_mode", cfg.RepublishMode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)
	if err := postgres.RunMigrations(pool, tables, logger); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	txManager := postgres.NewTransactionManager(pool, logger)
	eventRepo := postgresArchive.NewEventRepository(repoConfig)
	deps := service.Dependencies{
		Documents: postgresArchive.NewDocumentRepository(repoConfig),
		Controls:  postgresArchive.NewControlRepository(repoConfig),
		Trees:     postgresArchive.NewTreeRepository(repoConfig),
		Latest:    postgresArchive.NewLatestRepository(repoConfig),
		Events:    eventRepo,
		Jobs:      postgresArchive.NewJobRepository(repoConfig),
		TxManager: txManager,
		Locker:    postgres.NewIdentityLocker(pool, txManager),
	}

	opts, err := serviceOptions(cfg)
	if err != nil {
		log.Fatalf("Invalid republication settings: %v", err)
	}
	svcs := service.NewServices(deps, opts, logger)
	if svcs.Worker != nil {
		// Jobs live in the database; whatever is pending at shutdown resumes on the next start.
		svcs.Worker.Start(ctx)
		defer svcs.Worker.Stop()
	}

	checks := map[string]handler.Pinger{"database": pool}

	// Event delivery: Redis stream when configured, log otherwise
	var sink archiveSvc.EventSink = events.NewLogSink(logger)
	if cfg.RedisURL != "" {
		client, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer client.Close()
		sink = events.NewRedisStreamSink(client, cfg.EventStream, 100000, logger)
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
		logger.Info("publication events streamed to redis", "stream", cfg.EventStream)
	}
	dispatcher := service.NewEventDispatcher(eventRepo, events.NewDedupSink(sink, 0), cfg.OutboxBatchSize, cfg.OutboxPollInterval, logger)
	go dispatcher.Run(ctx)

	// Bearer auth on write endpoints when a JWKS is configured
	var verifier auth.JWTVerifier
	if cfg.JWKSURL != "" {
		verifier, err = auth.NewJWTVerifier(ctx, cfg.JWKSURL, logger)
		if err != nil {
			log.Fatalf("Failed to create JWT verifier: %v", err)
		}
		defer verifier.Close()
	} else {
		logger.Warn("JWKS_URL not set, write endpoints are unauthenticated")
	}

	archiveHandler := handler.NewArchiveHandler(svcs.Publication, svcs.Query, svcs.Republisher, logger)
	healthHandler := handler.NewHealthHandler(checks, logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler.HealthCheck)
	mux.Handle("GET /metrics", metrics.Handler())

	// Read routes
	mux.HandleFunc("GET /api/identities/{identity}/latest", archiveHandler.GetLatest)
	mux.HandleFunc("GET /api/identities/{identity}/revisions", archiveHandler.ListRevisions)
	mux.HandleFunc("GET /api/documents/{id}", archiveHandler.GetDocument)
	mux.HandleFunc("GET /api/documents/{id}/tree", archiveHandler.GetTree)

	// Write routes
	mux.HandleFunc("POST /api/documents", archiveHandler.Publish)
	mux.HandleFunc("PATCH /api/documents/{id}/state", archiveHandler.SetState)
	mux.HandleFunc("POST /api/republish", archiveHandler.Republish)

	// Build middleware chain
	var h http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Logging → Recovery → Auth → Routes
	h = middleware.AuthMiddleware(verifier)(h)
	h = middleware.Recovery(logger)(h)
	h = middleware.RequestLogger(logger)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // synchronous republication can clone large trees
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// serviceOptions maps the republication settings onto service options.
func serviceOptions(cfg *config.Config) (service.Options, error) {
	mode := service.RepublishMode(cfg.RepublishMode)
	switch mode {
	case service.RepublishSync, service.RepublishAsync, service.RepublishOff:
	default:
		return service.Options{}, errors.New("REPUBLISH_MODE must be sync, async or off")
	}
	state, err := models.ParseState(cfg.RepublishedState)
	if err != nil {
		return service.Options{}, err
	}
	return service.Options{
		RepublishMode: mode,
		CloneState:    state,
		Parallelism:   cfg.RepublishParallelism,
		Worker: service.WorkerOptions{
			Workers: cfg.RepublishWorkers,
		},
	}, nil
}
