package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/presencesync/agent/internal/config"
	"github.com/presencesync/agent/internal/handlers"
	custommw "github.com/presencesync/agent/internal/middleware"
	"github.com/presencesync/agent/internal/observability"
	"github.com/presencesync/agent/internal/platform"
	"github.com/presencesync/agent/internal/repository"
	"github.com/presencesync/agent/internal/services"
)

const serviceVersion = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize telemetry
	ctx := context.Background()
	telemetry, err := observability.Initialize(ctx, observability.NewConfig("presence-agent", serviceVersion))
	if err != nil {
		log.Printf("Warning: telemetry initialization failed: %v", err)
	}
	defer func() {
		if telemetry != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			telemetry.Shutdown(shutdownCtx)
		}
	}()

	// Initialize database and repositories
	var queueRepo repository.QueueRepo
	var identityRepo repository.DeviceIdentityRepo
	if cfg.UsePostgres() {
		log.Println("Using PostgreSQL queue store")
		db, err := repository.NewPostgresDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL database: %v", err)
		}
		defer db.Close()
		queueRepo = repository.NewQueueRepositoryPostgres(db)
		identityRepo = repository.NewDeviceIdentityRepository(db)
	} else {
		log.Println("Using SQLite queue store")
		db, err := repository.NewSQLiteDB(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite database: %v", err)
		}
		defer db.Close()
		queueRepo = repository.NewQueueRepository(db)
		identityRepo = repository.NewDeviceIdentityRepository(db)
	}

	// Initialize services
	identityService := services.NewIdentityService(identityRepo)
	deviceID, err := identityService.DeviceID(ctx)
	if err != nil {
		log.Fatalf("Failed to establish device identity: %v", err)
	}
	log.Printf("Device identity: %s", deviceID)

	imageService := services.NewImageService(
		cfg.Capture.MinWidth,
		cfg.Capture.MinHeight,
		cfg.Capture.MaxEdge,
		cfg.Capture.JPEGQuality,
	)

	verificationClient, err := services.NewVerificationClient(cfg.Verification)
	if err != nil {
		log.Fatalf("Failed to initialize verification client: %v", err)
	}

	eventHub := services.NewEventHub()
	go eventHub.Run()

	syncMetrics, err := observability.NewSyncMetrics()
	if err != nil {
		log.Printf("Warning: sync metrics unavailable: %v", err)
	}

	syncService := services.NewSyncService(
		queueRepo,
		verificationClient,
		cfg.Sync.RetentionDays,
		cfg.Sync.IntervalMinutes,
	)
	syncService.SetEventHub(eventHub)
	syncService.SetMetrics(syncMetrics)
	syncService.Start()
	defer syncService.Stop()

	probe := services.NewHTTPProbe(cfg.Verification.EndpointURL, 5*time.Second)
	observer := services.NewConnectivityObserver(
		probe,
		syncService,
		cfg.Sync.ProbeIntervalSeconds,
		time.Duration(cfg.Sync.IntervalMinutes)*time.Minute,
	)
	observer.Start()
	defer observer.Stop()

	// Capture capability sources
	camera := platform.NewDirectoryCamera(cfg.Capture.FramesPath, cfg.Capture.FrameMaxAgeSeconds)
	location := platform.NewStaticLocationSource(cfg.Capture.Latitude, cfg.Capture.Longitude)

	flowFactory := func(sessionID string) *services.CaptureFlow {
		return services.NewCaptureFlow(sessionID, services.CaptureFlowDeps{
			Camera:          camera,
			Location:        location,
			Images:          imageService,
			Queue:           queueRepo,
			Identity:        identityService,
			Verifier:        verificationClient,
			LocationTimeout: time.Duration(cfg.Capture.LocationTimeoutSeconds) * time.Second,
			Hub:             eventHub,
			Metrics:         syncMetrics,
			OnEnqueued:      observer.NotifyEnqueued,
		})
	}

	// Initialize handlers
	captureHandler := handlers.NewCaptureHandler(flowFactory)
	syncHandler := handlers.NewSyncHandler(syncService, observer, queueRepo)
	healthHandler := handlers.NewHealthHandler(identityService)
	wsHandler := handlers.NewWebSocketHandler(eventHub)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware("presence-agent"))
	if httpMetrics, err := observability.NewHTTPMetrics(); err == nil {
		r.Use(observability.MetricsMiddleware(httpMetrics))
	}
	if cfg.Security.APIKeyBcrypt != "" {
		r.Use(custommw.BcryptAPIKeyAuth(cfg.Security.APIKeyBcrypt, cfg.Security.APIKeyHeader))
	} else {
		r.Use(custommw.APIKeyAuth(cfg.Security.APIKey, cfg.Security.APIKeyHeader))
	}

	// Routes
	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/ws", wsHandler.HandleConnection)

	r.Route("/api", func(r chi.Router) {
		r.Post("/captures", captureHandler.StartCapture)
		r.Get("/sync/status", syncHandler.GetStatus)
		r.Post("/sync/run", syncHandler.RunSync)
		r.Get("/queue", syncHandler.GetQueue)
	})

	// Create server
	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Capture flows include a remote round trip
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Presence agent starting on %s", cfg.ServerAddress)
		log.Printf("Frame spool path: %s", cfg.Capture.FramesPath)
		log.Printf("Sync interval: %dm, retention: %dd", cfg.Sync.IntervalMinutes, cfg.Sync.RetentionDays)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down agent...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Agent stopped")
}
