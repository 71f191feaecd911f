package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orderlink/be-plan-amendments/internal/client"
	"github.com/orderlink/be-plan-amendments/internal/config"
	"github.com/orderlink/be-plan-amendments/internal/database"
	"github.com/orderlink/be-plan-amendments/internal/handler"
	"github.com/orderlink/be-plan-amendments/internal/logger"
	"github.com/orderlink/be-plan-amendments/internal/metrics"
	"github.com/orderlink/be-plan-amendments/internal/middleware"
	"github.com/orderlink/be-plan-amendments/internal/repository"
	"github.com/orderlink/be-plan-amendments/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Plan Amendments Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	amendmentRepo := repository.NewAmendmentRepository(db)
	planRepo := repository.NewPlanRepository(db)
	hierarchyRepo := repository.NewHierarchyRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Initialize NATS event publisher (optional)
	var events service.EventPublisher
	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name(cfg.Service.Name),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
		}
		defer nc.Drain()
		events = client.NewNotificationPublisher(nc, log.Logger)
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	} else {
		log.Info().Msg("NATS notifications disabled")
	}

	// Initialize services
	ledgerService := service.NewLedgerService(amendmentRepo, planRepo, hierarchyRepo, auditRepo, events, m, log)
	submissionService := service.NewSubmissionService(submissionRepo, amendmentRepo, hierarchyRepo, planRepo, m, log)
	rollupService := service.NewRollupService(planRepo, hierarchyRepo, amendmentRepo, cfg.Cache.PlanSize, cfg.Cache.PlanTTL, m, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(ledgerService, submissionService, rollupService, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpHandler.Register(mux)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
