package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/brightops/be-ops-approvals/internal/client"
	"github.com/brightops/be-ops-approvals/internal/handler"
	"github.com/brightops/be-ops-approvals/internal/platform/config"
	"github.com/brightops/be-ops-approvals/internal/platform/database"
	"github.com/brightops/be-ops-approvals/internal/platform/logger"
	"github.com/brightops/be-ops-approvals/internal/platform/middleware"
	"github.com/brightops/be-ops-approvals/internal/repository"
	"github.com/brightops/be-ops-approvals/internal/service"
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
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Ops Approvals Service")

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
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize notification publisher
	publisher, err := client.NewNotificationPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer publisher.Close()

	// Initialize repositories
	sequenceRepo := repository.NewSequenceRepository(db)
	ruleRepo := repository.NewRoutingRuleRepository(db)
	stepRepo := repository.NewApprovalStepRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	capexRepo := repository.NewCapexRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	// Initialize services
	sequenceService := service.NewSequenceService(sequenceRepo, log)
	routingService := service.NewApprovalRoutingService(ruleRepo, stepRepo, documentRepo, activityRepo, publisher, log)
	documentService := service.NewDocumentService(documentRepo, sequenceService, routingService, log)
	thresholdService := service.NewThresholdApprovalService(capexRepo, sequenceService, activityRepo, publisher, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(documentService, routingService, sequenceService, thresholdService, ruleRepo, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Sequence routes
	mux.HandleFunc("/api/v1/sequences/allocate", httpHandler.AllocateSequence)
	mux.HandleFunc("/api/v1/sequences/mail", httpHandler.AllocateMailNumber)

	// Routing rule routes
	mux.HandleFunc("/api/v1/rules", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListRules(w, r)
		case http.MethodPost:
			httpHandler.CreateRule(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/rules/update", httpHandler.UpdateRule)
	mux.HandleFunc("/api/v1/rules/delete", httpHandler.DeleteRule)

	// Document + sequential chain routes
	mux.HandleFunc("/api/v1/documents", httpHandler.CreateDocument)
	mux.HandleFunc("/api/v1/documents/get", httpHandler.GetDocument)
	mux.HandleFunc("/api/v1/documents/assign", httpHandler.AssignDocument)
	mux.HandleFunc("/api/v1/documents/approve-step", httpHandler.ApproveStep)
	mux.HandleFunc("/api/v1/documents/reject-step", httpHandler.RejectStep)
	mux.HandleFunc("/api/v1/documents/steps", httpHandler.DocumentSteps)
	mux.HandleFunc("/api/v1/documents/activity", httpHandler.DocumentActivity)
	mux.HandleFunc("/api/v1/approvals/pending", httpHandler.PendingApprovals)
	mux.HandleFunc("/api/v1/routing/reassign", httpHandler.ReassignTenant)

	// Threshold approval routes
	mux.HandleFunc("/api/v1/capex", httpHandler.CreateCapex)
	mux.HandleFunc("/api/v1/capex/get", httpHandler.GetCapex)
	mux.HandleFunc("/api/v1/capex/submit", httpHandler.SubmitCapex)
	mux.HandleFunc("/api/v1/capex/approve", httpHandler.ApproveCapex)
	mux.HandleFunc("/api/v1/capex/reject", httpHandler.RejectCapex)
	mux.HandleFunc("/api/v1/capex/withdraw", httpHandler.WithdrawCapex)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(cfg.Server.WriteTimeout)(h)

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
