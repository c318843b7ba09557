package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/config"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/hostlms"
	httpapi "github.com/openlibraryenvironment/dcb-service-sub000/internal/interfaces/http"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/report"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/repository"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/resolution"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/worker"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/workflow"
	"github.com/openlibraryenvironment/dcb-service-sub000/pkg/database"
	"github.com/openlibraryenvironment/dcb-service-sub000/pkg/utils"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = gotenv.Load()

	configPath := os.Getenv("DCB_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting DCB request workflow service",
		zap.Int("port", cfg.Server.Port),
		zap.Int("host_lms_count", len(cfg.HostLms)))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	requestRepo := repository.NewPatronRequestRepository(db.DB, logger)
	supplierRepo := repository.NewSupplierRequestRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)
	identityRepo := repository.NewIdentityRepository(db.DB, logger)
	agencyRepo := repository.NewAgencyRepository(db.DB, logger)
	holdingsRepo := repository.NewHoldingsRepository(db.DB, logger)

	// Host system clients
	registry := hostlms.NewRegistry(logger)
	for _, h := range cfg.HostLms {
		registry.Register(hostlms.NewHTTPClient(hostlms.HTTPConfig{
			Code:    h.Code,
			BaseURL: h.BaseURL,
			APIKey:  h.APIKey,
			Timeout: h.Timeout,
		}, logger))
	}

	// Workflow engine
	resolver := resolution.NewResolver(holdingsRepo, agencyRepo, cfg.Resolution.SortPolicy, logger)
	contexts := workflow.NewContextService(requestRepo, supplierRepo, identityRepo, agencyRepo, logger)
	transitions := workflow.NewTransitionCatalogue(
		registry,
		supplierRepo,
		identityRepo,
		agencyRepo,
		resolver,
		cfg.Workflow.RenewalTriggerEnabled,
		logger,
	)
	engine := workflow.NewService(
		contexts,
		requestRepo,
		auditRepo,
		transitions,
		workflow.DefaultPollPolicy(),
		cfg.Workflow.MaxTransitionsPerChain,
		logger,
	)

	// Background workers
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := worker.NewManager(logger)
	if cfg.Tracking.Enabled {
		manager.Register(worker.NewTrackingPoller(
			requestRepo,
			supplierRepo,
			registry,
			engine,
			worker.TrackingConfig{
				PollInterval: cfg.Tracking.PollInterval,
				BatchSize:    cfg.Tracking.BatchSize,
				CallTimeout:  cfg.Tracking.CallTimeout,
			},
			logger,
		))
	}
	if err := manager.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start background workers", zap.Error(err))
	}
	defer manager.StopAll()

	// HTTP surface
	exporter := report.NewExporter(requestRepo, auditRepo, logger)
	handlers := httpapi.NewHandlers(engine, requestRepo, auditRepo, exporter, logger)
	server := httpapi.NewServer(cfg.Server, handlers, logger)

	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server exited with error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Server exited successfully")
}
