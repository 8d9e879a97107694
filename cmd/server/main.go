package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/edusuite/school-billing/internal/application/dispatcher"
	"github.com/edusuite/school-billing/internal/application/service"
	"github.com/edusuite/school-billing/internal/config"
	"github.com/edusuite/school-billing/internal/infrastructure/notification"
	"github.com/edusuite/school-billing/internal/infrastructure/persistence/repository"
	"github.com/edusuite/school-billing/internal/infrastructure/persistence/sqlite"
	"github.com/edusuite/school-billing/internal/infrastructure/receipt"
	httpserver "github.com/edusuite/school-billing/internal/interfaces/http"
	"github.com/edusuite/school-billing/internal/worker"
	"github.com/edusuite/school-billing/pkg/database"
	"github.com/edusuite/school-billing/pkg/utils"
)

func main() {
	// Environment overrides from a local .env, if present
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
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

	logger.Info("Starting school billing service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		logger.Fatal("Failed to create data directory", zap.Error(err))
	}

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

	// Transaction-aware wrapper shared by every repository
	store := sqlite.NewDB(db.DB, logger)

	// Repositories
	invoiceRepo := repository.NewInvoiceRepository(store, logger)
	paymentRepo := repository.NewPaymentRepository(store, logger)
	waiverRepo := repository.NewWaiverRepository(store, logger)
	discountRepo := repository.NewDiscountRepository(store, logger)
	scholarshipRepo := repository.NewScholarshipRepository(store, logger)
	receiptRepo := repository.NewReceiptRepository(store, logger)
	sequenceRepo := repository.NewSequenceRepository(store, logger)
	notificationRepo := repository.NewNotificationRepository(store, logger)
	directory := repository.NewDirectoryRepository(store, logger)

	serviceLogger := utils.NewSugaredLogger(logger)

	// Event dispatcher
	events := dispatcher.NewDispatcher(dispatcher.WithLogger(serviceLogger))
	defer events.Close()

	ledgerService := service.NewLedgerService(
		invoiceRepo, sequenceRepo, directory, store, events,
		cfg.Billing.Currency, serviceLogger)

	renderer := receipt.NewExcelRenderer(cfg.Billing.SchoolName, logger)
	receiptService := service.NewReceiptService(
		receiptRepo, paymentRepo, invoiceRepo, sequenceRepo,
		directory, directory, renderer, store, serviceLogger)

	paymentService := service.NewPaymentService(
		paymentRepo, invoiceRepo, ledgerService, receiptService,
		sequenceRepo, directory, store, events, serviceLogger)

	adjustmentService := service.NewAdjustmentService(
		waiverRepo, discountRepo, scholarshipRepo, invoiceRepo,
		ledgerService, store, events, serviceLogger)

	notificationService := service.NewNotificationService(notificationRepo, serviceLogger)
	notificationService.Register(events)

	// Background workers
	runCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	manager := worker.NewManager(logger)
	manager.Register(worker.NewOverdueScanner(
		ledgerService, adjustmentService, receiptService, paymentRepo,
		events, cfg.Billing.OverdueScanInterval, logger))
	manager.Register(worker.NewDeliveryWorker(
		notificationRepo, notification.NewLogSink(logger),
		cfg.Billing.OutboxDrainInterval, logger))

	if err := manager.StartAll(runCtx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	// HTTP server
	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, ledgerService, paymentService, adjustmentService, receiptService, serviceLogger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(runCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutting down server...")
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	manager.StopAll()
	cancelWorkers()
	if err := server.Stop(); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}
