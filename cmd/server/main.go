package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/pharmaproc/internal/app"
	"github.com/odyssey-erp/pharmaproc/internal/integration"
	"github.com/odyssey-erp/pharmaproc/internal/inventory"
	"github.com/odyssey-erp/pharmaproc/internal/numbering"
	"github.com/odyssey-erp/pharmaproc/internal/observability"
	"github.com/odyssey-erp/pharmaproc/internal/platform/cache"
	"github.com/odyssey-erp/pharmaproc/internal/platform/db"
	"github.com/odyssey-erp/pharmaproc/internal/posting"
	"github.com/odyssey-erp/pharmaproc/internal/procurement"
	"github.com/odyssey-erp/pharmaproc/internal/qc"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
	"github.com/odyssey-erp/pharmaproc/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, document locks disabled", slog.Any("error", err))
			redisClient = nil
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
		}
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	trashArchiver := shared.NewTrashArchiver(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	locker := shared.NewLocker(redisClient, cfg.LockTTL, cfg.LockWait)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, logger)
	qcRepo := qc.NewRepository(pool)
	procurementRepo := procurement.NewRepository(pool)

	qcTrigger := qc.NewTrigger(inventoryService, qcRepo, metrics, logger)
	postingTrigger := posting.NewTrigger(inventoryService, qcRepo, idempotencyStore, metrics, logger)
	integrationHooks := integration.NewHooks(qcTrigger, postingTrigger, logger)

	procurementService := procurement.NewService(procurement.ServiceConfig{
		Repo:          procurementRepo,
		Numbers:       numbering.NewCounter(pool),
		Triggers:      integrationHooks,
		Approvals:     approvalRecorder,
		Audit:         auditLogger,
		Trash:         trashArchiver,
		Locker:        locker,
		Logger:        logger,
		NumberRetries: cfg.NumberRetryLimit,
	})

	var notifier qc.AssignmentNotifier
	var jobHandler *jobs.Handler
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		jobClient := jobs.NewClient(redisOpts)
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		notifier = jobClient
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	resolver := qc.NewResolver(procurementRepo, qcRepo, inventoryService, metrics, logger)
	qcService := qc.NewService(qc.ServiceConfig{
		UnitOfWork: procurementRepo,
		Repo:       qcRepo,
		Resolver:   resolver,
		Notifier:   notifier,
		Audit:      auditLogger,
		Metrics:    metrics,
		Logger:     logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ProcurementHandler: procurement.NewHandler(logger, procurementService),
		QCHandler:          qc.NewHandler(logger, qcService),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService),
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
