package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/taskchase/backend/api/handler"
	"github.com/taskchase/backend/internal/config"
	"github.com/taskchase/backend/internal/infrastructure/monitor"
	"github.com/taskchase/backend/internal/infrastructure/outbox"
	pgInfra "github.com/taskchase/backend/internal/infrastructure/postgres"
	redisInfra "github.com/taskchase/backend/internal/infrastructure/redis"
	"github.com/taskchase/backend/internal/infrastructure/sink"
	"github.com/taskchase/backend/internal/middleware"
	"github.com/taskchase/backend/internal/router"
	"github.com/taskchase/backend/internal/services"
	"github.com/taskchase/backend/internal/services/lifecycle"
	"github.com/taskchase/backend/pkg/httpcontext"
	"github.com/taskchase/backend/pkg/logger"
	"github.com/taskchase/backend/repository/postgres"
	redisRepo "github.com/taskchase/backend/repository/redis"
	deliveryUC "github.com/taskchase/backend/usecase/delivery"
	taskUC "github.com/taskchase/backend/usecase/task"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pgInfra.Close(pool, zapLogger)
		return nil
	})

	redisClient, err := redisInfra.NewClient(cfg.Redis)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	manager.Register("redis", func(ctx context.Context) error {
		return redisClient.Close()
	})

	outboxStore, err := outbox.Open(cfg.Outbox.Path, "outbox")
	if err != nil {
		zapLogger.Fatal("failed to open outbox store", zap.Error(err))
	}
	manager.Register("outbox", func(ctx context.Context) error {
		return outboxStore.Close()
	})

	mon := monitor.New(pool, redisClient, outboxStore, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	taskRepo := postgres.NewTaskRepository(pool)
	queueRepo := postgres.NewQueueRepository(pool)
	logRepo := postgres.NewDeliveryLogRepository(pool)
	dedupe := redisRepo.NewCallbackDeduper(redisClient, cfg.Sink.DedupeTTL)

	sinkClient := sink.NewClient(sink.Config{
		WebhookURL:      cfg.Sink.WebhookURL,
		Timeout:         cfg.Sink.Timeout,
		CallbackBaseURL: cfg.Sink.CallbackBaseURL,
		CallbackSecret:  cfg.Sink.CallbackSecret,
		CallbackTTL:     cfg.Sink.CallbackTTL,
	}, zapLogger)

	outboxProcessor := services.NewOutboxProcessor(
		outboxStore,
		mon,
		sinkClient,
		zapLogger,
		services.OutboxConfig{
			Interval:   cfg.Outbox.Interval,
			BatchSize:  cfg.Outbox.BatchSize,
			MaxRetries: cfg.Outbox.MaxRetries,
		},
	)
	outboxProcessor.Start()
	manager.Register("outbox_processor", func(ctx context.Context) error {
		outboxProcessor.Stop(ctx)
		return nil
	})

	calendarBridge := services.NewCalendarBridge(outboxProcessor)

	dispatcher := services.NewDispatcher(queueRepo, sinkClient, zapLogger, services.DispatcherConfig{
		Interval:     cfg.Dispatch.Interval,
		BatchSize:    cfg.Dispatch.BatchSize,
		SinkTimeout:  cfg.Sink.Timeout,
		StartupDelay: cfg.Dispatch.StartupDelay,
		DashboardURL: cfg.Dispatch.DashboardURL,
	})
	dispatcher.Start()
	manager.Register("dispatcher", func(ctx context.Context) error {
		dispatcher.Stop(ctx)
		return nil
	})

	taskUseCase := taskUC.New(taskRepo, queueRepo, logRepo, calendarBridge, zapLogger)
	deliveryUseCase := deliveryUC.New(taskRepo, queueRepo, logRepo, dedupe, zapLogger)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Task:     apiHandler.NewTaskHandler(taskUseCase, ctxAdapter, zapLogger),
		Callback: apiHandler.NewCallbackHandler(deliveryUseCase, ctxAdapter, zapLogger),
		Dispatch: apiHandler.NewDispatchHandler(dispatcher, ctxAdapter, zapLogger),
		Health:   apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	callbackAuth := middleware.CallbackAuth(cfg.Sink.CallbackSecret, zapLogger)
	r := router.New(handlers, callbackAuth)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.Shutdown()
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
