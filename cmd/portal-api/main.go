package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/campuslink/portal/internal/auth/jwt"
	"github.com/campuslink/portal/internal/chatrooms"
	"github.com/campuslink/portal/internal/common/config"
	"github.com/campuslink/portal/internal/common/logging"
	"github.com/campuslink/portal/internal/contacts"
	"github.com/campuslink/portal/internal/conversations"
	"github.com/campuslink/portal/internal/infra"
	"github.com/campuslink/portal/internal/infra/cache"
	"github.com/campuslink/portal/internal/infra/db"
	"github.com/campuslink/portal/internal/infra/migrations"
	"github.com/campuslink/portal/internal/messages"
	"github.com/campuslink/portal/internal/notify"
	"github.com/campuslink/portal/internal/observability"
	"github.com/campuslink/portal/internal/principal"
	"github.com/campuslink/portal/internal/server"
	"github.com/campuslink/portal/internal/stats"
	"github.com/campuslink/portal/internal/storage"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.Init(logging.Options{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		Output:   cfg.Logging.Output,
		File:     cfg.Logging.EnableFile,
		FilePath: cfg.Logging.FilePath,
	})
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := migrations.Run(ctx, database.Pool); err != nil {
		return err
	}
	logger.Info("migrations applied")

	var redisCache *cache.Cache
	if cfg.Redis.Enabled {
		redisCache, err = cache.New(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache", zap.Error(err))
		} else {
			defer redisCache.Close()
		}
	}

	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Start(ctx, cfg.Metrics.Port); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	var dispatcher notify.Dispatcher = notify.NopDispatcher{}
	var webhook *notify.WebhookDispatcher
	if cfg.Notification.WebhookURL != "" {
		webhook = notify.NewWebhookDispatcher(
			cfg.Notification.WebhookURL,
			cfg.Notification.QueueSize,
			cfg.Notification.Workers,
			cfg.Notification.Timeout,
			logger,
			metrics,
		)
		dispatcher = webhook
	} else {
		logger.Info("no notification webhook configured, dispatch disabled")
	}

	var directory principal.Directory
	if cfg.Directory.BaseURL != "" {
		directory = principal.NewHTTPDirectory(cfg.Directory.BaseURL, cfg.Directory.Timeout)
	} else {
		logger.Warn("no directory configured, participant resolution will fail")
		directory = principal.NewStaticDirectory()
	}

	ids := infra.NewSnowflakeGenerator(int64(os.Getpid() % 1024))

	convRepo := conversations.NewRepository(database.Pool, redisCache)
	msgRepo := messages.NewRepository(database.Pool)
	roomRepo := chatrooms.NewRepository(database.Pool)
	contactRepo := contacts.NewRepository(database.Pool)
	statsRepo := stats.NewRepository(database.Pool)

	msgService := messages.NewService(msgRepo, convRepo, ids, logger)
	convService := conversations.NewService(convRepo, msgService, msgRepo, directory, dispatcher, metrics, logger)
	roomService := chatrooms.NewService(roomRepo, logger)
	contactService := contacts.NewService(contactRepo, directory, logger)

	files, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return err
	}

	health := observability.NewHealthChecker(logger, version)
	health.RegisterCheck("database", database.Health)
	if redisCache != nil {
		health.RegisterCheck("redis", redisCache.Ping)
	}

	srv := server.New(server.Options{
		Config:  cfg,
		Logger:  logger,
		JWT:     jwt.NewManager(cfg.Auth.JWTSecret),
		Metrics: metrics,
		Health:  health,
		Handlers: []server.Registrar{
			conversations.NewHandler(convService),
			messages.NewHandler(msgService),
			chatrooms.NewHandler(roomService),
			contacts.NewHandler(contactService),
			stats.NewHandler(statsRepo),
			storage.NewHandler(files),
		},
		FilesDir: files.Dir(),
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	if webhook != nil {
		if err := webhook.Shutdown(shutdownCtx); err != nil {
			logger.Error("dispatcher drain failed", zap.Error(err))
		}
	}

	cancel()
	logger.Info("shutdown complete")
	return nil
}
