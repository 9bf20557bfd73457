package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/lab_scheduler/internal/app"
	"github.com/Freeeeeet/lab_scheduler/internal/config"
	"github.com/Freeeeeet/lab_scheduler/internal/controller/httpapi"
	"github.com/Freeeeeet/lab_scheduler/internal/notify"
	"github.com/Freeeeeet/lab_scheduler/internal/repository"
	"github.com/Freeeeeet/lab_scheduler/internal/service"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)

	defer logger.Sync()

	logger.Sugar().Infow("Starting lab scheduler",
		"environment", cfg.Environment,
		"http_addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.GetDBDSN())
	if err != nil {
		logger.Fatal("Failed to create connection pool", zap.Error(err))
	}
	defer pool.Close()

	migrator, err := app.NewMigrator(pool, cfg.MigrationsDir, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	migrator.Close()

	// Redis опционален: без него блок-лист уведомлений пуст
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Failed to connect to redis, notification settings disabled", zap.Error(err))
			rdb = nil
		}
	}

	timeslotRepo := repository.NewTimeslotRepository(pool)
	eventRepo := repository.NewEventRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	settingsRepo := repository.NewSettingsRepository(rdb, logger)

	// Диспетчер уведомлений: Telegram при наличии токена, иначе только лог
	var dispatcher notify.Dispatcher = notify.NewLogDispatcher(logger)
	if cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken)
		if err != nil {
			logger.Warn("Failed to create telegram bot, notifications go to log only", zap.Error(err))
		} else {
			dispatcher = notify.Multi{
				notify.NewTelegramDispatcher(b, userRepo, logger),
				notify.NewLogDispatcher(logger),
			}
		}
	}

	resolver := service.NewOwnerResolver(eventRepo)
	timeslotService := service.NewTimeslotService(
		timeslotRepo,
		eventRepo,
		userRepo,
		settingsRepo,
		resolver,
		dispatcher,
		logger,
	)

	handler := httpapi.NewTimeslotHandler(timeslotService, logger)
	router := httpapi.NewRouter(handler, cfg.Environment, logger)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}
