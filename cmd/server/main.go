package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lalith-99/echodesk/internal/api"
	"github.com/lalith-99/echodesk/internal/chat"
	"github.com/lalith-99/echodesk/internal/config"
	"github.com/lalith-99/echodesk/internal/db"
	"github.com/lalith-99/echodesk/internal/hub"
	"github.com/lalith-99/echodesk/internal/notify"
	"github.com/lalith-99/echodesk/internal/observ"
	"github.com/lalith-99/echodesk/internal/presence"
	"github.com/lalith-99/echodesk/internal/ratelimit"
	"github.com/lalith-99/echodesk/internal/repository/postgres"
	"github.com/lalith-99/echodesk/internal/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Load config
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---------------------------------------------------------------
	// 2. Create logger
	// ---------------------------------------------------------------
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// ctx is cancelled on SIGINT/SIGTERM and drives shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 3. Connect to Postgres and Redis
	//
	// Either being unreachable at startup is fatal: the service refuses
	// to start rather than failing every request.
	// ---------------------------------------------------------------
	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}

	// ---------------------------------------------------------------
	// 4. Repositories, registry and services
	//
	// Each store gets the same pool. The registry is built once here and
	// handed to everything that broadcasts.
	// ---------------------------------------------------------------
	pool := database.Pool()
	roomRepo := postgres.NewRoomStore(pool)
	messageRepo := postgres.NewMessageStore(pool)
	notificationRepo := postgres.NewNotificationStore(pool)
	userRepo := postgres.NewUserStore(pool)
	adminRepo := postgres.NewAdminStore(pool)

	registry := hub.NewRegistry(logger)

	var limiter chat.Limiter
	if cfg.MessageRateLimit > 0 {
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.MessageRateLimit, time.Minute)
	}

	chatSvc := chat.New(chat.Options{
		Rooms:        roomRepo,
		Messages:     messageRepo,
		Admins:       adminRepo,
		Conns:        registry,
		Limiter:      limiter,
		QueryTimeout: cfg.QueryTimeout,
		Logger:       logger,
	})
	notifySvc := notify.New(notify.Options{
		Notifications: notificationRepo,
		Users:         userRepo,
		Conns:         registry,
		WelcomeWindow: cfg.WelcomeThrottle,
		QueryTimeout:  cfg.QueryTimeout,
		Logger:        logger,
	})
	sessions := session.NewHandler(registry, chatSvc, notifySvc, cfg.OutboxSize, logger)

	sweeper := presence.NewSweeper(registry, cfg.SweepInterval, logger)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	// ---------------------------------------------------------------
	// 5. HTTP server
	// ---------------------------------------------------------------
	router := api.NewRouter(api.Handlers{
		Health:        api.NewHealthHandler(database, logger),
		Notifications: api.NewNotificationHandler(notifySvc, logger),
		Rooms:         api.NewRoomHandler(chatSvc, logger),
		WS:            sessions.ServeWS,
	}, cfg.JWTSecret, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting echodesk",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are not tracked by Shutdown.
		for _, c := range registry.Snapshot() {
			c.Close()
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
