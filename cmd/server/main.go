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

	"github.com/gin-gonic/gin"
	"github.com/sinchita-code/quickchat/internal/api"
	"github.com/sinchita-code/quickchat/internal/auth"
	"github.com/sinchita-code/quickchat/internal/chat"
	"github.com/sinchita-code/quickchat/internal/config"
	"github.com/sinchita-code/quickchat/internal/db"
	"github.com/sinchita-code/quickchat/internal/media"
	"github.com/sinchita-code/quickchat/internal/observ"
	"github.com/sinchita-code/quickchat/internal/presence"
	"github.com/sinchita-code/quickchat/internal/repository"
	"github.com/sinchita-code/quickchat/internal/repository/memory"
	"github.com/sinchita-code/quickchat/internal/repository/postgres"
	"github.com/sinchita-code/quickchat/internal/ws"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage. Postgres is the default; memory is for local runs and demos.
	var (
		userRepo    repository.UserRepository
		messageRepo repository.MessageRepository
		health      func(context.Context) error
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		userRepo = memory.NewUserStore()
		messageRepo = memory.NewMessageStore()
	default:
		database, err := db.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()

		if err := database.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}

		pool := database.Pool()
		userRepo = postgres.NewUserStore(pool)
		messageRepo = postgres.NewMessageStore(pool)
		health = database.Health
	}

	var lastSeen presence.LastSeenStore = presence.NopLastSeen{}
	if cfg.RedisURL != "" {
		rls, err := presence.NewRedisLastSeen(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rls.Close()
		lastSeen = rls
		logger.Info("last-seen tracking enabled")
	}

	var (
		uploads media.Store
		files   media.Opener
	)
	if cfg.MongoURI != "" {
		mongo, err := media.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return fmt.Errorf("connect to mongodb: %w", err)
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := mongo.Close(closeCtx); err != nil {
				logger.Warn("mongodb disconnect failed", zap.Error(err))
			}
		}()
		gs := media.NewGridFSStore(mongo.Bucket, cfg.PublicBaseURL)
		uploads, files = gs, gs
	} else {
		logger.Warn("MONGO_URI not set, keeping uploads in memory")
		ms := media.NewMemoryStore(cfg.PublicBaseURL)
		uploads, files = ms, ms
	}

	registry := presence.NewRegistry()
	hub := ws.NewHub(registry, lastSeen, logger)
	chatService := chat.NewService(userRepo, messageRepo, uploads, registry, lastSeen, logger, cfg.MaxImageBytes)

	router := api.NewRouter(api.Deps{
		Users:         userRepo,
		Chat:          chatService,
		Tokens:        auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL),
		Media:         uploads,
		Files:         files,
		Hub:           hub,
		MaxImageBytes: cfg.MaxImageBytes,
		Logger:        logger,
		Health:        health,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting quickchat",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
