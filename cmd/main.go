package main

import (
	"context"
	"errors"
	"log"
	"marketchat/backend/internal/api/handler"
	"marketchat/backend/internal/auth"
	"marketchat/backend/internal/chathub"
	"marketchat/backend/internal/codec"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/localization"
	"marketchat/backend/internal/logging"
	"marketchat/backend/internal/storage"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := codec.New(cfg.Encryption.Key, cfg.Encryption.Algorithm)
	if err != nil {
		return err
	}

	db, err := storage.OpenDatabase(cfg.Database)
	if err != nil {
		return err
	}
	if err := storage.Migrate(db); err != nil {
		return err
	}

	rdb, err := storage.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	s := storage.NewStorageService(db, rdb, cfg.Redis.Channel)
	store := storage.NewResilientStore(s, storage.RetryPolicy{
		Timeout:  cfg.Chat.StorageTimeout,
		Attempts: cfg.Chat.StorageRetries,
		Backoff:  cfg.Chat.RetryBackoff,
	}, logger)

	localizer, err := localization.NewLocalizer(cfg.Chat.LocalesDir)
	if err != nil {
		return err
	}

	opts := chathub.Options{ReplayPolicy: cfg.Chat.ReplayPolicy, Localizer: localizer}
	if rdb != nil {
		opts.PubSub = s
	}
	hub := chathub.NewManagerService(store, c, opts, logger)

	hubErr := make(chan error, 1)
	go func() { hubErr <- hub.Run(ctx) }()

	var issuer *auth.Issuer
	if cfg.AuthEnabled() {
		issuer = auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handler.NewHandler(hub, s, s, handler.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SendBuffer:     cfg.Chat.SendBuffer,
		Issuer:         issuer,
		BaseContext:    ctx,
	}, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", server.Addr),
			zap.String("db_driver", cfg.Database.Driver),
			zap.Bool("redis_fanout", rdb != nil),
			zap.Bool("auth", issuer != nil),
			zap.String("cipher", c.Algorithm()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		return err
	case err := <-hubErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGracePeriod)
	defer cancel()

	hub.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("server stopped")
	return nil
}
