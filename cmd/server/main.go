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

	"go.uber.org/zap"

	"basreng/backend/internal/cache"
	"basreng/backend/internal/config"
	"basreng/backend/internal/httpapi"
	"basreng/backend/internal/service"
	"basreng/backend/internal/store"
	"basreng/backend/internal/store/memory"
	pgstore "basreng/backend/internal/store/postgres"
	"basreng/backend/internal/txcode"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		if cfg.RunMigrations {
			if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
				logger.Fatal("database migration failed", zap.Error(err))
			}
			logger.Info("database migrations applied")
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository selected", zap.String("repository", "postgres"))
	} else {
		mem, err := memory.NewSeeded(logger)
		if err != nil {
			logger.Fatal("seed in-memory store failed", zap.Error(err))
		}
		repo = mem
		logger.Info("repository selected", zap.String("repository", "memory"))
	}

	receipts := cache.ReceiptCache(cache.NoopReceiptCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReceiptCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop receipt cache", zap.Error(err))
			_ = redisCache.Close()
		} else {
			receipts = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("receipt cache selected", zap.String("cache", "redis"))
		}
	} else {
		logger.Info("receipt cache selected", zap.String("cache", "noop"))
	}

	loc := txcode.LoadLocation(cfg.Timezone)
	codes := txcode.NewGenerator(cfg.BranchCode, loc)
	svc := service.New(repo, receipts, codes, logger, service.Options{
		Location:        loc,
		ReceiptTTL:      time.Duration(cfg.ReceiptCacheTTLSeconds) * time.Second,
		MaxCodeAttempts: cfg.CodeMaxAttempts,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, logger)
	api := httpapi.New(svc, auth, logger, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("POS backend listening",
			zap.String("addr", cfg.Address()),
			zap.String("branch", codes.Branch()),
			zap.String("timezone", loc.String()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func validateConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if !txcode.ValidBranch(cfg.BranchCode) {
		return fmt.Errorf("BRANCH_CODE %q must be 2-12 upper-case letters or digits", cfg.BranchCode)
	}
	return nil
}
