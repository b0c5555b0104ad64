package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/filevault/internal/auth"
	"github.com/filevault/internal/config"
	"github.com/filevault/internal/database"
	"github.com/filevault/internal/files"
	"github.com/filevault/internal/folder"
	"github.com/filevault/internal/ratelimit"
	"github.com/filevault/internal/repository"
	"github.com/filevault/internal/storage"
)

// app holds every long-lived dependency of the server.
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	db      *database.DB
	store   storage.Gateway
	limiter ratelimit.Limiter
	auth    *auth.Service
	folders *folder.Service
	files   *files.Service

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("close resource")
		}
	}
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, newLogger(cfg.Logging), nil
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	dialect := database.Dialect(cfg.Database.Type)
	if dialect == database.DialectSQLite && cfg.Database.SQLite.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLite.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	return database.Open(ctx, dialect, cfg.GetDSN())
}

func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	logger.WithField("type", cfg.Database.Type).Info("Connected to database")

	if err := db.Migrate(ctx); err != nil {
		a.Close()
		return nil, err
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create storage gateway: %w", err)
	}
	a.store = store
	logger.WithField("type", cfg.Storage.Type).Info("Storage gateway initialized")

	limiter, err := newLimiter(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.limiter = limiter

	users := repository.NewUserRepository(db)
	folderRepo := repository.NewFolderRepository(db)
	fileRepo := repository.NewFileRepository(db)

	tokens := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessExpiry:  cfg.Auth.AccessExpiry,
		RefreshExpiry: cfg.Auth.RefreshExpiry,
	})
	a.auth = auth.NewService(users, tokens, cfg.Auth.BcryptCost, logger)
	a.folders = folder.NewService(db, folderRepo, fileRepo, logger)
	a.files = files.NewService(db, fileRepo, folderRepo, store, files.Options{
		MaxFiles:    cfg.Server.MaxUploadFiles,
		MaxFileSize: cfg.Server.MaxUploadSize,
		Concurrency: cfg.Server.UploadConcurrency,
	}, logger)

	return a, nil
}

func newLimiter(ctx context.Context, cfg *config.Config, a *app) (ratelimit.Limiter, error) {
	perMinute := cfg.RateLimit.AuthPerMinute
	if perMinute <= 0 {
		perMinute = 20
	}

	if cfg.Cache.Type != "redis" {
		return ratelimit.NewMemoryLimiter(perMinute, time.Minute), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Cache.Redis.Address,
		Password:     cfg.Cache.Redis.Password,
		DB:           cfg.Cache.Redis.DB,
		DialTimeout:  cfg.Cache.Redis.Timeout,
		ReadTimeout:  cfg.Cache.Redis.Timeout,
		WriteTimeout: cfg.Cache.Redis.Timeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, rdb.Close)
	a.logger.Info("Connected to Redis")

	return ratelimit.NewRedisLimiter(rdb, perMinute, time.Minute), nil
}
