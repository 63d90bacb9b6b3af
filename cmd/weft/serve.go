package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/weft-api/weft/internal/config"
	"github.com/weft-api/weft/internal/hooks"
	"github.com/weft-api/weft/internal/store"
	"github.com/weft-api/weft/internal/web/auth"
	"github.com/weft-api/weft/internal/web/cache"
	"github.com/weft-api/weft/internal/web/middleware"
	"github.com/weft-api/weft/internal/web/router"
	"github.com/weft-api/weft/internal/web/server"
	"github.com/weft-api/weft/internal/web/stream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Weft API server",
	Long:  "Load weft.yml, connect to the database, and serve the registered resources.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(".")
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		defer logger.Sync()

		registry, err := buildRegistry()
		if err != nil {
			return fmt.Errorf("invalid resource model: %w", err)
		}

		db, err := openDatabase(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		st := store.New(db, registry, logger)

		var responseCache *cache.Cache
		if cfg.Redis.Addr != "" {
			cacheConfig := cache.DefaultConfig()
			if cfg.Redis.TTL > 0 {
				cacheConfig.DefaultTTL = cfg.Redis.TTL
			}
			responseCache, err = cache.Open(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cacheConfig)
			if err != nil {
				return err
			}
			logger.Info("response cache enabled", zap.String("addr", cfg.Redis.Addr))
		}

		hub := stream.NewHub(logger)
		executor := hooks.NewExecutor(registry, buildHooks(logger), st, logger)

		middlewares := []middleware.Middleware{
			middleware.RequestID(),
			middleware.Logging(logger),
			middleware.Recovery(logger),
		}
		if cfg.Auth.Secret != "" {
			middlewares = append(middlewares, middleware.Auth(auth.NewService(cfg.Auth.Secret, cfg.Auth.TokenTTL)))
			logger.Info("bearer token auth enabled")
		}

		handler := router.New(router.Options{
			Registry:    registry,
			Store:       st,
			Executor:    executor,
			Cache:       responseCache,
			Hub:         hub,
			Logger:      logger,
			Middlewares: middlewares,
		})

		serverConfig := server.DefaultConfig(handler)
		serverConfig.Address = cfg.Server.Address()
		serverConfig.Database = server.DefaultDatabaseConfig(db)
		serverConfig.Logger = logger

		srv, err := server.New(serverConfig)
		if err != nil {
			return err
		}
		srv.OnShutdown(func(ctx context.Context) error { return db.Close() })
		if responseCache != nil {
			srv.OnShutdown(func(ctx context.Context) error { return responseCache.Close() })
		}

		logger.Info("starting weft",
			zap.String("project", cfg.ProjectName),
			zap.String("address", cfg.Server.Address()),
			zap.Strings("resources", registry.List()))
		return srv.Run()
	},
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "sqlite":
		return store.OpenSQLite(cfg.URL)
	default:
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return store.OpenPostgres(openCtx, cfg.URL)
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	return zapConfig.Build()
}
