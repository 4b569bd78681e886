// Package app wires the service together and runs it until ctx is done.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/vadimbarashkov/shortlink/internal/config"
	"github.com/vadimbarashkov/shortlink/internal/migrations"
	"github.com/vadimbarashkov/shortlink/internal/ratelimit"
	"github.com/vadimbarashkov/shortlink/internal/usecase"
	"github.com/vadimbarashkov/shortlink/pkg/postgres"
	"github.com/vadimbarashkov/shortlink/pkg/redis"
	"golang.org/x/sync/errgroup"

	cachemem "github.com/vadimbarashkov/shortlink/internal/adapter/cache/memory"
	cacheredis "github.com/vadimbarashkov/shortlink/internal/adapter/cache/redis"
	deliveryhttp "github.com/vadimbarashkov/shortlink/internal/adapter/delivery/http"
	repomem "github.com/vadimbarashkov/shortlink/internal/adapter/repository/memory"
	repopg "github.com/vadimbarashkov/shortlink/internal/adapter/repository/postgres"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
)

type deps struct {
	useCase *usecase.URLUseCase
	limiter *ratelimit.Limiter
	close   func()
}

func useCaseConfig(cfg *config.Config) usecase.Config {
	return usecase.Config{
		ShortCodeLength: cfg.ShortCodeLength,
		MaxRetries:      cfg.Issuance.MaxRetries,
		BaseDelay:       cfg.Issuance.BaseDelay,
		StoreTimeout:    cfg.Timeouts.Store,
		CacheTimeout:    cfg.Timeouts.Cache,
	}
}

func newExternalDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deps, error) {
	const op = "app.newExternalDeps"

	db, err := postgres.New(
		ctx,
		cfg.Postgres.DSN(),
		postgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}

	if err := postgres.RunMigrations(migrations.FS, cfg.Postgres.DSN()); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	client, err := redis.New(
		ctx,
		cfg.Redis.Addr(),
		redis.WithPassword(cfg.Redis.Password),
		redis.WithDB(cfg.Redis.DB),
		redis.WithDialTimeout(cfg.Redis.DialTimeout),
		redis.WithReadTimeout(cfg.Redis.ReadTimeout),
		redis.WithWriteTimeout(cfg.Redis.WriteTimeout),
		redis.WithPoolSize(cfg.Redis.PoolSize),
		redis.WithMinIdleConns(cfg.Redis.MinIdleConns),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: failed to connect to redis: %w", op, err)
	}

	cache := cacheredis.New(client, cfg.Cache.TTL)

	return &deps{
		useCase: usecase.New(useCaseConfig(cfg), repopg.NewURLRepository(db), cache, logger),
		limiter: ratelimit.New(cache, cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.Timeouts.Cache),
		close: func() {
			if err := client.Close(); err != nil {
				logger.Error("failed to close redis client", slog.Any("err", err))
			}
			if err := db.Close(); err != nil {
				logger.Error("failed to close database", slog.Any("err", err))
			}
		},
	}, nil
}

func newMemoryDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) *deps {
	cache := cachemem.New(cfg.Cache.TTL)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	go cache.RunSweeper(sweepCtx, sweepInterval)

	return &deps{
		useCase: usecase.New(useCaseConfig(cfg), repomem.NewURLRepository(), cache, logger),
		limiter: ratelimit.New(cache, cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.Timeouts.Cache),
		close:   stopSweeper,
	}
}

func Run(ctx context.Context, cfg *config.Config, logger *httplog.Logger) error {
	const op = "app.Run"

	var d *deps

	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("using in-memory storage, data is lost on shutdown")
		d = newMemoryDeps(ctx, cfg, logger.Logger)
	default:
		var err error
		d, err = newExternalDeps(ctx, cfg, logger.Logger)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	defer d.close()

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        deliveryhttp.NewRouter(logger, d.useCase, d.limiter, cfg.BaseURL),
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		logger.Info("starting server", slog.String("addr", server.Addr), slog.String("env", cfg.Env))

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := shutdown(shutdownCtx, server, d.useCase); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		logger.Info("server stopped")

		return nil
	})

	return g.Wait()
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

type closer interface {
	Close(ctx context.Context) error
}

// shutdown stops the server and drains pending click updates even when the
// server did not stop cleanly.
func shutdown(ctx context.Context, server shutdowner, useCase closer) error {
	var errs []error

	if err := server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shutdown server: %w", err))
	}

	if err := useCase.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush click updates: %w", err))
	}

	return errors.Join(errs...)
}
