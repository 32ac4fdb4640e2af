// Package app builds the runtime object graph from configuration.
package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/RichardoC/padchat/internal/auth"
	"github.com/RichardoC/padchat/internal/config"
	"github.com/RichardoC/padchat/internal/db"
	"github.com/RichardoC/padchat/internal/dispatch"
	"github.com/RichardoC/padchat/internal/llm"
	"github.com/RichardoC/padchat/internal/retry"
)

type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Dispatcher *dispatch.Dispatcher
	Auth       *auth.Service

	closers []io.Closer
}

type Option func(*options)

type options struct {
	backend dispatch.Backend
}

// WithBackend replaces the LLM backend, mostly for tests.
func WithBackend(b dispatch.Backend) Option {
	return func(o *options) { o.backend = b }
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}

	kv, err := a.openKV(ctx)
	if err != nil {
		return nil, multierr.Append(err, a.Close())
	}

	backend := o.backend
	if backend == nil {
		svc, err := llm.New(cfg.LLMBaseURL, cfg.LLMToken, cfg.LLMModel, logger.Named("llm"))
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to initialize LLM service: %w", err), a.Close())
		}
		backend = svc
	}

	persistence := db.NewPersistence(kv, logger.Named("persistence"))
	a.Dispatcher = dispatch.New(backend, persistence, logger.Named("dispatch"),
		dispatch.WithTimeout(cfg.ChatTimeout))
	a.Auth = auth.NewService(kv, logger.Named("auth"))

	return a, nil
}

func (a *App) openKV(ctx context.Context) (db.KV, error) {
	switch a.Config.Storage {
	case config.StorageMemory:
		return db.NewMemory(), nil

	case config.StorageRedis:
		r := db.NewRedis(a.Config.RedisAddr, a.Config.RedisPassword, a.Config.RedisDB, a.Config.RedisTTL)
		a.closers = append(a.closers, r)
		_, err := retry.WithRetry(ctx, retry.DefaultAttempts, retry.DefaultDelay, func() (struct{}, error) {
			return retry.WithTimeout(ctx, a.Config.RequestTimeout, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, r.Ping(ctx)
			})
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", a.Config.RedisAddr, err)
		}
		a.Logger.Info("Connected to redis", zap.String("addr", a.Config.RedisAddr))
		return r, nil

	default:
		database, err := db.New(a.Config.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database %s: %w", a.Config.SQLitePath, err)
		}
		a.closers = append(a.closers, database)
		return database, nil
	}
}

// Close releases storage connections.
func (a *App) Close() error {
	var err error
	for _, c := range a.closers {
		err = multierr.Append(err, c.Close())
	}
	a.closers = nil
	return err
}
