package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"dustPool/internal/config"
	"dustPool/internal/pool"
	"dustPool/internal/settlement"
	"dustPool/internal/storage"
	"dustPool/internal/storage/postgres"
)

// buildSettler assembles the settlement chain from config: an HTTP settler
// when an endpoint is set, wrapped by a recorder when a journal or Postgres
// ledger is configured. The returned func releases held resources.
func buildSettler(ctx context.Context, cfg config.SettlementConfig, logger *zap.Logger) (pool.Settler, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var next pool.Settler
	if cfg.Endpoint != "" {
		signer, err := settlement.NewSigner(cfg.SigningKey)
		if err != nil {
			return nil, cleanup, err
		}
		httpSettler, err := settlement.NewHTTPSettler(settlement.HTTPConfig{
			Endpoint:        cfg.Endpoint,
			Timeout:         cfg.Timeout,
			MaxRetries:      cfg.MaxRetries,
			RetryBackoff:    cfg.RetryBackoff,
			BreakerFailures: cfg.BreakerFailures,
			BreakerCooldown: cfg.BreakerCooldown,
		}, signer, logger)
		if err != nil {
			return nil, cleanup, err
		}
		logger.Info("settlement endpoint",
			zap.String("endpoint", cfg.Endpoint),
			zap.String("signer", signer.Address().Hex()),
		)
		next = httpSettler
	}

	var sinks storage.Multi
	if cfg.Journal != "" {
		journal := storage.NewJsonlStorage(cfg.Journal)
		closers = append(closers, func() {
			if err := journal.Close(); err != nil {
				logger.Warn("close journal", zap.String("path", cfg.Journal), zap.Error(err))
			}
		})
		sinks = append(sinks, journal)
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, func() {}, err
		}
		sinks = append(sinks, store)
	}

	switch {
	case len(sinks) > 0:
		recorder := settlement.NewRecorder(next, sinks, logger)
		logger.Info("settlement ledger", zap.String("instance", recorder.Instance()), zap.Int("sinks", len(sinks)))
		return recorder, cleanup, nil
	case next != nil:
		return next, cleanup, nil
	default:
		logger.Warn("no settlement endpoint or ledger configured; settlements are logged only")
		return logSettler(logger), cleanup, nil
	}
}

func logSettler(logger *zap.Logger) pool.Settler {
	return pool.SettlerFunc(func(_ context.Context, req pool.Request) error {
		fields := []zap.Field{zap.String("tag", req.Tag), zap.Uint64("seq", req.Seq)}
		for k, v := range req.Payload {
			fields = append(fields, zap.String(k, v.String()))
		}
		logger.Info("settlement", fields...)
		return nil
	})
}
