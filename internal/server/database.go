package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/labreport/internal/common"
	repo "github.com/joseph-ayodele/labreport/internal/repository"
)

// ConnectDB opens the history store described by cfg and applies the schema.
func ConnectDB(ctx context.Context, cfg common.StoreConfig, logger *slog.Logger) (*repo.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting to history store", "driver", cfg.Driver)
	st, err := repo.Open(ctx, repo.Config{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
		MaxConnIdleTime: cfg.MaxConnIdleTime,
		DialTimeout:     cfg.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to history store", "error", err)
		return nil, err
	}

	logger.Info("successfully connected to history store")
	return st, nil
}

// PingDB pings the store to ensure it's responsive
func PingDB(ctx context.Context, st *repo.Store, logger *slog.Logger, timeout time.Duration) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("pinging history store")
	if err := st.HealthCheck(ctx, timeout); err != nil {
		logger.Error("history store ping failed", "error", err)
		return err
	}
	logger.Debug("history store ping successful")
	return nil
}

// HealthFromStore adapts PingDB to the HTTP health check.
func HealthFromStore(st *repo.Store, logger *slog.Logger) HealthFunc {
	return func(ctx context.Context) error {
		return PingDB(ctx, st, logger, 2*time.Second)
	}
}
