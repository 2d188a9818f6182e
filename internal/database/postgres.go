package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-quiz/internal/config"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// NewPostgresPool creates a pool and waits for the database to answer.
// Every session runs in UTC so timestamps compared in SQL match the Unix
// seconds the attempt engine works with.
func NewPostgresPool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxDBConns
	// The sweep and both workers hold a connection each while running.
	poolCfg.MinConns = min(cfg.MaxDBConns, 3)
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "exstem-quiz"
	poolCfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := waitFor(ctx, log, "postgres", pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info().
		Str("database", poolCfg.ConnConfig.Database).
		Int32("max_conns", poolCfg.MaxConns).
		Msg("PostgreSQL connected")

	return pool, nil
}

// waitFor retries ping until it succeeds, ctx ends or attempts run out.
func waitFor(ctx context.Context, log zerolog.Logger, name string, ping func(context.Context) error) error {
	var err error
	for i := 1; i <= connectAttempts; i++ {
		if err = ping(ctx); err == nil {
			return nil
		}
		if i == connectAttempts {
			break
		}
		log.Warn().Err(err).Str("backend", name).Int("attempt", i).Msg("Backend not ready, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectBackoff * time.Duration(i)):
		}
	}
	return err
}
