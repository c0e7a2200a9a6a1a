package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// releaseResetTimeout bounds the search_path reset run when a connection
// returns to the pool. A reset that cannot finish within it marks the
// connection for destruction instead of stalling the releasing goroutine.
const releaseResetTimeout = 3 * time.Second

// Connect establishes a PostgreSQL connection pool, retrying with linear
// backoff so service startup survives transient network failures.
//
// Every connection returned to the pool is reset to cfg.ResetSchema first.
// The active search_path is connection state, not request state; the reset
// hook guarantees that no checkout can observe a tenant schema left behind
// by an earlier request, whatever the middleware did or failed to do.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	connConfig, err := buildPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	for i := range cfg.RetryAttempts {
		pool, err := pgxpool.NewWithConfig(ctx, connConfig)
		if err != nil {
			time.Sleep(time.Duration(i+1) * cfg.RetryInterval)
			continue
		}

		// Ping to surface authentication and permission problems now
		// rather than on the first query.
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			time.Sleep(time.Duration(i+1) * cfg.RetryInterval)
			continue
		}

		return pool, nil
	}

	return nil, ErrFailedToOpenDBConnection
}

func buildPoolConfig(cfg Config) (*pgxpool.Config, error) {
	connConfig, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseDBConfig, err)
	}
	connConfig.MaxConns = cfg.MaxOpenConns
	connConfig.MinConns = cfg.MaxIdleConns
	connConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	connConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	connConfig.MaxConnLifetime = cfg.MaxConnLifetime

	if reset := cfg.ResetSchema; reset != "" {
		sql := "SET search_path TO " + pgx.Identifier{reset}.Sanitize()
		connConfig.AfterRelease = func(conn *pgx.Conn) bool {
			ctx, cancel := context.WithTimeout(context.Background(), releaseResetTimeout)
			defer cancel()
			// Returning false destroys the connection: one that
			// cannot be reset must never serve another request.
			_, err := conn.Exec(ctx, sql)
			return err == nil
		}
	}

	return connConfig, nil
}
