// Package pg opens the Postgres pool behind the room store.
package pg

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultApplicationName = "presence-service"
	// seat updates hold the room row with SELECT ... FOR UPDATE; a waiter gives up after this
	defaultLockTimeout = 5 * time.Second
	pingTimeout        = 5 * time.Second
)

type Config struct {
	DSN               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ApplicationName   string
	LockTimeout       time.Duration
	StatementTimeout  time.Duration
}

// NewPool opens the pool and pings it once, so a bad DSN fails at startup.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("pg.NewWithConfig: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg.Ping: %w", err)
	}

	return pool, nil
}

func poolConfig(cfg Config) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg.ParseConfig: %w", err)
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	params := pc.ConnConfig.RuntimeParams
	if params == nil {
		params = map[string]string{}
		pc.ConnConfig.RuntimeParams = params
	}
	params["application_name"] = defaultApplicationName
	if cfg.ApplicationName != "" {
		params["application_name"] = cfg.ApplicationName
	}
	lock := defaultLockTimeout
	if cfg.LockTimeout > 0 {
		lock = cfg.LockTimeout
	}
	params["lock_timeout"] = strconv.FormatInt(lock.Milliseconds(), 10)
	if cfg.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}

	return pc, nil
}

// Check is a health probe for the pool. The error carries the pool occupancy so a failing
// check shows whether seat updates were queueing for connections.
func Check(pool *pgxpool.Pool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			st := pool.Stat()
			return fmt.Errorf("postgres ping (acquired %d/%d, waiting acquires %d): %w",
				st.AcquiredConns(), st.MaxConns(), st.EmptyAcquireCount(), err)
		}
		return nil
	}
}
