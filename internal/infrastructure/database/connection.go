package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/compilo/compilo-backend/internal/infrastructure/config"
)

// ConnectionPool holds the primary write pool and an optional read replica.
// Reads that tolerate slightly stale data (listings, statistics, reference
// data) may use Replica(); everything else goes through Primary().
type ConnectionPool struct {
	primary *pgxpool.Pool
	replica *pgxpool.Pool
	logger  *zap.Logger
}

// NewConnectionPool connects to the primary and, when configured, the read
// replica. Both pools are pinged before being returned.
func NewConnectionPool(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*ConnectionPool, error) {
	primary, err := newPool(ctx, cfg.URL, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to primary database: %w", err)
	}

	pool := &ConnectionPool{primary: primary, logger: logger}

	if cfg.ReplicaURL != "" {
		replica, err := newPool(ctx, cfg.ReplicaURL, cfg)
		if err != nil {
			primary.Close()
			return nil, fmt.Errorf("connecting to replica database: %w", err)
		}
		pool.replica = replica
	}

	logger.Info("database pools established",
		zap.Int("max_conns", cfg.MaxOpenConns),
		zap.Bool("replica", pool.replica != nil),
	)
	return pool, nil
}

func newPool(ctx context.Context, url string, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// Primary returns the write pool.
func (p *ConnectionPool) Primary() *pgxpool.Pool {
	return p.primary
}

// Replica returns the read pool, falling back to the primary when no replica
// is configured.
func (p *ConnectionPool) Replica() *pgxpool.Pool {
	if p.replica != nil {
		return p.replica
	}
	return p.primary
}

// Transaction runs fn inside a transaction on the primary, committing on nil
// and rolling back on error or panic.
func (p *ConnectionPool) Transaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, p.primary, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, tx)
	})
}

// HealthCheck pings both pools.
func (p *ConnectionPool) HealthCheck(ctx context.Context) error {
	if err := p.primary.Ping(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}
	if p.replica != nil {
		if err := p.replica.Ping(ctx); err != nil {
			return fmt.Errorf("replica unhealthy: %w", err)
		}
	}
	return nil
}

// Close releases both pools.
func (p *ConnectionPool) Close() {
	p.primary.Close()
	if p.replica != nil {
		p.replica.Close()
	}
}
