package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// Default pool bounds applied when Config leaves them unset.
const (
	DefaultMinConns = 1
	DefaultMaxConns = 10
)

// Config describes how the connection pool is built.
type Config struct {
	DSN              string
	MinConns         int
	MaxConns         int
	AcquireTimeout   time.Duration
	StatementTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns < 0 {
		c.MinConns = 0
	}
	return c
}

// Validate checks the pool bounds.
func (c Config) Validate() error {
	if c.DSN == "" {
		return errors.New("platform/db: dsn required")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("platform/db: min conns %d exceeds max conns %d", c.MinConns, c.MaxConns)
	}
	return nil
}

// Open creates the PostgreSQL connection pool and eagerly establishes MinConns connections.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	config, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}
	config.MinConns = int32(cfg.MinConns)
	config.MaxConns = int32(cfg.MaxConns)
	if cfg.StatementTimeout > 0 {
		config.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}

	if err := warm(ctx, pool, cfg.MinConns); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: warm pool: %w", err)
	}

	return &Pool{pool: pool, acquireTimeout: cfg.AcquireTimeout}, nil
}

// warm holds n connections at once so that n distinct connections get established.
func warm(ctx context.Context, pool *pgxpool.Pool, n int) error {
	if n <= 0 {
		return nil
	}
	conns := make([]*pgxpool.Conn, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := range conns {
		g.Go(func() error {
			conn, err := pool.Acquire(gctx)
			if err != nil {
				return err
			}
			conns[i] = conn
			return nil
		})
	}
	err := g.Wait()
	for _, conn := range conns {
		if conn != nil {
			conn.Release()
		}
	}
	return err
}

// Manager owns the process-wide pool. Initialize is idempotent.
type Manager struct {
	cfg  Config
	mu   sync.Mutex
	pool *Pool
}

// NewManager returns a Manager for cfg. No connection is opened until Initialize.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Initialize opens the pool on first call; later calls return the same pool.
func (m *Manager) Initialize(ctx context.Context) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool != nil {
		return m.pool, nil
	}
	pool, err := Open(ctx, m.cfg)
	if err != nil {
		return nil, err
	}
	m.pool = pool
	return pool, nil
}

// Pool returns the initialized pool.
func (m *Manager) Pool() (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool == nil {
		return nil, ErrPoolNotInitialized
	}
	return m.pool, nil
}

// Close shuts the pool down. Acquire on the closed pool fails with ErrPoolClosed;
// a later Initialize opens a new pool.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool != nil {
		m.pool.Close()
		m.pool = nil
	}
}
