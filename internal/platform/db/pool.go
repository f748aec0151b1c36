package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is a bounded set of reusable PostgreSQL connections.
type Pool struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
	closed         atomic.Bool
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Leased            int32
	Idle              int32
	Total             int32
	Max               int32
	AcquireCount      int64
	EmptyAcquireCount int64
}

// Acquire blocks until a connection is idle or a new one can be opened under the
// max size. Every successful Acquire must be paired with exactly one Release.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if p.closed.Load() {
		return nil, wrapErr("acquire", ErrPoolClosed)
	}

	acquireCtx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	raw, err := p.pool.Acquire(acquireCtx)
	if err != nil {
		switch {
		case p.closed.Load():
			err = ErrPoolClosed
		case ctx.Err() == nil && errors.Is(acquireCtx.Err(), context.DeadlineExceeded):
			err = fmt.Errorf("%w after %s", ErrAcquireTimeout, p.acquireTimeout)
		}
		return nil, wrapErr("acquire", err)
	}
	return &Conn{conn: raw}, nil
}

// WithConn runs fn with a leased connection and releases it on every exit path.
func (p *Pool) WithConn(ctx context.Context, fn func(*Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return fn(conn)
}

// Stat reports the current lease counts.
func (p *Pool) Stat() Stats {
	s := p.pool.Stat()
	return Stats{
		Leased:            s.AcquiredConns(),
		Idle:              s.IdleConns(),
		Total:             s.TotalConns(),
		Max:               s.MaxConns(),
		AcquireCount:      s.AcquireCount(),
		EmptyAcquireCount: s.EmptyAcquireCount(),
	}
}

// Ping checks connectivity through a pooled connection.
func (p *Pool) Ping(ctx context.Context) error {
	return p.WithConn(ctx, func(c *Conn) error {
		return wrapErr("ping", c.conn.Ping(ctx))
	})
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool {
	return p.closed.Load()
}

// Close drains the pool, waiting for leased connections to be released.
func (p *Pool) Close() {
	if p.closed.CompareAndSwap(false, true) {
		p.pool.Close()
	}
}

// Conn is a connection leased from a Pool.
type Conn struct {
	conn *pgxpool.Conn
	once sync.Once
}

// Release returns the connection to the pool. Calling it more than once is a no-op.
// Connections left closed or inside a transaction are destroyed instead of reused.
func (c *Conn) Release() {
	c.once.Do(c.conn.Release)
}

// Query runs a statement returning rows.
func (c *Conn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.conn.Query(ctx, sql, args...)
}

// Exec runs a statement without rows.
func (c *Conn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.conn.Exec(ctx, sql, args...)
}

// BeginTx starts a transaction on the connection.
func (c *Conn) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	return c.conn.BeginTx(ctx, opts)
}

// PID returns the backend process id, stable for the life of the physical connection.
func (c *Conn) PID() uint32 {
	return c.conn.Conn().PgConn().PID()
}
