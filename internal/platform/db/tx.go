package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// WithTx executes fn within a ReadCommitted transaction on a leased connection.
// The transaction is rolled back unless fn returns nil and the commit succeeds, and
// the connection is released in every case.
func WithTx(ctx context.Context, pool *Pool, fn func(pgx.Tx) error) error {
	return pool.WithConn(ctx, func(conn *Conn) error {
		tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return wrapErr("begin tx", err)
		}

		defer func() {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}()

		if err := fn(tx); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return wrapErr("commit tx", err)
		}

		return nil
	})
}
