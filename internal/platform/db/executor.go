package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Statement is a SQL template plus its positional parameters.
type Statement struct {
	SQL  string
	Args []any
}

// Stmt builds a Statement.
func Stmt(sql string, args ...any) Statement {
	return Statement{SQL: sql, Args: args}
}

// Returned is a follow-up argument placeholder resolved from the row returned by
// the primary statement of Execute.
type Returned string

// Executor runs parameterized statements against pooled connections.
type Executor struct {
	pool *Pool
}

// NewExecutor constructs an Executor on top of pool.
func NewExecutor(pool *Pool) *Executor {
	return &Executor{pool: pool}
}

// Pool exposes the underlying pool.
func (e *Executor) Pool() *Pool {
	return e.pool
}

// QueryMany returns every row produced by sql. An empty result is an empty slice.
func (e *Executor) QueryMany(ctx context.Context, sql string, args ...any) ([]Record, error) {
	var records []Record
	err := e.pool.WithConn(ctx, func(conn *Conn) error {
		rows, err := conn.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		records, err = collectRecords(rows, 0)
		return err
	})
	if err != nil {
		return nil, wrapErr("query many", err)
	}
	return records, nil
}

// QueryOne returns the first row produced by sql. The boolean is false when no row
// matched; that is not an error.
func (e *Executor) QueryOne(ctx context.Context, sql string, args ...any) (Record, bool, error) {
	var records []Record
	err := e.pool.WithConn(ctx, func(conn *Conn) error {
		rows, err := conn.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		records, err = collectRecords(rows, 1)
		return err
	})
	if err != nil {
		return Record{}, false, wrapErr("query one", err)
	}
	if len(records) == 0 {
		return Record{}, false, nil
	}
	return records[0], true, nil
}

// Execute runs a mutating statement and its follow-ups in one transaction, in order,
// then commits. Any failure rolls the whole unit back before the error is returned.
// With returning set, the first row reported by stmt is returned; if stmt reported
// no row the follow-ups are skipped.
func (e *Executor) Execute(ctx context.Context, stmt Statement, returning bool, followUps ...Statement) (Record, bool, error) {
	var (
		rec   Record
		found bool
	)
	err := WithTx(ctx, e.pool, func(tx pgx.Tx) error {
		if returning {
			rows, err := tx.Query(ctx, stmt.SQL, stmt.Args...)
			if err != nil {
				return err
			}
			records, err := collectRecords(rows, 1)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return nil
			}
			rec, found = records[0], true
		} else if _, err := tx.Exec(ctx, stmt.SQL, stmt.Args...); err != nil {
			return err
		}

		for i, follow := range followUps {
			args, err := resolveArgs(follow.Args, rec, found)
			if err != nil {
				return fmt.Errorf("follow-up %d: %w", i, err)
			}
			if _, err := tx.Exec(ctx, follow.SQL, args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Record{}, false, wrapErr("execute", err)
	}
	return rec, found, nil
}

func resolveArgs(args []any, rec Record, found bool) ([]any, error) {
	out := make([]any, len(args))
	for i, arg := range args {
		col, ok := arg.(Returned)
		if !ok {
			out[i] = arg
			continue
		}
		if !found {
			return nil, fmt.Errorf("returned column %q referenced without a returned row", string(col))
		}
		v, ok := rec.Value(string(col))
		if !ok {
			return nil, fmt.Errorf("returned column %q not in result", string(col))
		}
		out[i] = v
	}
	return out, nil
}
