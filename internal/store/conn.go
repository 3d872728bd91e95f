package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/hanpama/usergraph/internal/eventbus"
	"github.com/hanpama/usergraph/internal/events"
)

// Conn is a connection borrowed from a Pool. It is not safe for concurrent
// use.
type Conn struct {
	raw  *sql.Conn
	pool *Pool
	once sync.Once
}

func (c *Conn) release() {
	c.once.Do(func() { c.raw.Close() })
}

// statement prepares ctx and the event hooks for one statement. The returned
// done func must be called exactly once with the statement's final error.
func (c *Conn) statement(ctx context.Context, query string) (context.Context, string, func(error) error) {
	query = c.pool.dialect.Rebind(query)
	cancel := context.CancelFunc(func() {})
	if c.pool.cfg.QueryTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.pool.cfg.QueryTimeout)
	}
	driver := c.pool.dialect.Name
	eventbus.Publish(ctx, events.SQLQueryStart{Driver: driver, Query: query})
	start := time.Now()
	return ctx, query, func(err error) error {
		cancel()
		err = mapError(err)
		eventbus.Publish(ctx, events.SQLQueryFinish{Driver: driver, Query: query, Err: err, Duration: time.Since(start)})
		return err
	}
}

// Rows wraps *sql.Rows so that the statement is accounted for when the
// caller closes it.
type Rows struct {
	*sql.Rows
	done func(error) error
	once sync.Once
}

// Close closes the result set and reports the statement as finished.
func (r *Rows) Close() error {
	err := r.Rows.Close()
	r.once.Do(func() {
		if rerr := r.Rows.Err(); rerr != nil {
			err = rerr
		}
		err = r.done(err)
	})
	return err
}

// Scan copies the current row into dest. A value dest cannot hold is
// reported as ErrQueryRejected.
func (r *Rows) Scan(dest ...any) error {
	return scanError(r.Rows.Scan(dest...))
}

// Err reports the error, if any, met while iterating.
func (r *Rows) Err() error { return mapError(r.Rows.Err()) }

func scanError(err error) error {
	err = mapError(err)
	var se *Error
	if err == nil || errors.As(err, &se) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Sentinel: ErrQueryRejected, Cause: err}
}

// Query runs a statement returning rows. Close the result.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	ctx, query, done := c.statement(ctx, query)
	rows, err := c.raw.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, done(err)
	}
	return &Rows{Rows: rows, done: done}, nil
}

// Row is the result of QueryRow.
type Row struct {
	raw  *sql.Row
	done func(error) error
}

// Scan copies the single row into dest. No row yields ErrNotFound.
func (r *Row) Scan(dest ...any) error {
	return r.done(r.raw.Scan(dest...))
}

// QueryRow runs a statement expected to return at most one row.
func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) *Row {
	ctx, query, done := c.statement(ctx, query)
	return &Row{raw: c.raw.QueryRowContext(ctx, query, args...), done: done}
}

// Exec runs a statement that returns no rows.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, query, done := c.statement(ctx, query)
	res, err := c.raw.ExecContext(ctx, query, args...)
	return res, done(err)
}

// InsertReturningID runs an INSERT and reports the key the store assigned to
// column.
func (c *Conn) InsertReturningID(ctx context.Context, query, column string, args ...any) (int64, error) {
	var id int64
	if c.pool.dialect.returning {
		err := c.QueryRow(ctx, query+" RETURNING "+column, args...).Scan(&id)
		return id, err
	}
	res, err := c.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	return id, mapError(err)
}
