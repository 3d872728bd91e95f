// Package store is the pooled relational data access layer. A Pool owns the
// physical connections; callers borrow one at a time through WithConn.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hanpama/usergraph/internal/eventbus"
	"github.com/hanpama/usergraph/internal/events"
)

// Config describes how to reach the store and how to bound the pool.
type Config struct {
	URL string

	// MaxConns caps open connections. Defaults to 10.
	MaxConns int
	// MinConns connections are opened eagerly by Open.
	MinConns int
	// AcquireTimeout bounds how long Acquire waits for a free connection.
	// Defaults to 5s.
	AcquireTimeout time.Duration
	// QueryTimeout bounds each statement. Zero means no limit beyond the
	// caller's context.
	QueryTimeout time.Duration

	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	if c.MinConns < 0 {
		c.MinConns = 0
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Second
	}
	return c
}

// Pool is a bounded set of connections to one store.
type Pool struct {
	db      *sql.DB
	dialect Dialect
	cfg     Config
}

// Open parses cfg.URL, opens the pool and warms MinConns connections.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	dialect, dsn, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dialect.Name, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dialect, err)
	}
	p := New(db, dialect, cfg)
	if err := p.warm(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// New wraps an already opened handle.
func New(db *sql.DB, dialect Dialect, cfg Config) *Pool {
	cfg = cfg.withDefaults()
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return &Pool{db: db, dialect: dialect, cfg: cfg}
}

func (p *Pool) warm(ctx context.Context) error {
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("store: connect: %w", err)
	}
	held := make([]*Conn, 0, p.cfg.MinConns)
	defer func() {
		for _, c := range held {
			p.Release(c)
		}
	}()
	for i := 0; i < p.cfg.MinConns; i++ {
		c, err := p.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("store: warm pool: %w", err)
		}
		held = append(held, c)
	}
	return nil
}

// Dialect reports the backend the pool talks to.
func (p *Pool) Dialect() Dialect { return p.dialect }

// Stats reports pool counters.
func (p *Pool) Stats() sql.DBStats { return p.db.Stats() }

// Ping verifies that the store is reachable.
func (p *Pool) Ping(ctx context.Context) error {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(c)
	return mapError(c.raw.PingContext(ctx))
}

// Close closes every connection. Outstanding Conns fail afterwards.
func (p *Pool) Close() error { return p.db.Close() }

// Acquire borrows a connection. It waits at most AcquireTimeout and then
// fails with ErrPoolExhausted. The caller must hand the connection back with
// Release.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	start := time.Now()
	actx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	raw, err := p.db.Conn(actx)
	if err != nil {
		err = p.acquireError(ctx, actx, err)
	}
	eventbus.Publish(ctx, events.ConnAcquire{Driver: p.dialect.Name, Wait: time.Since(start), Err: err})
	if err != nil {
		return nil, err
	}
	return &Conn{raw: raw, pool: p}, nil
}

func (p *Pool) acquireError(parent, actx context.Context, err error) error {
	if parent.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		return &Error{
			Sentinel: ErrPoolExhausted,
			Cause:    err,
			Message:  fmt.Sprintf("connection pool exhausted: no connection available within %s", p.cfg.AcquireTimeout),
		}
	}
	if errors.Is(err, sql.ErrConnDone) || err.Error() == "sql: database is closed" {
		return &Error{Sentinel: ErrStoreUnavailable, Cause: err}
	}
	return mapError(err)
}

// Release hands c back to the pool. Releasing twice is harmless.
func (p *Pool) Release(c *Conn) {
	if c != nil {
		c.release()
	}
}

// WithConn runs fn with a borrowed connection and returns it on every exit
// path, panics included.
func (p *Pool) WithConn(ctx context.Context, fn func(*Conn) error) error {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(c)
	return fn(c)
}

// Scanner is implemented by *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Execute runs query on a borrowed connection and calls scan once per row.
func (p *Pool) Execute(ctx context.Context, query string, args []any, scan func(Scanner) error) error {
	return p.WithConn(ctx, func(c *Conn) error {
		rows, err := c.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			if err := scan(rows); err != nil {
				return mapError(err)
			}
		}
		return mapError(rows.Err())
	})
}
