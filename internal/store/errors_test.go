package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", sql.ErrNoRows, ErrNotFound},
		{"pq not null", &pq.Error{Code: "23502"}, ErrQueryRejected},
		{"pq syntax", &pq.Error{Code: "42601"}, ErrQueryRejected},
		{"pq connection", &pq.Error{Code: "08006"}, ErrStoreUnavailable},
		{"pq admin shutdown", &pq.Error{Code: "57P01"}, ErrStoreUnavailable},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, ErrQueryRejected},
		{"mysql gone away", &mysql.MySQLError{Number: 2006}, ErrStoreUnavailable},
		{"mysql invalid conn", mysql.ErrInvalidConn, ErrStoreUnavailable},
		{"sqlite constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, ErrQueryRejected},
		{"sqlite cantopen", sqlite3.Error{Code: sqlite3.ErrCantOpen}, ErrStoreUnavailable},
		{"bad conn", driver.ErrBadConn, ErrStoreUnavailable},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, ErrStoreUnavailable},
		{"wrapped", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), ErrQueryRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapError(tc.in)
			require.ErrorIs(t, got, tc.want)
			require.ErrorIs(t, got, tc.in)
		})
	}
}

func TestMapErrorPassThrough(t *testing.T) {
	require.NoError(t, mapError(nil))

	plain := errors.New("plain")
	require.Same(t, plain, mapError(plain))
	require.Equal(t, context.DeadlineExceeded, mapError(context.DeadlineExceeded))

	already := NotFound("user %d not found", 3)
	require.Same(t, already, mapError(already))

	lock := sqlite3.Error{Code: sqlite3.ErrBusy}
	require.Equal(t, error(lock), mapError(lock))
}

func TestErrorText(t *testing.T) {
	require.Equal(t, "user 3 not found", NotFound("user %d not found", 3).Error())
	require.Equal(t, "NOT_FOUND", NotFound("x").ErrorCode())

	err := &Error{Sentinel: ErrQueryRejected, Cause: errors.New("NOT NULL constraint failed")}
	require.Equal(t, "store: query rejected: NOT NULL constraint failed", err.Error())

	require.Equal(t, "store: store unavailable", (&Error{Sentinel: ErrStoreUnavailable}).Error())
}
