package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a lookup matches no rows.
	ErrNotFound = errors.New("store: record not found")

	// ErrPoolExhausted is returned when no connection became free within the
	// acquire timeout.
	ErrPoolExhausted = errors.New("store: connection pool exhausted")

	// ErrStoreUnavailable is returned when the store cannot be reached or a
	// connection broke mid-statement.
	ErrStoreUnavailable = errors.New("store: store unavailable")

	// ErrQueryRejected is returned when the store refused a statement, for
	// instance on a constraint violation or a syntax error.
	ErrQueryRejected = errors.New("store: query rejected")
)

var codes = map[error]string{
	ErrNotFound:         "NOT_FOUND",
	ErrPoolExhausted:    "POOL_EXHAUSTED",
	ErrStoreUnavailable: "STORE_UNAVAILABLE",
	ErrQueryRejected:    "QUERY_REJECTED",
}

// Error wraps one of the sentinels above together with the driver error that
// caused it.
type Error struct {
	Sentinel error
	Cause    error
	// Message replaces the default text when set.
	Message string
}

// NotFound builds an ErrNotFound error with a caller-supplied message.
func NotFound(format string, args ...any) *Error {
	return &Error{Sentinel: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Sentinel, e.Cause)
	default:
		return e.Sentinel.Error()
	}
}

func (e *Error) Is(target error) bool { return errors.Is(e.Sentinel, target) }
func (e *Error) Unwrap() error        { return e.Cause }

// ErrorCode is the machine-readable code reported to GraphQL clients.
func (e *Error) ErrorCode() string { return codes[e.Sentinel] }

// mapError translates driver errors into *Error. Errors it does not
// recognise, including context cancellation, are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &Error{Sentinel: ErrNotFound, Cause: err}
	}
	if sentinel := classify(err); sentinel != nil {
		return &Error{Sentinel: sentinel, Cause: err}
	}
	return err
}

func classify(err error) error {
	var pqe *pq.Error
	if errors.As(err, &pqe) {
		switch pqe.Code.Class() {
		case "08", "57":
			return ErrStoreUnavailable
		case "22", "23", "42":
			return ErrQueryRejected
		}
		return nil
	}

	var mye *mysql.MySQLError
	if errors.As(err, &mye) {
		switch mye.Number {
		case 1040, 1045, 1053, 2002, 2003, 2006, 2013:
			return ErrStoreUnavailable
		case 1048, 1054, 1062, 1064, 1146, 1264, 1364, 1406, 1452:
			return ErrQueryRejected
		}
		return nil
	}

	var lite sqlite3.Error
	if errors.As(err, &lite) {
		switch lite.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrNotADB, sqlite3.ErrIoErr, sqlite3.ErrCorrupt:
			return ErrStoreUnavailable
		case sqlite3.ErrConstraint, sqlite3.ErrError, sqlite3.ErrMismatch, sqlite3.ErrTooBig, sqlite3.ErrRange:
			return ErrQueryRejected
		}
		return nil
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return ErrStoreUnavailable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrStoreUnavailable
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrStoreUnavailable
	}
	return nil
}
