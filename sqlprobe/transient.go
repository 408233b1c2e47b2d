package sqlprobe

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// transient SQLSTATE codes outside class 08 (connection exception)
var transientSQLStates = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"53300": {}, // too_many_connections
	"57P01": {}, // admin_shutdown
	"57P02": {}, // crash_shutdown
	"57P03": {}, // cannot_connect_now
}

// transient MySQL server error numbers
var transientMySQLErrors = map[uint16]struct{}{
	1040: {}, // ER_CON_COUNT_ERROR
	1205: {}, // ER_LOCK_WAIT_TIMEOUT
	1213: {}, // ER_LOCK_DEADLOCK
	2006: {}, // CR_SERVER_GONE_ERROR
	2013: {}, // CR_SERVER_LOST
}

// IsTransient reports whether err looks like a connection-level or
// contention failure that may clear up on its own: a dropped or refused
// connection, a server restart, a deadlock or serialization failure.
//
// Syntax errors, missing tables, permission errors, unknown hosts and context
// cancellation are not transient. IsTransient is a [dbwait.RetryPolicy]:
//
//	cfg, err := dbwait.NewPollConfig(30*time.Second, 2*time.Second,
//	    dbwait.WithRetryable(sqlprobe.IsTransient))
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// an unknown host is a configuration mistake, not an outage
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}

	if state := SQLState(err); state != "" {
		if strings.HasPrefix(state, "08") {
			return true
		}
		_, ok := transientSQLStates[state]
		return ok
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		_, ok := transientMySQLErrors[myErr.Number]
		return ok
	}

	if pgconn.SafeToRetry(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// SQLState returns the five-character SQLSTATE carried by a PostgreSQL
// error from pgx or lib/pq, or "" if err carries none.
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
