package scriptrel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLState extracts the SQLSTATE code from a PostgreSQL error.
// Works with both supported drivers:
//   - pgx/pgconn: *pgconn.PgError
//   - lib/pq: *pq.Error
//
// Returns empty string if the error doesn't carry a SQLSTATE.
func SQLState(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	// Other wrappers expose the code through a method
	type sqlStateErr interface{ SQLState() string }
	var se sqlStateErr
	if errors.As(err, &se) {
		return se.SQLState()
	}

	// Last resort: "... (SQLSTATE 42P01)"
	errStr := err.Error()
	if idx := strings.Index(errStr, "SQLSTATE "); idx >= 0 {
		start := idx + len("SQLSTATE ")
		if start+5 <= len(errStr) {
			return errStr[start : start+5]
		}
	}
	return ""
}

// IsConnectionState reports whether a SQLSTATE code means the session could
// not be established (connection exception, bad credentials, unknown database).
func IsConnectionState(code string) bool {
	if len(code) != 5 {
		return false
	}
	switch {
	case strings.HasPrefix(code, pgClassConnection):
		return true
	case strings.HasPrefix(code, pgClassAuthorization):
		return true
	case code == pgInvalidCatalogName:
		return true
	}
	return false
}

// WrapDBError wraps err with ErrConnection when it is a connection-class
// failure and with fallback otherwise. msg is prepended for context.
func WrapDBError(msg string, err error, fallback error) error {
	if err == nil {
		return nil
	}
	if IsConnectionState(SQLState(err)) || isDialError(err) {
		return fmt.Errorf("%s: %w: %w", msg, ErrConnection, err)
	}
	return fmt.Errorf("%s: %w: %w", msg, fallback, err)
}

// isDialError detects failures that happen before the server answers,
// which carry no SQLSTATE at all.
func isDialError(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "dial tcp")
}
