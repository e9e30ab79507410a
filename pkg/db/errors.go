package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// IsUniqueViolation reports whether the provided error references a unique
// constraint violation. When constraintName is provided, the helper also requires
// the constraint name to appear in the error.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if code, constraint, ok := sqlState(err); ok {
		if code != sqlStateUniqueViolation {
			return false
		}
		return constraintName == "" || constraint == constraintName || strings.Contains(err.Error(), constraintName)
	}
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

// IsRetryable reports whether a transaction failed on a transient concurrency
// conflict and may be re-run from the start.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if code, _, ok := sqlState(err); ok {
		return code == sqlStateSerializationFailure || code == sqlStateDeadlockDetected
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

func sqlState(err error) (code, constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	return "", "", false
}
