package db

import (
	"errors"
	"strings"

	pgconnv1 "github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	uniqueViolationCode      = "23505"
	serializationFailureCode = "40001"
	deadlockDetectedCode     = "40P01"
)

// sqlState extracts the SQLSTATE and constraint from any of the Postgres
// driver error types that can surface through GORM.
func sqlState(err error) (code, constraint string, ok bool) {
	var v5 *pgconn.PgError
	if errors.As(err, &v5) {
		return v5.Code, v5.ConstraintName, true
	}
	var v1 *pgconnv1.PgError
	if errors.As(err, &v1) {
		return v1.Code, v1.ConstraintName, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	return "", "", false
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// restricted to constraintName when it is set. SQLite names columns rather
// than constraints, so any of its unique failures match.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if code, constraint, ok := sqlState(err); ok {
		return code == uniqueViolationCode && (constraintName == "" || constraint == constraintName)
	}

	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}
	if !strings.Contains(msg, "duplicate key value") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

// IsRetryable reports whether the database aborted the transaction and a
// fresh attempt may succeed.
func IsRetryable(err error) bool {
	code, _, ok := sqlState(err)
	return ok && (code == serializationFailureCode || code == deadlockDetectedCode)
}
