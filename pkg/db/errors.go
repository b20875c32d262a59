package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE codes the services react to.
const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// sqlState is the driver-neutral view of a database error.
type sqlState struct {
	code       string
	constraint string
	message    string
}

// stateOf unwraps pgx and lib/pq errors. Other drivers (sqlite) only expose
// their message text.
func stateOf(err error) (sqlState, bool) {
	if err == nil {
		return sqlState{}, false
	}
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return sqlState{code: pgxErr.Code, constraint: pgxErr.ConstraintName, message: pgxErr.Message}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return sqlState{code: string(pqErr.Code), constraint: pqErr.Constraint, message: pqErr.Message}, true
	}
	return sqlState{message: err.Error()}, true
}

// IsUniqueViolation reports whether err is a unique constraint violation. When
// constraint is set, the violated constraint must match it.
func IsUniqueViolation(err error, constraint string) bool {
	return violates(err, pgUniqueViolation, constraint, "UNIQUE constraint failed", "duplicate key value")
}

// IsCheckViolation reports whether err is a CHECK constraint violation, such
// as store_inventory rejecting a negative quantity.
func IsCheckViolation(err error, constraint string) bool {
	return violates(err, pgCheckViolation, constraint, "CHECK constraint failed", "violates check constraint")
}

func violates(err error, code, constraint string, texts ...string) bool {
	st, ok := stateOf(err)
	if !ok {
		return false
	}
	if st.code != "" {
		return st.code == code && (constraint == "" || st.constraint == constraint)
	}
	for _, text := range texts {
		if strings.Contains(st.message, text) {
			return constraint == "" || strings.Contains(st.message, constraint)
		}
	}
	return false
}

// IsTransient reports whether the whole transaction can be replayed: the
// server aborted it over a lock or serialization conflict and nothing was
// committed.
func IsTransient(err error) bool {
	st, ok := stateOf(err)
	if !ok {
		return false
	}
	switch st.code {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return true
	case "":
		return strings.Contains(st.message, "database is locked")
	}
	return false
}
