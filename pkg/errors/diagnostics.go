package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const maxChainDepth = 8

// pgDiag is the subset of a Postgres error report worth logging. Both the
// pgx driver (gorm's postgres dialector) and lib/pq produce one.
type pgDiag struct {
	code, constraint, table, column, detail, message string
}

func pgDiagnostics(err error) (pgDiag, bool) {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return pgDiag{pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail, pgxErr.Message}, true
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return pgDiag{string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message}, true
	}
	return pgDiag{}, false
}

// LogFields flattens err into structured log fields: its code, the unwrap
// chain and any Postgres diagnostics found along it. Empty values are omitted.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{
		"error":      err.Error(),
		"error_code": CodeOf(err),
	}

	var chain []string
	for e := err; e != nil && len(chain) < maxChainDepth; e = stdErrors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	if len(chain) > 1 {
		fields["error_chain"] = chain
	}

	if d, ok := pgDiagnostics(err); ok {
		for key, value := range map[string]string{
			"pg_code":       d.code,
			"pg_constraint": d.constraint,
			"pg_table":      d.table,
			"pg_column":     d.column,
			"pg_detail":     d.detail,
			"pg_message":    d.message,
		} {
			if value != "" {
				fields[key] = value
			}
		}
	}
	return fields
}
