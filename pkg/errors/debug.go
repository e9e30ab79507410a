package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// sqlStateClass names the Postgres failures the checkout path can hit.
var sqlStateClass = map[string]string{
	"23505": "unique_violation",
	"23503": "foreign_key_violation",
	"23514": "check_violation",
	"23502": "not_null_violation",
	"40001": "serialization_failure",
	"40P01": "deadlock_detected",
	"55P03": "lock_not_available",
	"57014": "query_canceled",
}

// ErrorDump is the log-friendly expansion of an error chain.
type ErrorDump struct {
	TopMessage string
	Code       Code
	Chain      []string

	PGCode       string
	PGClass      string
	PGConstraint string
	PGTable      string
	PGDetail     string
	PGMessage    string
}

// Dump walks err and pulls out the domain code and any Postgres diagnostics,
// from either the pgx or the lib/pq driver.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode, d.PGConstraint, d.PGTable = pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName
		d.PGDetail, d.PGMessage = pgxErr.Detail, pgxErr.Message
	case errors.As(err, &pqErr):
		d.PGCode, d.PGConstraint, d.PGTable = string(pqErr.Code), pqErr.Constraint, pqErr.Table
		d.PGDetail, d.PGMessage = pqErr.Detail, pqErr.Message
	}
	if d.PGCode != "" {
		d.PGClass = sqlStateClass[d.PGCode]
	}
	return d
}

// Fields returns the populated dump values keyed for structured logging.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error": d.TopMessage}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	for key, value := range map[string]string{
		"pg_code":       d.PGCode,
		"pg_class":      d.PGClass,
		"pg_constraint": d.PGConstraint,
		"pg_table":      d.PGTable,
		"pg_detail":     d.PGDetail,
		"pg_message":    d.PGMessage,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}
