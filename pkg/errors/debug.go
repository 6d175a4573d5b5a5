package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump flattens an error chain for structured logs and persisted notes.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	RootCause  string   `json:"root_cause,omitempty"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
		d.RootCause = e.Error()
	}
	if d.RootCause == d.TopMessage {
		d.RootCause = ""
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case stdErrors.As(err, &pgxErr):
		d.PGCode, d.PGConstraint, d.PGTable, d.PGDetail = pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.Detail
	case stdErrors.As(err, &pqErr):
		d.PGCode, d.PGConstraint, d.PGTable, d.PGDetail = string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Detail
	}
	return d
}

// Summary renders one line for audit notes, e.g.
// "pg=23505 constraint=ux_orders CONFLICT: duplicate order (insert: ...)".
func (d ErrorDump) Summary() string {
	var parts []string
	if d.PGCode != "" {
		parts = append(parts, "pg="+d.PGCode)
		if d.PGConstraint != "" {
			parts = append(parts, "constraint="+d.PGConstraint)
		}
	}
	parts = append(parts, d.TopMessage)
	if d.RootCause != "" {
		parts = append(parts, "("+d.RootCause+")")
	}
	return strings.Join(parts, " ")
}
