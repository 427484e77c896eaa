package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// maxChainDepth bounds the unwrap walk for pathological or cyclic wrappers.
const maxChainDepth = 16

// ErrorDump is a log-only view of an error: the typed code if any, every
// wrapped layer, and the server-side fields of a Postgres failure.
type ErrorDump struct {
	Message  string          `json:"message"`
	Code     Code            `json:"code,omitempty"`
	Chain    []string        `json:"chain,omitempty"`
	Postgres *PostgresDetail `json:"postgres,omitempty"`
}

// PostgresDetail is filled from either driver so the log shape does not
// depend on which one the query went through.
type PostgresDetail struct {
	SQLState   string `json:"sqlstate"`
	Class      string `json:"class,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// SQLSTATE classes this service actually runs into.
var sqlStateClasses = map[string]string{
	"08": "connection_exception",
	"22": "data_exception",
	"23": "integrity_constraint_violation",
	"25": "invalid_transaction_state",
	"40": "transaction_rollback",
	"42": "syntax_error_or_access_rule_violation",
	"53": "insufficient_resources",
	"57": "operator_intervention",
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{Message: err.Error(), Chain: chain(err)}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	d.Postgres = postgresDetail(err)
	return d
}

// chain lists each layer as "type: message", following errors.Join branches
// depth first.
func chain(err error) []string {
	var out []string
	var walk func(error)
	walk = func(e error) {
		for e != nil && len(out) < maxChainDepth {
			out = append(out, fmt.Sprintf("%T: %v", e, e))
			if joined, ok := e.(interface{ Unwrap() []error }); ok {
				for _, branch := range joined.Unwrap() {
					walk(branch)
				}
				return
			}
			e = errors.Unwrap(e)
		}
	}
	walk(err)
	return out
}

func postgresDetail(err error) *PostgresDetail {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return withClass(&PostgresDetail{
			SQLState:   pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		})
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return withClass(&PostgresDetail{
			SQLState:   string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		})
	}
	return nil
}

func withClass(p *PostgresDetail) *PostgresDetail {
	if len(p.SQLState) >= 2 {
		p.Class = sqlStateClasses[p.SQLState[:2]]
	}
	return p
}

// LogFields flattens the dump for structured logging. Postgres fields are
// prefixed with "pg_" and left out when empty.
func (d ErrorDump) LogFields() map[string]any {
	fields := map[string]any{
		"error":       d.Message,
		"error_chain": d.Chain,
	}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	if p := d.Postgres; p != nil {
		for key, value := range map[string]string{
			"pg_code":       p.SQLState,
			"pg_class":      p.Class,
			"pg_constraint": p.Constraint,
			"pg_table":      p.Table,
			"pg_column":     p.Column,
			"pg_detail":     p.Detail,
			"pg_message":    p.Message,
		} {
			if value != "" {
				fields[key] = value
			}
		}
	}
	return fields
}
