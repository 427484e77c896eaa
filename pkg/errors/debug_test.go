package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpReadsPgxErrors(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key", TableName: "users", Message: "duplicate key value"}
	err := Wrap(CodeConflict, fmt.Errorf("insert user: %w", pgErr), "email already registered")

	dump := Dump(err)
	if dump.Code != CodeConflict {
		t.Fatalf("code = %s", dump.Code)
	}
	if dump.Postgres == nil || dump.Postgres.SQLState != "23505" || dump.Postgres.Class != "integrity_constraint_violation" {
		t.Fatalf("postgres detail = %+v", dump.Postgres)
	}

	fields := dump.LogFields()
	if fields["pg_table"] != "users" || fields["pg_constraint"] != "users_email_key" {
		t.Fatalf("fields = %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatal("empty postgres fields should be left out")
	}
}

func TestDumpReadsLibPqErrors(t *testing.T) {
	err := fmt.Errorf("update order: %w", &pq.Error{Code: "40001", Message: "could not serialize access"})

	dump := Dump(err)
	if dump.Code != "" {
		t.Fatalf("untyped error got code %s", dump.Code)
	}
	if dump.Postgres == nil || dump.Postgres.Class != "transaction_rollback" {
		t.Fatalf("postgres detail = %+v", dump.Postgres)
	}
	if _, ok := dump.LogFields()["error_code"]; ok {
		t.Fatal("error_code should be absent for untyped errors")
	}
}

func TestDumpWalksJoinedErrors(t *testing.T) {
	err := fmt.Errorf("close clients: %w", errors.Join(errors.New("redis: closed"), errors.New("bigquery: closed")))

	dump := Dump(err)
	if len(dump.Chain) != 4 {
		t.Fatalf("chain = %q", dump.Chain)
	}
	if dump.Postgres != nil {
		t.Fatalf("unexpected postgres detail %+v", dump.Postgres)
	}
	if Dump(nil).Message != "" {
		t.Fatal("nil error should dump empty")
	}
}
