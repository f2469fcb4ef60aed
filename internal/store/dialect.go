package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/tally/internal/ledger"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// dialect isolates the differences between the SQL backends.
// All queries are written with "?" placeholders and COLLATE BINARY;
// rebind adapts them to the target engine.
type dialect interface {
	name() string
	schema() string
	rebind(query string) string
	// classify maps a driver error to a ledger error class.
	classify(op string, err error) error
	// afterRestore fixes up id generators after rows were inserted with
	// explicit ids.
	afterRestore(ctx context.Context, q querier) error
}

type sqliteDialect struct{}

func (sqliteDialect) name() string   { return "sqlite" }
func (sqliteDialect) schema() string { return sqliteSchema }

func (sqliteDialect) rebind(query string) string { return query }

func (sqliteDialect) classify(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return ledger.NewTransient(op, err)
		case sqlite3.ErrConstraint:
			if se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique {
				return &ledger.Error{Code: ledger.CodeDuplicate, Message: op, Err: err}
			}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// AUTOINCREMENT tables track explicit ids in sqlite_sequence already.
func (sqliteDialect) afterRestore(context.Context, querier) error { return nil }

type postgresDialect struct{}

func (postgresDialect) name() string   { return "postgres" }
func (postgresDialect) schema() string { return postgresSchema }

// rebind rewrites "?" placeholders to "$1", "$2", ... and byte-order
// collation to the "C" collation.
func (postgresDialect) rebind(query string) string {
	query = strings.ReplaceAll(query, "COLLATE BINARY", `COLLATE "C"`)

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Postgres SQLSTATE codes treated as contention.
var pgTransientCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"53300": true, // too_many_connections
}

func (postgresDialect) classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		if pgTransientCodes[code] {
			return ledger.NewTransient(op, err)
		}
		if code == "23505" {
			return &ledger.Error{Code: ledger.CodeDuplicate, Message: op, Err: err}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (d postgresDialect) afterRestore(ctx context.Context, q querier) error {
	for _, seq := range []struct{ table, column string }{
		{"entries", "seq"},
		{"vouchers", "id"},
	} {
		query := fmt.Sprintf(
			"SELECT setval(pg_get_serial_sequence('%s', '%s'), COALESCE((SELECT MAX(%s) FROM %s), 0) + 1, false)",
			seq.table, seq.column, seq.column, seq.table,
		)
		if _, err := q.ExecContext(ctx, query); err != nil {
			return d.classify("reset "+seq.table+" sequence", err)
		}
	}
	return nil
}
