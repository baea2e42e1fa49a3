// Package storage provides the durable database/sql backend: schema
// initialization, the append-only immutability guard, and the store
// implementations consumed by the ledger, auth and access packages.
//
// Two engines are supported behind the same contract: SQLite (modernc.org,
// pure Go) and PostgreSQL (pgx stdlib).
package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "pgx"
)

// Open connects to the configured engine. SQLite connections are pinned to a
// single pooled connection so the engine-level write lock never surfaces as
// a busy error under concurrent appenders.
func Open(driver, dsn string) (*sql.DB, Dialect, error) {
	var dialect Dialect
	switch driver {
	case "sqlite", "sqlite3":
		dialect = DialectSQLite
		driver = "sqlite"
	case "pgx", "postgres", "postgresql":
		dialect = DialectPostgres
		driver = "pgx"
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", err
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	return db, dialect, nil
}

// rebind converts ?-style placeholders to the $N form Postgres expects.
func (d Dialect) rebind(q string) string {
	if d != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
