package storage

import (
	"context"
	"database/sql"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ts TEXT NOT NULL,
    actor TEXT NOT NULL,
    action TEXT NOT NULL,
    case_id TEXT NOT NULL,
    details_json TEXT NOT NULL,
    prev_hash TEXT,
    hash TEXT NOT NULL,
    ip TEXT,
    ua TEXT
)`,
	`CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT UNIQUE NOT NULL,
    role TEXT NOT NULL,
    api_key_digest TEXT UNIQUE NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS access_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ts TEXT NOT NULL,
    actor TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    params_json TEXT
)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS audit_log (
    id BIGSERIAL PRIMARY KEY,
    ts TEXT NOT NULL,
    actor TEXT NOT NULL,
    action TEXT NOT NULL,
    case_id TEXT NOT NULL,
    details_json TEXT NOT NULL,
    prev_hash TEXT,
    hash TEXT NOT NULL,
    ip TEXT,
    ua TEXT
)`,
	`CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,
    role TEXT NOT NULL,
    api_key_digest TEXT UNIQUE NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS access_log (
    id BIGSERIAL PRIMARY KEY,
    ts TEXT NOT NULL,
    actor TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    params_json TEXT
)`,
}

// InitSchema creates the three tables when absent. Migrations beyond create
// are out of scope; the ledger table in particular is never altered.
func InitSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	stmts := sqliteSchema
	if dialect == DialectPostgres {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return &InitializationError{Op: "create schema", Err: err}
		}
	}
	return nil
}
