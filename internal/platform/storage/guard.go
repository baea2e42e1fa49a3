package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// immutabilityMessage is raised by the storage engine whenever a committed
// audit_log row is updated or deleted. Both engines embed it in the driver
// error, which is how violations are classified.
const immutabilityMessage = "audit_log is append-only"

// GuardMode controls what happens when append-only protection cannot be
// installed at startup.
type GuardMode int

const (
	// GuardStrict refuses to start without the guard.
	GuardStrict GuardMode = iota
	// GuardBestEffort logs the failure and proceeds with the weaker
	// guarantee that only application discipline protects committed rows.
	GuardBestEffort
)

func ParseGuardMode(v string) (GuardMode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "strict":
		return GuardStrict, nil
	case "best-effort", "besteffort":
		return GuardBestEffort, nil
	default:
		return GuardStrict, fmt.Errorf("unknown guard mode %q", v)
	}
}

// InitializationError means required storage protection or schema could not
// be installed. In strict mode the process must not serve traffic.
type InitializationError struct {
	Op  string
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("storage initialization failed (%s): %v", e.Op, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

var sqliteGuard = []string{
	`CREATE TRIGGER IF NOT EXISTS audit_log_no_update
BEFORE UPDATE ON audit_log
BEGIN
    SELECT RAISE(ABORT, '` + immutabilityMessage + `');
END`,
	`CREATE TRIGGER IF NOT EXISTS audit_log_no_delete
BEFORE DELETE ON audit_log
BEGIN
    SELECT RAISE(ABORT, '` + immutabilityMessage + `');
END`,
}

var postgresGuard = []string{
	`CREATE OR REPLACE FUNCTION audit_log_block_mutation() RETURNS trigger AS $fn$
BEGIN
    RAISE EXCEPTION '` + immutabilityMessage + `';
END;
$fn$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS audit_log_no_update ON audit_log`,
	`CREATE TRIGGER audit_log_no_update
BEFORE UPDATE ON audit_log
FOR EACH ROW EXECUTE FUNCTION audit_log_block_mutation()`,
	`DROP TRIGGER IF EXISTS audit_log_no_delete ON audit_log`,
	`CREATE TRIGGER audit_log_no_delete
BEFORE DELETE ON audit_log
FOR EACH ROW EXECUTE FUNCTION audit_log_block_mutation()`,
}

// InstallGuard installs engine-level triggers that reject any UPDATE or
// DELETE against committed audit_log rows, so a caller with direct storage
// access cannot silently rewrite history. Idempotent.
func InstallGuard(ctx context.Context, db *sql.DB, dialect Dialect, mode GuardMode, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	stmts := sqliteGuard
	if dialect == DialectPostgres {
		stmts = postgresGuard
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if mode == GuardBestEffort {
				log.Warn("append-only guard not installed; committed rows are only protected by application discipline",
					zap.String("dialect", string(dialect)),
					zap.Error(err))
				return nil
			}
			return &InitializationError{Op: "install append-only guard", Err: err}
		}
	}
	return nil
}

// IsImmutabilityViolation reports whether err is the storage engine
// rejecting a mutation of a committed audit_log row. Any occurrence at
// runtime is either a bug or an attempted tamper and must be logged as a
// security event.
func IsImmutabilityViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), immutabilityMessage)
}
