package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"

	"github.com/oakmoor/casetrail/internal/platform/access"
	"github.com/oakmoor/casetrail/internal/platform/auth"
	"github.com/oakmoor/casetrail/internal/platform/ledger"
)

// appendLockID scopes the Postgres advisory lock serializing appenders
// across processes.
const appendLockID int64 = 727374100

// SQLStore backs the ledger, user lookup and access log with one database
// handle. It implements ledger.Store, auth.UserStore and access.Store.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect

	// mu serializes in-process appenders; the advisory lock covers
	// multi-process Postgres deployments.
	mu sync.Mutex
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// AppendEntry reads the last committed hash and inserts the new row in one
// transaction. The lock scope spans both steps: without it two appenders can
// observe the same predecessor and fork the chain.
func (s *SQLStore) AppendEntry(ctx context.Context, fill func(prevHash string) (ledger.Entry, error)) (ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Entry{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if s.dialect == DialectPostgres {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockID); err != nil {
			return ledger.Entry{}, err
		}
	}

	prev := ""
	err = tx.QueryRowContext(ctx, `SELECT hash FROM audit_log ORDER BY id DESC LIMIT 1`).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, err
	}

	e, err := fill(prev)
	if err != nil {
		return ledger.Entry{}, err
	}
	detailsJSON, err := json.Marshal(e.Details)
	if err != nil {
		return ledger.Entry{}, err
	}

	const insQ = `
INSERT INTO audit_log (ts, actor, action, case_id, details_json, prev_hash, hash, ip, ua)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if s.dialect == DialectPostgres {
		err = tx.QueryRowContext(ctx, s.dialect.rebind(insQ)+` RETURNING id`,
			e.TS, e.Actor, e.Action, e.CaseID, string(detailsJSON), e.PrevHash, e.Hash,
			nullable(e.IP), nullable(e.UA),
		).Scan(&e.ID)
		if err != nil {
			return ledger.Entry{}, err
		}
	} else {
		res, err := tx.ExecContext(ctx, insQ,
			e.TS, e.Actor, e.Action, e.CaseID, string(detailsJSON), e.PrevHash, e.Hash,
			nullable(e.IP), nullable(e.UA),
		)
		if err != nil {
			return ledger.Entry{}, err
		}
		e.ID, err = res.LastInsertId()
		if err != nil {
			return ledger.Entry{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

// ScanAscending walks the whole table inside one transaction so verification
// sees a consistent snapshot and never a partially committed row.
func (s *SQLStore) ScanAscending(ctx context.Context, fn func(ledger.Entry) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
SELECT id, ts, actor, action, case_id, details_json, prev_hash, hash, ip, ua
FROM audit_log
ORDER BY id ASC`
	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLStore) ListDescending(ctx context.Context, limit int) ([]ledger.Entry, error) {
	if limit <= 0 {
		limit = 200
	}
	const q = `
SELECT id, ts, actor, action, case_id, details_json, prev_hash, hash, ip, ua
FROM audit_log
ORDER BY id DESC
LIMIT ?`
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ledger.Entry, 0, limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e           ledger.Entry
		detailsJSON string
		prevHash    sql.NullString
		ip, ua      sql.NullString
	)
	if err := rows.Scan(&e.ID, &e.TS, &e.Actor, &e.Action, &e.CaseID, &detailsJSON, &prevHash, &e.Hash, &ip, &ua); err != nil {
		return ledger.Entry{}, err
	}
	e.PrevHash = prevHash.String
	e.IP = ip.String
	e.UA = ua.String
	if err := json.Unmarshal([]byte(detailsJSON), &e.Details); err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

// UserByKeyDigest implements auth.UserStore. Rows with a role outside the
// closed enumeration never authenticate.
func (s *SQLStore) UserByKeyDigest(ctx context.Context, digest string) (auth.User, bool, error) {
	const q = `SELECT id, email, role FROM users WHERE api_key_digest = ?`
	var (
		u    auth.User
		role string
	)
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(q), digest).Scan(&u.ID, &u.Email, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, false, nil
	}
	if err != nil {
		return auth.User{}, false, err
	}
	u.Role, err = auth.ParseRole(role)
	if err != nil {
		return auth.User{}, false, nil
	}
	return u, true, nil
}

// InsertUser provisions a user row. Exposed for seed tooling; the serving
// path only reads users.
func (s *SQLStore) InsertUser(ctx context.Context, email string, role auth.Role, keyDigest string) error {
	const q = `INSERT INTO users (email, role, api_key_digest) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(q), email, string(role), keyDigest)
	return err
}

// CountUsers reports provisioned users, used by seed tooling to stay
// idempotent.
func (s *SQLStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// InsertAccess implements access.Store.
func (s *SQLStore) InsertAccess(ctx context.Context, e access.LogEntry) error {
	paramsJSON, err := json.Marshal(e.Params)
	if err != nil {
		return err
	}
	const q = `INSERT INTO access_log (ts, actor, endpoint, params_json) VALUES (?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, s.dialect.rebind(q), e.TS, e.Actor, e.Endpoint, string(paramsJSON))
	return err
}

// AccessSummary implements access.Store.
func (s *SQLStore) AccessSummary(ctx context.Context, recentLimit int) (access.Summary, error) {
	sum := access.Summary{ByUser: map[string]int64{}, Recent: []access.LogEntry{}}

	rows, err := s.db.QueryContext(ctx, `SELECT actor, COUNT(*) FROM access_log GROUP BY actor`)
	if err != nil {
		return access.Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var actor string
		var n int64
		if err := rows.Scan(&actor, &n); err != nil {
			return access.Summary{}, err
		}
		sum.ByUser[actor] = n
		sum.Total += n
	}
	if err := rows.Err(); err != nil {
		return access.Summary{}, err
	}

	const recentQ = `
SELECT id, ts, actor, endpoint, params_json
FROM access_log
ORDER BY id DESC
LIMIT ?`
	recent, err := s.db.QueryContext(ctx, s.dialect.rebind(recentQ), recentLimit)
	if err != nil {
		return access.Summary{}, err
	}
	defer recent.Close()
	for recent.Next() {
		var (
			e          access.LogEntry
			paramsJSON sql.NullString
		)
		if err := recent.Scan(&e.ID, &e.TS, &e.Actor, &e.Endpoint, &paramsJSON); err != nil {
			return access.Summary{}, err
		}
		e.Params = map[string]string{}
		if paramsJSON.Valid && paramsJSON.String != "" {
			if err := json.Unmarshal([]byte(paramsJSON.String), &e.Params); err != nil {
				return access.Summary{}, err
			}
		}
		sum.Recent = append(sum.Recent, e)
	}
	return sum, recent.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
