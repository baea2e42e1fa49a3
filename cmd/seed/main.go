// seed provisions three demo users and a handful of ledger entries for local
// development. User creation is idempotent; entries are appended on each run.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/oakmoor/casetrail/internal/platform/auth"
	"github.com/oakmoor/casetrail/internal/platform/clock"
	"github.com/oakmoor/casetrail/internal/platform/ledger"
	"github.com/oakmoor/casetrail/internal/platform/storage"
)

var demoUsers = []struct {
	email string
	role  auth.Role
	key   string
}{
	{"admin@example.com", auth.RoleAdmin, "ADMIN_DEMO_KEY"},
	{"auditor@example.com", auth.RoleAuditor, "AUDITOR_DEMO_KEY"},
	{"investigator@example.com", auth.RoleInvestigator, "INVESTIGATOR_DEMO_KEY"},
}

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	db, dialect, err := storage.Open(envOr("CASETRAIL_DB_DRIVER", "sqlite"), envOr("CASETRAIL_DB_DSN", "casetrail.db"))
	if err != nil {
		fatal("open database: %v", err)
	}
	defer db.Close()

	if err := storage.InitSchema(ctx, db, dialect); err != nil {
		fatal("init schema: %v", err)
	}
	if err := storage.InstallGuard(ctx, db, dialect, storage.GuardStrict, nil); err != nil {
		fatal("install append-only guard: %v", err)
	}

	store := storage.NewSQLStore(db, dialect)
	n, err := store.CountUsers(ctx)
	if err != nil {
		fatal("count users: %v", err)
	}
	if n == 0 {
		for _, u := range demoUsers {
			if err := store.InsertUser(ctx, u.email, u.role, auth.KeyDigest(u.key)); err != nil {
				fatal("insert user %s: %v", u.email, err)
			}
			fmt.Printf("user %-26s role=%-12s key=%s\n", u.email, u.role, u.key)
		}
	}

	l := ledger.New(store, clock.RealClock{})
	for i := 0; i < 4; i++ {
		entry, err := l.Append(ctx, "system@seed", fmt.Sprintf("CASE-%d", 1000+i), "create_case",
			map[string]any{
				"note":  "Initial case created",
				"email": "alice@example.com",
				"phone": "+91 9876543210",
			}, "", "")
		if err != nil {
			fatal("append seed entry: %v", err)
		}
		fmt.Printf("entry id=%d case=%s hash=%s\n", entry.ID, entry.CaseID, entry.Hash[:12])
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
