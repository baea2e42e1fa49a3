package access

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/oakmoor/casetrail/internal/platform/clock"
)

type failingStore struct{}

func (failingStore) InsertAccess(context.Context, LogEntry) error {
	return errors.New("disk full")
}

func (failingStore) AccessSummary(context.Context, int) (Summary, error) {
	return Summary{}, errors.New("disk full")
}

func TestRecordAndReport(t *testing.T) {
	store := NewMemoryStore()
	clk := clock.Fixed{T: time.Date(2026, 2, 11, 18, 0, 0, 0, time.UTC)}
	rec := NewRecorder(store, clk, zap.NewNop())
	ctx := context.Background()

	rec.Record(ctx, "admin@example.com", "/log/list", map[string]string{"limit": "10"})
	rec.Record(ctx, "admin@example.com", "/export/logs", nil)
	rec.Record(ctx, "auditor@example.com", "/reports/access", nil)

	sum, err := rec.Report(ctx)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if sum.Total != 3 {
		t.Fatalf("total = %d, want 3", sum.Total)
	}
	if sum.ByUser["admin@example.com"] != 2 || sum.ByUser["auditor@example.com"] != 1 {
		t.Fatalf("per-actor counts wrong: %+v", sum.ByUser)
	}
	if len(sum.Recent) != 3 || sum.Recent[0].Endpoint != "/reports/access" {
		t.Fatalf("recent must be newest first, got %+v", sum.Recent)
	}
	if sum.Recent[0].TS != "2026-02-11T18:00:00Z" {
		t.Fatalf("timestamp format drift: %s", sum.Recent[0].TS)
	}
}

func TestRecentWindowIsBounded(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, clock.RealClock{}, nil)
	ctx := context.Background()

	for i := 0; i < RecentWindow+20; i++ {
		rec.Record(ctx, fmt.Sprintf("actor-%d", i), "/log/list", nil)
	}
	sum, err := rec.Report(ctx)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(sum.Recent) != RecentWindow {
		t.Fatalf("recent window = %d, want %d", len(sum.Recent), RecentWindow)
	}
	if sum.Total != RecentWindow+20 {
		t.Fatalf("total must count all rows, got %d", sum.Total)
	}
}

func TestRecordSwallowsStoreFailures(t *testing.T) {
	rec := NewRecorder(failingStore{}, clock.RealClock{}, zap.NewNop())
	// Must not panic or surface the error.
	rec.Record(context.Background(), "admin@example.com", "/log/list", nil)
}
