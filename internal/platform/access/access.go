// Package access keeps the who-accessed-what accountability log. It is
// independent of the integrity chain: rows are plain records, and a failure
// to record an access must never block the read that triggered it.
package access

import (
	"context"

	"go.uber.org/zap"

	"github.com/oakmoor/casetrail/internal/platform/clock"
	"github.com/oakmoor/casetrail/internal/platform/ledger"
)

type LogEntry struct {
	ID       int64             `json:"-"`
	TS       string            `json:"ts"`
	Actor    string            `json:"actor"`
	Endpoint string            `json:"endpoint"`
	Params   map[string]string `json:"params"`
}

type Summary struct {
	ByUser map[string]int64 `json:"by_user"`
	Recent []LogEntry       `json:"recent"`
	Total  int64            `json:"total"`
}

type Store interface {
	InsertAccess(ctx context.Context, e LogEntry) error
	// AccessSummary aggregates counts per actor and returns the most recent
	// rows, newest first, bounded by recentLimit.
	AccessSummary(ctx context.Context, recentLimit int) (Summary, error)
}

// RecentWindow bounds the recent-activity slice of the report.
const RecentWindow = 50

type Recorder struct {
	store Store
	clock clock.Clock
	log   *zap.Logger
}

func NewRecorder(store Store, clk clock.Clock, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, clock: clk, log: log}
}

// Record appends one accountability row. Errors are swallowed after logging:
// accountability is best-effort and must not fail a legitimate read.
func (r *Recorder) Record(ctx context.Context, actor, endpoint string, params map[string]string) {
	if params == nil {
		params = map[string]string{}
	}
	e := LogEntry{
		TS:       ledger.FormatTimestamp(r.clock.Now()),
		Actor:    actor,
		Endpoint: endpoint,
		Params:   params,
	}
	if err := r.store.InsertAccess(ctx, e); err != nil {
		r.log.Warn("access record dropped",
			zap.String("actor", actor),
			zap.String("endpoint", endpoint),
			zap.Error(err))
	}
}

func (r *Recorder) Report(ctx context.Context) (Summary, error) {
	return r.store.AccessSummary(ctx, RecentWindow)
}
