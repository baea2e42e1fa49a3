// Package ledger owns the tamper-evident hash chain: append-with-chaining
// and full-chain verification. Every entry binds itself to its predecessor
// through SHA-256 over a canonical payload, so any retroactive edit breaks
// the chain from that row forward.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/oakmoor/casetrail/internal/platform/clock"
)

// Store is the durability boundary of the ledger. Implementations must
// serialize AppendEntry across concurrent appenders: the prev hash handed to
// fill and the commit of the returned entry form one critical section, or two
// appenders can observe the same predecessor and fork the chain.
type Store interface {
	// AppendEntry reads the hash of the most recently committed entry (""
	// when the ledger is empty), passes it to fill, and commits the entry
	// fill returns, assigning its id. Read and commit are atomic.
	AppendEntry(ctx context.Context, fill func(prevHash string) (Entry, error)) (Entry, error)

	// ScanAscending visits every entry in ascending id order from a single
	// consistent snapshot.
	ScanAscending(ctx context.Context, fn func(Entry) error) error

	// ListDescending returns up to limit entries, newest first.
	ListDescending(ctx context.Context, limit int) ([]Entry, error)
}

// ValidationError reports a malformed append payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type Ledger struct {
	store Store
	clock clock.Clock
}

func New(store Store, clk clock.Clock) *Ledger {
	return &Ledger{store: store, clock: clk}
}

// Append validates the payload, computes the next chain link and commits the
// entry. The returned entry is fully populated, including its assigned id.
func (l *Ledger) Append(ctx context.Context, actor, caseID, action string, details map[string]any, ip, ua string) (Entry, error) {
	if strings.TrimSpace(caseID) == "" {
		return Entry{}, &ValidationError{Field: "case_id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(action) == "" {
		return Entry{}, &ValidationError{Field: "action", Reason: "must not be empty"}
	}
	if details == nil {
		details = map[string]any{}
	}

	ts := FormatTimestamp(l.clock.Now())
	return l.store.AppendEntry(ctx, func(prevHash string) (Entry, error) {
		payload, err := CanonicalPayload(ts, actor, action, caseID, details, prevHash)
		if err != nil {
			return Entry{}, &ValidationError{Field: "details", Reason: "values must be JSON-serializable"}
		}
		return Entry{
			TS:       ts,
			Actor:    actor,
			Action:   action,
			CaseID:   caseID,
			Details:  details,
			PrevHash: prevHash,
			Hash:     ComputeHash(prevHash, payload),
			IP:       ip,
			UA:       ua,
		}, nil
	})
}

// Verify rescans the whole chain in ascending id order, recomputing each
// entry's expected hash from its own payload and the previous entry's
// recomputed hash. Rechaining through recomputed hashes means an early tamper
// invalidates every row after it. Count always reflects the total number of
// rows scanned, including rows past the first bad link.
func (l *Ledger) Verify(ctx context.Context) (Report, error) {
	prev := ""
	count := 0
	var firstBad *int64

	err := l.store.ScanAscending(ctx, func(e Entry) error {
		count++
		if firstBad != nil {
			return nil
		}
		payload, err := CanonicalPayload(e.TS, e.Actor, e.Action, e.CaseID, e.Details, prev)
		if err != nil {
			id := e.ID
			firstBad = &id
			return nil
		}
		if ComputeHash(prev, payload) != e.Hash {
			id := e.ID
			firstBad = &id
			return nil
		}
		prev = e.Hash
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	return Report{OK: firstBad == nil, FirstBadID: firstBad, Count: count}, nil
}

// List returns up to limit entries, newest first.
func (l *Ledger) List(ctx context.Context, limit int) ([]Entry, error) {
	return l.store.ListDescending(ctx, limit)
}

// ExportAll returns every entry in ascending id order.
func (l *Ledger) ExportAll(ctx context.Context) ([]Entry, error) {
	out := make([]Entry, 0, 64)
	err := l.store.ScanAscending(ctx, func(e Entry) error {
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
