package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// TimestampLayout is the commit-time format: UTC, second precision, ISO-8601
// with a literal Z suffix.
const TimestampLayout = "2006-01-02T15:04:05Z"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimestampLayout)
}

// CanonicalPayload encodes the hashed fields of an entry as compact JSON with
// lexicographically sorted object keys. The encoding is frozen: historical
// hashes become unverifiable if it ever changes.
func CanonicalPayload(ts, actor, action, caseID string, details map[string]any, prevHash string) ([]byte, error) {
	if details == nil {
		details = map[string]any{}
	}
	payload := map[string]any{
		"ts":        ts,
		"actor":     actor,
		"action":    action,
		"case_id":   caseID,
		"details":   details,
		"prev_hash": prevHash,
	}
	return json.Marshal(payload)
}

// ComputeHash digests prevHash concatenated with the canonical payload. The
// genesis entry's logical predecessor is the empty string.
func ComputeHash(prevHash string, payload []byte) string {
	h := sha256.New()
	_, _ = h.Write([]byte(prevHash))
	_, _ = h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
