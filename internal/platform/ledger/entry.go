package ledger

// Entry is one committed row of the audit ledger. Once committed it is
// immutable: id and the hash pair are assigned exactly once, at append time.
type Entry struct {
	ID       int64
	TS       string
	Actor    string
	Action   string
	CaseID   string
	Details  map[string]any
	PrevHash string
	Hash     string

	// Request provenance. Recorded alongside the entry but excluded from
	// the hash input.
	IP string
	UA string
}

// Report is the outcome of a full-chain verification pass. It is a result,
// not an error: a broken chain is reported through OK and FirstBadID so
// operators can inspect the first corrupted row.
type Report struct {
	OK         bool   `json:"ok"`
	FirstBadID *int64 `json:"bad_at"`
	Count      int    `json:"count"`
}
