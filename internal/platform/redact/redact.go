// Package redact masks substrings that look like PII before entries leave a
// privileged boundary. The patterns are best-effort heuristics, not a PII
// classifier: false positives and false negatives are expected.
package redact

import (
	"fmt"
	"regexp"

	"github.com/oakmoor/casetrail/internal/platform/auth"
	"github.com/oakmoor/casetrail/internal/platform/ledger"
)

// Rule rewrites one PII shape. Replacement uses regexp expansion syntax.
type Rule struct {
	Pattern *regexp.Regexp
	Replace string
}

// DefaultRules cover email-like substrings (first local-part character and
// the domain survive), phone-like digit runs (leading digit survives), and
// two-capitalized-word names (initials survive). Each output is a fixed
// point of its own rule, which keeps Mask idempotent.
func DefaultRules() []Rule {
	return []Rule{
		{regexp.MustCompile(`([A-Za-z0-9._%+-])([A-Za-z0-9._%+-]*)(@[A-Za-z0-9.-]+)`), "${1}***${3}"},
		{regexp.MustCompile(`(\+?\d)[\d\s-]{6,}\d`), "${1}*******"},
		{regexp.MustCompile(`\b([A-Z])[a-z]+\s([A-Z])[a-z]+\b`), "${1}*** ${2}***"},
	}
}

// SensitiveKeys are the details keys subject to redaction on read paths.
var SensitiveKeys = map[string]struct{}{
	"name":    {},
	"email":   {},
	"phone":   {},
	"address": {},
	"note":    {},
}

type Masker struct {
	rules []Rule
}

// NewMasker builds a masker from the given rules, falling back to
// DefaultRules when none are supplied.
func NewMasker(rules ...Rule) *Masker {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Masker{rules: rules}
}

// Mask applies every rule to s. Pure and idempotent.
func (m *Masker) Mask(s string) string {
	if s == "" {
		return s
	}
	for _, r := range m.rules {
		s = r.Pattern.ReplaceAllString(s, r.Replace)
	}
	return s
}

// Entry returns a copy of e with sensitive details values masked, unless the
// caller's role may see unmasked data and did not force masking on. Export
// callers without unmasked capability are force-masked regardless of their
// requested flag.
func (m *Masker) Entry(e ledger.Entry, role auth.Role, forceMask bool) ledger.Entry {
	if role.Can(auth.PermExportUnmasked) && !forceMask {
		return e
	}
	if len(e.Details) == 0 {
		return e
	}
	masked := make(map[string]any, len(e.Details))
	for k, v := range e.Details {
		if _, sensitive := SensitiveKeys[k]; !sensitive {
			masked[k] = v
			continue
		}
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		masked[k] = m.Mask(s)
	}
	out := e
	out.Details = masked
	return out
}
