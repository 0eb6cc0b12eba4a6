package domain

import "unicode/utf8"

// previewLimit caps RawTextPreview in runes.
const previewLimit = 500

// ParseResult is the outcome of one parse over one artifact. It is created per
// upload and discarded once the response is written.
type ParseResult struct {
	Candidates     []*Candidate `json:"candidates"`
	LinesSeen      int          `json:"lines_seen"`
	RawTextPreview string       `json:"raw_text_preview"`
}

// Preview returns at most the first 500 runes of text.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLimit])
}

// RowError describes a single candidate a store refused.
type RowError struct {
	Index       int    `json:"index"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Reason      string `json:"reason"`
}

// InsertResult is the typed outcome of a best-effort bulk insert.
// Inserted + Skipped always equals the number of candidates offered.
type InsertResult struct {
	Inserted int        `json:"inserted"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors,omitempty"`
}

// Skip records a refused row.
func (r *InsertResult) Skip(index int, fingerprint, reason string) {
	r.Skipped++
	r.Errors = append(r.Errors, RowError{Index: index, Fingerprint: fingerprint, Reason: reason})
}
