// Package store defines the persistence boundary for parsed transactions and
// user categories. Implementations live in the subpackages.
package store

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// Store persists candidates and categories. Implementations must be safe for
// concurrent use by independent ingestions.
type Store interface {
	// InsertMany is best effort: every candidate is either inserted or
	// counted as skipped, and Inserted+Skipped equals len(candidates).
	// The error is reserved for failures that prevented any attempt.
	InsertMany(ctx context.Context, candidates []*domain.Candidate) (*domain.InsertResult, error)

	// FindCategory returns nil, nil when the category does not exist.
	FindCategory(ctx context.Context, name string, t domain.TxType, ownerID string) (*domain.Category, error)

	// CreateCategory returns the existing record when one already matches.
	CreateCategory(ctx context.Context, name string, t domain.TxType, ownerID string) (*domain.Category, error)

	// FindDuplicates returns the fingerprints of candidates already stored.
	FindDuplicates(ctx context.Context, candidates []*domain.Candidate) (map[string]bool, error)

	Close() error
}

// Skip reasons recorded on domain.RowError.
const (
	ReasonDuplicate = "duplicate"
	ReasonInvalid   = "invalid"
)

// Row is a candidate accepted for insertion together with its position in the
// batch offered to InsertMany.
type Row struct {
	Index       int
	Fingerprint string
	Candidate   *domain.Candidate
}

// Screen validates candidates and drops repeats within the same batch,
// recording each refusal on res. The returned rows keep the input order.
func Screen(candidates []*domain.Candidate, res *domain.InsertResult) []Row {
	rows := make([]Row, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))

	for i, c := range candidates {
		if c == nil {
			res.Skip(i, "", ReasonInvalid+": nil candidate")
			continue
		}
		if err := c.Validate(); err != nil {
			res.Skip(i, "", fmt.Sprintf("%s: %v", ReasonInvalid, err))
			continue
		}
		fp := c.Fingerprint()
		if seen[fp] {
			res.Skip(i, fp, ReasonDuplicate)
			continue
		}
		seen[fp] = true
		rows = append(rows, Row{Index: i, Fingerprint: fp, Candidate: c})
	}
	return rows
}

// Fingerprints returns the duplicate keys of the valid candidates.
func Fingerprints(candidates []*domain.Candidate) []string {
	fps := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c == nil {
			continue
		}
		fp := c.Fingerprint()
		if !seen[fp] {
			seen[fp] = true
			fps = append(fps, fp)
		}
	}
	return fps
}

// CategoryKey identifies a category within an owner's namespace.
type CategoryKey struct {
	OwnerID string
	Name    string
	Type    domain.TxType
}
