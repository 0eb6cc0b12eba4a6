// Package bigquery is a Store backed by BigQuery tables.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/store"
)

// Store implements store.Store over a Backend.
type Store struct {
	backend Backend
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

// New opens a store on the given project and dataset.
func New(ctx context.Context, projectID, datasetID string) (*Store, error) {
	if projectID == "" || datasetID == "" {
		return nil, &domain.ConfigurationError{Component: "bigquery", Msg: "project and dataset are required"}
	}
	c, err := NewClient(ctx, projectID, datasetID)
	if err != nil {
		return nil, fmt.Errorf("bigquery.New: %w", err)
	}
	return NewWithBackend(c), nil
}

// NewWithBackend wraps an existing backend.
func NewWithBackend(b Backend) *Store {
	return &Store{backend: b, now: time.Now}
}

// InsertMany checks for stored fingerprints first, then streams the rest.
// Streaming inserts have no uniqueness constraint, so the pre-check is what
// keeps duplicates out.
func (s *Store) InsertMany(ctx context.Context, candidates []*domain.Candidate) (*domain.InsertResult, error) {
	log := logger.FromContext(ctx)
	res := &domain.InsertResult{}
	rows := store.Screen(candidates, res)
	if len(rows) == 0 {
		return res, nil
	}

	fps := make([]string, len(rows))
	for i, r := range rows {
		fps[i] = r.Fingerprint
	}
	existing, err := s.backend.QueryFingerprints(ctx, fps)
	if err != nil {
		return nil, fmt.Errorf("InsertMany: checking duplicates: %w", err)
	}
	stored := make(map[string]bool, len(existing))
	for _, fp := range existing {
		stored[fp] = true
	}

	var (
		pending []store.Row
		toPut   []*TransactionRow
	)
	created := s.now().UTC()
	for _, r := range rows {
		if stored[r.Fingerprint] {
			res.Skip(r.Index, r.Fingerprint, store.ReasonDuplicate)
			continue
		}
		pending = append(pending, r)
		toPut = append(toPut, toTransactionRow(r, created))
	}
	if len(toPut) == 0 {
		return res, nil
	}

	err = s.backend.PutTransactions(ctx, toPut)
	if err == nil {
		res.Inserted += len(toPut)
		return res, nil
	}

	var multi bigquery.PutMultiError
	if !errors.As(err, &multi) {
		log.Error().Err(err).Int("rows", len(toPut)).Msg("streaming insert failed")
		for _, r := range pending {
			res.Skip(r.Index, r.Fingerprint, err.Error())
		}
		return res, nil
	}

	failed := make(map[int]string, len(multi))
	for _, rowErr := range multi {
		failed[rowErr.RowIndex] = rowErr.Errors.Error()
	}
	for i, r := range pending {
		if reason, bad := failed[i]; bad {
			res.Skip(r.Index, r.Fingerprint, reason)
			continue
		}
		res.Inserted++
	}
	log.Warn().Int("failed_rows", len(failed)).Msg("streaming insert rejected rows")
	return res, nil
}

func toTransactionRow(r store.Row, created time.Time) *TransactionRow {
	c := r.Candidate
	return &TransactionRow{
		TransactionID:   uuid.NewString(),
		OwnerID:         c.OwnerID,
		Fingerprint:     r.Fingerprint,
		TransactionDate: c.Date,
		Amount:          c.Amount.Round(2).Rat(),
		Direction:       string(c.Type),
		Description:     c.Description,
		CategoryName:    c.Category,
		SourceURL:       bigquery.NullString{StringVal: c.SourceURL, Valid: c.SourceURL != ""},
		CreatedTS:       created,
	}
}

// FindCategory implements store.Store.
func (s *Store) FindCategory(ctx context.Context, name string, t domain.TxType, ownerID string) (*domain.Category, error) {
	row, err := s.backend.QueryCategory(ctx, ownerID, name, string(t))
	if err != nil {
		return nil, fmt.Errorf("FindCategory: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return toCategory(row), nil
}

// CreateCategory implements store.Store.
func (s *Store) CreateCategory(ctx context.Context, name string, t domain.TxType, ownerID string) (*domain.Category, error) {
	if name == "" || ownerID == "" || !t.Valid() {
		return nil, fmt.Errorf("CreateCategory: name, owner and a valid type are required")
	}

	existing, err := s.FindCategory(ctx, name, t, ownerID)
	if err != nil {
		return nil, fmt.Errorf("CreateCategory: finding existing category: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	row := &CategoryRow{
		CategoryID: uuid.NewString(),
		OwnerID:    ownerID,
		Name:       name,
		Type:       string(t),
		CreatedTS:  s.now().UTC(),
	}
	if err := s.backend.InsertCategory(ctx, row); err != nil {
		return nil, fmt.Errorf("CreateCategory: %w", err)
	}
	return toCategory(row), nil
}

func toCategory(row *CategoryRow) *domain.Category {
	return &domain.Category{
		ID:        row.CategoryID,
		Name:      row.Name,
		Type:      domain.TxType(row.Type),
		OwnerID:   row.OwnerID,
		CreatedAt: row.CreatedTS,
	}
}

// FindDuplicates implements store.Store.
func (s *Store) FindDuplicates(ctx context.Context, candidates []*domain.Candidate) (map[string]bool, error) {
	dups := make(map[string]bool)
	fps := store.Fingerprints(candidates)
	if len(fps) == 0 {
		return dups, nil
	}
	found, err := s.backend.QueryFingerprints(ctx, fps)
	if err != nil {
		return nil, fmt.Errorf("FindDuplicates: %w", err)
	}
	for _, fp := range found {
		dups[fp] = true
	}
	return dups, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
