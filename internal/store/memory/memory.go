// Package memory is a Store kept entirely in process memory.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/store"
)

// Record is a persisted transaction.
type Record struct {
	ID          string
	Fingerprint string
	CreatedAt   time.Time
	domain.Candidate
}

// Store is an in-memory implementation of store.Store.
// It is safe for concurrent use. Data is lost on restart.
type Store struct {
	mu         sync.RWMutex
	records    map[string]*Record
	order      []string
	categories map[store.CategoryKey]*domain.Category
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		records:    make(map[string]*Record),
		categories: make(map[store.CategoryKey]*domain.Category),
	}
}

// InsertMany implements store.Store.
func (s *Store) InsertMany(ctx context.Context, candidates []*domain.Candidate) (*domain.InsertResult, error) {
	res := &domain.InsertResult{}
	rows := store.Screen(candidates, res)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		if _, exists := s.records[r.Fingerprint]; exists {
			res.Skip(r.Index, r.Fingerprint, store.ReasonDuplicate)
			continue
		}
		// Copy so that callers cannot mutate stored rows.
		s.records[r.Fingerprint] = &Record{
			ID:          uuid.NewString(),
			Fingerprint: r.Fingerprint,
			CreatedAt:   time.Now().UTC(),
			Candidate:   *r.Candidate,
		}
		s.order = append(s.order, r.Fingerprint)
		res.Inserted++
	}
	return res, nil
}

// FindCategory implements store.Store.
func (s *Store) FindCategory(ctx context.Context, name string, t domain.TxType, ownerID string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[store.CategoryKey{OwnerID: ownerID, Name: name, Type: t}]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// CreateCategory implements store.Store.
func (s *Store) CreateCategory(ctx context.Context, name string, t domain.TxType, ownerID string) (*domain.Category, error) {
	if name == "" || ownerID == "" || !t.Valid() {
		return nil, fmt.Errorf("CreateCategory: name, owner and a valid type are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := store.CategoryKey{OwnerID: ownerID, Name: name, Type: t}
	c, ok := s.categories[key]
	if !ok {
		c = &domain.Category{
			ID:        uuid.NewString(),
			Name:      name,
			Type:      t,
			OwnerID:   ownerID,
			CreatedAt: time.Now().UTC(),
		}
		s.categories[key] = c
	}
	cp := *c
	return &cp, nil
}

// FindDuplicates implements store.Store.
func (s *Store) FindDuplicates(ctx context.Context, candidates []*domain.Candidate) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dups := make(map[string]bool)
	for _, fp := range store.Fingerprints(candidates) {
		if _, ok := s.records[fp]; ok {
			dups[fp] = true
		}
	}
	return dups, nil
}

// Records returns the owner's transactions in insertion order.
func (s *Store) Records(ownerID string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, fp := range s.order {
		r := s.records[fp]
		if ownerID == "" || r.OwnerID == ownerID {
			out = append(out, *r)
		}
	}
	return out
}

// Categories returns the number of categories across all owners.
func (s *Store) Categories() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.categories)
}

// Close implements store.Store.
func (s *Store) Close() error {
	return nil
}
