// Package postgres is a Store backed by PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/store"
)

const (
	insertTransactionSQL = `
		INSERT INTO transactions (
			id, owner_id, fingerprint, tx_date, amount,
			type, description, category, source_url
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
		ON CONFLICT (fingerprint) DO NOTHING`

	findCategorySQL = `
		SELECT id::text, name, type, owner_id, created_at
		FROM categories
		WHERE owner_id = $1 AND name = $2 AND type = $3`

	// The no-op update makes RETURNING yield the existing row on conflict.
	createCategorySQL = `
		INSERT INTO categories (id, owner_id, name, type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id, name, type) DO UPDATE SET name = EXCLUDED.name
		RETURNING id::text, name, type, owner_id, created_at`

	findDuplicatesSQL = `SELECT fingerprint FROM transactions WHERE fingerprint = ANY($1)`
)

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New connects to dsn and verifies the connection.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parsing dsn: %w", err)
	}
	cfg.MaxConns = 25
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: could not connect to the database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate executes a schema script. Scripts may hold several statements.
func (s *Store) Migrate(ctx context.Context, script string) error {
	if _, err := s.pool.Exec(ctx, script); err != nil {
		return fmt.Errorf("Migrate: executing script: %w", err)
	}
	return nil
}

// InsertMany sends every accepted row in one batch. When the batch fails as a
// whole the rows are retried individually so that a bad row costs only itself.
func (s *Store) InsertMany(ctx context.Context, candidates []*domain.Candidate) (*domain.InsertResult, error) {
	log := logger.FromContext(ctx)
	res := &domain.InsertResult{}
	rows := store.Screen(candidates, res)
	if len(rows) == 0 {
		return res, nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertTransactionSQL, insertArgs(r)...)
	}

	affected, err := s.sendBatch(ctx, batch, len(rows))
	if err != nil {
		log.Warn().Err(err).Int("rows", len(rows)).Msg("batch insert failed, retrying rows individually")
		return s.insertEach(ctx, rows, res)
	}

	for i, r := range rows {
		if affected[i] == 0 {
			res.Skip(r.Index, r.Fingerprint, store.ReasonDuplicate)
			continue
		}
		res.Inserted++
	}
	return res, nil
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) ([]int64, error) {
	br := s.pool.SendBatch(ctx, batch)
	affected := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return nil, fmt.Errorf("sendBatch: row %d: %w", i, err)
		}
		affected = append(affected, tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("sendBatch: closing batch: %w", err)
	}
	return affected, nil
}

func (s *Store) insertEach(ctx context.Context, rows []store.Row, res *domain.InsertResult) (*domain.InsertResult, error) {
	for _, r := range rows {
		tag, err := s.pool.Exec(ctx, insertTransactionSQL, insertArgs(r)...)
		switch {
		case err != nil:
			res.Skip(r.Index, r.Fingerprint, err.Error())
		case tag.RowsAffected() == 0:
			res.Skip(r.Index, r.Fingerprint, store.ReasonDuplicate)
		default:
			res.Inserted++
		}
	}
	return res, nil
}

func insertArgs(r store.Row) []any {
	c := r.Candidate
	return []any{
		uuid.NewString(),
		c.OwnerID,
		r.Fingerprint,
		c.Date.In(time.UTC),
		c.Amount.StringFixed(2),
		string(c.Type),
		c.Description,
		c.Category,
		c.SourceURL,
	}
}

// FindCategory implements store.Store.
func (s *Store) FindCategory(ctx context.Context, name string, t domain.TxType, ownerID string) (*domain.Category, error) {
	c, err := scanCategory(s.pool.QueryRow(ctx, findCategorySQL, ownerID, name, string(t)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindCategory: %w", err)
	}
	return c, nil
}

// CreateCategory implements store.Store.
func (s *Store) CreateCategory(ctx context.Context, name string, t domain.TxType, ownerID string) (*domain.Category, error) {
	if name == "" || ownerID == "" || !t.Valid() {
		return nil, fmt.Errorf("CreateCategory: name, owner and a valid type are required")
	}
	c, err := scanCategory(s.pool.QueryRow(ctx, createCategorySQL, uuid.NewString(), ownerID, name, string(t)))
	if err != nil {
		return nil, fmt.Errorf("CreateCategory: %w", err)
	}
	return c, nil
}

func scanCategory(row pgx.Row) (*domain.Category, error) {
	var (
		c  domain.Category
		tt string
	)
	if err := row.Scan(&c.ID, &c.Name, &tt, &c.OwnerID, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Type = domain.TxType(tt)
	return &c, nil
}

// FindDuplicates implements store.Store.
func (s *Store) FindDuplicates(ctx context.Context, candidates []*domain.Candidate) (map[string]bool, error) {
	dups := make(map[string]bool)
	fps := store.Fingerprints(candidates)
	if len(fps) == 0 {
		return dups, nil
	}

	rows, err := s.pool.Query(ctx, findDuplicatesSQL, fps)
	if err != nil {
		return nil, fmt.Errorf("FindDuplicates: query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("FindDuplicates: scan: %w", err)
		}
		dups[fp] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("FindDuplicates: rows: %w", err)
	}
	return dups, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
