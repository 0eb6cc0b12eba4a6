package ingest

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-ingest/internal/artifact"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/extract"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/store"
)

// LoadArtifactStep reads the uploaded bytes from the artifact store.
type LoadArtifactStep struct {
	Artifacts artifact.Store
}

func (s *LoadArtifactStep) Phase() Phase { return PhaseExtracting }

func (s *LoadArtifactStep) Execute(ctx context.Context, state *State) error {
	data, err := s.Artifacts.ReadBytes(ctx, state.Path)
	if err != nil {
		return domain.NewExtractionError(state.Filename, "reading artifact", err)
	}
	state.Data = data
	return nil
}

// ExtractTextStep turns the artifact into text. With Tolerant set an
// extraction failure leaves Text empty so that a later step can hand the raw
// bytes to the model instead.
type ExtractTextStep struct {
	Extractor extract.Extractor
	Tolerant  bool
}

func (s *ExtractTextStep) Phase() Phase { return PhaseExtracting }

func (s *ExtractTextStep) Execute(ctx context.Context, state *State) error {
	text, err := s.Extractor.Extract(ctx, state.Data, state.Filename)
	if err != nil {
		if s.Tolerant && domain.IsExtractionError(err) {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Msg("text extraction failed, continuing with raw artifact")
			return nil
		}
		return err
	}
	state.Text = text
	return nil
}

// PersistStep numbers repeated rows, makes sure the category of every row the
// store will accept exists for the owner and then inserts all candidates with
// a single bulk call.
type PersistStep struct {
	Store store.Store
}

func (s *PersistStep) Phase() Phase { return PhasePersisting }

func (s *PersistStep) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)
	candidates := state.Result.Candidates
	domain.NumberOccurrences(candidates)

	ensureCategories(ctx, s.Store, insertable(ctx, s.Store, candidates))

	res, err := s.Store.InsertMany(ctx, candidates)
	if err != nil {
		return fmt.Errorf("inserting transactions: %w", err)
	}
	state.Insert = res

	log.Info().
		Int("processed", len(candidates)).
		Int("inserted", res.Inserted).
		Int("skipped", res.Skipped).
		Msg("transactions persisted")
	return nil
}

// insertable returns the valid candidates that are not stored yet. When the
// duplicate lookup fails every valid candidate is returned.
func insertable(ctx context.Context, st store.Store, candidates []*domain.Candidate) []*domain.Candidate {
	valid := make([]*domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c != nil && c.Validate() == nil {
			valid = append(valid, c)
		}
	}
	if len(valid) == 0 {
		return valid
	}

	stored, err := st.FindDuplicates(ctx, valid)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("looking up stored duplicates")
		return valid
	}

	fresh := make([]*domain.Candidate, 0, len(valid))
	for _, c := range valid {
		if !stored[c.Fingerprint()] {
			fresh = append(fresh, c)
		}
	}
	if n := len(valid) - len(fresh); n > 0 {
		log := logger.FromContext(ctx)
		log.Debug().Int("already_stored", n).Msg("skipping categories of stored rows")
	}
	return fresh
}

// ensureCategories creates missing categories lazily. Failures are logged;
// the category name travels on the transaction row regardless.
func ensureCategories(ctx context.Context, st store.Store, candidates []*domain.Candidate) {
	log := logger.FromContext(ctx)
	seen := make(map[store.CategoryKey]bool)

	for _, c := range candidates {
		key := store.CategoryKey{OwnerID: c.OwnerID, Name: c.Category, Type: c.Type}
		if seen[key] || c.Category == "" {
			continue
		}
		seen[key] = true

		existing, err := st.FindCategory(ctx, key.Name, key.Type, key.OwnerID)
		if err != nil {
			log.Warn().Err(err).Str("category", key.Name).Msg("looking up category")
			continue
		}
		if existing != nil {
			continue
		}
		if _, err := st.CreateCategory(ctx, key.Name, key.Type, key.OwnerID); err != nil {
			log.Warn().Err(err).Str("category", key.Name).Msg("creating category")
			continue
		}
		log.Debug().Str("category", key.Name).Str("type", string(key.Type)).Msg("category created")
	}
}
