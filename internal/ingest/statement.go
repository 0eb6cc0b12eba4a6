package ingest

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-ingest/internal/artifact"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/extract"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/statement"
	"github.com/dvloznov/statement-ingest/internal/store"
)

// StatementAI parses statements with a generative model.
type StatementAI interface {
	ParseText(ctx context.Context, text, ownerID string) (*domain.ParseResult, error)
	ParseDocument(ctx context.Context, pdfBytes []byte, ownerID string) (*domain.ParseResult, error)
}

// StatementRequest identifies an uploaded statement already saved in the
// artifact store.
type StatementRequest struct {
	OwnerID  string
	Path     string
	Filename string
	Mode     Mode
}

// StatementIngester runs statement uploads through extraction, parsing and
// persistence.
type StatementIngester struct {
	artifacts   artifact.Store
	extractor   extract.Extractor
	store       store.Store
	ai          StatementAI
	defaultMode Mode
}

// NewStatementIngester wires the collaborators. ai may be nil, in which case
// only heuristic parsing is available.
func NewStatementIngester(artifacts artifact.Store, extractor extract.Extractor, st store.Store, ai StatementAI, defaultMode Mode) *StatementIngester {
	if defaultMode == "" {
		defaultMode = ModeHeuristic
	}
	return &StatementIngester{
		artifacts:   artifacts,
		extractor:   extractor,
		store:       st,
		ai:          ai,
		defaultMode: defaultMode,
	}
}

// Ingest processes one statement. The artifact is deleted on every exit path.
// Zero recognized transactions is a successful, empty report.
func (i *StatementIngester) Ingest(ctx context.Context, req StatementRequest) (*Report, error) {
	state := &State{
		IngestionID: uuid.NewString(),
		OwnerID:     req.OwnerID,
		Path:        req.Path,
		Filename:    req.Filename,
		Mode:        req.Mode,
	}
	if state.Mode == "" {
		state.Mode = i.defaultMode
	}

	log := logger.FromContext(ctx).With().
		Str("ingestion_id", state.IngestionID).
		Str("owner_id", req.OwnerID).
		Str("kind", "statement").
		Str("mode", string(state.Mode)).
		Logger()
	ctx = logger.WithContext(ctx, log)

	defer i.cleanup(ctx, log, req.Path)

	if state.Mode != ModeHeuristic && i.ai == nil {
		if state.Mode == ModeAI {
			err := &domain.ConfigurationError{Component: "ingest", Msg: "ai mode requested but no AI parser is configured"}
			state.Phase = PhaseFailed
			state.Message = err.Error()
			return newReport(state), err
		}
		state.Mode = ModeHeuristic
	}

	p := NewPipeline(
		&LoadArtifactStep{Artifacts: i.artifacts},
		&ExtractTextStep{Extractor: i.extractor, Tolerant: state.Mode != ModeHeuristic},
		&ParseStatementStep{AI: i.ai},
		&PersistStep{Store: i.store},
	)

	err := p.Execute(ctx, state)
	report := newReport(state)
	if err != nil {
		log.Error().Err(err).Msg("statement ingestion failed")
		return report, err
	}

	log.Info().
		Int("processed", report.Processed).
		Int("inserted", report.Inserted).
		Int("skipped", report.Skipped).
		Msg("statement ingestion finished")
	return report, nil
}

func (i *StatementIngester) cleanup(ctx context.Context, log zerolog.Logger, path string) {
	if err := i.artifacts.Delete(ctx, path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("deleting artifact")
	}
}

// ParseStatementStep produces candidates from the extracted text.
type ParseStatementStep struct {
	AI StatementAI
}

func (s *ParseStatementStep) Phase() Phase { return PhaseParsing }

func (s *ParseStatementStep) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)

	var (
		res *domain.ParseResult
		err error
	)
	switch state.Mode {
	case ModeAI:
		res, err = s.parseWithAI(ctx, state)
	case ModeAuto:
		res = statement.Parse(ctx, state.Text, state.OwnerID)
		if len(res.Candidates) == 0 {
			log.Info().Int("lines_seen", res.LinesSeen).Msg("heuristic parser found nothing, asking the model")
			res, err = s.parseWithAI(ctx, state)
		}
	default:
		res = statement.Parse(ctx, state.Text, state.OwnerID)
	}
	if err != nil {
		return err
	}

	state.Result = res
	if len(res.Candidates) == 0 {
		return domain.ErrNoTransactions
	}
	return nil
}

func (s *ParseStatementStep) parseWithAI(ctx context.Context, state *State) (*domain.ParseResult, error) {
	if state.Text == "" {
		return s.AI.ParseDocument(ctx, state.Data, state.OwnerID)
	}
	return s.AI.ParseText(ctx, state.Text, state.OwnerID)
}
