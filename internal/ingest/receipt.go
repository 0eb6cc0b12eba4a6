package ingest

import (
	"context"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/artifact"
	"github.com/dvloznov/statement-ingest/internal/categorize"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/extract"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/receipt"
	"github.com/dvloznov/statement-ingest/internal/store"
)

// ReceiptAI reads receipt images with a generative model.
type ReceiptAI interface {
	ParseImage(ctx context.Context, data []byte, filename string) (receipt.Fields, error)
}

// Overrides are values the uploader typed in. Set fields win over anything
// extracted from the image.
type Overrides struct {
	Amount      *decimal.Decimal
	Date        *civil.Date
	Description string
	Category    string
}

// ReceiptRequest identifies an uploaded receipt image already saved in the
// artifact store.
type ReceiptRequest struct {
	OwnerID   string
	Path      string
	Filename  string
	Mode      Mode
	Overrides Overrides
}

// ReceiptIngester turns one receipt image into one expense.
type ReceiptIngester struct {
	artifacts   artifact.Store
	extractor   extract.Extractor
	store       store.Store
	ai          ReceiptAI
	defaultMode Mode
}

// NewReceiptIngester wires the collaborators. ai may be nil.
func NewReceiptIngester(artifacts artifact.Store, extractor extract.Extractor, st store.Store, ai ReceiptAI, defaultMode Mode) *ReceiptIngester {
	if defaultMode == "" {
		defaultMode = ModeHeuristic
	}
	return &ReceiptIngester{
		artifacts:   artifacts,
		extractor:   extractor,
		store:       st,
		ai:          ai,
		defaultMode: defaultMode,
	}
}

// Ingest processes one receipt. The image is kept only when the transaction
// row that points at it was inserted; every other outcome deletes it.
func (i *ReceiptIngester) Ingest(ctx context.Context, req ReceiptRequest) (*Report, error) {
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
		Str("kind", "receipt").
		Str("mode", string(state.Mode)).
		Logger()
	ctx = logger.WithContext(ctx, log)

	retain := false
	defer func() {
		if retain {
			log.Debug().Str("path", req.Path).Msg("artifact retained")
			return
		}
		if err := i.artifacts.Delete(ctx, req.Path); err != nil {
			log.Warn().Err(err).Str("path", req.Path).Msg("deleting artifact")
		}
	}()

	if state.Mode != ModeHeuristic && i.ai == nil {
		if state.Mode == ModeAI {
			err := &domain.ConfigurationError{Component: "ingest", Msg: "ai mode requested but no AI parser is configured"}
			state.Phase = PhaseFailed
			state.Message = err.Error()
			return newReport(state), err
		}
		state.Mode = ModeHeuristic
	}

	steps := []Step{&LoadArtifactStep{Artifacts: i.artifacts}}
	if state.Mode != ModeAI {
		steps = append(steps, &ExtractTextStep{Extractor: i.extractor, Tolerant: state.Mode == ModeAuto})
	}
	steps = append(steps,
		&ParseReceiptStep{AI: i.ai, Overrides: req.Overrides},
		&AttachSourceStep{Artifacts: i.artifacts},
		&PersistStep{Store: i.store},
	)

	err := NewPipeline(steps...).Execute(ctx, state)
	report := newReport(state)
	if err != nil {
		log.Error().Err(err).Msg("receipt ingestion failed")
		return report, err
	}

	retain = report.Inserted > 0
	if retain {
		report.SourceURL = i.artifacts.URL(req.Path)
	}
	log.Info().
		Bool("inserted", retain).
		Int("skipped", report.Skipped).
		Msg("receipt ingestion finished")
	return report, nil
}

// ParseReceiptStep recovers the receipt fields, applies overrides and builds
// the single expense candidate.
type ParseReceiptStep struct {
	AI        ReceiptAI
	Overrides Overrides
}

func (s *ParseReceiptStep) Phase() Phase { return PhaseParsing }

func (s *ParseReceiptStep) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)

	var (
		fields receipt.Fields
		err    error
	)
	switch state.Mode {
	case ModeAI:
		fields, err = s.askModel(ctx, state)
	case ModeAuto:
		fields = receipt.Parse(state.Text)
		if len(s.apply(fields).Missing()) > 0 {
			log.Info().Strs("missing", fields.Missing()).Msg("receipt heuristics incomplete, asking the model")
			var aiFields receipt.Fields
			aiFields, err = s.askModel(ctx, state)
			fields = merge(fields, aiFields)
		}
	default:
		fields = receipt.Parse(state.Text)
	}
	if err != nil {
		return err
	}

	fields = s.apply(fields)
	state.Receipt = &fields
	state.Result = &domain.ParseResult{
		Candidates:     []*domain.Candidate{},
		LinesSeen:      lineCount(state.Text),
		RawTextPreview: domain.Preview(state.Text),
	}

	if missing := fields.Missing(); len(missing) > 0 {
		return &domain.IncompleteReceiptError{Missing: missing}
	}
	if !fields.Amount.IsPositive() {
		return &domain.IncompleteReceiptError{Missing: []string{"amount"}}
	}

	state.Result.Candidates = append(state.Result.Candidates, &domain.Candidate{
		Date:        *fields.Date,
		Amount:      *fields.Amount,
		Type:        domain.TxExpense,
		Description: fields.Description,
		Category:    fields.Category,
		OwnerID:     state.OwnerID,
	})
	return nil
}

// askModel hands the raw upload to the model once its leading bytes confirm
// the declared file type.
func (s *ParseReceiptStep) askModel(ctx context.Context, state *State) (receipt.Fields, error) {
	if _, err := extract.Sniff(state.Data, state.Filename); err != nil {
		return receipt.Fields{}, err
	}
	return s.AI.ParseImage(ctx, state.Data, state.Filename)
}

// apply lays the overrides over f. An overridden description without an
// overridden category recomputes the category.
func (s *ParseReceiptStep) apply(f receipt.Fields) receipt.Fields {
	o := s.Overrides
	if o.Amount != nil {
		amount := *o.Amount
		f.Amount = &amount
	}
	if o.Date != nil {
		date := *o.Date
		f.Date = &date
	}
	if desc := domain.CollapseSpaces(o.Description); desc != "" {
		f.Description = desc
		f.Category = categorize.Categorize(desc, true)
	}
	if cat := strings.TrimSpace(o.Category); cat != "" {
		f.Category = cat
	}
	if f.Description == "" {
		f.Description = receipt.DefaultDescription
	}
	if f.Category == "" {
		f.Category = categorize.Categorize(f.Description, true)
	}
	return f
}

// merge fills the gaps in the heuristic result with the model's answer. A
// model description replaces the generic default only.
func merge(heuristic, model receipt.Fields) receipt.Fields {
	out := heuristic
	if out.Amount == nil {
		out.Amount = model.Amount
	}
	if out.Date == nil {
		out.Date = model.Date
	}
	if (out.Description == "" || out.Description == receipt.DefaultDescription) && model.Description != "" {
		out.Description = model.Description
		out.Category = model.Category
	}
	if out.Amount != nil && out.Date != nil {
		out.Confidence = domain.ConfidenceHigh
	}
	return out
}

func lineCount(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(text, "\n") + 1
}

// AttachSourceStep points the receipt candidate at its stored image.
type AttachSourceStep struct {
	Artifacts artifact.Store
}

func (s *AttachSourceStep) Phase() Phase { return PhasePersisting }

func (s *AttachSourceStep) Execute(ctx context.Context, state *State) error {
	url := s.Artifacts.URL(state.Path)
	for _, c := range state.Result.Candidates {
		c.SourceURL = url
	}
	return nil
}
