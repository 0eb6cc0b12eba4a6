// Package app builds the ingestion components from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-ingest/internal/aiparse"
	"github.com/dvloznov/statement-ingest/internal/artifact"
	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/extract"
	"github.com/dvloznov/statement-ingest/internal/ingest"
	"github.com/dvloznov/statement-ingest/internal/store"
	bqstore "github.com/dvloznov/statement-ingest/internal/store/bigquery"
	"github.com/dvloznov/statement-ingest/internal/store/memory"
	"github.com/dvloznov/statement-ingest/internal/store/postgres"
)

// App holds the wired components. Close releases them in reverse order.
type App struct {
	Config     *config.Config
	Store      store.Store
	Artifacts  artifact.Store
	Extractor  extract.Extractor
	Statements *ingest.StatementIngester
	Receipts   *ingest.ReceiptIngester

	// StatementAI and ReceiptAI are nil when no model is configured.
	StatementAI *aiparse.StatementParser
	ReceiptAI   *aiparse.ReceiptParser

	closers []func() error
}

// New opens every backend cfg selects. On error anything already opened is
// closed.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (a *App, err error) {
	a = &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	statementMode, err := ingest.ParseMode(cfg.StatementMode, ingest.ModeHeuristic)
	if err != nil {
		return a, fmt.Errorf("app: STATEMENT_MODE: %w", err)
	}
	receiptMode, err := ingest.ParseMode(cfg.ReceiptMode, ingest.ModeHeuristic)
	if err != nil {
		return a, fmt.Errorf("app: RECEIPT_MODE: %w", err)
	}

	if a.Store, err = OpenStore(ctx, cfg); err != nil {
		return a, err
	}
	a.closers = append(a.closers, a.Store.Close)

	if a.Artifacts, err = a.openArtifacts(ctx, cfg); err != nil {
		return a, err
	}

	if a.Extractor, err = a.newExtractor(ctx, cfg); err != nil {
		return a, err
	}

	var (
		statementAI ingest.StatementAI
		receiptAI   ingest.ReceiptAI
	)
	if cfg.AIConfigured() {
		gen, err := aiparse.NewGeminiGenerator(ctx, aiparse.Config{
			APIKey:    cfg.GeminiAPIKey,
			Model:     cfg.GeminiModel,
			UseVertex: cfg.GeminiVertex,
			Project:   cfg.GCPProject,
			Location:  cfg.GeminiLocation,
		})
		if err != nil {
			return a, err
		}
		a.StatementAI = aiparse.NewStatementParser(gen)
		a.ReceiptAI = aiparse.NewReceiptParser(gen)
		statementAI, receiptAI = a.StatementAI, a.ReceiptAI
		log.Info().Str("model", gen.Model()).Msg("AI parsing enabled")
	} else {
		log.Info().Msg("AI parsing disabled: no model credentials configured")
	}

	a.Statements = ingest.NewStatementIngester(a.Artifacts, a.Extractor, a.Store, statementAI, statementMode)
	a.Receipts = ingest.NewReceiptIngester(a.Artifacts, a.Extractor, a.Store, receiptAI, receiptMode)

	log.Info().
		Str("store", cfg.StoreDriver).
		Str("artifacts", cfg.ArtifactDriver).
		Bool("ocr", cfg.OCREnabled).
		Str("statement_mode", string(statementMode)).
		Str("receipt_mode", string(receiptMode)).
		Msg("components ready")
	return a, nil
}

// OpenStore returns the transaction store named by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return memory.New(), nil
	case config.StorePostgres:
		return postgres.New(ctx, cfg.DatabaseURL)
	case config.StoreBigQuery:
		return bqstore.New(ctx, cfg.GCPProject, cfg.BQDataset)
	}
	return nil, fmt.Errorf("app: unknown store driver %q", cfg.StoreDriver)
}

func (a *App) openArtifacts(ctx context.Context, cfg *config.Config) (artifact.Store, error) {
	switch cfg.ArtifactDriver {
	case config.ArtifactLocal:
		return artifact.NewLocalStore(cfg.UploadDir, cfg.UploadURL)
	case config.ArtifactGCS:
		s, err := artifact.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSPrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	}
	return nil, fmt.Errorf("app: unknown artifact driver %q", cfg.ArtifactDriver)
}

func (a *App) newExtractor(ctx context.Context, cfg *config.Config) (extract.Extractor, error) {
	r := &extract.Router{PDF: extract.NewPDFExtractor(), Image: extract.DisabledOCR{}}
	if cfg.OCREnabled {
		ocr, err := extract.NewOCRExtractor(ctx)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ocr.Close)
		r.Image = ocr
	}
	return r, nil
}

// Close releases every opened backend and returns the first error.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
