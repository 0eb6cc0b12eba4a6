package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/aiparse"
	"github.com/dvloznov/statement-ingest/internal/api/middleware"
	"github.com/dvloznov/statement-ingest/internal/app"
	"github.com/dvloznov/statement-ingest/internal/artifact"
	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/extract"
	"github.com/dvloznov/statement-ingest/internal/ingest"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/receipt"
	"github.com/dvloznov/statement-ingest/internal/statement"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Out: os.Stderr})

	switch os.Args[1] {
	case "parse-statement":
		runParseStatement(cfg, log)
	case "parse-receipt":
		runParseReceipt(cfg, log)
	case "ingest-statement":
		runIngestStatement(cfg, log)
	case "ingest-receipt":
		runIngestReceipt(cfg, log)
	case "upload":
		runUpload(cfg, log)
	case "token":
		runToken(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Statement ingestion CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  parse-statement   Parse a statement and print the candidates (nothing is stored)")
	fmt.Println("  parse-receipt     Parse a receipt image and print the recovered fields")
	fmt.Println("  ingest-statement  Parse a statement and persist its transactions")
	fmt.Println("  ingest-receipt    Parse a receipt and persist the expense")
	fmt.Println("  upload            Upload a local file to GCS")
	fmt.Println("  token             Print a signed API token for an owner")
	fmt.Println("  help              Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runParseStatement(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("parse-statement", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to the statement PDF")
	owner := fs.String("owner", "cli", "Owner id stamped on the candidates")
	mode := fs.String("mode", "heuristic", "heuristic, ai or auto")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli parse-statement -file PATH [-mode heuristic|ai|auto]")
	}
	m, err := ingest.ParseMode(*mode, ingest.ModeHeuristic)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid mode")
	}

	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background(), log), 5*time.Minute)
	defer cancel()

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}
	filename := filepath.Base(*filePath)

	var res *domain.ParseResult
	text, extractErr := (&extract.Router{PDF: extract.NewPDFExtractor(), Image: extract.DisabledOCR{}}).Extract(ctx, data, filename)
	if extractErr != nil && m == ingest.ModeHeuristic {
		log.Fatal().Err(extractErr).Msg("Extraction failed")
	}
	if m != ingest.ModeAI {
		res = statement.Parse(ctx, text, *owner)
	}
	if m == ingest.ModeAI || (m == ingest.ModeAuto && len(res.Candidates) == 0) {
		parser := aiparse.NewStatementParser(mustGenerator(ctx, cfg, log))
		if text == "" {
			res, err = parser.ParseDocument(ctx, data, *owner)
		} else {
			res, err = parser.ParseText(ctx, text, *owner)
		}
		if err != nil {
			log.Fatal().Err(err).Msg("AI parsing failed")
		}
	}

	log.Info().Int("lines_seen", res.LinesSeen).Int("candidates", len(res.Candidates)).Msg("Parsed statement")
	printJSON(res.Candidates)
}

func runParseReceipt(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("parse-receipt", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to the receipt image")
	mode := fs.String("mode", "heuristic", "heuristic or ai")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli parse-receipt -file PATH [-mode heuristic|ai]")
	}
	m, err := ingest.ParseMode(*mode, ingest.ModeHeuristic)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid mode")
	}

	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background(), log), 2*time.Minute)
	defer cancel()

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}
	filename := filepath.Base(*filePath)

	var fields receipt.Fields
	if m == ingest.ModeAI {
		fields, err = aiparse.NewReceiptParser(mustGenerator(ctx, cfg, log)).ParseImage(ctx, data, filename)
		if err != nil {
			log.Fatal().Err(err).Msg("AI parsing failed")
		}
	} else {
		ocr, err := extract.NewOCRExtractor(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create OCR client")
		}
		defer ocr.Close()
		text, err := (&extract.Router{PDF: extract.NewPDFExtractor(), Image: ocr}).Extract(ctx, data, filename)
		if err != nil {
			log.Fatal().Err(err).Msg("Extraction failed")
		}
		fields = receipt.Parse(text)
	}

	if missing := fields.Missing(); len(missing) > 0 {
		log.Warn().Strs("missing", missing).Msg("Receipt is incomplete")
	}
	printJSON(fields)
}

func runIngestStatement(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest-statement", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to the statement PDF")
	owner := fs.String("owner", "", "Owner id")
	mode := fs.String("mode", "", "heuristic, ai or auto (default STATEMENT_MODE)")
	fs.Parse(os.Args[2:])

	if *filePath == "" || *owner == "" {
		log.Fatal().Msg("Usage: cli ingest-statement -file PATH -owner ID [-mode MODE]")
	}
	m, err := ingest.ParseMode(*mode, "")
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid mode")
	}

	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background(), log), 5*time.Minute)
	defer cancel()

	components, path := openAndStage(ctx, cfg, log, *filePath)
	defer components.Close()

	report, err := components.Statements.Ingest(ctx, ingest.StatementRequest{
		OwnerID:  *owner,
		Path:     path,
		Filename: filepath.Base(*filePath),
		Mode:     m,
	})
	printJSON(report)
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}
}

func runIngestReceipt(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest-receipt", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to the receipt image")
	owner := fs.String("owner", "", "Owner id")
	mode := fs.String("mode", "", "heuristic, ai or auto (default RECEIPT_MODE)")
	amount := fs.String("amount", "", "Amount override")
	date := fs.String("date", "", "Date override, YYYY-MM-DD")
	description := fs.String("description", "", "Description override")
	category := fs.String("category", "", "Category override")
	fs.Parse(os.Args[2:])

	if *filePath == "" || *owner == "" {
		log.Fatal().Msg("Usage: cli ingest-receipt -file PATH -owner ID [-amount N] [-date YYYY-MM-DD]")
	}
	m, err := ingest.ParseMode(*mode, "")
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid mode")
	}

	overrides := ingest.Overrides{Description: *description, Category: *category}
	if *amount != "" {
		a, err := decimal.NewFromString(*amount)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid amount")
		}
		overrides.Amount = &a
	}
	if *date != "" {
		d, err := civil.ParseDate(*date)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid date")
		}
		overrides.Date = &d
	}

	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background(), log), 2*time.Minute)
	defer cancel()

	components, path := openAndStage(ctx, cfg, log, *filePath)
	defer components.Close()

	report, err := components.Receipts.Ingest(ctx, ingest.ReceiptRequest{
		OwnerID:   *owner,
		Path:      path,
		Filename:  filepath.Base(*filePath),
		Mode:      m,
		Overrides: overrides,
	})
	printJSON(report)
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}
}

func runUpload(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", cfg.GCSBucket, "GCS bucket name (default GCS_BUCKET)")
	objectName := fs.String("object", "", "GCS object name (defaults to filename)")
	filePath := fs.String("file", "", "Path to local file")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}
	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	ctx := logger.WithContext(context.Background(), log)

	f, err := os.Open(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open file")
	}
	defer f.Close()

	gcs, err := artifact.NewGCSStore(ctx, *bucketName, "")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GCS store")
	}
	defer gcs.Close()

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	if err := gcs.Upload(ctx, *objectName, f); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to %s\n", *filePath, gcs.URL(*objectName))
}

func runToken(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner id to embed")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	fs.Parse(os.Args[2:])

	if *owner == "" || cfg.JWTSecret == "" {
		log.Fatal().Msg("Usage: JWT_SECRET=... cli token -owner ID [-ttl 24h]")
	}
	token, err := middleware.NewToken(cfg.JWTSecret, *owner, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}
	fmt.Println(token)
}

// openAndStage wires the configured components and copies the local file
// into the artifact store, as an upload would be.
func openAndStage(ctx context.Context, cfg *config.Config, log zerolog.Logger, filePath string) (*app.App, string) {
	components, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize components")
	}

	f, err := os.Open(filePath)
	if err != nil {
		components.Close()
		log.Fatal().Err(err).Msg("Failed to open file")
	}
	defer f.Close()

	path, err := components.Artifacts.Save(ctx, filepath.Base(filePath), f)
	if err != nil {
		components.Close()
		log.Fatal().Err(err).Msg("Failed to stage file")
	}
	return components, path
}

func mustGenerator(ctx context.Context, cfg *config.Config, log zerolog.Logger) aiparse.Generator {
	gen, err := aiparse.NewGeminiGenerator(ctx, aiparse.Config{
		APIKey:    cfg.GeminiAPIKey,
		Model:     cfg.GeminiModel,
		UseVertex: cfg.GeminiVertex,
		Project:   cfg.GCPProject,
		Location:  cfg.GeminiLocation,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("AI parsing is not configured")
	}
	return gen
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
