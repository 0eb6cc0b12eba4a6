package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

var (
	driver        = flag.String("driver", config.StorePostgres, "Target database: postgres or bigquery")
	projectID     = flag.String("project", "", "GCP project ID (bigquery, default GCP_PROJECT)")
	datasetID     = flag.String("dataset", "", "BigQuery dataset ID (default BQ_DATASET)")
	databaseURL   = flag.String("database-url", "", "Postgres connection string (default DATABASE_URL)")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir = flag.String("dir", "", "Path to migrations directory (default migrations/<driver>)")
)

func main() {
	flag.Parse()

	log := logger.New()
	ctx := logger.WithContext(context.Background(), log)

	if err := run(ctx, log); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}

func run(ctx context.Context, log zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *projectID == "" {
		*projectID = cfg.GCPProject
	}
	if *datasetID == "" {
		*datasetID = cfg.BQDataset
	}
	if *databaseURL == "" {
		*databaseURL = cfg.DatabaseURL
	}

	dir, err := resolveDir(*migrationsDir, *driver)
	if err != nil {
		return err
	}

	var runner Runner
	switch *driver {
	case config.StoreBigQuery:
		if *projectID == "" {
			return fmt.Errorf("-project (or GCP_PROJECT) is required for bigquery")
		}
		runner, err = newBigQueryRunner(ctx, *projectID, *datasetID)
		log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")
	case config.StorePostgres:
		if *databaseURL == "" {
			return fmt.Errorf("-database-url (or DATABASE_URL) is required for postgres")
		}
		runner, err = newPostgresRunner(ctx, *databaseURL)
		log.Info().Msg("Connected to Postgres")
	default:
		return fmt.Errorf("unknown driver %q", *driver)
	}
	if err != nil {
		return err
	}
	defer runner.Close()

	migrations, err := readMigrations(log, dir, map[string]string{
		"{{PROJECT_ID}}": *projectID,
		"{{DATASET_ID}}": *datasetID,
	})
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	log.Info().Int("count", len(migrations)).Str("dir", dir).Msg("Found migration files")

	return migrate(ctx, log, runner, migrations)
}

// migrate applies every pending migration in version order.
func migrate(ctx context.Context, log zerolog.Logger, runner Runner, migrations []Migration) error {
	if err := runner.Ensure(ctx); err != nil {
		return fmt.Errorf("ensuring schema_migrations table: %w", err)
	}

	applied, err := runner.Applied(ctx)
	if err != nil {
		return fmt.Errorf("getting applied migrations: %w", err)
	}
	log.Info().Int("count", len(applied)).Msg("Found already applied migrations")

	todo, err := pending(migrations, applied)
	if err != nil {
		return err
	}

	for _, m := range todo {
		log.Info().Msgf("  [RUN]  %04d_%s", m.Version, m.Name)
		if err := runner.Apply(ctx, m, *appliedBy); err != nil {
			return fmt.Errorf("applying migration %04d_%s: %w", m.Version, m.Name, err)
		}
		log.Info().Msgf("  [OK]   %04d_%s", m.Version, m.Name)
	}

	if len(todo) == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Msgf("Successfully applied %d migration(s)", len(todo))
	}
	return nil
}

// resolveDir finds the migrations directory, also trying from the module
// root when run inside cmd/migrate.
func resolveDir(dir, driver string) (string, error) {
	if dir == "" {
		dir = "migrations/" + driver
	}
	for _, candidate := range []string{dir, "../../" + dir} {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("migrations directory not found: %s", dir)
}
