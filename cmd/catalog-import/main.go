package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/xenking/catalog-service/internal/domain/catalog"
	"github.com/xenking/catalog-service/internal/importer"
	"github.com/xenking/catalog-service/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		workers     int
		expected    uint
	)

	_ = godotenv.Load()

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing product files")
	flag.StringVar(&pattern, "pattern", "*.ndjson.gz", "glob of product files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 4, "files imported concurrently")
	flag.UintVar(&expected, "expected-records", 1_000_000, "expected record count, sizes the duplicate filter")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := importer.Config{Workers: workers, ExpectedRecords: expected}
	if err := run(zctx.Base(ctx, lg), filepath.Join(dataDir, pattern), databaseURL, cfg); err != nil {
		lg.Fatal("Catalog import failed", zap.Error(err))
	}

	lg.Info("Catalog import completed successfully")
}

func run(ctx context.Context, glob, databaseURL string, cfg importer.Config) error {
	lg := zctx.From(ctx)

	files, err := filepath.Glob(glob)
	if err != nil {
		return errors.Wrapf(err, "match %s", glob)
	}
	if len(files) == 0 {
		lg.Info("No files to import", zap.String("pattern", glob))
		return nil
	}

	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	im := importer.New(catalog.NewWriter(postgres.NewProductRepository(pool)), cfg)

	start := time.Now()
	lg.Info("Importing", zap.Int("files", len(files)), zap.Int("workers", cfg.Workers))
	err = im.ImportFiles(ctx, files)

	stats := im.Stats()
	lg.Info("Import finished",
		zap.Int64("files", stats.Files),
		zap.Int64("created", stats.Created),
		zap.Int64("duplicates", stats.Duplicates),
		zap.Int64("rejected", stats.Rejected),
		zap.Duration("took", time.Since(start)),
	)
	if err != nil {
		return errors.Wrap(err, "import files")
	}
	return nil
}
