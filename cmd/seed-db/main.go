package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

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
		databaseURL  string
		productsFile string
	)

	_ = godotenv.Load()

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
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

	if err := run(zctx.Base(ctx, lg), databaseURL, productsFile); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}

	lg.Info("Seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	lg := zctx.From(ctx)
	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return seedProducts(ctx, catalog.NewWriter(postgres.NewProductRepository(pool)), productsFile)
}

func seedProducts(ctx context.Context, writer *catalog.Writer, productsFile string) error {
	lg := zctx.From(ctx)
	lg.Info("Reading products file", zap.String("path", productsFile))

	f, err := os.Open(productsFile)
	if err != nil {
		return errors.Wrap(err, "open products file")
	}
	defer func() { _ = f.Close() }()

	reqs, err := importer.DecodeProducts(f)
	if err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	lg.Info("Creating products", zap.Int("count", len(reqs)))

	for _, req := range reqs {
		p, err := writer.CreateProduct(ctx, req)
		if err != nil {
			return errors.Wrapf(err, "create product %q", req.Name)
		}

		lg.Info("Created product",
			zap.Int64("id", p.ID),
			zap.String("name", p.Name),
			zap.Int("images", len(p.Images)),
		)
	}

	return nil
}
