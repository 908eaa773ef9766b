package importer

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/catalog-service/internal/domain/catalog"
)

const (
	progressEvery = 10_000
	maxLineBytes  = 1 << 20
)

// ProductWriter creates products with their images.
type ProductWriter interface {
	CreateProduct(ctx context.Context, req catalog.CreateProductRequest) (*catalog.ProductWithImages, error)
}

// Config tunes an Importer.
type Config struct {
	// Workers is the number of files processed concurrently.
	Workers int
	// ExpectedRecords sizes the duplicate filter.
	ExpectedRecords uint
	// FalsePositiveRate of the duplicate filter. A false positive drops a
	// record that was not a duplicate.
	FalsePositiveRate float64
}

// Stats counts what an import did.
type Stats struct {
	Files      int64
	Created    int64
	Duplicates int64
	Rejected   int64
}

// Importer streams NDJSON product files, optionally gzip-compressed, into the
// catalog through a ProductWriter. Records already seen in this run are
// skipped.
type Importer struct {
	writer  ProductWriter
	workers int

	mu     sync.Mutex
	filter *bloom.BloomFilter

	files      atomic.Int64
	created    atomic.Int64
	duplicates atomic.Int64
	rejected   atomic.Int64
}

// New returns an Importer writing through w.
func New(w ProductWriter, cfg Config) *Importer {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ExpectedRecords == 0 {
		cfg.ExpectedRecords = 1_000_000
	}
	if cfg.FalsePositiveRate <= 0 {
		cfg.FalsePositiveRate = 0.0001
	}
	return &Importer{
		writer:  w,
		workers: cfg.Workers,
		filter:  bloom.NewWithEstimates(cfg.ExpectedRecords, cfg.FalsePositiveRate),
	}
}

// Stats returns the counters accumulated so far.
func (im *Importer) Stats() Stats {
	return Stats{
		Files:      im.files.Load(),
		Created:    im.created.Load(),
		Duplicates: im.duplicates.Load(),
		Rejected:   im.rejected.Load(),
	}
}

// ImportFiles imports every file concurrently. Files ending in .gz are
// decompressed. Invalid records are logged and counted; a storage failure
// stops the whole import.
func (im *Importer) ImportFiles(ctx context.Context, paths []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for _, p := range paths {
		g.Go(func() error {
			return im.importFile(ctx, p)
		})
	}
	return g.Wait()
}

func (im *Importer) importFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	lg := zctx.From(ctx).With(zap.String("file", path))
	if err := im.Import(zctx.Base(ctx, lg), r); err != nil {
		return errors.Wrapf(err, "import %s", path)
	}
	im.files.Add(1)
	return nil
}

// Import reads NDJSON records from r, one product per line.
func (im *Importer) Import(ctx context.Context, r io.Reader) error {
	lg := zctx.From(ctx)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var line, done int
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++

		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		req, err := DecodeProduct(jx.DecodeBytes(raw))
		if err != nil {
			im.rejected.Add(1)
			lg.Warn("Skip malformed record", zap.Int("line", line), zap.Error(err))
			continue
		}

		if im.seen(req) {
			im.duplicates.Add(1)
			lg.Debug("Skip duplicate record", zap.Int("line", line), zap.String("name", req.Name))
			continue
		}

		if _, err := im.writer.CreateProduct(ctx, req); err != nil {
			var vErr *catalog.ValidationError
			if errors.As(err, &vErr) {
				im.rejected.Add(1)
				lg.Warn("Skip invalid record", zap.Int("line", line), zap.Error(err))
				continue
			}
			return errors.Wrapf(err, "line %d", line)
		}
		im.created.Add(1)

		done++
		if done%progressEvery == 0 {
			lg.Info("Import progress", zap.Int("created", done), zap.Int("line", line))
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}

// seen reports whether an equal record was already imported and marks req
// as seen.
func (im *Importer) seen(req catalog.CreateProductRequest) bool {
	key := dedupKey(req)
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.filter.TestAndAddString(key)
}
