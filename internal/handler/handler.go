// Package handler exposes the catalog over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/catalog-service/internal/domain/catalog"
	"github.com/xenking/catalog-service/internal/storage/files"
)

// ProductWriter creates products with their images.
type ProductWriter interface {
	CreateProduct(ctx context.Context, req catalog.CreateProductRequest) (*catalog.ProductWithImages, error)
}

// ProductLister lists the whole catalog.
type ProductLister interface {
	ListProducts(ctx context.Context) ([]catalog.ProductWithImages, error)
}

// FileStore persists uploaded files and returns their location.
type FileStore interface {
	Save(ctx context.Context, u files.Upload) (string, error)
	Remove(ctx context.Context, location string) error
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// MaxUploadBytes caps the size of a create request body.
	MaxUploadBytes int64
	// MaxFiles caps the number of images per product. Zero means no limit.
	MaxFiles int
	// MeterProvider records catalog metrics. Defaults to a no-op provider.
	MeterProvider metric.MeterProvider
}

const (
	defaultMaxUploadBytes = 32 << 20
	multipartMemory       = 8 << 20
)

// Handler serves the catalog routes.
type Handler struct {
	writer ProductWriter
	lister ProductLister
	files  FileStore

	maxUploadBytes int64
	maxFiles       int

	productsCreated metric.Int64Counter
	imagesStored    metric.Int64Counter
	uploadFailures  metric.Int64Counter
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	writer ProductWriter,
	lister ProductLister,
	fileStore FileStore,
) (*Handler, error) {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = noop.NewMeterProvider()
	}

	h := &Handler{
		writer:         writer,
		lister:         lister,
		files:          fileStore,
		maxUploadBytes: cfg.MaxUploadBytes,
		maxFiles:       cfg.MaxFiles,
	}

	meter := cfg.MeterProvider.Meter("github.com/xenking/catalog-service/internal/handler")
	var err error
	if h.productsCreated, err = meter.Int64Counter("catalog.products.created",
		metric.WithDescription("Products created"),
	); err != nil {
		return nil, errors.Wrap(err, "products counter")
	}
	if h.imagesStored, err = meter.Int64Counter("catalog.images.stored",
		metric.WithDescription("Product images stored"),
	); err != nil {
		return nil, errors.Wrap(err, "images counter")
	}
	if h.uploadFailures, err = meter.Int64Counter("catalog.uploads.failed",
		metric.WithDescription("Create requests that failed after files were received"),
	); err != nil {
		return nil, errors.Wrap(err, "upload failures counter")
	}

	return h, nil
}

// Register mounts the catalog routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /products", h.CreateProduct)
	mux.HandleFunc("GET /products", h.ListProducts)
}
