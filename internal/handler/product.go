package handler

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/catalog-service/internal/domain/catalog"
	"github.com/xenking/catalog-service/internal/storage/files"
)

// imageFields are the multipart field names that carry product images.
var imageFields = []string{"images[]", "images"}

// CreateProduct handles POST /products. It accepts multipart/form-data with
// name, price, description and image files, or a JSON object with the same
// text fields and no images.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	req, uploads, err := h.parseCreate(r)
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		var malformed *malformedBodyError
		if errors.As(err, &malformed) {
			lg.Warn("Malformed request body", zap.Error(malformed.cause))
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Reject bad fields before any file is persisted.
	req.Normalize()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	locations, err := h.storeUploads(ctx, uploads)
	if err != nil {
		h.uploadFailures.Add(ctx, 1)
		lg.Error("Store uploads", zap.Error(err))
		writeServerError(w)
		return
	}
	req.Images = locations

	created, err := h.writer.CreateProduct(ctx, req)
	if err != nil {
		if len(locations) > 0 {
			h.uploadFailures.Add(ctx, 1)
			h.discard(ctx, locations)
		}
		h.writeCatalogError(w, r, err)
		return
	}

	h.productsCreated.Add(ctx, 1)
	h.imagesStored.Add(ctx, int64(len(created.Images)))
	lg.Info("Product created",
		zap.Int64("product_id", created.ID),
		zap.Int("images", len(created.Images)),
	)

	var e jx.Encoder
	encodeCreated(&e, created)
	writeJSON(w, http.StatusOK, &e)
}

// ListProducts handles GET /products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.lister.ListProducts(r.Context())
	if err != nil {
		h.writeCatalogError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeProductList(&e, products)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) parseCreate(r *http.Request) (catalog.CreateProductRequest, []*multipart.FileHeader, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		req, err := decodeCreateJSON(r.Body)
		return req, nil, err
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return catalog.CreateProductRequest{}, nil, &malformedBodyError{msg: "invalid multipart body", cause: err}
		}
	default:
		if err := r.ParseForm(); err != nil {
			return catalog.CreateProductRequest{}, nil, &malformedBodyError{msg: "invalid form body", cause: err}
		}
	}

	price, err := parsePrice(r.FormValue("price"))
	if err != nil {
		return catalog.CreateProductRequest{}, nil, err
	}
	req := catalog.CreateProductRequest{
		Name:        r.FormValue("name"),
		Price:       price,
		Description: r.FormValue("description"),
	}

	var uploads []*multipart.FileHeader
	if r.MultipartForm != nil {
		for _, field := range imageFields {
			uploads = append(uploads, r.MultipartForm.File[field]...)
		}
	}
	if h.maxFiles > 0 && len(uploads) > h.maxFiles {
		return req, nil, errors.Errorf("too many images: %d, at most %d allowed", len(uploads), h.maxFiles)
	}

	return req, uploads, nil
}

// malformedBodyError reports an unparsable request body. Only msg reaches the
// client.
type malformedBodyError struct {
	msg   string
	cause error
}

func (e *malformedBodyError) Error() string { return e.msg }

func (e *malformedBodyError) Unwrap() error { return e.cause }

// parsePrice returns nil for an absent price.
func parsePrice(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, &catalog.ValidationError{Field: "price", Reason: "must be a number"}
	}
	if err := catalog.CheckPriceScale(d); err != nil {
		return nil, err
	}
	return &d, nil
}

// storeUploads persists every file in order. On failure the files stored so
// far are removed.
func (h *Handler) storeUploads(ctx context.Context, uploads []*multipart.FileHeader) ([]string, error) {
	locations := make([]string, 0, len(uploads))
	for _, fh := range uploads {
		loc, err := h.storeUpload(ctx, fh)
		if err != nil {
			h.discard(ctx, locations)
			return nil, errors.Wrapf(err, "store %q", fh.Filename)
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

func (h *Handler) storeUpload(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", errors.Wrap(err, "open upload")
	}
	defer func() { _ = f.Close() }()

	return h.files.Save(ctx, files.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	})
}

// discard removes stored files whose product was not created. Failures are
// only logged.
func (h *Handler) discard(ctx context.Context, locations []string) {
	ctx = context.WithoutCancel(ctx)
	for _, loc := range locations {
		if err := h.files.Remove(ctx, loc); err != nil {
			zctx.From(ctx).Warn("Remove orphaned upload", zap.String("location", loc), zap.Error(err))
		}
	}
}

func (h *Handler) writeCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *catalog.ValidationError
	if errors.As(err, &vErr) {
		writeError(w, http.StatusBadRequest, vErr.Error())
		return
	}

	zctx.From(r.Context()).Error("Catalog request failed", zap.Error(err))
	writeServerError(w)
}

func decodeCreateJSON(body io.Reader) (catalog.CreateProductRequest, error) {
	var req catalog.CreateProductRequest
	d := jx.Decode(body, 4096)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			v, err := d.Str()
			req.Name = v
			return err
		case "description":
			v, err := d.Str()
			req.Description = v
			return err
		case "price":
			raw, err := decodePriceValue(d)
			if err != nil {
				return err
			}
			req.Price, err = parsePrice(raw)
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		var vErr *catalog.ValidationError
		if errors.As(err, &vErr) {
			return req, vErr
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, tooLarge
		}
		return req, errors.New("invalid JSON body")
	}
	return req, nil
}

// decodePriceValue accepts a JSON number, a numeric string or null.
func decodePriceValue(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.Null:
		return "", d.Null()
	case jx.String:
		return d.Str()
	default:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	}
}
