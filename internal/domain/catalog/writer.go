package catalog

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// maxPrice is the first value that does not fit NUMERIC(10,2).
var maxPrice = decimal.New(1, 8)

// Prices whose exponent lies outside this range are rejected before any
// arithmetic: rescaling them allocates an integer of about 10^|exp|.
const (
	minPriceExp = -20
	maxPriceExp = 8
)

// CheckPriceScale rejects prices written with an exponent that no valid price
// needs, such as 1e300000000. It does no arithmetic on d.
func CheckPriceScale(d decimal.Decimal) error {
	if exp := d.Exponent(); exp < minPriceExp || exp > maxPriceExp {
		return &ValidationError{Field: "price", Reason: "is out of range"}
	}
	return nil
}

// CreateProductRequest holds the input of Writer.CreateProduct. Price is nil
// when the caller did not supply one. Images are locations already persisted
// by the file intake, in upload order.
type CreateProductRequest struct {
	Name        string           `validate:"required"`
	Price       *decimal.Decimal `validate:"required"`
	Description string           `validate:"required"`
	Images      []string         `validate:"dive,required"`
}

// Normalize trims surrounding whitespace from the text fields.
func (r *CreateProductRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
}

// Validate returns a *ValidationError for the first invalid field.
func (r CreateProductRequest) Validate() error {
	if r.Price != nil {
		if err := CheckPriceScale(*r.Price); err != nil {
			return err
		}
	}
	if err := validate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
			return &ValidationError{Field: "request", Reason: err.Error()}
		}
		fe := fieldErrs[0]
		field := strings.ToLower(fe.StructField())
		if strings.HasPrefix(field, "images[") {
			return &ValidationError{Field: "images", Reason: "must not contain empty locations"}
		}
		return &ValidationError{Field: field, Reason: "is required"}
	}
	if r.Price.IsNegative() {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	// The column rounds to cents, so 99999999.995 overflows as well.
	if r.Price.Round(2).GreaterThanOrEqual(maxPrice) {
		return &ValidationError{Field: "price", Reason: "must be less than 100000000"}
	}
	return nil
}

// Writer creates products together with their images.
type Writer struct {
	repo Repository
}

// NewWriter returns a Writer that persists through repo.
func NewWriter(repo Repository) *Writer {
	return &Writer{repo: repo}
}

// CreateProduct validates req and stores the product with one image row per
// location. The whole write is atomic: on failure no product or image row
// remains.
func (w *Writer) CreateProduct(ctx context.Context, req CreateProductRequest) (*ProductWithImages, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	images := make([]string, len(req.Images))
	copy(images, req.Images)

	p, err := w.repo.CreateWithImages(ctx, NewProduct{
		Name:        req.Name,
		Price:       *req.Price,
		Description: req.Description,
	}, images)
	if err != nil {
		return nil, &StorageError{Op: "create product", Err: err}
	}

	return &ProductWithImages{Product: *p, Images: images}, nil
}
