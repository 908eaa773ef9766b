// Package catalog implements the product-with-images write and read model.
//
// The Writer creates a product together with its image rows in one atomic
// store operation. The Reader lists every product with its images by folding
// the flat rows of a products/product_images outer join into nested values.
package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry as stored in the products table.
type Product struct {
	ID          int64
	Name        string
	Price       decimal.Decimal
	Description string
}

// ProductWithImages is a product together with the locations of its images,
// in insertion order. Images is never nil.
type ProductWithImages struct {
	Product
	Images []string
}

// NewProduct holds the validated fields of a product that is about to be
// inserted.
type NewProduct struct {
	Name        string
	Price       decimal.Decimal
	Description string
}

// Row is a single row of the products/product_images outer join. ImageURL is
// nil when the product has no image on this row.
type Row struct {
	ProductID   int64
	Name        string
	Price       decimal.Decimal
	Description string
	ImageURL    *string
}

// Repository persists a product and its images. Implementations must insert
// the product first and then one image row per location, in order, inside a
// single transaction.
type Repository interface {
	CreateWithImages(ctx context.Context, p NewProduct, images []string) (*Product, error)
}

// RowSource returns the flat join rows the Reader folds.
type RowSource interface {
	ListRows(ctx context.Context) ([]Row, error)
}

// ValidationError reports a missing or invalid input field. No store access
// happens when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// StorageError reports a failure of the underlying store. The cause is kept
// for logging and is reachable with errors.Unwrap.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("catalog storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
