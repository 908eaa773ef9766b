package catalog

import "context"

// Reader lists the catalog.
type Reader struct {
	rows RowSource
}

// NewReader returns a Reader that reads join rows from rows.
func NewReader(rows RowSource) *Reader {
	return &Reader{rows: rows}
}

// ListProducts returns every product with its images, ordered as the store
// returns the join rows. It never returns a partial result.
func (r *Reader) ListProducts(ctx context.Context) ([]ProductWithImages, error) {
	rows, err := r.rows.ListRows(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list products", Err: err}
	}
	return Fold(rows), nil
}
