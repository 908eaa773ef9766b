package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/catalog-service/internal/domain/catalog"
)

const (
	insertProductSQL = `INSERT INTO products (name, price, description)
		VALUES ($1, $2, $3)
		RETURNING id, name, price, description`

	insertProductImageSQL = `INSERT INTO product_images (product_id, image_url) VALUES ($1, $2)`

	// Image rows without a product are keyed by their product reference so
	// they are never dropped by the fold.
	listProductRowsSQL = `SELECT COALESCE(p.id, pi.product_id),
			COALESCE(p.name, ''), COALESCE(p.price, 0), COALESCE(p.description, ''),
			pi.image_url
		FROM products p
		FULL JOIN product_images pi ON p.id = pi.product_id
		ORDER BY COALESCE(p.id, pi.product_id), pi.id NULLS FIRST`
)

var (
	_ catalog.Repository = (*ProductRepository)(nil)
	_ catalog.RowSource  = (*ProductRepository)(nil)
)

// ProductRepository implements catalog.Repository and catalog.RowSource
// backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// CreateWithImages inserts the product and then its images, in order, in one
// transaction. Any failure rolls back every row written so far.
func (r *ProductRepository) CreateWithImages(ctx context.Context, p catalog.NewProduct, images []string) (*catalog.Product, error) {
	var created catalog.Product
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertProductSQL, p.Name, p.Price, p.Description).Scan(
			&created.ID, &created.Name, &created.Price, &created.Description,
		)
		if err != nil {
			return fmt.Errorf("inserting product %q: %w", p.Name, err)
		}
		return insertImages(ctx, tx, created.ID, images)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func insertImages(ctx context.Context, tx pgx.Tx, productID int64, images []string) error {
	if len(images) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, url := range images {
		batch.Queue(insertProductImageSQL, productID, url)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range images {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("inserting image %d of product %d: %w", i, productID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("inserting images of product %d: %w", productID, err)
	}
	return nil
}

// ListRows returns the products/product_images outer join ordered by product
// id, with each product's images in insertion order.
func (r *ProductRepository) ListRows(ctx context.Context) ([]catalog.Row, error) {
	rows, err := r.pool.Query(ctx, listProductRowsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing product rows: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanRow)
	if err != nil {
		return nil, fmt.Errorf("scanning product rows: %w", err)
	}
	return out, nil
}

func scanRow(row pgx.CollectableRow) (catalog.Row, error) {
	var r catalog.Row
	err := row.Scan(&r.ProductID, &r.Name, &r.Price, &r.Description, &r.ImageURL)
	return r, err
}
