package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/catalog-service/internal/domain/catalog"
)

// --- Mock implementations ---

// recordingRepo is a concurrency-safe catalog.Repository.
type recordingRepo struct {
	mu      sync.Mutex
	created []catalog.NewProduct
	images  [][]string
	err     error
}

func (r *recordingRepo) CreateWithImages(_ context.Context, p catalog.NewProduct, images []string) (*catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.created = append(r.created, p)
	r.images = append(r.images, images)
	return &catalog.Product{ID: int64(len(r.created)), Name: p.Name, Price: p.Price, Description: p.Description}, nil
}

func (r *recordingRepo) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.created))
	for i, p := range r.created {
		out[i] = p.Name
	}
	return out
}

// --- Helpers ---

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	if strings.HasSuffix(name, ".gz") {
		gz := pgzip.NewWriter(f)
		_, err = gz.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, gz.Close())
		return path
	}
	_, err = f.WriteString(content)
	require.NoError(t, err)
	return path
}

func decimalPtr(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return &d
}

// --- Tests ---

func TestDecodeProduct(t *testing.T) {
	req, err := DecodeProduct(jx.DecodeStr(
		`{"name":"Pen","price":1.5,"description":"Blue","images":["/uploads/a.jpg","/uploads/b.jpg"],"sku":{"x":1}}`,
	))
	require.NoError(t, err)
	assert.Equal(t, "Pen", req.Name)
	require.NotNil(t, req.Price)
	assert.Equal(t, "1.50", req.Price.StringFixed(2))
	assert.Equal(t, "Blue", req.Description)
	assert.Equal(t, []string{"/uploads/a.jpg", "/uploads/b.jpg"}, req.Images)

	req, err = DecodeProduct(jx.DecodeStr(`{"name":"Eraser","price":"0.80","description":"Soft","images":null}`))
	require.NoError(t, err)
	assert.Equal(t, "0.80", req.Price.StringFixed(2))
	assert.Empty(t, req.Images)

	req, err = DecodeProduct(jx.DecodeStr(`{"name":"Ghost","price":null}`))
	require.NoError(t, err)
	assert.Nil(t, req.Price)

	_, err = DecodeProduct(jx.DecodeStr(`{"name":"Bad","price":"abc"}`))
	assert.Error(t, err)

	_, err = DecodeProduct(jx.DecodeStr(`["not","an","object"]`))
	assert.Error(t, err)

	for _, input := range []string{
		`{"name":"Pen","price":1e300000000}`,
		`{"name":"Pen","price":"1e-300000000"}`,
	} {
		_, err = DecodeProduct(jx.DecodeStr(input))
		var vErr *catalog.ValidationError
		require.ErrorAs(t, err, &vErr, input)
		assert.Equal(t, "price", vErr.Field)
	}
}

func TestDecodeProducts_SeedFile(t *testing.T) {
	f, err := os.Open(filepath.Join("..", "..", "db", "seed", "products.json"))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	reqs, err := DecodeProducts(f)
	require.NoError(t, err)
	require.Len(t, reqs, 3)

	for _, req := range reqs {
		req.Normalize()
		assert.NoError(t, req.Validate(), req.Name)
	}
	assert.Equal(t, "Pen", reqs[0].Name)
	assert.Len(t, reqs[0].Images, 2)
	assert.Empty(t, reqs[2].Images)
}

func TestDedupKey(t *testing.T) {
	one := decimalPtr(t, "1.5")
	oneFixed := decimalPtr(t, "1.50")

	a := catalog.CreateProductRequest{Name: "Pen", Price: one, Description: "Blue"}
	b := catalog.CreateProductRequest{Name: " Pen ", Price: oneFixed, Description: "Blue "}
	c := catalog.CreateProductRequest{Name: "Pen", Price: one, Description: "Blue", Images: []string{"/uploads/a.jpg"}}

	assert.Equal(t, dedupKey(a), dedupKey(b))
	assert.NotEqual(t, dedupKey(a), dedupKey(c))
}

func TestImport(t *testing.T) {
	repo := &recordingRepo{}
	im := New(catalog.NewWriter(repo), Config{ExpectedRecords: 1000})

	input := strings.Join([]string{
		`{"name":"Pen","price":"1.50","description":"Blue","images":["/uploads/pen.jpg"]}`,
		``,
		`{"name":"Notebook","price":4.25,"description":"A5"}`,
		`{"name":"Pen","price":"1.5","description":"Blue","images":["/uploads/pen.jpg"]}`,
		`{"name":`,
		`{"name":"","price":"1","description":"nameless"}`,
		`{"name":"Eraser","price":"0","description":"Soft"}`,
		`{"name":"Huge","price":1e300000000,"description":"Never formatted"}`,
	}, "\n")

	require.NoError(t, im.Import(context.Background(), strings.NewReader(input)))

	assert.Equal(t, []string{"Pen", "Notebook", "Eraser"}, repo.names())
	assert.Equal(t, []string{"/uploads/pen.jpg"}, repo.images[0])

	stats := im.Stats()
	assert.Equal(t, int64(3), stats.Created)
	assert.Equal(t, int64(1), stats.Duplicates)
	assert.Equal(t, int64(3), stats.Rejected)
}

func TestImport_StorageErrorStops(t *testing.T) {
	repo := &recordingRepo{err: errors.New("connection refused")}
	im := New(catalog.NewWriter(repo), Config{})

	err := im.Import(context.Background(), strings.NewReader(
		`{"name":"Pen","price":"1.50","description":"Blue"}`+"\n"+
			`{"name":"Cup","price":"3","description":"Mug"}`,
	))
	require.Error(t, err)

	var sErr *catalog.StorageError
	assert.ErrorAs(t, err, &sErr)
	assert.Contains(t, err.Error(), "line 1")
	assert.Zero(t, im.Stats().Created)
}

func TestImport_Cancelled(t *testing.T) {
	im := New(catalog.NewWriter(&recordingRepo{}), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := im.Import(ctx, strings.NewReader(`{"name":"Pen","price":"1","description":"d"}`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImportFiles(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "part1.ndjson.gz",
			`{"name":"Pen","price":"1.50","description":"Blue"}`+"\n"+
				`{"name":"Cup","price":"3.00","description":"Mug"}`+"\n"),
		writeFile(t, dir, "part2.ndjson.gz",
			`{"name":"Cup","price":"3","description":"Mug"}`+"\n"+
				`{"name":"Lamp","price":"12.99","description":"Desk lamp","images":["/uploads/lamp.jpg"]}`+"\n"),
		writeFile(t, dir, "part3.ndjson",
			`{"name":"Chair","price":"45","description":"Oak"}`+"\n"),
	}

	repo := &recordingRepo{}
	im := New(catalog.NewWriter(repo), Config{Workers: 2, ExpectedRecords: 100})

	require.NoError(t, im.ImportFiles(context.Background(), paths))

	assert.ElementsMatch(t, []string{"Pen", "Cup", "Lamp", "Chair"}, repo.names())
	stats := im.Stats()
	assert.Equal(t, int64(3), stats.Files)
	assert.Equal(t, int64(4), stats.Created)
	assert.Equal(t, int64(1), stats.Duplicates)
}

func TestImportFiles_MissingFile(t *testing.T) {
	im := New(catalog.NewWriter(&recordingRepo{}), Config{})

	err := im.ImportFiles(context.Background(), []string{filepath.Join(t.TempDir(), "missing.ndjson.gz")})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
