//go:build integration

package integration

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"
)

func findProduct(products []productResponse, name string) *productResponse {
	for i := range products {
		if products[i].Name == name {
			return &products[i]
		}
	}
	return nil
}

func listProducts(t *testing.T) []productResponse {
	t.Helper()

	resp := doGet(t, "/products")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	return decodeJSON[[]productResponse](t, resp)
}

func TestListProducts_Seeded(t *testing.T) {
	products := listProducts(t)
	if len(products) < seededProducts {
		t.Fatalf("expected at least %d products, got %d", seededProducts, len(products))
	}

	pen := findProduct(products, "Pen")
	if pen == nil {
		t.Fatal("seeded product Pen not found")
	}
	if pen.Price.String() != "1.50" {
		t.Errorf("price: got %s, want 1.50", pen.Price)
	}
	if pen.Description != "Blue ink" {
		t.Errorf("description: got %q, want %q", pen.Description, "Blue ink")
	}
	want := []string{"/uploads/seed-pen-front.jpg", "/uploads/seed-pen-side.jpg"}
	if strings.Join(pen.Images, ",") != strings.Join(want, ",") {
		t.Errorf("images: got %v, want %v", pen.Images, want)
	}

	eraser := findProduct(products, "Eraser")
	if eraser == nil {
		t.Fatal("seeded product Eraser not found")
	}
	if eraser.Images == nil || len(eraser.Images) != 0 {
		t.Errorf("images: got %#v, want empty array", eraser.Images)
	}
}

func TestCreateProduct_WithImages(t *testing.T) {
	front := []byte("\x89PNG front")
	back := []byte("\x89PNG back")

	resp := doPostMultipart(t, "/products", map[string]string{
		"name":        "Backpack",
		"price":       "39.9",
		"description": "20 litres",
	}, formFile{"front.png", front}, formFile{"back.png", back})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	created := decodeJSON[createResponse](t, resp)
	if created.Product.ID == 0 {
		t.Fatal("product id is zero")
	}
	if created.Product.Price.String() != "39.90" {
		t.Errorf("price: got %s, want 39.90", created.Product.Price)
	}
	if len(created.Images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(created.Images))
	}
	for _, loc := range created.Images {
		if !strings.HasPrefix(loc, "/uploads/") || !strings.HasSuffix(loc, ".png") {
			t.Errorf("unexpected image location %q", loc)
		}
	}

	got := findProduct(listProducts(t), "Backpack")
	if got == nil {
		t.Fatal("created product not listed")
	}
	if got.ID != created.Product.ID {
		t.Errorf("id: got %d, want %d", got.ID, created.Product.ID)
	}
	if strings.Join(got.Images, ",") != strings.Join(created.Images, ",") {
		t.Errorf("images: got %v, want %v", got.Images, created.Images)
	}

	img := doGet(t, created.Images[0])
	defer img.Body.Close()

	if img.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: expected 200, got %d", created.Images[0], img.StatusCode)
	}
	data, err := io.ReadAll(img.Body)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if !bytes.Equal(data, front) {
		t.Errorf("image content mismatch: got %q", data)
	}
}

func TestCreateProduct_NotIdempotent(t *testing.T) {
	fields := map[string]string{"name": "Mug", "price": "7", "description": "Ceramic"}

	var ids []int64
	for range 2 {
		resp := doPostMultipart(t, "/products", fields)
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		ids = append(ids, decodeJSON[createResponse](t, resp).Product.ID)
		resp.Body.Close()
	}

	if ids[0] == ids[1] {
		t.Fatalf("expected distinct ids, got %d twice", ids[0])
	}
}

func TestCreateProduct_JSON(t *testing.T) {
	resp := doPost(t, "/products", map[string]any{
		"name":        "Sticker",
		"price":       0,
		"description": "Free with every order",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	created := decodeJSON[createResponse](t, resp)
	if created.Product.Price.String() != "0.00" {
		t.Errorf("price: got %s, want 0.00", created.Product.Price)
	}
	if created.Images == nil || len(created.Images) != 0 {
		t.Errorf("images: got %#v, want empty array", created.Images)
	}
}

func TestCreateProduct_Validation(t *testing.T) {
	before := len(listProducts(t))

	resp := doPostMultipart(t, "/products", map[string]string{
		"price":       "3",
		"description": "No name",
	}, formFile{"orphan.jpg", []byte("jpeg")})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Error != "name is required" {
		t.Errorf("error: got %q, want %q", errResp.Error, "name is required")
	}

	if after := len(listProducts(t)); after != before {
		t.Errorf("product count changed from %d to %d", before, after)
	}
}

func TestUploads_NotFound(t *testing.T) {
	resp := doGet(t, "/uploads/does-not-exist.jpg")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
