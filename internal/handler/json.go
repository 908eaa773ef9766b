package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/catalog-service/internal/domain/catalog"
)

// encodeProductFields writes the product fields into an open object.
func encodeProductFields(e *jx.Encoder, p catalog.Product) {
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	e.Num(jx.Num(p.Price.StringFixed(2)))
	e.FieldStart("description")
	e.Str(p.Description)
}

func encodeImages(e *jx.Encoder, images []string) {
	e.ArrStart()
	for _, img := range images {
		e.Str(img)
	}
	e.ArrEnd()
}

// encodeCreated writes {"product": {...}, "images": [...]}.
func encodeCreated(e *jx.Encoder, p *catalog.ProductWithImages) {
	e.ObjStart()
	e.FieldStart("product")
	e.ObjStart()
	encodeProductFields(e, p.Product)
	e.ObjEnd()
	e.FieldStart("images")
	encodeImages(e, p.Images)
	e.ObjEnd()
}

// encodeProductList writes the catalog as an array of products, each with an
// images array. An empty catalog encodes as [].
func encodeProductList(e *jx.Encoder, products []catalog.ProductWithImages) {
	e.ArrStart()
	for _, p := range products {
		e.ObjStart()
		encodeProductFields(e, p.Product)
		e.FieldStart("images")
		encodeImages(e, p.Images)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("error")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, &e)
}

// writeServerError hides the cause from the client; it is logged instead.
func writeServerError(w http.ResponseWriter) {
	http.Error(w, "Server Error", http.StatusInternalServerError)
}
