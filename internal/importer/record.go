// Package importer loads product records from JSON files into the catalog.
//
// A record has the same fields as a create request:
//
//	{"name": "Pen", "price": "1.50", "description": "Blue ink", "images": ["/uploads/a.jpg"]}
//
// price may be a JSON number or a numeric string. Images are locations that
// already exist in the upload store; they are stored as given.
package importer

import (
	"io"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/catalog-service/internal/domain/catalog"
)

// DecodeProduct reads one product record from d.
func DecodeProduct(d *jx.Decoder) (catalog.CreateProductRequest, error) {
	var req catalog.CreateProductRequest
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
			price, err := decodePrice(d)
			req.Price = price
			return err
		case "images":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Str()
				if err != nil {
					return err
				}
				req.Images = append(req.Images, v)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return catalog.CreateProductRequest{}, errors.Wrap(err, "decode product")
	}
	return req, nil
}

func decodePrice(d *jx.Decoder) (*decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		raw = strings.TrimSpace(s)
	default:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		raw = n.String()
	}
	if raw == "" {
		return nil, nil
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parse price %q", raw)
	}
	// dedupKey formats the price before the writer validates it.
	if err := catalog.CheckPriceScale(price); err != nil {
		return nil, err
	}
	return &price, nil
}

// DecodeProducts reads a JSON array of product records.
func DecodeProducts(r io.Reader) ([]catalog.CreateProductRequest, error) {
	var out []catalog.CreateProductRequest
	d := jx.Decode(r, 32*1024)
	if err := d.Arr(func(d *jx.Decoder) error {
		req, err := DecodeProduct(d)
		if err != nil {
			return errors.Wrapf(err, "record %d", len(out))
		}
		out = append(out, req)
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// dedupKey identifies a record for duplicate detection. Images are part of
// the key so that the same product with a different gallery is kept.
func dedupKey(req catalog.CreateProductRequest) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.Name))
	b.WriteByte(0)
	if req.Price != nil {
		b.WriteString(req.Price.StringFixed(2))
	}
	b.WriteByte(0)
	b.WriteString(strings.TrimSpace(req.Description))
	for _, img := range req.Images {
		b.WriteByte(0)
		b.WriteString(img)
	}
	return b.String()
}
