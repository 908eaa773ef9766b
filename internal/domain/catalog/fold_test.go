package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func penRow(image *string) Row {
	return Row{
		ProductID:   1,
		Name:        "Pen",
		Price:       decimal.RequireFromString("1.50"),
		Description: "Blue ink",
		ImageURL:    image,
	}
}

func TestFold_Empty(t *testing.T) {
	out := Fold(nil)
	require.NotNil(t, out)
	assert.Empty(t, out)
}

func TestFold_ProductWithoutImages(t *testing.T) {
	out := Fold([]Row{penRow(nil)})

	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].ID)
	require.NotNil(t, out[0].Images)
	assert.Empty(t, out[0].Images)
}

func TestFold_GroupsImagesInRowOrder(t *testing.T) {
	out := Fold([]Row{
		penRow(strPtr("/uploads/a.jpg")),
		penRow(strPtr("/uploads/b.jpg")),
		penRow(strPtr("/uploads/c.jpg")),
	})

	require.Len(t, out, 1)
	assert.Equal(t, "Pen", out[0].Name)
	assert.True(t, decimal.RequireFromString("1.50").Equal(out[0].Price))
	assert.Equal(t, "Blue ink", out[0].Description)
	assert.Equal(t, []string{"/uploads/a.jpg", "/uploads/b.jpg", "/uploads/c.jpg"}, out[0].Images)
}

func TestFold_NullLocationAnywhere(t *testing.T) {
	// N rows for one product, one of them without an image, in every position.
	images := []*string{strPtr("/uploads/1"), strPtr("/uploads/2"), strPtr("/uploads/3")}

	for nullAt := range len(images) + 1 {
		rows := make([]Row, 0, len(images)+1)
		want := make([]string, 0, len(images))
		for i := range len(images) + 1 {
			switch {
			case i == nullAt:
				rows = append(rows, penRow(nil))
			case i < nullAt:
				rows = append(rows, penRow(images[i]))
				want = append(want, *images[i])
			default:
				rows = append(rows, penRow(images[i-1]))
				want = append(want, *images[i-1])
			}
		}

		out := Fold(rows)
		require.Len(t, out, 1, "null at %d", nullAt)
		assert.Equal(t, want, out[0].Images, "null at %d", nullAt)
	}
}

func TestFold_FirstSeenOrder(t *testing.T) {
	rows := []Row{
		{ProductID: 7, Name: "Ink", ImageURL: strPtr("/uploads/ink.jpg")},
		{ProductID: 3, Name: "Pad"},
		{ProductID: 7, Name: "Ink", ImageURL: strPtr("/uploads/ink-2.jpg")},
		{ProductID: 5, Name: "Clip", ImageURL: strPtr("/uploads/clip.jpg")},
	}

	out := Fold(rows)

	require.Len(t, out, 3)
	assert.Equal(t, int64(7), out[0].ID)
	assert.Equal(t, []string{"/uploads/ink.jpg", "/uploads/ink-2.jpg"}, out[0].Images)
	assert.Equal(t, int64(3), out[1].ID)
	assert.Empty(t, out[1].Images)
	assert.Equal(t, int64(5), out[2].ID)
	assert.Equal(t, []string{"/uploads/clip.jpg"}, out[2].Images)
}

func TestFold_KeepsOrphanImages(t *testing.T) {
	// An image row without a product still carries its product reference.
	out := Fold([]Row{{ProductID: 42, ImageURL: strPtr("/uploads/orphan.jpg")}})

	require.Len(t, out, 1)
	assert.Equal(t, int64(42), out[0].ID)
	assert.Empty(t, out[0].Name)
	assert.Equal(t, []string{"/uploads/orphan.jpg"}, out[0].Images)
}
