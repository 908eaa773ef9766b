package catalog

// Fold groups join rows by product identifier. Products appear in the order
// their identifier is first seen; images keep row order. Rows with a nil
// ImageURL contribute the product but no image.
func Fold(rows []Row) []ProductWithImages {
	index := make(map[int64]int, len(rows))
	out := make([]ProductWithImages, 0, len(rows))

	for _, row := range rows {
		i, ok := index[row.ProductID]
		if !ok {
			i = len(out)
			index[row.ProductID] = i
			out = append(out, ProductWithImages{
				Product: Product{
					ID:          row.ProductID,
					Name:        row.Name,
					Price:       row.Price,
					Description: row.Description,
				},
				Images: []string{},
			})
		}
		if row.ImageURL != nil {
			out[i].Images = append(out[i].Images, *row.ImageURL)
		}
	}

	return out
}
