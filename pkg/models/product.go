package models

// Color is a product color attribute.
type Color struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Size is a product size attribute.
type Size struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Variant is a purchasable (color, size) combination of a product.
// Within one product the (color id, size id) tuple is unique across variants.
type Variant struct {
	ID    int64 `json:"id"`
	Color Color `json:"color"`
	Size  Size  `json:"size"`
	Stock int   `json:"stock"`
}

// Product is a catalog product with its variant list. Variants are read-only
// from this service's perspective.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Variants    []Variant `json:"variants"`
}

// VariantSelection is a request for a specific variant of a product, either by
// attribute IDs or by free-text attribute names. Exactly one form should be
// populated; ID-based selection takes precedence when both are.
type VariantSelection struct {
	ColorID   *int64
	SizeID    *int64
	ColorText string
	SizeText  string
}

// HasIDs reports whether the selection carries both attribute IDs.
func (s VariantSelection) HasIDs() bool {
	return s.ColorID != nil && s.SizeID != nil
}

// VariantOption is one valid (color, size) pairing for a product, used to
// prompt the user after a failed selection.
type VariantOption struct {
	ColorName string `json:"color"`
	SizeName  string `json:"size"`
	InStock   bool   `json:"in_stock"`
}
