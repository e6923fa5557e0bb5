package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func testProduct() *models.Product {
	return &models.Product{
		ID:   7,
		Name: "Basic Tee",
		Variants: []models.Variant{
			{ID: 100, Color: models.Color{ID: 1, Name: "Black"}, Size: models.Size{ID: 10, Name: "M"}, Stock: 5},
			{ID: 101, Color: models.Color{ID: 1, Name: "Black"}, Size: models.Size{ID: 11, Name: "L"}, Stock: 0},
			{ID: 102, Color: models.Color{ID: 2, Name: "White"}, Size: models.Size{ID: 10, Name: "M"}, Stock: 3},
		},
	}
}

func TestResolveByID(t *testing.T) {
	r := NewResolver()
	product := testProduct()

	colorID := int64(1)
	sizeID := int64(11)
	variantID, err := r.Resolve(context.Background(), product, models.VariantSelection{ColorID: &colorID, SizeID: &sizeID})
	require.NoError(t, err)
	assert.Equal(t, int64(101), variantID)
}

func TestResolveByIDNoMatch(t *testing.T) {
	r := NewResolver()
	product := testProduct()

	colorID := int64(1)
	sizeID := int64(99)
	_, err := r.Resolve(context.Background(), product, models.VariantSelection{ColorID: &colorID, SizeID: &sizeID})
	assert.ErrorIs(t, err, ErrVariantNotFound)
}

func TestResolveByTextNormalizesCaseAndWhitespace(t *testing.T) {
	r := NewResolver()
	product := testProduct()

	variantID, err := r.Resolve(context.Background(), product, models.VariantSelection{
		ColorText: "  black ",
		SizeText:  "l",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(101), variantID)
}

func TestResolveByTextNoFuzzyMatching(t *testing.T) {
	r := NewResolver()
	product := &models.Product{
		ID: 7,
		Variants: []models.Variant{
			{ID: 100, Color: models.Color{ID: 1, Name: "Black"}, Size: models.Size{ID: 10, Name: "2XL"}, Stock: 5},
		},
	}

	// "XXL" must not bind to the catalog's "2XL" through approximation.
	_, err := r.Resolve(context.Background(), product, models.VariantSelection{
		ColorText: "black",
		SizeText:  "XXL",
	})
	assert.ErrorIs(t, err, ErrVariantNotFound)
}

func TestResolveByTextAmbiguityFails(t *testing.T) {
	r := NewResolver()
	product := testProduct()

	// "black" alone matches two variants, which must not resolve.
	_, err := r.Resolve(context.Background(), product, models.VariantSelection{ColorText: "black"})
	assert.ErrorIs(t, err, ErrVariantNotFound)
}

func TestResolveByTextSingleAttributeUnambiguous(t *testing.T) {
	r := NewResolver()
	product := testProduct()

	variantID, err := r.Resolve(context.Background(), product, models.VariantSelection{ColorText: "white"})
	require.NoError(t, err)
	assert.Equal(t, int64(102), variantID)
}

func TestResolveEmptySelection(t *testing.T) {
	r := NewResolver()

	_, err := r.Resolve(context.Background(), testProduct(), models.VariantSelection{})
	assert.ErrorIs(t, err, ErrSelectionIncomplete)
}

func TestResolveIsDeterministic(t *testing.T) {
	r := NewResolver()
	product := testProduct()
	selection := models.VariantSelection{ColorText: "black", SizeText: "m"}

	first, firstErr := r.Resolve(context.Background(), product, selection)
	second, secondErr := r.Resolve(context.Background(), product, selection)

	assert.Equal(t, first, second)
	assert.Equal(t, errors.Is(firstErr, ErrVariantNotFound), errors.Is(secondErr, ErrVariantNotFound))
	require.NoError(t, firstErr)
	assert.Equal(t, int64(100), first)
}

func TestOptions(t *testing.T) {
	r := NewResolver()

	options := r.Options(testProduct())
	require.Len(t, options, 3)
	assert.Equal(t, models.VariantOption{ColorName: "Black", SizeName: "M", InStock: true}, options[0])
	assert.Equal(t, models.VariantOption{ColorName: "Black", SizeName: "L", InStock: false}, options[1])
}
