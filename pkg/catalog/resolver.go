// Package catalog resolves fuzzy variant selections against a product's
// variant list. Resolution either lands on exactly one variant or fails
// explicitly; it never guesses and never substitutes the product id for a
// variant id.
package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrVariantNotFound is returned when no variant matches the selection.
	// It is always recoverable: callers prompt the user with Options.
	ErrVariantNotFound = errors.New("no variant matches the requested color and size")

	// ErrSelectionIncomplete is returned when the selection carries neither
	// a full ID pair nor any text attribute.
	ErrSelectionIncomplete = errors.New("variant selection is missing color and size")
)

// Resolver maps a (product, selection) pair to a single variant id.
type Resolver struct{}

// NewResolver creates a new variant resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the id of the one variant matching the selection.
//
// ID-based selection compares (color id, size id) tuples; the catalog
// uniqueness invariant guarantees at most one match. Text-based selection
// compares display names after lowercasing and trimming whitespace only; no
// partial or fuzzy matching is permitted, so a request for "XXL" never binds
// to a catalog "2XL".
func (r *Resolver) Resolve(ctx context.Context, product *models.Product, selection models.VariantSelection) (int64, error) {
	_, span := tracing.StartSpan(ctx, "VariantResolver.Resolve")
	defer span.End()

	if selection.HasIDs() {
		return r.resolveByID(product, *selection.ColorID, *selection.SizeID)
	}

	if selection.ColorText != "" || selection.SizeText != "" {
		return r.resolveByText(product, selection.ColorText, selection.SizeText)
	}

	return 0, ErrSelectionIncomplete
}

func (r *Resolver) resolveByID(product *models.Product, colorID, sizeID int64) (int64, error) {
	for _, variant := range product.Variants {
		if variant.Color.ID == colorID && variant.Size.ID == sizeID {
			return variant.ID, nil
		}
	}
	return 0, ErrVariantNotFound
}

func (r *Resolver) resolveByText(product *models.Product, colorText, sizeText string) (int64, error) {
	wantColor := normalize(colorText)
	wantSize := normalize(sizeText)

	var (
		matchID int64
		matches int
	)
	for _, variant := range product.Variants {
		if wantColor != "" && normalize(variant.Color.Name) != wantColor {
			continue
		}
		if wantSize != "" && normalize(variant.Size.Name) != wantSize {
			continue
		}
		matchID = variant.ID
		matches++
	}

	// A text selection naming only one attribute can legitimately match
	// several variants; ambiguity is a failure, the same as zero matches.
	if matches != 1 {
		return 0, ErrVariantNotFound
	}
	return matchID, nil
}

// Options enumerates the valid (color, size) pairs for a product so the
// dialogue layer can prompt the user after a failed selection.
func (r *Resolver) Options(product *models.Product) []models.VariantOption {
	options := make([]models.VariantOption, 0, len(product.Variants))
	for _, variant := range product.Variants {
		options = append(options, models.VariantOption{
			ColorName: variant.Color.Name,
			SizeName:  variant.Size.Name,
			InStock:   variant.Stock > 0,
		})
	}
	return options
}

// normalize lowercases and trims whitespace. Nothing more: broader synonym
// handling belongs upstream in entity extraction, not here.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
