// Package catalog implements the read-only price book over a catalog item
// source: rating-scaled quotes plus a JSON loader for seeding stores.
package catalog

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/vttmarket/pkg/market"
)

// ItemSource fetches catalog templates by id. Implemented by the stores.
type ItemSource interface {
	Item(ctx context.Context, catalogID market.CatalogID) (market.CatalogItem, error)
}

// Book implements market.PriceBook over an ItemSource.
type Book struct {
	source ItemSource
}

// NewBook wires a Book.
func NewBook(source ItemSource) (*Book, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: item source dependency is nil", market.ErrInvalidServiceConfig)
	}
	return &Book{source: source}, nil
}

// Item returns the raw catalog template.
func (book *Book) Item(ctx context.Context, catalogID market.CatalogID) (market.CatalogItem, error) {
	return book.source.Item(ctx, catalogID)
}

// Resolve computes the quote for a template at the chosen rating; rating
// zero resolves at the item's base rating.
func (book *Book) Resolve(ctx context.Context, catalogID market.CatalogID, rating market.Rating) (market.PriceQuote, error) {
	item, err := book.source.Item(ctx, catalogID)
	if err != nil {
		return market.PriceQuote{}, err
	}
	return QuoteAt(item, rating)
}

// QuoteAt prices one template at a rating. Rated items multiply cost (and,
// where flagged, the availability numeric) by the rating tier; unrated
// quantities pass through unchanged. A rating above the template's maximum
// is rejected.
func QuoteAt(item market.CatalogItem, rating market.Rating) (market.PriceQuote, error) {
	effective := rating
	if effective == 0 {
		effective = item.BaseRating
	}
	if item.MaxRating > 0 && effective > item.MaxRating {
		return market.PriceQuote{}, fmt.Errorf("%w: rating %d exceeds maximum %d for %s",
			market.ErrInvalidRating, effective.Int(), item.MaxRating.Int(), item.CatalogID.String())
	}

	cost := item.BaseCost
	if item.RatingScalesCost && effective > 0 {
		cost = item.BaseCost * market.Nuyen(effective.Int())
	}
	availability := item.BaseAvailability
	if item.RatingScalesAvailability && effective > 0 {
		availability.Numeric = item.BaseAvailability.Numeric * effective.Int()
	}

	return market.PriceQuote{
		Item:         item,
		Rating:       effective,
		Cost:         cost,
		KarmaCost:    item.KarmaCost,
		EssenceCost:  item.EssenceCost,
		Availability: availability,
	}, nil
}

// StaticSource is an in-memory ItemSource keyed by catalog id string.
type StaticSource map[string]market.CatalogItem

// Item implements ItemSource.
func (source StaticSource) Item(_ context.Context, catalogID market.CatalogID) (market.CatalogItem, error) {
	item, found := source[catalogID.String()]
	if !found {
		return market.CatalogItem{}, fmt.Errorf("%w: %s", market.ErrItemNotFound, catalogID.String())
	}
	return item, nil
}
