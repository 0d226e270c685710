package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MarkoPoloResearchLab/vttmarket/pkg/market"
)

func mustCatalogID(test *testing.T, raw string) market.CatalogID {
	test.Helper()
	catalogID, err := market.NewCatalogID(raw)
	if err != nil {
		test.Fatalf("catalog id %q: %v", raw, err)
	}
	return catalogID
}

func ratedTemplate(test *testing.T) market.CatalogItem {
	test.Helper()
	return market.CatalogItem{
		CatalogID:                mustCatalogID(test, "foci-1"),
		Name:                     "Power Focus",
		Type:                     market.ItemTypeGear,
		BaseRating:               1,
		MaxRating:                6,
		BaseCost:                 18000,
		BaseAvailability:         market.Availability{Numeric: 4, Restriction: market.RestrictionRestricted},
		RatingScalesCost:         true,
		RatingScalesAvailability: true,
	}
}

func TestQuoteAt(test *testing.T) {
	test.Parallel()
	rated := ratedTemplate(test)
	flat := market.CatalogItem{
		CatalogID:        mustCatalogID(test, "gear-1"),
		Name:             "Commlink",
		Type:             market.ItemTypeGear,
		BaseCost:         300,
		BaseAvailability: market.Availability{Numeric: 2},
	}

	cases := []struct {
		name             string
		item             market.CatalogItem
		rating           market.Rating
		wantErr          error
		wantCost         market.Nuyen
		wantRating       market.Rating
		wantAvailability market.Availability
	}{
		{
			name:             "zero rating resolves at base",
			item:             rated,
			rating:           0,
			wantCost:         18000,
			wantRating:       1,
			wantAvailability: market.Availability{Numeric: 4, Restriction: market.RestrictionRestricted},
		},
		{
			name:             "rating scales cost and availability",
			item:             rated,
			rating:           3,
			wantCost:         54000,
			wantRating:       3,
			wantAvailability: market.Availability{Numeric: 12, Restriction: market.RestrictionRestricted},
		},
		{
			name:    "rating above maximum",
			item:    rated,
			rating:  7,
			wantErr: market.ErrInvalidRating,
		},
		{
			name:             "unrated item ignores scaling",
			item:             flat,
			rating:           0,
			wantCost:         300,
			wantRating:       0,
			wantAvailability: market.Availability{Numeric: 2},
		},
	}
	for _, tc := range cases {
		tc := tc
		test.Run(tc.name, func(test *testing.T) {
			test.Parallel()
			quote, err := QuoteAt(tc.item, tc.rating)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					test.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				test.Fatalf("unexpected error: %v", err)
			}
			if quote.Cost != tc.wantCost {
				test.Fatalf("expected cost %d, got %d", tc.wantCost.Int64(), quote.Cost.Int64())
			}
			if quote.Rating != tc.wantRating {
				test.Fatalf("expected rating %d, got %d", tc.wantRating.Int(), quote.Rating.Int())
			}
			if quote.Availability != tc.wantAvailability {
				test.Fatalf("expected availability %+v, got %+v", tc.wantAvailability, quote.Availability)
			}
		})
	}
}

func TestBookResolvesThroughSource(test *testing.T) {
	test.Parallel()
	rated := ratedTemplate(test)
	book, err := NewBook(StaticSource{rated.CatalogID.String(): rated})
	if err != nil {
		test.Fatalf("book init: %v", err)
	}

	quote, err := book.Resolve(context.Background(), rated.CatalogID, 2)
	if err != nil {
		test.Fatalf("resolve: %v", err)
	}
	if quote.Cost != 36000 {
		test.Fatalf("expected cost 36000, got %d", quote.Cost.Int64())
	}

	_, err = book.Resolve(context.Background(), mustCatalogID(test, "missing"), 0)
	if !errors.Is(err, market.ErrItemNotFound) {
		test.Fatalf("expected market.ErrItemNotFound, got %v", err)
	}
}

func TestNewBookRequiresSource(test *testing.T) {
	test.Parallel()
	if _, err := NewBook(nil); !errors.Is(err, market.ErrInvalidServiceConfig) {
		test.Fatalf("expected market.ErrInvalidServiceConfig, got %v", err)
	}
}

func TestLoadFile(test *testing.T) {
	test.Parallel()
	path := filepath.Join(test.TempDir(), "catalog.json")
	payload := `{
		"items": [
			{
				"id": "gear-commlink",
				"name": "Commlink",
				"type": "gear",
				"baseCost": 300,
				"availability": "2"
			},
			{
				"id": "ware-wired",
				"name": "Wired Reflexes",
				"type": "cyberware",
				"baseRating": 1,
				"maxRating": 3,
				"baseCost": 39000,
				"essenceCost": 2000,
				"availability": "8R",
				"ratingScalesCost": true
			}
		]
	}`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		test.Fatalf("write fixture: %v", err)
	}

	items, err := LoadFile(path)
	if err != nil {
		test.Fatalf("load: %v", err)
	}
	if len(items) != 2 {
		test.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].CatalogID.String() != "gear-commlink" || items[0].BaseCost != 300 {
		test.Fatalf("unexpected first item: %+v", items[0])
	}
	wired := items[1]
	if wired.Type != market.ItemTypeCyberware || wired.EssenceCost != 2000 || !wired.RatingScalesCost {
		test.Fatalf("unexpected second item: %+v", wired)
	}
	want := market.Availability{Numeric: 8, Restriction: market.RestrictionRestricted}
	if wired.BaseAvailability != want {
		test.Fatalf("expected availability %+v, got %+v", want, wired.BaseAvailability)
	}
}

func TestLoadFileRejectsInvalidEntry(test *testing.T) {
	test.Parallel()
	path := filepath.Join(test.TempDir(), "catalog.json")
	payload := `{"items": [{"id": "vehicle-1", "name": "Bike", "type": "vehicle", "baseCost": 3000}]}`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		test.Fatalf("write fixture: %v", err)
	}

	if _, err := LoadFile(path); !errors.Is(err, market.ErrInvalidItemType) {
		test.Fatalf("expected market.ErrInvalidItemType, got %v", err)
	}
}

func TestLoadFileMissingPath(test *testing.T) {
	test.Parallel()
	if _, err := LoadFile(filepath.Join(test.TempDir(), "absent.json")); err == nil {
		test.Fatalf("expected error for missing file")
	}
}
