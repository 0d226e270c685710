package market

import (
	"context"
	"fmt"
)

// ItemType classifies catalog templates and drives the stacking and karma
// policies below.
type ItemType string

const (
	ItemTypeWeapon      ItemType = "weapon"
	ItemTypeArmor       ItemType = "armor"
	ItemTypeGear        ItemType = "gear"
	ItemTypeAmmo        ItemType = "ammo"
	ItemTypeCyberware   ItemType = "cyberware"
	ItemTypeBioware     ItemType = "bioware"
	ItemTypeQuality     ItemType = "quality"
	ItemTypeSpell       ItemType = "spell"
	ItemTypeComplexForm ItemType = "complex_form"
	ItemTypePower       ItemType = "power"
)

// ParseItemType validates a persisted item type.
func ParseItemType(raw string) (ItemType, error) {
	switch ItemType(raw) {
	case ItemTypeWeapon, ItemTypeArmor, ItemTypeGear, ItemTypeAmmo,
		ItemTypeCyberware, ItemTypeBioware, ItemTypeQuality,
		ItemTypeSpell, ItemTypeComplexForm, ItemTypePower:
		return ItemType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidItemType, raw)
}

// String returns the persisted form.
func (itemType ItemType) String() string {
	return string(itemType)
}

// Stackable reports whether repeat purchases of the same template increment a
// quantity field instead of creating distinct entries.
func (itemType ItemType) Stackable() bool {
	switch itemType {
	case ItemTypeGear, ItemTypeAmmo:
		return true
	}
	return false
}

// UniquePerActor reports whether a template may be acquired at most once per
// actor. Adding a second copy is rejected, not merged.
func (itemType ItemType) UniquePerActor() bool {
	switch itemType {
	case ItemTypeCyberware, ItemTypeBioware, ItemTypeQuality:
		return true
	}
	return false
}

// CarriesKarma reports whether the karma cost is annotated onto materialized
// copies for audit. Closed set; not user-configurable.
func (itemType ItemType) CarriesKarma() bool {
	switch itemType {
	case ItemTypeQuality, ItemTypePower, ItemTypeSpell, ItemTypeComplexForm:
		return true
	}
	return false
}

// CatalogItem is a read-only purchasable template.
type CatalogItem struct {
	CatalogID                CatalogID
	Name                     string
	Image                    string
	Type                     ItemType
	BaseRating               Rating
	MaxRating                Rating
	BaseCost                 Nuyen
	KarmaCost                Karma
	EssenceCost              EssenceMils
	BaseAvailability         Availability
	RatingScalesCost         bool
	RatingScalesAvailability bool
}

// PriceQuote is the computed cost of one template at a chosen rating.
type PriceQuote struct {
	Item         CatalogItem
	Rating       Rating
	Cost         Nuyen
	KarmaCost    Karma
	EssenceCost  EssenceMils
	Availability Availability
}

// PriceBook is the read-only catalog lookup consumed by the basket service
// and the materializer. Rating zero resolves at the item's base rating.
// An unknown reference surfaces as ErrItemNotFound.
type PriceBook interface {
	Resolve(ctx context.Context, catalogID CatalogID, rating Rating) (PriceQuote, error)
	Item(ctx context.Context, catalogID CatalogID) (CatalogItem, error)
}
