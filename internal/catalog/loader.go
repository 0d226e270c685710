package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/MarkoPoloResearchLab/vttmarket/pkg/market"
)

// FileItem is one entry of a catalog export file.
type FileItem struct {
	ID                       string `json:"id"`
	Name                     string `json:"name"`
	Image                    string `json:"image"`
	Type                     string `json:"type"`
	BaseRating               int    `json:"baseRating"`
	MaxRating                int    `json:"maxRating"`
	BaseCost                 int64  `json:"baseCost"`
	KarmaCost                int64  `json:"karmaCost"`
	EssenceCost              int64  `json:"essenceCost"`
	Availability             string `json:"availability"`
	RatingScalesCost         bool   `json:"ratingScalesCost"`
	RatingScalesAvailability bool   `json:"ratingScalesAvailability"`
}

// File is the top-level layout of a catalog export.
type File struct {
	Items []FileItem `json:"items"`
}

// LoadFile reads and validates a catalog export.
func LoadFile(path string) ([]market.CatalogItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var file File
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	items := make([]market.CatalogItem, 0, len(file.Items))
	for index, fileItem := range file.Items {
		item, err := itemFromFileItem(fileItem)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %d (%s): %w", index, fileItem.ID, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func itemFromFileItem(fileItem FileItem) (market.CatalogItem, error) {
	catalogID, err := market.NewCatalogID(fileItem.ID)
	if err != nil {
		return market.CatalogItem{}, err
	}
	itemType, err := market.ParseItemType(fileItem.Type)
	if err != nil {
		return market.CatalogItem{}, err
	}
	baseRating, err := market.NewRating(fileItem.BaseRating)
	if err != nil {
		return market.CatalogItem{}, err
	}
	maxRating, err := market.NewRating(fileItem.MaxRating)
	if err != nil {
		return market.CatalogItem{}, err
	}
	baseCost, err := market.NewNuyen(fileItem.BaseCost)
	if err != nil {
		return market.CatalogItem{}, err
	}
	karmaCost, err := market.NewKarma(fileItem.KarmaCost)
	if err != nil {
		return market.CatalogItem{}, err
	}
	essenceCost, err := market.NewEssenceMils(fileItem.EssenceCost)
	if err != nil {
		return market.CatalogItem{}, err
	}
	return market.CatalogItem{
		CatalogID:                catalogID,
		Name:                     fileItem.Name,
		Image:                    fileItem.Image,
		Type:                     itemType,
		BaseRating:               baseRating,
		MaxRating:                maxRating,
		BaseCost:                 baseCost,
		KarmaCost:                karmaCost,
		EssenceCost:              essenceCost,
		BaseAvailability:         market.ParseAvailability(fileItem.Availability),
		RatingScalesCost:         fileItem.RatingScalesCost,
		RatingScalesAvailability: fileItem.RatingScalesAvailability,
	}, nil
}
