package market

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// MaterializerOption configures a Materializer instance.
type MaterializerOption func(*Materializer)

// WithMaterializerOperationLogger wires a logger for materialization events.
func WithMaterializerOperationLogger(logger OperationLogger) MaterializerOption {
	return func(materializer *Materializer) {
		materializer.logger = logger
	}
}

// WithMaterializerIDGenerator overrides the item/entry id generator.
func WithMaterializerIDGenerator(newID func() string) MaterializerOption {
	return func(materializer *Materializer) {
		if newID != nil {
			materializer.newID = newID
		}
	}
}

// Materializer commits an approved purchase against the target actor:
// inventory copies enriched with the frozen line values, then exactly one
// ledger entry tagged with the request id.
type Materializer struct {
	actors    ActorStore
	priceBook PriceBook
	nowFn     func() int64
	newID     func() string
	logger    OperationLogger
}

// NewMaterializer wires a Materializer.
func NewMaterializer(actors ActorStore, priceBook PriceBook, now func() int64, options ...MaterializerOption) (*Materializer, error) {
	if actors == nil {
		return nil, fmt.Errorf("%w: actor store dependency is nil", ErrInvalidServiceConfig)
	}
	if priceBook == nil {
		return nil, fmt.Errorf("%w: price book dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	materializer := &Materializer{
		actors:    actors,
		priceBook: priceBook,
		nowFn:     now,
		newID:     uuid.NewString,
	}
	for _, option := range options {
		if option != nil {
			option(materializer)
		}
	}
	return materializer, nil
}

// Materialize creates the request's inventory copies on the actor and appends
// the aggregated ledger entry. A ledger entry already tagged with the request
// id makes the whole call a reported no-op (ErrLedgerEntryExists) with no
// items created. Item-creation failures do not roll back earlier items in the
// batch; they are reported through ErrPartialMaterialization while the ledger
// entry for the successes is still appended.
func (materializer *Materializer) Materialize(ctx context.Context, actor ActorID, request PurchaseRequest) ([]GrantedItem, error) {
	exists, err := materializer.actors.HasLedgerEntry(ctx, actor, request.RequestID)
	if err != nil {
		materializer.logMaterialization(ctx, request, actor, err)
		return nil, err
	}
	if exists {
		err = fmt.Errorf("%w: request %s", ErrLedgerEntryExists, request.RequestID.String())
		materializer.logMaterialization(ctx, request, actor, err)
		return nil, err
	}

	items := make([]InventoryItem, 0, len(request.Lines))
	granted := make([]GrantedItem, 0, len(request.Lines))
	for _, line := range request.Lines {
		items = append(items, materializer.itemsFromLine(ctx, line)...)
		granted = append(granted, GrantedItem{
			CatalogID: line.Item.CatalogID,
			Name:      line.Item.Name,
			Rating:    line.Item.SelectedRating,
			Cost:      line.Item.Cost,
			Karma:     line.Item.KarmaCost,
			Essence:   line.Item.EssenceCost,
		})
	}

	created, createErr := materializer.actors.CreateItems(ctx, actor, items)
	failed := len(items) - len(created)

	entry := LedgerEntry{
		EntryID:        materializer.newID(),
		RequestID:      request.RequestID.String(),
		CreatedUnixUTC: materializer.nowFn(),
		Items:          granted,
		KarmaDelta:     request.Totals.Karma,
		Gain:           true,
	}
	if appendErr := materializer.actors.AppendLedgerEntry(ctx, actor, entry); appendErr != nil {
		materializer.logMaterialization(ctx, request, actor, appendErr)
		return granted, appendErr
	}

	var materializationErr error
	if createErr != nil || failed > 0 {
		materializationErr = fmt.Errorf("%w: %d of %d inventory items failed: %v",
			ErrPartialMaterialization, failed, len(items), createErr)
	}
	materializer.logMaterialization(ctx, request, actor, materializationErr)
	return granted, materializationErr
}

// itemsFromLine clones the catalog template and overwrites cost, rating,
// availability, and essence with the line's frozen values. Stackable types
// materialize as one stacked item carrying the quantity; everything else as
// quantity separate copies. A vanished template falls back to the frozen line
// values alone.
func (materializer *Materializer) itemsFromLine(ctx context.Context, line BasketLine) []InventoryItem {
	name := line.Item.Name
	image := line.Item.Image
	if template, err := materializer.priceBook.Item(ctx, line.Item.CatalogID); err == nil {
		name = template.Name
		image = template.Image
	}
	karmaCost := Karma(0)
	if line.Item.Type.CarriesKarma() {
		karmaCost = line.Item.KarmaCost
	}
	prototype := InventoryItem{
		CatalogID:    line.Item.CatalogID,
		Name:         name,
		Image:        image,
		Type:         line.Item.Type,
		Rating:       line.Item.SelectedRating,
		Cost:         line.Item.Cost,
		Availability: line.Item.Availability,
		EssenceCost:  line.Item.EssenceCost,
		KarmaCost:    karmaCost,
		Quantity:     1,
	}
	if line.Item.Type.Stackable() {
		stacked := prototype
		stacked.ItemID = materializer.newID()
		stacked.Quantity = line.Quantity
		return []InventoryItem{stacked}
	}
	copies := make([]InventoryItem, 0, line.Quantity)
	for copyIndex := 0; copyIndex < line.Quantity; copyIndex++ {
		item := prototype
		item.ItemID = materializer.newID()
		copies = append(copies, item)
	}
	return copies
}

func (materializer *Materializer) logMaterialization(ctx context.Context, request PurchaseRequest, actor ActorID, err error) {
	emitOperation(ctx, materializer.logger, OperationLog{
		Operation: operationMaterialize,
		User:      request.SourceUser,
		Actor:     actor,
		RequestID: request.RequestID,
		Cost:      request.Totals.Cost,
		Karma:     request.Totals.Karma,
		Error:     err,
	})
}
