package market

import (
	"context"
	"errors"
	"testing"
)

func TestAddItemStacksGear(test *testing.T) {
	test.Parallel()
	gear := gearTemplate(test, "gear-1", 100)
	flags := newStubFlags()
	service := mustBasketService(test, flags, newStubPriceBook(gear), WithBasketIDGenerator(sequentialIDs("id")))
	user := mustUserID(test, "user-1")
	actor := mustActorID(test, "actor-1")

	if _, err := service.AddItem(context.Background(), user, gear.CatalogID, 0, actor); err != nil {
		test.Fatalf("first add: %v", err)
	}
	basket, err := service.AddItem(context.Background(), user, gear.CatalogID, 0, actor)
	if err != nil {
		test.Fatalf("second add: %v", err)
	}
	if len(basket.Lines) != 1 {
		test.Fatalf("expected 1 line, got %d", len(basket.Lines))
	}
	if basket.Lines[0].Quantity != 2 {
		test.Fatalf("expected quantity 2, got %d", basket.Lines[0].Quantity)
	}
	if basket.Totals.Cost != 200 {
		test.Fatalf("expected cost 200, got %d", basket.Totals.Cost.Int64())
	}
	if basket.OwnerActor != actor {
		test.Fatalf("expected owner %s, got %s", actor.String(), basket.OwnerActor.String())
	}
}

func TestAddItemRejectsDuplicateUnique(test *testing.T) {
	test.Parallel()
	ware := cyberwareTemplate(test, "ware-1", 5000, 500)
	flags := newStubFlags()
	service := mustBasketService(test, flags, newStubPriceBook(ware), WithBasketIDGenerator(sequentialIDs("id")))
	user := mustUserID(test, "user-1")
	actor := mustActorID(test, "actor-1")

	if _, err := service.AddItem(context.Background(), user, ware.CatalogID, 0, actor); err != nil {
		test.Fatalf("first add: %v", err)
	}
	basket, err := service.AddItem(context.Background(), user, ware.CatalogID, 0, actor)
	if !errors.Is(err, ErrDuplicateUniqueItem) {
		test.Fatalf("expected ErrDuplicateUniqueItem, got %v", err)
	}
	if len(basket.Lines) != 1 {
		test.Fatalf("expected cart unchanged with 1 line, got %d", len(basket.Lines))
	}
}

func TestAddItemWithoutActorFails(test *testing.T) {
	test.Parallel()
	gear := gearTemplate(test, "gear-1", 100)
	service := mustBasketService(test, newStubFlags(), newStubPriceBook(gear))
	user := mustUserID(test, "user-1")

	_, err := service.AddItem(context.Background(), user, gear.CatalogID, 0, ActorID{})
	if !errors.Is(err, ErrNoActorSelected) {
		test.Fatalf("expected ErrNoActorSelected, got %v", err)
	}
}

func TestAddItemFallsBackToResolver(test *testing.T) {
	test.Parallel()
	gear := gearTemplate(test, "gear-1", 100)
	assigned := mustActorID(test, "assigned-actor")
	service := mustBasketService(test, newStubFlags(), newStubPriceBook(gear),
		WithActorResolver(&stubResolver{actor: assigned, found: true}),
		WithBasketIDGenerator(sequentialIDs("id")),
	)
	user := mustUserID(test, "user-1")

	basket, err := service.AddItem(context.Background(), user, gear.CatalogID, 0, ActorID{})
	if err != nil {
		test.Fatalf("add: %v", err)
	}
	if basket.OwnerActor != assigned {
		test.Fatalf("expected resolved owner %s, got %s", assigned.String(), basket.OwnerActor.String())
	}
}

func TestAddItemUnknownCatalogReference(test *testing.T) {
	test.Parallel()
	service := mustBasketService(test, newStubFlags(), newStubPriceBook())
	user := mustUserID(test, "user-1")

	_, err := service.AddItem(context.Background(), user, mustCatalogID(test, "missing"), 0, mustActorID(test, "actor-1"))
	if !errors.Is(err, ErrItemNotFound) {
		test.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestAddItemSeparateLinesPerRating(test *testing.T) {
	test.Parallel()
	rated := CatalogItem{
		CatalogID:        mustCatalogID(test, "gear-rated"),
		Name:             "Rated Gear",
		Type:             ItemTypeGear,
		BaseRating:       1,
		MaxRating:        6,
		BaseCost:         100,
		RatingScalesCost: true,
	}
	service := mustBasketService(test, newStubFlags(), newStubPriceBook(rated), WithBasketIDGenerator(sequentialIDs("id")))
	user := mustUserID(test, "user-1")
	actor := mustActorID(test, "actor-1")

	if _, err := service.AddItem(context.Background(), user, rated.CatalogID, 2, actor); err != nil {
		test.Fatalf("rating 2 add: %v", err)
	}
	basket, err := service.AddItem(context.Background(), user, rated.CatalogID, 3, actor)
	if err != nil {
		test.Fatalf("rating 3 add: %v", err)
	}
	if len(basket.Lines) != 2 {
		test.Fatalf("expected distinct lines per rating, got %d", len(basket.Lines))
	}
	if basket.Totals.Cost != 500 {
		test.Fatalf("expected cost 500 (200+300), got %d", basket.Totals.Cost.Int64())
	}
}

func TestRemoveLineMissingIsReported(test *testing.T) {
	test.Parallel()
	gear := gearTemplate(test, "gear-1", 100)
	service := mustBasketService(test, newStubFlags(), newStubPriceBook(gear), WithBasketIDGenerator(sequentialIDs("id")))
	user := mustUserID(test, "user-1")
	actor := mustActorID(test, "actor-1")

	if _, err := service.AddItem(context.Background(), user, gear.CatalogID, 0, actor); err != nil {
		test.Fatalf("add: %v", err)
	}
	basket, err := service.RemoveLine(context.Background(), user, mustLineID(test, "nope"))
	if !errors.Is(err, ErrLineNotFound) {
		test.Fatalf("expected ErrLineNotFound, got %v", err)
	}
	if len(basket.Lines) != 1 {
		test.Fatalf("expected cart unchanged, got %d lines", len(basket.Lines))
	}
}

func TestChangeQuantityFloorRemovesLine(test *testing.T) {
	test.Parallel()
	gear := gearTemplate(test, "gear-1", 100)
	service := mustBasketService(test, newStubFlags(), newStubPriceBook(gear), WithBasketIDGenerator(sequentialIDs("id")))
	user := mustUserID(test, "user-1")
	actor := mustActorID(test, "actor-1")

	basket, err := service.AddItem(context.Background(), user, gear.CatalogID, 0, actor)
	if err != nil {
		test.Fatalf("add: %v", err)
	}
	lineID := basket.Lines[0].LineID

	basket, err = service.ChangeQuantity(context.Background(), user, lineID, 2)
	if err != nil {
		test.Fatalf("increase: %v", err)
	}
	if basket.Lines[0].Quantity != 3 {
		test.Fatalf("expected quantity 3, got %d", basket.Lines[0].Quantity)
	}

	basket, err = service.ChangeQuantity(context.Background(), user, lineID, -5)
	if err != nil {
		test.Fatalf("decrease: %v", err)
	}
	if len(basket.Lines) != 0 {
		test.Fatalf("expected line removed at zero, got %d lines", len(basket.Lines))
	}
	if basket.Totals.Cost != 0 {
		test.Fatalf("expected zero cost, got %d", basket.Totals.Cost.Int64())
	}
}

func TestClearResetsBasketKeepsQueue(test *testing.T) {
	test.Parallel()
	gear := gearTemplate(test, "gear-1", 100)
	flags := newStubFlags()
	book := newStubPriceBook(gear)
	service := mustBasketService(test, flags, book, WithBasketIDGenerator(sequentialIDs("basket")))
	actors := newStubActors()
	materializer := mustMaterializer(test, actors, book)
	workflow := mustWorkflow(test, flags, book, actors, materializer, WithWorkflowIDGenerator(sequentialIDs("req")))
	user := mustUserID(test, "user-1")
	actor := mustActorID(test, "actor-1")

	if _, err := service.AddItem(context.Background(), user, gear.CatalogID, 0, actor); err != nil {
		test.Fatalf("add: %v", err)
	}
	if _, err := workflow.Submit(context.Background(), user); err != nil {
		test.Fatalf("submit: %v", err)
	}
	if _, err := service.AddItem(context.Background(), user, gear.CatalogID, 0, actor); err != nil {
		test.Fatalf("second add: %v", err)
	}

	basket, err := service.Clear(context.Background(), user)
	if err != nil {
		test.Fatalf("clear: %v", err)
	}
	if len(basket.Lines) != 0 {
		test.Fatalf("expected empty basket, got %d lines", len(basket.Lines))
	}
	pending, err := workflow.ListPending(context.Background(), user)
	if err != nil {
		test.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		test.Fatalf("expected queue to survive clear, got %d pending", len(pending))
	}
}

func TestSetContactPersists(test *testing.T) {
	test.Parallel()
	service := mustBasketService(test, newStubFlags(), newStubPriceBook())
	user := mustUserID(test, "user-1")

	basket, err := service.SetContact(context.Background(), user, "contact-9")
	if err != nil {
		test.Fatalf("set contact: %v", err)
	}
	if basket.SelectedContact != "contact-9" {
		test.Fatalf("expected contact-9, got %q", basket.SelectedContact)
	}
	reloaded, err := service.Basket(context.Background(), user)
	if err != nil {
		test.Fatalf("reload: %v", err)
	}
	if reloaded.SelectedContact != "contact-9" {
		test.Fatalf("contact not persisted: %q", reloaded.SelectedContact)
	}
}

func TestBasketMissingSlotDefaults(test *testing.T) {
	test.Parallel()
	flags := newStubFlags()
	service := mustBasketService(test, flags, newStubPriceBook(), WithBasketIDGenerator(sequentialIDs("fresh")))
	user := mustUserID(test, "user-1")

	basket, err := service.Basket(context.Background(), user)
	if err != nil {
		test.Fatalf("basket: %v", err)
	}
	if basket.BasketID == "" || len(basket.Lines) != 0 {
		test.Fatalf("expected fresh defaulted basket, got %+v", basket)
	}
	// Reads never persist the defaulted slot.
	if len(flags.documents) != 0 {
		test.Fatalf("expected no persisted document after read")
	}
}
