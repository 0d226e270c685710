package market

import (
	"context"
	"fmt"
	"sort"
	"testing"
)

type stubFlags struct {
	documents map[string]Document
	failSet   error
}

func newStubFlags() *stubFlags {
	return &stubFlags{documents: map[string]Document{}}
}

func (flags *stubFlags) Document(_ context.Context, user UserID) (Document, bool, error) {
	document, found := flags.documents[user.String()]
	return document, found, nil
}

func (flags *stubFlags) SetDocument(_ context.Context, user UserID, document Document) error {
	if flags.failSet != nil {
		return flags.failSet
	}
	flags.documents[user.String()] = document
	return nil
}

func (flags *stubFlags) Documents(_ context.Context) ([]UserDocument, error) {
	users := make([]string, 0, len(flags.documents))
	for user := range flags.documents {
		users = append(users, user)
	}
	sort.Strings(users)
	documents := make([]UserDocument, 0, len(users))
	for _, user := range users {
		documents = append(documents, UserDocument{UserID: user, Document: flags.documents[user]})
	}
	return documents, nil
}

type stubActors struct {
	pools      map[string]Pools
	items      map[string][]InventoryItem
	ledger     map[string][]LedgerEntry
	failCreate int
}

func newStubActors() *stubActors {
	return &stubActors{
		pools:  map[string]Pools{},
		items:  map[string][]InventoryItem{},
		ledger: map[string][]LedgerEntry{},
	}
}

func (actors *stubActors) Pools(_ context.Context, actor ActorID) (Pools, error) {
	return actors.pools[actor.String()], nil
}

func (actors *stubActors) SetPools(_ context.Context, actor ActorID, pools Pools) error {
	actors.pools[actor.String()] = pools
	return nil
}

func (actors *stubActors) CreateItems(_ context.Context, actor ActorID, items []InventoryItem) ([]InventoryItem, error) {
	created := make([]InventoryItem, 0, len(items))
	var firstErr error
	for index, item := range items {
		if index < actors.failCreate {
			if firstErr == nil {
				firstErr = fmt.Errorf("item rejected by host")
			}
			continue
		}
		actors.items[actor.String()] = append(actors.items[actor.String()], item)
		created = append(created, item)
	}
	return created, firstErr
}

func (actors *stubActors) HasLedgerEntry(_ context.Context, actor ActorID, requestID RequestID) (bool, error) {
	for _, entry := range actors.ledger[actor.String()] {
		if entry.RequestID == requestID.String() {
			return true, nil
		}
	}
	return false, nil
}

func (actors *stubActors) AppendLedgerEntry(_ context.Context, actor ActorID, entry LedgerEntry) error {
	if entry.RequestID != "" {
		for _, existing := range actors.ledger[actor.String()] {
			if existing.RequestID == entry.RequestID {
				return fmt.Errorf("%w: %s", ErrLedgerEntryExists, entry.RequestID)
			}
		}
	}
	actors.ledger[actor.String()] = append(actors.ledger[actor.String()], entry)
	return nil
}

func (actors *stubActors) LedgerEntries(_ context.Context, actor ActorID, limit int) ([]LedgerEntry, error) {
	entries := actors.ledger[actor.String()]
	result := make([]LedgerEntry, 0, len(entries))
	for index := len(entries) - 1; index >= 0; index-- {
		result = append(result, entries[index])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

type stubPriceBook struct {
	items map[string]CatalogItem
}

func newStubPriceBook(items ...CatalogItem) *stubPriceBook {
	book := &stubPriceBook{items: map[string]CatalogItem{}}
	for _, item := range items {
		book.items[item.CatalogID.String()] = item
	}
	return book
}

func (book *stubPriceBook) Item(_ context.Context, catalogID CatalogID) (CatalogItem, error) {
	item, found := book.items[catalogID.String()]
	if !found {
		return CatalogItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, catalogID.String())
	}
	return item, nil
}

func (book *stubPriceBook) Resolve(ctx context.Context, catalogID CatalogID, rating Rating) (PriceQuote, error) {
	item, err := book.Item(ctx, catalogID)
	if err != nil {
		return PriceQuote{}, err
	}
	effective := rating
	if effective == 0 {
		effective = item.BaseRating
	}
	if item.MaxRating > 0 && effective > item.MaxRating {
		return PriceQuote{}, fmt.Errorf("%w: rating %d exceeds maximum", ErrInvalidRating, effective.Int())
	}
	cost := item.BaseCost
	if item.RatingScalesCost && effective > 0 {
		cost = item.BaseCost * Nuyen(effective.Int())
	}
	availability := item.BaseAvailability
	if item.RatingScalesAvailability && effective > 0 {
		availability.Numeric = item.BaseAvailability.Numeric * effective.Int()
	}
	return PriceQuote{
		Item:         item,
		Rating:       effective,
		Cost:         cost,
		KarmaCost:    item.KarmaCost,
		EssenceCost:  item.EssenceCost,
		Availability: availability,
	}, nil
}

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

type recorderNotifier struct {
	events []Event
}

func (notifier *recorderNotifier) Notify(_ context.Context, event Event) {
	notifier.events = append(notifier.events, event)
}

type stubResolver struct {
	actor ActorID
	found bool
}

func (resolver *stubResolver) DefaultActor(_ context.Context, _ UserID) (ActorID, bool, error) {
	return resolver.actor, resolver.found, nil
}

type denyAllRoles struct{}

func (denyAllRoles) HasCapability(_ context.Context, _ UserID, _ Capability) (bool, error) {
	return false, nil
}

func sequentialIDs(prefix string) func() string {
	counter := 0
	return func() string {
		counter++
		return fmt.Sprintf("%s-%d", prefix, counter)
	}
}

func fixedClock(at int64) func() int64 {
	return func() int64 { return at }
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	user, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id %q: %v", raw, err)
	}
	return user
}

func mustActorID(test *testing.T, raw string) ActorID {
	test.Helper()
	actor, err := NewActorID(raw)
	if err != nil {
		test.Fatalf("actor id %q: %v", raw, err)
	}
	return actor
}

func mustCatalogID(test *testing.T, raw string) CatalogID {
	test.Helper()
	catalogID, err := NewCatalogID(raw)
	if err != nil {
		test.Fatalf("catalog id %q: %v", raw, err)
	}
	return catalogID
}

func mustRequestID(test *testing.T, raw string) RequestID {
	test.Helper()
	requestID, err := NewRequestID(raw)
	if err != nil {
		test.Fatalf("request id %q: %v", raw, err)
	}
	return requestID
}

func mustLineID(test *testing.T, raw string) LineID {
	test.Helper()
	lineID, err := NewLineID(raw)
	if err != nil {
		test.Fatalf("line id %q: %v", raw, err)
	}
	return lineID
}

func gearTemplate(test *testing.T, id string, cost int64) CatalogItem {
	test.Helper()
	return CatalogItem{
		CatalogID:        mustCatalogID(test, id),
		Name:             "Gear " + id,
		Type:             ItemTypeGear,
		BaseCost:         Nuyen(cost),
		BaseAvailability: Availability{Numeric: 4},
	}
}

func cyberwareTemplate(test *testing.T, id string, cost int64, essence int64) CatalogItem {
	test.Helper()
	return CatalogItem{
		CatalogID:        mustCatalogID(test, id),
		Name:             "Ware " + id,
		Type:             ItemTypeCyberware,
		BaseCost:         Nuyen(cost),
		EssenceCost:      EssenceMils(essence),
		BaseAvailability: Availability{Numeric: 8, Restriction: RestrictionRestricted},
	}
}

func qualityTemplate(test *testing.T, id string, karma int64) CatalogItem {
	test.Helper()
	return CatalogItem{
		CatalogID: mustCatalogID(test, id),
		Name:      "Quality " + id,
		Type:      ItemTypeQuality,
		KarmaCost: Karma(karma),
	}
}

func mustBasketService(test *testing.T, flags FlagStore, book PriceBook, options ...BasketOption) *BasketService {
	test.Helper()
	service, err := NewBasketService(flags, book, fixedClock(1000), options...)
	if err != nil {
		test.Fatalf("basket service init: %v", err)
	}
	return service
}

func mustMaterializer(test *testing.T, actors ActorStore, book PriceBook, options ...MaterializerOption) *Materializer {
	test.Helper()
	materializer, err := NewMaterializer(actors, book, fixedClock(2000), options...)
	if err != nil {
		test.Fatalf("materializer init: %v", err)
	}
	return materializer
}

func mustWorkflow(test *testing.T, flags FlagStore, book PriceBook, actors ActorStore, materializer *Materializer, options ...WorkflowOption) *Workflow {
	test.Helper()
	workflow, err := NewWorkflow(flags, book, actors, materializer, fixedClock(3000), options...)
	if err != nil {
		test.Fatalf("workflow init: %v", err)
	}
	return workflow
}
