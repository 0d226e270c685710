package market

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// BasketOption configures a BasketService instance.
type BasketOption func(*BasketService)

// WithActorResolver wires the default-actor lookup used when an add-to-cart
// carries no explicit actor hint.
func WithActorResolver(resolver ActorResolver) BasketOption {
	return func(service *BasketService) {
		service.resolver = resolver
	}
}

// WithBasketOperationLogger wires a logger that receives callbacks for every
// mutating basket operation.
func WithBasketOperationLogger(logger OperationLogger) BasketOption {
	return func(service *BasketService) {
		service.logger = logger
	}
}

// WithBasketIDGenerator overrides the basket/line id generator.
func WithBasketIDGenerator(newID func() string) BasketOption {
	return func(service *BasketService) {
		if newID != nil {
			service.newID = newID
		}
	}
}

// BasketService owns the per-user active cart. Totals are recomputed from the
// lines after every mutation; they are never accepted as input.
type BasketService struct {
	flags     FlagStore
	priceBook PriceBook
	resolver  ActorResolver
	nowFn     func() int64
	newID     func() string
	logger    OperationLogger
}

// NewBasketService wires a BasketService.
func NewBasketService(flags FlagStore, priceBook PriceBook, now func() int64, options ...BasketOption) (*BasketService, error) {
	if flags == nil {
		return nil, fmt.Errorf("%w: flag store dependency is nil", ErrInvalidServiceConfig)
	}
	if priceBook == nil {
		return nil, fmt.Errorf("%w: price book dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &BasketService{
		flags:     flags,
		priceBook: priceBook,
		nowFn:     now,
		newID:     uuid.NewString,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Basket returns the user's durable cart state merged over defaults. A user
// with no persisted slot gets a freshly defaulted empty basket, which is not
// persisted until the first mutation.
func (service *BasketService) Basket(ctx context.Context, user UserID) (Basket, error) {
	state, err := service.loadState(ctx, user)
	if err != nil {
		return Basket{}, err
	}
	return state.basket, nil
}

// AddItem resolves the catalog entry at the given rating (zero means the
// item's base rating) and merges it into the cart: unique types reject a
// second copy, stackable types increment the matching line, everything else
// appends a new line. The first add binds the owning actor.
func (service *BasketService) AddItem(ctx context.Context, user UserID, catalogID CatalogID, rating Rating, actorHint ActorID) (Basket, error) {
	quote, err := service.priceBook.Resolve(ctx, catalogID, rating)
	if err != nil {
		service.logBasketOperation(ctx, operationAddItem, user, OperationLog{CatalogID: catalogID, Error: err})
		return Basket{}, err
	}
	state, err := service.loadState(ctx, user)
	if err != nil {
		return Basket{}, err
	}

	owner := state.basket.OwnerActor
	if owner.IsZero() {
		owner, err = service.resolveOwner(ctx, user, actorHint)
		if err != nil {
			service.logBasketOperation(ctx, operationAddItem, user, OperationLog{CatalogID: catalogID, Error: err})
			return state.basket, err
		}
	}

	matchIndex := -1
	for index, line := range state.basket.Lines {
		if line.Item.CatalogID == catalogID {
			matchIndex = index
			break
		}
	}
	switch {
	case matchIndex >= 0 && quote.Item.Type.UniquePerActor():
		err = fmt.Errorf("%w: %s", ErrDuplicateUniqueItem, catalogID.String())
		service.logBasketOperation(ctx, operationAddItem, user, OperationLog{CatalogID: catalogID, Error: err})
		return state.basket, err
	case matchIndex >= 0 && quote.Item.Type.Stackable() && state.basket.Lines[matchIndex].Item.SelectedRating == quote.Rating:
		state.basket.Lines[matchIndex].Quantity++
	default:
		lineID, lineErr := NewLineID(service.newID())
		if lineErr != nil {
			return state.basket, lineErr
		}
		state.basket.Lines = append(state.basket.Lines, BasketLine{
			LineID:   lineID,
			Item:     pricedItemFromQuote(quote),
			Quantity: 1,
		})
	}

	state.basket.OwnerActor = owner
	state.basket.Totals = ComputeTotals(state.basket.Lines)
	if err := service.saveState(ctx, user, state); err != nil {
		return Basket{}, err
	}
	service.logBasketOperation(ctx, operationAddItem, user, OperationLog{
		Actor:     owner,
		CatalogID: catalogID,
		Cost:      quote.Cost,
		Karma:     quote.KarmaCost,
	})
	return state.basket, nil
}

// RemoveLine deletes one line. A missing line is reported, not silently
// ignored, and leaves the cart unchanged.
func (service *BasketService) RemoveLine(ctx context.Context, user UserID, lineID LineID) (Basket, error) {
	state, err := service.loadState(ctx, user)
	if err != nil {
		return Basket{}, err
	}
	index := lineIndex(state.basket.Lines, lineID)
	if index < 0 {
		err = fmt.Errorf("%w: %s", ErrLineNotFound, lineID.String())
		service.logBasketOperation(ctx, operationRemoveLine, user, OperationLog{LineID: lineID, Error: err})
		return state.basket, err
	}
	state.basket.Lines = append(state.basket.Lines[:index], state.basket.Lines[index+1:]...)
	state.basket.Totals = ComputeTotals(state.basket.Lines)
	if err := service.saveState(ctx, user, state); err != nil {
		return Basket{}, err
	}
	service.logBasketOperation(ctx, operationRemoveLine, user, OperationLog{LineID: lineID})
	return state.basket, nil
}

// ChangeQuantity applies a delta with a floor of zero; reaching zero removes
// the line, same as RemoveLine.
func (service *BasketService) ChangeQuantity(ctx context.Context, user UserID, lineID LineID, delta int) (Basket, error) {
	state, err := service.loadState(ctx, user)
	if err != nil {
		return Basket{}, err
	}
	index := lineIndex(state.basket.Lines, lineID)
	if index < 0 {
		err = fmt.Errorf("%w: %s", ErrLineNotFound, lineID.String())
		service.logBasketOperation(ctx, operationChangeQuantity, user, OperationLog{LineID: lineID, Error: err})
		return state.basket, err
	}
	updated := state.basket.Lines[index].Quantity + delta
	if updated <= 0 {
		state.basket.Lines = append(state.basket.Lines[:index], state.basket.Lines[index+1:]...)
	} else {
		state.basket.Lines[index].Quantity = updated
	}
	state.basket.Totals = ComputeTotals(state.basket.Lines)
	if err := service.saveState(ctx, user, state); err != nil {
		return Basket{}, err
	}
	service.logBasketOperation(ctx, operationChangeQuantity, user, OperationLog{LineID: lineID})
	return state.basket, nil
}

// SetContact records the selected contact slot carried on the cart.
func (service *BasketService) SetContact(ctx context.Context, user UserID, contactID string) (Basket, error) {
	state, err := service.loadState(ctx, user)
	if err != nil {
		return Basket{}, err
	}
	state.basket.SelectedContact = contactID
	if err := service.saveState(ctx, user, state); err != nil {
		return Basket{}, err
	}
	service.logBasketOperation(ctx, operationSetContact, user, OperationLog{})
	return state.basket, nil
}

// Clear resets the active cart to a fresh empty basket (new id and creation
// time). The review queue in the same slot is untouched.
func (service *BasketService) Clear(ctx context.Context, user UserID) (Basket, error) {
	state, err := service.loadState(ctx, user)
	if err != nil {
		return Basket{}, err
	}
	state.basket = service.newBasket()
	if err := service.saveState(ctx, user, state); err != nil {
		return Basket{}, err
	}
	service.logBasketOperation(ctx, operationClear, user, OperationLog{})
	return state.basket, nil
}

func (service *BasketService) resolveOwner(ctx context.Context, user UserID, actorHint ActorID) (ActorID, error) {
	if !actorHint.IsZero() {
		return actorHint, nil
	}
	if service.resolver != nil {
		resolved, found, err := service.resolver.DefaultActor(ctx, user)
		if err != nil {
			return ActorID{}, err
		}
		if found {
			return resolved, nil
		}
	}
	return ActorID{}, fmt.Errorf("%w: no assigned character or targeted token", ErrNoActorSelected)
}

func (service *BasketService) newBasket() Basket {
	return Basket{
		BasketID:       service.newID(),
		CreatedUnixUTC: service.nowFn(),
	}
}

func (service *BasketService) loadState(ctx context.Context, user UserID) (userState, error) {
	document, found, err := service.flags.Document(ctx, user)
	if err != nil {
		return userState{}, err
	}
	if !found || document.BasketUUID == "" {
		state := userState{basket: service.newBasket()}
		if found {
			restored, restoreErr := stateFromDocument(user, document)
			if restoreErr != nil {
				return userState{}, restoreErr
			}
			state.queue = restored.queue
		}
		return state, nil
	}
	return stateFromDocument(user, document)
}

func (service *BasketService) saveState(ctx context.Context, user UserID, state userState) error {
	return service.flags.SetDocument(ctx, user, documentFromState(state))
}

func (service *BasketService) logBasketOperation(ctx context.Context, operation string, user UserID, entry OperationLog) {
	entry.Operation = operation
	entry.User = user
	emitOperation(ctx, service.logger, entry)
}

func pricedItemFromQuote(quote PriceQuote) PricedItem {
	return PricedItem{
		CatalogID:      quote.Item.CatalogID,
		Name:           quote.Item.Name,
		Image:          quote.Item.Image,
		Type:           quote.Item.Type,
		Cost:           quote.Cost,
		KarmaCost:      quote.KarmaCost,
		EssenceCost:    quote.EssenceCost,
		Availability:   quote.Availability,
		BaseRating:     quote.Item.BaseRating,
		SelectedRating: quote.Rating,
	}
}

func lineIndex(lines []BasketLine, lineID LineID) int {
	for index, line := range lines {
		if line.LineID == lineID {
			return index
		}
	}
	return -1
}
