package market

import (
	"fmt"
	"strings"
)

// Nuyen is an integer currency amount.
type Nuyen int64

// Karma is an integer amount of the secondary spendable resource.
type Karma int64

// EssenceMils is essence expressed in thousandths, keeping money-adjacent
// arithmetic integral.
type EssenceMils int64

// Rating is a quality tier for rated catalog items; zero means "unrated" (or,
// as a resolve argument, "use the item's base rating").
type Rating int

// UserID identifies the user owning a basket slot.
type UserID struct {
	value string
}

// ActorID identifies the target actor document.
type ActorID struct {
	value string
}

// CatalogID references a purchasable catalog template.
type CatalogID struct {
	value string
}

// LineID identifies one basket line.
type LineID struct {
	value string
}

// RequestID identifies a submitted purchase request.
type RequestID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewActorID validates and normalizes an actor id.
func NewActorID(raw string) (ActorID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ActorID{}, fmt.Errorf("%w: empty value", ErrInvalidActorID)
	}
	return ActorID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ActorID) String() string {
	return id.value
}

// IsZero reports whether no actor has been assigned.
func (id ActorID) IsZero() bool {
	return id.value == ""
}

// NewCatalogID validates and normalizes a catalog reference.
func NewCatalogID(raw string) (CatalogID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CatalogID{}, fmt.Errorf("%w: empty value", ErrInvalidCatalogID)
	}
	return CatalogID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id CatalogID) String() string {
	return id.value
}

// NewLineID validates and normalizes a basket line id.
func NewLineID(raw string) (LineID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return LineID{}, fmt.Errorf("%w: empty value", ErrInvalidLineID)
	}
	return LineID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id LineID) String() string {
	return id.value
}

// NewRequestID validates and normalizes a purchase request id.
func NewRequestID(raw string) (RequestID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RequestID{}, fmt.Errorf("%w: empty value", ErrInvalidRequestID)
	}
	return RequestID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id RequestID) String() string {
	return id.value
}

// NewNuyen validates a non-negative currency amount.
func NewNuyen(raw int64) (Nuyen, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: nuyen must be >= 0", ErrInvalidAmount)
	}
	return Nuyen(raw), nil
}

// Int64 returns the raw amount.
func (amount Nuyen) Int64() int64 {
	return int64(amount)
}

// NewKarma validates a non-negative karma cost.
func NewKarma(raw int64) (Karma, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: karma cost must be >= 0", ErrInvalidAmount)
	}
	return Karma(raw), nil
}

// Int64 returns the raw amount.
func (amount Karma) Int64() int64 {
	return int64(amount)
}

// NewEssenceMils validates a non-negative essence cost.
func NewEssenceMils(raw int64) (EssenceMils, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: essence must be >= 0", ErrInvalidAmount)
	}
	return EssenceMils(raw), nil
}

// Int64 returns the raw amount.
func (amount EssenceMils) Int64() int64 {
	return int64(amount)
}

// NewRating validates a non-negative rating tier.
func NewRating(raw int) (Rating, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: rating must be >= 0", ErrInvalidRating)
	}
	return Rating(raw), nil
}

// Int returns the raw tier.
func (rating Rating) Int() int {
	return int(rating)
}

// RequestState is the purchase request lifecycle state.
type RequestState string

const (
	RequestStatePending   RequestState = "pending"
	RequestStateCommitted RequestState = "committed"
	RequestStateRejected  RequestState = "rejected"
)

// ParseRequestState validates a persisted state value.
func ParseRequestState(raw string) (RequestState, error) {
	switch RequestState(raw) {
	case RequestStatePending, RequestStateCommitted, RequestStateRejected:
		return RequestState(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRequestState, raw)
}

// String returns the persisted form.
func (state RequestState) String() string {
	return string(state)
}

// PricedItem is a catalog reference plus the computed quantities a
// transaction needs, resolved through the price book at add time.
type PricedItem struct {
	CatalogID      CatalogID
	Name           string
	Image          string
	Type           ItemType
	Cost           Nuyen
	KarmaCost      Karma
	EssenceCost    EssenceMils
	Availability   Availability
	BaseRating     Rating
	SelectedRating Rating
}

// BasketLine is one cart position: a priced item and its quantity.
type BasketLine struct {
	LineID   LineID
	Item     PricedItem
	Quantity int
}

// Totals are derived aggregates over basket lines. They are recomputed from
// the lines after every mutation and never accepted as external input.
type Totals struct {
	Cost         Nuyen
	Karma        Karma
	Essence      EssenceMils
	Availability Availability
}

// ComputeTotals derives totals from lines, weighting by quantity. The
// availability of a line with quantity n contributes n copies to the combine.
func ComputeTotals(lines []BasketLine) Totals {
	totals := Totals{}
	ratings := make([]Availability, 0, len(lines))
	for _, line := range lines {
		quantity := int64(line.Quantity)
		totals.Cost += line.Item.Cost * Nuyen(quantity)
		totals.Karma += line.Item.KarmaCost * Karma(quantity)
		totals.Essence += line.Item.EssenceCost * EssenceMils(quantity)
		for copyIndex := 0; copyIndex < line.Quantity; copyIndex++ {
			ratings = append(ratings, line.Item.Availability)
		}
	}
	totals.Availability = CombineAvailability(ratings)
	return totals
}

// Basket is the active, editable cart for one user.
type Basket struct {
	BasketID        string
	CreatedUnixUTC  int64
	OwnerActor      ActorID
	SelectedContact string
	Lines           []BasketLine
	Totals          Totals
}

// PurchaseRequest is a frozen basket snapshot awaiting resolution.
type PurchaseRequest struct {
	RequestID        RequestID
	SourceUser       UserID
	TargetActor      ActorID
	Lines            []BasketLine
	Totals           Totals
	State            RequestState
	SubmittedUnixUTC int64
}

// PendingReview pairs a queued request with the user whose slot holds it.
type PendingReview struct {
	User    UserID
	Request PurchaseRequest
}

// Pools are the actor's spendable currency and karma balances.
type Pools struct {
	Nuyen Nuyen
	Karma Karma
}

// InventoryItem is the enriched copy materialized onto an actor. The frozen
// line values overwrite whatever the catalog template carries today.
type InventoryItem struct {
	ItemID       string
	CatalogID    CatalogID
	Name         string
	Image        string
	Type         ItemType
	Rating       Rating
	Cost         Nuyen
	Availability Availability
	EssenceCost  EssenceMils
	KarmaCost    Karma
	Quantity     int
}

// GrantedItem is one ledger line of a committed purchase.
type GrantedItem struct {
	CatalogID CatalogID
	Name      string
	Rating    Rating
	Cost      Nuyen
	Karma     Karma
	Essence   EssenceMils
}

// LedgerEntry is an append-only history record on the target actor. Entries
// are never mutated or deleted once written.
type LedgerEntry struct {
	EntryID        string
	RequestID      string
	CreatedUnixUTC int64
	Items          []GrantedItem
	KarmaDelta     Karma
	Gain           bool
	Note           string
}
