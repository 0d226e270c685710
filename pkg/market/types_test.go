package market

import (
	"errors"
	"testing"
)

func TestNewUserID(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		input   string
		wantErr error
		wantVal string
	}{
		{name: "valid", input: " user-123 ", wantVal: "user-123"},
		{name: "empty", input: "   ", wantErr: ErrInvalidUserID},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result, err := NewUserID(tc.input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.String() != tc.wantVal {
				t.Fatalf("expected %q, got %q", tc.wantVal, result.String())
			}
		})
	}
}

func TestNewActorID(t *testing.T) {
	t.Parallel()
	_, err := NewActorID("")
	if !errors.Is(err, ErrInvalidActorID) {
		t.Fatalf("expected ErrInvalidActorID, got %v", err)
	}
	actor, err := NewActorID("actor-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor.IsZero() {
		t.Fatalf("expected non-zero actor")
	}
	if (ActorID{}).IsZero() != true {
		t.Fatalf("expected zero value to report IsZero")
	}
}

func TestNewNuyenRejectsNegative(t *testing.T) {
	t.Parallel()
	if _, err := NewNuyen(-1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	value, err := NewNuyen(350)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.Int64() != 350 {
		t.Fatalf("expected 350, got %d", value.Int64())
	}
}

func TestParseItemTypePolicies(t *testing.T) {
	t.Parallel()
	if _, err := ParseItemType("vehicle"); !errors.Is(err, ErrInvalidItemType) {
		t.Fatalf("expected ErrInvalidItemType, got %v", err)
	}
	stackable := []ItemType{ItemTypeGear, ItemTypeAmmo}
	for _, itemType := range stackable {
		if !itemType.Stackable() {
			t.Fatalf("expected %s stackable", itemType)
		}
	}
	unique := []ItemType{ItemTypeCyberware, ItemTypeBioware, ItemTypeQuality}
	for _, itemType := range unique {
		if !itemType.UniquePerActor() {
			t.Fatalf("expected %s unique per actor", itemType)
		}
		if itemType.Stackable() {
			t.Fatalf("%s must not stack", itemType)
		}
	}
	karmaCarriers := []ItemType{ItemTypeQuality, ItemTypePower, ItemTypeSpell, ItemTypeComplexForm}
	for _, itemType := range karmaCarriers {
		if !itemType.CarriesKarma() {
			t.Fatalf("expected %s to carry karma", itemType)
		}
	}
	if ItemTypeWeapon.CarriesKarma() || ItemTypeWeapon.Stackable() || ItemTypeWeapon.UniquePerActor() {
		t.Fatalf("weapon should have no special policy")
	}
}

func TestComputeTotalsWeightsByQuantity(t *testing.T) {
	t.Parallel()
	lines := []BasketLine{
		{
			LineID: mustLineID(t, "line-1"),
			Item: PricedItem{
				CatalogID:    mustCatalogID(t, "gear-1"),
				Type:         ItemTypeGear,
				Cost:         100,
				Availability: Availability{Numeric: 4},
			},
			Quantity: 3,
		},
		{
			LineID: mustLineID(t, "line-2"),
			Item: PricedItem{
				CatalogID:    mustCatalogID(t, "quality-1"),
				Type:         ItemTypeQuality,
				KarmaCost:    5,
				Availability: Availability{Numeric: 2, Restriction: RestrictionRestricted},
			},
			Quantity: 1,
		},
		{
			LineID: mustLineID(t, "line-3"),
			Item: PricedItem{
				CatalogID:   mustCatalogID(t, "ware-1"),
				Type:        ItemTypeCyberware,
				Cost:        50,
				EssenceCost: 300,
			},
			Quantity: 2,
		},
	}
	totals := ComputeTotals(lines)
	if totals.Cost != 400 {
		t.Fatalf("expected cost 400, got %d", totals.Cost.Int64())
	}
	if totals.Karma != 5 {
		t.Fatalf("expected karma 5, got %d", totals.Karma.Int64())
	}
	if totals.Essence != 600 {
		t.Fatalf("expected essence 600, got %d", totals.Essence.Int64())
	}
	// Three copies of 4, one 2R, two zero copies.
	want := Availability{Numeric: 14, Restriction: RestrictionRestricted}
	if totals.Availability != want {
		t.Fatalf("expected availability %+v, got %+v", want, totals.Availability)
	}
}

func TestComputeTotalsEmpty(t *testing.T) {
	t.Parallel()
	totals := ComputeTotals(nil)
	if totals.Cost != 0 || totals.Karma != 0 || totals.Essence != 0 {
		t.Fatalf("expected zero totals, got %+v", totals)
	}
	if totals.Availability != (Availability{}) {
		t.Fatalf("expected zero availability, got %+v", totals.Availability)
	}
}

func TestParseRequestState(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"pending", "committed", "rejected"} {
		state, err := ParseRequestState(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if state.String() != raw {
			t.Fatalf("expected %q, got %q", raw, state.String())
		}
	}
	if _, err := ParseRequestState("approved"); !errors.Is(err, ErrInvalidRequestState) {
		t.Fatalf("expected ErrInvalidRequestState, got %v", err)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	t.Parallel()
	user := mustUserID(t, "user-1")
	state := userState{
		basket: Basket{
			BasketID:        "basket-1",
			CreatedUnixUTC:  1000,
			OwnerActor:      mustActorID(t, "actor-1"),
			SelectedContact: "contact-7",
			Lines: []BasketLine{
				{
					LineID: mustLineID(t, "line-1"),
					Item: PricedItem{
						CatalogID:    mustCatalogID(t, "gear-1"),
						Name:         "Commlink",
						Type:         ItemTypeGear,
						Cost:         200,
						Availability: Availability{Numeric: 4},
					},
					Quantity: 2,
				},
			},
		},
		queue: []PurchaseRequest{
			{
				RequestID:        mustRequestID(t, "req-1"),
				SourceUser:       user,
				TargetActor:      mustActorID(t, "actor-1"),
				State:            RequestStatePending,
				SubmittedUnixUTC: 1500,
				Lines: []BasketLine{
					{
						LineID: mustLineID(t, "line-2"),
						Item: PricedItem{
							CatalogID: mustCatalogID(t, "quality-1"),
							Type:      ItemTypeQuality,
							KarmaCost: 10,
						},
						Quantity: 1,
					},
				},
			},
		},
	}
	state.basket.Totals = ComputeTotals(state.basket.Lines)
	state.queue[0].Totals = ComputeTotals(state.queue[0].Lines)

	restored, err := stateFromDocument(user, documentFromState(state))
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if restored.basket.BasketID != "basket-1" || restored.basket.SelectedContact != "contact-7" {
		t.Fatalf("basket identity lost: %+v", restored.basket)
	}
	if len(restored.basket.Lines) != 1 || restored.basket.Lines[0].Quantity != 2 {
		t.Fatalf("basket lines lost: %+v", restored.basket.Lines)
	}
	if restored.basket.Totals.Cost != 400 {
		t.Fatalf("expected recomputed cost 400, got %d", restored.basket.Totals.Cost.Int64())
	}
	if len(restored.queue) != 1 {
		t.Fatalf("expected 1 queued request, got %d", len(restored.queue))
	}
	request := restored.queue[0]
	if request.State != RequestStatePending || request.SubmittedUnixUTC != 1500 {
		t.Fatalf("request state lost: %+v", request)
	}
	if request.Totals.Karma != 10 {
		t.Fatalf("expected recomputed karma 10, got %d", request.Totals.Karma.Int64())
	}
}
