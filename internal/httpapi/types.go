package httpapi

import "github.com/MarkoPoloResearchLab/vttmarket/pkg/market"

type linePayload struct {
	LineID         string `json:"line_id"`
	CatalogID      string `json:"catalog_id"`
	Name           string `json:"name"`
	Image          string `json:"image"`
	Type           string `json:"type"`
	Cost           int64  `json:"cost"`
	KarmaCost      int64  `json:"karma_cost"`
	EssenceCost    int64  `json:"essence_cost"`
	Availability   string `json:"availability"`
	BaseRating     int    `json:"base_rating"`
	SelectedRating int    `json:"selected_rating"`
	Quantity       int    `json:"quantity"`
}

type totalsPayload struct {
	Cost         int64  `json:"cost"`
	Karma        int64  `json:"karma"`
	Essence      int64  `json:"essence"`
	Availability string `json:"availability"`
}

type basketPayload struct {
	BasketID        string        `json:"basket_id"`
	CreatedUnixUTC  int64         `json:"created_unix_utc"`
	OwnerActor      string        `json:"owner_actor"`
	SelectedContact string        `json:"selected_contact"`
	Lines           []linePayload `json:"lines"`
	Totals          totalsPayload `json:"totals"`
}

type requestPayload struct {
	RequestID        string        `json:"request_id"`
	SourceUser       string        `json:"source_user"`
	TargetActor      string        `json:"target_actor"`
	State            string        `json:"state"`
	SubmittedUnixUTC int64         `json:"submitted_unix_utc"`
	Lines            []linePayload `json:"lines"`
	Totals           totalsPayload `json:"totals"`
}

type reviewPayload struct {
	User    string         `json:"user"`
	Request requestPayload `json:"request"`
}

type grantedItemPayload struct {
	CatalogID string `json:"catalog_id"`
	Name      string `json:"name"`
	Rating    int    `json:"rating"`
	Cost      int64  `json:"cost"`
	Karma     int64  `json:"karma"`
	Essence   int64  `json:"essence"`
}

type ledgerEntryPayload struct {
	EntryID        string               `json:"entry_id"`
	RequestID      string               `json:"request_id,omitempty"`
	CreatedUnixUTC int64                `json:"created_unix_utc"`
	Items          []grantedItemPayload `json:"items"`
	KarmaDelta     int64                `json:"karma_delta"`
	Gain           bool                 `json:"gain"`
	Note           string               `json:"note,omitempty"`
}

type addItemRequest struct {
	CatalogID string `json:"catalog_id"`
	Rating    int    `json:"rating"`
	ActorID   string `json:"actor_id"`
}

type quantityRequest struct {
	Delta int `json:"delta"`
}

type contactRequest struct {
	ContactID string `json:"contact_id"`
}

type updateLineRequest struct {
	Field string `json:"field"`
	Value int    `json:"value"`
}

type karmaRequest struct {
	Delta int64  `json:"delta"`
	Note  string `json:"note"`
}

func payloadFromLine(line market.BasketLine) linePayload {
	return linePayload{
		LineID:         line.LineID.String(),
		CatalogID:      line.Item.CatalogID.String(),
		Name:           line.Item.Name,
		Image:          line.Item.Image,
		Type:           line.Item.Type.String(),
		Cost:           line.Item.Cost.Int64(),
		KarmaCost:      line.Item.KarmaCost.Int64(),
		EssenceCost:    line.Item.EssenceCost.Int64(),
		Availability:   line.Item.Availability.String(),
		BaseRating:     line.Item.BaseRating.Int(),
		SelectedRating: line.Item.SelectedRating.Int(),
		Quantity:       line.Quantity,
	}
}

func payloadFromTotals(totals market.Totals) totalsPayload {
	return totalsPayload{
		Cost:         totals.Cost.Int64(),
		Karma:        totals.Karma.Int64(),
		Essence:      totals.Essence.Int64(),
		Availability: totals.Availability.String(),
	}
}

func payloadFromBasket(basket market.Basket) basketPayload {
	lines := make([]linePayload, 0, len(basket.Lines))
	for _, line := range basket.Lines {
		lines = append(lines, payloadFromLine(line))
	}
	return basketPayload{
		BasketID:        basket.BasketID,
		CreatedUnixUTC:  basket.CreatedUnixUTC,
		OwnerActor:      basket.OwnerActor.String(),
		SelectedContact: basket.SelectedContact,
		Lines:           lines,
		Totals:          payloadFromTotals(basket.Totals),
	}
}

func payloadFromRequest(request market.PurchaseRequest) requestPayload {
	lines := make([]linePayload, 0, len(request.Lines))
	for _, line := range request.Lines {
		lines = append(lines, payloadFromLine(line))
	}
	return requestPayload{
		RequestID:        request.RequestID.String(),
		SourceUser:       request.SourceUser.String(),
		TargetActor:      request.TargetActor.String(),
		State:            request.State.String(),
		SubmittedUnixUTC: request.SubmittedUnixUTC,
		Lines:            lines,
		Totals:           payloadFromTotals(request.Totals),
	}
}

func payloadFromLedgerEntry(entry market.LedgerEntry) ledgerEntryPayload {
	items := make([]grantedItemPayload, 0, len(entry.Items))
	for _, item := range entry.Items {
		items = append(items, grantedItemPayload{
			CatalogID: item.CatalogID.String(),
			Name:      item.Name,
			Rating:    item.Rating.Int(),
			Cost:      item.Cost.Int64(),
			Karma:     item.Karma.Int64(),
			Essence:   item.Essence.Int64(),
		})
	}
	return ledgerEntryPayload{
		EntryID:        entry.EntryID,
		RequestID:      entry.RequestID,
		CreatedUnixUTC: entry.CreatedUnixUTC,
		Items:          items,
		KarmaDelta:     entry.KarmaDelta.Int64(),
		Gain:           entry.Gain,
		Note:           entry.Note,
	}
}
