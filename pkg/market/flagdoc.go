package market

// Document is the persisted per-user JSON layout: the active cart plus the
// queue of submitted-but-unresolved purchase requests, stored under one
// durable key per user.
type Document struct {
	BasketUUID        string            `json:"basketUUID"`
	CreationTime      int64             `json:"creationTime"`
	CreatedForActor   string            `json:"createdForActor"`
	SelectedContactID string            `json:"selectedContactId"`
	TotalCost         int64             `json:"totalCost"`
	TotalAvailability string            `json:"totalAvailability"`
	TotalKarma        int64             `json:"totalKarma"`
	TotalEssenceCost  int64             `json:"totalEssenceCost"`
	ShoppingCartItems []DocumentLine    `json:"shoppingCartItems"`
	OrderReviewItems  []DocumentRequest `json:"orderReviewItems"`
}

// DocumentLine is the persisted form of one basket line.
type DocumentLine struct {
	LineID         string `json:"lineId"`
	CatalogID      string `json:"catalogId"`
	Name           string `json:"name"`
	Image          string `json:"image"`
	Type           string `json:"type"`
	Cost           int64  `json:"cost"`
	KarmaCost      int64  `json:"karmaCost"`
	EssenceCost    int64  `json:"essenceCost"`
	Availability   string `json:"availability"`
	BaseRating     int    `json:"baseRating"`
	SelectedRating int    `json:"selectedRating"`
	Quantity       int    `json:"quantity"`
}

// DocumentRequest is the persisted form of one queued purchase request.
type DocumentRequest struct {
	RequestID         string         `json:"requestId"`
	SourceUser        string         `json:"sourceUser"`
	TargetActor       string         `json:"targetActor"`
	State             string         `json:"state"`
	SubmittedAt       int64          `json:"submittedAt"`
	TotalCost         int64          `json:"totalCost"`
	TotalAvailability string         `json:"totalAvailability"`
	TotalKarma        int64          `json:"totalKarma"`
	TotalEssenceCost  int64          `json:"totalEssenceCost"`
	Lines             []DocumentLine `json:"lines"`
}

// userState is the in-memory view of one user's slot.
type userState struct {
	basket Basket
	queue  []PurchaseRequest
}

func documentLineFromBasketLine(line BasketLine) DocumentLine {
	return DocumentLine{
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

func basketLineFromDocumentLine(documentLine DocumentLine) (BasketLine, error) {
	lineID, err := NewLineID(documentLine.LineID)
	if err != nil {
		return BasketLine{}, err
	}
	catalogID, err := NewCatalogID(documentLine.CatalogID)
	if err != nil {
		return BasketLine{}, err
	}
	itemType, err := ParseItemType(documentLine.Type)
	if err != nil {
		return BasketLine{}, err
	}
	cost, err := NewNuyen(documentLine.Cost)
	if err != nil {
		return BasketLine{}, err
	}
	karmaCost, err := NewKarma(documentLine.KarmaCost)
	if err != nil {
		return BasketLine{}, err
	}
	essenceCost, err := NewEssenceMils(documentLine.EssenceCost)
	if err != nil {
		return BasketLine{}, err
	}
	baseRating, err := NewRating(documentLine.BaseRating)
	if err != nil {
		return BasketLine{}, err
	}
	selectedRating, err := NewRating(documentLine.SelectedRating)
	if err != nil {
		return BasketLine{}, err
	}
	if documentLine.Quantity < 1 {
		return BasketLine{}, WrapError("document", "line", "invalid", ErrInvalidQuantity)
	}
	return BasketLine{
		LineID: lineID,
		Item: PricedItem{
			CatalogID:      catalogID,
			Name:           documentLine.Name,
			Image:          documentLine.Image,
			Type:           itemType,
			Cost:           cost,
			KarmaCost:      karmaCost,
			EssenceCost:    essenceCost,
			Availability:   ParseAvailability(documentLine.Availability),
			BaseRating:     baseRating,
			SelectedRating: selectedRating,
		},
		Quantity: documentLine.Quantity,
	}, nil
}

func documentFromState(state userState) Document {
	cartLines := make([]DocumentLine, 0, len(state.basket.Lines))
	for _, line := range state.basket.Lines {
		cartLines = append(cartLines, documentLineFromBasketLine(line))
	}
	reviewItems := make([]DocumentRequest, 0, len(state.queue))
	for _, request := range state.queue {
		requestLines := make([]DocumentLine, 0, len(request.Lines))
		for _, line := range request.Lines {
			requestLines = append(requestLines, documentLineFromBasketLine(line))
		}
		reviewItems = append(reviewItems, DocumentRequest{
			RequestID:         request.RequestID.String(),
			SourceUser:        request.SourceUser.String(),
			TargetActor:       request.TargetActor.String(),
			State:             request.State.String(),
			SubmittedAt:       request.SubmittedUnixUTC,
			TotalCost:         request.Totals.Cost.Int64(),
			TotalAvailability: request.Totals.Availability.String(),
			TotalKarma:        request.Totals.Karma.Int64(),
			TotalEssenceCost:  request.Totals.Essence.Int64(),
			Lines:             requestLines,
		})
	}
	return Document{
		BasketUUID:        state.basket.BasketID,
		CreationTime:      state.basket.CreatedUnixUTC,
		CreatedForActor:   state.basket.OwnerActor.String(),
		SelectedContactID: state.basket.SelectedContact,
		TotalCost:         state.basket.Totals.Cost.Int64(),
		TotalAvailability: state.basket.Totals.Availability.String(),
		TotalKarma:        state.basket.Totals.Karma.Int64(),
		TotalEssenceCost:  state.basket.Totals.Essence.Int64(),
		ShoppingCartItems: cartLines,
		OrderReviewItems:  reviewItems,
	}
}

func stateFromDocument(user UserID, document Document) (userState, error) {
	lines := make([]BasketLine, 0, len(document.ShoppingCartItems))
	for _, documentLine := range document.ShoppingCartItems {
		line, err := basketLineFromDocumentLine(documentLine)
		if err != nil {
			return userState{}, err
		}
		lines = append(lines, line)
	}
	var ownerActor ActorID
	if document.CreatedForActor != "" {
		parsedActor, err := NewActorID(document.CreatedForActor)
		if err != nil {
			return userState{}, err
		}
		ownerActor = parsedActor
	}
	queue := make([]PurchaseRequest, 0, len(document.OrderReviewItems))
	for _, documentRequest := range document.OrderReviewItems {
		request, err := requestFromDocumentRequest(user, documentRequest)
		if err != nil {
			return userState{}, err
		}
		queue = append(queue, request)
	}
	basket := Basket{
		BasketID:        document.BasketUUID,
		CreatedUnixUTC:  document.CreationTime,
		OwnerActor:      ownerActor,
		SelectedContact: document.SelectedContactID,
		Lines:           lines,
		Totals:          ComputeTotals(lines),
	}
	return userState{basket: basket, queue: queue}, nil
}

func requestFromDocumentRequest(user UserID, documentRequest DocumentRequest) (PurchaseRequest, error) {
	requestID, err := NewRequestID(documentRequest.RequestID)
	if err != nil {
		return PurchaseRequest{}, err
	}
	sourceUser := user
	if documentRequest.SourceUser != "" {
		parsedUser, err := NewUserID(documentRequest.SourceUser)
		if err != nil {
			return PurchaseRequest{}, err
		}
		sourceUser = parsedUser
	}
	targetActor, err := NewActorID(documentRequest.TargetActor)
	if err != nil {
		return PurchaseRequest{}, err
	}
	state, err := ParseRequestState(documentRequest.State)
	if err != nil {
		return PurchaseRequest{}, err
	}
	lines := make([]BasketLine, 0, len(documentRequest.Lines))
	for _, documentLine := range documentRequest.Lines {
		line, err := basketLineFromDocumentLine(documentLine)
		if err != nil {
			return PurchaseRequest{}, err
		}
		lines = append(lines, line)
	}
	return PurchaseRequest{
		RequestID:        requestID,
		SourceUser:       sourceUser,
		TargetActor:      targetActor,
		Lines:            lines,
		Totals:           ComputeTotals(lines),
		State:            state,
		SubmittedUnixUTC: documentRequest.SubmittedAt,
	}, nil
}
