package market

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// UpdateField names an editable field of a pending request line.
type UpdateField string

const (
	UpdateFieldRating   UpdateField = "selectedRating"
	UpdateFieldQuantity UpdateField = "quantity"
)

// ParseUpdateField validates a field name from the wire.
func ParseUpdateField(raw string) (UpdateField, error) {
	switch UpdateField(raw) {
	case UpdateFieldRating, UpdateFieldQuantity:
		return UpdateField(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidUpdateField, raw)
}

// WorkflowOption configures a Workflow instance.
type WorkflowOption func(*Workflow)

// WithRoleChecker wires the capability collaborator gating review operations.
func WithRoleChecker(roles RoleChecker) WorkflowOption {
	return func(workflow *Workflow) {
		workflow.roles = roles
	}
}

// WithNotifier wires the fire-and-forget notification channel.
func WithNotifier(notifier Notifier) WorkflowOption {
	return func(workflow *Workflow) {
		workflow.notifier = notifier
	}
}

// WithWorkflowOperationLogger wires a logger for workflow transitions.
func WithWorkflowOperationLogger(logger OperationLogger) WorkflowOption {
	return func(workflow *Workflow) {
		workflow.logger = logger
	}
}

// WithWorkflowIDGenerator overrides the request/basket id generator.
func WithWorkflowIDGenerator(newID func() string) WorkflowOption {
	return func(workflow *Workflow) {
		if newID != nil {
			workflow.newID = newID
		}
	}
}

// Workflow orchestrates the purchase-request state machine: submit freezes
// the cart into a pending request, a reviewer approves or rejects it, and an
// approval deducts the actor's pools and materializes inventory.
type Workflow struct {
	flags        FlagStore
	priceBook    PriceBook
	actors       ActorStore
	materializer *Materializer
	notifier     Notifier
	roles        RoleChecker
	nowFn        func() int64
	newID        func() string
	logger       OperationLogger
}

// NewWorkflow wires a Workflow.
func NewWorkflow(flags FlagStore, priceBook PriceBook, actors ActorStore, materializer *Materializer, now func() int64, options ...WorkflowOption) (*Workflow, error) {
	if flags == nil {
		return nil, fmt.Errorf("%w: flag store dependency is nil", ErrInvalidServiceConfig)
	}
	if priceBook == nil {
		return nil, fmt.Errorf("%w: price book dependency is nil", ErrInvalidServiceConfig)
	}
	if actors == nil {
		return nil, fmt.Errorf("%w: actor store dependency is nil", ErrInvalidServiceConfig)
	}
	if materializer == nil {
		return nil, fmt.Errorf("%w: materializer dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	workflow := &Workflow{
		flags:        flags,
		priceBook:    priceBook,
		actors:       actors,
		materializer: materializer,
		nowFn:        now,
		newID:        uuid.NewString,
	}
	for _, option := range options {
		if option != nil {
			option(workflow)
		}
	}
	return workflow, nil
}

// Submit freezes the user's active cart into a new pending purchase request,
// appends it to the user's review queue, and resets the cart. The queue
// append and the cart reset land in one document write.
func (workflow *Workflow) Submit(ctx context.Context, user UserID) (PurchaseRequest, error) {
	state, err := workflow.loadState(ctx, user)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if len(state.basket.Lines) == 0 {
		err = fmt.Errorf("%w: nothing to submit", ErrEmptyBasket)
		workflow.logWorkflowOperation(ctx, operationSubmit, user, OperationLog{Error: err})
		return PurchaseRequest{}, err
	}
	if state.basket.OwnerActor.IsZero() {
		err = fmt.Errorf("%w: basket has no target actor", ErrNoActorSelected)
		workflow.logWorkflowOperation(ctx, operationSubmit, user, OperationLog{Error: err})
		return PurchaseRequest{}, err
	}
	requestID, err := NewRequestID(workflow.newID())
	if err != nil {
		return PurchaseRequest{}, err
	}
	request := PurchaseRequest{
		RequestID:        requestID,
		SourceUser:       user,
		TargetActor:      state.basket.OwnerActor,
		Lines:            append([]BasketLine(nil), state.basket.Lines...),
		Totals:           ComputeTotals(state.basket.Lines),
		State:            RequestStatePending,
		SubmittedUnixUTC: workflow.nowFn(),
	}
	state.queue = append(state.queue, request)
	state.basket = workflow.newBasket()
	if err := workflow.saveState(ctx, user, state); err != nil {
		return PurchaseRequest{}, err
	}
	workflow.notify(ctx, Event{
		Type:      EventPurchaseSubmitted,
		User:      user,
		Actor:     request.TargetActor,
		RequestID: request.RequestID,
		Detail:    fmt.Sprintf("%d lines, %d nuyen", len(request.Lines), request.Totals.Cost.Int64()),
	})
	workflow.logWorkflowOperation(ctx, operationSubmit, user, OperationLog{
		Actor:     request.TargetActor,
		RequestID: request.RequestID,
		Cost:      request.Totals.Cost,
		Karma:     request.Totals.Karma,
	})
	return request, nil
}

// ListPending projects the pending requests across every user's queue,
// oldest submission first. The reviewer must hold the review capability when
// a role checker is wired.
func (workflow *Workflow) ListPending(ctx context.Context, reviewer UserID) ([]PendingReview, error) {
	if err := workflow.requireReviewCapability(ctx, reviewer); err != nil {
		return nil, err
	}
	documents, err := workflow.flags.Documents(ctx)
	if err != nil {
		return nil, err
	}
	reviews := make([]PendingReview, 0)
	for _, userDocument := range documents {
		user, err := NewUserID(userDocument.UserID)
		if err != nil {
			return nil, err
		}
		state, err := stateFromDocument(user, userDocument.Document)
		if err != nil {
			return nil, err
		}
		for _, request := range state.queue {
			if request.State == RequestStatePending {
				reviews = append(reviews, PendingReview{User: user, Request: request})
			}
		}
	}
	sort.Slice(reviews, func(left, right int) bool {
		if reviews[left].Request.SubmittedUnixUTC != reviews[right].Request.SubmittedUnixUTC {
			return reviews[left].Request.SubmittedUnixUTC < reviews[right].Request.SubmittedUnixUTC
		}
		return reviews[left].Request.RequestID.String() < reviews[right].Request.RequestID.String()
	})
	return reviews, nil
}

// UpdatePendingLine edits one editable field of a pending request's line and
// reprices the line from the live catalog, so review-time edits always
// reflect current pricing rather than the values frozen at submit time.
func (workflow *Workflow) UpdatePendingLine(ctx context.Context, reviewer UserID, user UserID, requestID RequestID, lineID LineID, field UpdateField, value int) (PurchaseRequest, error) {
	if err := workflow.requireReviewCapability(ctx, reviewer); err != nil {
		return PurchaseRequest{}, err
	}
	state, err := workflow.loadState(ctx, user)
	if err != nil {
		return PurchaseRequest{}, err
	}
	requestIndex, err := pendingIndex(state.queue, requestID)
	if err != nil {
		workflow.logWorkflowOperation(ctx, operationUpdateLine, user, OperationLog{RequestID: requestID, Error: err})
		return PurchaseRequest{}, err
	}
	request := &state.queue[requestIndex]
	index := lineIndex(request.Lines, lineID)
	if index < 0 {
		err = fmt.Errorf("%w: %s", ErrLineNotFound, lineID.String())
		workflow.logWorkflowOperation(ctx, operationUpdateLine, user, OperationLog{RequestID: requestID, LineID: lineID, Error: err})
		return PurchaseRequest{}, err
	}
	line := &request.Lines[index]

	switch field {
	case UpdateFieldRating:
		if value < 1 {
			return PurchaseRequest{}, fmt.Errorf("%w: rating must be >= 1", ErrInvalidRating)
		}
		quote, quoteErr := workflow.priceBook.Resolve(ctx, line.Item.CatalogID, Rating(value))
		if quoteErr != nil {
			return PurchaseRequest{}, quoteErr
		}
		line.Item = pricedItemFromQuote(quote)
	case UpdateFieldQuantity:
		if value < 1 {
			return PurchaseRequest{}, fmt.Errorf("%w: quantity must be >= 1", ErrInvalidQuantity)
		}
		quote, quoteErr := workflow.priceBook.Resolve(ctx, line.Item.CatalogID, line.Item.SelectedRating)
		if quoteErr != nil {
			return PurchaseRequest{}, quoteErr
		}
		line.Item = pricedItemFromQuote(quote)
		line.Quantity = value
	default:
		return PurchaseRequest{}, fmt.Errorf("%w: %q", ErrInvalidUpdateField, field)
	}

	request.Totals = ComputeTotals(request.Lines)
	if err := workflow.saveState(ctx, user, state); err != nil {
		return PurchaseRequest{}, err
	}
	workflow.logWorkflowOperation(ctx, operationUpdateLine, user, OperationLog{
		RequestID: requestID,
		LineID:    lineID,
		Cost:      request.Totals.Cost,
		Karma:     request.Totals.Karma,
	})
	return *request, nil
}

// Reject removes a pending request from the queue and notifies the
// submitter. No actor pools or inventory are touched.
func (workflow *Workflow) Reject(ctx context.Context, reviewer UserID, user UserID, requestID RequestID) error {
	if err := workflow.requireReviewCapability(ctx, reviewer); err != nil {
		return err
	}
	state, err := workflow.loadState(ctx, user)
	if err != nil {
		return err
	}
	requestIndex, err := pendingIndex(state.queue, requestID)
	if err != nil {
		workflow.logWorkflowOperation(ctx, operationReject, user, OperationLog{RequestID: requestID, Error: err})
		return err
	}
	request := state.queue[requestIndex]
	state.queue = append(state.queue[:requestIndex], state.queue[requestIndex+1:]...)
	if err := workflow.saveState(ctx, user, state); err != nil {
		return err
	}
	workflow.notify(ctx, Event{
		Type:      EventPurchaseRejected,
		User:      user,
		Actor:     request.TargetActor,
		RequestID: requestID,
	})
	workflow.logWorkflowOperation(ctx, operationReject, user, OperationLog{RequestID: requestID, Actor: request.TargetActor})
	return nil
}

// Approve commits a pending request if the target actor can afford it:
// the nuyen pool must cover the total cost and the karma pool the total
// karma. On a shortfall the request stays pending with pools untouched and
// the shortfall is reported; the submitter may adjust quantities and the
// reviewer may retry. On success both pools are deducted in a single update,
// the inventory is materialized, and the request leaves the queue.
func (workflow *Workflow) Approve(ctx context.Context, reviewer UserID, user UserID, requestID RequestID) (bool, error) {
	if err := workflow.requireReviewCapability(ctx, reviewer); err != nil {
		return false, err
	}
	state, err := workflow.loadState(ctx, user)
	if err != nil {
		return false, err
	}
	requestIndex, err := pendingIndex(state.queue, requestID)
	if err != nil {
		workflow.logWorkflowOperation(ctx, operationApprove, user, OperationLog{RequestID: requestID, Error: err})
		return false, err
	}
	request := state.queue[requestIndex]

	// The ledger entry is the commit marker. When a concurrent approval
	// already committed this request, dropping it from the stale queue copy
	// is the only remaining work.
	alreadyCommitted, err := workflow.actors.HasLedgerEntry(ctx, request.TargetActor, request.RequestID)
	if err != nil {
		return false, err
	}
	var materializeErr error
	if !alreadyCommitted {
		if err := workflow.deductPools(ctx, user, request.TargetActor, request.RequestID, request.Totals, operationApprove); err != nil {
			return false, err
		}
		_, materializeErr = workflow.materializer.Materialize(ctx, request.TargetActor, request)
		if materializeErr != nil && errors.Is(materializeErr, ErrLedgerEntryExists) {
			materializeErr = nil
		}
	}

	state.queue = append(state.queue[:requestIndex], state.queue[requestIndex+1:]...)
	if err := workflow.saveState(ctx, user, state); err != nil {
		return true, err
	}
	workflow.notify(ctx, Event{
		Type:      EventPurchaseApproved,
		User:      user,
		Actor:     request.TargetActor,
		RequestID: requestID,
		Detail:    fmt.Sprintf("%d nuyen, %d karma", request.Totals.Cost.Int64(), request.Totals.Karma.Int64()),
	})
	workflow.logWorkflowOperation(ctx, operationApprove, user, OperationLog{
		RequestID: requestID,
		Actor:     request.TargetActor,
		Cost:      request.Totals.Cost,
		Karma:     request.Totals.Karma,
		Error:     materializeErr,
	})
	return true, materializeErr
}

// DirectPurchase runs the approval logic against the user's live basket,
// bypassing the review queue. Used when no approval step is configured.
// Returns false without side effects when the target cannot afford it.
func (workflow *Workflow) DirectPurchase(ctx context.Context, user UserID, targetActor ActorID) (bool, error) {
	state, err := workflow.loadState(ctx, user)
	if err != nil {
		return false, err
	}
	if len(state.basket.Lines) == 0 {
		err = fmt.Errorf("%w: nothing to purchase", ErrEmptyBasket)
		workflow.logWorkflowOperation(ctx, operationDirectPurchase, user, OperationLog{Error: err})
		return false, err
	}
	target := targetActor
	if target.IsZero() {
		target = state.basket.OwnerActor
	}
	if target.IsZero() {
		err = fmt.Errorf("%w: basket has no target actor", ErrNoActorSelected)
		workflow.logWorkflowOperation(ctx, operationDirectPurchase, user, OperationLog{Error: err})
		return false, err
	}
	requestID, err := NewRequestID(workflow.newID())
	if err != nil {
		return false, err
	}
	request := PurchaseRequest{
		RequestID:        requestID,
		SourceUser:       user,
		TargetActor:      target,
		Lines:            append([]BasketLine(nil), state.basket.Lines...),
		Totals:           ComputeTotals(state.basket.Lines),
		State:            RequestStateCommitted,
		SubmittedUnixUTC: workflow.nowFn(),
	}

	if err := workflow.deductPools(ctx, user, target, requestID, request.Totals, operationDirectPurchase); err != nil {
		return false, err
	}

	_, materializeErr := workflow.materializer.Materialize(ctx, target, request)
	if materializeErr != nil && errors.Is(materializeErr, ErrLedgerEntryExists) {
		materializeErr = nil
	}

	state.basket = workflow.newBasket()
	if err := workflow.saveState(ctx, user, state); err != nil {
		return true, err
	}
	workflow.notify(ctx, Event{
		Type:      EventPurchaseApproved,
		User:      user,
		Actor:     target,
		RequestID: requestID,
		Detail:    fmt.Sprintf("direct, %d nuyen", request.Totals.Cost.Int64()),
	})
	workflow.logWorkflowOperation(ctx, operationDirectPurchase, user, OperationLog{
		RequestID: requestID,
		Actor:     target,
		Cost:      request.Totals.Cost,
		Karma:     request.Totals.Karma,
		Error:     materializeErr,
	})
	return true, materializeErr
}

// AdjustKarma appends a manual karma adjustment to the actor's ledger and
// moves the karma pool by the delta. Negative deltas may not take the pool
// below zero.
func (workflow *Workflow) AdjustKarma(ctx context.Context, reviewer UserID, actor ActorID, delta Karma, note string) error {
	if err := workflow.requireReviewCapability(ctx, reviewer); err != nil {
		return err
	}
	pools, err := workflow.actors.Pools(ctx, actor)
	if err != nil {
		return err
	}
	updated := pools.Karma + delta
	if updated < 0 {
		err = fmt.Errorf("%w: pool %d, delta %d", ErrInsufficientKarma, pools.Karma.Int64(), delta.Int64())
		workflow.logWorkflowOperation(ctx, operationAdjustKarma, reviewer, OperationLog{Actor: actor, Karma: delta, Error: err})
		return err
	}
	if err := workflow.actors.SetPools(ctx, actor, Pools{Nuyen: pools.Nuyen, Karma: updated}); err != nil {
		return err
	}
	entry := LedgerEntry{
		EntryID:        workflow.newID(),
		CreatedUnixUTC: workflow.nowFn(),
		KarmaDelta:     delta,
		Gain:           delta >= 0,
		Note:           note,
	}
	if err := workflow.actors.AppendLedgerEntry(ctx, actor, entry); err != nil {
		return err
	}
	workflow.notify(ctx, Event{
		Type:   EventKarmaAdjusted,
		User:   reviewer,
		Actor:  actor,
		Detail: note,
	})
	workflow.logWorkflowOperation(ctx, operationAdjustKarma, reviewer, OperationLog{Actor: actor, Karma: delta})
	return nil
}

// ActorLedger lists the actor's purchase history, newest first.
func (workflow *Workflow) ActorLedger(ctx context.Context, actor ActorID, limit int) ([]LedgerEntry, error) {
	return workflow.actors.LedgerEntries(ctx, actor, limit)
}

// deductPools runs the affordability check and, if it passes, deducts both
// pools in a single update. A shortfall leaves the pools untouched and is
// reported to the notification channel.
func (workflow *Workflow) deductPools(ctx context.Context, user UserID, actor ActorID, requestID RequestID, totals Totals, operation string) error {
	pools, err := workflow.actors.Pools(ctx, actor)
	if err != nil {
		return err
	}
	var shortfall error
	if pools.Nuyen < totals.Cost {
		shortfall = fmt.Errorf("%w: need %d nuyen, have %d", ErrInsufficientFunds, totals.Cost.Int64(), pools.Nuyen.Int64())
	} else if pools.Karma < totals.Karma {
		shortfall = fmt.Errorf("%w: need %d karma, have %d", ErrInsufficientKarma, totals.Karma.Int64(), pools.Karma.Int64())
	}
	if shortfall != nil {
		workflow.notify(ctx, Event{
			Type:      EventPurchaseBlocked,
			User:      user,
			Actor:     actor,
			RequestID: requestID,
			Detail:    shortfall.Error(),
		})
		workflow.logWorkflowOperation(ctx, operation, user, OperationLog{
			RequestID: requestID,
			Actor:     actor,
			Cost:      totals.Cost,
			Karma:     totals.Karma,
			Error:     shortfall,
		})
		return shortfall
	}
	return workflow.actors.SetPools(ctx, actor, Pools{
		Nuyen: pools.Nuyen - totals.Cost,
		Karma: pools.Karma - totals.Karma,
	})
}

func (workflow *Workflow) requireReviewCapability(ctx context.Context, reviewer UserID) error {
	if workflow.roles == nil {
		return nil
	}
	allowed, err := workflow.roles.HasCapability(ctx, reviewer, CapabilityReviewPurchases)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: %s", ErrCapabilityDenied, reviewer.String())
	}
	return nil
}

func (workflow *Workflow) newBasket() Basket {
	return Basket{
		BasketID:       workflow.newID(),
		CreatedUnixUTC: workflow.nowFn(),
	}
}

func (workflow *Workflow) loadState(ctx context.Context, user UserID) (userState, error) {
	document, found, err := workflow.flags.Document(ctx, user)
	if err != nil {
		return userState{}, err
	}
	if !found || document.BasketUUID == "" {
		state := userState{basket: workflow.newBasket()}
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

func (workflow *Workflow) saveState(ctx context.Context, user UserID, state userState) error {
	return workflow.flags.SetDocument(ctx, user, documentFromState(state))
}

func (workflow *Workflow) notify(ctx context.Context, event Event) {
	if workflow.notifier == nil {
		return
	}
	workflow.notifier.Notify(ctx, event)
}

func (workflow *Workflow) logWorkflowOperation(ctx context.Context, operation string, user UserID, entry OperationLog) {
	entry.Operation = operation
	entry.User = user
	emitOperation(ctx, workflow.logger, entry)
}

func pendingIndex(queue []PurchaseRequest, requestID RequestID) (int, error) {
	for index, request := range queue {
		if request.RequestID == requestID {
			if request.State != RequestStatePending {
				return -1, fmt.Errorf("%w: %s is %s", ErrRequestNotPending, requestID.String(), request.State)
			}
			return index, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrRequestNotFound, requestID.String())
}
