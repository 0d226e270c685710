package market

import "context"

// FlagStore is the durable per-user document substrate. The host flag API it
// stands in for is last-write-wins with no optimistic locking; callers must
// tolerate eventual consistency with concurrent external viewers.
type FlagStore interface {
	// Document loads the persisted slot for one user. A missing slot returns
	// (zero document, false, nil), never an error.
	Document(ctx context.Context, user UserID) (Document, bool, error)
	// SetDocument replaces the persisted slot for one user.
	SetDocument(ctx context.Context, user UserID, document Document) error
	// Documents lists every persisted slot, for the review-queue projection.
	Documents(ctx context.Context) ([]UserDocument, error)
}

// UserDocument pairs a persisted slot with its owning user.
type UserDocument struct {
	UserID   string
	Document Document
}

// ActorStore accesses the target actor's pools, inventory, and purchase
// ledger. Every method is an independent persisted write; there is no
// transaction spanning them.
type ActorStore interface {
	// Pools returns the actor's balances; an unknown actor has zero pools.
	Pools(ctx context.Context, actor ActorID) (Pools, error)
	// SetPools overwrites both balances in a single update.
	SetPools(ctx context.Context, actor ActorID, pools Pools) error
	// CreateItems materializes inventory copies. Partial failure returns the
	// subset that succeeded together with the error.
	CreateItems(ctx context.Context, actor ActorID, items []InventoryItem) ([]InventoryItem, error)
	// HasLedgerEntry reports whether a ledger entry is already tagged with the
	// request id (the duplicate-submit guard).
	HasLedgerEntry(ctx context.Context, actor ActorID, requestID RequestID) (bool, error)
	// AppendLedgerEntry appends one immutable history record.
	AppendLedgerEntry(ctx context.Context, actor ActorID, entry LedgerEntry) error
	// LedgerEntries lists history records, newest first.
	LedgerEntries(ctx context.Context, actor ActorID, limit int) ([]LedgerEntry, error)
}

// EventType names a notification emitted on workflow transitions.
type EventType string

const (
	EventPurchaseSubmitted EventType = "purchase_submitted"
	EventPurchaseApproved  EventType = "purchase_approved"
	EventPurchaseRejected  EventType = "purchase_rejected"
	EventPurchaseBlocked   EventType = "purchase_blocked"
	EventKarmaAdjusted     EventType = "karma_adjusted"
)

// Event is the fire-and-forget payload handed to the notification channel.
// Notifications are not required for correctness of the state machine.
type Event struct {
	Type      EventType
	User      UserID
	Actor     ActorID
	RequestID RequestID
	Detail    string
}

// Notifier delivers events to the chat/notification channel.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Capability names a privileged action.
type Capability string

// CapabilityReviewPurchases gates the review-queue operations.
const CapabilityReviewPurchases Capability = "review_purchases"

// RoleChecker is the capability collaborator. A workflow constructed without
// one trusts its caller to gate privileged operations externally.
type RoleChecker interface {
	HasCapability(ctx context.Context, user UserID, capability Capability) (bool, error)
}

// ActorResolver supplies the acting user's default actor (assigned character
// or currently targeted token) when an add-to-cart carries no explicit hint.
type ActorResolver interface {
	DefaultActor(ctx context.Context, user UserID) (ActorID, bool, error)
}
