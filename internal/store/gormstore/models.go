package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserFlag holds one user's persisted market document (cart + review queue)
// as a single JSON blob, last write wins.
type UserFlag struct {
	UserID    string         `gorm:"primaryKey"`
	Document  datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (UserFlag) TableName() string { return "user_flags" }

// ActorPools mirrors the actor's spendable balances.
type ActorPools struct {
	ActorID   string    `gorm:"primaryKey"`
	Nuyen     int64     `gorm:"not null"`
	Karma     int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (ActorPools) TableName() string { return "actor_pools" }

// ActorItem mirrors one materialized inventory row.
type ActorItem struct {
	ItemID       string    `gorm:"type:uuid;primaryKey"`
	ActorID      string    `gorm:"not null;index:idx_actor_items_actor"`
	CatalogID    string    `gorm:"not null"`
	Name         string    `gorm:"not null"`
	Image        string    `gorm:""`
	Type         string    `gorm:"not null"`
	Rating       int       `gorm:"not null"`
	Cost         int64     `gorm:"not null"`
	Availability string    `gorm:""`
	EssenceMils  int64     `gorm:"not null"`
	KarmaCost    int64     `gorm:"not null"`
	Quantity     int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (ActorItem) TableName() string { return "actor_items" }

func (item *ActorItem) BeforeCreate(tx *gorm.DB) error {
	if item.ItemID == "" {
		item.ItemID = uuid.NewString()
	}
	return nil
}

// LedgerRecord mirrors the append-only purchase history. The unique index on
// (actor_id, request_id) is the duplicate-submit guard; manual adjustments
// carry a null request id and stay outside it.
type LedgerRecord struct {
	EntryID    string         `gorm:"type:uuid;primaryKey"`
	ActorID    string         `gorm:"not null;index:idx_ledger_actor_created,priority:1;index:uniq_ledger_actor_request,unique,priority:1"`
	RequestID  *string        `gorm:"index:uniq_ledger_actor_request,unique,priority:2"`
	Items      datatypes.JSON `gorm:"not null"`
	KarmaDelta int64          `gorm:"not null"`
	Gain       bool           `gorm:"not null"`
	Note       string         `gorm:""`
	CreatedAt  time.Time      `gorm:"not null;index:idx_ledger_actor_created,priority:2"`
}

func (LedgerRecord) TableName() string { return "purchase_ledger" }

func (record *LedgerRecord) BeforeCreate(tx *gorm.DB) error {
	if record.EntryID == "" {
		record.EntryID = uuid.NewString()
	}
	return nil
}

// CatalogRecord mirrors one purchasable template of the seeded catalog.
type CatalogRecord struct {
	CatalogID                string `gorm:"primaryKey"`
	Name                     string `gorm:"not null"`
	Image                    string `gorm:""`
	Type                     string `gorm:"not null"`
	BaseRating               int    `gorm:"not null"`
	MaxRating                int    `gorm:"not null"`
	BaseCost                 int64  `gorm:"not null"`
	KarmaCost                int64  `gorm:"not null"`
	EssenceMils              int64  `gorm:"not null"`
	Availability             string `gorm:""`
	RatingScalesCost         bool   `gorm:"not null"`
	RatingScalesAvailability bool   `gorm:"not null"`
}

func (CatalogRecord) TableName() string { return "catalog_items" }

// UserAssignment maps a user to their default actor (assigned character).
type UserAssignment struct {
	UserID    string    `gorm:"primaryKey"`
	ActorID   string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (UserAssignment) TableName() string { return "user_assignments" }

// Models lists every table for auto-migration.
func Models() []any {
	return []any{
		&UserFlag{},
		&ActorPools{},
		&ActorItem{},
		&LedgerRecord{},
		&CatalogRecord{},
		&UserAssignment{},
	}
}
