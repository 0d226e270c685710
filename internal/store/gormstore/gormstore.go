// Package gormstore persists the market contracts through GORM, targeting
// sqlite for embedded worlds and postgres for hosted ones.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkoPoloResearchLab/vttmarket/pkg/market"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19

	errorOperationStore    = "store"
	errorSubjectFlag       = "flag"
	errorSubjectPools      = "pools"
	errorSubjectItem       = "item"
	errorSubjectLedger     = "ledger"
	errorSubjectCatalog    = "catalog"
	errorSubjectAssignment = "assignment"
	errorCodeGet           = "get"
	errorCodeSet           = "set"
	errorCodeList          = "list"
	errorCodeCreate        = "create"
	errorCodeDuplicate     = "duplicate"
	errorCodeInvalid       = "invalid"
	errorCodeEncode        = "encode"
	errorCodeUpsert        = "upsert"
)

// Store implements market.FlagStore, market.ActorStore, the catalog item
// source, and market.ActorResolver using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Document implements market.FlagStore.
func (store *Store) Document(ctx context.Context, user market.UserID) (market.Document, bool, error) {
	var row UserFlag
	err := store.db.WithContext(ctx).
		Where("user_id = ?", user.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return market.Document{}, false, nil
		}
		return market.Document{}, false, wrapStoreError(errorSubjectFlag, errorCodeGet, err)
	}
	document, err := decodeDocument(row.Document)
	if err != nil {
		return market.Document{}, false, wrapStoreError(errorSubjectFlag, errorCodeInvalid, err)
	}
	return document, true, nil
}

// SetDocument implements market.FlagStore with last-write-wins semantics.
func (store *Store) SetDocument(ctx context.Context, user market.UserID, document market.Document) error {
	payload, err := json.Marshal(document)
	if err != nil {
		return wrapStoreError(errorSubjectFlag, errorCodeEncode, err)
	}
	row := UserFlag{
		UserID:    user.String(),
		Document:  datatypes.JSON(payload),
		UpdatedAt: time.Now().UTC(),
	}
	err = store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"document", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectFlag, errorCodeSet, err)
	}
	return nil
}

// Documents implements market.FlagStore.
func (store *Store) Documents(ctx context.Context) ([]market.UserDocument, error) {
	var rows []UserFlag
	err := store.db.WithContext(ctx).Order("user_id").Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectFlag, errorCodeList, err)
	}
	documents := make([]market.UserDocument, 0, len(rows))
	for _, row := range rows {
		document, err := decodeDocument(row.Document)
		if err != nil {
			return nil, wrapStoreError(errorSubjectFlag, errorCodeInvalid, err)
		}
		documents = append(documents, market.UserDocument{UserID: row.UserID, Document: document})
	}
	return documents, nil
}

// Pools implements market.ActorStore; an unknown actor has zero pools.
func (store *Store) Pools(ctx context.Context, actor market.ActorID) (market.Pools, error) {
	var row ActorPools
	err := store.db.WithContext(ctx).
		Where("actor_id = ?", actor.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return market.Pools{}, nil
		}
		return market.Pools{}, wrapStoreError(errorSubjectPools, errorCodeGet, err)
	}
	nuyen, err := market.NewNuyen(row.Nuyen)
	if err != nil {
		return market.Pools{}, wrapStoreError(errorSubjectPools, errorCodeInvalid, err)
	}
	karma, err := market.NewKarma(row.Karma)
	if err != nil {
		return market.Pools{}, wrapStoreError(errorSubjectPools, errorCodeInvalid, err)
	}
	return market.Pools{Nuyen: nuyen, Karma: karma}, nil
}

// SetPools implements market.ActorStore with a single upsert.
func (store *Store) SetPools(ctx context.Context, actor market.ActorID, pools market.Pools) error {
	row := ActorPools{
		ActorID:   actor.String(),
		Nuyen:     pools.Nuyen.Int64(),
		Karma:     pools.Karma.Int64(),
		UpdatedAt: time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "actor_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"nuyen", "karma", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectPools, errorCodeSet, err)
	}
	return nil
}

// CreateItems implements market.ActorStore. Creation is best-effort per item:
// a failed row does not abort the batch, and the subset that succeeded is
// returned together with the error.
func (store *Store) CreateItems(ctx context.Context, actor market.ActorID, items []market.InventoryItem) ([]market.InventoryItem, error) {
	created := make([]market.InventoryItem, 0, len(items))
	var firstErr error
	for _, item := range items {
		row := ActorItem{
			ItemID:       item.ItemID,
			ActorID:      actor.String(),
			CatalogID:    item.CatalogID.String(),
			Name:         item.Name,
			Image:        item.Image,
			Type:         item.Type.String(),
			Rating:       item.Rating.Int(),
			Cost:         item.Cost.Int64(),
			Availability: item.Availability.String(),
			EssenceMils:  item.EssenceCost.Int64(),
			KarmaCost:    item.KarmaCost.Int64(),
			Quantity:     item.Quantity,
			CreatedAt:    time.Now().UTC(),
		}
		if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
			if firstErr == nil {
				firstErr = wrapStoreError(errorSubjectItem, errorCodeCreate, err)
			}
			continue
		}
		item.ItemID = row.ItemID
		created = append(created, item)
	}
	return created, firstErr
}

// HasLedgerEntry implements market.ActorStore.
func (store *Store) HasLedgerEntry(ctx context.Context, actor market.ActorID, requestID market.RequestID) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&LedgerRecord{}).
		Where("actor_id = ? AND request_id = ?", actor.String(), requestID.String()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectLedger, errorCodeGet, err)
	}
	return count > 0, nil
}

// AppendLedgerEntry implements market.ActorStore. The (actor, request)
// unique index maps a concurrent duplicate to market.ErrLedgerEntryExists.
func (store *Store) AppendLedgerEntry(ctx context.Context, actor market.ActorID, entry market.LedgerEntry) error {
	payload, err := json.Marshal(grantedRecordsFromEntry(entry))
	if err != nil {
		return wrapStoreError(errorSubjectLedger, errorCodeEncode, err)
	}
	var requestID *string
	if entry.RequestID != "" {
		value := entry.RequestID
		requestID = &value
	}
	row := LedgerRecord{
		EntryID:    entry.EntryID,
		ActorID:    actor.String(),
		RequestID:  requestID,
		Items:      datatypes.JSON(payload),
		KarmaDelta: entry.KarmaDelta.Int64(),
		Gain:       entry.Gain,
		Note:       entry.Note,
		CreatedAt:  time.Unix(entry.CreatedUnixUTC, 0).UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	err = store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectLedger, errorCodeDuplicate, market.ErrLedgerEntryExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectLedger, errorCodeCreate, err)
	}
	return nil
}

// LedgerEntries implements market.ActorStore, newest first.
func (store *Store) LedgerEntries(ctx context.Context, actor market.ActorID, limit int) ([]market.LedgerEntry, error) {
	var rows []LedgerRecord
	query := store.db.WithContext(ctx).
		Where("actor_id = ?", actor.String()).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectLedger, errorCodeList, err)
	}
	entries := make([]market.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerRecord(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectLedger, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Item implements the catalog item source.
func (store *Store) Item(ctx context.Context, catalogID market.CatalogID) (market.CatalogItem, error) {
	var row CatalogRecord
	err := store.db.WithContext(ctx).
		Where("catalog_id = ?", catalogID.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return market.CatalogItem{}, wrapStoreError(errorSubjectCatalog, errorCodeGet, market.ErrItemNotFound)
		}
		return market.CatalogItem{}, wrapStoreError(errorSubjectCatalog, errorCodeGet, err)
	}
	item, err := mapCatalogRecord(row)
	if err != nil {
		return market.CatalogItem{}, wrapStoreError(errorSubjectCatalog, errorCodeInvalid, err)
	}
	return item, nil
}

// UpsertCatalogItems seeds or refreshes catalog templates.
func (store *Store) UpsertCatalogItems(ctx context.Context, items []market.CatalogItem) error {
	for _, item := range items {
		row := CatalogRecord{
			CatalogID:                item.CatalogID.String(),
			Name:                     item.Name,
			Image:                    item.Image,
			Type:                     item.Type.String(),
			BaseRating:               item.BaseRating.Int(),
			MaxRating:                item.MaxRating.Int(),
			BaseCost:                 item.BaseCost.Int64(),
			KarmaCost:                item.KarmaCost.Int64(),
			EssenceMils:              item.EssenceCost.Int64(),
			Availability:             item.BaseAvailability.String(),
			RatingScalesCost:         item.RatingScalesCost,
			RatingScalesAvailability: item.RatingScalesAvailability,
		}
		err := store.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "catalog_id"}},
				UpdateAll: true,
			}).
			Create(&row).Error
		if err != nil {
			return wrapStoreError(errorSubjectCatalog, errorCodeUpsert, err)
		}
	}
	return nil
}

// DefaultActor implements market.ActorResolver from the user-assignment table.
func (store *Store) DefaultActor(ctx context.Context, user market.UserID) (market.ActorID, bool, error) {
	var row UserAssignment
	err := store.db.WithContext(ctx).
		Where("user_id = ?", user.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return market.ActorID{}, false, nil
		}
		return market.ActorID{}, false, wrapStoreError(errorSubjectAssignment, errorCodeGet, err)
	}
	actor, err := market.NewActorID(row.ActorID)
	if err != nil {
		return market.ActorID{}, false, wrapStoreError(errorSubjectAssignment, errorCodeInvalid, err)
	}
	return actor, true, nil
}

// SetDefaultActor records the user's assigned character.
func (store *Store) SetDefaultActor(ctx context.Context, user market.UserID, actor market.ActorID) error {
	row := UserAssignment{
		UserID:    user.String(),
		ActorID:   actor.String(),
		UpdatedAt: time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"actor_id", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectAssignment, errorCodeSet, err)
	}
	return nil
}

// grantedRecord is the persisted JSON form of one ledger item line.
type grantedRecord struct {
	CatalogID string `json:"catalogId"`
	Name      string `json:"name"`
	Rating    int    `json:"rating"`
	Cost      int64  `json:"cost"`
	Karma     int64  `json:"karma"`
	Essence   int64  `json:"essence"`
}

func grantedRecordsFromEntry(entry market.LedgerEntry) []grantedRecord {
	records := make([]grantedRecord, 0, len(entry.Items))
	for _, item := range entry.Items {
		records = append(records, grantedRecord{
			CatalogID: item.CatalogID.String(),
			Name:      item.Name,
			Rating:    item.Rating.Int(),
			Cost:      item.Cost.Int64(),
			Karma:     item.Karma.Int64(),
			Essence:   item.Essence.Int64(),
		})
	}
	return records
}

func mapLedgerRecord(row LedgerRecord) (market.LedgerEntry, error) {
	var records []grantedRecord
	if len(row.Items) > 0 {
		if err := json.Unmarshal(row.Items, &records); err != nil {
			return market.LedgerEntry{}, err
		}
	}
	items := make([]market.GrantedItem, 0, len(records))
	for _, record := range records {
		catalogID, err := market.NewCatalogID(record.CatalogID)
		if err != nil {
			return market.LedgerEntry{}, err
		}
		rating, err := market.NewRating(record.Rating)
		if err != nil {
			return market.LedgerEntry{}, err
		}
		cost, err := market.NewNuyen(record.Cost)
		if err != nil {
			return market.LedgerEntry{}, err
		}
		karma, err := market.NewKarma(record.Karma)
		if err != nil {
			return market.LedgerEntry{}, err
		}
		essence, err := market.NewEssenceMils(record.Essence)
		if err != nil {
			return market.LedgerEntry{}, err
		}
		items = append(items, market.GrantedItem{
			CatalogID: catalogID,
			Name:      record.Name,
			Rating:    rating,
			Cost:      cost,
			Karma:     karma,
			Essence:   essence,
		})
	}
	requestID := ""
	if row.RequestID != nil {
		requestID = *row.RequestID
	}
	return market.LedgerEntry{
		EntryID:        row.EntryID,
		RequestID:      requestID,
		CreatedUnixUTC: row.CreatedAt.Unix(),
		Items:          items,
		KarmaDelta:     market.Karma(row.KarmaDelta),
		Gain:           row.Gain,
		Note:           row.Note,
	}, nil
}

func mapCatalogRecord(row CatalogRecord) (market.CatalogItem, error) {
	catalogID, err := market.NewCatalogID(row.CatalogID)
	if err != nil {
		return market.CatalogItem{}, err
	}
	itemType, err := market.ParseItemType(row.Type)
	if err != nil {
		return market.CatalogItem{}, err
	}
	baseRating, err := market.NewRating(row.BaseRating)
	if err != nil {
		return market.CatalogItem{}, err
	}
	maxRating, err := market.NewRating(row.MaxRating)
	if err != nil {
		return market.CatalogItem{}, err
	}
	baseCost, err := market.NewNuyen(row.BaseCost)
	if err != nil {
		return market.CatalogItem{}, err
	}
	karmaCost, err := market.NewKarma(row.KarmaCost)
	if err != nil {
		return market.CatalogItem{}, err
	}
	essenceCost, err := market.NewEssenceMils(row.EssenceMils)
	if err != nil {
		return market.CatalogItem{}, err
	}
	return market.CatalogItem{
		CatalogID:                catalogID,
		Name:                     row.Name,
		Image:                    row.Image,
		Type:                     itemType,
		BaseRating:               baseRating,
		MaxRating:                maxRating,
		BaseCost:                 baseCost,
		KarmaCost:                karmaCost,
		EssenceCost:              essenceCost,
		BaseAvailability:         market.ParseAvailability(row.Availability),
		RatingScalesCost:         row.RatingScalesCost,
		RatingScalesAvailability: row.RatingScalesAvailability,
	}, nil
}

func decodeDocument(raw datatypes.JSON) (market.Document, error) {
	var document market.Document
	if len(raw) == 0 {
		return document, nil
	}
	if err := json.Unmarshal(raw, &document); err != nil {
		return market.Document{}, err
	}
	return document, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return market.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
