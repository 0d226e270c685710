// Package pgstore persists the market contracts directly over pgx for
// deployments that keep postgres as the system of record.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MarkoPoloResearchLab/vttmarket/pkg/market"
)

const (
	constraintLedgerActorRequest = "uniq_ledger_actor_request"
	pgUniqueViolationCode        = "23505"
	errorOperationStore          = "store"
	errorSubjectFlag             = "flag"
	errorSubjectPools            = "pools"
	errorSubjectItem             = "item"
	errorSubjectLedger           = "ledger"
	errorSubjectCatalog          = "catalog"
	errorSubjectAssignment       = "assignment"
	errorCodeCreate              = "create"
	errorCodeDuplicate           = "duplicate"
	errorCodeEncode              = "encode"
	errorCodeGet                 = "get"
	errorCodeInvalid             = "invalid"
	errorCodeList                = "list"
	errorCodeSchema              = "schema"
	errorCodeSet                 = "set"
	errorCodeUpsert              = "upsert"

	sqlSchema = `
		create table if not exists user_flags(
			user_id text primary key,
			document jsonb not null,
			updated_at timestamptz not null default now()
		);
		create table if not exists actor_pools(
			actor_id text primary key,
			nuyen bigint not null,
			karma bigint not null,
			updated_at timestamptz not null default now()
		);
		create table if not exists actor_items(
			item_id uuid primary key default gen_random_uuid(),
			actor_id text not null,
			catalog_id text not null,
			name text not null,
			image text not null default '',
			type text not null,
			rating int not null,
			cost bigint not null,
			availability text not null default '',
			essence_mils bigint not null,
			karma_cost bigint not null,
			quantity int not null,
			created_at timestamptz not null default now()
		);
		create index if not exists idx_actor_items_actor on actor_items(actor_id);
		create table if not exists purchase_ledger(
			entry_id uuid primary key default gen_random_uuid(),
			actor_id text not null,
			request_id text,
			items jsonb not null,
			karma_delta bigint not null,
			gain boolean not null,
			note text not null default '',
			created_at timestamptz not null default now()
		);
		create unique index if not exists uniq_ledger_actor_request
			on purchase_ledger(actor_id, request_id);
		create index if not exists idx_ledger_actor_created
			on purchase_ledger(actor_id, created_at);
		create table if not exists catalog_items(
			catalog_id text primary key,
			name text not null,
			image text not null default '',
			type text not null,
			base_rating int not null,
			max_rating int not null,
			base_cost bigint not null,
			karma_cost bigint not null,
			essence_mils bigint not null,
			availability text not null default '',
			rating_scales_cost boolean not null,
			rating_scales_availability boolean not null
		);
		create table if not exists user_assignments(
			user_id text primary key,
			actor_id text not null,
			updated_at timestamptz not null default now()
		);
	`

	sqlSelectDocument = `
		select document::text from user_flags where user_id = $1
	`

	sqlUpsertDocument = `
		insert into user_flags(user_id, document, updated_at) values($1, $2::jsonb, now())
		on conflict (user_id) do update set document = excluded.document, updated_at = now()
	`

	sqlListDocuments = `
		select user_id, document::text from user_flags order by user_id
	`

	sqlSelectPools = `
		select nuyen, karma from actor_pools where actor_id = $1
	`

	sqlUpsertPools = `
		insert into actor_pools(actor_id, nuyen, karma, updated_at) values($1, $2, $3, now())
		on conflict (actor_id) do update set nuyen = excluded.nuyen, karma = excluded.karma, updated_at = now()
	`

	sqlInsertItem = `
		insert into actor_items(
			item_id, actor_id, catalog_id, name, image, type,
			rating, cost, availability, essence_mils, karma_cost, quantity, created_at
		)
		values(
			coalesce(nullif($1,'')::uuid, gen_random_uuid()),
			$2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now()
		)
	`

	sqlCountLedgerEntry = `
		select count(*) from purchase_ledger where actor_id = $1 and request_id = $2
	`

	sqlInsertLedgerEntry = `
		insert into purchase_ledger(
			entry_id, actor_id, request_id, items, karma_delta, gain, note, created_at
		)
		values(
			coalesce(nullif($1,'')::uuid, gen_random_uuid()),
			$2, nullif($3,''), $4::jsonb, $5, $6, $7,
			to_timestamp($8)
		)
	`

	sqlListLedgerEntries = `
		select
			entry_id::text,
			coalesce(request_id,''),
			extract(epoch from created_at)::bigint,
			items::text,
			karma_delta,
			gain,
			note
		from purchase_ledger
		where actor_id = $1
		order by created_at desc
		limit $2
	`

	sqlSelectCatalogItem = `
		select
			catalog_id, name, image, type,
			base_rating, max_rating, base_cost, karma_cost, essence_mils,
			availability, rating_scales_cost, rating_scales_availability
		from catalog_items
		where catalog_id = $1
	`

	sqlUpsertCatalogItem = `
		insert into catalog_items(
			catalog_id, name, image, type,
			base_rating, max_rating, base_cost, karma_cost, essence_mils,
			availability, rating_scales_cost, rating_scales_availability
		)
		values($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		on conflict (catalog_id) do update set
			name = excluded.name,
			image = excluded.image,
			type = excluded.type,
			base_rating = excluded.base_rating,
			max_rating = excluded.max_rating,
			base_cost = excluded.base_cost,
			karma_cost = excluded.karma_cost,
			essence_mils = excluded.essence_mils,
			availability = excluded.availability,
			rating_scales_cost = excluded.rating_scales_cost,
			rating_scales_availability = excluded.rating_scales_availability
	`

	sqlSelectAssignment = `
		select actor_id from user_assignments where user_id = $1
	`

	sqlUpsertAssignment = `
		insert into user_assignments(user_id, actor_id, updated_at) values($1, $2, now())
		on conflict (user_id) do update set actor_id = excluded.actor_id, updated_at = now()
	`
)

// Store implements the market store contracts over a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the tables and indexes when they do not exist yet.
func (store *Store) EnsureSchema(ctx context.Context) error {
	if _, err := store.pool.Exec(ctx, sqlSchema); err != nil {
		return wrapStoreError(errorSubjectFlag, errorCodeSchema, err)
	}
	return nil
}

// Document implements market.FlagStore.
func (store *Store) Document(ctx context.Context, user market.UserID) (market.Document, bool, error) {
	var payload string
	err := store.pool.QueryRow(ctx, sqlSelectDocument, user.String()).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return market.Document{}, false, nil
		}
		return market.Document{}, false, wrapStoreError(errorSubjectFlag, errorCodeGet, err)
	}
	var document market.Document
	if err := json.Unmarshal([]byte(payload), &document); err != nil {
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
	if _, err := store.pool.Exec(ctx, sqlUpsertDocument, user.String(), string(payload)); err != nil {
		return wrapStoreError(errorSubjectFlag, errorCodeSet, err)
	}
	return nil
}

// Documents implements market.FlagStore.
func (store *Store) Documents(ctx context.Context) ([]market.UserDocument, error) {
	rows, err := store.pool.Query(ctx, sqlListDocuments)
	if err != nil {
		return nil, wrapStoreError(errorSubjectFlag, errorCodeList, err)
	}
	defer rows.Close()
	documents := make([]market.UserDocument, 0, 16)
	for rows.Next() {
		var (
			userIDValue string
			payload     string
		)
		if err := rows.Scan(&userIDValue, &payload); err != nil {
			return nil, wrapStoreError(errorSubjectFlag, errorCodeList, err)
		}
		var document market.Document
		if err := json.Unmarshal([]byte(payload), &document); err != nil {
			return nil, wrapStoreError(errorSubjectFlag, errorCodeInvalid, err)
		}
		documents = append(documents, market.UserDocument{UserID: userIDValue, Document: document})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectFlag, errorCodeList, err)
	}
	return documents, nil
}

// Pools implements market.ActorStore; an unknown actor has zero pools.
func (store *Store) Pools(ctx context.Context, actor market.ActorID) (market.Pools, error) {
	var (
		nuyenValue int64
		karmaValue int64
	)
	err := store.pool.QueryRow(ctx, sqlSelectPools, actor.String()).Scan(&nuyenValue, &karmaValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return market.Pools{}, nil
		}
		return market.Pools{}, wrapStoreError(errorSubjectPools, errorCodeGet, err)
	}
	nuyen, err := market.NewNuyen(nuyenValue)
	if err != nil {
		return market.Pools{}, wrapStoreError(errorSubjectPools, errorCodeInvalid, err)
	}
	karma, err := market.NewKarma(karmaValue)
	if err != nil {
		return market.Pools{}, wrapStoreError(errorSubjectPools, errorCodeInvalid, err)
	}
	return market.Pools{Nuyen: nuyen, Karma: karma}, nil
}

// SetPools implements market.ActorStore with a single upsert.
func (store *Store) SetPools(ctx context.Context, actor market.ActorID, pools market.Pools) error {
	_, err := store.pool.Exec(ctx, sqlUpsertPools, actor.String(), pools.Nuyen.Int64(), pools.Karma.Int64())
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
		_, err := store.pool.Exec(ctx, sqlInsertItem,
			item.ItemID,
			actor.String(),
			item.CatalogID.String(),
			item.Name,
			item.Image,
			item.Type.String(),
			item.Rating.Int(),
			item.Cost.Int64(),
			item.Availability.String(),
			item.EssenceCost.Int64(),
			item.KarmaCost.Int64(),
			item.Quantity,
		)
		if err != nil {
			if firstErr == nil {
				firstErr = wrapStoreError(errorSubjectItem, errorCodeCreate, err)
			}
			continue
		}
		created = append(created, item)
	}
	return created, firstErr
}

// HasLedgerEntry implements market.ActorStore.
func (store *Store) HasLedgerEntry(ctx context.Context, actor market.ActorID, requestID market.RequestID) (bool, error) {
	var count int64
	err := store.pool.QueryRow(ctx, sqlCountLedgerEntry, actor.String(), requestID.String()).Scan(&count)
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
	_, err = store.pool.Exec(ctx, sqlInsertLedgerEntry,
		entry.EntryID,
		actor.String(),
		entry.RequestID,
		string(payload),
		entry.KarmaDelta.Int64(),
		entry.Gain,
		entry.Note,
		entry.CreatedUnixUTC,
	)
	if isLedgerConflict(err) {
		return wrapStoreError(errorSubjectLedger, errorCodeDuplicate, market.ErrLedgerEntryExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectLedger, errorCodeCreate, err)
	}
	return nil
}

// LedgerEntries implements market.ActorStore, newest first.
func (store *Store) LedgerEntries(ctx context.Context, actor market.ActorID, limit int) ([]market.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := store.pool.Query(ctx, sqlListLedgerEntries, actor.String(), limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectLedger, errorCodeList, err)
	}
	defer rows.Close()
	entries, err := scanLedgerEntries(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectLedger, errorCodeInvalid, err)
	}
	return entries, nil
}

// Item returns the catalog template for the price book.
func (store *Store) Item(ctx context.Context, catalogID market.CatalogID) (market.CatalogItem, error) {
	var (
		catalogIDValue           string
		name                     string
		image                    string
		typeValue                string
		baseRatingValue          int
		maxRatingValue           int
		baseCostValue            int64
		karmaCostValue           int64
		essenceValue             int64
		availabilityValue        string
		ratingScalesCost         bool
		ratingScalesAvailability bool
	)
	err := store.pool.QueryRow(ctx, sqlSelectCatalogItem, catalogID.String()).Scan(
		&catalogIDValue,
		&name,
		&image,
		&typeValue,
		&baseRatingValue,
		&maxRatingValue,
		&baseCostValue,
		&karmaCostValue,
		&essenceValue,
		&availabilityValue,
		&ratingScalesCost,
		&ratingScalesAvailability,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return market.CatalogItem{}, wrapStoreError(errorSubjectCatalog, errorCodeGet, market.ErrItemNotFound)
		}
		return market.CatalogItem{}, wrapStoreError(errorSubjectCatalog, errorCodeGet, err)
	}
	parsedCatalogID, err := market.NewCatalogID(catalogIDValue)
	if err != nil {
		return market.CatalogItem{}, wrapStoreError(errorSubjectCatalog, errorCodeInvalid, err)
	}
	itemType, err := market.ParseItemType(typeValue)
	if err != nil {
		return market.CatalogItem{}, wrapStoreError(errorSubjectCatalog, errorCodeInvalid, err)
	}
	baseRating, err := market.NewRating(baseRatingValue)
	if err != nil {
		return market.CatalogItem{}, wrapStoreError(errorSubjectCatalog, errorCodeInvalid, err)
	}
	maxRating, err := market.NewRating(maxRatingValue)
	if err != nil {
		return market.CatalogItem{}, wrapStoreError(errorSubjectCatalog, errorCodeInvalid, err)
	}
	baseCost, err := market.NewNuyen(baseCostValue)
	if err != nil {
		return market.CatalogItem{}, wrapStoreError(errorSubjectCatalog, errorCodeInvalid, err)
	}
	karmaCost, err := market.NewKarma(karmaCostValue)
	if err != nil {
		return market.CatalogItem{}, wrapStoreError(errorSubjectCatalog, errorCodeInvalid, err)
	}
	essenceCost, err := market.NewEssenceMils(essenceValue)
	if err != nil {
		return market.CatalogItem{}, wrapStoreError(errorSubjectCatalog, errorCodeInvalid, err)
	}
	return market.CatalogItem{
		CatalogID:                parsedCatalogID,
		Name:                     name,
		Image:                    image,
		Type:                     itemType,
		BaseRating:               baseRating,
		MaxRating:                maxRating,
		BaseCost:                 baseCost,
		KarmaCost:                karmaCost,
		EssenceCost:              essenceCost,
		BaseAvailability:         market.ParseAvailability(availabilityValue),
		RatingScalesCost:         ratingScalesCost,
		RatingScalesAvailability: ratingScalesAvailability,
	}, nil
}

// UpsertCatalogItems seeds or refreshes catalog templates.
func (store *Store) UpsertCatalogItems(ctx context.Context, items []market.CatalogItem) error {
	for _, item := range items {
		_, err := store.pool.Exec(ctx, sqlUpsertCatalogItem,
			item.CatalogID.String(),
			item.Name,
			item.Image,
			item.Type.String(),
			item.BaseRating.Int(),
			item.MaxRating.Int(),
			item.BaseCost.Int64(),
			item.KarmaCost.Int64(),
			item.EssenceCost.Int64(),
			item.BaseAvailability.String(),
			item.RatingScalesCost,
			item.RatingScalesAvailability,
		)
		if err != nil {
			return wrapStoreError(errorSubjectCatalog, errorCodeUpsert, err)
		}
	}
	return nil
}

// DefaultActor implements market.ActorResolver from the user-assignment table.
func (store *Store) DefaultActor(ctx context.Context, user market.UserID) (market.ActorID, bool, error) {
	var actorIDValue string
	err := store.pool.QueryRow(ctx, sqlSelectAssignment, user.String()).Scan(&actorIDValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return market.ActorID{}, false, nil
		}
		return market.ActorID{}, false, wrapStoreError(errorSubjectAssignment, errorCodeGet, err)
	}
	actor, err := market.NewActorID(actorIDValue)
	if err != nil {
		return market.ActorID{}, false, wrapStoreError(errorSubjectAssignment, errorCodeInvalid, err)
	}
	return actor, true, nil
}

// SetDefaultActor records the user's assigned character.
func (store *Store) SetDefaultActor(ctx context.Context, user market.UserID, actor market.ActorID) error {
	if _, err := store.pool.Exec(ctx, sqlUpsertAssignment, user.String(), actor.String()); err != nil {
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

func scanLedgerEntries(rows pgx.Rows) ([]market.LedgerEntry, error) {
	entries := make([]market.LedgerEntry, 0, 32)
	for rows.Next() {
		var (
			entryIDValue     string
			requestIDValue   string
			createdAtUnixUTC int64
			itemsPayload     string
			karmaDeltaValue  int64
			gainValue        bool
			noteValue        string
		)
		if err := rows.Scan(
			&entryIDValue,
			&requestIDValue,
			&createdAtUnixUTC,
			&itemsPayload,
			&karmaDeltaValue,
			&gainValue,
			&noteValue,
		); err != nil {
			return nil, err
		}
		var records []grantedRecord
		if itemsPayload != "" {
			if err := json.Unmarshal([]byte(itemsPayload), &records); err != nil {
				return nil, err
			}
		}
		items := make([]market.GrantedItem, 0, len(records))
		for _, record := range records {
			catalogID, err := market.NewCatalogID(record.CatalogID)
			if err != nil {
				return nil, err
			}
			rating, err := market.NewRating(record.Rating)
			if err != nil {
				return nil, err
			}
			cost, err := market.NewNuyen(record.Cost)
			if err != nil {
				return nil, err
			}
			karma, err := market.NewKarma(record.Karma)
			if err != nil {
				return nil, err
			}
			essence, err := market.NewEssenceMils(record.Essence)
			if err != nil {
				return nil, err
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
		entries = append(entries, market.LedgerEntry{
			EntryID:        entryIDValue,
			RequestID:      requestIDValue,
			CreatedUnixUTC: createdAtUnixUTC,
			Items:          items,
			KarmaDelta:     market.Karma(karmaDeltaValue),
			Gain:           gainValue,
			Note:           noteValue,
		})
	}
	return entries, rows.Err()
}

func wrapStoreError(subject string, code string, err error) error {
	return market.WrapError(errorOperationStore, subject, code, err)
}

func isLedgerConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintLedgerActorRequest
	}
	return false
}
