package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/cartsync/pkg/cart"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	errorOperationStore = "store"
	errorSubjectSlot    = "slot"
	errorCodeLoad       = "load"
	errorCodeSave       = "save"
	errorCodeClear      = "clear"

	sqlCreateTable = `
		create table if not exists guest_cart_slots (
			slot_id    text primary key,
			items      jsonb not null default '[]'::jsonb,
			created_at timestamptz not null default now(),
			updated_at timestamptz not null default now()
		)
	`

	sqlSelectSlot = `
		select items::text from guest_cart_slots where slot_id = $1
	`

	sqlUpsertSlot = `
		insert into guest_cart_slots(slot_id, items) values($1, $2::jsonb)
		on conflict (slot_id) do update set items = excluded.items, updated_at = now()
	`

	sqlDeleteSlot = `
		delete from guest_cart_slots where slot_id = $1
	`
)

// Store implements cart.GuestStorage over a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	slotID string
}

// New returns a Store bound to one slot.
func New(pool *pgxpool.Pool, slotID string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: pgx pool dependency is nil", cart.ErrInvalidServiceConfig)
	}
	trimmed := strings.TrimSpace(slotID)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: slot id is required", cart.ErrInvalidServiceConfig)
	}
	return &Store{pool: pool, slotID: trimmed}, nil
}

// Migrate creates the slot table.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, sqlCreateTable); err != nil {
		return fmt.Errorf("create guest_cart_slots: %w", err)
	}
	return nil
}

// Load returns the slot's raw JSON, or nil when the slot does not exist.
func (store *Store) Load(ctx context.Context) ([]byte, error) {
	var items string
	err := store.pool.QueryRow(ctx, sqlSelectSlot, store.slotID).Scan(&items)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreError(errorCodeLoad, err)
	}
	return []byte(items), nil
}

// Save upserts the slot's raw JSON.
func (store *Store) Save(ctx context.Context, raw []byte) error {
	items := string(raw)
	if strings.TrimSpace(items) == "" {
		items = "[]"
	}
	if _, err := store.pool.Exec(ctx, sqlUpsertSlot, store.slotID, items); err != nil {
		return wrapStoreError(errorCodeSave, err)
	}
	return nil
}

// Clear deletes the slot row.
func (store *Store) Clear(ctx context.Context) error {
	if _, err := store.pool.Exec(ctx, sqlDeleteSlot, store.slotID); err != nil {
		return wrapStoreError(errorCodeClear, err)
	}
	return nil
}

func wrapStoreError(code string, err error) error {
	return cart.WrapError(errorOperationStore, errorSubjectSlot, code, err)
}
