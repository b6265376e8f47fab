package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/cartsync/pkg/cart"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	emptyItemsJSON = "[]"

	errorOperationStore = "store"
	errorSubjectSlot    = "slot"
	errorCodeLoad       = "load"
	errorCodeSave       = "save"
	errorCodeClear      = "clear"
)

// Store implements cart.GuestStorage using GORM, one row per session slot.
type Store struct {
	db     *gorm.DB
	slotID string
}

// New returns a Store bound to one slot.
func New(db *gorm.DB, slotID string) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: gorm db dependency is nil", cart.ErrInvalidServiceConfig)
	}
	trimmed := strings.TrimSpace(slotID)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: slot id is required", cart.ErrInvalidServiceConfig)
	}
	return &Store{db: db, slotID: trimmed}, nil
}

// Load returns the slot's raw JSON, or nil when the slot does not exist.
func (store *Store) Load(ctx context.Context) ([]byte, error) {
	var slot GuestCartSlot
	err := store.db.WithContext(ctx).
		Where("slot_id = ?", store.slotID).
		Take(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreError(errorCodeLoad, err)
	}
	return []byte(slot.Items), nil
}

// Save upserts the slot's raw JSON.
func (store *Store) Save(ctx context.Context, raw []byte) error {
	slot := GuestCartSlot{
		SlotID: store.slotID,
		Items:  itemsJSON(raw),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slot_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"items", "updated_at"}),
		}).
		Create(&slot).Error
	if err != nil {
		return wrapStoreError(errorCodeSave, err)
	}
	return nil
}

// Clear deletes the slot row.
func (store *Store) Clear(ctx context.Context) error {
	err := store.db.WithContext(ctx).
		Where("slot_id = ?", store.slotID).
		Delete(&GuestCartSlot{}).Error
	if err != nil {
		return wrapStoreError(errorCodeClear, err)
	}
	return nil
}

// Migrate creates the slot table when the driver manages its own schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&GuestCartSlot{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func wrapStoreError(code string, err error) error {
	return cart.WrapError(errorOperationStore, errorSubjectSlot, code, err)
}

func itemsJSON(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON([]byte(emptyItemsJSON))
	}
	return datatypes.JSON(raw)
}
