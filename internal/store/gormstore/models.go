package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// GuestCartSlot holds one guest session's cart as a JSON array of item records.
type GuestCartSlot struct {
	SlotID    string         `gorm:"primaryKey"`
	Items     datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (GuestCartSlot) TableName() string { return "guest_cart_slots" }
