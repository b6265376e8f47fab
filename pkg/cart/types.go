package cart

import (
	"fmt"
	"strings"
)

// ProductID identifies a catalog product.
type ProductID struct {
	value string
}

// ItemID identifies a line inside a cart.
type ItemID struct {
	value string
}

// Quantity is a non-negative item count; zero implies removal.
type Quantity int64

// NewProductID validates and normalizes a product id.
func NewProductID(raw string) (ProductID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ProductID{}, fmt.Errorf("%w: empty value", ErrInvalidProductID)
	}
	return ProductID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ProductID) String() string {
	return id.value
}

// NewItemID validates and normalizes an item id.
func NewItemID(raw string) (ItemID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ItemID{}, fmt.Errorf("%w: empty value", ErrInvalidItemID)
	}
	return ItemID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ItemID) String() string {
	return id.value
}

// NewQuantity validates a quantity and rejects negative values.
func NewQuantity(raw int64) (Quantity, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidQuantity)
	}
	return Quantity(raw), nil
}

// Int64 returns the raw count.
func (quantity Quantity) Int64() int64 {
	return int64(quantity)
}

// CartItem is one canonical cart line. Raw keeps the original server record
// for downstream display only and is never trusted for invariants.
type CartItem struct {
	ID                string         `json:"id"`
	ProductID         string         `json:"product_id"`
	Quantity          int64          `json:"quantity"`
	Price             float64        `json:"price"`
	Name              string         `json:"name"`
	Image             string         `json:"image"`
	InstallationPrice float64        `json:"installation_price"`
	Raw               map[string]any `json:"raw,omitempty"`
}

// CartTotals aggregates the monetary view of a cart.
type CartTotals struct {
	Subtotal          float64 `json:"subtotal"`
	Shipping          float64 `json:"shipping"`
	InstallationPrice float64 `json:"installation_price"`
	Total             float64 `json:"total"`
}

// Snapshot is one consistent view of the cart at a point in time.
// CartID is empty in guest mode.
type Snapshot struct {
	CartID string     `json:"cart_id"`
	Items  []CartItem `json:"items"`
	Totals CartTotals `json:"totals"`
}

// ItemFields carries optional attributes supplied alongside an add intent.
// Nil pointers mean the attribute is unknown and fallback tiers apply.
type ItemFields struct {
	Price             *float64
	Name              string
	Image             string
	InstallationPrice *float64
	Raw               map[string]any
}

// ProductMetadata is an advisory cache entry backfilling fields the server omits.
type ProductMetadata struct {
	ProductID         string
	Name              string
	Price             float64
	Image             string
	InstallationPrice float64
}

// StateView is a read-only copy of the canonical cart state.
type StateView struct {
	CartID    string     `json:"cart_id"`
	Items     []CartItem `json:"items"`
	Totals    CartTotals `json:"totals"`
	IsLoading bool       `json:"is_loading"`
	IsLoaded  bool       `json:"is_loaded"`
	Err       error      `json:"-"`
}

func cloneItems(items []CartItem) []CartItem {
	if len(items) == 0 {
		return nil
	}
	return append([]CartItem(nil), items...)
}
