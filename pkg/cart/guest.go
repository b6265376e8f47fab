package cart

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// GuestStorage is the durable key-value slot holding the guest cart as a JSON
// array of item records. Load returns nil bytes when the slot is empty.
type GuestStorage interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, raw []byte) error
	Clear(ctx context.Context) error
}

// GuestCart applies cart semantics on top of a GuestStorage slot. Reads never
// fail: a corrupt or unreadable slot degrades to an empty in-memory list.
type GuestCart struct {
	storage GuestStorage
	cache   *MetadataCache
}

// NewGuestCart wires a GuestCart.
func NewGuestCart(storage GuestStorage, cache *MetadataCache) (*GuestCart, error) {
	if storage == nil {
		return nil, fmt.Errorf("%w: guest storage dependency is nil", ErrInvalidServiceConfig)
	}
	if cache == nil {
		cache = NewMetadataCache()
	}
	return &GuestCart{storage: storage, cache: cache}, nil
}

// Read returns the persisted items, or an empty list when the slot is
// missing, unreadable, or corrupt.
func (guestCart *GuestCart) Read(ctx context.Context) []CartItem {
	raw, err := guestCart.storage.Load(ctx)
	if err != nil || len(raw) == 0 {
		return nil
	}
	var items []CartItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	sanitized := items[:0]
	for _, item := range items {
		if item.ID == "" || item.Quantity <= 0 {
			continue
		}
		sanitized = append(sanitized, item)
	}
	return sanitized
}

// Write persists the item list, replacing the slot content.
func (guestCart *GuestCart) Write(ctx context.Context, items []CartItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return WrapError(sourceGuest, "slot", "encode", err)
	}
	if err := guestCart.storage.Save(ctx, raw); err != nil {
		return WrapError(sourceGuest, "slot", "save", fmt.Errorf("%w: %v", ErrGuestStorageFailure, err))
	}
	return nil
}

// AddOrMerge increments the quantity of an existing line with the same
// product id (or explicit item id from fields.Raw), or appends a new line
// built from fields plus metadata-cache fallbacks.
func (guestCart *GuestCart) AddOrMerge(ctx context.Context, productID ProductID, quantityDelta int64, fields ItemFields) ([]CartItem, error) {
	items := guestCart.Read(ctx)

	merged := false
	for index, item := range items {
		if item.ProductID != productID.String() {
			continue
		}
		items[index].Quantity += quantityDelta
		merged = true
		break
	}

	if !merged {
		if quantityDelta <= 0 {
			return items, nil
		}
		items = append(items, guestCart.buildItem(productID, quantityDelta, fields))
	}

	items = dropNonPositive(items)
	if err := guestCart.Write(ctx, items); err != nil {
		return items, err
	}
	return items, nil
}

// UpdateQuantity sets an item's quantity; a value of zero or less removes the
// line instead of storing a non-positive quantity.
func (guestCart *GuestCart) UpdateQuantity(ctx context.Context, itemID ItemID, quantity int64) ([]CartItem, error) {
	if quantity <= 0 {
		return guestCart.Remove(ctx, itemID)
	}
	items := guestCart.Read(ctx)
	for index, item := range items {
		if item.ID != itemID.String() {
			continue
		}
		items[index].Quantity = quantity
		break
	}
	if err := guestCart.Write(ctx, items); err != nil {
		return items, err
	}
	return items, nil
}

// Remove deletes a line by item id.
func (guestCart *GuestCart) Remove(ctx context.Context, itemID ItemID) ([]CartItem, error) {
	items := guestCart.Read(ctx)
	remaining := items[:0]
	for _, item := range items {
		if item.ID == itemID.String() {
			continue
		}
		remaining = append(remaining, item)
	}
	if err := guestCart.Write(ctx, remaining); err != nil {
		return remaining, err
	}
	return remaining, nil
}

// Clear empties the slot.
func (guestCart *GuestCart) Clear(ctx context.Context) error {
	if err := guestCart.storage.Clear(ctx); err != nil {
		return WrapError(sourceGuest, "slot", "clear", fmt.Errorf("%w: %v", ErrGuestStorageFailure, err))
	}
	return nil
}

func (guestCart *GuestCart) buildItem(productID ProductID, quantity int64, fields ItemFields) CartItem {
	cached, _ := guestCart.cache.Lookup(productID.String())

	price := 0.0
	if fields.Price != nil && *fields.Price > 0 {
		price = *fields.Price
	} else {
		price = cached.Price
	}

	name := firstNonEmpty(fields.Name, cached.Name)
	if name == "" {
		name = PlaceholderName
	}
	image := firstNonEmpty(fields.Image, cached.Image)
	if image == "" {
		image = FallbackImage
	}

	installation := 0.0
	if fields.InstallationPrice != nil && *fields.InstallationPrice > 0 {
		installation = *fields.InstallationPrice
	} else {
		installation = cached.InstallationPrice
	}

	guestCart.cache.Observe(ProductMetadata{
		ProductID:         productID.String(),
		Name:              name,
		Price:             price,
		Image:             image,
		InstallationPrice: installation,
	})

	return CartItem{
		ID:                uuid.NewString(),
		ProductID:         productID.String(),
		Quantity:          quantity,
		Price:             price,
		Name:              name,
		Image:             image,
		InstallationPrice: installation,
		Raw:               fields.Raw,
	}
}

func dropNonPositive(items []CartItem) []CartItem {
	remaining := items[:0]
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		remaining = append(remaining, item)
	}
	return remaining
}
