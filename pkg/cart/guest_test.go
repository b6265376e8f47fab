package cart

import (
	"context"
	"errors"
	"testing"
)

// memoryStorage is an in-memory GuestStorage slot for tests.
type memoryStorage struct {
	raw       []byte
	loadError error
	saveError error
	clearErr  error
	saves     int
}

func (storage *memoryStorage) Load(ctx context.Context) ([]byte, error) {
	if storage.loadError != nil {
		return nil, storage.loadError
	}
	return storage.raw, nil
}

func (storage *memoryStorage) Save(ctx context.Context, raw []byte) error {
	if storage.saveError != nil {
		return storage.saveError
	}
	storage.raw = append([]byte(nil), raw...)
	storage.saves++
	return nil
}

func (storage *memoryStorage) Clear(ctx context.Context) error {
	if storage.clearErr != nil {
		return storage.clearErr
	}
	storage.raw = nil
	return nil
}

func mustGuestCart(test *testing.T, storage GuestStorage) *GuestCart {
	test.Helper()
	guestCart, err := NewGuestCart(storage, NewMetadataCache())
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	return guestCart
}

func mustProductID(test *testing.T, raw string) ProductID {
	test.Helper()
	productID, err := NewProductID(raw)
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	return productID
}

func mustItemID(test *testing.T, raw string) ItemID {
	test.Helper()
	itemID, err := NewItemID(raw)
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	return itemID
}

func TestGuestCartReadEmptySlot(test *testing.T) {
	test.Parallel()
	guestCart := mustGuestCart(test, &memoryStorage{})

	items := guestCart.Read(context.Background())

	if len(items) != 0 {
		test.Fatalf("expected empty cart, got %d items", len(items))
	}
}

func TestGuestCartReadCorruptSlot(test *testing.T) {
	test.Parallel()
	guestCart := mustGuestCart(test, &memoryStorage{raw: []byte("{not json")})

	items := guestCart.Read(context.Background())

	if len(items) != 0 {
		test.Fatalf("expected corrupt slot to degrade to empty, got %d items", len(items))
	}
}

func TestGuestCartReadUnreadableSlot(test *testing.T) {
	test.Parallel()
	guestCart := mustGuestCart(test, &memoryStorage{loadError: errors.New("disk gone")})

	items := guestCart.Read(context.Background())

	if len(items) != 0 {
		test.Fatalf("expected load failure to degrade to empty, got %d items", len(items))
	}
}

func TestGuestCartReadFiltersInvalidLines(test *testing.T) {
	test.Parallel()
	raw := []byte(`[{"id":"line-1","product_id":"p1","quantity":2,"price":10},{"id":"","product_id":"p2","quantity":1},{"id":"line-3","product_id":"p3","quantity":0}]`)
	guestCart := mustGuestCart(test, &memoryStorage{raw: raw})

	items := guestCart.Read(context.Background())

	if len(items) != 1 || items[0].ID != "line-1" {
		test.Fatalf("expected only line-1 to survive, got %+v", items)
	}
}

func TestGuestCartAddOrMergeIncrementsExistingLine(test *testing.T) {
	test.Parallel()
	storage := &memoryStorage{}
	guestCart := mustGuestCart(test, storage)
	productID := mustProductID(test, "p1")
	price := 100.0

	first, err := guestCart.AddOrMerge(context.Background(), productID, 1, ItemFields{Price: &price, Name: "Drill"})
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 1 || first[0].Quantity != 1 {
		test.Fatalf("unexpected first add result: %+v", first)
	}

	second, err := guestCart.AddOrMerge(context.Background(), productID, 2, ItemFields{})
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if len(second) != 1 {
		test.Fatalf("expected merged line, got %d lines", len(second))
	}
	if second[0].Quantity != 3 {
		test.Fatalf("expected quantity 3, got %d", second[0].Quantity)
	}
	if !floatsEqual(second[0].Price, 100) {
		test.Fatalf("expected price retained through merge, got %v", second[0].Price)
	}
}

func TestGuestCartAddOrMergeAppendsNewLine(test *testing.T) {
	test.Parallel()
	guestCart := mustGuestCart(test, &memoryStorage{})
	price := 50.0

	items, err := guestCart.AddOrMerge(context.Background(), mustProductID(test, "p1"), 1, ItemFields{Price: &price})
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	items, err = guestCart.AddOrMerge(context.Background(), mustProductID(test, "p2"), 1, ItemFields{})
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}

	if len(items) != 2 {
		test.Fatalf("expected two lines, got %d", len(items))
	}
	if items[0].ID == items[1].ID {
		test.Fatal("expected distinct line ids")
	}
}

func TestGuestCartAddOrMergeUsesCachedMetadata(test *testing.T) {
	test.Parallel()
	cache := NewMetadataCache()
	cache.Observe(ProductMetadata{ProductID: "p1", Name: "Drill", Price: 79.9, Image: "/img/drill.png"})
	guestCart, err := NewGuestCart(&memoryStorage{}, cache)
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}

	items, err := guestCart.AddOrMerge(context.Background(), mustProductID(test, "p1"), 1, ItemFields{})
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}

	if items[0].Name != "Drill" || !floatsEqual(items[0].Price, 79.9) || items[0].Image != "/img/drill.png" {
		test.Fatalf("expected cached attributes, got %+v", items[0])
	}
}

func TestGuestCartAddOrMergeUnknownProductGetsPlaceholders(test *testing.T) {
	test.Parallel()
	guestCart := mustGuestCart(test, &memoryStorage{})

	items, err := guestCart.AddOrMerge(context.Background(), mustProductID(test, "p-unknown"), 1, ItemFields{})
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}

	if items[0].Name != PlaceholderName {
		test.Fatalf("expected placeholder name, got %q", items[0].Name)
	}
	if items[0].Image != FallbackImage {
		test.Fatalf("expected fallback image, got %q", items[0].Image)
	}
}

func TestGuestCartUpdateQuantityRemovesOnNonPositive(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		quantity int64
	}{
		{name: "zero removes", quantity: 0},
		{name: "negative removes", quantity: -3},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			guestCart := mustGuestCart(test, &memoryStorage{})
			price := 10.0
			items, err := guestCart.AddOrMerge(context.Background(), mustProductID(test, "p1"), 1, ItemFields{Price: &price})
			if err != nil {
				test.Fatalf("unexpected error: %v", err)
			}

			remaining, err := guestCart.UpdateQuantity(context.Background(), mustItemID(test, items[0].ID), testCase.quantity)
			if err != nil {
				test.Fatalf("unexpected error: %v", err)
			}
			if len(remaining) != 0 {
				test.Fatalf("expected line removed, got %+v", remaining)
			}
		})
	}
}

func TestGuestCartUpdateQuantitySetsValue(test *testing.T) {
	test.Parallel()
	guestCart := mustGuestCart(test, &memoryStorage{})
	items, err := guestCart.AddOrMerge(context.Background(), mustProductID(test, "p1"), 1, ItemFields{})
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}

	updated, err := guestCart.UpdateQuantity(context.Background(), mustItemID(test, items[0].ID), 5)
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if updated[0].Quantity != 5 {
		test.Fatalf("expected quantity 5, got %d", updated[0].Quantity)
	}
}

func TestGuestCartRemoveLeavesOtherLines(test *testing.T) {
	test.Parallel()
	guestCart := mustGuestCart(test, &memoryStorage{})
	first, err := guestCart.AddOrMerge(context.Background(), mustProductID(test, "p1"), 1, ItemFields{})
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	_, err = guestCart.AddOrMerge(context.Background(), mustProductID(test, "p2"), 1, ItemFields{})
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}

	remaining, err := guestCart.Remove(context.Background(), mustItemID(test, first[0].ID))
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ProductID != "p2" {
		test.Fatalf("expected only p2 to remain, got %+v", remaining)
	}
}

func TestGuestCartWriteSurfacesStorageFailure(test *testing.T) {
	test.Parallel()
	storage := &memoryStorage{saveError: errors.New("disk full")}
	guestCart := mustGuestCart(test, storage)

	_, err := guestCart.AddOrMerge(context.Background(), mustProductID(test, "p1"), 1, ItemFields{})

	if !errors.Is(err, ErrGuestStorageFailure) {
		test.Fatalf("expected ErrGuestStorageFailure, got %v", err)
	}
}

func TestGuestCartClearSurfacesStorageFailure(test *testing.T) {
	test.Parallel()
	guestCart := mustGuestCart(test, &memoryStorage{clearErr: errors.New("locked")})

	err := guestCart.Clear(context.Background())

	if !errors.Is(err, ErrGuestStorageFailure) {
		test.Fatalf("expected ErrGuestStorageFailure, got %v", err)
	}
}
