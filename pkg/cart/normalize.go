package cart

import (
	"fmt"
	"strings"
)

// Normalizer converts arbitrary server cart payloads into canonical
// snapshots. It is pure with respect to its inputs except for one side
// effect: refreshing the metadata cache with newly resolved fields.
type Normalizer struct {
	cache     *MetadataCache
	reconcile ReconcileConfig
}

// NewNormalizer wires a Normalizer. A nil cache gets a private one.
func NewNormalizer(cache *MetadataCache, reconcile ReconcileConfig) *Normalizer {
	if cache == nil {
		cache = NewMetadataCache()
	}
	return &Normalizer{cache: cache, reconcile: reconcile}
}

// Normalize converts a decoded server payload into a snapshot using the
// default thresholds and the supplied cache.
func Normalize(payload map[string]any, previous []CartItem, cache *MetadataCache) Snapshot {
	return NewNormalizer(cache, DefaultReconcileConfig()).Normalize(payload, previous)
}

// Normalize locates the item list under the candidate paths, resolves every
// field through the payload, previous-items, and metadata-cache tiers, and
// derives reconciled totals. Unresolvable fields degrade to placeholders
// rather than failing the snapshot.
func (normalizer *Normalizer) Normalize(payload map[string]any, previous []CartItem) Snapshot {
	byItemID := make(map[string]CartItem, len(previous))
	byProductID := make(map[string]CartItem, len(previous))
	for _, item := range previous {
		if item.ID != "" {
			byItemID[item.ID] = item
		}
		if item.ProductID != "" {
			byProductID[item.ProductID] = item
		}
	}

	var items []CartItem
	rawItems, _ := firstArray(payload, itemListPaths)
	for index, rawItem := range rawItems {
		record, ok := rawItem.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, normalizer.normalizeItem(record, index, byItemID, byProductID))
	}

	totals := normalizer.reconcile.ComputeTotals(items, declaredTotals(payload))

	return Snapshot{
		CartID: firstIdentifier(payload, cartIDPaths),
		Items:  items,
		Totals: totals,
	}
}

func (normalizer *Normalizer) normalizeItem(record map[string]any, index int, byItemID map[string]CartItem, byProductID map[string]CartItem) CartItem {
	productID := productIDRule.identifier(record)
	if productID == "" {
		productID = fmt.Sprintf("%s-%d", syntheticIDPrefix, index)
	}
	itemID := itemIDRule.identifier(record)
	if itemID == "" {
		itemID = productID
	}

	var matched CartItem
	var hasMatch bool
	if candidate, found := byItemID[itemID]; found {
		matched, hasMatch = candidate, true
	} else if candidate, found := byProductID[productID]; found {
		matched, hasMatch = candidate, true
	}

	cached, _ := normalizer.cache.Lookup(productID)

	quantity := int64(1)
	if value, found := quantityRule.number(record); found {
		quantity = int64(value)
	}
	if quantity < 0 {
		quantity = 0
	}

	price, _ := priceRule.number(record)
	if price <= 0 {
		fallbackPrevious := 0.0
		if hasMatch {
			fallbackPrevious = matched.Price
		}
		price = firstPositive(fallbackPrevious, cached.Price)
	}

	previousName := ""
	previousImage := ""
	previousInstallation := 0.0
	if hasMatch {
		previousName = matched.Name
		previousImage = matched.Image
		previousInstallation = matched.InstallationPrice
	}
	if previousName == PlaceholderName {
		previousName = ""
	}
	if previousImage == FallbackImage {
		previousImage = ""
	}

	name := firstNonEmpty(nameRule.str(record), previousName, cached.Name)
	if name == "" {
		name = PlaceholderName
	}
	image := firstNonEmpty(imageRule.str(record), previousImage, cached.Image)
	if image == "" {
		image = FallbackImage
	}

	installation, hasInstallation := installationRule.number(record)
	if !hasInstallation || installation <= 0 {
		installation = firstPositive(previousInstallation, cached.InstallationPrice)
	}
	if installation < 0 {
		installation = 0
	}

	if !strings.HasPrefix(productID, syntheticIDPrefix+"-") {
		normalizer.cache.Observe(ProductMetadata{
			ProductID:         productID,
			Name:              name,
			Price:             price,
			Image:             image,
			InstallationPrice: installation,
		})
	}

	return CartItem{
		ID:                itemID,
		ProductID:         productID,
		Quantity:          quantity,
		Price:             price,
		Name:              name,
		Image:             image,
		InstallationPrice: installation,
		Raw:               record,
	}
}

// declaredTotals pulls server-declared monetary values from the payload root
// or the nested cart object so the calculator can reconcile them.
func declaredTotals(payload map[string]any) TotalsOverrides {
	scopes := []map[string]any{payload}
	for _, path := range [][]string{{"cart"}, {"data"}, {"data", "cart"}, {"totals"}, {"cart", "totals"}} {
		value, found := lookupPath(payload, path)
		if !found {
			continue
		}
		record, ok := value.(map[string]any)
		if ok {
			scopes = append(scopes, record)
		}
	}

	var overrides TotalsOverrides
	for _, scope := range scopes {
		if overrides.Subtotal == nil {
			if value, found := subtotalRule.number(scope); found {
				overrides.Subtotal = &value
			}
		}
		if overrides.Shipping == nil {
			if value, found := shippingRule.number(scope); found {
				overrides.Shipping = &value
			}
		}
		if overrides.Total == nil {
			if value, found := totalRule.number(scope); found {
				overrides.Total = &value
			}
		}
	}
	return overrides
}
