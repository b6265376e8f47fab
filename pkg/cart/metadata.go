package cart

import (
	"strings"
	"sync"
)

// MetadataCache is a process-wide best-effort mapping from product id to the
// last known good attributes. Observations never regress a known field back
// to an empty or zero value.
type MetadataCache struct {
	mu      sync.RWMutex
	entries map[string]ProductMetadata
}

// NewMetadataCache returns an empty cache.
func NewMetadataCache() *MetadataCache {
	return &MetadataCache{entries: make(map[string]ProductMetadata)}
}

// Lookup returns the cached metadata for a product, if any.
func (cache *MetadataCache) Lookup(productID string) (ProductMetadata, bool) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()
	entry, found := cache.entries[strings.TrimSpace(productID)]
	return entry, found
}

// Observe merges freshly resolved attributes into the cache, keeping any
// existing known-good field when the observation is empty or zero.
func (cache *MetadataCache) Observe(observed ProductMetadata) {
	productID := strings.TrimSpace(observed.ProductID)
	if productID == "" {
		return
	}
	cache.mu.Lock()
	defer cache.mu.Unlock()
	entry := cache.entries[productID]
	entry.ProductID = productID
	if strings.TrimSpace(observed.Name) != "" && observed.Name != PlaceholderName {
		entry.Name = observed.Name
	}
	if observed.Price > 0 {
		entry.Price = observed.Price
	}
	if strings.TrimSpace(observed.Image) != "" && observed.Image != FallbackImage {
		entry.Image = observed.Image
	}
	if observed.InstallationPrice > 0 {
		entry.InstallationPrice = observed.InstallationPrice
	}
	cache.entries[productID] = entry
}

// Len reports the number of cached products.
func (cache *MetadataCache) Len() int {
	cache.mu.RLock()
	defer cache.mu.RUnlock()
	return len(cache.entries)
}
