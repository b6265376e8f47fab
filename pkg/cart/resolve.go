package cart

import (
	"strconv"
	"strings"
)

// fieldRule is an ordered list of candidate keys tried against a decoded JSON
// object until one yields a usable value. The rule lists below are the whole
// vocabulary the normalizer understands; extending support for a new backend
// shape means appending a key here, not touching control flow.
type fieldRule []string

var (
	itemListPaths = [][]string{
		{"items"},
		{"cart", "items"},
		{"data", "items"},
		{"data", "cart", "items"},
		{"cart_items"},
		{"lines"},
	}

	cartIDPaths = [][]string{
		{"id"},
		{"cart_id"},
		{"cartId"},
		{"cart", "id"},
		{"data", "cart", "id"},
	}

	productIDRule    = fieldRule{"product_id", "productId", "productID", "sku", "id"}
	itemIDRule       = fieldRule{"id", "item_id", "itemId", "uuid"}
	priceRule        = fieldRule{"price", "unit_price", "amount"}
	nameRule         = fieldRule{"name", "title", "product_name"}
	imageRule        = fieldRule{"image", "image_url", "thumbnail", "picture"}
	installationRule = fieldRule{"installation_price", "installationPrice", "install_price"}
	quantityRule     = fieldRule{"quantity", "qty", "count"}

	subtotalRule = fieldRule{"subtotal", "sub_total", "items_total"}
	shippingRule = fieldRule{"shipping", "shipping_price", "delivery_price"}
	totalRule    = fieldRule{"total", "grand_total", "total_price"}

	// Keys a scalar price may hide under when sent as an object.
	nestedAmountKeys = []string{"current", "value", "amount"}
)

// str returns the first non-empty string candidate.
func (rule fieldRule) str(record map[string]any) string {
	for _, key := range rule {
		value, found := record[key]
		if !found {
			continue
		}
		text, ok := value.(string)
		if !ok {
			continue
		}
		trimmed := strings.TrimSpace(text)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// identifier returns the first candidate convertible to a non-empty
// identifier, accepting both strings and numeric ids.
func (rule fieldRule) identifier(record map[string]any) string {
	for _, key := range rule {
		value, found := record[key]
		if !found {
			continue
		}
		switch typed := value.(type) {
		case string:
			trimmed := strings.TrimSpace(typed)
			if trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatFloat(typed, 'f', -1, 64)
		case int:
			return strconv.Itoa(typed)
		case int64:
			return strconv.FormatInt(typed, 10)
		}
	}
	return ""
}

// number returns the first candidate coercible to a number.
func (rule fieldRule) number(record map[string]any) (float64, bool) {
	for _, key := range rule {
		value, found := record[key]
		if !found {
			continue
		}
		number, ok := coerceNumber(value)
		if ok {
			return number, true
		}
	}
	return 0, false
}

// coerceNumber converts the shapes the backend uses for monetary values: a
// plain number, a nested {current|value|amount} object, or a string with
// currency formatting.
func coerceNumber(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case string:
		return parseCurrencyString(typed)
	case map[string]any:
		for _, key := range nestedAmountKeys {
			nested, found := typed[key]
			if !found {
				continue
			}
			number, ok := coerceNumber(nested)
			if ok {
				return number, true
			}
		}
	}
	return 0, false
}

// parseCurrencyString strips currency symbols and grouping separators before
// parsing. "1.299,50" and "1,299.50" both resolve to 1299.5.
func parseCurrencyString(raw string) (float64, bool) {
	var builder strings.Builder
	for _, character := range raw {
		if character >= '0' && character <= '9' || character == '.' || character == ',' || character == '-' {
			builder.WriteRune(character)
		}
	}
	cleaned := builder.String()
	if cleaned == "" {
		return 0, false
	}
	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0 && lastComma > lastDot:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case lastDot >= 0 && lastComma >= 0:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case lastComma >= 0:
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}
	number, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return number, true
}

// lookupPath walks nested objects along a candidate path.
func lookupPath(root map[string]any, path []string) (any, bool) {
	var current any = root
	for _, segment := range path {
		record, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		next, found := record[segment]
		if !found {
			return nil, false
		}
		current = next
	}
	return current, true
}

// firstArray returns the first candidate path resolving to an array.
func firstArray(root map[string]any, paths [][]string) ([]any, bool) {
	for _, path := range paths {
		value, found := lookupPath(root, path)
		if !found {
			continue
		}
		array, ok := value.([]any)
		if ok {
			return array, true
		}
	}
	return nil, false
}

// firstIdentifier returns the first candidate path resolving to an identifier.
func firstIdentifier(root map[string]any, paths [][]string) string {
	for _, path := range paths {
		value, found := lookupPath(root, path)
		if !found {
			continue
		}
		switch typed := value.(type) {
		case string:
			trimmed := strings.TrimSpace(typed)
			if trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatFloat(typed, 'f', -1, 64)
		}
	}
	return ""
}

// firstNonEmpty returns the first non-blank candidate string.
func firstNonEmpty(candidates ...string) string {
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}

// firstPositive returns the first candidate greater than zero.
func firstPositive(candidates ...float64) float64 {
	for _, candidate := range candidates {
		if candidate > 0 {
			return candidate
		}
	}
	return 0
}
