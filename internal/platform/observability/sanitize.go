package observability

import (
	"strings"
	"unicode"
)

const defaultStringLimit = 256

// sanitizeString trims unwanted characters and limits string length to avoid log injection.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}

	cleaned := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		cleaned = append(cleaned, r)
	}
	if len(cleaned) > limit {
		cleaned = cleaned[:limit]
	}
	return string(cleaned)
}

// SanitizeRoute removes control characters and enforces length constraints on routes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod removes control characters in HTTP methods.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeClientID strips control characters and surrounding space from client identifiers.
func SanitizeClientID(id string) string {
	return strings.TrimSpace(sanitizeString(id, 64))
}

// SanitizeIdempotencyKey strips control characters from a client supplied idempotency key and caps it
// at 128 runes for logging.
func SanitizeIdempotencyKey(key string) string {
	return strings.TrimSpace(sanitizeString(key, 128))
}

// Storefront areas reported on request logs and spans.
const (
	AreaCatalog  = "catalog"
	AreaReviews  = "reviews"
	AreaCart     = "cart"
	AreaBalance  = "balance"
	AreaCheckout = "checkout"
	AreaOrders   = "orders"
	AreaHealth   = "health"
	AreaMetrics  = "metrics"
	AreaOther    = "other"
)

var storefrontAreas = map[string]string{
	"catalog":  AreaCatalog,
	"reviews":  AreaReviews,
	"cart":     AreaCart,
	"balance":  AreaBalance,
	"checkout": AreaCheckout,
	"orders":   AreaOrders,
	"healthz":  AreaHealth,
	"readyz":   AreaHealth,
	"metrics":  AreaMetrics,
}

// StorefrontArea maps a request path or route pattern to the storefront area that serves it, so
// "/api/v1/cart/items/{productID}" reports as "cart". The first recognised segment wins.
func StorefrontArea(path string) string {
	for _, segment := range strings.Split(path, "/") {
		if area, ok := storefrontAreas[strings.ToLower(segment)]; ok {
			return area
		}
	}
	return AreaOther
}
