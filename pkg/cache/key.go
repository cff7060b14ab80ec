package cache

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// keyNamespace prefixes every key written by this package.
const keyNamespace = "storefront"

// Kind tags the entity type stored under a key.
type Kind string

const (
	// KindProfile is the store profile, one entry per store.
	KindProfile Kind = "profile"

	// KindProducts is one page of the store's products.
	KindProducts Kind = "products"

	// KindCategories is the full category list, one entry per store.
	KindCategories Kind = "categories"

	// KindReviews is one page of the store's reviews.
	KindReviews Kind = "reviews"
)

// Kinds lists every entity kind in a stable order.
var Kinds = []Kind{KindProfile, KindProducts, KindCategories, KindReviews}

// TTL policy per kind. Fixed, not configurable per call.
const (
	ProfileTTL    = 24 * time.Hour
	ProductsTTL   = 1 * time.Hour
	CategoriesTTL = 1 * time.Hour
	ReviewsTTL    = 6 * time.Hour
)

// TTLFor returns the time-to-live for entries of the given kind.
// Unknown kinds get zero, which NewMetadata rejects.
func TTLFor(kind Kind) time.Duration {
	switch kind {
	case KindProfile:
		return ProfileTTL
	case KindProducts:
		return ProductsTTL
	case KindCategories:
		return CategoriesTTL
	case KindReviews:
		return ReviewsTTL
	default:
		return 0
	}
}

// Paged reports whether entries of this kind are stored per page.
func (k Kind) Paged() bool {
	return k == KindProducts || k == KindReviews
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return TTLFor(k) > 0
}

// CacheKey identifies one cached entry.
type CacheKey struct {
	Kind    Kind
	StoreID string

	// Page is only part of the identity for paged kinds and ignored otherwise.
	Page int
}

// ProfileKey returns the key of a store's profile.
func ProfileKey(storeID string) CacheKey {
	return CacheKey{Kind: KindProfile, StoreID: storeID}
}

// ProductsKey returns the key of one page of a store's products.
func ProductsKey(storeID string, page int) CacheKey {
	return CacheKey{Kind: KindProducts, StoreID: storeID, Page: page}
}

// CategoriesKey returns the key of a store's categories.
func CategoriesKey(storeID string) CacheKey {
	return CacheKey{Kind: KindCategories, StoreID: storeID}
}

// ReviewsKey returns the key of one page of a store's reviews.
func ReviewsKey(storeID string, page int) CacheKey {
	return CacheKey{Kind: KindReviews, StoreID: storeID, Page: page}
}

// String generates a deterministic cache key string.
// Format: storefront:store:<escaped store id>:<kind>[:page=<n>]
//
// Example:
//
//	storefront:store:omega:products:page=2
//
// The store id is query-escaped so it never contains ':' and distinct
// ids never share a prefix boundary.
func (k CacheKey) String() string {
	var b strings.Builder
	b.WriteString(StorePrefix(k.StoreID))
	b.WriteString(string(k.Kind))
	if k.Kind.Paged() {
		fmt.Fprintf(&b, ":page=%d", k.Page)
	}
	return b.String()
}

// StorePrefix returns the prefix shared by every key of one store and by
// no key of any other store.
func StorePrefix(storeID string) string {
	return keyNamespace + ":store:" + url.QueryEscape(storeID) + ":"
}
