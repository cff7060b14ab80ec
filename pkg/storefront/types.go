// Package storefront defines the store data payloads returned by the
// storefront REST API and persisted by the cache.
package storefront

// DefaultPageSize is the number of products or reviews the API returns per page.
const DefaultPageSize = 20

// StoreProfile is the public profile of a store.
type StoreProfile struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	LogoURL      string   `json:"logoUrl,omitempty"`
	BannerURL    string   `json:"bannerUrl,omitempty"`
	Location     string   `json:"location,omitempty"`
	PhoneNumber  string   `json:"phoneNumber,omitempty"`
	Verified     bool     `json:"verified"`
	Rating       float64  `json:"rating"`
	ReviewCount  int      `json:"reviewCount"`
	ProductCount int      `json:"productCount"`
	Followers    int      `json:"followers"`
	SocialLinks  []string `json:"socialLinks,omitempty"`
	CreatedAt    int64    `json:"createdAt,omitempty"`
}

// MiniProduct is the condensed product representation used in listings.
type MiniProduct struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Slug          string  `json:"slug,omitempty"`
	Price         float64 `json:"price"`
	OriginalPrice float64 `json:"originalPrice,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	ImageURL      string  `json:"imageUrl,omitempty"`
	InStock       bool    `json:"inStock"`
	CategoryID    string  `json:"categoryId,omitempty"`
}

// StoreCategory is a product category defined by a store.
type StoreCategory struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ImageURL     string `json:"imageUrl,omitempty"`
	ProductCount int    `json:"productCount"`
}

// Review is a single customer review of a store.
type Review struct {
	ID         string `json:"id"`
	AuthorName string `json:"authorName"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment,omitempty"`
	ProductID  string `json:"productId,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
}

// ReviewStats summarizes the ratings of a store.
type ReviewStats struct {
	AverageRating float64     `json:"averageRating"`
	TotalReviews  int         `json:"totalReviews"`
	Distribution  map[int]int `json:"distribution,omitempty"`
}

// ProductPage is one page of a store's product listing.
type ProductPage struct {
	Products      []MiniProduct `json:"products"`
	Page          int           `json:"page"`
	TotalPages    int           `json:"totalPages"`
	TotalProducts int           `json:"totalProducts"`
	HasNextPage   bool          `json:"hasNextPage"`
}

// CategoryList is the full category list of a store.
type CategoryList struct {
	Categories []StoreCategory `json:"categories"`
	TotalItems int             `json:"totalItems"`
}

// ReviewPage is one page of a store's reviews.
type ReviewPage struct {
	Reviews      []Review    `json:"reviews"`
	Stats        ReviewStats `json:"stats"`
	Page         int         `json:"page"`
	TotalPages   int         `json:"totalPages"`
	TotalReviews int         `json:"totalReviews"`
	HasNextPage  bool        `json:"hasNextPage"`
}
