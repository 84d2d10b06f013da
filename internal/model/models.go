// Package model defines shared data structures for the YMM compatibility service.
package model

import "time"

// StoreCredential is the authorization needed to call one upstream store's
// catalog API. It is resolved per request and never persisted by the engine.
type StoreCredential struct {
	StoreID     string `json:"storeId"`
	AccessToken string `json:"-"`
	APIBaseURL  string `json:"apiBaseUrl"`
}

// Complete reports whether the credential can be used for an upstream call.
func (c StoreCredential) Complete() bool {
	return c.StoreID != "" && c.AccessToken != ""
}

// Store mirrors the stores table row used for credential lookup.
type Store struct {
	ID             string
	Hash           string
	AccessToken    string
	IsActive       bool
	LastAccessedAt *time.Time
}

// FieldKV is a single upstream custom field attached to a product.
type FieldKV struct {
	ID    int    `json:"id,omitempty"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Product is the subset of an upstream catalog product the engine reads.
type Product struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	SKU          string    `json:"sku"`
	Price        float64   `json:"price"`
	CustomFields []FieldKV `json:"custom_fields,omitempty"`
}

// YmmRecord is the normalized vehicle metadata of one catalog item. A nil
// field means the item carries no constraint for it.
type YmmRecord struct {
	ItemID    string  `json:"itemId"`
	Name      string  `json:"name,omitempty"`
	Make      *string `json:"make"`
	Model     *string `json:"model"`
	YearStart *int    `json:"yearStart"`
	YearEnd   *int    `json:"yearEnd"`
	MatchedBy string  `json:"matchedBy,omitempty"` // set on search results
}

// LocalVehicle is a vehicle range stored in the local database.
type LocalVehicle struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"storeId"`
	Make      string    `json:"make"`
	Model     string    `json:"model"`
	YearStart int       `json:"yearStart"`
	YearEnd   int       `json:"yearEnd"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CompatibilityQuery is the immutable input to matching.
type CompatibilityQuery struct {
	Year  int    `json:"year"`
	Make  string `json:"make"`
	Model string `json:"model"`
}

// YearRange is one distinct [start, end] pair seen for a make/model.
type YearRange struct {
	Start *int `json:"start"`
	End   *int `json:"end"`
}

// YearSummary is the answer to a year-range lookup. Years lists every year
// covered by a closed range; open-ended ranges appear only in Ranges.
type YearSummary struct {
	Ranges []YearRange `json:"ranges"`
	Years  []int       `json:"years"`
}

// SearchResult is one page of compatible items.
type SearchResult struct {
	Items     []YmmRecord `json:"items"`
	Total     int         `json:"total"`
	Page      int         `json:"page"`
	Limit     int         `json:"limit"`
	Truncated bool        `json:"truncated"`
}

// ProductPage is one upstream page of YMM-tagged products.
type ProductPage struct {
	Items       []YmmRecord `json:"items"`
	CurrentPage int         `json:"currentPage"`
	TotalPages  int         `json:"totalPages"`
	Total       int         `json:"total"`
}
