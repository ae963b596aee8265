package models

import (
	"time"
)

// RawProduct is the possibly-partial record emitted by a site adapter. Every
// text field may be empty; attributes may still contain placeholder entries.
// Raw products are produced fresh per extraction and never persisted as-is.
type RawProduct struct {
	Title            string                `json:"title"`
	Price            string                `json:"price"`
	SKU              string                `json:"sku"`
	Description      string                `json:"description"`
	ShortDescription string                `json:"short_description"`
	StockText        string                `json:"stock_text"`
	Category         string                `json:"category"`
	Brand            string                `json:"brand"`
	Images           []string              `json:"images"`
	Attributes       map[string][]string   `json:"attributes"`
	Variations       []RawVariation        `json:"variations"`
}

// RawVariation is one purchasable option combination as scraped, with
// assignments keyed by raw (possibly un-prefixed) attribute name.
type RawVariation struct {
	SKU         string            `json:"sku"`
	Price       string            `json:"price"`
	InStock     bool              `json:"in_stock"`
	Image       string            `json:"image"`
	Assignments map[string]string `json:"assignments"`
}

type ProductType string

const (
	ProductSimple   ProductType = "simple"
	ProductVariable ProductType = "variable"
)

type StockStatus string

const (
	StockIn  StockStatus = "instock"
	StockOut StockStatus = "outofstock"
)

// NormalizedProduct is the canonical record handed to serialization. All
// fields are defaulted, attribute values are cleaned of placeholders, and the
// parent SKU never collides with a variation SKU.
type NormalizedProduct struct {
	ID               string                `json:"id"`
	SKU              string                `json:"sku"`
	Title            string                `json:"title"`
	Slug             string                `json:"slug"`
	Price            string                `json:"price"`
	Description      string                `json:"description"`
	ShortDescription string                `json:"short_description"`
	Stock            StockStatus           `json:"stock"`
	Category         string                `json:"category"`
	Brand            string                `json:"brand"`
	Images           []string              `json:"images"`
	Attributes       map[string][]string   `json:"attributes"`
	ProductType      ProductType           `json:"product_type"`
	Variations       []NormalizedVariation `json:"variations"`
	SourceURL        string                `json:"source_url"`
	Confidence       float64               `json:"confidence"`
	NormalizedAt     time.Time             `json:"normalized_at"`
}

type NormalizedVariation struct {
	SKU         string            `json:"sku"`
	Price       string            `json:"price"`
	Stock       StockStatus       `json:"stock"`
	Image       string            `json:"image"`
	Assignments map[string]string `json:"assignments"`
}
