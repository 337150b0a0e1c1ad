package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is the price currency of a product.
type Currency string

const (
	KRW Currency = "KRW"
	USD Currency = "USD"
)

// Currencies lists every currency the backend accepts.
var Currencies = []string{string(KRW), string(USD)}

// ParseCurrency accepts a currency code in any case.
func ParseCurrency(s string) (Currency, error) {
	switch c := Currency(strings.ToUpper(strings.TrimSpace(s))); c {
	case KRW, USD:
		return c, nil
	default:
		return "", NewValidationError("currency", s, Currencies)
	}
}

// Page is one page of the product listing.
type Page struct {
	PageNo       int       `json:"pageNo"`
	ItemsPerPage int       `json:"itemsPerPage"`
	TotalCount   int       `json:"totalCount"`
	Offset       int       `json:"offset"`
	Limit        int       `json:"limit"`
	Pages        []Product `json:"pages"`
	LastPage     int       `json:"lastPage"`
	HasNext      bool      `json:"hasNext"`
	HasPrev      bool      `json:"hasPrev"`
}

// Product is a listing as returned by the list and detail endpoints.
// Images and Vendors are only populated by detail.
type Product struct {
	ID              int             `json:"id"`
	VendorID        int             `json:"vendor_id"`
	VendorName      string          `json:"vendorName,omitempty"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Thumbnail       string          `json:"thumbnail"`
	Currency        Currency        `json:"currency"`
	Price           decimal.Decimal `json:"price"`
	BargainPrice    decimal.Decimal `json:"bargain_price"`
	DiscountedPrice decimal.Decimal `json:"discounted_price"`
	Stock           int             `json:"stock"`
	CreatedAt       string          `json:"created_at"`
	IssuedAt        string          `json:"issued_at"`
	Images          []ProductImage  `json:"images,omitempty"`
	Vendors         *Vendor         `json:"vendors,omitempty"`
}

// ProductImage is one uploaded image of a product.
type ProductImage struct {
	ID           int    `json:"id"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
	Succeed      bool   `json:"succeed"`
	IssuedAt     string `json:"issued_at"`
}

// Vendor identifies the seller of a product.
type Vendor struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ProductParams are the scalar fields sent on create and update.
type ProductParams struct {
	Name            string
	Description     string
	Price           decimal.Decimal
	Currency        Currency
	DiscountedPrice decimal.Decimal
	Stock           uint
	Secret          string
}

// ParamsFromProduct seeds update params with the current values of p.
func ParamsFromProduct(p *Product) ProductParams {
	return ProductParams{
		Name:            p.Name,
		Description:     p.Description,
		Price:           p.Price,
		Currency:        p.Currency,
		DiscountedPrice: p.DiscountedPrice,
		Stock:           uint(max(p.Stock, 0)),
	}
}

// Validate checks the fields the backend rejects without a useful message.
func (p ProductParams) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return NewStructuredErrorWithContext(ErrValidation, "product name is required", map[string]any{"field": "name"})
	}
	if _, err := ParseCurrency(string(p.Currency)); err != nil {
		return err
	}
	if p.Price.IsNegative() {
		return NewStructuredErrorWithContext(ErrValidation, "price must not be negative", map[string]any{"field": "price"})
	}
	if p.DiscountedPrice.IsNegative() || p.DiscountedPrice.GreaterThan(p.Price) {
		return NewStructuredErrorWithContext(ErrValidation,
			fmt.Sprintf("discounted price must be between 0 and %s", p.Price.String()),
			map[string]any{"field": "discountedPrice"})
	}
	return nil
}

// Map returns the params keyed by backend field name. Every key is present.
func (p ProductParams) Map() map[string]any {
	return map[string]any{
		"name":            p.Name,
		"description":     p.Description,
		"price":           json.Number(p.Price.String()),
		"currency":        string(p.Currency),
		"discountedPrice": json.Number(p.DiscountedPrice.String()),
		"stock":           p.Stock,
		"secret":          p.Secret,
	}
}

// MarshalJSON encodes Map without HTML escaping, so "<b>" and "&" in names
// and descriptions are sent as typed.
func (p ProductParams) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p.Map()); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
