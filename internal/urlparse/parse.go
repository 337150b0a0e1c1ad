// Package urlparse extracts product references from OpenMarket API URLs.
package urlparse

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
)

// ParsedURL is a product URL split into its host and product ID.
type ParsedURL struct {
	BaseURL   string
	ProductID int // 0 for the listing URL
}

// urlPattern matches /api/products and /api/products/{id}[/...].
var urlPattern = regexp.MustCompile(`^/api/products(?:/(\d+)(?:/.*)?)?/?$`)

// Parse extracts the product ID from a URL such as
// https://openmarket.yagom-academy.kr/api/products/42.
func Parse(rawURL string) (*ParsedURL, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, fmt.Errorf("invalid URL: missing scheme (expected https://...)")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid URL scheme %q: expected http or https", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid URL: missing host")
	}

	matches := urlPattern.FindStringSubmatch(parsed.Path)
	if matches == nil {
		return nil, fmt.Errorf("not a product URL: expected /api/products[/{id}]")
	}

	var id int
	if matches[1] != "" {
		id, err = strconv.Atoi(matches[1])
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid product ID %q", matches[1])
		}
	}

	return &ParsedURL{
		BaseURL:   parsed.Scheme + "://" + parsed.Host,
		ProductID: id,
	}, nil
}

// HasProductID returns true if the URL names a single product.
func (p *ParsedURL) HasProductID() bool {
	return p.ProductID > 0
}

// ProductID returns the product ID in rawURL, or false when rawURL is not a
// single-product URL.
func ProductID(rawURL string) (int, bool) {
	p, err := Parse(rawURL)
	if err != nil || !p.HasProductID() {
		return 0, false
	}
	return p.ProductID, true
}
