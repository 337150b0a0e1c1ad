package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/openmarket/openmarket-cli/internal/api"
	"github.com/openmarket/openmarket-cli/internal/cache"
)

// ProductLister is satisfied by api.ProductsService.
type ProductLister interface {
	ListAll(ctx context.Context, perPage, maxPages int) ([]api.Product, error)
}

// Index is the cached name table used to resolve product arguments.
type Index struct {
	Lister   ProductLister
	Store    *cache.Store // optional
	PerPage  int
	MaxPages int
}

// ProductID accepts a numeric ID, "#12", or a product name. Names are
// matched against the cached index first and against a fresh listing
// when the cache misses or does not contain a match. A listing cut off at
// MaxPages is neither cached nor fuzzy matched: only an exact name resolves.
func (ix Index) ProductID(ctx context.Context, arg string) (int, error) {
	arg = strings.TrimSpace(arg)
	if id, ok := ParseID(arg); ok {
		return id, nil
	}
	if arg == "" {
		return 0, ErrEmptyQuery
	}

	var cached []Named
	if ix.Store != nil && ix.Store.Get(&cached) && len(cached) > 0 {
		id, err := FuzzyMatch(arg, cached)
		if err == nil {
			return id, nil
		}
		var ambiguous *AmbiguousError
		if errors.As(err, &ambiguous) {
			return 0, err
		}
		slog.Debug("product index miss, refreshing", "query", arg)
	}

	items, complete, err := ix.refresh(ctx)
	if err != nil {
		return 0, err
	}
	if !complete {
		id, err := ExactMatch(arg, items)
		if errors.Is(err, ErrNoMatch) {
			return 0, fmt.Errorf("%w (listing stopped at %d pages; pass the product ID or raise max_pages)", err, ix.MaxPages)
		}
		return id, err
	}
	return FuzzyMatch(arg, items)
}

// refresh lists products and caches the name table when the listing
// reached the last page.
func (ix Index) refresh(ctx context.Context) ([]Named, bool, error) {
	products, err := ix.Lister.ListAll(ctx, ix.PerPage, ix.MaxPages)
	complete := err == nil
	if err != nil && !errors.Is(err, api.ErrPageLimitReached) {
		return nil, false, err
	}
	items := FromProducts(products)
	if complete && ix.Store != nil {
		ix.Store.Put(items)
	}
	return items, complete, nil
}

// FromProducts builds the name table for products.
func FromProducts(products []api.Product) []Named {
	items := make([]Named, 0, len(products))
	for _, p := range products {
		items = append(items, Named{ID: p.ID, Name: p.Name})
	}
	return items
}

// ParseID reports whether s is a positive product ID, optionally prefixed by '#'.
func ParseID(s string) (int, bool) {
	id, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(s), "#"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
