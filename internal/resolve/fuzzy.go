// Package resolve turns product names typed on the command line into IDs.
package resolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Named is a product ID with its display name.
type Named struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Match is a fuzzy match result with score.
type Match struct {
	ID    int
	Name  string
	Score int
}

const maxCandidates = 5

var (
	ErrEmptyQuery = errors.New("empty search query")
	ErrEmptyItems = errors.New("no products to match against")
	ErrNoMatch    = errors.New("no product matched")
)

// AmbiguousError lists the best candidates when no single product wins.
type AmbiguousError struct {
	Query   string
	Matches []Match
}

func (e *AmbiguousError) Error() string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "ambiguous match for %q", e.Query)
	if len(e.Matches) > 0 {
		b.WriteString(", candidates:")
		for _, m := range e.Matches {
			_, _ = fmt.Fprintf(&b, "\n  %d: %s", m.ID, m.Name)
		}
	}
	return b.String()
}

type namedSourceLower []Named

func (s namedSourceLower) String(i int) string { return strings.ToLower(s[i].Name) }
func (s namedSourceLower) Len() int            { return len(s) }

// FuzzyMatch returns the ID of the item whose name best matches query.
// An exact case-insensitive name wins outright; otherwise the top fuzzy
// result wins unless the runner-up ties it, which is an *AmbiguousError.
// Several products sharing an exact name are ambiguous too.
func FuzzyMatch(query string, items []Named) (int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return 0, ErrEmptyQuery
	}
	if len(items) == 0 {
		return 0, ErrEmptyItems
	}

	if id, err := exactMatch(query, items); !errors.Is(err, ErrNoMatch) {
		return id, err
	}

	results := fuzzy.FindFrom(strings.ToLower(query), namedSourceLower(items))
	if len(results) == 0 {
		return 0, fmt.Errorf("%w for %q", ErrNoMatch, query)
	}
	if len(results) > 1 && results[0].Score == results[1].Score {
		return 0, &AmbiguousError{
			Query:   query,
			Matches: buildMatches(items, results, maxCandidates),
		}
	}
	return items[results[0].Index].ID, nil
}

// ExactMatch returns the ID of the one item named query, ignoring case.
// Several items with that name are an *AmbiguousError.
func ExactMatch(query string, items []Named) (int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return 0, ErrEmptyQuery
	}
	return exactMatch(query, items)
}

func exactMatch(query string, items []Named) (int, error) {
	var exact []Match
	for _, item := range items {
		if strings.EqualFold(item.Name, query) {
			exact = append(exact, Match{ID: item.ID, Name: item.Name})
		}
	}
	switch {
	case len(exact) == 1:
		return exact[0].ID, nil
	case len(exact) > 1:
		if len(exact) > maxCandidates {
			exact = exact[:maxCandidates]
		}
		return 0, &AmbiguousError{Query: query, Matches: exact}
	}
	return 0, fmt.Errorf("%w for %q", ErrNoMatch, query)
}

// FuzzyMatchAll returns up to limit matches ranked by score (best first).
func FuzzyMatchAll(query string, items []Named, limit int) []Match {
	query = strings.TrimSpace(query)
	if query == "" || len(items) == 0 || limit <= 0 {
		return nil
	}

	results := fuzzy.FindFrom(strings.ToLower(query), namedSourceLower(items))
	return buildMatches(items, results, limit)
}

func buildMatches(items []Named, results fuzzy.Matches, limit int) []Match {
	if len(results) == 0 || limit <= 0 {
		return nil
	}
	if len(results) > limit {
		results = results[:limit]
	}
	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			ID:    items[r.Index].ID,
			Name:  items[r.Index].Name,
			Score: r.Score,
		}
	}
	return matches
}
