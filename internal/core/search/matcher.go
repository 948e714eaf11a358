package search

import (
	"strings"

	"github.com/niksmo/smart-catalog/internal/core/domain"
)

// Match filters candidates by the constraints extracted from query.
//
// When the query carries any structural constraint, structural filtering
// alone decides inclusion and free-text tokens are ignored. Otherwise
// every whitespace token of the query must occur in the product's
// name, description or category. The result keeps candidate order and
// holds no duplicate names.
func Match(query string, candidates []domain.Product) []domain.Product {
	q := strings.ToLower(strings.TrimSpace(query))
	c := Extract(q, categoriesOf(candidates))
	tokens := strings.Fields(q)
	bypassTokens := c.Structural()

	out := make([]domain.Product, 0, len(candidates))
	for _, p := range candidates {
		if !satisfies(p, c) {
			continue
		}
		if !bypassTokens && !containsAll(textBlob(p), tokens) {
			continue
		}
		out = append(out, p)
	}
	return Dedup(out)
}

func satisfies(p domain.Product, c domain.Constraints) bool {
	switch {
	case c.MaxPrice != nil && p.Price > *c.MaxPrice:
		return false
	case c.MinPrice != nil && p.Price < *c.MinPrice:
		return false
	case c.MinRating != nil && p.Rating < *c.MinRating:
		return false
	case c.Category != "" && !strings.EqualFold(p.Category, c.Category):
		return false
	}
	return true
}

func textBlob(p domain.Product) string {
	return strings.ToLower(p.Name + " " + p.Description + " " + p.Category)
}

func containsAll(blob string, tokens []string) bool {
	for _, t := range tokens {
		if !strings.Contains(blob, t) {
			return false
		}
	}
	return true
}

// Dedup drops products whose name was already seen, keeping the first.
func Dedup(ps []domain.Product) []domain.Product {
	seen := make(map[string]struct{}, len(ps))
	out := make([]domain.Product, 0, len(ps))
	for _, p := range ps {
		if _, ok := seen[p.Name]; ok {
			continue
		}
		seen[p.Name] = struct{}{}
		out = append(out, p)
	}
	return out
}
