// Package catalog holds the immutable product snapshot loaded at startup.
//
// A [Catalog] is never mutated after [New] returns, so it is safe for
// any number of concurrent readers without locking.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/niksmo/smart-catalog/internal/core/domain"
)

const maxRating = 5

type Catalog struct {
	products   []domain.Product
	categories []string
}

// New validates products and builds the snapshot. Any violation is
// reported as [domain.ErrConfig].
func New(products []domain.Product) (*Catalog, error) {
	const op = "catalog.New"

	seen := make(map[string]struct{}, len(products))
	categories := make(map[string]struct{})
	for i, p := range products {
		if err := validate(p); err != nil {
			return nil, fmt.Errorf(
				"%s: product #%d: %w: %w", op, i, domain.ErrConfig, err,
			)
		}
		if _, ok := seen[p.Name]; ok {
			return nil, fmt.Errorf(
				"%s: %w: duplicate product name %q", op, domain.ErrConfig, p.Name,
			)
		}
		seen[p.Name] = struct{}{}
		categories[p.Category] = struct{}{}
	}

	c := &Catalog{
		products:   slices.Clone(products),
		categories: make([]string, 0, len(categories)),
	}
	for name := range categories {
		c.categories = append(c.categories, name)
	}
	slices.Sort(c.categories)
	return c, nil
}

func validate(p domain.Product) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return errors.New("empty name")
	case math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price < 0:
		return fmt.Errorf("%q: invalid price %v", p.Name, p.Price)
	case math.IsNaN(p.Rating) || p.Rating < 0 || p.Rating > maxRating:
		return fmt.Errorf("%q: rating %v out of [0,%d]", p.Name, p.Rating, maxRating)
	}
	return nil
}

// All returns a copy of the whole catalog in load order.
func (c *Catalog) All() []domain.Product {
	return slices.Clone(c.products)
}

func (c *Catalog) Len() int {
	return len(c.products)
}

// Categories returns distinct category names sorted ascending.
func (c *Catalog) Categories() []string {
	return slices.Clone(c.categories)
}

// FilterByCategory keeps products whose category equals name, ignoring case.
func FilterByCategory(ps []domain.Product, name string) []domain.Product {
	return filter(ps, func(p domain.Product) bool {
		return strings.EqualFold(p.Category, name)
	})
}

// FilterByMaxPrice keeps products priced at or below maxPrice.
func FilterByMaxPrice(ps []domain.Product, maxPrice float64) []domain.Product {
	return filter(ps, func(p domain.Product) bool {
		return p.Price <= maxPrice
	})
}

func (c *Catalog) FilterByCategory(name string) []domain.Product {
	return FilterByCategory(c.products, name)
}

func (c *Catalog) FilterByMaxPrice(maxPrice float64) []domain.Product {
	return FilterByMaxPrice(c.products, maxPrice)
}

func filter(ps []domain.Product, keep func(domain.Product) bool) []domain.Product {
	out := make([]domain.Product, 0, len(ps))
	for _, p := range ps {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}
