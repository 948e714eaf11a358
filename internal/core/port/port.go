package port

import (
	"context"

	"github.com/niksmo/smart-catalog/internal/core/domain"
)

type ProductsLister interface {
	ListProducts(context.Context) ([]domain.Product, error)
}

type CategoriesLister interface {
	ListCategories(context.Context) ([]string, error)
}

type SmartSearcher interface {
	SmartSearch(context.Context, domain.SearchRequest) ([]domain.Product, error)
}

// A TextGenerator is the external LLM capability.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// An AISearcher narrows candidates using a [TextGenerator].
type AISearcher interface {
	Search(
		ctx context.Context, query string, candidates []domain.Product,
	) ([]domain.Product, error)
}

type SearchEventsProducer interface {
	ProduceSearchEvent(context.Context, domain.SearchEvent) error
}

type ProductsReader interface {
	ReadProducts(context.Context) ([]domain.Product, error)
}
