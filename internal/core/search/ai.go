package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/niksmo/smart-catalog/internal/core/domain"
	"github.com/niksmo/smart-catalog/internal/core/port"
)

var _ port.AISearcher = (*AISearcher)(nil)

var (
	fenceOpenRe  = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	fenceCloseRe = regexp.MustCompile("\\s*```$")
)

const promptTemplate = `
You are a strict product filtering assistant.

You are given this JSON list of products (each has "name", "category", "price", "rating", "description"):

%s

User query: %q

INSTRUCTIONS:
- Return ONLY the products from the provided list that EXACTLY match ALL constraints in the query.
- Constraints include price (e.g., "under $30", "over $50"), category, and rating filters.
- Do NOT invent new products or alter any product details.
- Return ONLY a valid JSON array with the matching products.
- If no products match, return an empty JSON array.

Output the JSON array only, with no extra text or explanation.
`

type promptProduct struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Rating      float64 `json:"rating"`
	Description string  `json:"description"`
}

type responseItem struct {
	Name *string `json:"name"`
}

// AISearcher asks a [port.TextGenerator] to pick matching candidates.
//
// Returned products are always the candidates' own records: anything the
// provider names that is not a candidate is dropped. The result is not
// deduplicated and local constraints are not applied.
type AISearcher struct {
	gen port.TextGenerator
}

func NewAISearcher(gen port.TextGenerator) *AISearcher {
	if gen == nil {
		panic("search.NewAISearcher: text generator is nil") // develop mistake
	}
	return &AISearcher{gen}
}

func (s *AISearcher) Search(
	ctx context.Context, query string, candidates []domain.Product,
) ([]domain.Product, error) {
	const op = "AISearcher.Search"
	log := slog.With("op", op)

	prompt, err := BuildPrompt(query, candidates)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, domain.ErrProvider, err)
	}

	start := time.Now()
	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, domain.ErrProvider, err)
	}
	log.Debug("provider responded",
		"elapsed", time.Since(start), "response", text)

	names, err := ParseResponse(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, domain.ErrProvider, err)
	}

	result := pickCandidates(names, candidates)
	log.Debug("validated provider result",
		"returned", len(names), "valid", len(result))
	return result, nil
}

// BuildPrompt renders the filtering instructions with candidates as JSON.
func BuildPrompt(query string, candidates []domain.Product) (string, error) {
	pps := make([]promptProduct, len(candidates))
	for i, p := range candidates {
		pps[i] = promptProduct{
			Name:        p.Name,
			Category:    p.Category,
			Price:       p.Price,
			Rating:      p.Rating,
			Description: p.Description,
		}
	}
	b, err := json.Marshal(pps)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(promptTemplate, b, query), nil
}

// ParseResponse extracts product names from a provider response holding a
// JSON array, optionally wrapped in a markdown code fence. Array items
// without a string "name" field are skipped.
func ParseResponse(text string) ([]string, error) {
	text = StripFences(text)
	if text == "" {
		return nil, errors.New("empty response")
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, fmt.Errorf("response is not a JSON array: %w", err)
	}

	names := make([]string, 0, len(items))
	for _, raw := range items {
		var item responseItem
		if err := json.Unmarshal(raw, &item); err != nil || item.Name == nil {
			continue
		}
		names = append(names, *item.Name)
	}
	return names, nil
}

func StripFences(text string) string {
	text = strings.TrimSpace(text)
	text = fenceOpenRe.ReplaceAllString(text, "")
	text = fenceCloseRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func pickCandidates(names []string, candidates []domain.Product) []domain.Product {
	byName := make(map[string]domain.Product, len(candidates))
	for _, p := range candidates {
		if _, ok := byName[p.Name]; !ok {
			byName[p.Name] = p
		}
	}

	out := make([]domain.Product, 0, len(names))
	for _, name := range names {
		if p, ok := byName[name]; ok {
			out = append(out, p)
		}
	}
	return out
}
