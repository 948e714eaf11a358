package httphandler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/niksmo/smart-catalog/internal/core/domain"
	"github.com/niksmo/smart-catalog/internal/core/port"
	"github.com/niksmo/smart-catalog/internal/core/service"
)

// GET /api/products (200 OK, JSON array)
// GET /api/categories (200 OK, JSON array of strings)

type ProductsHandler struct {
	pLister port.ProductsLister
	cLister port.CategoriesLister
}

func RegisterProducts(
	mux *http.ServeMux, pLister port.ProductsLister, cLister port.CategoriesLister,
) {
	h := ProductsHandler{pLister, cLister}
	mux.HandleFunc("GET /api/products", h.GetProducts)
	mux.HandleFunc("GET /api/categories", h.GetCategories)
}

func (h ProductsHandler) GetProducts(w http.ResponseWriter, r *http.Request) {
	const op = "ProductsHandler.GetProducts"
	log := slog.With("op", op)

	ps, err := h.pLister.ListProducts(r.Context())
	if err != nil {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		log.Warn("failed to list products", "err", err)
		return
	}

	writeJSON(w, log, fromDomain(ps))
}

func (h ProductsHandler) GetCategories(w http.ResponseWriter, r *http.Request) {
	const op = "ProductsHandler.GetCategories"
	log := slog.With("op", op)

	cs, err := h.cLister.ListCategories(r.Context())
	if err != nil {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		log.Warn("failed to list categories", "err", err)
		return
	}

	writeJSON(w, log, cs)
}

// POST /api/smart_search JSON {"query", "category", "max_price", "use_ai"}
// (200 OK JSON array, 400 Bad request)

type SearchHandler struct {
	searcher port.SmartSearcher
}

func RegisterSearch(mux *http.ServeMux, searcher port.SmartSearcher) {
	h := SearchHandler{searcher}
	mux.HandleFunc("POST /api/smart_search", h.PostSmartSearch)
}

func (h SearchHandler) PostSmartSearch(w http.ResponseWriter, r *http.Request) {
	const op = "SearchHandler.PostSmartSearch"
	log := slog.With("op", op)

	var req SearchRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON data", http.StatusBadRequest)
		log.Warn("failed to parse JSON", "err", err)
		return
	}

	ps, err := h.searcher.SmartSearch(r.Context(), h.toDomain(req))
	if err != nil {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		log.Warn("failed to search", "err", err)
		return
	}

	writeJSON(w, log, fromDomain(ps))
}

func (h SearchHandler) toDomain(req SearchRequest) domain.SearchRequest {
	return domain.SearchRequest{
		Query:    req.Query,
		Category: req.Category,
		MaxPrice: service.ParseMaxPrice(req.MaxPrice),
		UseAI:    useAI(req.UseAI),
	}
}

// useAI treats an absent flag as true and any present value, null
// included, by truthiness.
func useAI(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return true
	}
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) != 0
	case map[string]any:
		return len(t) != 0
	}
	return true
}

func RegisterHealth(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func fromDomain(ps []domain.Product) []Product {
	out := make([]Product, len(ps))
	for i, p := range ps {
		out[i] = Product{
			Name:        p.Name,
			Category:    p.Category,
			Price:       p.Price,
			Rating:      p.Rating,
			Description: p.Description,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to write response body", "err", err)
	}
}
