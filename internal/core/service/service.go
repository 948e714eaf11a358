package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/niksmo/smart-catalog/internal/core/catalog"
	"github.com/niksmo/smart-catalog/internal/core/domain"
	"github.com/niksmo/smart-catalog/internal/core/port"
	"github.com/niksmo/smart-catalog/internal/core/search"
)

var _ port.ProductsLister = (*Service)(nil)
var _ port.CategoriesLister = (*Service)(nil)
var _ port.SmartSearcher = (*Service)(nil)

const (
	DefaultAITimeout    = 10 * time.Second
	DefaultEventTimeout = 5 * time.Second
)

type Opt func(*Service)

// AISearcherOpt enables the AI path. Every provider call is bounded by
// timeout; a non-positive timeout falls back to [DefaultAITimeout].
func AISearcherOpt(s port.AISearcher, timeout time.Duration) Opt {
	return func(svc *Service) {
		svc.aiSearcher = s
		if timeout <= 0 {
			timeout = DefaultAITimeout
		}
		svc.aiTimeout = timeout
	}
}

// SearchEventsProducerOpt publishes an event per smart search in the
// background. Each publish is detached from the request and bounded by
// timeout; a non-positive timeout falls back to [DefaultEventTimeout].
func SearchEventsProducerOpt(p port.SearchEventsProducer, timeout time.Duration) Opt {
	return func(svc *Service) {
		if timeout <= 0 {
			timeout = DefaultEventTimeout
		}
		svc.events = &eventsPublisher{producer: p, timeout: timeout}
	}
}

// Service is the state-free search orchestrator over a read-only catalog.
type Service struct {
	catalog    *catalog.Catalog
	aiSearcher port.AISearcher
	aiTimeout  time.Duration
	events     *eventsPublisher
}

func New(c *catalog.Catalog, opts ...Opt) Service {
	if c == nil {
		panic("service.New: catalog is nil") // develop mistake
	}
	s := Service{catalog: c, aiTimeout: DefaultAITimeout}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s Service) AIEnabled() bool {
	return s.aiSearcher != nil
}

func (s Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	const op = "Service.ListProducts"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.catalog.All(), nil
}

func (s Service) ListCategories(ctx context.Context) ([]string, error) {
	const op = "Service.ListCategories"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.catalog.Categories(), nil
}

// SmartSearch narrows the catalog by the request fields and query text.
//
// Provider failures never surface: the local matcher answers instead.
// The only returned error is a done context at entry.
func (s Service) SmartSearch(
	ctx context.Context, req domain.SearchRequest,
) ([]domain.Product, error) {
	const op = "Service.SmartSearch"
	log := slog.With("op", op)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	start := time.Now()
	query := strings.TrimSpace(req.Query)
	candidates := s.preFilter(req)

	evt := domain.SearchEvent{
		Query:    query,
		Category: strings.TrimSpace(req.Category),
		MaxPrice: req.MaxPrice,
		UseAI:    req.UseAI,
		At:       start,
	}

	var result []domain.Product
	switch {
	case query == "":
		evt.Path = domain.SearchPathCatalog
		result = candidates
	case req.UseAI && s.AIEnabled():
		aiResult, err := s.aiSearch(ctx, query, candidates)
		if err == nil {
			evt.Path = domain.SearchPathAI
			result = aiResult
			break
		}
		log.Warn("falling back to local search", "err", err)
		evt.Fallback = true
		fallthrough
	default:
		evt.Path = domain.SearchPathLocal
		result = search.Match(query, candidates)
	}

	evt.Results = len(result)
	evt.Elapsed = time.Since(start)
	log.Info("search completed",
		"path", evt.Path,
		"fallback", evt.Fallback,
		"candidates", len(candidates),
		"results", evt.Results,
		"elapsed", evt.Elapsed,
	)
	s.events.publish(ctx, evt)
	return result, nil
}

func (s Service) preFilter(req domain.SearchRequest) []domain.Product {
	candidates := s.catalog.All()
	if category := strings.TrimSpace(req.Category); category != "" {
		candidates = catalog.FilterByCategory(candidates, category)
	}
	if req.MaxPrice != nil {
		candidates = catalog.FilterByMaxPrice(candidates, *req.MaxPrice)
	}
	return candidates
}

// aiSearch runs the provider path and re-applies the local matcher to its
// output. The second pass is mandatory.
func (s Service) aiSearch(
	ctx context.Context, query string, candidates []domain.Product,
) ([]domain.Product, error) {
	const op = "Service.aiSearch"
	log := slog.With("op", op)

	aiCtx, cancel := context.WithTimeout(ctx, s.aiTimeout)
	defer cancel()

	start := time.Now()
	found, err := s.aiSearcher.Search(aiCtx, query, candidates)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	found = restrictTo(found, candidates)
	log.Debug("provider filtering done",
		"elapsed", time.Since(start), "products", len(found))

	result := search.Match(query, found)
	log.Debug("local re-filtering done", "products", len(result))
	return result, nil
}

// restrictTo keeps items whose name belongs to candidates.
func restrictTo(items, candidates []domain.Product) []domain.Product {
	names := make(map[string]struct{}, len(candidates))
	for _, p := range candidates {
		names[p.Name] = struct{}{}
	}
	out := make([]domain.Product, 0, len(items))
	for _, p := range items {
		if _, ok := names[p.Name]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Close waits for in-flight search events until ctx is done.
func (s Service) Close(ctx context.Context) {
	const op = "Service.Close"
	log := slog.With("op", op)

	if err := s.events.wait(ctx); err != nil {
		log.Warn("search events are left unpublished", "err", err)
		return
	}
	log.Info("search events are flushed")
}

type eventsPublisher struct {
	producer port.SearchEventsProducer
	timeout  time.Duration
	wg       sync.WaitGroup
}

// publish hands evt to the producer on its own goroutine. A nil publisher
// drops events.
func (p *eventsPublisher) publish(ctx context.Context, evt domain.SearchEvent) {
	if p == nil {
		return
	}
	p.wg.Add(1)
	go func() {
		const op = "Service.publishEvent"
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()

		if err := p.producer.ProduceSearchEvent(ctx, evt); err != nil {
			slog.Error("failed to produce search event", "op", op, "err", err)
		}
	}()
}

func (p *eventsPublisher) wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ParseMaxPrice converts a loosely typed request value into a price
// ceiling. Anything that is not a finite number, or a string holding one,
// yields nil. A negative ceiling is kept and matches nothing.
func ParseMaxPrice(raw any) *float64 {
	var v float64
	switch t := raw.(type) {
	case float64:
		v = t
	case int:
		v = float64(t)
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return nil
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil
		}
		v = f
	default:
		return nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
