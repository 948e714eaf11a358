package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/niksmo/smart-catalog/internal/core/catalog"
	"github.com/niksmo/smart-catalog/internal/core/domain"
	"github.com/niksmo/smart-catalog/internal/core/search"
	"github.com/niksmo/smart-catalog/internal/core/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTextGenerator struct {
	mock.Mock
}

func (g *MockTextGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := g.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type MockAISearcher struct {
	mock.Mock
}

func (s *MockAISearcher) Search(
	ctx context.Context, query string, candidates []domain.Product,
) ([]domain.Product, error) {
	args := s.Called(ctx, query, candidates)
	ps, _ := args.Get(0).([]domain.Product)
	return ps, args.Error(1)
}

type MockSearchEventsProducer struct {
	mock.Mock
}

func (p *MockSearchEventsProducer) ProduceSearchEvent(
	ctx context.Context, evt domain.SearchEvent,
) error {
	args := p.Called(ctx, evt)
	return args.Error(0)
}

func scenarioCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]domain.Product{
		{Name: "A", Category: "Electronics", Price: 45, Rating: 4.2, Description: "fast laptop"},
		{Name: "B", Category: "Electronics", Price: 80, Rating: 3.0, Description: "slow laptop"},
		{Name: "C", Category: "Kitchen", Price: 20, Rating: 4.9, Description: "steel kettle"},
	})
	require.NoError(t, err)
	return c
}

func names(ps []domain.Product) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}

func price(v float64) *float64 {
	return &v
}

func TestSmartSearchLocal(t *testing.T) {
	svc := service.New(scenarioCatalog(t))

	tests := []struct {
		name string
		req  domain.SearchRequest
		want []string
	}{
		{
			name: "EmptyQueryReturnsAll",
			req:  domain.SearchRequest{UseAI: true},
			want: []string{"A", "B", "C"},
		},
		{
			name: "EmptyQueryWithCategory",
			req:  domain.SearchRequest{Category: " electronics "},
			want: []string{"A", "B"},
		},
		{
			name: "EmptyQueryWithMaxPrice",
			req:  domain.SearchRequest{MaxPrice: price(45)},
			want: []string{"A", "C"},
		},
		{
			name: "CategoryAndPriceInQuery",
			req:  domain.SearchRequest{Query: "electronics under $50"},
			want: []string{"A"},
		},
		{
			name: "HighlyRated",
			req:  domain.SearchRequest{Query: "highly rated laptop"},
			want: []string{"A", "C"},
		},
		{
			name: "HighlyRatedWithinCategory",
			req:  domain.SearchRequest{Query: "highly rated laptop", Category: "Electronics"},
			want: []string{"A"},
		},
		{
			name: "Tokens",
			req:  domain.SearchRequest{Query: "kettle"},
			want: []string{"C"},
		},
		{
			name: "PreFilterExcludesBeforeMatching",
			req:  domain.SearchRequest{Query: "laptop", MaxPrice: price(50)},
			want: []string{"A"},
		},
		{
			name: "AIRequestedButNotConfigured",
			req:  domain.SearchRequest{Query: "laptop", UseAI: true},
			want: []string{"A", "B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.SmartSearch(t.Context(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestSmartSearchAI(t *testing.T) {
	t.Run("ResultIsLocallyRefiltered", func(t *testing.T) {
		gen := new(MockTextGenerator)
		gen.On("Generate", mock.Anything, mock.Anything).
			Return(`[{"name":"A"},{"name":"B"}]`, nil)
		svc := service.New(scenarioCatalog(t),
			service.AISearcherOpt(search.NewAISearcher(gen), time.Second))

		got, err := svc.SmartSearch(t.Context(), domain.SearchRequest{
			Query: "electronics under $50", UseAI: true,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, names(got))
		gen.AssertNumberOfCalls(t, "Generate", 1)
	})

	t.Run("HallucinatedProductDiscarded", func(t *testing.T) {
		gen := new(MockTextGenerator)
		gen.On("Generate", mock.Anything, mock.Anything).
			Return("```json\n[{\"name\":\"Z\"},{\"name\":\"A\"}]\n```", nil)
		svc := service.New(scenarioCatalog(t),
			service.AISearcherOpt(search.NewAISearcher(gen), time.Second))

		got, err := svc.SmartSearch(t.Context(), domain.SearchRequest{
			Query: "laptop", UseAI: true,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, names(got))
	})

	t.Run("ProviderDuplicatesRemoved", func(t *testing.T) {
		gen := new(MockTextGenerator)
		gen.On("Generate", mock.Anything, mock.Anything).
			Return(`[{"name":"B"},{"name":"B"},{"name":"A"}]`, nil)
		svc := service.New(scenarioCatalog(t),
			service.AISearcherOpt(search.NewAISearcher(gen), time.Second))

		got, err := svc.SmartSearch(t.Context(), domain.SearchRequest{
			Query: "laptop", UseAI: true,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"B", "A"}, names(got))
	})

	t.Run("ItemsOutsideCandidatesDropped", func(t *testing.T) {
		ai := new(MockAISearcher)
		ai.On("Search", mock.Anything, "kettle", mock.Anything).Return(
			[]domain.Product{{Name: "C", Category: "Kitchen", Description: "steel kettle"}},
			nil,
		)
		svc := service.New(scenarioCatalog(t), service.AISearcherOpt(ai, time.Second))

		got, err := svc.SmartSearch(t.Context(), domain.SearchRequest{
			Query: "kettle", Category: "electronics", UseAI: true,
		})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("TransportErrorFallsBackToLocal", func(t *testing.T) {
		gen := new(MockTextGenerator)
		gen.On("Generate", mock.Anything, mock.Anything).
			Return("", errors.New("dial tcp: connection refused"))
		svc := service.New(scenarioCatalog(t),
			service.AISearcherOpt(search.NewAISearcher(gen), time.Second))

		req := domain.SearchRequest{Query: "laptop", Category: "Electronics", UseAI: true}
		got, err := svc.SmartSearch(t.Context(), req)
		require.NoError(t, err)

		c := scenarioCatalog(t)
		want := search.Match(req.Query, c.FilterByCategory(req.Category))
		assert.Equal(t, want, got)
	})

	t.Run("MalformedResponseFallsBackToLocal", func(t *testing.T) {
		gen := new(MockTextGenerator)
		gen.On("Generate", mock.Anything, mock.Anything).Return("I cannot help", nil)
		svc := service.New(scenarioCatalog(t),
			service.AISearcherOpt(search.NewAISearcher(gen), time.Second))

		got, err := svc.SmartSearch(t.Context(), domain.SearchRequest{
			Query: "kettle", UseAI: true,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"C"}, names(got))
	})

	t.Run("TimeoutFallsBackToLocal", func(t *testing.T) {
		ai := new(MockAISearcher)
		ai.On("Search", mock.Anything, "kettle", mock.Anything).
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(nil, context.DeadlineExceeded)
		svc := service.New(scenarioCatalog(t),
			service.AISearcherOpt(ai, 10*time.Millisecond))

		got, err := svc.SmartSearch(t.Context(), domain.SearchRequest{
			Query: "kettle", UseAI: true,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"C"}, names(got))
	})

	t.Run("UseAIFalseSkipsProvider", func(t *testing.T) {
		gen := new(MockTextGenerator)
		svc := service.New(scenarioCatalog(t),
			service.AISearcherOpt(search.NewAISearcher(gen), time.Second))

		got, err := svc.SmartSearch(t.Context(), domain.SearchRequest{Query: "laptop"})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, names(got))
		gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})

	t.Run("EmptyQuerySkipsProvider", func(t *testing.T) {
		gen := new(MockTextGenerator)
		svc := service.New(scenarioCatalog(t),
			service.AISearcherOpt(search.NewAISearcher(gen), time.Second))

		got, err := svc.SmartSearch(t.Context(), domain.SearchRequest{Query: "  ", UseAI: true})
		require.NoError(t, err)
		assert.Len(t, got, 3)
		gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})
}

func TestSmartSearchEvents(t *testing.T) {
	t.Run("LocalPath", func(t *testing.T) {
		p := new(MockSearchEventsProducer)
		p.On("ProduceSearchEvent", mock.Anything, mock.MatchedBy(func(e domain.SearchEvent) bool {
			return e.Path == domain.SearchPathLocal &&
				!e.Fallback &&
				e.Results == 1 &&
				e.Query == "kettle"
		})).Return(nil)
		svc := service.New(scenarioCatalog(t), service.SearchEventsProducerOpt(p, time.Second))

		_, err := svc.SmartSearch(t.Context(), domain.SearchRequest{Query: " kettle "})
		require.NoError(t, err)
		svc.Close(t.Context())
		p.AssertExpectations(t)
	})

	t.Run("FallbackFlagged", func(t *testing.T) {
		ai := new(MockAISearcher)
		ai.On("Search", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, domain.ErrProvider)
		p := new(MockSearchEventsProducer)
		p.On("ProduceSearchEvent", mock.Anything, mock.MatchedBy(func(e domain.SearchEvent) bool {
			return e.Path == domain.SearchPathLocal && e.Fallback && e.UseAI
		})).Return(nil)
		svc := service.New(scenarioCatalog(t),
			service.AISearcherOpt(ai, time.Second),
			service.SearchEventsProducerOpt(p, time.Second),
		)

		_, err := svc.SmartSearch(t.Context(), domain.SearchRequest{Query: "kettle", UseAI: true})
		require.NoError(t, err)
		svc.Close(t.Context())
		p.AssertExpectations(t)
	})

	t.Run("ProducerErrorIgnored", func(t *testing.T) {
		p := new(MockSearchEventsProducer)
		p.On("ProduceSearchEvent", mock.Anything, mock.Anything).
			Return(errors.New("broker down"))
		svc := service.New(scenarioCatalog(t), service.SearchEventsProducerOpt(p, time.Second))

		got, err := svc.SmartSearch(t.Context(), domain.SearchRequest{})
		require.NoError(t, err)
		assert.Len(t, got, 3)
		svc.Close(t.Context())
		p.AssertExpectations(t)
	})

	t.Run("BlockedBrokerDoesNotDelaySearch", func(t *testing.T) {
		p := new(MockSearchEventsProducer)
		p.On("ProduceSearchEvent", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(context.DeadlineExceeded)
		svc := service.New(scenarioCatalog(t),
			service.SearchEventsProducerOpt(p, 200*time.Millisecond))

		reqCtx, cancel := context.WithCancel(t.Context())
		start := time.Now()
		got, err := svc.SmartSearch(reqCtx, domain.SearchRequest{Query: "kettle"})
		elapsed := time.Since(start)
		cancel()

		require.NoError(t, err)
		assert.Len(t, got, 1)
		assert.Less(t, elapsed, 150*time.Millisecond)

		ctx, cancelWait := context.WithTimeout(t.Context(), time.Second)
		defer cancelWait()
		svc.Close(ctx)
		require.NoError(t, ctx.Err(), "publish is bounded by the event timeout")
		p.AssertExpectations(t)
	})

	t.Run("EventOutlivesRequestContext", func(t *testing.T) {
		released := make(chan struct{})
		var publishCtxErr error
		p := new(MockSearchEventsProducer)
		p.On("ProduceSearchEvent", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				<-released
				publishCtxErr = args.Get(0).(context.Context).Err()
			}).
			Return(nil)
		svc := service.New(scenarioCatalog(t),
			service.SearchEventsProducerOpt(p, time.Second))

		reqCtx, cancel := context.WithCancel(t.Context())
		_, err := svc.SmartSearch(reqCtx, domain.SearchRequest{Query: "kettle"})
		require.NoError(t, err)
		cancel()
		close(released)

		svc.Close(t.Context())
		p.AssertExpectations(t)
		assert.NoError(t, publishCtxErr)
	})
}

func TestCloseWithoutProducer(t *testing.T) {
	svc := service.New(scenarioCatalog(t))
	assert.NotPanics(t, func() { svc.Close(t.Context()) })
}

func TestSmartSearchCanceledContext(t *testing.T) {
	svc := service.New(scenarioCatalog(t))
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := svc.SmartSearch(ctx, domain.SearchRequest{Query: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListing(t *testing.T) {
	svc := service.New(scenarioCatalog(t))

	ps, err := svc.ListProducts(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, names(ps))

	cs, err := svc.ListCategories(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"Electronics", "Kitchen"}, cs)
}

func TestParseMaxPrice(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want *float64
	}{
		{name: "Nil", raw: nil},
		{name: "Number", raw: 49.5, want: price(49.5)},
		{name: "Int", raw: 10, want: price(10)},
		{name: "Zero", raw: 0.0, want: price(0)},
		{name: "NumericString", raw: " 30 ", want: price(30)},
		{name: "EmptyString", raw: ""},
		{name: "Garbage", raw: "cheap"},
		{name: "Negative", raw: -1.0, want: price(-1)},
		{name: "NegativeString", raw: "-0.5", want: price(-0.5)},
		{name: "NaNString", raw: "NaN"},
		{name: "InfString", raw: "inf"},
		{name: "Bool", raw: true},
		{name: "Object", raw: map[string]any{"v": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := service.ParseMaxPrice(tt.raw)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}
