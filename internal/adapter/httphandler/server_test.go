package httphandler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/niksmo/smart-catalog/internal/core/catalog"
	"github.com/niksmo/smart-catalog/internal/core/domain"
	"github.com/niksmo/smart-catalog/internal/core/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stalledProducer never reaches the broker and gives up with ctx.
type stalledProducer struct{}

func (stalledProducer) ProduceSearchEvent(
	ctx context.Context, _ domain.SearchEvent,
) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestNewHTTPServer(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
			_, _ = w.Write([]byte("late"))
		}
	})
	fast := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	t.Run("Timeout", func(t *testing.T) {
		s := NewHTTPServer(":0", slow, 10*time.Millisecond)
		rec := httptest.NewRecorder()
		s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, unavailableMsg, rec.Body.String())
	})

	t.Run("InTime", func(t *testing.T) {
		s := NewHTTPServer(":0", fast, time.Second)
		rec := httptest.NewRecorder()
		s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})

	t.Run("WriteTimeoutExceedsHandlerTimeout", func(t *testing.T) {
		s := NewHTTPServer(":0", fast, 15*time.Second)
		assert.Greater(t, s.httpServer.WriteTimeout, 15*time.Second)
	})

	t.Run("RunStopsOnClose", func(t *testing.T) {
		s := NewHTTPServer("127.0.0.1:0", fast, time.Second)
		stopped := make(chan struct{})
		go s.Run(func() { close(stopped) })

		ctx, cancel := context.WithTimeout(t.Context(), time.Second)
		defer cancel()
		time.Sleep(20 * time.Millisecond)
		s.Close(ctx)

		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("Run did not return after Close")
		}
	})
}

func TestSmartSearchWithStalledBroker(t *testing.T) {
	c, err := catalog.New([]domain.Product{
		{Name: "A", Category: "Electronics", Price: 45, Rating: 4.2, Description: "fast laptop"},
		{Name: "B", Category: "Electronics", Price: 80, Rating: 3.0, Description: "slow laptop"},
	})
	require.NoError(t, err)
	svc := service.New(c,
		service.SearchEventsProducerOpt(stalledProducer{}, time.Second))

	mux := http.NewServeMux()
	RegisterSearch(mux, svc)
	s := NewHTTPServer(":0", AllowJSON(mux), 200*time.Millisecond)

	req := httptest.NewRequest(http.MethodPost, "/api/smart_search",
		strings.NewReader(`{"query":"electronics under $50","use_ai":false}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	start := time.Now()
	s.httpServer.Handler.ServeHTTP(rec, req)
	elapsed := time.Since(start)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`[{"name":"A","category":"Electronics","price":45,"rating":4.2,"description":"fast laptop"}]`,
		rec.Body.String(),
	)
	assert.Less(t, elapsed, 200*time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	svc.Close(ctx)
	assert.NoError(t, ctx.Err())
}
