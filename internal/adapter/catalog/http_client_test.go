package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/patyfb04/play-inventory/internal/core/domain"
)

func newTestClient(url string, retries int) *HTTPClient {
	return NewHTTPClient(Config{
		BaseURL:         url,
		AttemptTimeout:  200 * time.Millisecond,
		Retries:         retries,
		BaseBackoff:     time.Millisecond,
		BreakerCooldown: 100 * time.Millisecond,
	}, zap.NewNop())
}

func TestListAll_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/items" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"A","name":"Potion","description":"Heals","price":5.5},{"id":"B","name":"Sword","description":"Sharp","price":"10"}]`))
	}))
	defer srv.Close()

	listing := newTestClient(srv.URL+"/", 0).ListAll(context.Background())
	if listing.Degraded {
		t.Fatalf("unexpected degraded listing: %v", listing.Diagnostic)
	}
	if len(listing.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(listing.Items))
	}
	if !listing.Items[0].Price.Equal(decimal.RequireFromString("5.5")) {
		t.Errorf("expected price 5.5, got %s", listing.Items[0].Price)
	}
	if listing.Items[1].Name != "Sword" {
		t.Errorf("expected Sword, got %s", listing.Items[1].Name)
	}
}

func TestListAll_EmptyIsNotDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	listing := newTestClient(srv.URL, 0).ListAll(context.Background())
	if listing.Degraded || len(listing.Items) != 0 {
		t.Errorf("expected empty healthy listing, got %+v", listing)
	}
}

func TestListAll_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"id":"A","name":"Potion","price":1}]`))
	}))
	defer srv.Close()

	listing := newTestClient(srv.URL, 5).ListAll(context.Background())
	if listing.Degraded {
		t.Fatalf("expected recovery after retries, got %v", listing.Diagnostic)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestListAll_DegradesAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	listing := newTestClient(srv.URL, 2).ListAll(context.Background())
	if !listing.Degraded {
		t.Fatal("expected degraded listing")
	}
	if len(listing.Items) != 0 {
		t.Errorf("degraded listing must be empty, got %d items", len(listing.Items))
	}
	if !errors.Is(listing.Diagnostic, domain.ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable diagnostic, got %v", listing.Diagnostic)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 1 call + 2 retries, got %d", calls.Load())
	}
}

func TestListAll_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	listing := newTestClient(srv.URL, 5).ListAll(context.Background())
	if !listing.Degraded {
		t.Error("expected degraded listing")
	}
	if calls.Load() != 1 {
		t.Errorf("expected no retries for 401, got %d calls", calls.Load())
	}
}

func TestListAll_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"a list"`))
	}))
	defer srv.Close()

	if listing := newTestClient(srv.URL, 0).ListAll(context.Background()); !listing.Degraded {
		t.Error("expected degraded listing for malformed body")
	}
}

func TestListAll_AttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	listing := newTestClient(srv.URL, 1).ListAll(context.Background())
	if !listing.Degraded {
		t.Error("expected degraded listing on timeout")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("per-attempt timeout not applied, took %v", elapsed)
	}
}

func TestListAll_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	listing := newTestClient(url, 1).ListAll(context.Background())
	if !listing.Degraded {
		t.Error("expected degraded listing for unreachable upstream")
	}
}

func TestListAll_CircuitBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)

	for i := 0; i < DefaultBreakerThreshold; i++ {
		c.ListAll(context.Background())
	}
	if calls.Load() != int32(DefaultBreakerThreshold) {
		t.Fatalf("expected %d calls, got %d", DefaultBreakerThreshold, calls.Load())
	}

	listing := c.ListAll(context.Background())
	if !listing.Degraded || !errors.Is(listing.Diagnostic, gobreaker.ErrOpenState) {
		t.Errorf("expected open circuit, got %+v", listing)
	}
	if calls.Load() != int32(DefaultBreakerThreshold) {
		t.Error("open circuit must not call upstream")
	}

	time.Sleep(150 * time.Millisecond)
	c.ListAll(context.Background())
	if calls.Load() != int32(DefaultBreakerThreshold)+1 {
		t.Error("expected a trial call after cooldown")
	}
}

func TestListAll_CallerCancellationKeepsCircuitClosed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[{"id":"A","name":"Potion","price":1}]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < DefaultBreakerThreshold+1; i++ {
		if listing := c.ListAll(ctx); !listing.Degraded {
			t.Fatal("a cancelled caller must get a degraded listing")
		}
	}
	if state := c.breaker.State(); state != gobreaker.StateClosed {
		t.Fatalf("expected closed circuit, got %s", state)
	}

	listing := c.ListAll(context.Background())
	if listing.Degraded || len(listing.Items) != 1 {
		t.Errorf("expected a healthy listing, got %+v", listing)
	}
}
