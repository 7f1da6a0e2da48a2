package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/vacancy-map/internal/resilience"
)

func newTestClient() *Client {
	return New(Options{
		Name:       "test",
		UserAgent:  "test-agent",
		Timeout:    5 * time.Second,
		RatePerSec: 1000,
		Breaker:    resilience.BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute},
	})
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`[["NAME"]]`))
	}))
	defer srv.Close()

	body, err := newTestClient().Get(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	assert.Equal(t, `[["NAME"]]`, string(body))
}

func TestGet_StatusErrorNoRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient().Get(context.Background(), srv.URL)
	require.Error(t, err)

	var se *resilience.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGet_BreakerOpensOnRepeatedOutage(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient()
	for i := 0; i < 3; i++ {
		_, _ = c.Get(context.Background(), srv.URL)
	}
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, resilience.Open, c.Breaker().State())

	_, err := c.Get(context.Background(), srv.URL)
	assert.ErrorIs(t, err, resilience.ErrOpen)
}

func TestGet_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	c := New(Options{MaxBodyBytes: 4, RatePerSec: 1000})
	_, err := c.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 4 bytes")
}

func TestRedact(t *testing.T) {
	got := redact("https://api.census.gov/data/2022/acs/acs5?get=NAME&key=secret")
	assert.NotContains(t, got, "secret")
	assert.Contains(t, got, "key=REDACTED")
	assert.Equal(t, "https://example.com/a?b=1", redact("https://example.com/a?b=1"))
}

func TestAdaptiveLimiter(t *testing.T) {
	a := NewAdaptiveLimiter(rate.Limit(8), 8)
	a.OnRateLimit()
	assert.InDelta(t, 4.0, float64(a.Limit()), 0.001)
	a.OnRateLimit()
	a.OnRateLimit()
	a.OnRateLimit()
	assert.InDelta(t, 1.0, float64(a.Limit()), 0.001)

	for i := 0; i < 20; i++ {
		a.OnSuccess()
	}
	assert.InDelta(t, 8.0, float64(a.Limit()), 0.001)
}
