// Package fetcher issues GET requests against the upstream statistics and
// boundary services. Each upstream gets its own rate limiter and circuit
// breaker. Requests are never retried automatically.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/vacancy-map/internal/resilience"
)

// Getter downloads a URL and returns the full response body.
type Getter interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// Options configures a Client.
type Options struct {
	Name      string
	UserAgent string
	Timeout   time.Duration
	// RatePerSec caps requests per second to the upstream. Zero means 10.
	RatePerSec float64
	// MaxBodyBytes caps the response body size. Zero means 64 MiB.
	MaxBodyBytes int64
	Breaker      resilience.BreakerConfig
	HTTPClient   *http.Client
}

// Client is a Getter for one upstream service.
type Client struct {
	name    string
	ua      string
	maxBody int64
	http    *http.Client
	limiter *AdaptiveLimiter
	breaker *resilience.Breaker
}

// New creates a Client, filling defaults for zero-valued options.
func New(opts Options) *Client {
	if opts.Name == "" {
		opts.Name = "upstream"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "vacancy-map/1.0"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 10
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 << 20
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Client{
		name:    opts.Name,
		ua:      opts.UserAgent,
		maxBody: opts.MaxBodyBytes,
		http:    hc,
		limiter: NewAdaptiveLimiter(rate.Limit(opts.RatePerSec), int(opts.RatePerSec)+1),
		breaker: resilience.NewBreaker(opts.Name, opts.Breaker),
	}
}

// Breaker exposes the client's breaker for health reporting.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

// Get fetches rawURL. Non-2xx responses fail with *resilience.StatusError.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	return resilience.Call(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, rawURL)
	})
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: build request")
	}
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: %s request", c.name)
	}
	defer resp.Body.Close() //nolint:errcheck

	zap.L().Debug("fetcher: response",
		zap.String("upstream", c.name),
		zap.String("url", redact(rawURL)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.OnRateLimit()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &resilience.StatusError{URL: redact(rawURL), StatusCode: resp.StatusCode}
	}
	c.limiter.OnSuccess()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: %s read body", c.name)
	}
	if int64(len(body)) > c.maxBody {
		return nil, eris.Errorf("fetcher: %s response exceeds %d bytes", c.name, c.maxBody)
	}
	return body, nil
}

// redact drops the API key from a URL before it reaches logs or errors.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// AdaptiveLimiter wraps a rate.Limiter that slows down after 429 responses
// and recovers gradually on success, never exceeding the initial rate.
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	initial rate.Limit
	min     rate.Limit
	current rate.Limit
}

// NewAdaptiveLimiter creates a limiter starting at initial.
func NewAdaptiveLimiter(initial rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(initial, burst),
		initial: initial,
		min:     initial / 8,
		current: initial,
	}
}

// Wait blocks until a request may proceed.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by 20%, capped at the initial rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current >= a.initial {
		return
	}
	a.current = min(a.current*1.2, a.initial)
	a.limiter.SetLimit(a.current)
}

// OnRateLimit halves the rate, down to one eighth of the initial rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = max(a.current*0.5, a.min)
	a.limiter.SetLimit(a.current)
	zap.L().Warn("fetcher: upstream rate limited, slowing down",
		zap.Float64("rate", float64(a.current)),
	)
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}
