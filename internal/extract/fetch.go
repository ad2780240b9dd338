package extract

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/startup-intake/internal/resilience"
)

const defaultUserAgent = "startup-intake/1.0"

// maxBodyBytes caps fetched page size; startup articles and feeds are small.
const maxBodyBytes = 4 << 20

// Fetcher is a rate-limited HTTP client shared by the free tiers. Each host
// gets its own limiter so one slow feed cannot starve the rest.
type Fetcher struct {
	client   *http.Client
	perHost  rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFetcher creates a Fetcher with the given timeout and per-host rate.
func NewFetcher(timeout time.Duration, perHost rate.Limit, burst int) *Fetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if perHost == 0 {
		perHost = 2
	}
	if burst == 0 {
		burst = 4
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		perHost:  perHost,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Get fetches the URL with per-host rate limiting and retry on transient
// failures, returning the body.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := f.limiterFor(rawURL).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetch: rate limiter wait")
	}

	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("http", "get")

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrapf(err, "fetch: build request for %s", rawURL)
		}
		req.Header.Set("User-Agent", defaultUserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "fetch: get %s", rawURL)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("fetch: status %d from %s", resp.StatusCode, rawURL)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, eris.Wrapf(err, "fetch: read body from %s", rawURL)
		}
		return body, nil
	})
}

// ResolveFinalURL follows redirects and reports the URL the client lands on.
// Used by the resolver's redirect probe.
func (f *Fetcher) ResolveFinalURL(ctx context.Context, rawURL string) (string, error) {
	if err := f.limiterFor(rawURL).Wait(ctx); err != nil {
		return "", eris.Wrap(err, "fetch: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", eris.Wrapf(err, "fetch: build request for %s", rawURL)
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "fetch: head %s", rawURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	return resp.Request.URL.String(), nil
}

func (f *Fetcher) limiterFor(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(f.perHost, f.burst)
		f.limiters[host] = lim
	}
	return lim
}
