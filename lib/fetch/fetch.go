// Package fetch issues throttled, retried HTTP requests and serves
// previously-seen responses from a persisted cache.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"apharvest/lib/fetch/cachestore"
	"apharvest/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type Options struct {
	UserAgent string
	// Throttle is the minimum delay between network requests, enforced
	// across the whole client regardless of concurrency. Cache hits do
	// not consume it.
	Throttle time.Duration
	Timeout  time.Duration
	Retry    RetryPolicy
	// Cache may be nil to disable response caching.
	Cache *cachestore.Store
}

type Client struct {
	http  *resty.Client
	cache *cachestore.Store

	throttle time.Duration
	mu       sync.Mutex
	nextSlot time.Time
}

func NewClient(opts Options) *Client {
	if opts.Throttle == 0 {
		opts.Throttle = time.Second
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 20
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err == nil {
		client.SetCookieJar(jar)
	}
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", opts.UserAgent)
	client.SetTimeout(opts.Timeout)

	retry := opts.Retry
	client.SetRetryCount(retry.MaxAttempts - 1)
	client.SetRetryAfter(func(_ *resty.Client, res *resty.Response) (time.Duration, error) {
		return retry.Delay(res.Request.Attempt), nil
	})
	client.AddRetryCondition(func(res *resty.Response, err error) bool {
		if err != nil {
			// timeouts, connection resets
			return true
		}
		return res.StatusCode() == http.StatusTooManyRequests || res.StatusCode() >= 500
	})

	telemetry.InstrumentResty(client, "lib/fetch")

	return &Client{
		http:     client,
		cache:    opts.Cache,
		throttle: opts.Throttle,
	}
}

type Request struct {
	URL     string
	Method  string
	Query   url.Values
	Form    url.Values
	Headers map[string]string
	// CacheKey overrides the derived request signature. Used when the
	// URL alone does not identify the response (stateful form posts).
	CacheKey string
}

func (r Request) method() string {
	if r.Method != "" {
		return r.Method
	}
	if len(r.Form) > 0 {
		return http.MethodPost
	}
	return http.MethodGet
}

func (r Request) cacheKey() string {
	if r.CacheKey != "" {
		return r.CacheKey
	}
	h := sha256.New()
	io.WriteString(h, r.method())
	io.WriteString(h, "\x00")
	io.WriteString(h, r.URL)
	io.WriteString(h, "\x00")
	io.WriteString(h, r.Query.Encode())
	io.WriteString(h, "\x00")
	io.WriteString(h, r.Form.Encode())
	return hex.EncodeToString(h.Sum(nil))
}

// Fetch returns the raw response body. A cache hit short-circuits the
// network entirely; successful responses always update the cache, failed
// ones never do.
func (c *Client) Fetch(ctx context.Context, req Request) ([]byte, error) {
	key := req.cacheKey()
	if c.cache != nil {
		body, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			slog.WarnContext(ctx, "cache read failed", "key", key, "err", err)
		}
		if ok {
			return body, nil
		}
	}

	if err := c.waitThrottle(ctx); err != nil {
		return nil, err
	}

	r := c.http.R().SetContext(ctx)
	if len(req.Query) > 0 {
		r.SetQueryParamsFromValues(req.Query)
	}
	if len(req.Form) > 0 {
		r.SetFormDataFromValues(req.Form)
	}
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}

	res, err := r.Execute(req.method(), req.URL)
	if err != nil {
		return nil, &NetworkError{URL: req.URL, Err: err}
	}
	status := res.StatusCode()
	if status == http.StatusTooManyRequests {
		return nil, &RateLimitError{URL: req.URL, Status: status}
	}
	if status >= 400 {
		return nil, &NetworkError{URL: req.URL, Status: status, Err: fmt.Errorf("http %d", status)}
	}

	body := res.Body()
	if c.cache != nil {
		err := c.cache.Put(ctx, key, body)
		if err != nil {
			slog.WarnContext(ctx, "cache write failed", "key", key, "err", err)
		}
	}
	return body, nil
}

// waitThrottle reserves the next request slot, sleeping until it opens.
// Concurrent callers are spaced out by the throttle interval in the
// order they arrive.
func (c *Client) waitThrottle(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now()
	wake := c.nextSlot
	if wake.Before(now) {
		wake = now
	}
	c.nextSlot = wake.Add(c.throttle)
	c.mu.Unlock()

	wait := time.Until(wake)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
