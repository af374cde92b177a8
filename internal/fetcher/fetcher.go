// Package fetcher provides the polite HTTP client used by every adapter and
// enrichment pass: per-host pacing, robots.txt compliance, response caching
// and exponential-backoff retry.
package fetcher

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrRobotsDisallowed marks hosts whose robots.txt carries a blanket
// disallow. Permanent for the host, never retried.
var ErrRobotsDisallowed = errors.New("fetcher: robots disallow")

// NetworkError wraps a transport failure or a retryable HTTP status after
// all attempts were exhausted.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return "fetcher: " + e.URL + ": " + e.Err.Error()
	}
	return "fetcher: " + e.URL + ": unexpected status"
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Options configures the fetcher.
type Options struct {
	PerHostRPS    float64
	MaxRetries    int
	BackoffBase   float64
	Timeout       time.Duration
	RespectRobots bool
	UserAgents    []string
}

// DefaultOptions mirrors the production crawl policy: half a request per
// second per host, five attempts, 1.7^attempt backoff.
func DefaultOptions() Options {
	return Options{
		PerHostRPS:    0.5,
		MaxRetries:    5,
		BackoffBase:   1.7,
		Timeout:       12 * time.Second,
		RespectRobots: true,
		UserAgents: []string{
			"LeadRadar/1.2 (+local; Go net/http)",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) LeadRadar/1.2",
			"Mozilla/5.0 (X11; Linux x86_64) LeadRadar/1.2",
		},
	}
}

// Client is safe for concurrent use. Requests to distinct hosts proceed in
// parallel; requests to the same host are paced by that host's limiter.
type Client struct {
	http *http.Client
	opts Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cache    map[string]string
	robots   map[string]string
}

// New creates a fetcher with the given options, filling zero values from
// DefaultOptions.
func New(opts Options) *Client {
	def := DefaultOptions()
	if opts.PerHostRPS <= 0 {
		opts.PerHostRPS = def.PerHostRPS
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.BackoffBase <= 1 {
		opts.BackoffBase = def.BackoffBase
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = def.UserAgents
	}
	return &Client{
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
		cache:    make(map[string]string),
		robots:   make(map[string]string),
	}
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(c.opts.PerHostRPS), 1)
		c.limiters[host] = lim
	}
	return lim
}

func (c *Client) userAgent() string {
	return c.opts.UserAgents[rand.IntN(len(c.opts.UserAgents))]
}

// Get fetches a URL, honoring robots.txt and the per-host pacing gap.
// Successful bodies are cached for the life of the process, so shared base
// pages are downloaded once across scan and enrichment.
func (c *Client) Get(ctx context.Context, rawURL string) (string, error) {
	c.mu.Lock()
	if body, ok := c.cache[rawURL]; ok {
		c.mu.Unlock()
		return body, nil
	}
	c.mu.Unlock()

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	if u.Host == "" {
		return "", eris.Errorf("fetcher: invalid url %q", rawURL)
	}

	if c.opts.RespectRobots && !c.robotsAllowed(ctx, u) {
		return "", eris.Wrapf(ErrRobotsDisallowed, "host %s", u.Host)
	}

	body, err := c.getWithRetry(ctx, rawURL, u.Host)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache[rawURL] = body
	c.mu.Unlock()
	return body, nil
}

// robotsAllowed fetches and caches /robots.txt for the host and rejects
// hosts with a blanket "Disallow: /". Unreachable robots files allow.
func (c *Client) robotsAllowed(ctx context.Context, u *url.URL) bool {
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"

	c.mu.Lock()
	txt, ok := c.robots[robotsURL]
	c.mu.Unlock()

	if !ok {
		body, err := c.getWithRetry(ctx, robotsURL, u.Host)
		if err != nil {
			body = ""
		}
		txt = body
		c.mu.Lock()
		c.robots[robotsURL] = txt
		c.mu.Unlock()
	}
	return !blanketDisallow(txt)
}

func blanketDisallow(robots string) bool {
	for _, line := range strings.Split(robots, "\n") {
		if strings.TrimSpace(line) == "Disallow: /" {
			return true
		}
	}
	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	}
	return false
}

func (c *Client) getWithRetry(ctx context.Context, rawURL, host string) (string, error) {
	lim := c.limiterFor(host)

	var lastErr error
	lastStatus := 0
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "fetcher: limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return "", eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", c.userAgent())

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			zap.L().Debug("fetch failed, retrying",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			data, readErr := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
			_ = resp.Body.Close()
			if readErr != nil {
				lastErr = readErr
				c.backoff(ctx, attempt)
				continue
			}
			return string(data), nil
		}

		_ = resp.Body.Close()
		lastStatus = resp.StatusCode
		if !retryableStatus(resp.StatusCode) {
			// Non-transient condition: fail fast without burning retries.
			return "", &NetworkError{URL: rawURL, StatusCode: resp.StatusCode,
				Err: eris.Errorf("http %d", resp.StatusCode)}
		}
		lastErr = eris.Errorf("http %d", resp.StatusCode)
		zap.L().Debug("transient status, backing off",
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode),
			zap.Int("attempt", attempt+1),
		)
		c.backoff(ctx, attempt)
	}

	return "", &NetworkError{URL: rawURL, StatusCode: lastStatus,
		Err: eris.Wrap(lastErr, "retries exhausted")}
}

// backoff sleeps base^attempt seconds plus jitter, bounded by context.
func (c *Client) backoff(ctx context.Context, attempt int) {
	d := time.Duration(math.Pow(c.opts.BackoffBase, float64(attempt)) * float64(time.Second))
	d += time.Duration(rand.Float64() * float64(time.Second))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
