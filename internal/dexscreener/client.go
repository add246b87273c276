// internal/dexscreener/client.go

package dexscreener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.dexscreener.com/latest/dex"

	defaultRequestsPerSecond = 2
	defaultMaxTries          = 3
	defaultRetryInterval     = 500 * time.Millisecond

	headerRemaining = "X-RateLimit-Remaining"
	headerReset     = "X-RateLimit-Reset"
)

var (
	// ErrTransient covers timeouts, rate limiting and 5xx answers.
	ErrTransient = errors.New("dexscreener: transient service error")
	// ErrData covers malformed or missing fields in a response.
	ErrData = errors.New("dexscreener: malformed response")
)

// Client - адаптер к DexScreener API с ограничением частоты запросов.
type Client struct {
	baseURL       string
	http          *http.Client
	limiter       ratelimit.Limiter
	logger        *zap.Logger
	maxTries      uint
	retryInterval time.Duration
	now           func() time.Time

	mu        sync.Mutex
	remaining int // -1 while unknown
	resetAt   time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRequestsPerSecond overrides the client-side pacing.
func WithRequestsPerSecond(rps int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = ratelimit.New(rps)
		}
	}
}

func WithRetry(maxTries uint, interval time.Duration) Option {
	return func(c *Client) {
		if maxTries > 0 {
			c.maxTries = maxTries
		}
		if interval > 0 {
			c.retryInterval = interval
		}
	}
}

func NewClient(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{Timeout: 10 * time.Second},
		limiter:       ratelimit.New(defaultRequestsPerSecond),
		logger:        logger.Named("dexscreener"),
		maxTries:      defaultMaxTries,
		retryInterval: defaultRetryInterval,
		now:           time.Now,
		remaining:     -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetPairs returns the latest pairs of a chain.
func (c *Client) GetPairs(ctx context.Context, chain string, limit int) ([]Pair, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("first", strconv.Itoa(limit))
	}
	resp, err := c.doRequest(ctx, "pairs/"+url.PathEscape(chain), q)
	if err != nil {
		return nil, fmt.Errorf("get pairs for %s: %w", chain, err)
	}
	return resp.Pairs, nil
}

// GetTokenPairs returns every pair that trades the given token.
func (c *Client) GetTokenPairs(ctx context.Context, address string) ([]Pair, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: empty token address", ErrData)
	}
	resp, err := c.doRequest(ctx, "tokens/"+url.PathEscape(address), nil)
	if err != nil {
		return nil, fmt.Errorf("get token pairs for %s: %w", address, err)
	}
	return resp.Pairs, nil
}

// TokenPrice returns the USD price quoted by the deepest pair of the token.
func (c *Client) TokenPrice(ctx context.Context, address string) (float64, error) {
	pairs, err := c.GetTokenPairs(ctx, address)
	if err != nil {
		return 0, err
	}
	best := DeepestPair(pairs, address)
	if best == nil {
		return 0, fmt.Errorf("%w: no priced pair for %s", ErrData, address)
	}
	price, err := best.PriceUSDValue()
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: non-positive price for %s", ErrData, address)
	}
	return price, nil
}

// DeepestPair picks the pair with the largest USD liquidity where the token
// is the base asset and a price is present.
func DeepestPair(pairs []Pair, address string) *Pair {
	var best *Pair
	for i := range pairs {
		p := &pairs[i]
		if address != "" && p.BaseToken.Address != address {
			continue
		}
		if strings.TrimSpace(p.PriceUSD) == "" {
			continue
		}
		if best == nil || p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}
	return best
}

// doRequest выполняет GET с учетом пейсинга, заголовков rate limit и повторов.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values) (*Response, error) {
	endpoint := c.baseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.MaxInterval = c.retryInterval * 10

	operation := func() (*Response, error) {
		if err := c.waitForReset(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		c.limiter.Take()
		return c.fetch(ctx, endpoint)
	}

	notify := func(err error, d time.Duration) {
		c.logger.Debug("Retrying DexScreener request",
			zap.String("endpoint", path),
			zap.Duration("backoff", d),
			zap.Error(err))
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(notify))
}

func (c *Client) fetch(ctx context.Context, endpoint string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	c.observeRateLimit(resp.Header)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, backoff.Permanent(fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body)))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: decode response: %v", ErrData, err))
	}
	return &out, nil
}

// observeRateLimit remembers the remaining budget and the reset moment
// (unix seconds) announced by the service.
func (c *Client) observeRateLimit(h http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := h.Get(headerRemaining); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.remaining = n
		}
	}
	if v := h.Get(headerReset); v != "" {
		if sec, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			c.resetAt = time.Unix(sec, 0)
		}
	}
}

// resetDelay is how long to wait before the next request is allowed.
func (c *Client) resetDelay(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remaining < 0 || c.remaining > 1 || c.resetAt.IsZero() || !now.Before(c.resetAt) {
		return 0
	}
	return c.resetAt.Sub(now) + time.Second
}

func (c *Client) waitForReset(ctx context.Context) error {
	wait := c.resetDelay(c.now())
	if wait <= 0 {
		return nil
	}
	c.logger.Info("Rate limit exhausted, waiting for reset", zap.Duration("wait", wait))

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	c.mu.Lock()
	c.remaining = -1
	c.mu.Unlock()
	return nil
}
