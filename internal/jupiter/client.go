// internal/jupiter/client.go
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-memebot/internal/types"
)

const (
	DefaultBaseURL = "https://quote-api.jup.ag/v6"

	defaultMaxTries      = 3
	defaultRetryInterval = 500 * time.Millisecond
	maxErrorBody         = 1024
)

var (
	// ErrRouting означает, что маршрут не найден или котировка непригодна.
	ErrRouting = errors.New("jupiter: no usable route")
	// ErrTransient covers timeouts, rate limiting and 5xx answers.
	ErrTransient = errors.New("jupiter: transient service error")
)

// Client talks to the Jupiter swap API (quote + swap endpoints).
type Client struct {
	baseURL       string
	http          *http.Client
	logger        *zap.Logger
	maxTries      uint
	retryInterval time.Duration
	priority      types.PriorityLevel
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
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

// WithPriority attaches a compute unit price to every built swap.
func WithPriority(level types.PriorityLevel) Option {
	return func(c *Client) { c.priority = level }
}

func NewClient(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{Timeout: 15 * time.Second},
		logger:        logger.Named("jupiter"),
		maxTries:      defaultMaxTries,
		retryInterval: defaultRetryInterval,
		priority:      types.PriorityNone,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Quote requests the best exact-in route for req.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if err := validateKey("input mint", req.InputMint); err != nil {
		return nil, err
	}
	if err := validateKey("output mint", req.OutputMint); err != nil {
		return nil, err
	}
	if req.Amount == 0 {
		return nil, fmt.Errorf("%w: zero amount", ErrRouting)
	}
	if req.SlippageBps < 0 {
		return nil, fmt.Errorf("%w: negative slippage", ErrRouting)
	}

	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(req.SlippageBps))

	body, err := c.do(ctx, http.MethodGet, "/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("quote %s -> %s: %w", req.InputMint, req.OutputMint, err)
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("%w: decode quote: %v", ErrRouting, err)
	}
	quote.Raw = body

	out, err := quote.OutAmountRaw()
	if err != nil {
		return nil, err
	}
	if out == 0 {
		return nil, fmt.Errorf("%w: empty output for %s", ErrRouting, req.OutputMint)
	}
	if err := checkThreshold(&quote, out, req.SlippageBps); err != nil {
		return nil, err
	}

	c.logger.Debug("Quote received",
		zap.String("input", req.InputMint),
		zap.String("output", req.OutputMint),
		zap.Uint64("amountIn", req.Amount),
		zap.Uint64("amountOut", out),
		zap.String("priceImpact", quote.PriceImpactPct),
		zap.Strings("route", quote.Labels()))

	return &quote, nil
}

// checkThreshold rejects quotes whose minimum output is looser than the
// requested slippage allows.
func checkThreshold(q *Quote, out uint64, slippageBps int) error {
	if slippageBps <= 0 || q.OtherAmountThreshold == "" {
		return nil
	}
	minOut, err := parseAmount("otherAmountThreshold", q.OtherAmountThreshold)
	if err != nil {
		return err
	}
	if want := types.MinAmountOut(out, slippageBps); minOut < want {
		return fmt.Errorf("%w: threshold %d below %d allowed by %d bps", ErrRouting, minOut, want, slippageBps)
	}
	return nil
}

// BuildSwap asks the router to serialize the swap for the given wallet.
func (c *Client) BuildSwap(ctx context.Context, quote *Quote, userPublicKey string) (types.SwapTransaction, error) {
	if quote == nil || len(quote.Raw) == 0 {
		return types.SwapTransaction{}, fmt.Errorf("%w: missing quote", ErrRouting)
	}
	if err := validateKey("wallet", userPublicKey); err != nil {
		return types.SwapTransaction{}, err
	}

	payload, err := json.Marshal(swapRequest{
		QuoteResponse:                 quote.Raw,
		UserPublicKey:                 userPublicKey,
		WrapAndUnwrapSol:              true,
		DynamicComputeUnitLimit:       true,
		ComputeUnitPriceMicroLamports: c.priority.ComputeUnitPrice(),
	})
	if err != nil {
		return types.SwapTransaction{}, fmt.Errorf("encode swap request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/swap", payload)
	if err != nil {
		return types.SwapTransaction{}, fmt.Errorf("build swap: %w", err)
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return types.SwapTransaction{}, fmt.Errorf("%w: decode swap: %v", ErrRouting, err)
	}
	if resp.SwapTransaction == "" {
		return types.SwapTransaction{}, fmt.Errorf("%w: empty swap transaction", ErrRouting)
	}

	return types.SwapTransaction{
		Wallet:               userPublicKey,
		Transaction:          resp.SwapTransaction,
		LastValidBlockHeight: resp.LastValidBlockHeight,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.MaxInterval = c.retryInterval * 10

	operation := func() ([]byte, error) {
		return c.roundTrip(ctx, method, c.baseURL+path, payload)
	}
	notify := func(err error, d time.Duration) {
		c.logger.Debug("Retrying Jupiter request",
			zap.String("method", method),
			zap.Duration("backoff", d),
			zap.Error(err))
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(notify))
}

func (c *Client) roundTrip(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(routingError(resp.StatusCode, body))
	}
	return body, nil
}

// routingError turns a 4xx answer into ErrRouting with the router's message.
func routingError(status int, body []byte) error {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		if e.ErrorCode != "" {
			return fmt.Errorf("%w: %s (%s)", ErrRouting, e.Error, e.ErrorCode)
		}
		return fmt.Errorf("%w: %s", ErrRouting, e.Error)
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return fmt.Errorf("%w: status %d, body: %s", ErrRouting, status, string(body))
}
