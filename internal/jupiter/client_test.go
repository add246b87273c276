package jupiter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-memebot/internal/types"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

var testWallet = solana.NewWallet().PublicKey().String()

const quoteBody = `{
  "inputMint": "So11111111111111111111111111111111111111112",
  "inAmount": "500000000",
  "outputMint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
  "outAmount": "12345678",
  "otherAmountThreshold": "12098764",
  "swapMode": "ExactIn",
  "slippageBps": 200,
  "priceImpactPct": "0.01",
  "routePlan": [{"swapInfo": {"ammKey": "AMM1", "label": "Raydium"}, "percent": 100}],
  "contextSlot": 42
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, zap.NewNop(), WithRetry(3, time.Millisecond))
}

func TestQuoteSendsParamsAndParses(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, SOLMint, q.Get("inputMint"))
		assert.Equal(t, testMint, q.Get("outputMint"))
		assert.Equal(t, "500000000", q.Get("amount"))
		assert.Equal(t, "200", q.Get("slippageBps"))
		_, _ = w.Write([]byte(quoteBody))
	})

	quote, err := c.Quote(context.Background(), QuoteRequest{
		InputMint:   SOLMint,
		OutputMint:  testMint,
		Amount:      500_000_000,
		SlippageBps: 200,
	})
	require.NoError(t, err)

	out, err := quote.OutAmountRaw()
	require.NoError(t, err)
	assert.Equal(t, uint64(12345678), out)
	assert.Equal(t, []string{"Raydium"}, quote.Labels())
	assert.JSONEq(t, quoteBody, string(quote.Raw))
}

func TestQuoteNoRoute(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Could not find any route","errorCode":"COULD_NOT_FIND_ANY_ROUTE"}`))
	})

	_, err := c.Quote(context.Background(), QuoteRequest{InputMint: SOLMint, OutputMint: testMint, Amount: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRouting))
	assert.Contains(t, err.Error(), "COULD_NOT_FIND_ANY_ROUTE")
}

func TestQuoteRejectsInvalidInput(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := c.Quote(context.Background(), QuoteRequest{InputMint: "not-a-key", OutputMint: testMint, Amount: 1})
	assert.ErrorIs(t, err, ErrRouting)

	_, err = c.Quote(context.Background(), QuoteRequest{InputMint: SOLMint, OutputMint: testMint, Amount: 0})
	assert.ErrorIs(t, err, ErrRouting)

	assert.Equal(t, int32(0), calls.Load())
}

func TestQuoteRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(quoteBody))
	})

	_, err := c.Quote(context.Background(), QuoteRequest{InputMint: SOLMint, OutputMint: testMint, Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQuoteZeroOutput(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"inAmount":"1","outAmount":"0"}`))
	})

	_, err := c.Quote(context.Background(), QuoteRequest{InputMint: SOLMint, OutputMint: testMint, Amount: 1})
	assert.ErrorIs(t, err, ErrRouting)
}

func TestBuildSwapEchoesQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quote":
			_, _ = w.Write([]byte(quoteBody))
		case "/swap":
			assert.Equal(t, http.MethodPost, r.Method)
			var req struct {
				QuoteResponse    json.RawMessage `json:"quoteResponse"`
				UserPublicKey    string          `json:"userPublicKey"`
				WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
				ComputeUnitPrice *uint64         `json:"computeUnitPriceMicroLamports"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.JSONEq(t, quoteBody, string(req.QuoteResponse))
			assert.Equal(t, testWallet, req.UserPublicKey)
			assert.True(t, req.WrapAndUnwrapSol)
			assert.Nil(t, req.ComputeUnitPrice, "no priority fee by default")
			_, _ = w.Write([]byte(`{"swapTransaction":"AQID","lastValidBlockHeight":777}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	quote, err := c.Quote(ctx, QuoteRequest{InputMint: SOLMint, OutputMint: testMint, Amount: 1})
	require.NoError(t, err)

	tx, err := c.BuildSwap(ctx, quote, testWallet)
	require.NoError(t, err)
	assert.Equal(t, "AQID", tx.Transaction)
	assert.Equal(t, uint64(777), tx.LastValidBlockHeight)
	assert.Equal(t, testWallet, tx.Wallet)
}

func TestBuildSwapEmptyTransaction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	quote := &Quote{OutAmount: "1", Raw: json.RawMessage(quoteBody)}
	_, err := c.BuildSwap(context.Background(), quote, testWallet)
	assert.ErrorIs(t, err, ErrRouting)
}

func TestUnitConversion(t *testing.T) {
	lamports, err := LamportsFromSOL(0.5)
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000_000), lamports)

	lamports, err = LamportsFromSOL(0.1)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), lamports)

	assert.InDelta(t, 1.5, SOLFromLamports(1_500_000_000), 1e-12)
	assert.InDelta(t, 12.345678, FromSmallestUnits(12_345_678, 6), 1e-12)

	_, err = LamportsFromSOL(-1)
	assert.Error(t, err)
}

func TestBuildSwapPriorityFee(t *testing.T) {
	var got atomic.Uint64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			DynamicComputeUnitLimit bool   `json:"dynamicComputeUnitLimit"`
			ComputeUnitPrice        uint64 `json:"computeUnitPriceMicroLamports"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.DynamicComputeUnitLimit)
		got.Store(req.ComputeUnitPrice)
		_, _ = w.Write([]byte(`{"swapTransaction":"AQID","lastValidBlockHeight":1}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, zap.NewNop(), WithPriority(types.PriorityHigh))
	quote := &Quote{OutAmount: "1", Raw: json.RawMessage(quoteBody)}
	_, err := c.BuildSwap(context.Background(), quote, testWallet)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), got.Load())
}

func TestQuoteRejectsLooseThreshold(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// 50% ниже котировки при запрошенных 2%
		_, _ = w.Write([]byte(`{"inAmount":"1000","outAmount":"1000","otherAmountThreshold":"500"}`))
	})

	_, err := c.Quote(context.Background(), QuoteRequest{InputMint: SOLMint, OutputMint: testMint, Amount: 1000, SlippageBps: 200})
	assert.ErrorIs(t, err, ErrRouting)
}
