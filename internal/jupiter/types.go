// internal/jupiter/types.go
package jupiter

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// SOLDecimals - количество знаков у SOL (1 SOL = 1e9 lamports).
const SOLDecimals = 9

// SOLMint is the wrapped SOL mint used as the base currency of every swap.
var SOLMint = solana.WrappedSol.String()

// QuoteRequest describes one exact-in swap.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64 // smallest units of InputMint
	SlippageBps int
}

// Quote is the router answer. Raw keeps the original JSON, which has to be
// sent back unchanged when building the swap.
type Quote struct {
	InputMint            string      `json:"inputMint"`
	InAmount             string      `json:"inAmount"`
	OutputMint           string      `json:"outputMint"`
	OutAmount            string      `json:"outAmount"`
	OtherAmountThreshold string      `json:"otherAmountThreshold"`
	SwapMode             string      `json:"swapMode"`
	SlippageBps          int         `json:"slippageBps"`
	PriceImpactPct       string      `json:"priceImpactPct"`
	RoutePlan            []RoutePlan `json:"routePlan"`
	ContextSlot          uint64      `json:"contextSlot"`

	Raw json.RawMessage `json:"-"`
}

type RoutePlan struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
}

// OutAmountRaw parses the expected output in smallest units.
func (q *Quote) OutAmountRaw() (uint64, error) {
	return parseAmount("outAmount", q.OutAmount)
}

// InAmountRaw parses the input in smallest units.
func (q *Quote) InAmountRaw() (uint64, error) {
	return parseAmount("inAmount", q.InAmount)
}

// Labels lists the AMMs the route goes through.
func (q *Quote) Labels() []string {
	labels := make([]string, 0, len(q.RoutePlan))
	for _, step := range q.RoutePlan {
		labels = append(labels, step.SwapInfo.Label)
	}
	return labels
}

type swapRequest struct {
	QuoteResponse                 json.RawMessage `json:"quoteResponse"`
	UserPublicKey                 string          `json:"userPublicKey"`
	WrapAndUnwrapSol              bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit       bool            `json:"dynamicComputeUnitLimit"`
	ComputeUnitPriceMicroLamports uint64          `json:"computeUnitPriceMicroLamports,omitempty"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

func parseAmount(field, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s %q", ErrRouting, field, s)
	}
	return v, nil
}

// ToSmallestUnits converts a human amount into integer units, rounding down.
func ToSmallestUnits(amount float64, decimals uint8) (uint64, error) {
	d := decimal.NewFromFloat(amount)
	if d.IsNegative() {
		return 0, fmt.Errorf("negative amount %v", amount)
	}
	units := d.Shift(int32(decimals)).Floor()
	if !units.BigInt().IsUint64() {
		return 0, fmt.Errorf("amount %v overflows %d decimals", amount, decimals)
	}
	return units.BigInt().Uint64(), nil
}

// FromSmallestUnits converts integer units back to a human amount.
func FromSmallestUnits(units uint64, decimals uint8) float64 {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -int32(decimals)).InexactFloat64()
}

// LamportsFromSOL и SOLFromLamports - частные случаи для SOL.
func LamportsFromSOL(sol float64) (uint64, error) {
	return ToSmallestUnits(sol, SOLDecimals)
}

func SOLFromLamports(lamports uint64) float64 {
	return FromSmallestUnits(lamports, SOLDecimals)
}

func validateKey(kind, s string) error {
	if _, err := solana.PublicKeyFromBase58(s); err != nil {
		return fmt.Errorf("%w: invalid %s %q: %v", ErrRouting, kind, s, err)
	}
	return nil
}
