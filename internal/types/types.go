// internal/types/types.go
package types

import (
	"fmt"
	"time"
)

// CandidateToken - токен, прошедший фильтры сканера. Не изменяется после создания.
type CandidateToken struct {
	Address      string
	Symbol       string
	Name         string
	PairAddress  string
	DexID        string
	URL          string
	PriceUSD     float64
	LiquidityUSD float64
	MarketCap    float64
	CreatedAt    time.Time
	AgeHours     float64
}

// AnalysisResult holds aggregated pair metrics and the verdict for one candidate.
type AnalysisResult struct {
	Token CandidateToken

	TotalLiquidity float64
	Volume24h      float64
	PriceChange24h float64
	BuyCount       int
	SellCount      int
	BuySellRatio   float64

	Reasons     []string
	RedFlags    []string
	IsPromising bool

	// RiskScore is meaningful only when Scored is true.
	RiskScore float64
	Scored    bool
	Err       error
}

// Tradable reports whether the result may be sized and opened.
func (r AnalysisResult) Tradable() bool {
	return r.IsPromising && r.Scored && r.Err == nil
}

// PositionStatus is the lifecycle state of a Position.
type PositionStatus string

const (
	StatusActive PositionStatus = "active"
	StatusClosed PositionStatus = "closed"
)

// CloseReason explains why a position was (or should be) closed.
type CloseReason string

const (
	ReasonNone               CloseReason = ""
	ReasonStopLoss           CloseReason = "stop_loss"
	ReasonTakeProfit         CloseReason = "take_profit"
	ReasonSuspiciousActivity CloseReason = "suspicious_activity"
	ReasonManual             CloseReason = "manual"
)

// Position is an open or closed trade owned by the position store.
type Position struct {
	ID           string
	Wallet       string
	TokenAddress string
	TokenSymbol  string
	TokenName    string
	URL          string

	AmountCommitted  float64 // SOL
	QuantityAcquired float64
	QuantityRaw      uint64 // smallest token units, used for the exit quote

	EntryPrice      float64
	StopLossPrice   float64
	TakeProfitPrice float64
	OpenTime        time.Time
	BuySignature    string

	Status PositionStatus

	ExitPrice      float64
	Proceeds       float64 // SOL
	CloseTime      time.Time
	RealizedPnL    float64
	RealizedPnLPct float64
	CloseReason    CloseReason
	SellSignature  string
}

// PositionID builds the id of a position opened at the given moment.
func PositionID(tokenAddress string, openedAt time.Time) string {
	return fmt.Sprintf("%s_%d", tokenAddress, openedAt.UnixNano())
}

// HoldTime returns how long the position was (or has been) held.
func (p Position) HoldTime(now time.Time) time.Duration {
	if p.Status == StatusClosed && !p.CloseTime.IsZero() {
		return p.CloseTime.Sub(p.OpenTime)
	}
	return now.Sub(p.OpenTime)
}

// ConditionCheck is the result of evaluating exit conditions for a position.
type ConditionCheck struct {
	PositionID     string
	TokenSymbol    string
	EntryPrice     float64
	CurrentPrice   float64
	CurrentPnLPct  float64
	FractionChange float64 // change since the previous observation

	HitStopLoss   bool
	HitTakeProfit bool
	Suspicious    bool
	ShouldClose   bool
	Reason        CloseReason
}

// SwapTransaction is an unsigned, serialized swap ready for the wallet signer.
type SwapTransaction struct {
	Wallet               string
	Transaction          string // base64
	LastValidBlockHeight uint64
}
