// internal/events/types.go
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/rovshanmuradov/solana-memebot/internal/types"
)

// Type represents the type of position event.
type Type string

const (
	PositionOpened Type = "position.opened"
	PositionClosed Type = "position.closed"
)

// PositionEvent is emitted after every successful open or close.
type PositionEvent struct {
	ID   string
	Type Type
	Time time.Time

	PositionID   string
	Wallet       string
	TokenAddress string
	TokenSymbol  string
	URL          string

	Amount     float64 // SOL committed
	Quantity   float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Signature  string

	// заполняются только для PositionClosed
	ExitPrice float64
	Proceeds  float64
	PnL       float64
	PnLPct    float64
	Reason    types.CloseReason
	HoldTime  time.Duration
}

// Opened builds the event for a freshly opened position.
func Opened(p types.Position) PositionEvent {
	return PositionEvent{
		ID:           uuid.NewString(),
		Type:         PositionOpened,
		Time:         p.OpenTime,
		PositionID:   p.ID,
		Wallet:       p.Wallet,
		TokenAddress: p.TokenAddress,
		TokenSymbol:  p.TokenSymbol,
		URL:          p.URL,
		Amount:       p.AmountCommitted,
		Quantity:     p.QuantityAcquired,
		EntryPrice:   p.EntryPrice,
		StopLoss:     p.StopLossPrice,
		TakeProfit:   p.TakeProfitPrice,
		Signature:    p.BuySignature,
	}
}

// Closed builds the event for a position moved to history.
func Closed(p types.Position) PositionEvent {
	e := Opened(p)
	e.ID = uuid.NewString()
	e.Type = PositionClosed
	e.Time = p.CloseTime
	e.Signature = p.SellSignature
	e.ExitPrice = p.ExitPrice
	e.Proceeds = p.Proceeds
	e.PnL = p.RealizedPnL
	e.PnLPct = p.RealizedPnLPct
	e.Reason = p.CloseReason
	e.HoldTime = p.HoldTime(p.CloseTime)
	return e
}
