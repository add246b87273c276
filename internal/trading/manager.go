// internal/trading/manager.go
package trading

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-memebot/internal/config"
	"github.com/rovshanmuradov/solana-memebot/internal/events"
	"github.com/rovshanmuradov/solana-memebot/internal/jupiter"
	"github.com/rovshanmuradov/solana-memebot/internal/types"
	"github.com/rovshanmuradov/solana-memebot/internal/wallet"
)

// большинство новых токенов на Solana выпускаются с 6 знаками
const defaultTokenDecimals = 6

var (
	// ErrRoutingFailure means no quote or swap could be built; state is unchanged.
	ErrRoutingFailure = errors.New("routing failure")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNoPrice        = errors.New("no price for token")
)

// Router is the swap-routing service.
type Router interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error)
	BuildSwap(ctx context.Context, quote *jupiter.Quote, userPublicKey string) (types.SwapTransaction, error)
}

// PriceOracle returns the current USD price of a token.
type PriceOracle interface {
	TokenPrice(ctx context.Context, address string) (float64, error)
}

// Signers resolves the signer of a connected wallet.
type Signers interface {
	Signer(publicKey string) (wallet.Signer, error)
}

// MintInfo returns token decimals.
type MintInfo interface {
	TokenDecimals(ctx context.Context, mint string) (uint8, error)
}

// Manager drives positions through none -> active -> closed.
type Manager struct {
	store   *Store
	router  Router
	oracle  PriceOracle
	signers Signers
	mints   MintInfo
	params  config.Provider
	events  events.Publisher
	logger  *zap.Logger
	now     func() time.Time
}

type Deps struct {
	Store   *Store
	Router  Router
	Oracle  PriceOracle
	Signers Signers
	Mints   MintInfo // optional
	Params  config.Provider
	Events  events.Publisher // optional
}

func NewManager(d Deps, logger *zap.Logger) *Manager {
	return &Manager{
		store:   d.Store,
		router:  d.Router,
		oracle:  d.Oracle,
		signers: d.Signers,
		mints:   d.Mints,
		params:  d.Params,
		events:  d.Events,
		logger:  logger.Named("positions"),
		now:     time.Now,
	}
}

// Open buys amount SOL worth of the candidate for the wallet. No position is
// recorded unless quote, swap and signature all succeed.
func (m *Manager) Open(ctx context.Context, c types.CandidateToken, walletAddr string, amount float64) (types.Position, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return types.Position{}, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	p := m.params.Trading()
	log := m.logger.With(
		zap.String("token", c.Address),
		zap.String("symbol", c.Symbol),
		zap.String("wallet", walletAddr),
		zap.Float64("amount", amount))

	signer, err := m.signers.Signer(walletAddr)
	if err != nil {
		return types.Position{}, err
	}

	entry := c.PriceUSD
	if entry <= 0 {
		if entry, err = m.oracle.TokenPrice(ctx, c.Address); err != nil {
			return types.Position{}, fmt.Errorf("%w: %s: %w", ErrNoPrice, c.Address, err)
		}
	}
	if entry <= 0 {
		return types.Position{}, fmt.Errorf("%w: %s", ErrNoPrice, c.Address)
	}

	lamports, err := jupiter.LamportsFromSOL(amount)
	if err != nil || lamports == 0 {
		return types.Position{}, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}

	quote, err := m.router.Quote(ctx, jupiter.QuoteRequest{
		InputMint:   jupiter.SOLMint,
		OutputMint:  c.Address,
		Amount:      lamports,
		SlippageBps: types.SlippageBps(p.MaxSlippagePct),
	})
	if err != nil {
		log.Warn("Buy quote failed", zap.Error(err))
		return types.Position{}, fmt.Errorf("%w: quote buy: %w", ErrRoutingFailure, err)
	}
	raw, err := quote.OutAmountRaw()
	if err != nil {
		return types.Position{}, fmt.Errorf("%w: %w", ErrRoutingFailure, err)
	}

	swap, err := m.router.BuildSwap(ctx, quote, walletAddr)
	if err != nil {
		log.Warn("Buy swap build failed", zap.Error(err))
		return types.Position{}, fmt.Errorf("%w: build buy swap: %w", ErrRoutingFailure, err)
	}

	signature, err := signer.Sign(ctx, swap)
	if err != nil {
		log.Warn("Buy transaction not signed", zap.Error(err))
		return types.Position{}, fmt.Errorf("sign buy: %w", err)
	}

	// с этого момента сделка исполнена, позиция должна быть записана
	decimals := m.tokenDecimals(ctx, c.Address)
	now := m.now()
	pos := types.Position{
		Wallet:           walletAddr,
		TokenAddress:     c.Address,
		TokenSymbol:      c.Symbol,
		TokenName:        c.Name,
		URL:              c.URL,
		AmountCommitted:  amount,
		QuantityAcquired: jupiter.FromSmallestUnits(raw, decimals),
		QuantityRaw:      raw,
		EntryPrice:       entry,
		StopLossPrice:    entry * (1 - p.StopLossPct/100),
		TakeProfitPrice:  entry * (1 + p.TakeProfitPct/100),
		OpenTime:         now,
		BuySignature:     signature,
		Status:           types.StatusActive,
	}
	if err := m.insert(&pos); err != nil {
		log.Error("Executed buy could not be recorded", zap.String("signature", signature), zap.Error(err))
		return types.Position{}, err
	}

	log.Info("Position opened",
		zap.String("id", pos.ID),
		zap.Float64("entryPrice", pos.EntryPrice),
		zap.Float64("stopLoss", pos.StopLossPrice),
		zap.Float64("takeProfit", pos.TakeProfitPrice),
		zap.Float64("quantity", pos.QuantityAcquired),
		zap.String("signature", signature))
	m.publish(events.Opened(pos))

	return pos, nil
}

// insert assigns an id and stores the position. Ids collide only when two
// positions on the same token open in the same nanosecond.
func (m *Manager) insert(pos *types.Position) error {
	opened := pos.OpenTime
	for i := 0; i < 3; i++ {
		pos.ID = types.PositionID(pos.TokenAddress, opened)
		err := m.store.Insert(*pos)
		if !errors.Is(err, ErrDuplicateKey) {
			return err
		}
		opened = opened.Add(time.Nanosecond)
	}
	return ErrDuplicateKey
}

func (m *Manager) tokenDecimals(ctx context.Context, mint string) uint8 {
	if m.mints == nil {
		return defaultTokenDecimals
	}
	d, err := m.mints.TokenDecimals(ctx, mint)
	if err != nil {
		m.logger.Warn("Token decimals unavailable, using default",
			zap.String("token", mint),
			zap.Int("default", defaultTokenDecimals),
			zap.Error(err))
		return defaultTokenDecimals
	}
	return d
}

// Check evaluates the exit conditions of an active position against the
// current oracle price. The position itself is not modified.
func (m *Manager) Check(ctx context.Context, id string) (types.ConditionCheck, error) {
	pos, err := m.store.Get(id)
	if err != nil {
		return types.ConditionCheck{}, fmt.Errorf("check %s: %w", id, err)
	}

	price, err := m.oracle.TokenPrice(ctx, pos.TokenAddress)
	if err != nil {
		return types.ConditionCheck{}, fmt.Errorf("price for %s: %w", pos.TokenAddress, err)
	}
	if price <= 0 {
		return types.ConditionCheck{}, fmt.Errorf("%w: %s", ErrNoPrice, pos.TokenAddress)
	}

	prev, err := m.store.ObservePrice(id, price)
	if err != nil {
		return types.ConditionCheck{}, fmt.Errorf("check %s: %w", id, err)
	}

	check := Evaluate(pos, price, prev, m.params.Trading().SuspiciousDropPct)
	m.logger.Debug("Position checked",
		zap.String("id", id),
		zap.Float64("price", price),
		zap.Float64("pnlPct", check.CurrentPnLPct),
		zap.Bool("shouldClose", check.ShouldClose),
		zap.String("reason", string(check.Reason)))
	return check, nil
}

// Evaluate applies the stop-loss, take-profit and sharp-drop rules.
// Priority when several fire: stop loss, take profit, suspicious activity.
func Evaluate(pos types.Position, price, prevPrice, suspiciousDropPct float64) types.ConditionCheck {
	c := types.ConditionCheck{
		PositionID:   pos.ID,
		TokenSymbol:  pos.TokenSymbol,
		EntryPrice:   pos.EntryPrice,
		CurrentPrice: price,
	}
	if pos.EntryPrice > 0 {
		c.CurrentPnLPct = (price - pos.EntryPrice) / pos.EntryPrice * 100
	}
	if prevPrice > 0 {
		c.FractionChange = (price - prevPrice) / prevPrice
	}

	c.HitStopLoss = price <= pos.StopLossPrice
	c.HitTakeProfit = price >= pos.TakeProfitPrice
	c.Suspicious = c.FractionChange < -suspiciousDropPct/100
	c.ShouldClose = c.HitStopLoss || c.HitTakeProfit || c.Suspicious

	switch {
	case c.HitStopLoss:
		c.Reason = types.ReasonStopLoss
	case c.HitTakeProfit:
		c.Reason = types.ReasonTakeProfit
	case c.Suspicious:
		c.Reason = types.ReasonSuspiciousActivity
	}
	return c
}

// Close sells the whole position back to SOL. On any failure the position
// stays active. A concurrent close of the same id gets ErrNotFound.
func (m *Manager) Close(ctx context.Context, id string, exitPrice float64, reason types.CloseReason) (closed types.Position, err error) {
	pos, err := m.store.Claim(id)
	if err != nil {
		return types.Position{}, fmt.Errorf("close %s: %w", id, err)
	}
	committed := false
	defer func() {
		if !committed {
			m.store.Release(id)
		}
	}()

	log := m.logger.With(
		zap.String("id", id),
		zap.String("symbol", pos.TokenSymbol),
		zap.String("wallet", pos.Wallet),
		zap.String("reason", string(reason)))

	signer, err := m.signers.Signer(pos.Wallet)
	if err != nil {
		return types.Position{}, err
	}
	if pos.QuantityRaw == 0 {
		return types.Position{}, fmt.Errorf("%w: position %s holds nothing", ErrInvalidAmount, id)
	}

	quote, err := m.router.Quote(ctx, jupiter.QuoteRequest{
		InputMint:   pos.TokenAddress,
		OutputMint:  jupiter.SOLMint,
		Amount:      pos.QuantityRaw,
		SlippageBps: types.SlippageBps(m.params.Trading().MaxSlippagePct),
	})
	if err != nil {
		log.Warn("Sell quote failed", zap.Error(err))
		return types.Position{}, fmt.Errorf("%w: quote sell: %w", ErrRoutingFailure, err)
	}
	lamports, err := quote.OutAmountRaw()
	if err != nil {
		return types.Position{}, fmt.Errorf("%w: %w", ErrRoutingFailure, err)
	}

	swap, err := m.router.BuildSwap(ctx, quote, pos.Wallet)
	if err != nil {
		log.Warn("Sell swap build failed", zap.Error(err))
		return types.Position{}, fmt.Errorf("%w: build sell swap: %w", ErrRoutingFailure, err)
	}

	signature, err := signer.Sign(ctx, swap)
	if err != nil {
		log.Warn("Sell transaction not signed", zap.Error(err))
		return types.Position{}, fmt.Errorf("sign sell: %w", err)
	}

	proceeds := jupiter.SOLFromLamports(lamports)
	closed = pos
	closed.Status = types.StatusClosed
	closed.ExitPrice = exitPrice
	closed.Proceeds = proceeds
	closed.CloseTime = m.now()
	closed.RealizedPnL = proceeds - pos.AmountCommitted
	if pos.AmountCommitted > 0 {
		closed.RealizedPnLPct = closed.RealizedPnL / pos.AmountCommitted * 100
	}
	closed.CloseReason = reason
	closed.SellSignature = signature

	if err := m.store.Commit(closed); err != nil {
		log.Error("Executed sell could not be recorded", zap.String("signature", signature), zap.Error(err))
		return types.Position{}, err
	}
	committed = true

	log.Info("Position closed",
		zap.Float64("exitPrice", exitPrice),
		zap.Float64("proceeds", proceeds),
		zap.Float64("pnl", closed.RealizedPnL),
		zap.Float64("pnlPct", closed.RealizedPnLPct),
		zap.Duration("held", closed.HoldTime(closed.CloseTime)),
		zap.String("signature", signature))
	m.publish(events.Closed(closed))

	return closed, nil
}

func (m *Manager) publish(e events.PositionEvent) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(e); err != nil {
		m.logger.Warn("Failed to publish position event",
			zap.String("type", string(e.Type)),
			zap.String("position", e.PositionID),
			zap.Error(err))
	}
}

// Get returns an active position by id.
func (m *Manager) Get(id string) (types.Position, error) {
	return m.store.Get(id)
}

// ListActive returns active positions, optionally for one wallet.
func (m *Manager) ListActive(wallet string) []types.Position {
	return m.store.Active(wallet)
}

// ListHistory returns closed positions in close order, optionally for one wallet.
func (m *Manager) ListHistory(wallet string) []types.Position {
	return m.store.History(wallet)
}

// HasActive reports whether wallet holds an active position in token.
func (m *Manager) HasActive(wallet, tokenAddress string) bool {
	return m.store.HasActive(wallet, tokenAddress)
}

// Summary aggregates positions of a wallet ("" = all wallets).
type Summary struct {
	Active          int
	Closed          int
	Wins            int
	Losses          int
	Breakeven       int
	ActiveCommitted float64
	TotalCommitted  float64
	RealizedPnL     float64
}

// WinRate returns the share of profitable closed trades in percent.
func (s Summary) WinRate() float64 {
	if s.Closed == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Closed) * 100
}

func (m *Manager) Summary(wallet string) Summary {
	var s Summary
	for _, p := range m.store.Active(wallet) {
		s.Active++
		s.ActiveCommitted += p.AmountCommitted
		s.TotalCommitted += p.AmountCommitted
	}
	for _, p := range m.store.History(wallet) {
		s.Closed++
		s.TotalCommitted += p.AmountCommitted
		s.RealizedPnL += p.RealizedPnL
		switch {
		case p.RealizedPnL > 0:
			s.Wins++
		case p.RealizedPnL < 0:
			s.Losses++
		default:
			s.Breakeven++
		}
	}
	return s
}
