// internal/bot/loop.go
package bot

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-memebot/internal/config"
	"github.com/rovshanmuradov/solana-memebot/internal/logger"
	"github.com/rovshanmuradov/solana-memebot/internal/risk"
	"github.com/rovshanmuradov/solana-memebot/internal/trading"
	"github.com/rovshanmuradov/solana-memebot/internal/types"
)

// CandidateSource yields newly discovered tokens.
type CandidateSource interface {
	Scan(ctx context.Context) iter.Seq[types.CandidateToken]
}

type TokenAnalyzer interface {
	Analyze(ctx context.Context, token types.CandidateToken) types.AnalysisResult
}

// Positions is the part of trading.Manager the loop drives.
type Positions interface {
	Open(ctx context.Context, c types.CandidateToken, wallet string, amount float64) (types.Position, error)
	Check(ctx context.Context, id string) (types.ConditionCheck, error)
	Close(ctx context.Context, id string, exitPrice float64, reason types.CloseReason) (types.Position, error)
	ListActive(wallet string) []types.Position
	HasActive(wallet, tokenAddress string) bool
}

type WalletLister interface {
	List() []string
}

type BalanceProvider interface {
	Balance(ctx context.Context, wallet string) (float64, error)
}

// CycleReport summarizes one pass of the loop.
type CycleReport struct {
	Candidates int
	Analyzed   int
	Promising  int
	Opened     int
	Checked    int
	Closed     int
	Errors     int
}

// Loop is the fixed-interval driver: discover, analyze, size, open, then
// check every active position and close what is due.
type Loop struct {
	scanner   CandidateSource
	analyzer  TokenAnalyzer
	positions Positions
	wallets   WalletLister
	balances  BalanceProvider
	params    config.Provider
	workers   int
	logger    *zap.Logger
}

type LoopDeps struct {
	Scanner   CandidateSource
	Analyzer  TokenAnalyzer
	Positions Positions
	Wallets   WalletLister
	Balances  BalanceProvider
	Params    config.Provider
	Workers   int
}

func NewLoop(d LoopDeps, log *zap.Logger) *Loop {
	workers := d.Workers
	if workers <= 0 {
		workers = config.DefaultCheckWorkers
	}
	return &Loop{
		scanner:   d.Scanner,
		analyzer:  d.Analyzer,
		positions: d.Positions,
		wallets:   d.Wallets,
		balances:  d.Balances,
		params:    d.Params,
		workers:   workers,
		logger:    log.Named("loop"),
	}
}

// Run executes cycles until ctx is canceled. Cancellation is observed
// between cycles; trades already sent keep running to completion.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Monitoring loop started",
		zap.Duration("interval", l.params.Trading().PollInterval()))

	for {
		if ctx.Err() != nil {
			l.logger.Info("Monitoring loop stopped")
			return nil
		}

		report := l.RunOnce(ctx)
		l.logger.Info("Cycle completed",
			zap.Int("candidates", report.Candidates),
			zap.Int("analyzed", report.Analyzed),
			zap.Int("promising", report.Promising),
			zap.Int("opened", report.Opened),
			zap.Int("checked", report.Checked),
			zap.Int("closed", report.Closed),
			zap.Int("errors", report.Errors))

		// интервал перечитывается каждый цикл
		timer := time.NewTimer(l.params.Trading().PollInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			l.logger.Info("Monitoring loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce performs a single cycle. Errors are counted and logged per item.
func (l *Loop) RunOnce(ctx context.Context) CycleReport {
	defer logger.TrackPerformance(l.logger, "cycle")()

	var report CycleReport
	l.discover(ctx, &report)
	l.monitor(ctx, &report)
	return report
}

func (l *Loop) discover(ctx context.Context, report *CycleReport) {
	for candidate := range l.scanner.Scan(ctx) {
		report.Candidates++
		if ctx.Err() != nil {
			return
		}

		result := l.analyzer.Analyze(ctx, candidate)
		report.Analyzed++
		if result.Err != nil {
			report.Errors++
			continue
		}
		if !result.Tradable() {
			continue
		}
		report.Promising++

		l.logger.Info("Promising token found",
			zap.String("token", candidate.Address),
			zap.String("symbol", candidate.Symbol),
			zap.Float64("riskScore", result.RiskScore),
			zap.Strings("reasons", result.Reasons))

		for _, w := range l.wallets.List() {
			opened, err := l.tryOpen(ctx, result, w)
			if err != nil {
				report.Errors++
				continue
			}
			if opened {
				report.Opened++
			}
		}
	}
}

// tryOpen sizes and opens a position in one wallet. Returns false without
// error when the wallet is skipped.
func (l *Loop) tryOpen(ctx context.Context, result types.AnalysisResult, walletAddr string) (bool, error) {
	c := result.Token
	log := logger.WithWallet(l.logger, walletAddr).With(zap.String("symbol", c.Symbol))
	p := l.params.Trading()

	if l.positions.HasActive(walletAddr, c.Address) {
		log.Debug("Wallet already holds token, skipping")
		return false, nil
	}

	balance, err := l.balances.Balance(ctx, walletAddr)
	if err != nil {
		log.Warn("Failed to get wallet balance", zap.Error(err))
		return false, err
	}
	budget := risk.WalletBudget(balance, p.MaxWalletExposurePct, p.MaxBuyAmount)
	if balance*p.MaxWalletExposurePct/100 < p.MinBuyAmount {
		log.Debug("Wallet exposure below minimum buy", zap.Float64("balance", balance))
		return false, nil
	}

	amount := risk.SuggestAmount(result.RiskScore, budget)
	if amount < p.MinBuyAmount {
		log.Debug("Suggested amount below minimum buy",
			zap.Float64("amount", amount),
			zap.Float64("minBuy", p.MinBuyAmount))
		return false, nil
	}

	pos, err := l.detached(ctx, func(ctx context.Context) (types.Position, error) {
		return l.positions.Open(ctx, c, walletAddr, amount)
	})
	if err != nil {
		log.Warn("Failed to open position", zap.Float64("amount", amount), zap.Error(err))
		return false, err
	}
	log.Info("Automatic buy executed",
		zap.String("id", pos.ID),
		zap.Float64("amount", amount),
		zap.Float64("riskScore", result.RiskScore))
	return true, nil
}

// monitor checks all active positions with bounded parallelism.
func (l *Loop) monitor(ctx context.Context, report *CycleReport) {
	active := l.positions.ListActive("")
	if len(active) == 0 {
		return
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)

	for _, pos := range active {
		g.Go(func() error {
			closed, err := l.checkPosition(gctx, pos)

			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			if err != nil {
				report.Errors++
			}
			if closed {
				report.Closed++
			}
			// ошибки одной позиции не отменяют проверку остальных
			return nil
		})
	}
	_ = g.Wait()
}

func (l *Loop) checkPosition(ctx context.Context, pos types.Position) (bool, error) {
	log := l.logger.With(zap.String("id", pos.ID), zap.String("symbol", pos.TokenSymbol))

	check, err := l.positions.Check(ctx, pos.ID)
	if err != nil {
		if errors.Is(err, trading.ErrNotFound) {
			// закрыта параллельно
			return false, nil
		}
		log.Warn("Position check failed", zap.Error(err))
		return false, err
	}
	if !check.ShouldClose {
		return false, nil
	}

	log.Info("Exit condition met",
		zap.String("reason", string(check.Reason)),
		zap.Float64("price", check.CurrentPrice),
		zap.Float64("pnlPct", check.CurrentPnLPct))

	closed, err := l.detached(ctx, func(ctx context.Context) (types.Position, error) {
		return l.positions.Close(ctx, pos.ID, check.CurrentPrice, check.Reason)
	})
	if err != nil {
		if errors.Is(err, trading.ErrNotFound) {
			return false, nil
		}
		log.Warn("Failed to close position", zap.Error(err))
		return false, err
	}
	log.Info("Automatic sell executed",
		zap.Float64("pnl", closed.RealizedPnL),
		zap.Float64("pnlPct", closed.RealizedPnLPct))
	return true, nil
}

// detached runs a trade on a context that ignores cancellation so a signed
// swap is always recorded.
func (l *Loop) detached(ctx context.Context, fn func(context.Context) (types.Position, error)) (types.Position, error) {
	return fn(context.WithoutCancel(ctx))
}

var _ Positions = (*trading.Manager)(nil)
