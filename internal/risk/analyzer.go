// internal/risk/analyzer.go
package risk

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-memebot/internal/config"
	"github.com/rovshanmuradov/solana-memebot/internal/dexscreener"
	"github.com/rovshanmuradov/solana-memebot/internal/types"
)

// PairLookup returns every pair trading a token.
type PairLookup interface {
	GetTokenPairs(ctx context.Context, address string) ([]dexscreener.Pair, error)
}

const (
	lowBuySellRatio    = 0.5
	strongBuySellRatio = 1.5
	crashPriceChange   = -30.0
	rallyPriceChange   = 20.0
	volumeToLiquidity  = 0.3
)

// Analyzer aggregates all pairs of a candidate and produces a verdict with a
// risk score.
type Analyzer struct {
	pairs  PairLookup
	params config.Provider
	logger *zap.Logger
}

func NewAnalyzer(pairs PairLookup, params config.Provider, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		pairs:  pairs,
		params: params,
		logger: logger.Named("risk"),
	}
}

// Analyze never fails: a discovery error is reported in the result with
// Scored=false so the caller does not trade on it.
func (a *Analyzer) Analyze(ctx context.Context, token types.CandidateToken) types.AnalysisResult {
	p := a.params.Trading()

	pairs, err := a.pairs.GetTokenPairs(ctx, token.Address)
	if err != nil {
		a.logger.Warn("Failed to get token pairs",
			zap.String("token", token.Address),
			zap.String("symbol", token.Symbol),
			zap.Error(err))
		return types.AnalysisResult{
			Token:       token,
			Reasons:     []string{fmt.Sprintf("error getting token pairs: %v", err)},
			IsPromising: false,
			Err:         err,
		}
	}

	result := aggregate(token, pairs)
	result.RedFlags = redFlags(result, p)
	result.Reasons = reasons(result, p)
	result.IsPromising = Verdict(len(result.Reasons), len(result.RedFlags), p)
	result.RiskScore = RiskScore(result, p.MinLiquidity)
	result.Scored = true

	a.logger.Debug("Token analyzed",
		zap.String("token", token.Address),
		zap.String("symbol", token.Symbol),
		zap.Float64("liquidity", result.TotalLiquidity),
		zap.Float64("volume24h", result.Volume24h),
		zap.Float64("buySellRatio", result.BuySellRatio),
		zap.Strings("reasons", result.Reasons),
		zap.Strings("redFlags", result.RedFlags),
		zap.Bool("promising", result.IsPromising),
		zap.Float64("riskScore", result.RiskScore))

	return result
}

// Verdict applies the reasons / red flags thresholds.
func Verdict(reasons, redFlags int, p config.TradingParams) bool {
	return reasons >= p.MinReasons && redFlags <= p.MaxRedFlags
}

func aggregate(token types.CandidateToken, pairs []dexscreener.Pair) types.AnalysisResult {
	r := types.AnalysisResult{Token: token}
	for _, pair := range pairs {
		r.TotalLiquidity += pair.Liquidity.USD
		r.Volume24h += pair.Volume.H24
		// сохраняем изменение цены с максимальным модулем, со знаком
		if math.Abs(pair.PriceChange.H24) > math.Abs(r.PriceChange24h) {
			r.PriceChange24h = pair.PriceChange.H24
		}
		r.BuyCount += pair.Txns.H24.Buys
		r.SellCount += pair.Txns.H24.Sells
	}
	r.BuySellRatio = float64(r.BuyCount) / float64(max(1, r.SellCount))
	return r
}

func redFlags(r types.AnalysisResult, p config.TradingParams) []string {
	var flags []string
	if r.TotalLiquidity < p.MinLiquidity {
		flags = append(flags, fmt.Sprintf("Low liquidity ($%.0f)", r.TotalLiquidity))
	}
	if r.BuySellRatio < lowBuySellRatio {
		flags = append(flags, fmt.Sprintf("More sells than buys (ratio %.2f)", r.BuySellRatio))
	}
	if r.PriceChange24h < crashPriceChange {
		flags = append(flags, fmt.Sprintf("Price crashed %.1f%% in 24h", r.PriceChange24h))
	}
	return flags
}

func reasons(r types.AnalysisResult, p config.TradingParams) []string {
	var out []string
	if r.TotalLiquidity >= 2*p.MinLiquidity {
		out = append(out, fmt.Sprintf("Strong liquidity ($%.0f)", r.TotalLiquidity))
	}
	if r.BuySellRatio > strongBuySellRatio {
		out = append(out, fmt.Sprintf("Strong buy pressure (ratio %.2f)", r.BuySellRatio))
	}
	if r.PriceChange24h > rallyPriceChange {
		out = append(out, fmt.Sprintf("Price up %.1f%% in 24h", r.PriceChange24h))
	}
	if r.Volume24h > volumeToLiquidity*r.TotalLiquidity {
		out = append(out, fmt.Sprintf("High trading volume ($%.0f)", r.Volume24h))
	}
	return out
}
