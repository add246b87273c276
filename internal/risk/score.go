package risk

import (
	"math"

	"github.com/rovshanmuradov/solana-memebot/internal/types"
)

const (
	// DefaultHighRisk is returned when the score cannot be computed.
	DefaultHighRisk = 75.0

	baseRisk         = 50.0
	maxAgeBonus      = 20.0
	youngTokenHours  = 24.0
	maxLiquidityRisk = 20.0
	redFlagPenalty   = 5.0
	dumpPriceChange  = -20.0
	pumpPriceChange  = 100.0
	heavyBuyPressure = 2.0
	scoreFloor       = 0.0
	scoreCeiling     = 100.0
)

// RiskScore combines age, liquidity, trade flow and volatility into a value
// in [0, 100]; lower is safer.
func RiskScore(r types.AnalysisResult, minLiquidity float64) (score float64) {
	defer func() {
		if rec := recover(); rec != nil {
			score = DefaultHighRisk
		}
	}()

	inputs := []float64{r.Token.AgeHours, r.TotalLiquidity, r.BuySellRatio, r.PriceChange24h, minLiquidity}
	for _, v := range inputs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return DefaultHighRisk
		}
	}
	if minLiquidity <= 0 {
		return DefaultHighRisk
	}

	score = baseRisk

	// молодые токены рискованнее
	score += math.Max(0, youngTokenHours-r.Token.AgeHours) / youngTokenHours * maxAgeBonus

	liquidityRisk := maxLiquidityRisk - r.TotalLiquidity/minLiquidity*10
	score += clamp(liquidityRisk, 0, maxLiquidityRisk)

	switch {
	case r.BuySellRatio < 0.5:
		score += 15
	case r.BuySellRatio < 1:
		score += 5
	case r.BuySellRatio >= heavyBuyPressure:
		score -= 10
	}

	switch {
	case r.PriceChange24h < dumpPriceChange:
		score += 10
	case r.PriceChange24h > pumpPriceChange:
		score += 5
	}

	score += float64(len(r.RedFlags)) * redFlagPenalty

	return clamp(score, scoreFloor, scoreCeiling)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
