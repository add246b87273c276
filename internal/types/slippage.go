// internal/types/slippage.go
package types

import "math"

// BasisPointsPerPercent: 1% = 100 bps.
const BasisPointsPerPercent = 100

// SlippageBps переводит допустимое проскальзывание из процентов в базисные пункты.
// Отрицательные значения приводятся к нулю.
func SlippageBps(percent float64) int {
	if percent <= 0 || math.IsNaN(percent) {
		return 0
	}
	return int(math.Round(percent * BasisPointsPerPercent))
}

// MinAmountOut returns the smallest acceptable output for a quoted amount
// under the given slippage tolerance in basis points.
func MinAmountOut(expected uint64, slippageBps int) uint64 {
	if slippageBps <= 0 {
		return expected
	}
	if slippageBps >= 10_000 {
		return 0
	}
	multiplier := 1.0 - float64(slippageBps)/10_000.0
	return uint64(math.Floor(float64(expected) * multiplier))
}
