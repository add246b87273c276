package risk

import "math"

// MinInvestmentFraction is the smallest share of the budget ever suggested.
const MinInvestmentFraction = 0.1

// SuggestAmount scales maxAmount down as the risk score grows. The result is
// always within [0.1*maxAmount, maxAmount] for scores in [0, 100].
func SuggestAmount(riskScore, maxAmount float64) float64 {
	fraction := math.Max(MinInvestmentFraction, (100-riskScore)/100)
	if fraction > 1 {
		fraction = 1
	}
	return maxAmount * fraction
}

// WalletBudget is the part of a balance the bot may commit to one trade.
func WalletBudget(balance, exposurePct, maxBuy float64) float64 {
	return math.Min(maxBuy, balance*exposurePct/100)
}
