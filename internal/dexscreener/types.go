// internal/dexscreener/types.go
package dexscreener

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Response is the envelope of every pairs/tokens endpoint.
type Response struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []Pair `json:"pairs"`
}

// Pair содержит информацию о торговой паре
type Pair struct {
	ChainID       string    `json:"chainId"`
	DexID         string    `json:"dexId"`
	URL           string    `json:"url"`
	PairAddress   string    `json:"pairAddress"`
	BaseToken     Token     `json:"baseToken"`
	QuoteToken    Token     `json:"quoteToken"`
	PriceNative   string    `json:"priceNative"`
	PriceUSD      string    `json:"priceUsd"`
	Txns          Txns      `json:"txns"`
	Volume        Windows   `json:"volume"`
	PriceChange   Windows   `json:"priceChange"`
	Liquidity     Liquidity `json:"liquidity"`
	FDV           float64   `json:"fdv"`
	MarketCap     float64   `json:"marketCap"`
	PairCreatedAt int64     `json:"pairCreatedAt"`
}

type Token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type Liquidity struct {
	USD   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

// Windows holds per-window figures (volume, price change).
type Windows struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

type BuysSells struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

type Txns struct {
	M5  BuysSells `json:"m5"`
	H1  BuysSells `json:"h1"`
	H6  BuysSells `json:"h6"`
	H24 BuysSells `json:"h24"`
}

// PriceUSDValue parses the string price. An empty price is reported as zero.
func (p Pair) PriceUSDValue() (float64, error) {
	s := strings.TrimSpace(p.PriceUSD)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: price %q of pair %s", ErrData, p.PriceUSD, p.PairAddress)
	}
	return v, nil
}

// CreatedAt converts the millisecond creation stamp.
func (p Pair) CreatedAt() time.Time {
	return time.UnixMilli(p.PairCreatedAt)
}

// MarketCapUSD prefers the fully diluted valuation and falls back to market
// cap. Zero means unknown.
func (p Pair) MarketCapUSD() float64 {
	if p.FDV > 0 {
		return p.FDV
	}
	return p.MarketCap
}

// PageURL returns the pair page on dexscreener.com.
func (p Pair) PageURL() string {
	if p.URL != "" {
		return p.URL
	}
	chain := p.ChainID
	if chain == "" {
		chain = "solana"
	}
	return fmt.Sprintf("https://dexscreener.com/%s/%s", chain, p.PairAddress)
}
