// internal/scanner/scanner.go
package scanner

import (
	"context"
	"iter"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-memebot/internal/config"
	"github.com/rovshanmuradov/solana-memebot/internal/dexscreener"
	"github.com/rovshanmuradov/solana-memebot/internal/types"
)

// PairSource отдает список свежих пар для сети.
type PairSource interface {
	GetPairs(ctx context.Context, chain string, limit int) ([]dexscreener.Pair, error)
}

// Scanner yields new tokens that pass the age, liquidity and market cap
// filters. An address is never yielded twice by the same Scanner.
type Scanner struct {
	source PairSource
	params config.Provider
	chain  string
	limit  int
	logger *zap.Logger
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]struct{}
}

func New(source PairSource, params config.Provider, chain string, limit int, logger *zap.Logger) *Scanner {
	if chain == "" {
		chain = "solana"
	}
	if limit <= 0 {
		limit = 100
	}
	return &Scanner{
		source: source,
		params: params,
		chain:  chain,
		limit:  limit,
		logger: logger.Named("scanner"),
		now:    time.Now,
		seen:   make(map[string]struct{}),
	}
}

// Scan fetches the current pair list once and returns a lazy sequence of
// candidates. Discovery errors are logged and produce an empty sequence.
func (s *Scanner) Scan(ctx context.Context) iter.Seq[types.CandidateToken] {
	pairs, err := s.source.GetPairs(ctx, s.chain, s.limit)
	if err != nil {
		s.logger.Error("Failed to fetch pairs", zap.String("chain", s.chain), zap.Error(err))
		return func(func(types.CandidateToken) bool) {}
	}
	s.logger.Debug("Fetched pairs", zap.String("chain", s.chain), zap.Int("count", len(pairs)))

	params := s.params.Trading()
	now := s.now()

	return func(yield func(types.CandidateToken) bool) {
		for _, pair := range pairs {
			if ctx.Err() != nil {
				return
			}
			candidate, ok := s.evaluate(pair, params, now)
			if !ok {
				continue
			}
			if !s.markSeen(candidate.Address) {
				continue
			}
			if !yield(candidate) {
				return
			}
		}
	}
}

// Seen reports how many addresses the scanner has already yielded.
func (s *Scanner) Seen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func (s *Scanner) evaluate(pair dexscreener.Pair, p config.TradingParams, now time.Time) (types.CandidateToken, bool) {
	address := pair.BaseToken.Address
	if address == "" {
		s.logger.Debug("Skipping pair without base token", zap.String("pair", pair.PairAddress))
		return types.CandidateToken{}, false
	}
	if s.isSeen(address) {
		return types.CandidateToken{}, false
	}

	price, err := pair.PriceUSDValue()
	if err != nil {
		s.logger.Debug("Skipping pair with bad price", zap.String("token", address), zap.Error(err))
		return types.CandidateToken{}, false
	}

	if pair.PairCreatedAt <= 0 {
		return types.CandidateToken{}, false
	}
	createdAt := pair.CreatedAt()
	ageHours := now.Sub(createdAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}

	marketCap := pair.MarketCapUSD()
	switch {
	case ageHours > p.MaxAgeHours:
		return types.CandidateToken{}, false
	case pair.Liquidity.USD < p.MinLiquidity:
		return types.CandidateToken{}, false
	case p.MaxMarketCap > 0 && marketCap != 0 && marketCap > p.MaxMarketCap:
		// max_market_cap 0 отключает фильтр; неизвестная капитализация (0) проходит
		return types.CandidateToken{}, false
	}

	return types.CandidateToken{
		Address:      address,
		Symbol:       pair.BaseToken.Symbol,
		Name:         pair.BaseToken.Name,
		PairAddress:  pair.PairAddress,
		DexID:        pair.DexID,
		URL:          pair.PageURL(),
		PriceUSD:     price,
		LiquidityUSD: pair.Liquidity.USD,
		MarketCap:    marketCap,
		CreatedAt:    createdAt,
		AgeHours:     ageHours,
	}, true
}

func (s *Scanner) isSeen(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[address]
	return ok
}

// markSeen records address and reports whether it was new.
func (s *Scanner) markSeen(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[address]; ok {
		return false
	}
	s.seen[address] = struct{}{}
	return true
}
