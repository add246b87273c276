package bot

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-memebot/internal/config"
	"github.com/rovshanmuradov/solana-memebot/internal/trading"
	"github.com/rovshanmuradov/solana-memebot/internal/types"
)

type fakeScanner struct {
	tokens []types.CandidateToken
	onScan func()
	scans  int
}

func (f *fakeScanner) Scan(ctx context.Context) iter.Seq[types.CandidateToken] {
	f.scans++
	if f.onScan != nil {
		f.onScan()
	}
	return func(yield func(types.CandidateToken) bool) {
		for _, t := range f.tokens {
			if !yield(t) {
				return
			}
		}
	}
}

type fakeAnalyzer struct {
	results map[string]types.AnalysisResult
	hook    func()
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, token types.CandidateToken) types.AnalysisResult {
	if f.hook != nil {
		f.hook()
	}
	r := f.results[token.Address]
	r.Token = token
	return r
}

type openCall struct {
	token  string
	wallet string
	amount float64
	ctxErr error
}

type closeCall struct {
	id     string
	price  float64
	reason types.CloseReason
}

type fakePositions struct {
	mu       sync.Mutex
	active   []types.Position
	held     map[string]bool
	checks   map[string]types.ConditionCheck
	checkErr map[string]error
	closeErr error
	opens    []openCall
	closes   []closeCall
}

func newFakePositions() *fakePositions {
	return &fakePositions{
		held:     make(map[string]bool),
		checks:   make(map[string]types.ConditionCheck),
		checkErr: make(map[string]error),
	}
}

func (f *fakePositions) Open(ctx context.Context, c types.CandidateToken, wallet string, amount float64) (types.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens = append(f.opens, openCall{token: c.Address, wallet: wallet, amount: amount, ctxErr: ctx.Err()})
	return types.Position{ID: fmt.Sprintf("%s_%s", c.Address, wallet)}, nil
}

func (f *fakePositions) Check(ctx context.Context, id string) (types.ConditionCheck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkErr[id]; err != nil {
		return types.ConditionCheck{}, err
	}
	return f.checks[id], nil
}

func (f *fakePositions) Close(ctx context.Context, id string, exitPrice float64, reason types.CloseReason) (types.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, closeCall{id: id, price: exitPrice, reason: reason})
	if f.closeErr != nil {
		return types.Position{}, f.closeErr
	}
	return types.Position{ID: id, Status: types.StatusClosed}, nil
}

func (f *fakePositions) ListActive(wallet string) []types.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Position(nil), f.active...)
}

func (f *fakePositions) HasActive(wallet, tokenAddress string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.held[wallet+"/"+tokenAddress]
}

type fakeWallets []string

func (f fakeWallets) List() []string { return f }

type fakeBalances map[string]float64

func (f fakeBalances) Balance(ctx context.Context, wallet string) (float64, error) {
	b, ok := f[wallet]
	if !ok {
		return 0, errors.New("rpc unavailable")
	}
	return b, nil
}

func tradable(score float64) types.AnalysisResult {
	return types.AnalysisResult{
		IsPromising: true,
		Scored:      true,
		RiskScore:   score,
		Reasons:     []string{"Strong liquidity ($60000)", "High trading volume ($12000)"},
	}
}

func newTestLoop(t *testing.T, s *fakeScanner, a *fakeAnalyzer, p *fakePositions, w fakeWallets, b fakeBalances) *Loop {
	params := config.DefaultTradingParams()
	params.PollIntervalSeconds = 1
	return NewLoop(LoopDeps{
		Scanner:   s,
		Analyzer:  a,
		Positions: p,
		Wallets:   w,
		Balances:  b,
		Params:    config.Static(params),
		Workers:   2,
	}, zaptest.NewLogger(t))
}

func TestRunOnceOpensPromisingCandidates(t *testing.T) {
	scanner := &fakeScanner{tokens: []types.CandidateToken{
		{Address: "GOOD", Symbol: "GD"},
		{Address: "MEH", Symbol: "MH"},
		{Address: "ERR", Symbol: "ER"},
	}}
	analyzer := &fakeAnalyzer{results: map[string]types.AnalysisResult{
		"GOOD": tradable(58.333),
		"MEH":  {Scored: true, RiskScore: 40},
		"ERR":  {Err: errors.New("boom")},
	}}
	positions := newFakePositions()

	loop := newTestLoop(t, scanner, analyzer, positions, fakeWallets{"W1"}, fakeBalances{"W1": 10})
	report := loop.RunOnce(context.Background())

	assert.Equal(t, CycleReport{Candidates: 3, Analyzed: 3, Promising: 1, Opened: 1, Errors: 1}, report)
	require.Len(t, positions.opens, 1)
	// budget = min(1.0, 10 * 20%) = 1.0; fraction = (100 - 58.333) / 100
	assert.InDelta(t, 0.41667, positions.opens[0].amount, 1e-4)
	assert.Equal(t, "GOOD", positions.opens[0].token)
	assert.Equal(t, "W1", positions.opens[0].wallet)
}

func TestRunOnceSkipsWallets(t *testing.T) {
	scanner := &fakeScanner{tokens: []types.CandidateToken{{Address: "GOOD"}}}

	tests := []struct {
		name     string
		score    float64
		balance  fakeBalances
		held     bool
		wantErrs int
	}{
		{name: "already holds token", score: 50, balance: fakeBalances{"W1": 10}, held: true},
		{name: "exposure below min buy", score: 10, balance: fakeBalances{"W1": 0.4}},
		{name: "suggested amount below min buy", score: 95, balance: fakeBalances{"W1": 1}},
		{name: "balance unavailable", score: 50, balance: fakeBalances{}, wantErrs: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &fakeAnalyzer{results: map[string]types.AnalysisResult{"GOOD": tradable(tt.score)}}
			positions := newFakePositions()
			positions.held["W1/GOOD"] = tt.held

			report := newTestLoop(t, scanner, analyzer, positions, fakeWallets{"W1"}, tt.balance).
				RunOnce(context.Background())

			assert.Equal(t, 0, report.Opened)
			assert.Equal(t, tt.wantErrs, report.Errors)
			assert.Empty(t, positions.opens)
		})
	}
}

func TestRunOnceOpensPerWallet(t *testing.T) {
	scanner := &fakeScanner{tokens: []types.CandidateToken{{Address: "GOOD"}}}
	analyzer := &fakeAnalyzer{results: map[string]types.AnalysisResult{"GOOD": tradable(0)}}
	positions := newFakePositions()
	positions.held["W2/GOOD"] = true

	report := newTestLoop(t, scanner, analyzer, positions,
		fakeWallets{"W1", "W2", "W3"}, fakeBalances{"W1": 10, "W2": 10, "W3": 2}).
		RunOnce(context.Background())

	assert.Equal(t, 2, report.Opened)
	require.Len(t, positions.opens, 2)
	assert.Equal(t, 1.0, positions.opens[0].amount)
	// W3: min(1.0, 2 * 20%) = 0.4
	assert.InDelta(t, 0.4, positions.opens[1].amount, 1e-9)
}

func TestRunOnceOpenSurvivesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scanner := &fakeScanner{tokens: []types.CandidateToken{{Address: "GOOD"}}}
	// отмена приходит, пока идет анализ
	analyzer := &fakeAnalyzer{
		results: map[string]types.AnalysisResult{"GOOD": tradable(0)},
		hook:    cancel,
	}
	positions := newFakePositions()

	newTestLoop(t, scanner, analyzer, positions, fakeWallets{"W1"}, fakeBalances{"W1": 10}).RunOnce(ctx)

	require.Len(t, positions.opens, 1)
	assert.NoError(t, positions.opens[0].ctxErr)
}

func TestRunOnceChecksAndClosesPositions(t *testing.T) {
	positions := newFakePositions()
	positions.active = []types.Position{{ID: "hold"}, {ID: "stop"}, {ID: "broken"}, {ID: "gone"}}
	positions.checks["hold"] = types.ConditionCheck{PositionID: "hold", CurrentPrice: 1.1}
	positions.checks["stop"] = types.ConditionCheck{
		PositionID:   "stop",
		CurrentPrice: 0.85,
		HitStopLoss:  true,
		ShouldClose:  true,
		Reason:       types.ReasonStopLoss,
	}
	positions.checkErr["broken"] = errors.New("price unavailable")
	positions.checkErr["gone"] = fmt.Errorf("check gone: %w", trading.ErrNotFound)

	report := newTestLoop(t, &fakeScanner{}, &fakeAnalyzer{}, positions, nil, nil).
		RunOnce(context.Background())

	assert.Equal(t, 4, report.Checked)
	assert.Equal(t, 1, report.Closed)
	assert.Equal(t, 1, report.Errors)
	require.Len(t, positions.closes, 1)
	assert.Equal(t, closeCall{id: "stop", price: 0.85, reason: types.ReasonStopLoss}, positions.closes[0])
}

func TestRunOnceCloseFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantErrs int
	}{
		{name: "routing failure", err: fmt.Errorf("%w: no route", trading.ErrRoutingFailure), wantErrs: 1},
		{name: "closed concurrently", err: fmt.Errorf("close x: %w", trading.ErrNotFound)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			positions := newFakePositions()
			positions.active = []types.Position{{ID: "x"}}
			positions.checks["x"] = types.ConditionCheck{ShouldClose: true, Reason: types.ReasonTakeProfit, CurrentPrice: 1.3}
			positions.closeErr = tt.err

			report := newTestLoop(t, &fakeScanner{}, &fakeAnalyzer{}, positions, nil, nil).
				RunOnce(context.Background())

			assert.Equal(t, 0, report.Closed)
			assert.Equal(t, tt.wantErrs, report.Errors)
		})
	}
}

func TestRunStopsBetweenCycles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scanner := &fakeScanner{onScan: cancel}
	loop := newTestLoop(t, scanner, &fakeAnalyzer{}, newFakePositions(), nil, nil)

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
	assert.Equal(t, 1, scanner.scans)
}

func TestRunWithCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scanner := &fakeScanner{}
	err := newTestLoop(t, scanner, &fakeAnalyzer{}, newFakePositions(), nil, nil).Run(ctx)

	assert.NoError(t, err)
	assert.Zero(t, scanner.scans)
}

func TestShutdownHandlerClosesInReverseOrder(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), time.Second)

	var order []string
	sh.AddFunc("journal", func() error { order = append(order, "journal"); return nil })
	sh.AddFunc("bus", func() error { order = append(order, "bus"); return errors.New("drain failed") })

	err := sh.Shutdown(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus: drain failed")
	assert.Equal(t, []string{"bus", "journal"}, order)
}

func TestShutdownHandlerTimeoutIsPerService(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), 50*time.Millisecond)

	release := make(chan struct{})
	defer close(release)

	var flushed atomic.Bool
	sh.AddFunc("journal", func() error {
		time.Sleep(30 * time.Millisecond)
		flushed.Store(true)
		return nil
	})
	sh.AddFunc("export", func() error { <-release; return nil })

	err := sh.Shutdown(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "export: shutdown timeout")
	assert.NotContains(t, err.Error(), "journal")
	assert.True(t, flushed.Load(), "journal must be flushed after a hung service")
}
