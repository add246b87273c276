package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-memebot/internal/events"
	"github.com/rovshanmuradov/solana-memebot/internal/logger"
	"github.com/rovshanmuradov/solana-memebot/internal/types"
)

const flushInterval = 30 * time.Second

// Header is the column layout of the trades CSV.
var Header = []string{
	"event_id", "time", "action", "position_id", "wallet", "token", "symbol",
	"amount_sol", "quantity", "entry_price", "stop_loss", "take_profit",
	"exit_price", "proceeds_sol", "pnl_sol", "pnl_pct", "reason", "hold_time", "signature",
}

// Journal records every position event to a CSV file and keeps running
// statistics plus a bounded window of recent events in memory.
type Journal struct {
	mu        sync.RWMutex
	csv       *logger.SafeCSVWriter
	recent    []events.PositionEvent
	maxRecent int
	logger    *zap.Logger

	stats Stats
}

// Stats holds aggregate trade statistics.
type Stats struct {
	Opened      int     `json:"opened"`
	Closed      int     `json:"closed"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Breakeven   int     `json:"breakeven"`
	VolumeSOL   float64 `json:"volume_sol"`
	RealizedPnL float64 `json:"realized_pnl"`
	WinRate     float64 `json:"win_rate"`
	AvgWinPnL   float64 `json:"avg_win_pnl"`
	AvgLossPnL  float64 `json:"avg_loss_pnl"`

	ByReason map[types.CloseReason]int `json:"by_reason"`

	totalWin  float64
	totalLoss float64
}

// New opens (or continues) dir/trades.csv.
func New(dir string, maxRecent int, zapLogger *zap.Logger) (*Journal, error) {
	path := filepath.Join(dir, "trades.csv")
	w, err := logger.NewSafeCSVWriter(path, Header, flushInterval, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create trade journal: %w", err)
	}
	if maxRecent <= 0 {
		maxRecent = 100
	}

	zapLogger.Info("Trade journal initialized",
		zap.String("csv_file", path),
		zap.Int("max_memory_events", maxRecent))

	return &Journal{
		csv:       w,
		recent:    make([]events.PositionEvent, 0, maxRecent),
		maxRecent: maxRecent,
		logger:    zapLogger.Named("journal"),
		stats:     Stats{ByReason: make(map[types.CloseReason]int)},
	}, nil
}

// Handle implements events.Handler.
func (j *Journal) Handle(_ context.Context, e events.PositionEvent) error {
	return j.Record(e)
}

// Record appends one event to the CSV and updates the statistics.
func (j *Journal) Record(e events.PositionEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.csv.WriteRecord(row(e)); err != nil {
		j.logger.Error("Failed to write trade to CSV",
			zap.String("event_id", e.ID),
			zap.Error(err))
		return fmt.Errorf("failed to write trade: %w", err)
	}

	if len(j.recent) >= j.maxRecent {
		j.recent = j.recent[1:]
	}
	j.recent = append(j.recent, e)

	switch e.Type {
	case events.PositionOpened:
		j.stats.Opened++
		j.stats.VolumeSOL += e.Amount
	case events.PositionClosed:
		j.stats.Closed++
		j.stats.VolumeSOL += e.Proceeds
		j.stats.RealizedPnL += e.PnL
		j.stats.ByReason[e.Reason]++
		switch {
		case e.PnL > 0:
			j.stats.Wins++
			j.stats.totalWin += e.PnL
		case e.PnL < 0:
			j.stats.Losses++
			j.stats.totalLoss += e.PnL
		default:
			j.stats.Breakeven++
		}
	}
	return nil
}

// Recent returns up to limit most recent events, oldest first.
func (j *Journal) Recent(limit int) []events.PositionEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if limit <= 0 || limit > len(j.recent) {
		limit = len(j.recent)
	}
	out := make([]events.PositionEvent, limit)
	copy(out, j.recent[len(j.recent)-limit:])
	return out
}

// Stats returns a snapshot of the statistics.
func (j *Journal) Stats() Stats {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.snapshot()
}

func (j *Journal) snapshot() Stats {
	s := j.stats
	s.ByReason = make(map[types.CloseReason]int, len(j.stats.ByReason))
	for k, v := range j.stats.ByReason {
		s.ByReason[k] = v
	}
	if s.Closed > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Closed) * 100
	}
	if s.Wins > 0 {
		s.AvgWinPnL = s.totalWin / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLossPnL = s.totalLoss / float64(s.Losses)
	}
	return s
}

func (j *Journal) Flush() error {
	return j.csv.Flush()
}

// Close flushes the CSV file and logs the final statistics.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := j.snapshot()
	j.logger.Info("Closing trade journal",
		zap.Int("opened", s.Opened),
		zap.Int("closed", s.Closed),
		zap.Float64("volume_sol", s.VolumeSOL),
		zap.Float64("realized_pnl", s.RealizedPnL),
		zap.Float64("win_rate", s.WinRate))

	return j.csv.Close()
}

func row(e events.PositionEvent) []string {
	action := "buy"
	if e.Type == events.PositionClosed {
		action = "sell"
	}
	hold := ""
	if e.HoldTime > 0 {
		hold = e.HoldTime.Round(time.Second).String()
	}
	return []string{
		e.ID,
		e.Time.UTC().Format(time.RFC3339),
		action,
		e.PositionID,
		e.Wallet,
		e.TokenAddress,
		e.TokenSymbol,
		formatFloat(e.Amount),
		formatFloat(e.Quantity),
		formatFloat(e.EntryPrice),
		formatFloat(e.StopLoss),
		formatFloat(e.TakeProfit),
		formatFloat(e.ExitPrice),
		formatFloat(e.Proceeds),
		formatFloat(e.PnL),
		strconv.FormatFloat(e.PnLPct, 'f', 2, 64),
		string(e.Reason),
		hold,
		e.Signature,
	}
}

func formatFloat(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
