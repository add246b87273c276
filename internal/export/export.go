package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-memebot/internal/types"
)

// Format is the export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

var ErrNothingToExport = errors.New("no positions match the export criteria")

// Options filters and places the export.
type Options struct {
	Format      Format
	Since       time.Time
	Until       time.Time
	Wallet      string
	TokenFilter string
	Reason      types.CloseReason
	OutputDir   string
}

// Summary is written next to the positions in JSON exports.
type Summary struct {
	Positions    int                       `json:"positions"`
	Wins         int                       `json:"wins"`
	Losses       int                       `json:"losses"`
	Breakeven    int                       `json:"breakeven"`
	UniqueTokens int                       `json:"unique_tokens"`
	Committed    float64                   `json:"committed_sol"`
	Proceeds     float64                   `json:"proceeds_sol"`
	RealizedPnL  float64                   `json:"realized_pnl_sol"`
	WinRate      float64                   `json:"win_rate"`
	AvgPnLPct    float64                   `json:"avg_pnl_pct"`
	AvgHold      time.Duration             `json:"avg_hold_ns"`
	ByReason     map[types.CloseReason]int `json:"by_reason"`
	From         time.Time                 `json:"from"`
	To           time.Time                 `json:"to"`
}

// HistoryExporter writes closed positions to disk.
type HistoryExporter struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewHistoryExporter(logger *zap.Logger) *HistoryExporter {
	return &HistoryExporter{logger: logger.Named("export"), now: time.Now}
}

// Export writes the closed positions matching opts and returns the file path.
func (e *HistoryExporter) Export(history []types.Position, opts Options) (string, error) {
	filtered := Filter(history, opts)
	if len(filtered) == 0 {
		return "", ErrNothingToExport
	}
	slices.SortFunc(filtered, func(a, b types.Position) int {
		return a.CloseTime.Compare(b.CloseTime)
	})

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(opts.OutputDir, e.filename(opts))

	var err error
	switch opts.Format {
	case FormatCSV:
		err = writeCSV(filtered, outputPath)
	case FormatJSON:
		err = e.writeJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", opts.Format)
	}
	if err != nil {
		return "", err
	}

	e.logger.Info("Trade history exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(opts.Format)))
	return outputPath, nil
}

// Filter returns the closed positions matching opts.
func Filter(history []types.Position, opts Options) []types.Position {
	var out []types.Position
	for _, p := range history {
		switch {
		case p.Status != types.StatusClosed:
		case !opts.Since.IsZero() && p.CloseTime.Before(opts.Since):
		case !opts.Until.IsZero() && p.CloseTime.After(opts.Until):
		case opts.Wallet != "" && p.Wallet != opts.Wallet:
		case opts.TokenFilter != "" && p.TokenAddress != opts.TokenFilter:
		case opts.Reason != types.ReasonNone && p.CloseReason != opts.Reason:
		default:
			out = append(out, p)
		}
	}
	return out
}

// Summarize computes aggregate statistics over closed positions.
func Summarize(history []types.Position) Summary {
	s := Summary{ByReason: make(map[types.CloseReason]int)}
	if len(history) == 0 {
		return s
	}

	tokens := make(map[string]struct{})
	var pctSum float64
	var held time.Duration
	for i, p := range history {
		s.Positions++
		s.Committed += p.AmountCommitted
		s.Proceeds += p.Proceeds
		s.RealizedPnL += p.RealizedPnL
		s.ByReason[p.CloseReason]++
		tokens[p.TokenAddress] = struct{}{}
		pctSum += p.RealizedPnLPct
		held += p.HoldTime(p.CloseTime)

		switch {
		case p.RealizedPnL > 0:
			s.Wins++
		case p.RealizedPnL < 0:
			s.Losses++
		default:
			s.Breakeven++
		}
		if i == 0 || p.OpenTime.Before(s.From) {
			s.From = p.OpenTime
		}
		if p.CloseTime.After(s.To) {
			s.To = p.CloseTime
		}
	}

	s.UniqueTokens = len(tokens)
	s.WinRate = float64(s.Wins) / float64(s.Positions) * 100
	s.AvgPnLPct = pctSum / float64(s.Positions)
	s.AvgHold = held / time.Duration(s.Positions)
	return s
}

func (e *HistoryExporter) filename(opts Options) string {
	prefix := "history"
	if opts.Reason != types.ReasonNone {
		prefix += "_" + string(opts.Reason)
	}
	if len(opts.TokenFilter) >= 8 {
		prefix += "_" + opts.TokenFilter[:8]
	}
	return fmt.Sprintf("%s_%s.%s", prefix, e.now().Format("20060102_150405"), opts.Format)
}

var csvHeader = []string{
	"id", "wallet", "token", "symbol", "amount_sol", "quantity",
	"entry_price", "exit_price", "open_time", "close_time",
	"proceeds_sol", "pnl_sol", "pnl_pct", "reason", "buy_signature", "sell_signature",
}

func writeCSV(history []types.Position, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, p := range history {
		if err := w.Write(csvRow(p)); err != nil {
			return fmt.Errorf("failed to write position %s: %w", p.ID, err)
		}
	}
	w.Flush()
	return w.Error()
}

func csvRow(p types.Position) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		p.ID, p.Wallet, p.TokenAddress, p.TokenSymbol,
		f(p.AmountCommitted), f(p.QuantityAcquired),
		f(p.EntryPrice), f(p.ExitPrice),
		p.OpenTime.UTC().Format(time.RFC3339), p.CloseTime.UTC().Format(time.RFC3339),
		f(p.Proceeds), f(p.RealizedPnL), strconv.FormatFloat(p.RealizedPnLPct, 'f', 2, 64),
		string(p.CloseReason), p.BuySignature, p.SellSignature,
	}
}

func (e *HistoryExporter) writeJSON(history []types.Position, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")

	data := struct {
		ExportTime time.Time        `json:"export_time"`
		Summary    Summary          `json:"summary"`
		Positions  []types.Position `json:"positions"`
	}{
		ExportTime: e.now(),
		Summary:    Summarize(history),
		Positions:  history,
	}
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
