package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Provider hands out the current trading parameters.
type Provider interface {
	Trading() TradingParams
}

// Static is a Provider with fixed parameters.
type Static TradingParams

func (s Static) Trading() TradingParams { return TradingParams(s) }

var ErrUnknownParam = errors.New("unknown trading parameter")

// param maps a configuration key onto a field of TradingParams.
type param struct {
	key      string
	integral bool
	get      func(TradingParams) float64
	set      func(*TradingParams, float64)
}

func floatParam(key string, field func(*TradingParams) *float64) param {
	return param{
		key: key,
		get: func(p TradingParams) float64 { return *field(&p) },
		set: func(p *TradingParams, v float64) { *field(p) = v },
	}
}

func intParam(key string, field func(*TradingParams) *int) param {
	return param{
		key:      key,
		integral: true,
		get:      func(p TradingParams) float64 { return float64(*field(&p)) },
		set:      func(p *TradingParams, v float64) { *field(p) = int(v) },
	}
}

var params = []param{
	floatParam("min_liquidity", func(p *TradingParams) *float64 { return &p.MinLiquidity }),
	floatParam("max_market_cap", func(p *TradingParams) *float64 { return &p.MaxMarketCap }),
	floatParam("min_buy_amount", func(p *TradingParams) *float64 { return &p.MinBuyAmount }),
	floatParam("max_buy_amount", func(p *TradingParams) *float64 { return &p.MaxBuyAmount }),
	floatParam("stop_loss_pct", func(p *TradingParams) *float64 { return &p.StopLossPct }),
	floatParam("take_profit_pct", func(p *TradingParams) *float64 { return &p.TakeProfitPct }),
	floatParam("max_slippage_pct", func(p *TradingParams) *float64 { return &p.MaxSlippagePct }),
	floatParam("max_wallet_exposure_pct", func(p *TradingParams) *float64 { return &p.MaxWalletExposurePct }),
	floatParam("max_age_hours", func(p *TradingParams) *float64 { return &p.MaxAgeHours }),
	floatParam("poll_interval_seconds", func(p *TradingParams) *float64 { return &p.PollIntervalSeconds }),
	intParam("min_reasons", func(p *TradingParams) *int { return &p.MinReasons }),
	intParam("max_red_flags", func(p *TradingParams) *int { return &p.MaxRedFlags }),
	floatParam("suspicious_drop_pct", func(p *TradingParams) *float64 { return &p.SuspiciousDropPct }),
}

func lookupParam(key string) (param, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	i := slices.IndexFunc(params, func(p param) bool { return p.key == key })
	if i < 0 {
		return param{}, false
	}
	return params[i], true
}

// Live holds trading parameters that can be adjusted at runtime. Readers
// always see a complete snapshot.
type Live struct {
	mu       sync.RWMutex
	params   TradingParams
	onChange []func(TradingParams)
}

func NewLive(p TradingParams) *Live {
	return &Live{params: p}
}

func (l *Live) Trading() TradingParams {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.params
}

// OnChange registers fn to be called after every successful update.
func (l *Live) OnChange(fn func(TradingParams)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Replace validates p and swaps it in.
func (l *Live) Replace(p TradingParams) error {
	return l.Update(func(cur *TradingParams) error {
		*cur = p
		return nil
	})
}

// Update applies fn to a copy of the current parameters and swaps the
// result in if it validates. Concurrent updates are serialized.
func (l *Live) Update(fn func(*TradingParams) error) error {
	l.mu.Lock()
	next := l.params
	if err := fn(&next); err != nil {
		l.mu.Unlock()
		return err
	}
	if err := ValidateTrading(next); err != nil {
		l.mu.Unlock()
		return err
	}
	l.params = next
	hooks := slices.Clone(l.onChange)
	l.mu.Unlock()

	for _, fn := range hooks {
		fn(next)
	}
	return nil
}

// Set changes a single parameter by its configuration key.
func (l *Live) Set(key string, value float64) error {
	pr, ok := lookupParam(key)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownParam, key)
	}
	if pr.integral && (value != math.Trunc(value) || math.IsInf(value, 0)) {
		return fmt.Errorf("%s must be a whole number, got %v", pr.key, value)
	}
	return l.Update(func(p *TradingParams) error {
		pr.set(p, value)
		return nil
	})
}

// changedParams returns the keys whose values differ between a and b.
func changedParams(a, b TradingParams) []param {
	var out []param
	for _, pr := range params {
		if pr.get(a) != pr.get(b) {
			out = append(out, pr)
		}
	}
	return out
}

// WatchFile re-applies the trading section of the config file whenever it
// changes on disk. Only keys whose file value changed are applied, so
// environment overrides and values set through Live.Set survive a reload.
// Invalid edits are logged and ignored.
func WatchFile(path string, live *Live, logger *zap.Logger) error {
	if path == "" {
		return nil
	}
	logger = logger.Named("config_watch")

	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	if err := bindEnvironment(v); err != nil {
		return err
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var initial Config
	if err := v.Unmarshal(&initial); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	// последнее состояние файла, с которым сравниваются правки
	var mu sync.Mutex
	last := initial.Trading

	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			logger.Warn("Config reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}

		mu.Lock()
		defer mu.Unlock()
		changed := changedParams(last, cfg.Trading)
		if len(changed) == 0 {
			return
		}
		err := live.Update(func(p *TradingParams) error {
			for _, pr := range changed {
				pr.set(p, pr.get(cfg.Trading))
			}
			return nil
		})
		if err != nil {
			logger.Warn("Rejected trading params from config file", zap.String("file", e.Name), zap.Error(err))
			return
		}
		last = cfg.Trading

		keys := make([]string, 0, len(changed))
		for _, pr := range changed {
			keys = append(keys, pr.key)
		}
		logger.Info("Trading params reloaded", zap.String("file", e.Name), zap.Strings("keys", keys))
	})
	v.WatchConfig()
	return nil
}
