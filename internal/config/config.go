// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/solana-memebot/internal/types"
)

// TradingParams are the numeric knobs of the scanner, analyzer, sizer and
// position manager. All of them can be changed while the bot is running.
type TradingParams struct {
	MinLiquidity         float64 `mapstructure:"min_liquidity"`
	MaxMarketCap         float64 `mapstructure:"max_market_cap"`
	MinBuyAmount         float64 `mapstructure:"min_buy_amount"`
	MaxBuyAmount         float64 `mapstructure:"max_buy_amount"`
	StopLossPct          float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct        float64 `mapstructure:"take_profit_pct"`
	MaxSlippagePct       float64 `mapstructure:"max_slippage_pct"`
	MaxWalletExposurePct float64 `mapstructure:"max_wallet_exposure_pct"`
	MaxAgeHours          float64 `mapstructure:"max_age_hours"`
	PollIntervalSeconds  float64 `mapstructure:"poll_interval_seconds"`
	MinReasons           int     `mapstructure:"min_reasons"`
	MaxRedFlags          int     `mapstructure:"max_red_flags"`
	SuspiciousDropPct    float64 `mapstructure:"suspicious_drop_pct"`
}

// PollInterval returns the monitoring loop cadence.
func (p TradingParams) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSeconds * float64(time.Second))
}

type Config struct {
	DexScreenerURL   string   `mapstructure:"dexscreener_url"`
	JupiterURL       string   `mapstructure:"jupiter_url"`
	RPCURL           string   `mapstructure:"rpc_url"`
	Chain            string   `mapstructure:"chain"`
	PairsLimit       int      `mapstructure:"pairs_limit"`
	Wallets          []string `mapstructure:"wallets"`
	SignerPrivateKey string   `mapstructure:"signer_private_key"`
	TelegramBotToken string   `mapstructure:"telegram_bot_token"`
	TelegramChatID   int64    `mapstructure:"telegram_chat_id"`
	JournalDir       string   `mapstructure:"journal_dir"`
	LogFile          string   `mapstructure:"log_file"`
	DebugLogging     bool     `mapstructure:"debug_logging"`
	CheckWorkers     int      `mapstructure:"check_workers"`
	PriorityLevel    string   `mapstructure:"priority_level"`

	Trading TradingParams `mapstructure:",squash"`
}

const (
	DefaultDexScreenerURL = "https://api.dexscreener.com/latest/dex"
	DefaultJupiterURL     = "https://quote-api.jup.ag/v6"
	DefaultRPCURL         = "https://api.mainnet-beta.solana.com"
	DefaultChain          = "solana"
	DefaultPairsLimit     = 100
	DefaultCheckWorkers   = 4
	DefaultPriorityLevel  = string(types.PriorityMedium)
)

// DefaultTradingParams mirrors the defaults the bot ships with.
func DefaultTradingParams() TradingParams {
	return TradingParams{
		MinLiquidity:         10000,
		MaxMarketCap:         5000000,
		MinBuyAmount:         0.1,
		MaxBuyAmount:         1.0,
		StopLossPct:          10,
		TakeProfitPct:        30,
		MaxSlippagePct:       2,
		MaxWalletExposurePct: 20,
		MaxAgeHours:          24,
		PollIntervalSeconds:  30,
		MinReasons:           2,
		MaxRedFlags:          1,
		SuspiciousDropPct:    10,
	}
}

func defaults() map[string]interface{} {
	tp := DefaultTradingParams()
	return map[string]interface{}{
		"dexscreener_url":         DefaultDexScreenerURL,
		"jupiter_url":             DefaultJupiterURL,
		"rpc_url":                 DefaultRPCURL,
		"chain":                   DefaultChain,
		"pairs_limit":             DefaultPairsLimit,
		"check_workers":           DefaultCheckWorkers,
		"priority_level":          DefaultPriorityLevel,
		"journal_dir":             "logs",
		"log_file":                "logs/bot.log",
		"debug_logging":           false,
		"min_liquidity":           tp.MinLiquidity,
		"max_market_cap":          tp.MaxMarketCap,
		"min_buy_amount":          tp.MinBuyAmount,
		"max_buy_amount":          tp.MaxBuyAmount,
		"stop_loss_pct":           tp.StopLossPct,
		"take_profit_pct":         tp.TakeProfitPct,
		"max_slippage_pct":        tp.MaxSlippagePct,
		"max_wallet_exposure_pct": tp.MaxWalletExposurePct,
		"max_age_hours":           tp.MaxAgeHours,
		"poll_interval_seconds":   tp.PollIntervalSeconds,
		"min_reasons":             tp.MinReasons,
		"max_red_flags":           tp.MaxRedFlags,
		"suspicious_drop_pct":     tp.SuspiciousDropPct,
	}
}

// keys without defaults still have to be visible to the env lookup
var envOnlyKeys = []string{"wallets", "signer_private_key", "telegram_bot_token", "telegram_chat_id"}

// LoadConfig reads an optional config file, a .env file and the process
// environment, in increasing order of precedence.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	if err := bindEnvironment(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Wallets = cleanList(cfg.Wallets)

	return &cfg, validateConfig(&cfg)
}

func bindEnvironment(v *viper.Viper) error {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key := range defaults() {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// cleanList splits comma separated entries that came in as a single env value
func cleanList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if clean := strings.TrimSpace(part); clean != "" {
				out = append(out, clean)
			}
		}
	}
	return out
}

func validateConfig(cfg *Config) error {
	for _, u := range []string{cfg.DexScreenerURL, cfg.JupiterURL, cfg.RPCURL} {
		if err := validateURLWithCache(u, "http"); err != nil {
			return fmt.Errorf("invalid service url %q: %w", u, err)
		}
	}
	if cfg.Chain == "" {
		return errors.New("chain is empty")
	}
	if cfg.PairsLimit <= 0 {
		return errors.New("invalid pairs_limit")
	}
	if cfg.CheckWorkers <= 0 {
		return errors.New("invalid check_workers")
	}
	if _, err := types.ParsePriorityLevel(cfg.PriorityLevel); err != nil {
		return err
	}
	return ValidateTrading(cfg.Trading)
}

// ValidateTrading checks the numeric trading parameters for consistency.
func ValidateTrading(p TradingParams) error {
	switch {
	case p.MinLiquidity <= 0:
		return errors.New("invalid min_liquidity")
	case p.MaxMarketCap < 0:
		return errors.New("invalid max_market_cap")
	case p.MinBuyAmount <= 0:
		return errors.New("invalid min_buy_amount")
	case p.MaxBuyAmount < p.MinBuyAmount:
		return errors.New("max_buy_amount must not be below min_buy_amount")
	case p.StopLossPct <= 0 || p.StopLossPct >= 100:
		return errors.New("stop_loss_pct must be in (0, 100)")
	case p.TakeProfitPct <= 0:
		return errors.New("invalid take_profit_pct")
	case p.MaxSlippagePct < 0 || p.MaxSlippagePct >= 100:
		return errors.New("max_slippage_pct must be in [0, 100)")
	case p.MaxWalletExposurePct <= 0 || p.MaxWalletExposurePct > 100:
		return errors.New("max_wallet_exposure_pct must be in (0, 100]")
	case p.MaxAgeHours <= 0:
		return errors.New("invalid max_age_hours")
	case p.PollIntervalSeconds < 1:
		return errors.New("poll_interval_seconds must be at least 1")
	case p.MinReasons < 0 || p.MaxRedFlags < 0:
		return errors.New("invalid verdict thresholds")
	case p.SuspiciousDropPct <= 0 || p.SuspiciousDropPct >= 100:
		return errors.New("suspicious_drop_pct must be in (0, 100)")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) || parsed.Host == "" {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}
