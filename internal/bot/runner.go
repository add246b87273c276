// internal/bot/runner.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-memebot/internal/config"
	"github.com/rovshanmuradov/solana-memebot/internal/dexscreener"
	"github.com/rovshanmuradov/solana-memebot/internal/events"
	"github.com/rovshanmuradov/solana-memebot/internal/export"
	"github.com/rovshanmuradov/solana-memebot/internal/journal"
	"github.com/rovshanmuradov/solana-memebot/internal/jupiter"
	"github.com/rovshanmuradov/solana-memebot/internal/notify"
	"github.com/rovshanmuradov/solana-memebot/internal/risk"
	"github.com/rovshanmuradov/solana-memebot/internal/scanner"
	"github.com/rovshanmuradov/solana-memebot/internal/trading"
	"github.com/rovshanmuradov/solana-memebot/internal/types"
	"github.com/rovshanmuradov/solana-memebot/internal/wallet"
)

const (
	eventBufferSize  = 256
	journalRecent    = 100
	shutdownDeadline = 30 * time.Second
)

// Runner is the composition root: it builds every component from the config
// and owns their lifetime.
type Runner struct {
	logger     *zap.Logger
	config     *config.Config
	configPath string

	Live    *config.Live
	Wallets *wallet.Registry
	Manager *trading.Manager
	Journal *journal.Journal
	Bus     *events.Bus

	loop     *Loop
	shutdown *ShutdownHandler
}

func NewRunner(cfg *config.Config, configPath string, logger *zap.Logger) *Runner {
	return &Runner{
		logger:     logger,
		config:     cfg,
		configPath: configPath,
		shutdown:   NewShutdownHandler(logger, shutdownDeadline),
	}
}

// Initialize wires the components.
func (r *Runner) Initialize() error {
	cfg := r.config
	log := r.logger

	r.Live = config.NewLive(cfg.Trading)
	if err := config.WatchFile(r.configPath, r.Live, log); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	dex := dexscreener.NewClient(cfg.DexScreenerURL, log)
	priority, err := types.ParsePriorityLevel(cfg.PriorityLevel)
	if err != nil {
		return err
	}
	jup := jupiter.NewClient(cfg.JupiterURL, log, jupiter.WithPriority(priority))
	rpcClient := rpc.New(cfg.RPCURL)
	balances := wallet.NewRPCBalance(rpcClient)

	registry, err := r.connectWallets(rpcClient)
	if err != nil {
		return err
	}
	r.Wallets = registry

	// сервисы закрываются в обратном порядке: сначала шина сливает
	// очередь, потом журнал сбрасывает CSV
	r.Journal, err = journal.New(cfg.JournalDir, journalRecent, log)
	if err != nil {
		return err
	}
	r.shutdown.Add("journal", r.Journal)

	r.Bus = events.NewBus(log, eventBufferSize)
	r.shutdown.AddFunc("event bus", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
		defer cancel()
		return r.Bus.Shutdown(ctx)
	})
	r.Bus.SubscribeAll(r.Journal.Handle)

	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, log)
		if err != nil {
			return err
		}
		r.Bus.SubscribeAll(tg.Handle)
		log.Info("Telegram notifications enabled", zap.Int64("chat_id", cfg.TelegramChatID))
	}

	r.Manager = trading.NewManager(trading.Deps{
		Store:   trading.NewStore(),
		Router:  jup,
		Oracle:  dex,
		Signers: registry,
		Mints:   balances,
		Params:  r.Live,
		Events:  r.Bus,
	}, log)
	registry.GuardDisconnect(func(w string) bool {
		return len(r.Manager.ListActive(w)) > 0
	})

	exporter := export.NewHistoryExporter(log)
	r.shutdown.AddFunc("history export", func() error {
		_, err := exporter.Export(r.Manager.ListHistory(""), export.Options{
			Format:    export.FormatJSON,
			OutputDir: cfg.JournalDir,
		})
		if errors.Is(err, export.ErrNothingToExport) {
			return nil
		}
		return err
	})

	r.loop = NewLoop(LoopDeps{
		Scanner:   scanner.New(dex, r.Live, cfg.Chain, cfg.PairsLimit, log),
		Analyzer:  risk.NewAnalyzer(dex, r.Live, log),
		Positions: r.Manager,
		Wallets:   registry,
		Balances:  balances,
		Params:    r.Live,
		Workers:   cfg.CheckWorkers,
	}, log)

	r.Live.OnChange(func(p config.TradingParams) {
		log.Info("Trading params updated", zap.Any("trading", p))
	})

	log.Info("Bot initialized",
		zap.Strings("wallets", registry.List()),
		zap.String("chain", cfg.Chain),
		zap.Any("trading", cfg.Trading))
	return nil
}

// connectWallets registers the keypair signer. Configured addresses without
// a matching key cannot sign and are skipped.
func (r *Runner) connectWallets(sender wallet.TxSender) (*wallet.Registry, error) {
	registry := wallet.NewRegistry()
	if r.config.SignerPrivateKey == "" {
		r.logger.Warn("No signer key configured, the bot will only monitor")
		return registry, nil
	}

	w, err := wallet.NewWallet(r.config.SignerPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("signer key: %w", err)
	}
	signer := wallet.NewKeypairSigner(w, sender, r.logger)
	if err := registry.Connect(signer.PublicKey(), signer); err != nil {
		return nil, err
	}

	for _, addr := range r.config.Wallets {
		if addr != signer.PublicKey() {
			r.logger.Warn("No signer for configured wallet, skipped", zap.String("wallet", addr))
		}
	}
	return registry, nil
}

// Run blocks until SIGINT/SIGTERM or ctx cancellation, then shuts the
// services down.
func (r *Runner) Run(ctx context.Context) error {
	if r.loop == nil {
		return fmt.Errorf("runner is not initialized")
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.loop.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		r.logger.Info("📡 Shutdown requested")
		return nil
	})
	runErr := g.Wait()

	if err := r.shutdown.Shutdown(context.Background()); err != nil && runErr == nil {
		runErr = err
	}

	s := r.Manager.Summary("")
	r.logger.Info("👋 Bot stopped",
		zap.Int("active", s.Active),
		zap.Int("closed", s.Closed),
		zap.Float64("realizedPnL", s.RealizedPnL),
		zap.Float64("winRate", s.WinRate()))
	return runErr
}
