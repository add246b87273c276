// ====================================
// File: cmd/bot/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-memebot/internal/bot"
	"github.com/rovshanmuradov/solana-memebot/internal/config"
	"github.com/rovshanmuradov/solana-memebot/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "optional config file (json/yaml), watched for trading param changes")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("🚀 Starting Solana memecoin bot")

	runner := bot.NewRunner(cfg, *configPath, log.WithComponent("bot"))
	if err := runner.Initialize(); err != nil {
		log.Error("Failed to initialize bot", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}

	if err := runner.Run(context.Background()); err != nil {
		log.Error("Bot execution error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}
