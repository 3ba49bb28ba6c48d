package main

import (
	"context"
	"os"
	osignal "os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/copybot/internal/chain"
	"github.com/web3guy0/copybot/internal/config"
	"github.com/web3guy0/copybot/internal/history"
	"github.com/web3guy0/copybot/internal/ledger"
	"github.com/web3guy0/copybot/internal/notify"
	"github.com/web3guy0/copybot/internal/oracle"
	"github.com/web3guy0/copybot/internal/scamgate"
	"github.com/web3guy0/copybot/internal/signal"
	"github.com/web3guy0/copybot/internal/trader"
)

func main() {
	_ = godotenv.Load()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().
		Bool("trading", cfg.EnableTrading).
		Int("workers", cfg.WorkerCount).
		Msg("🚀 Starting copybot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := chain.Dial(ctx, cfg.NodeURL, cfg.ChainID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to node")
	}
	defer client.Close()

	if cfg.WalletPrivateKey == "" {
		log.Fatal().Msg("WALLET_PRIVATE_KEY is required")
	}
	signer, err := chain.NewSigner(client, cfg.WalletPrivateKey, chain.FeeConfig{
		Automatic:          cfg.EnableAutomaticFees,
		BaseMultiplier:     cfg.BaseFeeMultiplier,
		PriorityMultiplier: cfg.PriorityFeeMultiplier,
		TotalMultiplier:    cfg.TotalFeeMultiplier,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load wallet")
	}

	prices := oracle.New(
		client,
		common.HexToAddress(cfg.WETHAddress),
		common.HexToAddress(cfg.UniswapV2FactoryAddress),
		common.HexToAddress(cfg.UniswapV3FactoryAddress),
		common.HexToAddress(cfg.ChainlinkETHUSDFeed),
		cfg.MinPoolLiquidity,
		cfg.PriceSanityMin,
		cfg.PriceSanityMax,
	)

	gate := scamgate.NewGate(
		scamgate.NewHTTPChecker(cfg.ScamCheckURL),
		cfg.EnableScamCheck,
		cfg.ScamRetries,
		cfg.ScamRetryDelay,
		cfg.ScamTransientTries,
		cfg.ScamTransientDelay,
	)

	led, err := ledger.New(cfg.LedgerDir, cfg.LedgerRetention)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}

	hist, err := history.New(cfg.DatabaseURL, cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open position history")
	}

	var notifier trader.Notifier
	if cfg.SendTelegramMessages {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Telegram disabled")
		} else {
			notifier = tg
		}
	}

	var histSink trader.History
	if hist.Enabled() {
		histSink = hist
	}

	buyer := trader.NewBuyer(cfg, client, prices, gate, signer, led)
	monitor := trader.NewMonitor(prices, trader.MonitorConfig{
		Interval:          cfg.MonitorInterval,
		PriceRetryDelay:   cfg.PriceRetryDelay,
		IncreaseThreshold: cfg.PriceIncreaseThreshold,
		DecreaseThreshold: cfg.PriceDecreaseThreshold,
		NoChangeEnabled:   cfg.EnablePriceChangeChecker,
		NoChangeThreshold: cfg.NoChangeThreshold,
		NoChangeWindow:    cfg.NoChangeWindow,
	})
	seller := trader.NewSeller(cfg, client, signer, led)

	pool := trader.NewPool(cfg, buyer, monitor, seller, led, notifier, histSink)
	pool.Start(ctx)

	listener := signal.NewListener(cfg.ListenAddr, pool.Enqueue)
	listener.Start()

	quit := make(chan os.Signal, 1)
	osignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := listener.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("⚠️ Listener shutdown failed")
	}

	// Drain the pool before canceling the shared context: an open
	// position must finish its sell, not get cut off mid-trade.
	pool.Stop()
	cancel()

	log.Info().Msg("👋 Copybot stopped")
}
