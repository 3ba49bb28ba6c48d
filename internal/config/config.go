package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the bot. It is loaded once at startup
// and injected into every component; nothing mutates it afterwards.
type Config struct {
	// Chain
	NodeURL          string
	ChainID          int64
	WalletPrivateKey string

	// Well-known contract addresses (mainnet defaults)
	WETHAddress             string
	UniswapV2FactoryAddress string
	UniswapV3FactoryAddress string
	UniswapV2RouterAddress  string
	ChainlinkETHUSDFeed     string

	// Trading
	EnableTrading     bool
	AmountOfETH       decimal.Decimal // ETH spent per position
	GasReserveETH     decimal.Decimal // kept aside for gas on top of AmountOfETH
	SlippageTolerance decimal.Decimal // e.g. 0.05 = 5%
	Moonbag           decimal.Decimal // fraction retained on take-profit exits

	// Exit rules
	PriceIncreaseThreshold   decimal.Decimal
	PriceDecreaseThreshold   decimal.Decimal
	EnablePriceChangeChecker bool
	NoChangeThreshold        decimal.Decimal // decimal fraction, 0.02 = 2%
	NoChangeWindow           time.Duration
	MonitorInterval          time.Duration
	PriceRetryDelay          time.Duration // pause when both venues are unavailable mid-monitoring

	// Fees
	EnableAutomaticFees   bool
	BaseFeeMultiplier     decimal.Decimal
	PriorityFeeMultiplier decimal.Decimal
	TotalFeeMultiplier    decimal.Decimal

	// Scam gate
	EnableScamCheck    bool
	ScamCheckURL       string
	ScamRetries        int
	ScamRetryDelay     time.Duration
	ScamTransientTries uint
	ScamTransientDelay time.Duration

	// Market cap filter
	EnableMarketCapFilter bool
	MinMarketCap          decimal.Decimal // USD
	MaxMarketCap          decimal.Decimal // USD

	// Price oracle sanity limits
	MinPoolLiquidity *big.Int        // in-range V3 liquidity floor
	PriceSanityMin   decimal.Decimal // ETH per whole token
	PriceSanityMax   decimal.Decimal

	// Retry and polling bounds
	BuyMaxRetries       int
	SellMaxRetries      int
	RetryDelay          time.Duration
	BalanceMaxAttempts  int
	BalancePollDelay    time.Duration
	ApprovalMaxAttempts int
	ApprovalPollDelay   time.Duration
	ApprovalSettleDelay time.Duration

	// Signal intake and workers
	ListenAddr  string
	WorkerCount int
	QueueSize   int

	// Watched wallets, name -> address (used for ledger and notifications)
	WatchedWallets map[string]string

	// Ledger
	LedgerDir       string
	LedgerRetention int

	// Position history database (postgres via URL, else sqlite via path,
	// else disabled)
	DatabaseURL  string
	DatabasePath string

	// Telegram
	SendTelegramMessages bool
	TelegramToken        string
	TelegramChatID       int64

	Debug bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		NodeURL:          os.Getenv("NODE_URL"),
		ChainID:          int64(getEnvInt("CHAIN_ID", 1)),
		WalletPrivateKey: os.Getenv("WALLET_PRIVATE_KEY"),

		WETHAddress:             getEnv("WETH_ADDRESS", "0xC02aaA39b223FE8D0A0E5C4F27eAD9083C756Cc2"),
		UniswapV2FactoryAddress: getEnv("UNISWAP_V2_FACTORY_ADDRESS", "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
		UniswapV3FactoryAddress: getEnv("UNISWAP_V3_FACTORY_ADDRESS", "0x1F98431c8aD98523631AE4a59f267346ea31F984"),
		UniswapV2RouterAddress:  getEnv("UNISWAP_V2_ROUTER_ADDRESS", "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"),
		ChainlinkETHUSDFeed:     getEnv("CHAINLINK_ETH_USD_FEED", "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"),

		EnableTrading:     getEnvBool("ENABLE_TRADING", false),
		AmountOfETH:       getEnvDecimal("AMOUNT_OF_ETH", decimal.NewFromFloat(0.05)),
		GasReserveETH:     getEnvDecimal("GAS_RESERVE_ETH", decimal.NewFromFloat(0.025)),
		SlippageTolerance: getEnvDecimal("SLIPPAGE_TOLERANCE", decimal.NewFromFloat(0.05)),
		Moonbag:           getEnvDecimal("MOONBAG", decimal.NewFromFloat(0.1)),

		PriceIncreaseThreshold:   getEnvDecimal("PRICE_INCREASE_THRESHOLD", decimal.NewFromFloat(0.5)),
		PriceDecreaseThreshold:   getEnvDecimal("PRICE_DECREASE_THRESHOLD", decimal.NewFromFloat(0.3)),
		EnablePriceChangeChecker: getEnvBool("ENABLE_PRICE_CHANGE_CHECKER", true),
		NoChangeThreshold:        getEnvDecimal("NO_CHANGE_THRESHOLD", decimal.NewFromFloat(0.02)),
		NoChangeWindow:           getEnvDuration("NO_CHANGE_WINDOW", 10*time.Minute),
		MonitorInterval:          getEnvDuration("MONITOR_INTERVAL", 2*time.Second),
		PriceRetryDelay:          getEnvDuration("PRICE_RETRY_DELAY", 3*time.Second),

		EnableAutomaticFees:   getEnvBool("ENABLE_AUTOMATIC_FEES", true),
		BaseFeeMultiplier:     getEnvDecimal("BASE_FEE_MULTIPLIER", decimal.NewFromFloat(1.2)),
		PriorityFeeMultiplier: getEnvDecimal("PRIORITY_FEE_MULTIPLIER", decimal.NewFromFloat(1.2)),
		TotalFeeMultiplier:    getEnvDecimal("TOTAL_FEE_MULTIPLIER", decimal.NewFromFloat(1.1)),

		EnableScamCheck:    getEnvBool("ENABLE_SCAM_CHECK", true),
		ScamCheckURL:       os.Getenv("SCAM_CHECK_URL"),
		ScamRetries:        getEnvInt("SCAM_RETRIES", 3),
		ScamRetryDelay:     getEnvDuration("SCAM_RETRY_DELAY", 10*time.Second),
		ScamTransientTries: uint(getEnvInt("SCAM_TRANSIENT_TRIES", 15)),
		ScamTransientDelay: getEnvDuration("SCAM_TRANSIENT_DELAY", 2*time.Second),

		EnableMarketCapFilter: getEnvBool("ENABLE_MARKET_CAP_FILTER", false),
		MinMarketCap:          getEnvDecimal("MIN_MARKET_CAP", decimal.NewFromInt(100_000)),
		MaxMarketCap:          getEnvDecimal("MAX_MARKET_CAP", decimal.NewFromInt(50_000_000)),

		MinPoolLiquidity: getEnvBigInt("MIN_POOL_LIQUIDITY", big.NewInt(1_000_000)),
		PriceSanityMin:   getEnvDecimal("PRICE_SANITY_MIN", decimal.NewFromFloat(1e-7)),
		PriceSanityMax:   getEnvDecimal("PRICE_SANITY_MAX", decimal.NewFromInt(1000)),

		BuyMaxRetries:       getEnvInt("BUY_MAX_RETRIES", 30),
		SellMaxRetries:      getEnvInt("SELL_MAX_RETRIES", 25),
		RetryDelay:          getEnvDuration("RETRY_DELAY", 5*time.Second),
		BalanceMaxAttempts:  getEnvInt("BALANCE_MAX_ATTEMPTS", 30),
		BalancePollDelay:    getEnvDuration("BALANCE_POLL_DELAY", 2*time.Second),
		ApprovalMaxAttempts: getEnvInt("APPROVAL_MAX_ATTEMPTS", 30),
		ApprovalPollDelay:   getEnvDuration("APPROVAL_POLL_DELAY", 2*time.Second),
		ApprovalSettleDelay: getEnvDuration("APPROVAL_SETTLE_DELAY", 5*time.Second),

		ListenAddr:  getEnv("LISTEN_ADDR", ":5000"),
		WorkerCount: getEnvInt("WORKER_COUNT", 4),
		QueueSize:   getEnvInt("QUEUE_SIZE", 16),

		WatchedWallets: parseWallets(os.Getenv("WATCHED_WALLETS")),

		LedgerDir:       getEnv("LEDGER_DIR", "data/ledger"),
		LedgerRetention: getEnvInt("LEDGER_RETENTION", 30),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabasePath: os.Getenv("DATABASE_PATH"),

		SendTelegramMessages: getEnvBool("SEND_TELEGRAM_MESSAGES", false),
		TelegramToken:        os.Getenv("TELEGRAM_BOT_TOKEN"),

		Debug: getEnvBool("DEBUG", false),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if cfg.NodeURL == "" {
		return nil, fmt.Errorf("NODE_URL is required")
	}
	if cfg.EnableTrading && cfg.WalletPrivateKey == "" {
		return nil, fmt.Errorf("WALLET_PRIVATE_KEY is required when ENABLE_TRADING is set")
	}
	if cfg.SendTelegramMessages && cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required when SEND_TELEGRAM_MESSAGES is set")
	}
	if cfg.WorkerCount < 1 || cfg.QueueSize < 1 {
		return nil, fmt.Errorf("WORKER_COUNT and QUEUE_SIZE must be positive")
	}

	return cfg, nil
}

// parseWallets parses "Name=0xabc...,Other=0xdef..." into a name->address map.
func parseWallets(raw string) map[string]string {
	wallets := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		name, addr, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" || addr == "" {
			continue
		}
		wallets[name] = addr
	}
	return wallets
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBigInt(key string, defaultValue *big.Int) *big.Int {
	if value := os.Getenv(key); value != "" {
		if i, ok := new(big.Int).SetString(value, 10); ok {
			return i
		}
	}
	return defaultValue
}
