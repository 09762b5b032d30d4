package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/vitos/tabdeal_margin/internal/domain"
	"github.com/vitos/tabdeal_margin/internal/infrastructure/exchange"
	"github.com/vitos/tabdeal_margin/internal/infrastructure/logger"
	"github.com/vitos/tabdeal_margin/internal/usecase"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Tabdeal struct {
		BaseURL             string `yaml:"base_url"`
		KeepAliveIntervalMs int    `yaml:"keep_alive_interval_ms"`
	} `yaml:"tabdeal"`
	Trading struct {
		WithdrawAfterClose bool `yaml:"withdraw_after_close"`
		Orders             []struct {
			Symbol                string          `yaml:"symbol"`
			Side                  string          `yaml:"side"`
			Price                 decimal.Decimal `yaml:"price"`
			MarginLevel           decimal.Decimal `yaml:"margin_level"`
			Deposit               decimal.Decimal `yaml:"deposit"`
			StopLossPercent       decimal.Decimal `yaml:"stop_loss_percent"`
			TakeProfitPercent     decimal.Decimal `yaml:"take_profit_percent"`
			VolumeFractionAllowed bool            `yaml:"volume_fraction_allowed"`
			VolumePrecision       int             `yaml:"volume_precision"`
		} `yaml:"orders"`
	} `yaml:"trading"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	// Credentials come from the environment; .env is an optional overlay
	// for local runs.
	_ = godotenv.Load()

	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	userHash := os.Getenv("TABDEAL_USER_HASH")
	authKey := os.Getenv("TABDEAL_AUTH_KEY")
	if userHash == "" || authKey == "" {
		log.Fatal("TABDEAL_USER_HASH and TABDEAL_AUTH_KEY must be set")
	}

	baseURL := cfg.Tabdeal.BaseURL
	if baseURL == "" {
		baseURL = exchange.DefaultBaseURL
	}
	adapter := exchange.NewTabdealAdapter(userHash, authKey, baseURL, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	valid, err := adapter.IsAuthorizationKeyValid(ctx)
	if err != nil {
		log.Fatal("Failed to validate authorization key", zap.Error(err))
	}
	if !valid {
		log.Fatal("Authorization key rejected by server")
	}

	keepAliveInterval := 10 * time.Minute
	if cfg.Tabdeal.KeepAliveIntervalMs > 0 {
		keepAliveInterval = time.Duration(cfg.Tabdeal.KeepAliveIntervalMs) * time.Millisecond
	}
	go func() {
		if err := adapter.KeepAlive(ctx, keepAliveInterval); err != nil && ctx.Err() == nil {
			log.Error("Keep-alive loop stopped", zap.Error(err))
			stop()
		}
	}()

	trader := usecase.NewMarginTrader(adapter, log)

	// Each configured order runs its own lifecycle; the adapter is shared.
	var wg sync.WaitGroup
	for _, o := range cfg.Trading.Orders {
		side := domain.Buy
		if o.Side == "sell" {
			side = domain.Sell
		}
		order := &domain.MarginOrder{
			IsolatedSymbol:        o.Symbol,
			OrderPrice:            o.Price,
			OrderSide:             side,
			MarginLevel:           o.MarginLevel,
			DepositAmount:         o.Deposit,
			StopLossPercent:       o.StopLossPercent,
			TakeProfitPercent:     o.TakeProfitPercent,
			VolumeFractionAllowed: o.VolumeFractionAllowed,
			VolumePrecision:       o.VolumePrecision,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			success, err := trader.Trade(ctx, order, cfg.Trading.WithdrawAfterClose)
			if err != nil {
				log.Error("Trade failed",
					zap.String("symbol", order.IsolatedSymbol),
					zap.Error(err))
				return
			}
			log.Info("Trade finished",
				zap.String("symbol", order.IsolatedSymbol),
				zap.Bool("success", success))
		}()
	}
	wg.Wait()

	log.Info("Shutting down...")
}
