package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/tabdeal_margin/internal/infrastructure/exchange"
	"github.com/vitos/tabdeal_margin/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Prints the authorization key status and the main wallet USDT balance,
// then exits. Useful for checking credentials before starting the bot.
func main() {
	_ = godotenv.Load()

	log, err := logger.NewLogger("info")
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

	baseURL := os.Getenv("TABDEAL_BASE_URL")
	if baseURL == "" {
		baseURL = exchange.DefaultBaseURL
	}
	adapter := exchange.NewTabdealAdapter(userHash, authKey, baseURL, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	valid, err := adapter.IsAuthorizationKeyValid(ctx)
	if err != nil {
		log.Fatal("Failed to validate authorization key", zap.Error(err))
	}
	if !valid {
		log.Fatal("Authorization key rejected by server")
	}
	fmt.Println("Authorization key: valid")

	balance, err := adapter.WalletUSDTBalance(ctx)
	if err != nil {
		log.Fatal("Failed to read wallet balance", zap.Error(err))
	}
	fmt.Printf("Wallet USDT balance: %s\n", balance)

	history, err := adapter.OrdersHistory(ctx, 10)
	if err != nil {
		log.Fatal("Failed to read orders history", zap.Error(err))
	}
	fmt.Printf("Recent orders: %d\n", len(history))
	for _, h := range history {
		fmt.Printf("  #%d %s %s %s @ %s (%s)\n",
			h.OrderID, h.MarketName, h.Side, h.Amount, h.Price, h.State)
	}
}
