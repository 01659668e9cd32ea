package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_breakout_bot/internal/config"
	"github.com/vitos/crypto_breakout_bot/internal/infrastructure/exchange"
	"github.com/vitos/crypto_breakout_bot/internal/infrastructure/logger"
)

func main() {
	_ = godotenv.Load()

	// 1. Load Config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Testing Delta Interaction...\n")
	fmt.Printf("Endpoint: %s\n", cfg.API.BaseURL)
	if len(cfg.APIKey) >= 4 {
		fmt.Printf("API Key: %s...\n", cfg.APIKey[:4])
	}

	log, err := logger.NewLogger("warn")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	adapter := exchange.NewDeltaAdapter(cfg.APIKey, cfg.APISecret, cfg.API.BaseURL, cfg.API.WSURL, log)
	ctx := context.Background()

	// 2. Check Public Endpoint (Price)
	price, err := adapter.GetCurrentPrice(ctx, cfg.Trading.Symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get price: %v\n", err)
	} else {
		fmt.Printf("✅ Current Price (%s): %f\n", cfg.Trading.Symbol, price)
	}

	// 3. Check Candles
	candles, err := adapter.GetCandles(ctx, cfg.Trading.Symbol, cfg.Schedule.Timeframe, 3)
	if err != nil {
		fmt.Printf("❌ Failed to get candles: %v\n", err)
	} else {
		fmt.Printf("✅ Got %d candles\n", len(candles))
		for _, c := range candles {
			fmt.Printf("   %s  H=%.2f L=%.2f\n", c.Time.Format("2006-01-02 15:04"), c.High, c.Low)
		}
	}

	// 4. Check Private Endpoints (Orders, Position)
	orders, err := adapter.GetOpenOrders(ctx, cfg.Trading.ProductID)
	if err != nil {
		fmt.Printf("❌ Failed to get open orders: %v\n", err)
	} else {
		fmt.Printf("✅ Open orders: %d\n", len(orders))
		for _, o := range orders {
			fmt.Printf("   id=%s side=%s size=%.0f price=%.2f stop=%.2f state=%s\n",
				o.ID, o.Side, o.Size, o.Price, o.StopPrice, o.Status)
		}
	}

	pos, err := adapter.GetPosition(ctx, cfg.Trading.ProductID)
	if err != nil {
		fmt.Printf("❌ Failed to get position: %v\n", err)
	} else if pos == nil {
		fmt.Printf("✅ No open position\n")
	} else {
		fmt.Printf("✅ Position: side=%s size=%.0f entry=%.2f\n", pos.Side, pos.Size, pos.EntryPrice)
	}
}
