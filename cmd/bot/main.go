package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_breakout_bot/internal/config"
	"github.com/vitos/crypto_breakout_bot/internal/infrastructure/exchange"
	"github.com/vitos/crypto_breakout_bot/internal/infrastructure/logger"
	"github.com/vitos/crypto_breakout_bot/internal/infrastructure/storage"
	"github.com/vitos/crypto_breakout_bot/internal/usecase"
	"github.com/vitos/crypto_breakout_bot/internal/web"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; credentials may come from the real environment.
	_ = godotenv.Load()

	// 1. Load Config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewFileLogger(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Exchange (Delta)
	delta := exchange.NewDeltaAdapter(cfg.APIKey, cfg.APISecret, cfg.API.BaseURL, cfg.API.WSURL, log)

	// 5. Connectivity check before trading anything
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	price, err := delta.GetCurrentPrice(ctx, cfg.Trading.Symbol)
	cancel()
	if err != nil {
		log.Fatal("Exchange connectivity check failed",
			zap.String("symbol", cfg.Trading.Symbol), zap.Error(err))
	}
	log.Info("Exchange reachable",
		zap.String("symbol", cfg.Trading.Symbol),
		zap.Float64("price", price))

	// 6. Start the mark price feed
	feedCtx, feedCancel := context.WithCancel(context.Background())
	defer feedCancel()
	delta.StartPriceFeed(feedCtx, cfg.Trading.Symbol)

	// 7. Start the bot
	bot := usecase.NewBreakoutBot(cfg, delta, store, log)
	if err := bot.Start(); err != nil {
		log.Fatal("Failed to start breakout bot", zap.Error(err))
	}

	// 8. Start web server
	server := web.NewServer(cfg.Server.Port, bot, store, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Web server error", zap.Error(err))
		}
	}()

	// 9. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")
	if bot.Running() {
		if err := bot.Stop(); err != nil {
			log.Error("Failed to stop bot", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Web server shutdown error", zap.Error(err))
	}
}
