package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewired-gh/skupricer/internal/api"
	"github.com/rewired-gh/skupricer/internal/autokeys"
	"github.com/rewired-gh/skupricer/internal/catalog"
	"github.com/rewired-gh/skupricer/internal/config"
	"github.com/rewired-gh/skupricer/internal/logger"
	"github.com/rewired-gh/skupricer/internal/pricer"
	"github.com/rewired-gh/skupricer/internal/sku"
	"github.com/rewired-gh/skupricer/internal/storage"
	"github.com/rewired-gh/skupricer/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging with level support
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	// Initialize storage
	store, err := storage.New(cfg.Storage.DBPath, cfg.Storage.MaxHistory)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	// Initialize Telegram client
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	// Initialize catalog client and cache
	catalogClient := catalog.NewClient(cfg.Catalog.URL, cfg.Catalog.Timeout, catalog.ClientConfig{
		APIKey:         cfg.Catalog.APIKey,
		MaxRetries:     cfg.Catalog.MaxRetries,
		RetryDelayBase: cfg.Catalog.RetryDelayBase,
	})

	var cache *catalog.Cache
	cache = catalog.NewCache(catalogClient, catalog.CacheOptions{
		Freshness: cfg.Catalog.Freshness,
		OnFetchError: func(err error, consecutive int) {
			if consecutive != 1 || telegramClient == nil {
				return
			}
			var stale time.Duration
			if snap := cache.Current(); snap != nil {
				stale = snap.Age(time.Now())
			}
			// alerts must not hold up the shared fetch
			go func() {
				if sendErr := telegramClient.AlertCatalogOutage(err, consecutive, stale); sendErr != nil {
					logger.Warn("Failed to send outage notification to Telegram: %v", sendErr)
				}
			}()
		},
		OnRecover: func(snap *catalog.Snapshot, failures int) {
			if telegramClient == nil {
				return
			}
			go func() {
				if sendErr := telegramClient.AlertCatalogRecovered(failures, len(snap.Entries)); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}()
		},
	})

	service := pricer.NewService(sku.NewCodec(sku.DefaultAliases()), pricer.NewResolver(cfg.Pricing.DenyList), cache)

	var alerter autokeys.Alerter
	if telegramClient != nil {
		alerter = telegramClient
	}
	adjuster := autokeys.NewAdjuster(cfg.AutokeysSettings(), service, store, alerter)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	// Start HTTP server
	server := &http.Server{
		Addr: cfg.Server.Address,
		Handler: api.NewRouter(&api.Handler{
			Pricer:     service,
			Autokeys:   adjuster,
			Store:      store,
			Catalog:    cache,
			Thresholds: cfg.Thresholds,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info("HTTP server listening on %s", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed: %v", err)
			cancel()
		}
	}()

	// Run initial sync immediately
	logger.Debug("Running initial price list sync")
	if err := runSyncCycle(ctx, service, store); err != nil {
		logger.Error("Initial sync failed: %v", err)
	}

	refreshTicker := time.NewTicker(cfg.Catalog.Freshness)
	defer refreshTicker.Stop()

	var autokeysTick <-chan time.Time
	direction, _ := autokeys.ParseDirection(cfg.Autokeys.Direction)
	if cfg.Autokeys.Enabled {
		autokeysTicker := time.NewTicker(cfg.Autokeys.Interval)
		defer autokeysTicker.Stop()
		autokeysTick = autokeysTicker.C
		logger.Info("Autokeys enabled (direction: %s, interval: %v)", direction, cfg.Autokeys.Interval)
		runAutokeys(ctx, adjuster, cfg, direction)
	}

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP server shutdown: %v", err)
			}
			shutdownCancel()
			logger.Info("Service stopped")
			return

		case <-refreshTicker.C:
			logger.Debug("Starting scheduled price list sync")
			if err := runSyncCycle(ctx, service, store); err != nil {
				logger.Error("Price list sync failed: %v", err)
			}

			// Rotate old data
			if removed, err := store.RotateHistory(ctx); err != nil {
				logger.Warn("Failed to rotate price history: %v", err)
			} else if removed > 0 {
				logger.Debug("Rotated %d price history rows", removed)
			}

		case <-autokeysTick:
			runAutokeys(ctx, adjuster, cfg, direction)
		}
	}
}

// runSyncCycle flattens the current catalog and seeds it into the price list.
func runSyncCycle(ctx context.Context, service *pricer.Service, store *storage.Storage) error {
	startTime := time.Now()

	prices, err := service.Pricelist(ctx)
	if err != nil {
		return fmt.Errorf("failed to extract price list: %w", err)
	}

	// key-priced items need the key rate to be split into keys + metal
	rate, err := service.KeyRate(ctx)
	if err != nil {
		logger.Warn("No key rate, key-priced items will be skipped: %v", err)
	}

	written, err := store.SeedPrices(ctx, prices, rate)
	if err != nil {
		return fmt.Errorf("failed to seed prices: %w", err)
	}

	logger.Info("Price list sync complete: %d prices extracted, %d rows written in %v",
		len(prices), written, time.Since(startTime))
	return nil
}

func runAutokeys(ctx context.Context, adjuster *autokeys.Adjuster, cfg *config.Config, direction autokeys.Direction) {
	min, max := cfg.Thresholds(direction)
	select {
	case <-adjuster.Submit(ctx, direction, min, max):
		// outcome is logged and alerted by the adjuster
	case <-ctx.Done():
	}
}
