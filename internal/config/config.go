package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rewired-gh/skupricer/internal/autokeys"
	"github.com/rewired-gh/skupricer/internal/currency"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Pricing  PricingConfig  `mapstructure:"pricing"`
	Autokeys AutokeysConfig `mapstructure:"autokeys"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CatalogConfig holds remote price catalog configuration
type CatalogConfig struct {
	URL            string        `mapstructure:"url"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Freshness      time.Duration `mapstructure:"freshness"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// PricingConfig holds resolver configuration
type PricingConfig struct {
	DenyList []int `mapstructure:"deny_list"`
}

// ThresholdConfig is the stock range of a key entry
type ThresholdConfig struct {
	Min int `mapstructure:"min"`
	Max int `mapstructure:"max"`
}

// ScrapAdjustmentConfig shifts the key price by a number of scrap
type ScrapAdjustmentConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Value   int  `mapstructure:"value"`
}

// ManualPriceConfig pins the key price; prices are refined metal strings like "50.11"
type ManualPriceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Buy     string `mapstructure:"buy"`
	Sell    string `mapstructure:"sell"`
}

// AutokeysConfig holds key price adjustment configuration
type AutokeysConfig struct {
	Enabled         bool                  `mapstructure:"enabled"`
	Interval        time.Duration         `mapstructure:"interval"`
	Direction       string                `mapstructure:"direction"`
	ScrapAdjustment ScrapAdjustmentConfig `mapstructure:"scrap_adjustment"`
	ManualPrice     ManualPriceConfig     `mapstructure:"manual_price"`
	Buy             ThresholdConfig       `mapstructure:"buy"`
	Sell            ThresholdConfig       `mapstructure:"sell"`
	Bank            ThresholdConfig       `mapstructure:"bank"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath     string `mapstructure:"db_path"`
	MaxHistory int    `mapstructure:"max_history"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// A .env file in the working directory, if any, is loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Set config file
	v.SetConfigFile(path)

	// Set defaults
	setDefaults(v)

	// Enable environment variable override, e.g. SKUPRICER_CATALOG_API_KEY
	v.SetEnvPrefix("SKUPRICER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Catalog defaults
	v.SetDefault("catalog.url", "https://backpack.tf/api/IGetPrices/v4")
	v.SetDefault("catalog.api_key", "")
	v.SetDefault("catalog.timeout", "30s")
	v.SetDefault("catalog.freshness", "5m")
	v.SetDefault("catalog.max_retries", 3)
	v.SetDefault("catalog.retry_delay_base", "1s")

	// Pricing defaults
	v.SetDefault("pricing.deny_list", []int{})

	// Autokeys defaults
	v.SetDefault("autokeys.enabled", false)
	v.SetDefault("autokeys.interval", "5m")
	v.SetDefault("autokeys.direction", "bank")
	v.SetDefault("autokeys.scrap_adjustment.enabled", false)
	v.SetDefault("autokeys.scrap_adjustment.value", 1)
	v.SetDefault("autokeys.manual_price.enabled", false)
	v.SetDefault("autokeys.manual_price.buy", "0")
	v.SetDefault("autokeys.manual_price.sell", "0")
	v.SetDefault("autokeys.buy.min", 0)
	v.SetDefault("autokeys.buy.max", 1)
	v.SetDefault("autokeys.sell.min", 0)
	v.SetDefault("autokeys.sell.max", 1)
	v.SetDefault("autokeys.bank.min", 0)
	v.SetDefault("autokeys.bank.max", 1)

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/skupricer.db")
	v.SetDefault("storage.max_history", 100)

	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Catalog config
	if c.Catalog.URL == "" {
		return fmt.Errorf("catalog.url is required")
	}
	if c.Catalog.Timeout < 1*time.Second {
		return fmt.Errorf("catalog.timeout must be at least 1 second")
	}
	if c.Catalog.Freshness < 1*time.Minute {
		return fmt.Errorf("catalog.freshness must be at least 1 minute")
	}
	if c.Catalog.MaxRetries < 1 {
		return fmt.Errorf("catalog.max_retries must be at least 1")
	}

	// Validate Pricing config
	for _, id := range c.Pricing.DenyList {
		if id < 0 {
			return fmt.Errorf("pricing.deny_list must not contain negative ids")
		}
	}

	// Validate Autokeys config
	if _, err := autokeys.ParseDirection(c.Autokeys.Direction); err != nil {
		return fmt.Errorf("autokeys.direction must be one of: buy, sell, bank")
	}
	if c.Autokeys.Enabled && c.Autokeys.Interval < 1*time.Minute {
		return fmt.Errorf("autokeys.interval must be at least 1 minute")
	}
	for name, th := range map[string]ThresholdConfig{"buy": c.Autokeys.Buy, "sell": c.Autokeys.Sell, "bank": c.Autokeys.Bank} {
		if th.Min < 0 || th.Max < th.Min {
			return fmt.Errorf("autokeys.%s thresholds must satisfy 0 <= min <= max", name)
		}
	}
	if c.Autokeys.ManualPrice.Enabled {
		buy, sell, err := c.Autokeys.ManualPrice.parse()
		if err != nil {
			return err
		}
		if buy.IsNegative() || sell.LessThan(buy) {
			return fmt.Errorf("autokeys.manual_price must satisfy 0 <= buy <= sell")
		}
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxHistory < 1 {
		return fmt.Errorf("storage.max_history must be at least 1")
	}

	// Validate Server config
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

func (m ManualPriceConfig) parse() (buy, sell decimal.Decimal, err error) {
	buy, err = decimal.NewFromString(m.Buy)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("autokeys.manual_price.buy: %w", err)
	}
	sell, err = decimal.NewFromString(m.Sell)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("autokeys.manual_price.sell: %w", err)
	}
	// pinned prices live on the scrap grid
	return currency.FromScrap(currency.ToScrap(buy)), currency.FromScrap(currency.ToScrap(sell)), nil
}

// AutokeysSettings converts the autokeys section for autokeys.NewAdjuster.
// Call Validate first; unparsable pinned prices are treated as disabled.
func (c *Config) AutokeysSettings() autokeys.Settings {
	settings := autokeys.Settings{
		Adjustment: autokeys.ScrapAdjustment{
			Enabled: c.Autokeys.ScrapAdjustment.Enabled,
			Value:   c.Autokeys.ScrapAdjustment.Value,
		},
	}
	if c.Autokeys.ManualPrice.Enabled {
		if buy, sell, err := c.Autokeys.ManualPrice.parse(); err == nil {
			settings.Manual = autokeys.ManualPrice{Enabled: true, Buy: buy, Sell: sell}
		}
	}
	return settings
}

// Thresholds returns the configured stock range for dir.
func (c *Config) Thresholds(dir autokeys.Direction) (min, max int) {
	th := c.Autokeys.Bank
	switch dir {
	case autokeys.Buy:
		th = c.Autokeys.Buy
	case autokeys.Sell:
		th = c.Autokeys.Sell
	}
	return th.Min, th.Max
}
