package config

import (
	"os"
	"testing"
	"time"

	"github.com/rewired-gh/skupricer/internal/autokeys"
	"github.com/shopspring/decimal"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(tmpfile.Name()) })

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
catalog:
  url: "https://catalog.example.com/prices"
  api_key: "secret"
  timeout: 20s
  freshness: 10m

pricing:
  deny_list: [5022, 5050]

autokeys:
  enabled: true
  interval: 15m
  direction: sell
  scrap_adjustment:
    enabled: true
    value: 2
  manual_price:
    enabled: true
    buy: "49.88"
    sell: "50.22"
  sell:
    min: 1
    max: 10

telegram:
  bot_token: "test_token"
  chat_id: "12345"
  enabled: true

storage:
  db_path: "./data/test.db"

logging:
  level: "debug"
  format: "text"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Catalog.URL != "https://catalog.example.com/prices" || cfg.Catalog.APIKey != "secret" {
		t.Errorf("Unexpected catalog config: %+v", cfg.Catalog)
	}
	if cfg.Catalog.Freshness != 10*time.Minute {
		t.Errorf("Expected freshness 10m, got %v", cfg.Catalog.Freshness)
	}
	if len(cfg.Pricing.DenyList) != 2 || cfg.Pricing.DenyList[0] != 5022 {
		t.Errorf("Unexpected deny list: %v", cfg.Pricing.DenyList)
	}
	if cfg.Autokeys.Interval != 15*time.Minute || cfg.Autokeys.Direction != "sell" {
		t.Errorf("Unexpected autokeys config: %+v", cfg.Autokeys)
	}

	// defaults fill what the file leaves out
	if cfg.Catalog.MaxRetries != 3 {
		t.Errorf("Expected default max_retries 3, got %d", cfg.Catalog.MaxRetries)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("Expected default server address, got %s", cfg.Server.Address)
	}
	if cfg.Storage.MaxHistory != 100 {
		t.Errorf("Expected default max_history 100, got %d", cfg.Storage.MaxHistory)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	settings := cfg.AutokeysSettings()
	if !settings.Manual.Enabled || !settings.Manual.Buy.Equal(decimal.RequireFromString("49.88")) {
		t.Errorf("Unexpected manual price: %+v", settings.Manual)
	}
	if !settings.Adjustment.Enabled || settings.Adjustment.Value != 2 {
		t.Errorf("Unexpected adjustment: %+v", settings.Adjustment)
	}

	if min, max := cfg.Thresholds(autokeys.Sell); min != 1 || max != 10 {
		t.Errorf("Expected sell thresholds 1/10, got %d/%d", min, max)
	}
	if min, max := cfg.Thresholds(autokeys.Bank); min != 0 || max != 1 {
		t.Errorf("Expected default bank thresholds 0/1, got %d/%d", min, max)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
catalog:
  url: "https://catalog.example.com/prices"
`)
	t.Setenv("SKUPRICER_CATALOG_API_KEY", "from-env")
	t.Setenv("SKUPRICER_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Catalog.APIKey != "from-env" {
		t.Errorf("Expected api key from env, got %q", cfg.Catalog.APIKey)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected level from env, got %q", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/skupricer.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func validConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			URL:        "https://example.com",
			Timeout:    30 * time.Second,
			Freshness:  5 * time.Minute,
			MaxRetries: 3,
		},
		Autokeys: AutokeysConfig{
			Direction: "bank",
			Interval:  5 * time.Minute,
			Buy:       ThresholdConfig{Max: 1},
			Sell:      ThresholdConfig{Max: 1},
			Bank:      ThresholdConfig{Max: 1},
		},
		Storage: StorageConfig{DBPath: "./data/test.db", MaxHistory: 10},
		Server:  ServerConfig{Address: ":8080"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing catalog url", mutate: func(c *Config) { c.Catalog.URL = "" }, wantErr: true},
		{name: "freshness too short", mutate: func(c *Config) { c.Catalog.Freshness = time.Second }, wantErr: true},
		{name: "no retries", mutate: func(c *Config) { c.Catalog.MaxRetries = 0 }, wantErr: true},
		{name: "negative deny id", mutate: func(c *Config) { c.Pricing.DenyList = []int{-1} }, wantErr: true},
		{name: "unknown direction", mutate: func(c *Config) { c.Autokeys.Direction = "hold" }, wantErr: true},
		{
			name:    "interval too short when enabled",
			mutate:  func(c *Config) { c.Autokeys.Enabled = true; c.Autokeys.Interval = time.Second },
			wantErr: true,
		},
		{name: "max below min", mutate: func(c *Config) { c.Autokeys.Sell = ThresholdConfig{Min: 3, Max: 1} }, wantErr: true},
		{
			name: "manual price not a number",
			mutate: func(c *Config) {
				c.Autokeys.ManualPrice = ManualPriceConfig{Enabled: true, Buy: "fifty", Sell: "50"}
			},
			wantErr: true,
		},
		{
			name: "manual buy above sell",
			mutate: func(c *Config) {
				c.Autokeys.ManualPrice = ManualPriceConfig{Enabled: true, Buy: "51", Sell: "50"}
			},
			wantErr: true,
		},
		{name: "missing db path", mutate: func(c *Config) { c.Storage.DBPath = "" }, wantErr: true},
		{name: "missing telegram token when enabled", mutate: func(c *Config) { c.Telegram.Enabled = true }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAutokeysSettingsSnapsToScrap(t *testing.T) {
	cfg := validConfig()
	cfg.Autokeys.ManualPrice = ManualPriceConfig{Enabled: true, Buy: "50.1", Sell: "50.3"}

	settings := cfg.AutokeysSettings()
	if !settings.Manual.Buy.Equal(decimal.RequireFromString("50.11")) {
		t.Errorf("Expected buy snapped to 50.11, got %s", settings.Manual.Buy)
	}
	if !settings.Manual.Sell.Equal(decimal.RequireFromString("50.33")) {
		t.Errorf("Expected sell snapped to 50.33, got %s", settings.Manual.Sell)
	}
}
