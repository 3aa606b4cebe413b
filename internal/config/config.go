// Package config defines all configuration for the prediction-market
// intelligence backend. Config is loaded entirely from environment
// variables (spec §6) via viper's AutomaticEnv path; there is no config
// file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration, one field group per component.
type Config struct {
	ExchangeA ExchangeAConfig
	ExchangeB ExchangeBConfig
	Batch     BatchConfig
	Reconnect ReconnectConfig
	Arbitrage ArbitrageConfig
	Classifier ClassifierConfig
	Scenario  ScenarioConfig
	Analyst   AnalystConfig
	Store     StoreConfig
	Logging   LoggingConfig
	HTTP      HTTPConfig
}

// ExchangeAConfig configures the order-book venue session.
type ExchangeAConfig struct {
	AssetIDs []string
	APIKey   string
}

// ExchangeBConfig configures the ticker venue session, including the
// RSA-PSS signing credentials required on every reconnect.
type ExchangeBConfig struct {
	Tickers          []string
	APIKey           string
	PrivateKeyBase64 string
}

// BatchConfig tunes the batch writer's size/time flush triggers.
type BatchConfig struct {
	Size              int
	FlushIntervalMS   int
}

func (b BatchConfig) FlushInterval() time.Duration {
	return time.Duration(b.FlushIntervalMS) * time.Millisecond
}

// ReconnectConfig tunes the exchange session reconnect backoff.
type ReconnectConfig struct {
	BaseDelayMS int
	MaxDelayMS  int
}

func (r ReconnectConfig) BaseDelay() time.Duration { return time.Duration(r.BaseDelayMS) * time.Millisecond }
func (r ReconnectConfig) MaxDelay() time.Duration  { return time.Duration(r.MaxDelayMS) * time.Millisecond }

// ArbitrageConfig tunes the arbitrage scanner.
type ArbitrageConfig struct {
	PollIntervalMS      int
	SpreadThresholdPct  float64
	LiquidityThresholdUSD float64
}

func (a ArbitrageConfig) PollInterval() time.Duration {
	return time.Duration(a.PollIntervalMS) * time.Millisecond
}

// ClassifierConfig tunes the relationship classifier.
type ClassifierConfig struct {
	Concurrency            int
	ArbitrageFlagThresholdPct float64
	DivergenceThresholdPct  float64
	HubLinkThreshold        int
}

// ScenarioConfig tunes the scenario engine's bounded BFS.
type ScenarioConfig struct {
	MaxDepth           int
	MinPathConfidence  float64
}

// AnalystConfig configures the external analyst-model endpoint.
type AnalystConfig struct {
	Endpoint string
	APIKey   string
	Model    string
}

// StoreConfig configures the persistent-store REST client.
type StoreConfig struct {
	URL        string
	ServiceKey string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// HTTPConfig configures the dashboard-facing HTTP API.
type HTTPConfig struct {
	Port int
}

// Load reads configuration entirely from environment variables, applying
// the defaults listed in spec §6.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("batch_size", 25)
	v.SetDefault("batch_flush_interval_ms", 2000)
	v.SetDefault("reconnect_base_delay_ms", 1000)
	v.SetDefault("reconnect_max_delay_ms", 30000)
	v.SetDefault("arbitrage_poll_interval_ms", 30000)
	v.SetDefault("arbitrage_spread_threshold_pct", 3.0)
	v.SetDefault("arbitrage_liquidity_threshold_usd", 500.0)
	v.SetDefault("classifier_concurrency", 5)
	v.SetDefault("arbitrage_flag_threshold_pct", 10.0)
	v.SetDefault("divergence_threshold_pct", 5.0)
	v.SetDefault("hub_link_threshold", 3)
	v.SetDefault("scenario_max_depth", 2)
	v.SetDefault("scenario_min_path_confidence", 0.05)
	v.SetDefault("logging_level", "info")
	v.SetDefault("logging_format", "text")
	v.SetDefault("http_port", 8080)

	for _, key := range []string{
		"exchange_a_asset_ids", "exchange_a_api_key",
		"exchange_b_tickers", "exchange_b_api_key", "exchange_b_private_key_base64",
		"batch_size", "batch_flush_interval_ms",
		"reconnect_base_delay_ms", "reconnect_max_delay_ms",
		"arbitrage_poll_interval_ms", "arbitrage_spread_threshold_pct", "arbitrage_liquidity_threshold_usd",
		"classifier_concurrency", "arbitrage_flag_threshold_pct", "divergence_threshold_pct", "hub_link_threshold",
		"scenario_max_depth", "scenario_min_path_confidence",
		"analyst_model_endpoint", "analyst_model_api_key", "analyst_model_name",
		"persistent_store_url", "persistent_store_service_key",
		"logging_level", "logging_format", "http_port",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	cfg := &Config{
		ExchangeA: ExchangeAConfig{
			AssetIDs: splitCSV(v.GetString("exchange_a_asset_ids")),
			APIKey:   v.GetString("exchange_a_api_key"),
		},
		ExchangeB: ExchangeBConfig{
			Tickers:          splitCSV(v.GetString("exchange_b_tickers")),
			APIKey:           v.GetString("exchange_b_api_key"),
			PrivateKeyBase64: v.GetString("exchange_b_private_key_base64"),
		},
		Batch: BatchConfig{
			Size:            v.GetInt("batch_size"),
			FlushIntervalMS: v.GetInt("batch_flush_interval_ms"),
		},
		Reconnect: ReconnectConfig{
			BaseDelayMS: v.GetInt("reconnect_base_delay_ms"),
			MaxDelayMS:  v.GetInt("reconnect_max_delay_ms"),
		},
		Arbitrage: ArbitrageConfig{
			PollIntervalMS:        v.GetInt("arbitrage_poll_interval_ms"),
			SpreadThresholdPct:    v.GetFloat64("arbitrage_spread_threshold_pct"),
			LiquidityThresholdUSD: v.GetFloat64("arbitrage_liquidity_threshold_usd"),
		},
		Classifier: ClassifierConfig{
			Concurrency:               v.GetInt("classifier_concurrency"),
			ArbitrageFlagThresholdPct: v.GetFloat64("arbitrage_flag_threshold_pct"),
			DivergenceThresholdPct:    v.GetFloat64("divergence_threshold_pct"),
			HubLinkThreshold:          v.GetInt("hub_link_threshold"),
		},
		Scenario: ScenarioConfig{
			MaxDepth:          v.GetInt("scenario_max_depth"),
			MinPathConfidence: v.GetFloat64("scenario_min_path_confidence"),
		},
		Analyst: AnalystConfig{
			Endpoint: v.GetString("analyst_model_endpoint"),
			APIKey:   v.GetString("analyst_model_api_key"),
			Model:    v.GetString("analyst_model_name"),
		},
		Store: StoreConfig{
			URL:        v.GetString("persistent_store_url"),
			ServiceKey: v.GetString("persistent_store_service_key"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging_level"),
			Format: v.GetString("logging_format"),
		},
		HTTP: HTTPConfig{
			Port: v.GetInt("http_port"),
		},
	}

	return cfg, nil
}

// Validate checks required fields. Per spec §7, a missing venue asset list
// is not fatal (the session opens and logs a warning); only the store and
// analyst endpoints, which every component depends on, are required here.
func (c *Config) Validate() error {
	if c.Store.URL == "" {
		return fmt.Errorf("persistent_store_url is required")
	}
	if c.Analyst.Endpoint == "" {
		return fmt.Errorf("analyst_model_endpoint is required")
	}
	if c.Batch.Size <= 0 {
		return fmt.Errorf("batch_size must be > 0")
	}
	if c.Classifier.Concurrency <= 0 {
		return fmt.Errorf("classifier_concurrency must be > 0")
	}
	if c.Scenario.MaxDepth <= 0 {
		return fmt.Errorf("scenario_max_depth must be > 0")
	}
	return nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
