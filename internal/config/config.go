package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full engine configuration, loaded from environment
// variables or a .env file.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Pipeline PipelineConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds the sqlite audit store location.
type DatabaseConfig struct {
	Path string
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	JWTSecret string
	APIKey    string
	APISecret string
}

// PipelineConfig carries the run configuration recognized by the pipeline.
type PipelineConfig struct {
	// AnomalyThreshold is the score at or above which a trade is flagged.
	AnomalyThreshold float64
	// NettingMode is "bilateral" or "multilateral".
	NettingMode string
	// RetryLimit bounds Failed -> Retried -> PendingFunding cycles per record.
	RetryLimit int
	// ScoringTimeout bounds each call to the external scoring function.
	ScoringTimeout time.Duration
	// FundingTimeout bounds each call to the funding-confirmation signal.
	FundingTimeout time.Duration
	// Workers bounds fan-out parallelism for the per-trade stages.
	Workers int
	// Currencies is the recognized currency set for validation.
	Currencies []string
}

// Load reads configuration from the environment (and .env if present),
// applying defaults for everything not set.
//
// Precedence, lowest to highest: defaults, .env file, environment variables.
func Load() (Config, error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DB_PATH", "finclear.db")

	viper.SetDefault("JWT_SECRET", "finclear-secret-key")
	viper.SetDefault("API_KEY", "test-api-key")
	viper.SetDefault("API_SECRET", "test-api-secret")

	viper.SetDefault("ANOMALY_THRESHOLD", 3.0)
	viper.SetDefault("NETTING_MODE", "multilateral")
	viper.SetDefault("SETTLEMENT_RETRY_LIMIT", 2)
	viper.SetDefault("SCORING_TIMEOUT", "2s")
	viper.SetDefault("FUNDING_TIMEOUT", "5s")
	viper.SetDefault("PIPELINE_WORKERS", 8)
	viper.SetDefault("CURRENCIES", "USD,EUR,GBP,JPY,CHF")

	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig() // no .env is fine

	viper.AutomaticEnv()

	cfg := Config{
		Server: ServerConfig{
			Port: viper.GetString("SERVER_PORT"),
		},
		Database: DatabaseConfig{
			Path: viper.GetString("DB_PATH"),
		},
		Auth: AuthConfig{
			JWTSecret: viper.GetString("JWT_SECRET"),
			APIKey:    viper.GetString("API_KEY"),
			APISecret: viper.GetString("API_SECRET"),
		},
		Pipeline: PipelineConfig{
			AnomalyThreshold: viper.GetFloat64("ANOMALY_THRESHOLD"),
			NettingMode:      strings.ToLower(viper.GetString("NETTING_MODE")),
			RetryLimit:       viper.GetInt("SETTLEMENT_RETRY_LIMIT"),
			ScoringTimeout:   viper.GetDuration("SCORING_TIMEOUT"),
			FundingTimeout:   viper.GetDuration("FUNDING_TIMEOUT"),
			Workers:          viper.GetInt("PIPELINE_WORKERS"),
			Currencies:       splitList(viper.GetString("CURRENCIES")),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Pipeline.NettingMode != "bilateral" && c.Pipeline.NettingMode != "multilateral" {
		return fmt.Errorf("invalid NETTING_MODE %q: must be bilateral or multilateral", c.Pipeline.NettingMode)
	}
	if c.Pipeline.RetryLimit < 0 {
		return fmt.Errorf("SETTLEMENT_RETRY_LIMIT must be >= 0, got %d", c.Pipeline.RetryLimit)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("PIPELINE_WORKERS must be >= 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.ScoringTimeout <= 0 || c.Pipeline.FundingTimeout <= 0 {
		return fmt.Errorf("scoring and funding timeouts must be positive")
	}
	if len(c.Pipeline.Currencies) == 0 {
		return fmt.Errorf("CURRENCIES must list at least one currency code")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
