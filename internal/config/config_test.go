package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "finclear.db", cfg.Database.Path)
	assert.Equal(t, 3.0, cfg.Pipeline.AnomalyThreshold)
	assert.Equal(t, "multilateral", cfg.Pipeline.NettingMode)
	assert.Equal(t, 2, cfg.Pipeline.RetryLimit)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.ScoringTimeout)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.FundingTimeout)
	assert.Equal(t, []string{"USD", "EUR", "GBP", "JPY", "CHF"}, cfg.Pipeline.Currencies)
}

func TestLoadOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("NETTING_MODE", "Bilateral")
	t.Setenv("SETTLEMENT_RETRY_LIMIT", "5")
	t.Setenv("CURRENCIES", "usd, sek")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "bilateral", cfg.Pipeline.NettingMode)
	assert.Equal(t, 5, cfg.Pipeline.RetryLimit)
	assert.Equal(t, []string{"USD", "SEK"}, cfg.Pipeline.Currencies)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown netting mode", key: "NETTING_MODE", value: "trilateral"},
		{name: "negative retry limit", key: "SETTLEMENT_RETRY_LIMIT", value: "-1"},
		{name: "zero workers", key: "PIPELINE_WORKERS", value: "0"},
		{name: "empty currency set", key: "CURRENCIES", value: " , "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
