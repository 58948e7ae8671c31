package app

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/buildpoint/buildpoint/internal/points"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 12, cfg.PointExpiryMonths)
	require.Equal(t, 7, cfg.VoidWindowDays)
	require.Equal(t, 50, cfg.MaxOfflineQueue)
	require.Equal(t, 500, cfg.ExpirySweepBatchLimit)
	require.Equal(t, 90, cfg.ProcessedRetentionDays)
	require.False(t, cfg.IsProduction())

	rates := cfg.ConversionRates()
	require.True(t, rates[points.CategoryHardware].Equal(decimal.NewFromInt(100)))
	require.True(t, rates[points.CategoryPlywood].Equal(decimal.NewFromInt(200)))
}

func TestLoadConfigRejectsNonPositivePolicy(t *testing.T) {
	t.Setenv("POINT_EXPIRY_MONTHS", "0")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsNonPositiveRate(t *testing.T) {
	t.Setenv("HARDWARE_CONVERSION_RATE", "-1")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PLYWOOD_CONVERSION_RATE", "250")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.True(t, cfg.ConversionRates()[points.CategoryPlywood].Equal(decimal.NewFromInt(250)))
}

func TestTestModeRefresh(t *testing.T) {
	t.Setenv("BUILDPOINT_TEST_MODE", "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv("BUILDPOINT_TEST_MODE", "")
	RefreshTestMode()
	require.False(t, InTestMode())
}
