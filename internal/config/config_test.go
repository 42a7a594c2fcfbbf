package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("CHECKOUT_TIMEOUT_SECONDS", "-4")
	t.Setenv("COMMISSION_RATE", "1.5")
	t.Setenv("LOYALTY_POINT_VALUE_CENTS", "abc")
	t.Setenv("BUSINESS_TIMEZONE", "Mars/Olympus")

	cfg := Load()
	assert.Equal(t, 15*time.Second, cfg.CheckoutTimeout())
	assert.True(t, cfg.CommissionRate.Equal(decimal.RequireFromString("0.10")))
	assert.Equal(t, int64(100), cfg.LoyaltyPointValueCents)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("COMMISSION_RATE", "0.15")
	t.Setenv("LOYALTY_ACCRUAL_CENTS_PER_POINT", "5000")
	t.Setenv("DEFAULT_OUTLET_ID", "outlet-north")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.Address())
	assert.True(t, cfg.CommissionRate.Equal(decimal.RequireFromString("0.15")))
	assert.Equal(t, int64(5000), cfg.LoyaltyAccrualCentsPerPoint)
	assert.Equal(t, "outlet-north", cfg.DefaultOutletID)
	assert.Equal(t, "debug", cfg.LogLevel)
}
