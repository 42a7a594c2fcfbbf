package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Port                        string
	AllowedOrigin               string
	DatabaseURL                 string
	RedisAddr                   string
	RedisPassword               string
	RedisDB                     int
	DefaultOutletID             string
	AuthSecret                  string
	AccessTokenTTLMinutes       int
	LogLevel                    string
	LogEncoding                 string
	CheckoutTimeoutSeconds      int
	CommissionRate              decimal.Decimal
	LoyaltyPointValueCents      int64
	LoyaltyAccrualCentsPerPoint int64
	LoyaltyReconcileSeconds     int
	InvoiceCacheTTLSeconds      int
	BusinessTimezone            string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	rate, err := decimal.NewFromString(getEnv("COMMISSION_RATE", "0.10"))
	if err != nil || !rate.IsPositive() || rate.GreaterThan(decimal.NewFromInt(1)) {
		rate = decimal.RequireFromString("0.10")
	}

	cfg := Config{
		Port:                        getEnv("PORT", "8080"),
		AllowedOrigin:               getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:                 os.Getenv("DATABASE_URL"),
		RedisAddr:                   os.Getenv("REDIS_ADDR"),
		RedisPassword:               os.Getenv("REDIS_PASSWORD"),
		RedisDB:                     redisDB,
		DefaultOutletID:             getEnv("DEFAULT_OUTLET_ID", "outlet-main"),
		AuthSecret:                  strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:       positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		LogLevel:                    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogEncoding:                 strings.ToLower(getEnv("LOG_ENCODING", "json")),
		CheckoutTimeoutSeconds:      positiveInt("CHECKOUT_TIMEOUT_SECONDS", 15),
		CommissionRate:              rate,
		LoyaltyPointValueCents:      int64(positiveInt("LOYALTY_POINT_VALUE_CENTS", 100)),
		LoyaltyAccrualCentsPerPoint: int64(positiveInt("LOYALTY_ACCRUAL_CENTS_PER_POINT", 10000)),
		LoyaltyReconcileSeconds:     positiveInt("LOYALTY_RECONCILE_SECONDS", 30),
		InvoiceCacheTTLSeconds:      positiveInt("INVOICE_CACHE_TTL_SECONDS", 300),
		BusinessTimezone:            getEnv("BUSINESS_TIMEZONE", "UTC"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) CheckoutTimeout() time.Duration {
	return time.Duration(c.CheckoutTimeoutSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) ReconcileInterval() time.Duration {
	return time.Duration(c.LoyaltyReconcileSeconds) * time.Second
}

func (c Config) InvoiceCacheTTL() time.Duration {
	return time.Duration(c.InvoiceCacheTTLSeconds) * time.Second
}

// Location falls back to UTC when BUSINESS_TIMEZONE is not a known zone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
