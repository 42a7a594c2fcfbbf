package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"salonpos/backend/internal/booking"
	"salonpos/backend/internal/cache"
	"salonpos/backend/internal/checkout"
	"salonpos/backend/internal/commission"
	"salonpos/backend/internal/config"
	"salonpos/backend/internal/httpapi"
	"salonpos/backend/internal/inventory"
	"salonpos/backend/internal/logger"
	"salonpos/backend/internal/loyalty"
	"salonpos/backend/internal/promotion"
	"salonpos/backend/internal/service"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/store/memory"
	pgstore "salonpos/backend/internal/store/postgres"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.Load()
	zl, err := logger.NewZapLogger(logger.ZapLoggerConfig{
		IsDevelopment: cfg.LogEncoding == "console",
		Encoding:      cfg.LogEncoding,
		Level:         cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)

	if err := validateSecurityConfig(cfg); err != nil {
		zl.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Store
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			zl.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.Migrate(ctx); err != nil {
			zl.Fatal("postgres migration failed", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		zl.Info("repository ready", zap.String("driver", "postgres"))
	} else {
		repo = memory.NewSeeded()
		zl.Info("repository ready", zap.String("driver", "memory"))
	}

	var (
		invoiceCache cache.InvoiceCache = cache.NoopInvoiceCache{}
		retryQueue   loyalty.RetryQueue = loyalty.NewMemoryQueue()
		lease        loyalty.Lease      = loyalty.LocalLease{}
	)
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := client.Ping(ctx).Err(); err != nil {
			zl.Warn("redis unavailable, using in-process cache and retry queue", zap.Error(err))
			_ = client.Close()
		} else {
			invoiceCache = cache.NewRedisInvoiceCache(client)
			retryQueue = loyalty.NewRedisQueue(client, loyalty.DefaultRetryQueueKey)
			lease = loyalty.NewRedisLease(client, "", cfg.ReconcileInterval())
			closers = append(closers, client.Close)
			zl.Info("redis ready", zap.String("addr", cfg.RedisAddr))
		}
	}

	loc := cfg.Location()
	stock := inventory.NewLedger()
	points := loyalty.NewLedger(repo, cfg.LoyaltyPointValueCents, cfg.LoyaltyAccrualCentsPerPoint)
	orchestrator := checkout.New(
		repo,
		stock,
		promotion.NewEngine(loc),
		points,
		commission.NewCalculator(commission.NewStaticRates(cfg.CommissionRate)),
		retryQueue,
		zl,
		checkout.Options{
			Timeout:         cfg.CheckoutTimeout(),
			DefaultOutletID: cfg.DefaultOutletID,
			Location:        loc,
		},
	)

	svc := service.New(service.Deps{
		Store:      repo,
		Bookings:   booking.NewService(repo, zl, cfg.DefaultOutletID),
		Inventory:  inventory.NewService(repo, stock, zl, cfg.DefaultOutletID),
		Promotions: promotion.NewService(repo),
		Loyalty:    points,
		Checkout:   orchestrator,
		Invoices:   invoiceCache,
		InvoiceTTL: cfg.InvoiceCacheTTL(),
		Logger:     zl,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, zl, cfg.AllowedOrigin)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	reconciler := loyalty.NewReconciler(points, retryQueue, lease, zl, cfg.ReconcileInterval())
	go reconciler.Run(workerCtx)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.CheckoutTimeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zl.Info("salon backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Warn("shutdown error", zap.Error(err))
	}
	stopWorkers()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			zl.Warn("close error", zap.Error(err))
		}
	}

	zl.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if _, err := time.LoadLocation(cfg.BusinessTimezone); err != nil {
		return fmt.Errorf("BUSINESS_TIMEZONE %q is not a known zone: %w", cfg.BusinessTimezone, err)
	}
	return nil
}
