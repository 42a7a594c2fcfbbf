package promotion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/store/memory"
)

var now = time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

func basePromo() domain.Promotion {
	return domain.Promotion{
		ID:           "promo-1",
		TenantID:     "tenant-a",
		DiscountType: domain.DiscountPercentage,
		Value:        decimal.NewFromInt(10),
		StartDate:    now.AddDate(0, 0, -7),
		EndDate:      now.AddDate(0, 0, 7),
		Target:       domain.TargetAll,
		Active:       true,
	}
}

func reasonOf(t *testing.T, err error) domain.PromotionReason {
	t.Helper()
	require.ErrorIs(t, err, domain.ErrPromotionInvalid)
	var promoErr *domain.PromotionError
	require.True(t, errors.As(err, &promoErr))
	return promoErr.Reason
}

func TestComputeDiscountPercentageCappedAtMax(t *testing.T) {
	engine := NewEngine(time.UTC)
	promo := basePromo()
	promo.MaxDiscountCents = 100

	assert.Equal(t, int64(100), engine.ComputeDiscount(promo, 2000))
}

func TestComputeDiscountBounds(t *testing.T) {
	engine := NewEngine(time.UTC)

	flat := basePromo()
	flat.DiscountType = domain.DiscountFlat
	flat.Value = decimal.NewFromInt(5000)
	assert.Equal(t, int64(3000), engine.ComputeDiscount(flat, 3000), "flat discount never exceeds bill")
	assert.Equal(t, int64(5000), engine.ComputeDiscount(flat, 8000))

	pct := basePromo()
	pct.Value = decimal.RequireFromString("12.5")
	assert.Equal(t, int64(125), engine.ComputeDiscount(pct, 1000))
	assert.Equal(t, int64(0), engine.ComputeDiscount(pct, 0))

	full := basePromo()
	full.Value = decimal.NewFromInt(100)
	assert.Equal(t, int64(999), engine.ComputeDiscount(full, 999))
}

func TestCheckRulesReportsSpecificReason(t *testing.T) {
	engine := NewEngine(time.UTC)

	cases := []struct {
		name     string
		mutate   func(p *domain.Promotion)
		bill     int64
		customer domain.CustomerContext
		want     domain.PromotionReason
	}{
		{"inactive", func(p *domain.Promotion) { p.Active = false }, 1000, domain.CustomerContext{}, domain.PromotionInactive},
		{"expired", func(p *domain.Promotion) { p.EndDate = now.Add(-time.Hour) }, 1000, domain.CustomerContext{}, domain.PromotionExpired},
		{"not started", func(p *domain.Promotion) { p.StartDate = now.Add(time.Hour) }, 1000, domain.CustomerContext{}, domain.PromotionNotStarted},
		{"usage limit", func(p *domain.Promotion) { p.UsageLimit = 3; p.UsedCount = 3 }, 1000, domain.CustomerContext{}, domain.PromotionUsageExhausted},
		{"outside hours", func(p *domain.Promotion) { p.DailyStartTime = "08:00"; p.DailyEndTime = "12:00" }, 1000, domain.CustomerContext{}, domain.PromotionOutsideHours},
		{"minimum bill", func(p *domain.Promotion) { p.MinBillCents = 5000 }, 4999, domain.CustomerContext{}, domain.PromotionMinBillNotMet},
		{"new customers only", func(p *domain.Promotion) { p.Target = domain.TargetNewCustomers }, 1000, domain.CustomerContext{IsFirstVisit: false}, domain.PromotionNotEligible},
		{"bad clock", func(p *domain.Promotion) { p.DailyStartTime = "25:99" }, 1000, domain.CustomerContext{}, domain.PromotionMisconfigured},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			promo := basePromo()
			tc.mutate(&promo)
			err := engine.CheckRules(promo, tc.bill, tc.customer, now)
			assert.Equal(t, tc.want, reasonOf(t, err))
		})
	}
}

func TestCheckRulesOrderExpiredBeforeMinBill(t *testing.T) {
	engine := NewEngine(time.UTC)
	promo := basePromo()
	promo.EndDate = now.AddDate(0, 0, -1)
	promo.MinBillCents = 10_000

	assert.Equal(t, domain.PromotionExpired, reasonOf(t, engine.CheckRules(promo, 10, domain.CustomerContext{}, now)))
}

func TestCheckRulesAcceptsValidPromotion(t *testing.T) {
	engine := NewEngine(time.UTC)
	promo := basePromo()
	promo.Target = domain.TargetNewCustomers
	promo.DailyStartTime = "09:00"
	promo.DailyEndTime = "18:00"
	promo.UsageLimit = 10
	promo.UsedCount = 9
	promo.MinBillCents = 1000

	require.NoError(t, engine.CheckRules(promo, 1000, domain.CustomerContext{IsFirstVisit: true}, now))
}

func TestDateOnlyEndDateCoversWholeDay(t *testing.T) {
	engine := NewEngine(time.UTC)
	promo := basePromo()
	promo.EndDate = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, engine.CheckRules(promo, 1000, domain.CustomerContext{}, now))
}

func TestOvernightDailyWindow(t *testing.T) {
	engine := NewEngine(time.UTC)
	promo := basePromo()
	promo.DailyStartTime = "22:00"
	promo.DailyEndTime = "02:00"

	late := time.Date(2025, 6, 15, 23, 15, 0, 0, time.UTC)
	early := time.Date(2025, 6, 15, 1, 0, 0, 0, time.UTC)
	require.NoError(t, engine.CheckRules(promo, 1000, domain.CustomerContext{}, late))
	require.NoError(t, engine.CheckRules(promo, 1000, domain.CustomerContext{}, early))
	assert.Equal(t, domain.PromotionOutsideHours, reasonOf(t, engine.CheckRules(promo, 1000, domain.CustomerContext{}, now)))
}

func TestValidateAndConsumeInsideTransaction(t *testing.T) {
	st := memory.New()
	svc := NewService(st)
	ctx := context.Background()

	created, err := svc.Create(ctx, "tenant-a", domain.PromotionCreateRequest{
		Name:         "Single use",
		DiscountType: domain.DiscountFlat,
		Value:        decimal.NewFromInt(500),
		StartDate:    time.Now().UTC().AddDate(0, 0, -1),
		EndDate:      time.Now().UTC().AddDate(0, 0, 1),
		UsageLimit:   1,
	})
	require.NoError(t, err)

	engine := NewEngine(time.UTC)
	err = st.WithinTx(ctx, func(tx store.Tx) error {
		promo, err := engine.Validate(ctx, tx, "tenant-a", created.ID, 2000, domain.CustomerContext{}, time.Now().UTC())
		if err != nil {
			return err
		}
		return engine.Consume(ctx, tx, *promo)
	})
	require.NoError(t, err)

	err = st.WithinTx(ctx, func(tx store.Tx) error {
		_, err := engine.Validate(ctx, tx, "tenant-a", created.ID, 2000, domain.CustomerContext{}, time.Now().UTC())
		return err
	})
	assert.Equal(t, domain.PromotionUsageExhausted, reasonOf(t, err))

	err = st.WithinTx(ctx, func(tx store.Tx) error {
		_, err := engine.Validate(ctx, tx, "tenant-b", created.ID, 2000, domain.CustomerContext{}, time.Now().UTC())
		return err
	})
	assert.Equal(t, domain.PromotionNotFound, reasonOf(t, err))
}

func TestCreateRejectsBadPromotions(t *testing.T) {
	svc := NewService(memory.New())
	start := time.Now().UTC()

	_, err := svc.Create(context.Background(), "tenant-a", domain.PromotionCreateRequest{
		Name: "Too much", DiscountType: domain.DiscountPercentage, Value: decimal.NewFromInt(150),
		StartDate: start, EndDate: start.AddDate(0, 1, 0),
	})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = svc.Create(context.Background(), "tenant-a", domain.PromotionCreateRequest{
		Name: "Backwards", DiscountType: domain.DiscountFlat, Value: decimal.NewFromInt(100),
		StartDate: start, EndDate: start.AddDate(0, -1, 0),
	})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}
