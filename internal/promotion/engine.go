package promotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
)

var hundred = decimal.NewFromInt(100)

// Engine validates promotions and sizes their discounts. Daily time windows
// are evaluated in loc, the salon's wall-clock zone.
type Engine struct {
	loc *time.Location
}

func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{loc: loc}
}

// Validate loads the promotion under a row lock and checks it in a fixed
// order so the first failing rule is the one reported.
func (e *Engine) Validate(ctx context.Context, tx store.Tx, tenantID string, promotionID string, billCents int64, customer domain.CustomerContext, now time.Time) (*domain.Promotion, error) {
	if tx == nil {
		return nil, domain.ErrNoActiveTransaction
	}
	promo, err := tx.GetPromotionForUpdate(ctx, tenantID, promotionID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.PromotionError{PromotionID: promotionID, Reason: domain.PromotionNotFound}
	}
	if err != nil {
		return nil, err
	}
	if err := e.CheckRules(*promo, billCents, customer, now); err != nil {
		return nil, err
	}
	return promo, nil
}

func (e *Engine) CheckRules(promo domain.Promotion, billCents int64, customer domain.CustomerContext, now time.Time) error {
	fail := func(reason domain.PromotionReason) error {
		return &domain.PromotionError{PromotionID: promo.ID, Reason: reason}
	}

	if !promo.Active {
		return fail(domain.PromotionInactive)
	}
	if !promo.StartDate.IsZero() && now.Before(promo.StartDate) {
		return fail(domain.PromotionNotStarted)
	}
	if !promo.EndDate.IsZero() && now.After(e.effectiveEnd(promo.EndDate)) {
		return fail(domain.PromotionExpired)
	}
	if promo.UsageLimit > 0 && promo.UsedCount >= promo.UsageLimit {
		return fail(domain.PromotionUsageExhausted)
	}
	if promo.DailyStartTime != "" || promo.DailyEndTime != "" {
		inside, err := e.withinDailyWindow(promo.DailyStartTime, promo.DailyEndTime, now)
		if err != nil {
			return fail(domain.PromotionMisconfigured)
		}
		if !inside {
			return fail(domain.PromotionOutsideHours)
		}
	}
	if billCents < promo.MinBillCents {
		return fail(domain.PromotionMinBillNotMet)
	}
	if promo.Target == domain.TargetNewCustomers && !customer.IsFirstVisit {
		return fail(domain.PromotionNotEligible)
	}
	return nil
}

// ComputeDiscount returns the discount in cents, bounded by the cap and by
// the bill itself.
func (e *Engine) ComputeDiscount(promo domain.Promotion, billCents int64) int64 {
	if billCents <= 0 {
		return 0
	}

	var discount int64
	switch promo.DiscountType {
	case domain.DiscountFlat:
		discount = promo.Value.Round(0).IntPart()
	case domain.DiscountPercentage:
		discount = decimal.NewFromInt(billCents).Mul(promo.Value).Div(hundred).Round(0).IntPart()
	}

	if promo.MaxDiscountCents > 0 && discount > promo.MaxDiscountCents {
		discount = promo.MaxDiscountCents
	}
	if discount > billCents {
		discount = billCents
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// Consume stages the usage increment. It only becomes visible if the
// surrounding checkout commits.
func (e *Engine) Consume(ctx context.Context, tx store.Tx, promo domain.Promotion) error {
	if tx == nil {
		return domain.ErrNoActiveTransaction
	}
	return tx.IncrementPromotionUsage(ctx, promo.TenantID, promo.ID)
}

// effectiveEnd treats a date without a time of day as lasting until the end
// of that day.
func (e *Engine) effectiveEnd(end time.Time) time.Time {
	local := end.In(e.loc)
	if local.Hour() == 0 && local.Minute() == 0 && local.Second() == 0 && local.Nanosecond() == 0 {
		return local.Add(24*time.Hour - time.Nanosecond)
	}
	return end
}

func (e *Engine) withinDailyWindow(start string, end string, now time.Time) (bool, error) {
	local := now.In(e.loc)
	minuteOfDay := local.Hour()*60 + local.Minute()

	from := 0
	to := 24 * 60
	var err error
	if start != "" {
		if from, err = parseClock(start); err != nil {
			return false, err
		}
	}
	if end != "" {
		if to, err = parseClock(end); err != nil {
			return false, err
		}
	}

	if from <= to {
		return minuteOfDay >= from && minuteOfDay < to, nil
	}
	// Window wraps past midnight, e.g. 22:00-02:00.
	return minuteOfDay >= from || minuteOfDay < to, nil
}

func parseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", value, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
