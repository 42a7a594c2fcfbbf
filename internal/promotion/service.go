package promotion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/validation"
	"salonpos/backend/internal/xid"
)

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(st store.Store) *Service {
	return &Service{store: st, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) Create(ctx context.Context, tenantID string, req domain.PromotionCreateRequest) (*domain.Promotion, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, fmt.Errorf("%w: endDate must not be before startDate", domain.ErrInvalidRequest)
	}
	if !req.Value.IsPositive() {
		return nil, fmt.Errorf("%w: value must be positive", domain.ErrInvalidRequest)
	}
	if req.DiscountType == domain.DiscountPercentage && req.Value.GreaterThan(hundred) {
		return nil, fmt.Errorf("%w: percentage value must not exceed 100", domain.ErrInvalidRequest)
	}
	for _, clock := range []string{req.DailyStartTime, req.DailyEndTime} {
		if clock == "" {
			continue
		}
		if _, err := parseClock(clock); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
		}
	}
	target := req.Target
	if target == "" {
		target = domain.TargetAll
	}

	promo := domain.Promotion{
		ID:               xid.New("promo"),
		TenantID:         tenantID,
		Name:             strings.TrimSpace(req.Name),
		Code:             strings.ToUpper(strings.TrimSpace(req.Code)),
		DiscountType:     req.DiscountType,
		Value:            req.Value.Round(2),
		MaxDiscountCents: req.MaxDiscountAmount,
		MinBillCents:     req.MinBillAmount,
		StartDate:        req.StartDate.UTC(),
		EndDate:          req.EndDate.UTC(),
		DailyStartTime:   req.DailyStartTime,
		DailyEndTime:     req.DailyEndTime,
		UsageLimit:       req.UsageLimit,
		Target:           target,
		Active:           true,
		CreatedAt:        s.now(),
	}
	return s.store.CreatePromotion(ctx, promo)
}

func (s *Service) Get(ctx context.Context, tenantID string, promotionID string) (*domain.Promotion, error) {
	return s.store.GetPromotion(ctx, tenantID, promotionID)
}
