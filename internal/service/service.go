package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"salonpos/backend/internal/booking"
	"salonpos/backend/internal/cache"
	"salonpos/backend/internal/checkout"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/inventory"
	"salonpos/backend/internal/loyalty"
	"salonpos/backend/internal/promotion"
	"salonpos/backend/internal/store"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("not allowed for this account")
)

type principalContextKey struct{}

func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(domain.Principal)
	return p, ok
}

type Deps struct {
	Store      store.Store
	Bookings   *booking.Service
	Inventory  *inventory.Service
	Promotions *promotion.Service
	Loyalty    *loyalty.Ledger
	Checkout   *checkout.Orchestrator
	Invoices   cache.InvoiceCache
	InvoiceTTL time.Duration
	Logger     *zap.Logger
}

// Service is what the transport layer talks to. It resolves the tenant and
// the caller's rights from the principal in ctx, then delegates.
type Service struct {
	store      store.Store
	bookings   *booking.Service
	inventory  *inventory.Service
	promotions *promotion.Service
	loyalty    *loyalty.Ledger
	checkout   *checkout.Orchestrator
	invoices   cache.InvoiceCache
	invoiceTTL time.Duration
	logger     *zap.Logger
}

func New(deps Deps) *Service {
	if deps.Invoices == nil {
		deps.Invoices = cache.NoopInvoiceCache{}
	}
	if deps.InvoiceTTL <= 0 {
		deps.InvoiceTTL = 5 * time.Minute
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{
		store:      deps.Store,
		bookings:   deps.Bookings,
		inventory:  deps.Inventory,
		promotions: deps.Promotions,
		loyalty:    deps.Loyalty,
		checkout:   deps.Checkout,
		invoices:   deps.Invoices,
		invoiceTTL: deps.InvoiceTTL,
		logger:     deps.Logger.Named("service"),
	}
}

func principal(ctx context.Context) (domain.Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || strings.TrimSpace(p.TenantID) == "" {
		return domain.Principal{}, ErrUnauthenticated
	}
	return p, nil
}

func staff(ctx context.Context) (domain.Principal, error) {
	p, err := principal(ctx)
	if err != nil {
		return p, err
	}
	if !p.IsStaff() {
		return p, ErrForbidden
	}
	return p, nil
}

func admin(ctx context.Context) (domain.Principal, error) {
	p, err := staff(ctx)
	if err != nil {
		return p, err
	}
	if p.Role != "admin" {
		return p, fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return p, nil
}

// CreateBooking books on behalf of the caller. Customers can only book for
// themselves, and their bookings always start out pending.
func (s *Service) CreateBooking(ctx context.Context, req domain.BookingCreateRequest) (*domain.Booking, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if !p.IsStaff() {
		req.ClientID = p.Subject
		req.Status = string(domain.BookingPending)
	}
	return s.bookings.Create(ctx, p.TenantID, req)
}

func (s *Service) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	b, err := s.bookings.Get(ctx, p.TenantID, bookingID)
	if err != nil {
		return nil, err
	}
	if !p.IsStaff() && b.ClientID != p.Subject {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (s *Service) UpdateBookingStatus(ctx context.Context, bookingID string, req domain.BookingStatusRequest) (*domain.Booking, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if !p.IsStaff() {
		// Customers may only cancel their own bookings.
		if req.Status != domain.BookingCancelled {
			return nil, ErrForbidden
		}
		if _, err := s.GetBooking(ctx, bookingID); err != nil {
			return nil, err
		}
	}
	return s.bookings.UpdateStatus(ctx, p.TenantID, bookingID, req.Status)
}

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	p, err := staff(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.PerformedBy) == "" {
		req.PerformedBy = p.Subject
	}

	result, err := s.checkout.Checkout(ctx, p.TenantID, req)
	if err != nil {
		return nil, err
	}
	if err := s.invoices.Set(context.WithoutCancel(ctx), &result.Invoice, s.invoiceTTL); err != nil {
		s.logger.Warn("failed to cache invoice", zap.String("invoice_id", result.Invoice.ID), zap.Error(err))
	}
	return result, nil
}

// GetInvoice reads through the invoice cache. Cache errors fall back to the
// store.
func (s *Service) GetInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return nil, fmt.Errorf("%w: invoice id required", domain.ErrInvalidRequest)
	}

	inv, hit, err := s.invoices.Get(ctx, p.TenantID, invoiceID)
	if err != nil {
		s.logger.Warn("invoice cache read failed", zap.String("invoice_id", invoiceID), zap.Error(err))
	}
	if !hit || inv == nil {
		inv, err = s.store.GetInvoice(ctx, p.TenantID, invoiceID)
		if err != nil {
			return nil, err
		}
		if err := s.invoices.Set(ctx, inv, s.invoiceTTL); err != nil {
			s.logger.Warn("failed to cache invoice", zap.String("invoice_id", invoiceID), zap.Error(err))
		}
	}

	if !p.IsStaff() && inv.ClientID != p.Subject {
		return nil, domain.ErrNotFound
	}
	return inv, nil
}

func (s *Service) CreatePromotion(ctx context.Context, req domain.PromotionCreateRequest) (*domain.Promotion, error) {
	p, err := admin(ctx)
	if err != nil {
		return nil, err
	}
	promo, err := s.promotions.Create(ctx, p.TenantID, req)
	if err != nil {
		return nil, err
	}
	s.logger.Info("promotion created",
		zap.String("tenant_id", p.TenantID),
		zap.String("promotion_id", promo.ID),
		zap.String("actor", p.Subject))
	return promo, nil
}

func (s *Service) StockIn(ctx context.Context, req domain.StockInRequest) (*domain.InventoryRecord, *domain.InventoryMovement, error) {
	p, err := admin(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s.inventory.StockIn(ctx, p.TenantID, p.Subject, req)
}

func (s *Service) ListMovements(ctx context.Context, productID string, outletID string, limit int) ([]domain.InventoryMovement, error) {
	p, err := staff(ctx)
	if err != nil {
		return nil, err
	}
	return s.inventory.ListMovements(ctx, p.TenantID, productID, outletID, limit)
}

func (s *Service) LoyaltyBalance(ctx context.Context, clientID string) (*domain.LoyaltyAccount, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	clientID = strings.TrimSpace(clientID)
	if !p.IsStaff() {
		if clientID != "" && clientID != p.Subject {
			return nil, domain.ErrNotFound
		}
		clientID = p.Subject
	}
	if clientID == "" {
		return nil, fmt.Errorf("%w: client id required", domain.ErrInvalidRequest)
	}
	return s.loyalty.Balance(ctx, p.TenantID, clientID)
}

func (s *Service) Stock(ctx context.Context, productID string, outletID string) (*domain.InventoryRecord, error) {
	p, err := staff(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(productID) == "" {
		return nil, fmt.Errorf("%w: product id required", domain.ErrInvalidRequest)
	}
	return s.inventory.Get(ctx, p.TenantID, strings.TrimSpace(productID), outletID)
}
