package checkout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"salonpos/backend/internal/commission"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/inventory"
	"salonpos/backend/internal/loyalty"
	"salonpos/backend/internal/promotion"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/validation"
	"salonpos/backend/internal/xid"
)

const DefaultTimeout = 15 * time.Second

type Options struct {
	Timeout         time.Duration
	DefaultOutletID string
	// Location decides the calendar day used in invoice numbers.
	Location *time.Location
}

// Orchestrator turns a cart into an invoice. Stock debits, promotion usage,
// loyalty redemption, the invoice, its commissions and the ledger entry are
// written in one unit of work; loyalty accrual follows the commit.
type Orchestrator struct {
	store       store.Store
	inventory   *inventory.Ledger
	promotions  *promotion.Engine
	loyalty     *loyalty.Ledger
	commissions *commission.Calculator
	retry       loyalty.RetryQueue
	logger      *zap.Logger
	opts        Options
	now         func() time.Time
}

func New(
	st store.Store,
	inv *inventory.Ledger,
	promos *promotion.Engine,
	loy *loyalty.Ledger,
	calc *commission.Calculator,
	retry loyalty.RetryQueue,
	logger *zap.Logger,
	opts Options,
) *Orchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if retry == nil {
		retry = loyalty.NewMemoryQueue()
	}
	return &Orchestrator{
		store:       st,
		inventory:   inv,
		promotions:  promos,
		loyalty:     loy,
		commissions: calc,
		retry:       retry,
		logger:      logger.Named("checkout"),
		opts:        opts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// attempt tracks one run through the saga.
type attempt struct {
	tenantID  string
	outletID  string
	invoiceID string
	req       domain.CheckoutRequest
	at        time.Time
	state     domain.CheckoutState

	lines           []domain.InvoiceLine
	subtotal        int64
	promo           *domain.Promotion
	promoDiscount   int64
	pointsRedeemed  int64
	loyaltyDiscount int64
	total           int64
	invoice         domain.Invoice
	commissions     []domain.Commission
}

func (a *attempt) advance(next domain.CheckoutState) {
	a.state = next
}

// Checkout runs the saga. On any failure before commit nothing it wrote
// survives and the originating error is returned.
func (o *Orchestrator) Checkout(ctx context.Context, tenantID string, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("%w: tenant required", domain.ErrInvalidRequest)
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	a := &attempt{
		tenantID:  tenantID,
		outletID:  strings.TrimSpace(req.OutletID),
		invoiceID: xid.New("inv"),
		req:       req,
		at:        o.now(),
		state:     domain.StateStart,
	}
	if a.outletID == "" {
		a.outletID = o.opts.DefaultOutletID
	}

	txCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	err := o.store.WithinTx(txCtx, func(tx store.Tx) error {
		if err := o.price(a); err != nil {
			return err
		}
		if err := o.applyDiscounts(txCtx, tx, a); err != nil {
			return err
		}
		if err := o.reserveInventory(txCtx, tx, a); err != nil {
			return err
		}
		if err := o.persistInvoice(txCtx, tx, a); err != nil {
			return err
		}
		return o.persistSideEffects(txCtx, tx, a)
	})
	if err != nil {
		if isContextErr(err) && !errors.Is(err, domain.ErrTransactionAborted) {
			err = fmt.Errorf("%w: %w", domain.ErrTransactionAborted, err)
		}
		o.logger.Info("checkout failed",
			zap.String("tenant_id", tenantID),
			zap.String("client_id", req.ClientID),
			zap.String("state", string(domain.StateFailed)),
			zap.String("reached", string(a.state)),
			zap.Error(err))
		return nil, err
	}
	a.advance(domain.StateCommitted)

	result := &domain.CheckoutResult{
		Invoice:     a.invoice,
		Commissions: a.commissions,
		State:       a.state,
	}
	result.PointsAccrued, result.AccrualQueued = o.accrue(ctx, a)

	o.logger.Info("checkout committed",
		zap.String("tenant_id", tenantID),
		zap.String("invoice_id", a.invoice.ID),
		zap.String("invoice_number", a.invoice.InvoiceNumber),
		zap.Int64("total", a.invoice.TotalCents))
	return result, nil
}

func (o *Orchestrator) price(a *attempt) error {
	a.lines = make([]domain.InvoiceLine, 0, len(a.req.Items))
	for _, item := range a.req.Items {
		staffID := strings.TrimSpace(item.StaffID)
		if item.Type == domain.LineService && staffID == "" {
			staffID = strings.TrimSpace(a.req.PerformedBy)
		}
		lineTotal, ok := mulCents(item.Price, int64(item.Quantity))
		if !ok {
			return fmt.Errorf("%w: line total for %s is out of range", domain.ErrInvalidRequest, item.ItemID)
		}
		line := domain.InvoiceLine{
			Kind:           item.Type,
			ItemID:         strings.TrimSpace(item.ItemID),
			Name:           strings.TrimSpace(item.Name),
			UnitPriceCents: item.Price,
			Quantity:       item.Quantity,
			LineTotalCents: lineTotal,
			StaffID:        staffID,
		}
		if a.subtotal, ok = addCents(a.subtotal, lineTotal); !ok {
			return fmt.Errorf("%w: subtotal is out of range", domain.ErrInvalidRequest)
		}
		a.lines = append(a.lines, line)

		if c := o.commissions.Compute(a.tenantID, line, a.at); c != nil {
			a.commissions = append(a.commissions, *c)
		}
	}
	if _, ok := addCents(a.subtotal, a.req.Tax); !ok {
		return fmt.Errorf("%w: subtotal plus tax is out of range", domain.ErrInvalidRequest)
	}
	a.advance(domain.StatePricingComplete)
	return nil
}

func (o *Orchestrator) applyDiscounts(ctx context.Context, tx store.Tx, a *attempt) error {
	if promoID := strings.TrimSpace(a.req.PromotionID); promoID != "" {
		// Held until commit so two first visits cannot both count zero
		// prior invoices.
		if err := tx.LockClient(ctx, a.tenantID, a.req.ClientID); err != nil {
			return err
		}
		prior, err := tx.CountClientInvoices(ctx, a.tenantID, a.req.ClientID)
		if err != nil {
			return err
		}
		customer := domain.CustomerContext{ClientID: a.req.ClientID, IsFirstVisit: prior == 0}

		promo, err := o.promotions.Validate(ctx, tx, a.tenantID, promoID, a.subtotal, customer, a.at)
		if err != nil {
			return err
		}
		a.promo = promo
		a.promoDiscount = o.promotions.ComputeDiscount(*promo, a.subtotal)
		if err := o.promotions.Consume(ctx, tx, *promo); err != nil {
			return err
		}
	}

	payable := a.subtotal + a.req.Tax
	remaining := payable - a.promoDiscount

	points, err := o.pointsToRedeem(ctx, tx, a, remaining)
	if err != nil {
		return err
	}
	if points > 0 {
		discount, err := o.loyalty.Redeem(ctx, tx, a.tenantID, a.req.ClientID, points, a.invoiceID)
		if err != nil {
			return err
		}
		a.pointsRedeemed = points
		a.loyaltyDiscount = discount
	}

	discount := a.promoDiscount + a.loyaltyDiscount
	if discount > payable {
		discount = payable
	}
	a.total = payable - discount
	if a.total < 0 {
		a.total = 0
	}
	a.advance(domain.StateDiscountsApplied)
	return nil
}

// pointsToRedeem honours an explicit point count, or with useLoyaltyPoints
// alone spends as much of the balance as the bill can absorb. Either way it
// never spends points whose value would exceed what is still owed.
func (o *Orchestrator) pointsToRedeem(ctx context.Context, tx store.Tx, a *attempt, remaining int64) (int64, error) {
	if a.req.LoyaltyPoints <= 0 && !a.req.UseLoyaltyPoints {
		return 0, nil
	}
	balance, err := o.loyalty.BalanceTx(ctx, tx, a.tenantID, a.req.ClientID)
	if err != nil {
		return 0, err
	}

	requested := balance
	if a.req.LoyaltyPoints > 0 {
		requested = a.req.LoyaltyPoints
		if requested > balance {
			return 0, fmt.Errorf("%w: balance %d, requested %d", domain.ErrInsufficientLoyaltyPoints, balance, requested)
		}
	}
	if limit := o.loyalty.PointsCovering(remaining); requested > limit {
		requested = limit
	}
	return requested, nil
}

func (o *Orchestrator) reserveInventory(ctx context.Context, tx store.Tx, a *attempt) error {
	ref := domain.MovementRef{Type: "invoice", ID: a.invoiceID, Actor: a.req.PerformedBy}
	products := make([]domain.InvoiceLine, 0, len(a.lines))
	for _, line := range a.lines {
		if line.Kind == domain.LineProduct {
			products = append(products, line)
		}
	}
	// Stock rows are locked in product order so overlapping carts cannot
	// deadlock each other.
	slices.SortStableFunc(products, func(x, y domain.InvoiceLine) int {
		return strings.Compare(x.ItemID, y.ItemID)
	})
	for _, line := range products {
		if _, err := o.inventory.Debit(ctx, tx, a.tenantID, line.ItemID, a.outletID, line.Quantity, ref); err != nil {
			return err
		}
	}
	a.advance(domain.StateInventoryReserved)
	return nil
}

func (o *Orchestrator) persistInvoice(ctx context.Context, tx store.Tx, a *attempt) error {
	day := a.at.In(o.opts.Location).Format("20060102")
	seq, err := tx.NextInvoiceSequence(ctx, a.tenantID, day)
	if err != nil {
		return err
	}

	a.invoice = domain.Invoice{
		ID:                     a.invoiceID,
		TenantID:               a.tenantID,
		OutletID:               a.outletID,
		ClientID:               a.req.ClientID,
		InvoiceNumber:          fmt.Sprintf("INV-%s-%04d", day, seq),
		Items:                  a.lines,
		SubtotalCents:          a.subtotal,
		TaxCents:               a.req.Tax,
		PromotionDiscountCents: a.promoDiscount,
		LoyaltyDiscountCents:   a.loyaltyDiscount,
		DiscountCents:          a.subtotal + a.req.Tax - a.total,
		TotalCents:             a.total,
		LoyaltyPointsRedeemed:  a.pointsRedeemed,
		PaymentStatus:          domain.PaymentPaid,
		PaymentMethod:          a.req.PaymentMethod,
		StaffID:                strings.TrimSpace(a.req.PerformedBy),
		CreatedAt:              a.at,
	}
	if a.promo != nil {
		a.invoice.PromotionID = a.promo.ID
	}

	if err := tx.InsertInvoice(ctx, a.invoice); err != nil {
		return err
	}
	a.advance(domain.StateInvoicePersisted)
	return nil
}

func (o *Orchestrator) persistSideEffects(ctx context.Context, tx store.Tx, a *attempt) error {
	for i := range a.commissions {
		a.commissions[i].InvoiceID = a.invoiceID
		if err := tx.InsertCommission(ctx, a.commissions[i]); err != nil {
			return err
		}
	}

	err := tx.InsertFinanceTransaction(ctx, domain.FinanceTransaction{
		ID:            xid.New("fin"),
		TenantID:      a.tenantID,
		Direction:     domain.FinanceIncome,
		Category:      "sales",
		AmountCents:   a.total,
		PaymentMethod: a.req.PaymentMethod,
		ReferenceID:   a.invoiceID,
		CreatedAt:     a.at,
	})
	if err != nil {
		return err
	}
	a.advance(domain.StateSideEffectsPersisted)
	return nil
}

// accrue awards points for the committed sale. Failures never undo the sale;
// the job is queued for the reconciler instead.
func (o *Orchestrator) accrue(ctx context.Context, a *attempt) (int64, bool) {
	points, err := o.loyalty.Accrue(ctx, a.tenantID, a.req.ClientID, a.invoiceID, a.total)
	if err == nil {
		return points, false
	}

	o.logger.Warn("loyalty accrual failed, queued for retry",
		zap.String("tenant_id", a.tenantID),
		zap.String("invoice_id", a.invoiceID),
		zap.Error(err))

	job := loyalty.AccrualJob{
		TenantID:   a.tenantID,
		ClientID:   a.req.ClientID,
		InvoiceID:  a.invoiceID,
		BillCents:  a.total,
		Attempts:   1,
		EnqueuedAt: o.now(),
		LastError:  err.Error(),
	}
	if qErr := o.retry.Enqueue(context.WithoutCancel(ctx), job); qErr != nil {
		o.logger.Error("failed to queue loyalty accrual",
			zap.String("tenant_id", a.tenantID),
			zap.String("invoice_id", a.invoiceID),
			zap.Error(qErr))
		return 0, false
	}
	return 0, true
}

func mulCents(price int64, qty int64) (int64, bool) {
	if price < 0 || qty < 0 {
		return 0, false
	}
	if price != 0 && qty > math.MaxInt64/price {
		return 0, false
	}
	return price * qty, true
}

func addCents(x int64, y int64) (int64, bool) {
	if x < 0 || y < 0 || x > math.MaxInt64-y {
		return 0, false
	}
	return x + y, true
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
