package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// ActiveBookingStatuses are the statuses that occupy a staff member's time.
var ActiveBookingStatuses = []BookingStatus{BookingPending, BookingConfirmed}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCompleted, BookingCancelled:
		return true
	}
	return false
}

func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed
}

// CanTransitionTo reports whether a booking may move from s to next.
// Completed and cancelled bookings are terminal.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	switch s {
	case BookingPending:
		return next == BookingConfirmed || next == BookingCompleted || next == BookingCancelled
	case BookingConfirmed:
		return next == BookingCompleted || next == BookingCancelled
	}
	return false
}

type Booking struct {
	ID              string        `json:"id" db:"id"`
	TenantID        string        `json:"tenantId" db:"tenant_id"`
	OutletID        string        `json:"outletId" db:"outlet_id"`
	ClientID        string        `json:"clientId" db:"client_id"`
	StaffID         string        `json:"staffId" db:"staff_id"`
	ServiceID       string        `json:"serviceId" db:"service_id"`
	StartTime       time.Time     `json:"appointmentDate" db:"start_time"`
	DurationMinutes int           `json:"duration" db:"duration_minutes"`
	Status          BookingStatus `json:"status" db:"status"`
	PriceCents      int64         `json:"price" db:"price_cents"`
	CreatedAt       time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time     `json:"updatedAt" db:"updated_at"`
}

func (b Booking) EndTime() time.Time {
	return b.StartTime.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// Overlaps applies the half-open interval test against [start, end).
func (b Booking) Overlaps(start, end time.Time) bool {
	return b.StartTime.Before(end) && b.EndTime().After(start)
}

type BookingCreateRequest struct {
	ClientID        string    `json:"clientId" validate:"required"`
	ServiceID       string    `json:"serviceId" validate:"required"`
	StaffID         string    `json:"staffId" validate:"required"`
	OutletID        string    `json:"outletId"`
	AppointmentDate time.Time `json:"appointmentDate" validate:"required"`
	Duration        int       `json:"duration" validate:"gt=0,lte=1440"`
	Price           int64     `json:"price" validate:"gte=0"`
	Status          string    `json:"status,omitempty" validate:"omitempty,oneof=pending confirmed"`
}

type BookingStatusRequest struct {
	Status BookingStatus `json:"status" validate:"required,oneof=pending confirmed completed cancelled"`
}

type InventoryRecord struct {
	TenantID          string    `json:"tenantId" db:"tenant_id"`
	ProductID         string    `json:"productId" db:"product_id"`
	OutletID          string    `json:"outletId" db:"outlet_id"`
	Quantity          int       `json:"quantity" db:"quantity"`
	LowStockThreshold int       `json:"lowStockThreshold" db:"low_stock_threshold"`
	UpdatedAt         time.Time `json:"updatedAt" db:"updated_at"`
}

func (r InventoryRecord) LowStock() bool {
	return r.LowStockThreshold > 0 && r.Quantity <= r.LowStockThreshold
}

type MovementType string

const (
	MovementStockIn    MovementType = "stock-in"
	MovementStockOut   MovementType = "stock-out"
	MovementAdjustment MovementType = "adjustment"
	MovementReturn     MovementType = "return"
)

type InventoryMovement struct {
	ID             string       `json:"id" db:"id"`
	TenantID       string       `json:"tenantId" db:"tenant_id"`
	ProductID      string       `json:"productId" db:"product_id"`
	OutletID       string       `json:"outletId" db:"outlet_id"`
	Type           MovementType `json:"type" db:"movement_type"`
	QuantityDelta  int          `json:"quantityDelta" db:"quantity_delta"`
	QuantityBefore int          `json:"quantityBefore" db:"quantity_before"`
	QuantityAfter  int          `json:"quantityAfter" db:"quantity_after"`
	ReferenceType  string       `json:"referenceType,omitempty" db:"reference_type"`
	ReferenceID    string       `json:"referenceId,omitempty" db:"reference_id"`
	Actor          string       `json:"actor,omitempty" db:"actor"`
	CreatedAt      time.Time    `json:"createdAt" db:"created_at"`
}

// MovementRef links a stock change to whatever triggered it.
type MovementRef struct {
	Type  string
	ID    string
	Actor string
}

type StockInRequest struct {
	ProductID         string       `json:"productId" validate:"required"`
	OutletID          string       `json:"outletId"`
	Quantity          int          `json:"quantity" validate:"gt=0"`
	Type              MovementType `json:"type,omitempty" validate:"omitempty,oneof=stock-in adjustment return"`
	ReferenceID       string       `json:"referenceId,omitempty"`
	LowStockThreshold *int         `json:"lowStockThreshold,omitempty" validate:"omitempty,gte=0"`
}

type DiscountType string

const (
	DiscountFlat       DiscountType = "flat"
	DiscountPercentage DiscountType = "percentage"
)

type PromotionTarget string

const (
	TargetAll          PromotionTarget = "all"
	TargetNewCustomers PromotionTarget = "new-customers"
)

// Promotion.Value holds cents for flat discounts and a percent for
// percentage discounts. Zero MaxDiscountCents and UsageLimit mean unbounded.
type Promotion struct {
	ID               string          `json:"id" db:"id"`
	TenantID         string          `json:"tenantId" db:"tenant_id"`
	Name             string          `json:"name" db:"name"`
	Code             string          `json:"code,omitempty" db:"code"`
	DiscountType     DiscountType    `json:"discountType" db:"discount_type"`
	Value            decimal.Decimal `json:"value" db:"value"`
	MaxDiscountCents int64           `json:"maxDiscountAmount" db:"max_discount_cents"`
	MinBillCents     int64           `json:"minBillAmount" db:"min_bill_cents"`
	StartDate        time.Time       `json:"startDate" db:"start_date"`
	EndDate          time.Time       `json:"endDate" db:"end_date"`
	DailyStartTime   string          `json:"dailyStartTime,omitempty" db:"daily_start_time"`
	DailyEndTime     string          `json:"dailyEndTime,omitempty" db:"daily_end_time"`
	UsageLimit       int             `json:"usageLimit" db:"usage_limit"`
	UsedCount        int             `json:"usedCount" db:"used_count"`
	Target           PromotionTarget `json:"target" db:"target"`
	Active           bool            `json:"active" db:"active"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
}

type PromotionCreateRequest struct {
	Name              string          `json:"name" validate:"required"`
	Code              string          `json:"code,omitempty"`
	DiscountType      DiscountType    `json:"discountType" validate:"required,oneof=flat percentage"`
	Value             decimal.Decimal `json:"value"`
	MaxDiscountAmount int64           `json:"maxDiscountAmount" validate:"gte=0"`
	MinBillAmount     int64           `json:"minBillAmount" validate:"gte=0"`
	StartDate         time.Time       `json:"startDate" validate:"required"`
	EndDate           time.Time       `json:"endDate" validate:"required"`
	DailyStartTime    string          `json:"dailyStartTime,omitempty" validate:"omitempty,len=5"`
	DailyEndTime      string          `json:"dailyEndTime,omitempty" validate:"omitempty,len=5"`
	UsageLimit        int             `json:"usageLimit" validate:"gte=0"`
	Target            PromotionTarget `json:"target,omitempty" validate:"omitempty,oneof=all new-customers"`
}

// CustomerContext carries what promotion targeting rules need to know
// about the paying client.
type CustomerContext struct {
	ClientID     string
	IsFirstVisit bool
}

type LineKind string

const (
	LineService LineKind = "service"
	LineProduct LineKind = "product"
)

type CheckoutItem struct {
	Type     LineKind `json:"type" validate:"required,oneof=service product"`
	ItemID   string   `json:"itemId" validate:"required"`
	Name     string   `json:"name,omitempty"`
	Price    int64    `json:"price" validate:"gte=0,lte=1000000000000000"`
	Quantity int      `json:"quantity" validate:"gt=0,lte=100000"`
	StaffID  string   `json:"staffId,omitempty"`
}

type CheckoutRequest struct {
	ClientID         string         `json:"clientId" validate:"required"`
	OutletID         string         `json:"outletId"`
	Items            []CheckoutItem `json:"items" validate:"required,min=1,dive"`
	Tax              int64          `json:"tax" validate:"gte=0,lte=1000000000000000"`
	PaymentMethod    string         `json:"paymentMethod" validate:"required"`
	UseLoyaltyPoints bool           `json:"useLoyaltyPoints,omitempty"`
	LoyaltyPoints    int64          `json:"loyaltyPoints,omitempty" validate:"gte=0"`
	PromotionID      string         `json:"promotionId,omitempty"`
	PerformedBy      string         `json:"performedBy,omitempty"`
}

type InvoiceLine struct {
	Kind           LineKind `json:"kind"`
	ItemID         string   `json:"itemId"`
	Name           string   `json:"name,omitempty"`
	UnitPriceCents int64    `json:"unitPrice"`
	Quantity       int      `json:"quantity"`
	LineTotalCents int64    `json:"lineTotal"`
	StaffID        string   `json:"staffId,omitempty"`
}

type PaymentStatus string

const PaymentPaid PaymentStatus = "paid"

type Invoice struct {
	ID                     string        `json:"id" db:"id"`
	TenantID               string        `json:"tenantId" db:"tenant_id"`
	OutletID               string        `json:"outletId" db:"outlet_id"`
	ClientID               string        `json:"clientId" db:"client_id"`
	InvoiceNumber          string        `json:"invoiceNumber" db:"invoice_number"`
	Items                  []InvoiceLine `json:"items" db:"-"`
	SubtotalCents          int64         `json:"subtotal" db:"subtotal_cents"`
	TaxCents               int64         `json:"tax" db:"tax_cents"`
	PromotionDiscountCents int64         `json:"promotionDiscount" db:"promotion_discount_cents"`
	LoyaltyDiscountCents   int64         `json:"loyaltyDiscount" db:"loyalty_discount_cents"`
	DiscountCents          int64         `json:"discount" db:"discount_cents"`
	TotalCents             int64         `json:"total" db:"total_cents"`
	LoyaltyPointsRedeemed  int64         `json:"loyaltyPointsRedeemed" db:"loyalty_points_redeemed"`
	PaymentStatus          PaymentStatus `json:"paymentStatus" db:"payment_status"`
	PaymentMethod          string        `json:"paymentMethod" db:"payment_method"`
	PromotionID            string        `json:"promotionId,omitempty" db:"promotion_id"`
	StaffID                string        `json:"staffId,omitempty" db:"staff_id"`
	CreatedAt              time.Time     `json:"createdAt" db:"created_at"`
}

type CommissionStatus string

const (
	CommissionPending   CommissionStatus = "pending"
	CommissionPaid      CommissionStatus = "paid"
	CommissionCancelled CommissionStatus = "cancelled"
)

type Commission struct {
	ID          string           `json:"id" db:"id"`
	TenantID    string           `json:"tenantId" db:"tenant_id"`
	StaffID     string           `json:"staffId" db:"staff_id"`
	InvoiceID   string           `json:"invoiceId" db:"invoice_id"`
	ServiceID   string           `json:"serviceId" db:"service_id"`
	BaseCents   int64            `json:"baseAmount" db:"base_cents"`
	Rate        decimal.Decimal  `json:"rate" db:"rate"`
	AmountCents int64            `json:"amount" db:"amount_cents"`
	Status      CommissionStatus `json:"status" db:"status"`
	CreatedAt   time.Time        `json:"createdAt" db:"created_at"`
}

type FinanceDirection string

const (
	FinanceIncome  FinanceDirection = "income"
	FinanceExpense FinanceDirection = "expense"
)

type FinanceTransaction struct {
	ID            string           `json:"id" db:"id"`
	TenantID      string           `json:"tenantId" db:"tenant_id"`
	Direction     FinanceDirection `json:"direction" db:"direction"`
	Category      string           `json:"category" db:"category"`
	AmountCents   int64            `json:"amount" db:"amount_cents"`
	PaymentMethod string           `json:"paymentMethod" db:"payment_method"`
	ReferenceID   string           `json:"referenceId,omitempty" db:"reference_id"`
	CreatedAt     time.Time        `json:"createdAt" db:"created_at"`
}

type LoyaltyAccount struct {
	TenantID  string    `json:"tenantId" db:"tenant_id"`
	ClientID  string    `json:"clientId" db:"client_id"`
	Balance   int64     `json:"balance" db:"balance"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type LoyaltyEntryKind string

const (
	LoyaltyRedeem LoyaltyEntryKind = "redeem"
	LoyaltyAccrue LoyaltyEntryKind = "accrue"
)

type LoyaltyEntry struct {
	ID        string           `json:"id" db:"id"`
	TenantID  string           `json:"tenantId" db:"tenant_id"`
	ClientID  string           `json:"clientId" db:"client_id"`
	Kind      LoyaltyEntryKind `json:"kind" db:"kind"`
	Points    int64            `json:"points" db:"points"`
	InvoiceID string           `json:"invoiceId,omitempty" db:"invoice_id"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
}

// CheckoutState is the furthest saga step an attempt reached.
type CheckoutState string

const (
	StateStart                CheckoutState = "start"
	StatePricingComplete      CheckoutState = "pricing_complete"
	StateDiscountsApplied     CheckoutState = "discounts_applied"
	StateInventoryReserved    CheckoutState = "inventory_reserved"
	StateInvoicePersisted     CheckoutState = "invoice_persisted"
	StateSideEffectsPersisted CheckoutState = "side_effects_persisted"
	StateCommitted            CheckoutState = "committed"
	StateFailed               CheckoutState = "failed"
)

type CheckoutResult struct {
	Invoice       Invoice       `json:"invoice"`
	Commissions   []Commission  `json:"commissions"`
	PointsAccrued int64         `json:"pointsAccrued"`
	AccrualQueued bool          `json:"accrualQueued,omitempty"`
	State         CheckoutState `json:"state"`
}

type PrincipalKind string

const (
	PrincipalStaff    PrincipalKind = "staff"
	PrincipalCustomer PrincipalKind = "customer"
)

// Principal is the authenticated caller as resolved by the auth layer.
type Principal struct {
	Kind     PrincipalKind `json:"kind"`
	TenantID string        `json:"tenantId"`
	Subject  string        `json:"subject"`
	Role     string        `json:"role,omitempty"`
}

func (p Principal) IsStaff() bool {
	return p.Kind == PrincipalStaff
}

type UserAccount struct {
	Username  string        `json:"username" db:"username"`
	Password  string        `json:"-" db:"password"`
	Role      string        `json:"role" db:"role"`
	Kind      PrincipalKind `json:"kind" db:"kind"`
	TenantID  string        `json:"tenantId" db:"tenant_id"`
	Active    bool          `json:"active" db:"active"`
	CreatedAt time.Time     `json:"createdAt" db:"created_at"`
}

type AccountCreateRequest struct {
	Username string        `json:"username" validate:"required,min=4,max=64"`
	Password string        `json:"password" validate:"required,min=6"`
	Role     string        `json:"role,omitempty" validate:"omitempty,oneof=admin staff"`
	Kind     PrincipalKind `json:"kind,omitempty" validate:"omitempty,oneof=staff customer"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	TenantID    string `json:"tenant_id"`
	ExpiresAt   string `json:"expires_at"`
}
