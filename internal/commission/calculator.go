package commission

import (
	"time"

	"github.com/shopspring/decimal"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/xid"
)

// DefaultRate is the flat share of a service line paid to the stylist.
var DefaultRate = decimal.RequireFromString("0.10")

type RateProvider interface {
	RateFor(serviceID string, staffID string) decimal.Decimal
}

// StaticRates resolves a staff+service override first, then a staff-wide
// override, then a service-wide override, then the default.
type StaticRates struct {
	Default    decimal.Decimal
	ByService  map[string]decimal.Decimal
	ByStaff    map[string]decimal.Decimal
	ByStaffSvc map[string]decimal.Decimal
}

func NewStaticRates(defaultRate decimal.Decimal) StaticRates {
	if !defaultRate.IsPositive() {
		defaultRate = DefaultRate
	}
	return StaticRates{Default: defaultRate}
}

func (r StaticRates) RateFor(serviceID string, staffID string) decimal.Decimal {
	if rate, ok := r.ByStaffSvc[staffID+"|"+serviceID]; ok {
		return rate
	}
	if rate, ok := r.ByStaff[staffID]; ok {
		return rate
	}
	if rate, ok := r.ByService[serviceID]; ok {
		return rate
	}
	if r.Default.IsZero() {
		return DefaultRate
	}
	return r.Default
}

type Calculator struct {
	rates RateProvider
}

func NewCalculator(rates RateProvider) *Calculator {
	if rates == nil {
		rates = NewStaticRates(DefaultRate)
	}
	return &Calculator{rates: rates}
}

// Compute returns nil for product lines and for service lines nobody was
// assigned to. The invoice id is filled in once the invoice exists.
func (c *Calculator) Compute(tenantID string, line domain.InvoiceLine, at time.Time) *domain.Commission {
	if line.Kind != domain.LineService || line.StaffID == "" {
		return nil
	}
	rate := c.rates.RateFor(line.ItemID, line.StaffID)
	amount := decimal.NewFromInt(line.LineTotalCents).Mul(rate).Round(0).IntPart()

	return &domain.Commission{
		ID:          xid.New("com"),
		TenantID:    tenantID,
		StaffID:     line.StaffID,
		ServiceID:   line.ItemID,
		BaseCents:   line.LineTotalCents,
		Rate:        rate,
		AmountCents: amount,
		Status:      domain.CommissionPending,
		CreatedAt:   at,
	}
}
