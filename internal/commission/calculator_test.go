package commission

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonpos/backend/internal/domain"
)

func serviceLine(staff string, total int64) domain.InvoiceLine {
	return domain.InvoiceLine{Kind: domain.LineService, ItemID: "svc-color", UnitPriceCents: total, Quantity: 1, LineTotalCents: total, StaffID: staff}
}

func TestComputeDefaultTenPercent(t *testing.T) {
	calc := NewCalculator(nil)

	c := calc.Compute("tenant-a", serviceLine("staff-1", 45_000), time.Now())
	require.NotNil(t, c)
	assert.Equal(t, int64(4_500), c.AmountCents)
	assert.Equal(t, int64(45_000), c.BaseCents)
	assert.True(t, c.Rate.Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, domain.CommissionPending, c.Status)
}

func TestComputeSkipsProductsAndUnassigned(t *testing.T) {
	calc := NewCalculator(nil)

	assert.Nil(t, calc.Compute("tenant-a", serviceLine("", 10_000), time.Now()))
	product := domain.InvoiceLine{Kind: domain.LineProduct, ItemID: "prod-1", LineTotalCents: 10_000, StaffID: "staff-1"}
	assert.Nil(t, calc.Compute("tenant-a", product, time.Now()))
}

func TestStaticRatesOverrides(t *testing.T) {
	rates := NewStaticRates(decimal.Zero)
	rates.ByService = map[string]decimal.Decimal{"svc-color": decimal.RequireFromString("0.15")}
	rates.ByStaff = map[string]decimal.Decimal{"senior": decimal.RequireFromString("0.20")}
	rates.ByStaffSvc = map[string]decimal.Decimal{"senior|svc-color": decimal.RequireFromString("0.25")}
	calc := NewCalculator(rates)

	assert.Equal(t, int64(250), calc.Compute("t", serviceLine("senior", 1_000), time.Now()).AmountCents)
	assert.Equal(t, int64(150), calc.Compute("t", serviceLine("junior", 1_000), time.Now()).AmountCents)

	cut := serviceLine("senior", 1_000)
	cut.ItemID = "svc-cut"
	assert.Equal(t, int64(200), calc.Compute("t", cut, time.Now()).AmountCents)

	cut.StaffID = "junior"
	assert.Equal(t, int64(100), calc.Compute("t", cut, time.Now()).AmountCents)
}

func TestComputeRoundsHalfUp(t *testing.T) {
	calc := NewCalculator(nil)
	assert.Equal(t, int64(1), calc.Compute("t", serviceLine("s", 5), time.Now()).AmountCents)
	assert.Equal(t, int64(0), calc.Compute("t", serviceLine("s", 4), time.Now()).AmountCents)
}
