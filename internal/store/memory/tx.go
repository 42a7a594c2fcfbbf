package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"salonpos/backend/internal/domain"
)

// memTx records an undo step for every write so a failed unit of work can
// be unwound in reverse order. The owning Store's mutex is held throughout.
type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) LockStaffSchedule(ctx context.Context, _ string, _ string) error {
	// The whole store is already exclusive for this unit of work.
	return ctx.Err()
}

func (t *memTx) LockClient(ctx context.Context, _ string, _ string) error {
	return ctx.Err()
}

func (t *memTx) ListActiveBookings(ctx context.Context, tenantID string, staffID string, from time.Time, to time.Time) ([]domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make([]domain.Booking, 0, 4)
	for _, b := range t.s.bookings {
		if b.TenantID != tenantID || b.StaffID != staffID || !b.Status.Active() {
			continue
		}
		if b.Overlaps(from, to) {
			result = append(result, b)
		}
	}
	slices.SortFunc(result, func(a, b domain.Booking) int {
		return a.StartTime.Compare(b.StartTime)
	})
	return result, nil
}

func (t *memTx) InsertBooking(ctx context.Context, booking domain.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, exists := t.s.bookings[booking.ID]; exists {
		return fmt.Errorf("booking %s already exists: %w", booking.ID, domain.ErrInvalidRequest)
	}
	t.s.bookings[booking.ID] = booking
	t.undo = append(t.undo, func() { delete(t.s.bookings, booking.ID) })
	return nil
}

func (t *memTx) GetBookingForUpdate(ctx context.Context, tenantID string, bookingID string) (*domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	booking, ok := t.s.bookings[bookingID]
	if !ok || booking.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return &booking, nil
}

func (t *memTx) UpdateBookingStatus(ctx context.Context, tenantID string, bookingID string, status domain.BookingStatus, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prev, ok := t.s.bookings[bookingID]
	if !ok || prev.TenantID != tenantID {
		return domain.ErrNotFound
	}
	next := prev
	next.Status = status
	next.UpdatedAt = at
	t.s.bookings[bookingID] = next
	t.undo = append(t.undo, func() { t.s.bookings[bookingID] = prev })
	return nil
}

func (t *memTx) GetInventoryForUpdate(ctx context.Context, tenantID string, productID string, outletID string) (*domain.InventoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := t.s.inventory[inventoryKey(tenantID, productID, outletID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (t *memTx) InsertInventory(ctx context.Context, record domain.InventoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := inventoryKey(record.TenantID, record.ProductID, record.OutletID)
	if _, exists := t.s.inventory[key]; exists {
		return fmt.Errorf("inventory record %s already exists: %w", key, domain.ErrInvalidRequest)
	}
	t.s.inventory[key] = record
	t.undo = append(t.undo, func() { delete(t.s.inventory, key) })
	return nil
}

func (t *memTx) UpdateInventory(ctx context.Context, record domain.InventoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.Quantity < 0 {
		return domain.ErrInsufficientStock
	}
	key := inventoryKey(record.TenantID, record.ProductID, record.OutletID)
	prev, ok := t.s.inventory[key]
	if !ok {
		return domain.ErrNotFound
	}
	t.s.inventory[key] = record
	t.undo = append(t.undo, func() { t.s.inventory[key] = prev })
	return nil
}

func (t *memTx) InsertMovement(ctx context.Context, movement domain.InventoryMovement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := len(t.s.movements)
	t.s.movements = append(t.s.movements, movement)
	t.undo = append(t.undo, func() { t.s.movements = t.s.movements[:n] })
	return nil
}

func (t *memTx) GetPromotionForUpdate(ctx context.Context, tenantID string, promotionID string) (*domain.Promotion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	promo, ok := t.s.promotions[promotionID]
	if !ok || promo.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return &promo, nil
}

func (t *memTx) IncrementPromotionUsage(ctx context.Context, tenantID string, promotionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prev, ok := t.s.promotions[promotionID]
	if !ok || prev.TenantID != tenantID {
		return domain.ErrNotFound
	}
	next := prev
	next.UsedCount++
	t.s.promotions[promotionID] = next
	t.undo = append(t.undo, func() { t.s.promotions[promotionID] = prev })
	return nil
}

func (t *memTx) EnsureLoyaltyAccount(ctx context.Context, tenantID string, clientID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := loyaltyKey(tenantID, clientID)
	if _, ok := t.s.loyalty[key]; ok {
		return nil
	}
	t.s.loyalty[key] = domain.LoyaltyAccount{TenantID: tenantID, ClientID: clientID, UpdatedAt: at}
	t.undo = append(t.undo, func() { delete(t.s.loyalty, key) })
	return nil
}

func (t *memTx) GetLoyaltyAccountForUpdate(ctx context.Context, tenantID string, clientID string) (*domain.LoyaltyAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acct, ok := t.s.loyalty[loyaltyKey(tenantID, clientID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &acct, nil
}

func (t *memTx) SaveLoyaltyAccount(ctx context.Context, account domain.LoyaltyAccount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := loyaltyKey(account.TenantID, account.ClientID)
	prev, existed := t.s.loyalty[key]
	t.s.loyalty[key] = account
	t.undo = append(t.undo, func() {
		if existed {
			t.s.loyalty[key] = prev
			return
		}
		delete(t.s.loyalty, key)
	})
	return nil
}

func (t *memTx) InsertLoyaltyEntry(ctx context.Context, entry domain.LoyaltyEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.Kind == domain.LoyaltyAccrue && t.hasAccrual(entry.TenantID, entry.InvoiceID) {
		return fmt.Errorf("accrual for invoice %s already recorded: %w", entry.InvoiceID, domain.ErrInvalidRequest)
	}
	n := len(t.s.loyaltyEntries)
	t.s.loyaltyEntries = append(t.s.loyaltyEntries, entry)
	t.undo = append(t.undo, func() { t.s.loyaltyEntries = t.s.loyaltyEntries[:n] })
	return nil
}

func (t *memTx) HasAccrual(ctx context.Context, tenantID string, invoiceID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return t.hasAccrual(tenantID, invoiceID), nil
}

func (t *memTx) hasAccrual(tenantID string, invoiceID string) bool {
	for _, e := range t.s.loyaltyEntries {
		if e.Kind == domain.LoyaltyAccrue && e.TenantID == tenantID && e.InvoiceID == invoiceID {
			return true
		}
	}
	return false
}

func (t *memTx) CountClientInvoices(ctx context.Context, tenantID string, clientID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := 0
	for _, inv := range t.s.invoices {
		if inv.TenantID == tenantID && inv.ClientID == clientID {
			count++
		}
	}
	return count, nil
}

func (t *memTx) NextInvoiceSequence(ctx context.Context, tenantID string, day string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := tenantID + "|" + day
	prev := t.s.invoiceSeq[key]
	t.s.invoiceSeq[key] = prev + 1
	t.undo = append(t.undo, func() { t.s.invoiceSeq[key] = prev })
	return prev + 1, nil
}

func (t *memTx) InsertInvoice(ctx context.Context, invoice domain.Invoice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	numberKey := invoice.TenantID + "|" + invoice.InvoiceNumber
	if _, taken := t.s.invoiceNumbers[numberKey]; taken {
		return fmt.Errorf("%w: %s", domain.ErrInvoiceNumberCollision, invoice.InvoiceNumber)
	}
	t.s.invoices[invoice.ID] = cloneInvoice(invoice)
	t.s.invoiceNumbers[numberKey] = invoice.ID
	t.undo = append(t.undo, func() {
		delete(t.s.invoices, invoice.ID)
		delete(t.s.invoiceNumbers, numberKey)
	})
	return nil
}

func (t *memTx) InsertCommission(ctx context.Context, commission domain.Commission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := len(t.s.commissions)
	t.s.commissions = append(t.s.commissions, commission)
	t.undo = append(t.undo, func() { t.s.commissions = t.s.commissions[:n] })
	return nil
}

func (t *memTx) InsertFinanceTransaction(ctx context.Context, entry domain.FinanceTransaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := len(t.s.finance)
	t.s.finance = append(t.s.finance, entry)
	t.undo = append(t.undo, func() { t.s.finance = t.s.finance[:n] })
	return nil
}
