package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"salonpos/backend/internal/domain"
)

type pgTx struct {
	tx *sqlx.Tx
}

// LockStaffSchedule takes a transaction-scoped advisory lock on the
// (tenant, staff) pair, so the lock also covers bookings not yet inserted.
func (t *pgTx) LockStaffSchedule(ctx context.Context, tenantID string, staffID string) error {
	_, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, tenantID, staffID)
	return err
}

// LockClient uses its own key space so it never contends with staff
// schedule locks.
func (t *pgTx) LockClient(ctx context.Context, tenantID string, clientID string) error {
	_, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext('client:' || $2))`, tenantID, clientID)
	return err
}

func (t *pgTx) ListActiveBookings(ctx context.Context, tenantID string, staffID string, from time.Time, to time.Time) ([]domain.Booking, error) {
	bookings := make([]domain.Booking, 0, 4)
	err := t.tx.SelectContext(ctx, &bookings, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE tenant_id = $1
		  AND staff_id = $2
		  AND status IN ('pending', 'confirmed')
		  AND start_time < $4
		  AND start_time + make_interval(mins => duration_minutes) > $3
		ORDER BY start_time
	`, tenantID, staffID, from, to)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (t *pgTx) InsertBooking(ctx context.Context, booking domain.Booking) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (:id, :tenant_id, :outlet_id, :client_id, :staff_id, :service_id, :start_time,
			:duration_minutes, :status, :price_cents, :created_at, :updated_at)
	`, booking)
	if isUniqueViolation(err) {
		return fmt.Errorf("booking %s already exists: %w", booking.ID, domain.ErrInvalidRequest)
	}
	return err
}

func (t *pgTx) GetBookingForUpdate(ctx context.Context, tenantID string, bookingID string) (*domain.Booking, error) {
	var booking domain.Booking
	err := t.tx.GetContext(ctx, &booking, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE
	`, tenantID, bookingID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &booking, nil
}

func (t *pgTx) UpdateBookingStatus(ctx context.Context, tenantID string, bookingID string, status domain.BookingStatus, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE bookings SET status = $3, updated_at = $4
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, bookingID, status, at)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *pgTx) GetInventoryForUpdate(ctx context.Context, tenantID string, productID string, outletID string) (*domain.InventoryRecord, error) {
	var record domain.InventoryRecord
	err := t.tx.GetContext(ctx, &record, `
		SELECT `+inventoryColumns+`
		FROM inventory
		WHERE tenant_id = $1 AND product_id = $2 AND outlet_id = $3
		FOR UPDATE
	`, tenantID, productID, outletID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &record, nil
}

func (t *pgTx) InsertInventory(ctx context.Context, record domain.InventoryRecord) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO inventory (`+inventoryColumns+`)
		VALUES (:tenant_id, :product_id, :outlet_id, :quantity, :low_stock_threshold, :updated_at)
	`, record)
	if isUniqueViolation(err) {
		return fmt.Errorf("inventory record %s/%s already exists: %w", record.ProductID, record.OutletID, domain.ErrInvalidRequest)
	}
	return err
}

func (t *pgTx) UpdateInventory(ctx context.Context, record domain.InventoryRecord) error {
	if record.Quantity < 0 {
		return domain.ErrInsufficientStock
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = $4, low_stock_threshold = $5, updated_at = $6
		WHERE tenant_id = $1 AND product_id = $2 AND outlet_id = $3
	`, record.TenantID, record.ProductID, record.OutletID, record.Quantity, record.LowStockThreshold, record.UpdatedAt)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *pgTx) InsertMovement(ctx context.Context, movement domain.InventoryMovement) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO inventory_movements (`+movementColumns+`)
		VALUES (:id, :tenant_id, :product_id, :outlet_id, :movement_type, :quantity_delta, :quantity_before,
			:quantity_after, :reference_type, :reference_id, :actor, :created_at)
	`, movement)
	return err
}

func (t *pgTx) GetPromotionForUpdate(ctx context.Context, tenantID string, promotionID string) (*domain.Promotion, error) {
	var promo domain.Promotion
	err := t.tx.GetContext(ctx, &promo, `
		SELECT `+promotionColumns+`
		FROM promotions
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE
	`, tenantID, promotionID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &promo, nil
}

func (t *pgTx) IncrementPromotionUsage(ctx context.Context, tenantID string, promotionID string) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE promotions SET used_count = used_count + 1
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, promotionID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *pgTx) EnsureLoyaltyAccount(ctx context.Context, tenantID string, clientID string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO loyalty_accounts (tenant_id, client_id, balance, updated_at)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (tenant_id, client_id) DO NOTHING
	`, tenantID, clientID, at)
	return err
}

func (t *pgTx) GetLoyaltyAccountForUpdate(ctx context.Context, tenantID string, clientID string) (*domain.LoyaltyAccount, error) {
	var account domain.LoyaltyAccount
	err := t.tx.GetContext(ctx, &account, `
		SELECT tenant_id, client_id, balance, updated_at
		FROM loyalty_accounts
		WHERE tenant_id = $1 AND client_id = $2
		FOR UPDATE
	`, tenantID, clientID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &account, nil
}

func (t *pgTx) SaveLoyaltyAccount(ctx context.Context, account domain.LoyaltyAccount) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO loyalty_accounts (tenant_id, client_id, balance, updated_at)
		VALUES (:tenant_id, :client_id, :balance, :updated_at)
		ON CONFLICT (tenant_id, client_id)
		DO UPDATE SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at
	`, account)
	return err
}

func (t *pgTx) InsertLoyaltyEntry(ctx context.Context, entry domain.LoyaltyEntry) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO loyalty_entries (id, tenant_id, client_id, kind, points, invoice_id, created_at)
		VALUES (:id, :tenant_id, :client_id, :kind, :points, :invoice_id, :created_at)
	`, entry)
	if isConstraint(err, "loyalty_entries_accrual_once") {
		return fmt.Errorf("accrual for invoice %s already recorded: %w", entry.InvoiceID, domain.ErrInvalidRequest)
	}
	return err
}

func (t *pgTx) HasAccrual(ctx context.Context, tenantID string, invoiceID string) (bool, error) {
	var exists bool
	err := t.tx.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM loyalty_entries
			WHERE tenant_id = $1 AND invoice_id = $2 AND kind = 'accrue'
		)
	`, tenantID, invoiceID)
	return exists, err
}

func (t *pgTx) CountClientInvoices(ctx context.Context, tenantID string, clientID string) (int, error) {
	var count int
	err := t.tx.GetContext(ctx, &count, `SELECT count(*) FROM invoices WHERE tenant_id = $1 AND client_id = $2`, tenantID, clientID)
	return count, err
}

// NextInvoiceSequence bumps the per-tenant, per-day counter. The upsert
// row-locks the counter until commit, so concurrent checkouts queue here.
func (t *pgTx) NextInvoiceSequence(ctx context.Context, tenantID string, day string) (int64, error) {
	var seq int64
	err := t.tx.GetContext(ctx, &seq, `
		INSERT INTO invoice_sequences (tenant_id, day, last_seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, day)
		DO UPDATE SET last_seq = invoice_sequences.last_seq + 1
		RETURNING last_seq
	`, tenantID, day)
	return seq, err
}

func (t *pgTx) InsertInvoice(ctx context.Context, invoice domain.Invoice) error {
	items := invoice.Items
	if items == nil {
		items = []domain.InvoiceLine{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}

	_, err = t.tx.NamedExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (:id, :tenant_id, :outlet_id, :client_id, :invoice_number, :items, :subtotal_cents, :tax_cents,
			:promotion_discount_cents, :loyalty_discount_cents, :discount_cents, :total_cents, :loyalty_points_redeemed,
			:payment_status, :payment_method, :promotion_id, :staff_id, :created_at)
	`, invoiceRow{Invoice: invoice, ItemsJSON: raw})
	if isConstraint(err, "invoices_tenant_number_key") {
		return fmt.Errorf("%w: %s", domain.ErrInvoiceNumberCollision, invoice.InvoiceNumber)
	}
	return err
}

func (t *pgTx) InsertCommission(ctx context.Context, commission domain.Commission) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO commissions (`+commissionColumns+`)
		VALUES (:id, :tenant_id, :staff_id, :invoice_id, :service_id, :base_cents, :rate, :amount_cents, :status, :created_at)
	`, commission)
	return err
}

func (t *pgTx) InsertFinanceTransaction(ctx context.Context, entry domain.FinanceTransaction) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO finance_transactions (`+financeColumns+`)
		VALUES (:id, :tenant_id, :direction, :category, :amount_cents, :payment_method, :reference_id, :created_at)
	`, entry)
	return err
}
