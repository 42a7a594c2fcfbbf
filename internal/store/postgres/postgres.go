package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sqlx.DB
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*pgTx)(nil)
)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates any missing tables and indexes. Every statement is
// idempotent so it runs on each start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// WithinTx runs fn at READ COMMITTED. Row locks taken by the Tx methods
// (FOR UPDATE and advisory locks) provide the isolation each write needs.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return abortedOr(ctx, err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return abortedOr(ctx, err)
	}
	if err := ctx.Err(); err != nil {
		return abortedOr(ctx, err)
	}
	if err := sqlTx.Commit(); err != nil {
		return abortedOr(ctx, err)
	}
	return nil
}

func (s *Store) GetBooking(ctx context.Context, tenantID string, bookingID string) (*domain.Booking, error) {
	var booking domain.Booking
	err := s.db.GetContext(ctx, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE tenant_id = $1 AND id = $2`, tenantID, bookingID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &booking, nil
}

func (s *Store) GetInventory(ctx context.Context, tenantID string, productID string, outletID string) (*domain.InventoryRecord, error) {
	var record domain.InventoryRecord
	err := s.db.GetContext(ctx, &record, `
		SELECT `+inventoryColumns+`
		FROM inventory
		WHERE tenant_id = $1 AND product_id = $2 AND outlet_id = $3
	`, tenantID, productID, outletID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &record, nil
}

func (s *Store) ListMovements(ctx context.Context, tenantID string, productID string, outletID string, limit int) ([]domain.InventoryMovement, error) {
	conditions := []string{"tenant_id = ?"}
	args := []any{tenantID}
	if productID != "" {
		conditions = append(conditions, "product_id = ?")
		args = append(args, productID)
	}
	if outletID != "" {
		conditions = append(conditions, "outlet_id = ?")
		args = append(args, outletID)
	}

	query := `SELECT ` + movementColumns + ` FROM inventory_movements WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	movements := make([]domain.InventoryMovement, 0, 16)
	if err := s.db.SelectContext(ctx, &movements, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) CreatePromotion(ctx context.Context, promotion domain.Promotion) (*domain.Promotion, error) {
	if promotion.ID == "" || promotion.TenantID == "" {
		return nil, domain.ErrInvalidRequest
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO promotions (`+promotionColumns+`)
		VALUES (:id, :tenant_id, :name, :code, :discount_type, :value, :max_discount_cents, :min_bill_cents,
			:start_date, :end_date, :daily_start_time, :daily_end_time, :usage_limit, :used_count, :target, :active, :created_at)
	`, promotion)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrInvalidRequest
		}
		return nil, err
	}
	created := promotion
	return &created, nil
}

func (s *Store) GetPromotion(ctx context.Context, tenantID string, promotionID string) (*domain.Promotion, error) {
	var promo domain.Promotion
	err := s.db.GetContext(ctx, &promo, `SELECT `+promotionColumns+` FROM promotions WHERE tenant_id = $1 AND id = $2`, tenantID, promotionID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &promo, nil
}

func (s *Store) GetLoyaltyAccount(ctx context.Context, tenantID string, clientID string) (*domain.LoyaltyAccount, error) {
	var account domain.LoyaltyAccount
	err := s.db.GetContext(ctx, &account, `
		SELECT tenant_id, client_id, balance, updated_at
		FROM loyalty_accounts
		WHERE tenant_id = $1 AND client_id = $2
	`, tenantID, clientID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &account, nil
}

func (s *Store) GetInvoice(ctx context.Context, tenantID string, invoiceID string) (*domain.Invoice, error) {
	var row invoiceRow
	err := s.db.GetContext(ctx, &row, `SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id = $1 AND id = $2`, tenantID, invoiceID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return row.invoice()
}

func (s *Store) ListInvoicesByClient(ctx context.Context, tenantID string, clientID string) ([]domain.Invoice, error) {
	var rows []invoiceRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE tenant_id = $1 AND client_id = $2
		ORDER BY created_at
	`, tenantID, clientID)
	if err != nil {
		return nil, err
	}

	invoices := make([]domain.Invoice, 0, len(rows))
	for _, row := range rows {
		inv, err := row.invoice()
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, nil
}

func (s *Store) ListCommissionsByInvoice(ctx context.Context, tenantID string, invoiceID string) ([]domain.Commission, error) {
	commissions := make([]domain.Commission, 0, 4)
	err := s.db.SelectContext(ctx, &commissions, `
		SELECT `+commissionColumns+`
		FROM commissions
		WHERE tenant_id = $1 AND invoice_id = $2
		ORDER BY created_at, id
	`, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	return commissions, nil
}

func (s *Store) ListFinanceTransactions(ctx context.Context, tenantID string, limit int) ([]domain.FinanceTransaction, error) {
	query := `SELECT ` + financeColumns + ` FROM finance_transactions WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{tenantID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	entries := make([]domain.FinanceTransaction, 0, 16)
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" || user.TenantID == "" {
		return domain.ErrInvalidRequest
	}
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.Kind == "" {
		user.Kind = domain.PrincipalStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (username, password, role, kind, tenant_id, active, created_at)
		VALUES (:username, :password, :role, :kind, :tenant_id, :active, :created_at)
	`, user)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrInvalidRequest
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	users := make([]domain.UserAccount, 0, 8)
	err := s.db.SelectContext(ctx, &users, `
		SELECT username, password, role, kind, tenant_id, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = $2 WHERE username = $1`,
		strings.ToLower(strings.TrimSpace(username)), password)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

const (
	bookingColumns    = `id, tenant_id, outlet_id, client_id, staff_id, service_id, start_time, duration_minutes, status, price_cents, created_at, updated_at`
	inventoryColumns  = `tenant_id, product_id, outlet_id, quantity, low_stock_threshold, updated_at`
	movementColumns   = `id, tenant_id, product_id, outlet_id, movement_type, quantity_delta, quantity_before, quantity_after, reference_type, reference_id, actor, created_at`
	promotionColumns  = `id, tenant_id, name, code, discount_type, value, max_discount_cents, min_bill_cents, start_date, end_date, daily_start_time, daily_end_time, usage_limit, used_count, target, active, created_at`
	commissionColumns = `id, tenant_id, staff_id, invoice_id, service_id, base_cents, rate, amount_cents, status, created_at`
	financeColumns    = `id, tenant_id, direction, category, amount_cents, payment_method, reference_id, created_at`
	invoiceColumns    = `id, tenant_id, outlet_id, client_id, invoice_number, items, subtotal_cents, tax_cents,
		promotion_discount_cents, loyalty_discount_cents, discount_cents, total_cents, loyalty_points_redeemed,
		payment_status, payment_method, promotion_id, staff_id, created_at`
)

// invoiceRow carries the JSONB line items next to the flat invoice columns.
type invoiceRow struct {
	domain.Invoice
	ItemsJSON []byte `db:"items"`
}

func (r invoiceRow) invoice() (*domain.Invoice, error) {
	inv := r.Invoice
	inv.Items = nil
	if len(r.ItemsJSON) > 0 {
		if err := json.Unmarshal(r.ItemsJSON, &inv.Items); err != nil {
			return nil, fmt.Errorf("decode invoice %s items: %w", inv.ID, err)
		}
	}
	return &inv, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// abortedOr reports lock timeouts, serialization failures, deadlocks and
// context ends as ErrTransactionAborted so callers can retry the whole unit.
func abortedOr(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrTransactionAborted) {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTransactionAborted, err)
	}
	switch pgCode(err) {
	case "40001", "40P01", "55P03", "57014":
		return fmt.Errorf("%w: %w", domain.ErrTransactionAborted, err)
	}
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isConstraint(err error, name string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.ConstraintName == name
}
