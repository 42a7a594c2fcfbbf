package store

import (
	"context"
	"time"

	"salonpos/backend/internal/domain"
)

// Tx is one unit of work. Every mutation of bookings, stock, promotions,
// loyalty balances, invoices, commissions and the finance ledger goes
// through a Tx so callers can compose them atomically.
type Tx interface {
	// LockStaffSchedule serializes booking writes for one staff member
	// until the unit of work ends.
	LockStaffSchedule(ctx context.Context, tenantID string, staffID string) error
	ListActiveBookings(ctx context.Context, tenantID string, staffID string, from time.Time, to time.Time) ([]domain.Booking, error)
	InsertBooking(ctx context.Context, booking domain.Booking) error
	GetBookingForUpdate(ctx context.Context, tenantID string, bookingID string) (*domain.Booking, error)
	UpdateBookingStatus(ctx context.Context, tenantID string, bookingID string, status domain.BookingStatus, at time.Time) error

	GetInventoryForUpdate(ctx context.Context, tenantID string, productID string, outletID string) (*domain.InventoryRecord, error)
	InsertInventory(ctx context.Context, record domain.InventoryRecord) error
	UpdateInventory(ctx context.Context, record domain.InventoryRecord) error
	InsertMovement(ctx context.Context, movement domain.InventoryMovement) error

	GetPromotionForUpdate(ctx context.Context, tenantID string, promotionID string) (*domain.Promotion, error)
	IncrementPromotionUsage(ctx context.Context, tenantID string, promotionID string) error

	// EnsureLoyaltyAccount creates an empty account when the client has
	// none, so GetLoyaltyAccountForUpdate always has a row to lock.
	EnsureLoyaltyAccount(ctx context.Context, tenantID string, clientID string, at time.Time) error
	GetLoyaltyAccountForUpdate(ctx context.Context, tenantID string, clientID string) (*domain.LoyaltyAccount, error)
	SaveLoyaltyAccount(ctx context.Context, account domain.LoyaltyAccount) error
	InsertLoyaltyEntry(ctx context.Context, entry domain.LoyaltyEntry) error
	HasAccrual(ctx context.Context, tenantID string, invoiceID string) (bool, error)

	// LockClient serializes first-visit checks for one client until the
	// unit of work ends.
	LockClient(ctx context.Context, tenantID string, clientID string) error
	CountClientInvoices(ctx context.Context, tenantID string, clientID string) (int, error)
	NextInvoiceSequence(ctx context.Context, tenantID string, day string) (int64, error)
	InsertInvoice(ctx context.Context, invoice domain.Invoice) error
	InsertCommission(ctx context.Context, commission domain.Commission) error
	InsertFinanceTransaction(ctx context.Context, entry domain.FinanceTransaction) error
}

type Store interface {
	// WithinTx runs fn in a unit of work. Any error from fn, or a context
	// that ends before commit, discards every write fn made.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetBooking(ctx context.Context, tenantID string, bookingID string) (*domain.Booking, error)
	GetInventory(ctx context.Context, tenantID string, productID string, outletID string) (*domain.InventoryRecord, error)
	ListMovements(ctx context.Context, tenantID string, productID string, outletID string, limit int) ([]domain.InventoryMovement, error)
	CreatePromotion(ctx context.Context, promotion domain.Promotion) (*domain.Promotion, error)
	GetPromotion(ctx context.Context, tenantID string, promotionID string) (*domain.Promotion, error)
	GetLoyaltyAccount(ctx context.Context, tenantID string, clientID string) (*domain.LoyaltyAccount, error)
	GetInvoice(ctx context.Context, tenantID string, invoiceID string) (*domain.Invoice, error)
	ListInvoicesByClient(ctx context.Context, tenantID string, clientID string) ([]domain.Invoice, error)
	ListCommissionsByInvoice(ctx context.Context, tenantID string, invoiceID string) ([]domain.Commission, error)
	ListFinanceTransactions(ctx context.Context, tenantID string, limit int) ([]domain.FinanceTransaction, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
