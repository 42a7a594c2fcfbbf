package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
)

const (
	DemoTenantID = "salon-demo"
	DemoOutletID = "outlet-main"
)

// Store keeps every tenant's data in process. Units of work are serialized
// by txSem and hold mu exclusively until they commit or roll back.
type Store struct {
	txSem chan struct{}
	mu    sync.RWMutex

	bookings       map[string]domain.Booking
	inventory      map[string]domain.InventoryRecord
	movements      []domain.InventoryMovement
	promotions     map[string]domain.Promotion
	loyalty        map[string]domain.LoyaltyAccount
	loyaltyEntries []domain.LoyaltyEntry
	invoices       map[string]domain.Invoice
	invoiceNumbers map[string]string
	invoiceSeq     map[string]int64
	commissions    []domain.Commission
	finance        []domain.FinanceTransaction
	users          map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		txSem:          make(chan struct{}, 1),
		bookings:       make(map[string]domain.Booking),
		inventory:      make(map[string]domain.InventoryRecord),
		movements:      make([]domain.InventoryMovement, 0, 64),
		promotions:     make(map[string]domain.Promotion),
		loyalty:        make(map[string]domain.LoyaltyAccount),
		loyaltyEntries: make([]domain.LoyaltyEntry, 0, 64),
		invoices:       make(map[string]domain.Invoice),
		invoiceNumbers: make(map[string]string),
		invoiceSeq:     make(map[string]int64),
		commissions:    make([]domain.Commission, 0, 64),
		finance:        make([]domain.FinanceTransaction, 0, 64),
		users:          make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with a demo tenant, stock, a promotion and
// login accounts for local development.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, p := range []struct {
		id        string
		qty       int
		threshold int
	}{
		{"prod-shampoo", 24, 5},
		{"prod-conditioner", 18, 5},
		{"prod-hair-serum", 10, 3},
		{"prod-nail-polish", 40, 8},
	} {
		rec := domain.InventoryRecord{
			TenantID:          DemoTenantID,
			ProductID:         p.id,
			OutletID:          DemoOutletID,
			Quantity:          p.qty,
			LowStockThreshold: p.threshold,
			UpdatedAt:         now,
		}
		s.inventory[inventoryKey(rec.TenantID, rec.ProductID, rec.OutletID)] = rec
	}

	s.promotions["promo-welcome"] = domain.Promotion{
		ID:               "promo-welcome",
		TenantID:         DemoTenantID,
		Name:             "Welcome 10%",
		Code:             "WELCOME10",
		DiscountType:     domain.DiscountPercentage,
		Value:            decimal.NewFromInt(10),
		MaxDiscountCents: 5000,
		StartDate:        now.AddDate(0, -1, 0),
		EndDate:          now.AddDate(1, 0, 0),
		Target:           domain.TargetNewCustomers,
		Active:           true,
		CreatedAt:        now,
	}

	s.loyalty[loyaltyKey(DemoTenantID, "client-demo")] = domain.LoyaltyAccount{
		TenantID:  DemoTenantID,
		ClientID:  "client-demo",
		Balance:   250,
		UpdatedAt: now,
	}

	s.users = seedUsers(now)
	return s
}

// seedUsers reads SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD, falling back
// to dev defaults with a warning.
func seedUsers(now time.Time) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		zap.L().Warn("memory store using default dev credentials",
			zap.String("hint", "set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override"))
	}

	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"stylist", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			zap.L().Fatal("failed to hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Kind:      domain.PrincipalStaff,
			TenantID:  DemoTenantID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// SeedInventory sets a stock record directly. Intended for tests and
// fixtures; production stock changes go through the inventory ledger.
func (s *Store) SeedInventory(record domain.InventoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	s.inventory[inventoryKey(record.TenantID, record.ProductID, record.OutletID)] = record
}

func (s *Store) SeedLoyalty(account domain.LoyaltyAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loyalty[loyaltyKey(account.TenantID, account.ClientID)] = account
}

func (s *Store) SeedBooking(booking domain.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[booking.ID] = booking
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	select {
	case s.txSem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrTransactionAborted, ctx.Err())
	}
	defer func() { <-s.txSem }()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	err := fn(tx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		tx.rollback()
		if isContextErr(err) && !errors.Is(err, domain.ErrTransactionAborted) {
			return fmt.Errorf("%w: %w", domain.ErrTransactionAborted, err)
		}
		return err
	}
	return nil
}

func (s *Store) GetBooking(_ context.Context, tenantID string, bookingID string) (*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	booking, ok := s.bookings[bookingID]
	if !ok || booking.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return &booking, nil
}

func (s *Store) GetInventory(_ context.Context, tenantID string, productID string, outletID string) (*domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.inventory[inventoryKey(tenantID, productID, outletID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) ListMovements(_ context.Context, tenantID string, productID string, outletID string, limit int) ([]domain.InventoryMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryMovement, 0, 16)
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if m.TenantID != tenantID {
			continue
		}
		if productID != "" && m.ProductID != productID {
			continue
		}
		if outletID != "" && m.OutletID != outletID {
			continue
		}
		result = append(result, m)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreatePromotion(_ context.Context, promotion domain.Promotion) (*domain.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if promotion.ID == "" || promotion.TenantID == "" {
		return nil, domain.ErrInvalidRequest
	}
	if _, exists := s.promotions[promotion.ID]; exists {
		return nil, domain.ErrInvalidRequest
	}
	s.promotions[promotion.ID] = promotion
	created := promotion
	return &created, nil
}

func (s *Store) GetPromotion(_ context.Context, tenantID string, promotionID string) (*domain.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promo, ok := s.promotions[promotionID]
	if !ok || promo.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return &promo, nil
}

func (s *Store) GetLoyaltyAccount(_ context.Context, tenantID string, clientID string) (*domain.LoyaltyAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.loyalty[loyaltyKey(tenantID, clientID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &acct, nil
}

func (s *Store) GetInvoice(_ context.Context, tenantID string, invoiceID string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[invoiceID]
	if !ok || inv.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	copied := cloneInvoice(inv)
	return &copied, nil
}

func (s *Store) ListInvoicesByClient(_ context.Context, tenantID string, clientID string) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Invoice, 0, 8)
	for _, inv := range s.invoices {
		if inv.TenantID == tenantID && inv.ClientID == clientID {
			result = append(result, cloneInvoice(inv))
		}
	}
	slices.SortFunc(result, func(a, b domain.Invoice) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (s *Store) ListCommissionsByInvoice(_ context.Context, tenantID string, invoiceID string) ([]domain.Commission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Commission, 0, 4)
	for _, c := range s.commissions {
		if c.TenantID == tenantID && c.InvoiceID == invoiceID {
			result = append(result, c)
		}
	}
	return result, nil
}

func (s *Store) ListFinanceTransactions(_ context.Context, tenantID string, limit int) ([]domain.FinanceTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.FinanceTransaction, 0, 16)
	for i := len(s.finance) - 1; i >= 0; i-- {
		if s.finance[i].TenantID != tenantID {
			continue
		}
		result = append(result, s.finance[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" || user.TenantID == "" {
		return domain.ErrInvalidRequest
	}
	if _, exists := s.users[username]; exists {
		return domain.ErrInvalidRequest
	}
	user.Username = username
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
	s.users[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	user, ok := s.users[username]
	if !ok {
		return domain.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

func inventoryKey(tenantID, productID, outletID string) string {
	return tenantID + "|" + productID + "|" + outletID
}

func loyaltyKey(tenantID, clientID string) string {
	return tenantID + "|" + clientID
}

func cloneInvoice(src domain.Invoice) domain.Invoice {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return dst
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
