package loyalty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

const (
	DefaultPointValueCents      = 100
	DefaultAccrualCentsPerPoint = 10_000
)

// Ledger owns client point balances. Redeem runs inside the checkout's unit
// of work; Accrue runs after the sale commits in a unit of work of its own.
type Ledger struct {
	store                store.Store
	pointValueCents      int64
	accrualCentsPerPoint int64
	now                  func() time.Time
}

func NewLedger(st store.Store, pointValueCents int64, accrualCentsPerPoint int64) *Ledger {
	if pointValueCents <= 0 {
		pointValueCents = DefaultPointValueCents
	}
	if accrualCentsPerPoint <= 0 {
		accrualCentsPerPoint = DefaultAccrualCentsPerPoint
	}
	return &Ledger{
		store:                st,
		pointValueCents:      pointValueCents,
		accrualCentsPerPoint: accrualCentsPerPoint,
		now:                  func() time.Time { return time.Now().UTC() },
	}
}

func (l *Ledger) PointValueCents() int64 {
	return l.pointValueCents
}

// PointsCovering is the largest whole number of points whose value does not
// exceed cents.
func (l *Ledger) PointsCovering(cents int64) int64 {
	if cents <= 0 {
		return 0
	}
	return cents / l.pointValueCents
}

func (l *Ledger) PointsForBill(billCents int64) int64 {
	if billCents <= 0 {
		return 0
	}
	return billCents / l.accrualCentsPerPoint
}

// BalanceTx reads the balance under a row lock. A client without an account
// has a zero balance.
func (l *Ledger) BalanceTx(ctx context.Context, tx store.Tx, tenantID string, clientID string) (int64, error) {
	if tx == nil {
		return 0, domain.ErrNoActiveTransaction
	}
	acct, err := tx.GetLoyaltyAccountForUpdate(ctx, tenantID, clientID)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Redeem converts points into a discount and deducts them from the balance.
func (l *Ledger) Redeem(ctx context.Context, tx store.Tx, tenantID string, clientID string, points int64, invoiceID string) (int64, error) {
	if tx == nil {
		return 0, domain.ErrNoActiveTransaction
	}
	if points <= 0 {
		return 0, nil
	}

	acct, err := tx.GetLoyaltyAccountForUpdate(ctx, tenantID, clientID)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("%w: balance 0, requested %d", domain.ErrInsufficientLoyaltyPoints, points)
	}
	if err != nil {
		return 0, err
	}
	if acct.Balance < points {
		return 0, fmt.Errorf("%w: balance %d, requested %d", domain.ErrInsufficientLoyaltyPoints, acct.Balance, points)
	}

	now := l.now()
	acct.Balance -= points
	acct.UpdatedAt = now
	if err := tx.SaveLoyaltyAccount(ctx, *acct); err != nil {
		return 0, err
	}
	err = tx.InsertLoyaltyEntry(ctx, domain.LoyaltyEntry{
		ID:        xid.New("loy"),
		TenantID:  tenantID,
		ClientID:  clientID,
		Kind:      domain.LoyaltyRedeem,
		Points:    -points,
		InvoiceID: invoiceID,
		CreatedAt: now,
	})
	if err != nil {
		return 0, err
	}
	return points * l.pointValueCents, nil
}

// Accrue awards points for a settled invoice. Repeating it for the same
// invoice awards nothing, which makes retries safe.
func (l *Ledger) Accrue(ctx context.Context, tenantID string, clientID string, invoiceID string, billCents int64) (int64, error) {
	points := l.PointsForBill(billCents)
	if points <= 0 {
		return 0, nil
	}

	awarded := int64(0)
	err := l.store.WithinTx(ctx, func(tx store.Tx) error {
		// A first accrual has no row to lock; create one so concurrent
		// accruals for the client queue on it instead of both reading zero.
		if err := tx.EnsureLoyaltyAccount(ctx, tenantID, clientID, l.now()); err != nil {
			return err
		}
		acct, err := tx.GetLoyaltyAccountForUpdate(ctx, tenantID, clientID)
		if err != nil {
			return err
		}

		done, err := tx.HasAccrual(ctx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		now := l.now()
		acct.Balance += points
		acct.UpdatedAt = now
		if err := tx.SaveLoyaltyAccount(ctx, *acct); err != nil {
			return err
		}
		if err := tx.InsertLoyaltyEntry(ctx, domain.LoyaltyEntry{
			ID:        xid.New("loy"),
			TenantID:  tenantID,
			ClientID:  clientID,
			Kind:      domain.LoyaltyAccrue,
			Points:    points,
			InvoiceID: invoiceID,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		awarded = points
		return nil
	})
	if err != nil {
		return 0, err
	}
	return awarded, nil
}

func (l *Ledger) Balance(ctx context.Context, tenantID string, clientID string) (*domain.LoyaltyAccount, error) {
	acct, err := l.store.GetLoyaltyAccount(ctx, tenantID, clientID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.LoyaltyAccount{TenantID: tenantID, ClientID: clientID}, nil
	}
	return acct, err
}
