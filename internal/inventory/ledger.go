package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

// Ledger is the only writer of stock quantities. Every change locks the
// (tenant, product, outlet) record through the unit of work and appends a
// movement in the same step.
type Ledger struct {
	now func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{now: func() time.Time { return time.Now().UTC() }}
}

// Debit removes qty units. It fails with *domain.InsufficientStockError and
// writes nothing when the record is missing or holds fewer than qty.
func (l *Ledger) Debit(ctx context.Context, tx store.Tx, tenantID string, productID string, outletID string, qty int, ref domain.MovementRef) (*domain.InventoryMovement, error) {
	if tx == nil {
		return nil, domain.ErrNoActiveTransaction
	}
	if qty <= 0 {
		return nil, fmt.Errorf("%w: debit quantity must be positive", domain.ErrInvalidRequest)
	}

	rec, err := tx.GetInventoryForUpdate(ctx, tenantID, productID, outletID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.InsufficientStockError{ProductID: productID, OutletID: outletID, Available: 0, Requested: qty}
	}
	if err != nil {
		return nil, err
	}
	if rec.Quantity < qty {
		return nil, &domain.InsufficientStockError{ProductID: productID, OutletID: outletID, Available: rec.Quantity, Requested: qty}
	}

	return l.apply(ctx, tx, *rec, -qty, domain.MovementStockOut, ref)
}

// Credit adds qty units, creating the record at zero first when the product
// has never been stocked at the outlet.
func (l *Ledger) Credit(ctx context.Context, tx store.Tx, tenantID string, productID string, outletID string, qty int, movementType domain.MovementType, ref domain.MovementRef) (*domain.InventoryMovement, error) {
	if tx == nil {
		return nil, domain.ErrNoActiveTransaction
	}
	if qty <= 0 {
		return nil, fmt.Errorf("%w: credit quantity must be positive", domain.ErrInvalidRequest)
	}
	if movementType == "" {
		movementType = domain.MovementStockIn
	}
	if movementType == domain.MovementStockOut {
		return nil, fmt.Errorf("%w: stock-out is not a credit", domain.ErrInvalidRequest)
	}

	rec, err := tx.GetInventoryForUpdate(ctx, tenantID, productID, outletID)
	if errors.Is(err, domain.ErrNotFound) {
		fresh := domain.InventoryRecord{
			TenantID:  tenantID,
			ProductID: productID,
			OutletID:  outletID,
			Quantity:  0,
			UpdatedAt: l.now(),
		}
		if err := tx.InsertInventory(ctx, fresh); err != nil {
			return nil, err
		}
		rec = &fresh
	} else if err != nil {
		return nil, err
	}

	return l.apply(ctx, tx, *rec, qty, movementType, ref)
}

func (l *Ledger) apply(ctx context.Context, tx store.Tx, rec domain.InventoryRecord, delta int, movementType domain.MovementType, ref domain.MovementRef) (*domain.InventoryMovement, error) {
	now := l.now()
	before := rec.Quantity
	rec.Quantity += delta
	rec.UpdatedAt = now
	if rec.Quantity < 0 {
		return nil, &domain.InsufficientStockError{ProductID: rec.ProductID, OutletID: rec.OutletID, Available: before, Requested: -delta}
	}
	if err := tx.UpdateInventory(ctx, rec); err != nil {
		return nil, err
	}

	movement := domain.InventoryMovement{
		ID:             xid.New("mov"),
		TenantID:       rec.TenantID,
		ProductID:      rec.ProductID,
		OutletID:       rec.OutletID,
		Type:           movementType,
		QuantityDelta:  delta,
		QuantityBefore: before,
		QuantityAfter:  rec.Quantity,
		ReferenceType:  ref.Type,
		ReferenceID:    ref.ID,
		Actor:          ref.Actor,
		CreatedAt:      now,
	}
	if err := tx.InsertMovement(ctx, movement); err != nil {
		return nil, err
	}
	return &movement, nil
}
