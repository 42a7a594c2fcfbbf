package inventory

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/validation"
)

type Service struct {
	store           store.Store
	ledger          *Ledger
	logger          *zap.Logger
	defaultOutletID string
}

func NewService(st store.Store, ledger *Ledger, logger *zap.Logger, defaultOutletID string) *Service {
	if ledger == nil {
		ledger = NewLedger()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, ledger: ledger, logger: logger.Named("inventory"), defaultOutletID: defaultOutletID}
}

// StockIn credits stock received from a supplier, a count adjustment or a
// customer return.
func (s *Service) StockIn(ctx context.Context, tenantID string, actor string, req domain.StockInRequest) (*domain.InventoryRecord, *domain.InventoryMovement, error) {
	if err := validation.Struct(req); err != nil {
		return nil, nil, err
	}
	outletID := strings.TrimSpace(req.OutletID)
	if outletID == "" {
		outletID = s.defaultOutletID
	}
	ref := domain.MovementRef{Type: "stock_in", ID: req.ReferenceID, Actor: actor}

	var (
		movement *domain.InventoryMovement
		record   *domain.InventoryRecord
	)
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		movement, err = s.ledger.Credit(ctx, tx, tenantID, req.ProductID, outletID, req.Quantity, req.Type, ref)
		if err != nil {
			return err
		}
		record, err = tx.GetInventoryForUpdate(ctx, tenantID, req.ProductID, outletID)
		if err != nil {
			return err
		}
		if req.LowStockThreshold != nil && *req.LowStockThreshold != record.LowStockThreshold {
			record.LowStockThreshold = *req.LowStockThreshold
			return tx.UpdateInventory(ctx, *record)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("stock credited",
		zap.String("tenant_id", tenantID),
		zap.String("product_id", req.ProductID),
		zap.String("outlet_id", outletID),
		zap.Int("quantity_after", movement.QuantityAfter))
	return record, movement, nil
}

func (s *Service) Get(ctx context.Context, tenantID string, productID string, outletID string) (*domain.InventoryRecord, error) {
	if strings.TrimSpace(outletID) == "" {
		outletID = s.defaultOutletID
	}
	return s.store.GetInventory(ctx, tenantID, productID, outletID)
}

func (s *Service) ListMovements(ctx context.Context, tenantID string, productID string, outletID string, limit int) ([]domain.InventoryMovement, error) {
	return s.store.ListMovements(ctx, tenantID, strings.TrimSpace(productID), strings.TrimSpace(outletID), limit)
}
