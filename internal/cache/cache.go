package cache

import (
	"context"
	"time"

	"salonpos/backend/internal/domain"
)

// InvoiceCache holds settled invoices. Invoices never change after commit,
// so entries only expire by TTL.
type InvoiceCache interface {
	Get(ctx context.Context, tenantID string, invoiceID string) (*domain.Invoice, bool, error)
	Set(ctx context.Context, invoice *domain.Invoice, ttl time.Duration) error
}

type NoopInvoiceCache struct{}

func (NoopInvoiceCache) Get(_ context.Context, _ string, _ string) (*domain.Invoice, bool, error) {
	return nil, false, nil
}

func (NoopInvoiceCache) Set(_ context.Context, _ *domain.Invoice, _ time.Duration) error {
	return nil
}

func invoiceKey(tenantID string, invoiceID string) string {
	return "invoice:" + tenantID + ":" + invoiceID
}
