package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"salonpos/backend/internal/domain"
)

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisInvoiceCache struct {
	client *redis.Client
}

func NewRedisInvoiceCache(client *redis.Client) *RedisInvoiceCache {
	return &RedisInvoiceCache{client: client}
}

func (c *RedisInvoiceCache) Get(ctx context.Context, tenantID string, invoiceID string) (*domain.Invoice, bool, error) {
	val, err := c.client.Get(ctx, invoiceKey(tenantID, invoiceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var inv domain.Invoice
	if err := json.Unmarshal(val, &inv); err != nil {
		return nil, false, err
	}
	return &inv, true, nil
}

func (c *RedisInvoiceCache) Set(ctx context.Context, invoice *domain.Invoice, ttl time.Duration) error {
	if invoice == nil {
		return nil
	}
	payload, err := json.Marshal(invoice)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, invoiceKey(invoice.TenantID, invoice.ID), payload, ttl).Err()
}
