package loyalty

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const DefaultRetryQueueKey = "loyalty:accrual:retry"

// AccrualJob is an accrual that could not be applied right after checkout.
type AccrualJob struct {
	TenantID   string    `json:"tenant_id"`
	ClientID   string    `json:"client_id"`
	InvoiceID  string    `json:"invoice_id"`
	BillCents  int64     `json:"bill_cents"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	LastError  string    `json:"last_error,omitempty"`
}

type RetryQueue interface {
	Enqueue(ctx context.Context, job AccrualJob) error
	// Dequeue returns nil, nil when the queue is empty.
	Dequeue(ctx context.Context) (*AccrualJob, error)
	Len(ctx context.Context) (int64, error)
}

type MemoryQueue struct {
	mu   sync.Mutex
	jobs []AccrualJob
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job AccrualJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *MemoryQueue) Dequeue(_ context.Context) (*AccrualJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return &job, nil
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.jobs)), nil
}

// RedisQueue keeps jobs in a Redis list so they survive restarts and are
// shared by every replica.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultRetryQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job AccrualJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*AccrualJob, error) {
	val, err := q.client.RPop(ctx, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var job AccrualJob
	if err := json.Unmarshal([]byte(val), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
