package loyalty

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrLeaseHeld = errors.New("reconcile lease held by another worker")

// Lease grants exclusive use of the retry queue for one drain pass.
type Lease interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// LocalLease always succeeds; it is used when a single process owns the queue.
type LocalLease struct{}

func (LocalLease) Acquire(_ context.Context) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

type RedisLease struct {
	locker *redislock.Client
	key    string
	ttl    time.Duration
}

func NewRedisLease(client *redis.Client, key string, ttl time.Duration) *RedisLease {
	if key == "" {
		key = "lock:loyalty-reconcile"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLease{locker: redislock.New(client), key: key, ttl: ttl}
}

func (l *RedisLease) Acquire(ctx context.Context) (func(context.Context) error, error) {
	lock, err := l.locker.Obtain(ctx, l.key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLeaseHeld
	}
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}

// Reconciler replays queued accruals until the queue is empty or a job fails
// again. Failed jobs go back on the queue with their attempt count bumped;
// jobs past maxAttempts are logged and dropped.
type Reconciler struct {
	ledger      *Ledger
	queue       RetryQueue
	lease       Lease
	logger      *zap.Logger
	interval    time.Duration
	maxAttempts int
}

func NewReconciler(ledger *Ledger, queue RetryQueue, lease Lease, logger *zap.Logger, interval time.Duration) *Reconciler {
	if lease == nil {
		lease = LocalLease{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		ledger:      ledger,
		queue:       queue,
		lease:       lease,
		logger:      logger.Named("loyalty-reconciler"),
		interval:    interval,
		maxAttempts: 10,
	}
}

// Run drains the queue every interval until ctx ends.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Drain(ctx); err != nil && !errors.Is(err, ErrLeaseHeld) && ctx.Err() == nil {
				r.logger.Warn("drain failed", zap.Error(err))
			}
		}
	}
}

// Drain processes queued jobs and returns how many were applied.
func (r *Reconciler) Drain(ctx context.Context) (int, error) {
	release, err := r.lease.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("failed to release lease", zap.Error(err))
		}
	}()

	applied := 0
	for {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		job, err := r.queue.Dequeue(ctx)
		if err != nil {
			return applied, err
		}
		if job == nil {
			return applied, nil
		}

		points, err := r.ledger.Accrue(ctx, job.TenantID, job.ClientID, job.InvoiceID, job.BillCents)
		if err != nil {
			job.Attempts++
			job.LastError = err.Error()
			if job.Attempts >= r.maxAttempts {
				r.logger.Error("dropping loyalty accrual after repeated failures",
					zap.String("tenant_id", job.TenantID),
					zap.String("invoice_id", job.InvoiceID),
					zap.Int("attempts", job.Attempts),
					zap.Error(err))
				continue
			}
			if qErr := r.queue.Enqueue(ctx, *job); qErr != nil {
				return applied, errors.Join(err, qErr)
			}
			// Leave the rest for the next tick.
			return applied, err
		}

		applied++
		r.logger.Info("loyalty accrual reconciled",
			zap.String("tenant_id", job.TenantID),
			zap.String("invoice_id", job.InvoiceID),
			zap.Int64("points", points))
	}
}
