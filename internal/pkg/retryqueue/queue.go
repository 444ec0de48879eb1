package retryqueue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/VipLedger/internal/pkg/cache"
)

const (
	// Redis keys
	TaskKeyPrefix = "ledger_retry:"
	DueSetKey     = "ledger_retry_due"

	// RetryDelay is the fixed wait before a failed notification is retried.
	RetryDelay = 30 * time.Minute

	// TaskTTL bounds how long an orphaned payload survives.
	TaskTTL = 48 * time.Hour

	pollInterval = 30 * time.Second
)

// Handler re-processes one due retry task.
type Handler func(ctx context.Context, task Task)

// Queue schedules one-shot delayed notification retries. Tasks are persisted
// in Redis (a sorted set scored by due time plus one payload key per task) so
// a process restart re-loads pending retries instead of losing them; together
// with the payment idempotency check this gives at-least-once semantics.
type Queue struct {
	client  *redis.Client
	handler Handler

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewQueue creates a retry queue delivering due tasks to handler.
func NewQueue(handler Handler) *Queue {
	return &Queue{
		client:  cache.GetClient(),
		handler: handler,
		stopCh:  make(chan struct{}),
	}
}

// Schedule persists a retry task due after delay. A payment id with a retry
// already pending is left untouched; every notification gets exactly one
// automatic retry.
func (q *Queue) Schedule(ctx context.Context, task Task, delay time.Duration) error {
	_, err := q.client.ZScore(ctx, DueSetKey, task.PaymentID).Result()
	if err == nil {
		log.Infof("[RetryQueue] retry for payment %s already pending, skipping", task.PaymentID)
		return nil
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}

	task.DueAt = time.Now().Add(delay)
	payload, err := task.marshal()
	if err != nil {
		return err
	}

	if err := q.client.Set(ctx, TaskKeyPrefix+task.PaymentID, payload, TaskTTL).Err(); err != nil {
		return err
	}
	if err := q.client.ZAdd(ctx, DueSetKey, redis.Z{
		Score:  float64(task.DueAt.Unix()),
		Member: task.PaymentID,
	}).Err(); err != nil {
		return err
	}

	log.Infof("[RetryQueue] scheduled retry for payment %s at %s", task.PaymentID, task.DueAt.Format(time.RFC3339))
	return nil
}

// Pending returns the number of scheduled retries.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, DueSetKey).Result()
}

// Start launches the polling worker. Tasks already due, including ones
// scheduled by a previous process, are delivered on the first poll.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})

	log.Info("[RetryQueue] worker starting")
	q.wg.Add(1)
	go q.worker()
}

// Stop halts the worker. Pending tasks stay in Redis for the next start.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[RetryQueue] worker stopped")
}

func (q *Queue) worker() {
	defer q.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	// Immediate first sweep so restarts do not wait a full poll interval.
	q.sweep()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.sweep()
		}
	}
}

// sweep claims and delivers every task whose due time has passed.
func (q *Queue) sweep() {
	ctx := context.Background()

	members, err := q.client.ZRangeByScore(ctx, DueSetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: formatScore(time.Now()),
	}).Result()
	if err != nil {
		log.Errorf("[RetryQueue] sweep: %v", err)
		return
	}

	for _, paymentID := range members {
		// ZRem is the claim: whoever removes the member owns the task.
		removed, err := q.client.ZRem(ctx, DueSetKey, paymentID).Result()
		if err != nil {
			log.Errorf("[RetryQueue] claiming %s: %v", paymentID, err)
			continue
		}
		if removed == 0 {
			continue
		}

		data, err := q.client.Get(ctx, TaskKeyPrefix+paymentID).Bytes()
		if err != nil {
			log.Errorf("[RetryQueue] loading task %s: %v", paymentID, err)
			continue
		}
		q.client.Del(ctx, TaskKeyPrefix+paymentID)

		task, err := unmarshalTask(data)
		if err != nil {
			log.Errorf("[RetryQueue] decoding task %s: %v", paymentID, err)
			continue
		}

		log.Infof("[RetryQueue] delivering retry for payment %s (attempt %d)", task.PaymentID, task.Attempt)
		q.handler(ctx, task)
	}
}

func formatScore(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
