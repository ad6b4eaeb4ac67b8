package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/smsleopard-webhooks/internal/logger"
	"github.com/unclebandit/smsleopard-webhooks/internal/metrics"
	"github.com/unclebandit/smsleopard-webhooks/internal/model"
)

// Item is one queued envelope as seen by a batch handler.
type Item struct {
	ID   string
	Body []byte
}

// BatchResult names the items that must be retried. Items not listed are
// acknowledged.
type BatchResult struct {
	FailedItemIDs []string
}

// BatchHandler processes one batch. It must not return before every item
// has either succeeded or been listed as failed.
type BatchHandler func(ctx context.Context, items []Item) BatchResult

// Publisher durably enqueues an envelope and returns its correlation id.
type Publisher interface {
	Publish(ctx context.Context, env *model.WebhookEnvelope) (string, error)
}

// Consumer delivers queued items in batches until ctx is cancelled.
type Consumer interface {
	Consume(ctx context.Context, handler BatchHandler) error
}

// Driver labels used in metrics.
const (
	DriverMemory   = "memory"
	DriverRabbitMQ = "rabbitmq"
)

// ErrQueueFull is returned by the in-memory queue when its buffer is exhausted.
var ErrQueueFull = errors.New("queue full")

// Options control batching and retries for a consumer.
type Options struct {
	BatchSize  int
	Window     time.Duration
	MaxRetries int
	Backoff    time.Duration
	Capacity   int
}

func (o *Options) withDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.Window <= 0 {
		o.Window = 500 * time.Millisecond
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Backoff <= 0 {
		o.Backoff = 500 * time.Millisecond
	}
	if o.Capacity <= 0 {
		o.Capacity = 1024
	}
}

type job struct {
	Item
	retryCount int
}

// InMemoryQueue is a single-process broker with the same batch, retry and
// dead-letter behavior as the RabbitMQ transport. Nothing survives a restart.
type InMemoryQueue struct {
	opts   Options
	jobs   chan job
	logger *zap.Logger

	mu   sync.Mutex
	dead []Item
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(opts Options, log *zap.Logger) *InMemoryQueue {
	opts.withDefaults()
	return &InMemoryQueue{
		opts:   opts,
		jobs:   make(chan job, opts.Capacity),
		logger: logger.OrNop(log),
	}
}

// Publish enqueues the envelope without blocking.
func (q *InMemoryQueue) Publish(ctx context.Context, env *model.WebhookEnvelope) (string, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	select {
	case q.jobs <- job{Item: Item{ID: id, Body: body}}:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		return "", ErrQueueFull
	}
}

// Consume runs handler over batches until ctx is cancelled.
func (q *InMemoryQueue) Consume(ctx context.Context, handler BatchHandler) error {
	for {
		batch, ok := q.nextBatch(ctx)
		if !ok {
			return ctx.Err()
		}
		if len(batch) == 0 {
			continue
		}

		items := make([]Item, len(batch))
		for i, j := range batch {
			items[i] = j.Item
		}
		result := handler(ctx, items)

		failed := make(map[string]bool, len(result.FailedItemIDs))
		for _, id := range result.FailedItemIDs {
			failed[id] = true
		}
		for _, j := range batch {
			if failed[j.ID] {
				q.retry(ctx, j)
			}
		}
	}
}

// nextBatch blocks for the first job, then collects more until the batch is
// full or the window closes.
func (q *InMemoryQueue) nextBatch(ctx context.Context) ([]job, bool) {
	var batch []job
	select {
	case j := <-q.jobs:
		batch = append(batch, j)
	case <-ctx.Done():
		return nil, false
	}

	timer := time.NewTimer(q.opts.Window)
	defer timer.Stop()
	for len(batch) < q.opts.BatchSize {
		select {
		case j := <-q.jobs:
			batch = append(batch, j)
		case <-timer.C:
			return batch, true
		case <-ctx.Done():
			return batch, true
		}
	}
	return batch, true
}

// retry schedules a failed job with linear backoff, or dead-letters it once
// MaxRetries is exhausted.
func (q *InMemoryQueue) retry(ctx context.Context, j job) {
	j.retryCount++
	if j.retryCount > q.opts.MaxRetries {
		q.logger.Warn("Item permanently failed, dead-lettering",
			zap.String("item_id", j.ID),
			zap.Int("attempts", j.retryCount),
		)
		q.mu.Lock()
		q.dead = append(q.dead, j.Item)
		q.mu.Unlock()
		metrics.QueueDeadLetteredTotal.WithLabelValues(DriverMemory).Inc()
		return
	}

	q.logger.Info("Item failed, scheduling retry",
		zap.String("item_id", j.ID),
		zap.Int("retry", j.retryCount),
		zap.Int("max_retries", q.opts.MaxRetries),
	)
	metrics.QueueRetriesTotal.WithLabelValues(DriverMemory).Inc()
	delay := time.Duration(j.retryCount) * q.opts.Backoff
	go func() {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		select {
		case q.jobs <- j:
		case <-ctx.Done():
		}
	}()
}

// DeadLetters returns a copy of the items that exhausted their retries.
func (q *InMemoryQueue) DeadLetters() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.dead))
	copy(out, q.dead)
	return out
}

// Ping always succeeds; it exists so health checks treat both drivers alike.
func (q *InMemoryQueue) Ping() error { return nil }

var (
	_ Publisher = (*InMemoryQueue)(nil)
	_ Consumer  = (*InMemoryQueue)(nil)
)
