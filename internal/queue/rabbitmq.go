package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/unclebandit/smsleopard-webhooks/internal/config"
	"github.com/unclebandit/smsleopard-webhooks/internal/logger"
	"github.com/unclebandit/smsleopard-webhooks/internal/metrics"
	"github.com/unclebandit/smsleopard-webhooks/internal/model"
)

const (
	retryHeader   = "x-retry-count"
	confirmBuffer = 16
)

var (
	errPublishNacked   = errors.New("rabbitmq: publish nacked by broker")
	errConfirmTimeout  = errors.New("rabbitmq: publish confirmation timed out")
	errConfirmsClosed  = errors.New("rabbitmq: publish channel closed")
	errDeliveriesClose = errors.New("rabbitmq: delivery channel closed")
)

// RabbitMQ is the durable queue transport. Publishing uses publisher
// confirms; consuming acknowledges per item after each batch.
type RabbitMQ struct {
	cfg    *config.RabbitMQConfig
	batch  config.BatchConfig
	logger *zap.Logger

	mu       sync.Mutex // guards the publish channel and its confirmations
	conn     *amqp.Connection
	pubCh    *amqp.Channel
	confirms chan amqp.Confirmation
	pubSeq   uint64 // delivery tag of the last publish on pubCh

	// republish sends a retried copy; swapped in tests.
	republish func(ctx context.Context, id string, body []byte, headers amqp.Table) error
}

func NewRabbitMQ(cfg *config.RabbitMQConfig, batch config.BatchConfig, log *zap.Logger) *RabbitMQ {
	r := &RabbitMQ{cfg: cfg, batch: batch, logger: logger.OrNop(log)}
	r.republish = r.publish
	return r
}

// Connect dials with exponential backoff, declares the topology and opens
// the confirm-mode publish channel.
func (r *RabbitMQ) Connect() error {
	backoff := time.Second
	maxBackoff := 30 * time.Second
	maxAttempts := 10

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = r.connect(); err == nil {
			r.logger.Info("Connected to RabbitMQ",
				zap.String("exchange", r.cfg.Exchange),
				zap.String("queue", r.cfg.Queue),
				zap.Int("attempt", attempt),
			)
			return nil
		}
		r.logger.Warn("RabbitMQ connection failed, retrying...",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
		)
		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxAttempts, err)
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.DialConfig(r.cfg.ConnectionURL(), amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": "whatsapp-webhooks",
		},
	})
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := r.declareTopology(ch); err != nil {
		conn.Close()
		return err
	}
	confirms, err := confirmMode(ch)
	if err != nil {
		conn.Close()
		return err
	}

	r.mu.Lock()
	r.conn = conn
	r.pubCh = ch
	r.confirms = confirms
	r.pubSeq = 0
	r.mu.Unlock()
	return nil
}

func confirmMode(ch *amqp.Channel) (chan amqp.Confirmation, error) {
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	return ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer)), nil
}

// resetPublishChannel replaces a publish channel whose confirmation state is
// unknown. Delivery tags restart at 1 on the new channel. Caller holds mu.
func (r *RabbitMQ) resetPublishChannel() {
	if r.pubCh != nil {
		_ = r.pubCh.Close()
	}
	r.pubCh, r.confirms, r.pubSeq = nil, nil, 0
	if r.conn == nil || r.conn.IsClosed() {
		return
	}

	ch, err := r.conn.Channel()
	if err != nil {
		r.logger.Error("Failed to reopen publish channel", zap.Error(err))
		return
	}
	confirms, err := confirmMode(ch)
	if err != nil {
		ch.Close()
		r.logger.Error("Failed to reopen publish channel", zap.Error(err))
		return
	}
	r.pubCh, r.confirms = ch, confirms
}

// declareTopology creates the work exchange and queue plus the dead-letter
// pair that receives items which exhausted their retries.
func (r *RabbitMQ) declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(r.cfg.DeadLetterExch, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(r.cfg.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(r.cfg.DeadLetterQueue, "", r.cfg.DeadLetterExch, false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}

	if err := ch.ExchangeDeclare(r.cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	args := amqp.Table{"x-dead-letter-exchange": r.cfg.DeadLetterExch}
	if _, err := ch.QueueDeclare(r.cfg.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(r.cfg.Queue, r.cfg.RoutingKey, r.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Publish enqueues the envelope and waits for the broker confirmation. The
// returned correlation id is the AMQP message id.
func (r *RabbitMQ) Publish(ctx context.Context, env *model.WebhookEnvelope) (string, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	headers := amqp.Table{
		"event_kind":    env.Metadata.EventKind,
		"account_id":    env.Metadata.AccountID,
		"channel_id":    env.Metadata.ChannelID,
		"message_count": int32(env.Metadata.MessageCount),
		"status_count":  int32(env.Metadata.StatusCount),
	}
	if err := r.publish(ctx, id, body, headers); err != nil {
		metrics.QueuePublishFailuresTotal.WithLabelValues(DriverRabbitMQ).Inc()
		return "", err
	}
	return id, nil
}

func (r *RabbitMQ) publish(ctx context.Context, id string, body []byte, headers amqp.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pubCh == nil || r.conn == nil || r.conn.IsClosed() {
		return errors.New("rabbitmq: not connected")
	}

	err := r.pubCh.Publish(r.cfg.Exchange, r.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     id,
		CorrelationId: id,
		Timestamp:     time.Now().UTC(),
		Headers:       headers,
		Body:          body,
	})
	if err != nil {
		r.resetPublishChannel()
		return fmt.Errorf("failed to publish message: %w", err)
	}

	r.pubSeq++

	timeout := r.cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	err = awaitConfirm(ctx, r.confirms, r.pubSeq, timeout)
	if err != nil && !errors.Is(err, errPublishNacked) {
		// A late confirmation would otherwise be read by the next publish.
		r.resetPublishChannel()
	}
	return err
}

// awaitConfirm waits for the confirmation of tag. Confirmations for earlier
// tags belong to publishes that already gave up and are discarded.
func awaitConfirm(ctx context.Context, confirms <-chan amqp.Confirmation, tag uint64, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case confirm, ok := <-confirms:
			if !ok {
				return errConfirmsClosed
			}
			if confirm.DeliveryTag < tag {
				continue
			}
			if confirm.DeliveryTag > tag {
				return fmt.Errorf("rabbitmq: expected confirmation %d, got %d", tag, confirm.DeliveryTag)
			}
			if !confirm.Ack {
				return errPublishNacked
			}
			return nil
		case <-timer.C:
			return errConfirmTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Consume reads deliveries in batches of up to Batch.Size, waiting at most
// Batch.Window after the first delivery. It returns when ctx is cancelled or
// the delivery channel closes.
func (r *RabbitMQ) Consume(ctx context.Context, handler BatchHandler) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return errors.New("rabbitmq: not connected")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer ch.Close()

	prefetch := r.batch.Prefetch
	if prefetch < r.batch.Size {
		prefetch = r.batch.Size
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := ch.Consume(r.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	return r.consumeBatches(ctx, deliveries, handler)
}

// consumeBatches runs the collect, handle and settle loop. Deliveries that
// were collected when ctx is cancelled go back to the queue unhandled.
func (r *RabbitMQ) consumeBatches(ctx context.Context, deliveries <-chan amqp.Delivery, handler BatchHandler) error {
	for {
		batch, err := r.collect(ctx, deliveries)
		if err != nil {
			r.requeue(batch)
			return err
		}

		items := make([]Item, len(batch))
		for i, d := range batch {
			items[i] = Item{ID: deliveryID(d), Body: d.Body}
		}
		result := handler(ctx, items)
		r.settle(ctx, batch, result)
	}
}

// requeue returns deliveries to the queue without touching their retry count.
func (r *RabbitMQ) requeue(batch []amqp.Delivery) {
	for _, d := range batch {
		if err := d.Nack(false, true); err != nil {
			r.logger.Error("Failed to requeue delivery", zap.String("item_id", deliveryID(d)), zap.Error(err))
		}
	}
}

func (r *RabbitMQ) collect(ctx context.Context, deliveries <-chan amqp.Delivery) ([]amqp.Delivery, error) {
	var batch []amqp.Delivery
	select {
	case d, ok := <-deliveries:
		if !ok {
			return nil, errDeliveriesClose
		}
		batch = append(batch, d)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	size := r.batch.Size
	if size <= 0 {
		size = 1
	}
	window := r.batch.Window
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	timer := time.NewTimer(window)
	defer timer.Stop()

	for len(batch) < size {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return batch, errDeliveriesClose
			}
			batch = append(batch, d)
		case <-timer.C:
			return batch, nil
		case <-ctx.Done():
			return batch, ctx.Err()
		}
	}
	return batch, nil
}

// settle acks successes. Failures are republished with an incremented retry
// header and acked, until MaxRetries is reached; then they are rejected
// without requeue so the broker routes them to the dead-letter exchange.
// During shutdown failures are requeued as they are, since they most likely
// failed on the cancelled context.
func (r *RabbitMQ) settle(ctx context.Context, batch []amqp.Delivery, result BatchResult) {
	failed := make(map[string]bool, len(result.FailedItemIDs))
	for _, id := range result.FailedItemIDs {
		failed[id] = true
	}
	shuttingDown := ctx.Err() != nil

	for _, d := range batch {
		id := deliveryID(d)
		if !failed[id] {
			if err := d.Ack(false); err != nil {
				r.logger.Error("Failed to ack delivery", zap.String("item_id", id), zap.Error(err))
			}
			continue
		}

		if shuttingDown {
			r.requeue([]amqp.Delivery{d})
			continue
		}

		retries := retryCount(d.Headers)
		if retries >= r.batch.MaxRetries {
			r.logger.Warn("Item exhausted retries, dead-lettering",
				zap.String("item_id", id),
				zap.Int("retries", retries),
			)
			metrics.QueueDeadLetteredTotal.WithLabelValues(DriverRabbitMQ).Inc()
			if err := d.Nack(false, false); err != nil {
				r.logger.Error("Failed to nack delivery", zap.String("item_id", id), zap.Error(err))
			}
			continue
		}

		headers := amqp.Table{}
		for k, v := range d.Headers {
			headers[k] = v
		}
		headers[retryHeader] = int32(retries + 1)

		if err := r.republish(ctx, d.MessageId, d.Body, headers); err != nil {
			r.logger.Error("Failed to republish item for retry, requeueing",
				zap.String("item_id", id),
				zap.Error(err),
			)
			_ = d.Nack(false, true)
			continue
		}
		metrics.QueueRetriesTotal.WithLabelValues(DriverRabbitMQ).Inc()
		if err := d.Ack(false); err != nil {
			r.logger.Error("Failed to ack retried delivery", zap.String("item_id", id), zap.Error(err))
		}
	}
}

// Ping reports whether the connection is open.
func (r *RabbitMQ) Ping() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil || r.conn.IsClosed() {
		return errors.New("rabbitmq: connection closed")
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	r.pubCh = nil
	return err
}

// deliveryID prefers the message id so retried copies keep their identity.
func deliveryID(d amqp.Delivery) string {
	if d.MessageId != "" {
		return d.MessageId
	}
	return strconv.FormatUint(d.DeliveryTag, 10)
}

func retryCount(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	}
	return 0
}

var (
	_ Publisher = (*RabbitMQ)(nil)
	_ Consumer  = (*RabbitMQ)(nil)
)
