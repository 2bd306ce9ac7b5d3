package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	publishAttempts = 3
	publishTimeout  = 10 * time.Second
)

// Publisher ставит задание стадии в ее очередь.
type Publisher interface {
	PublishStage(ctx context.Context, stage Stage, job StageJob) error
}

// RetryScheduler откладывает повтор задания через retry-очередь стадии.
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, stage Stage, body []byte, attempt int, delay time.Duration) error
}

// RabbitPublisher публикует в default exchange с подтверждениями брокера.
// Канал открывается лениво и переоткрывается после разрыва соединения.
type RabbitPublisher struct {
	url    string
	appID  string
	logger *zap.Logger

	mu          sync.Mutex
	conn        *amqp.Connection
	ch          *amqp.Channel
	retryQueues map[string]bool
}

var (
	_ Publisher      = (*RabbitPublisher)(nil)
	_ RetryScheduler = (*RabbitPublisher)(nil)
)

// NewRabbitPublisher создает publisher. Соединение устанавливается при первой публикации.
func NewRabbitPublisher(url, appID string, logger *zap.Logger) *RabbitPublisher {
	return &RabbitPublisher{
		url:         url,
		appID:       appID,
		logger:      logger.Named("rabbitmq_publisher"),
		retryQueues: make(map[string]bool),
	}
}

// PublishStage сериализует задание и публикует его в очередь стадии.
func (p *RabbitPublisher) PublishStage(ctx context.Context, stage Stage, job StageJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal stage job: %w", err)
	}
	return p.publish(ctx, stage.QueueName(), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now().UTC(),
		AppId:        p.appID,
		Type:         stage.String(),
	}, nil)
}

// ScheduleRetry кладет тело в очередь повторов стадии для задержки delay.
func (p *RabbitPublisher) ScheduleRetry(ctx context.Context, stage Stage, body []byte, attempt int, delay time.Duration) error {
	ensure := func(ch *amqp.Channel) error {
		name := stage.RetryQueueName(delay)
		if p.retryQueues[name] {
			return nil
		}
		if _, err := DeclareRetryQueue(ch, stage, delay); err != nil {
			return err
		}
		p.retryQueues[name] = true
		return nil
	}
	return p.publish(ctx, stage.RetryQueueName(delay), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now().UTC(),
		AppId:        p.appID,
		Type:         stage.String(),
		Headers:      amqp.Table{AttemptHeader: int32(attempt)},
	}, ensure)
}

// publish делает до publishAttempts попыток; каждая ждет подтверждения брокера.
// prepare, если задан, выполняется на канале перед публикацией под p.mu.
func (p *RabbitPublisher) publish(ctx context.Context, routingKey string, msg amqp.Publishing, prepare func(*amqp.Channel) error) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		lastErr = p.publishOnce(ctx, routingKey, msg, prepare)
		if lastErr == nil {
			return nil
		}
		p.logger.Warn("Publish attempt failed",
			zap.String("routing_key", routingKey),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		p.resetChannel()

		select {
		case <-ctx.Done():
			return fmt.Errorf("publish to %s cancelled: %w", routingKey, ctx.Err())
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return fmt.Errorf("failed to publish to %s after %d attempts: %w", routingKey, publishAttempts, lastErr)
}

func (p *RabbitPublisher) publishOnce(ctx context.Context, routingKey string, msg amqp.Publishing, prepare func(*amqp.Channel) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}
	if prepare != nil {
		if err := prepare(ch); err != nil {
			return err
		}
	}
	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", routingKey, false, false, msg)
	if err != nil {
		return err
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return errors.New("broker nacked message")
	}
	return nil
}

func (p *RabbitPublisher) channelLocked() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel for publisher: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	if err := DeclareTopology(ch, Chain); err != nil {
		ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func (p *RabbitPublisher) resetChannel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
}

// Close закрывает канал и соединение.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	return errors.Join(errs...)
}
