package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"kcs-server/shared/metrics"
	"kcs-server/shared/models"
)

const reconnectDelay = 5 * time.Second

// errHandlerPanic - обработчик запаниковал. Такое задание сразу уходит в DLQ.
var errHandlerPanic = errors.New("stage handler panicked")

// HandlerFunc выполняет стадию для задания. nil - задание завершено (или пропущено).
type HandlerFunc func(ctx context.Context, job StageJob) error

// DeadLetterFunc вызывается перед отправкой задания в DLQ.
type DeadLetterFunc func(ctx context.Context, job StageJob, cause error)

// StageBinding связывает стадию с обработчиком и лимитом параллелизма.
type StageBinding struct {
	Stage        Stage
	Concurrency  int
	Handle       HandlerFunc
	OnDeadLetter DeadLetterFunc
}

// Consumer читает очереди зарегистрированных стадий.
// Успех - ack. Ошибка - повтор через очередь <stage>.retry.<delay> с backoff.
// Терминальная ошибка или исчерпанные попытки - nack без requeue, брокер кладет в DLQ.
type Consumer struct {
	url      string
	tag      string
	policy   RetryPolicy
	retries  RetryScheduler
	bindings []StageBinding
	logger   *zap.Logger
}

func NewConsumer(url, consumerTag string, policy RetryPolicy, retries RetryScheduler, logger *zap.Logger) *Consumer {
	return &Consumer{
		url:     url,
		tag:     consumerTag,
		policy:  policy,
		retries: retries,
		logger:  logger.Named("stage_consumer"),
	}
}

// Register добавляет стадию. Вызывать до Run.
func (c *Consumer) Register(b StageBinding) {
	if b.Concurrency <= 0 {
		b.Concurrency = 1
	}
	c.bindings = append(c.bindings, b)
}

// Stages возвращает зарегистрированные стадии.
func (c *Consumer) Stages() []Stage {
	stages := make([]Stage, 0, len(c.bindings))
	for _, b := range c.bindings {
		stages = append(stages, b.Stage)
	}
	return stages
}

// Run потребляет сообщения до отмены ctx, переподключаясь при разрыве соединения.
func (c *Consumer) Run(ctx context.Context) error {
	if len(c.bindings) == 0 {
		return errors.New("no stages registered")
	}
	for {
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Error("RabbitMQ consumer stopped, reconnecting", zap.Error(err), zap.Duration("delay", reconnectDelay))
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) runOnce(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer conn.Close()
	c.logger.Info("RabbitMQ connected")

	setup, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open setup channel: %w", err)
	}
	if err := DeclareTopology(setup, c.Stages()); err != nil {
		setup.Close()
		return err
	}
	setup.Close()

	// In-flight задания дорабатывают после сигнала остановки.
	handlerCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	channels := make([]*amqp.Channel, 0, len(c.bindings))
	closeSources := map[string]<-chan *amqp.Error{
		"connection": conn.NotifyClose(make(chan *amqp.Error, 1)),
	}
	for _, b := range c.bindings {
		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to open channel for %s: %w", b.Stage, err)
		}
		channels = append(channels, ch)
		closeSources["channel "+b.Stage.String()] = ch.NotifyClose(make(chan *amqp.Error, 1))

		if err := ch.Qos(b.Concurrency, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS for %s: %w", b.Stage, err)
		}
		msgs, err := ch.Consume(b.Stage.QueueName(), c.consumerTag(b.Stage), false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("failed to register consumer for %s: %w", b.Stage, err)
		}
		c.logger.Info("Consumer started",
			zap.String("stage", b.Stage.String()),
			zap.Int("concurrency", b.Concurrency),
		)

		for i := 0; i < b.Concurrency; i++ {
			wg.Add(1)
			go func(b StageBinding) {
				defer wg.Done()
				for d := range msgs {
					c.handleDelivery(handlerCtx, b, d)
				}
			}(b)
		}
	}

	closed := watchClose(closeSources)
	select {
	case <-ctx.Done():
		c.logger.Info("Context cancelled, stopping consumers")
		for i, ch := range channels {
			if err := ch.Cancel(c.consumerTag(c.bindings[i].Stage), false); err != nil {
				c.logger.Warn("Failed to cancel consumer", zap.String("stage", c.bindings[i].Stage.String()), zap.Error(err))
			}
		}
		wg.Wait()
		return nil
	case ev := <-closed:
		// Закрытие одного канала останавливает только его стадию.
		// Рвем соединение целиком, чтобы остальные воркеры вышли и Run переподключился.
		conn.Close()
		wg.Wait()
		return fmt.Errorf("%s closed: %v", ev.source, ev.err)
	}
}

type closeEvent struct {
	source string
	err    *amqp.Error
}

// watchClose возвращает первое уведомление о закрытии из sources.
// Закрытый без ошибки источник тоже считается закрытием (err == nil).
func watchClose(sources map[string]<-chan *amqp.Error) <-chan closeEvent {
	out := make(chan closeEvent, len(sources))
	for name, src := range sources {
		go func(name string, src <-chan *amqp.Error) {
			err := <-src
			out <- closeEvent{source: name, err: err}
		}(name, src)
	}
	return out
}

func (c *Consumer) consumerTag(stage Stage) string {
	return c.tag + "." + stage.String()
}

func (c *Consumer) handleDelivery(ctx context.Context, b StageBinding, d amqp.Delivery) {
	log := c.logger.With(zap.String("stage", b.Stage.String()), zap.Uint64("delivery_tag", d.DeliveryTag))
	stageLabel := b.Stage.String()

	job, err := DecodeStageJob(d.Body)
	if err != nil {
		log.Error("Invalid stage job, sending to DLQ", zap.Error(err))
		metrics.StageJobsTotal.WithLabelValues(stageLabel, "invalid").Inc()
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("Failed to nack message", zap.Error(nackErr))
		}
		return
	}
	log = log.With(zap.String("order_id", job.OrderID.String()))

	attempt := attemptFromHeaders(d.Headers)
	start := time.Now()
	err = c.invoke(ctx, b, job)
	metrics.StageDuration.WithLabelValues(stageLabel).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.StageJobsTotal.WithLabelValues(stageLabel, "success").Inc()
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("Failed to ack message", zap.Error(ackErr))
		}
		return
	}

	failed := attempt + 1
	if models.IsTerminal(err) || errors.Is(err, errHandlerPanic) || c.policy.Exhausted(failed) {
		log.Error("Stage job failed permanently, sending to DLQ", zap.Int("attempts", failed), zap.Error(err))
		if b.OnDeadLetter != nil {
			b.OnDeadLetter(ctx, job, err)
		}
		metrics.StageJobsTotal.WithLabelValues(stageLabel, "dead_letter").Inc()
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("Failed to nack message", zap.Error(nackErr))
		}
		return
	}

	delay := c.policy.Delay(attempt)
	if retryErr := c.retries.ScheduleRetry(ctx, b.Stage, d.Body, failed, delay); retryErr != nil {
		log.Error("Failed to schedule retry, requeueing", zap.Error(retryErr))
		if nackErr := d.Nack(false, true); nackErr != nil {
			log.Error("Failed to nack message", zap.Error(nackErr))
		}
		return
	}
	log.Warn("Stage job failed, retry scheduled", zap.Int("attempt", failed), zap.Duration("delay", delay), zap.Error(err))
	metrics.StageJobsTotal.WithLabelValues(stageLabel, "retry").Inc()
	if ackErr := d.Ack(false); ackErr != nil {
		log.Error("Failed to ack message", zap.Error(ackErr))
	}
}

func (c *Consumer) invoke(ctx context.Context, b StageBinding, job StageJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errHandlerPanic, r)
		}
	}()
	return b.Handle(ctx, job)
}
