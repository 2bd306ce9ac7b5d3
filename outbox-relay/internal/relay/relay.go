// Package relay доставляет записи webhook_outbox партнерам.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kcs-server/shared/interfaces"
	"kcs-server/shared/messaging"
	"kcs-server/shared/metrics"
	"kcs-server/shared/models"
)

// Статусы попытки доставки для метрики outbox_deliveries_total.
const (
	DeliveryDelivered = "delivered"
	DeliveryRetry     = "retry"
	DeliveryFailed    = "failed"
)

// maxErrorLen ограничивает last_error.
const maxErrorLen = 512

// errNoWebhook - у партнера больше нет вебхука; повторять бессмысленно.
var errNoWebhook = errors.New("partner has no webhook configured")

// RawSender отправляет уже сериализованное тело с подписью.
type RawSender interface {
	SendRaw(ctx context.Context, url, secret string, body []byte) error
}

// Stats - итог одного прохода.
type Stats struct {
	Claimed   int
	Delivered int
	Retried   int
	Failed    int
}

type Deps struct {
	Tx        interfaces.TxRunner
	Partners  interfaces.PartnerRepository
	Outbox    interfaces.OutboxRepository
	Sender    RawSender
	Policy    messaging.RetryPolicy
	BatchSize int
	Now       func() time.Time
	Logger    *zap.Logger
}

type Relay struct {
	deps   Deps
	logger *zap.Logger
}

func New(deps Deps) *Relay {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = 50
	}
	return &Relay{deps: deps, logger: deps.Logger.Named("OutboxRelay")}
}

// Drain забирает готовые записи под блокировкой (SKIP LOCKED), отправляет их и
// фиксирует результат в той же транзакции. Параллельные relay не берут одну запись дважды.
func (r *Relay) Drain(ctx context.Context) (Stats, error) {
	var stats Stats
	err := r.deps.Tx.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		stats = Stats{}
		now := r.deps.Now().UTC()
		entries, err := r.deps.Outbox.ClaimDue(ctx, tx, now, r.deps.BatchSize)
		if err != nil {
			return err
		}
		stats.Claimed = len(entries)

		for _, entry := range entries {
			outcome, err := r.deliver(ctx, tx, entry, now)
			if err != nil {
				return err
			}
			metrics.OutboxDeliveriesTotal.WithLabelValues(outcome).Inc()
			switch outcome {
			case DeliveryDelivered:
				stats.Delivered++
			case DeliveryRetry:
				stats.Retried++
			default:
				stats.Failed++
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("drain outbox: %w", err)
	}
	if stats.Claimed > 0 {
		r.logger.Info("Outbox drained",
			zap.Int("claimed", stats.Claimed),
			zap.Int("delivered", stats.Delivered),
			zap.Int("retried", stats.Retried),
			zap.Int("failed", stats.Failed),
		)
	}
	return stats, nil
}

// deliver возвращает исход попытки. Ошибка означает сбой записи результата в базу.
func (r *Relay) deliver(ctx context.Context, tx interfaces.DBTX, entry *models.WebhookOutbox, now time.Time) (string, error) {
	log := r.logger.With(
		zap.String("outbox_id", entry.ID.String()),
		zap.String("order_id", entry.OrderID.String()),
		zap.String("event_type", entry.EventType),
		zap.Int("attempt", entry.Attempts+1),
	)

	sendErr := r.send(ctx, tx, entry)
	if sendErr == nil {
		if err := r.deps.Outbox.MarkDelivered(ctx, tx, entry.ID, now); err != nil {
			return "", err
		}
		log.Info("Webhook delivered")
		return DeliveryDelivered, nil
	}

	failed := entry.Attempts + 1
	terminal := errors.Is(sendErr, errNoWebhook) || r.deps.Policy.Exhausted(failed)
	next := now.Add(r.deps.Policy.Delay(entry.Attempts))
	if err := r.deps.Outbox.MarkAttemptFailed(ctx, tx, entry.ID, truncate(sendErr.Error()), next, terminal); err != nil {
		return "", err
	}
	if terminal {
		log.Error("Webhook delivery failed permanently", zap.Error(sendErr))
		return DeliveryFailed, nil
	}
	log.Warn("Webhook delivery failed, rescheduled", zap.Time("next_attempt_at", next), zap.Error(sendErr))
	return DeliveryRetry, nil
}

func (r *Relay) send(ctx context.Context, tx interfaces.DBTX, entry *models.WebhookOutbox) error {
	partner, err := r.deps.Partners.GetByID(ctx, tx, entry.PartnerID)
	if errors.Is(err, models.ErrNotFound) {
		return errNoWebhook
	}
	if err != nil {
		return fmt.Errorf("load partner: %w", err)
	}
	if !partner.HasWebhook() {
		return errNoWebhook
	}
	return r.deps.Sender.SendRaw(ctx, *partner.WebhookURL, partner.WebhookSigningSecret(), entry.Payload)
}

func truncate(s string) string {
	if len(s) <= maxErrorLen {
		return s
	}
	return s[:maxErrorLen]
}
