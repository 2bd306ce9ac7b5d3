package database

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kcs-server/shared/interfaces"
	"kcs-server/shared/models"
)

const (
	createOutboxQuery = `
		INSERT INTO webhook_outbox (id, order_id, partner_id, event_type, payload, status, attempts, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)
	`
	claimDueOutboxQuery = `
		SELECT id, order_id, partner_id, event_type, payload, status, attempts, next_attempt_at, last_error, created_at, delivered_at
		FROM webhook_outbox
		WHERE status = 'pending' AND next_attempt_at <= $1
		ORDER BY next_attempt_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	markOutboxDeliveredQuery = `
		UPDATE webhook_outbox SET status = 'delivered', delivered_at = $2, attempts = attempts + 1, last_error = NULL
		WHERE id = $1
	`
	markOutboxFailedQuery = `
		UPDATE webhook_outbox SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3,
			status = CASE WHEN $4 THEN 'failed' ELSE status END
		WHERE id = $1
	`
)

var _ interfaces.OutboxRepository = (*pgOutboxRepository)(nil)

type pgOutboxRepository struct {
	logger *zap.Logger
}

func NewPgOutboxRepository(logger *zap.Logger) interfaces.OutboxRepository {
	return &pgOutboxRepository{logger: logger.Named("PgOutboxRepo")}
}

func (r *pgOutboxRepository) Create(ctx context.Context, querier interfaces.DBTX, entry *models.WebhookOutbox) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Status == "" {
		entry.Status = models.OutboxStatusPending
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.NextAttemptAt = entry.CreatedAt
	if _, err := querier.Exec(ctx, createOutboxQuery,
		entry.ID, entry.OrderID, entry.PartnerID, entry.EventType, entry.Payload, entry.Status, entry.CreatedAt,
	); err != nil {
		r.logger.Error("Failed to create outbox entry", zap.String("order_id", entry.OrderID.String()), zap.Error(err))
		return fmt.Errorf("create outbox entry: %w", err)
	}
	return nil
}

func (r *pgOutboxRepository) ClaimDue(ctx context.Context, querier interfaces.DBTX, now time.Time, limit int) ([]*models.WebhookOutbox, error) {
	var entries []*models.WebhookOutbox
	if err := pgxscan.Select(ctx, querier, &entries, claimDueOutboxQuery, now, limit); err != nil {
		return nil, fmt.Errorf("claim due outbox entries: %w", err)
	}
	return entries, nil
}

func (r *pgOutboxRepository) MarkDelivered(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, at time.Time) error {
	if _, err := querier.Exec(ctx, markOutboxDeliveredQuery, id, at); err != nil {
		return fmt.Errorf("mark outbox %s delivered: %w", id, err)
	}
	return nil
}

func (r *pgOutboxRepository) MarkAttemptFailed(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, errMsg string, nextAttemptAt time.Time, terminal bool) error {
	if _, err := querier.Exec(ctx, markOutboxFailedQuery, id, errMsg, nextAttemptAt, terminal); err != nil {
		return fmt.Errorf("mark outbox %s attempt failed: %w", id, err)
	}
	return nil
}
