package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kcs-server/shared/interfaces"
	"kcs-server/shared/models"
)

const (
	createOrderQuery = `
		INSERT INTO orders (id, partner_id, idempotency_key, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING number
	`
	orderFields              = `id, number, partner_id, idempotency_key, currency, status, created_at, updated_at`
	getOrderByIDQuery        = `SELECT ` + orderFields + ` FROM orders WHERE id = $1`
	getOrderByIdempotencyKey = `SELECT ` + orderFields + ` FROM orders WHERE partner_id = $1 AND idempotency_key = $2`
	updateOrderStatusQuery   = `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`

	createBriefQuery = `
		INSERT INTO order_briefs (order_id, raw_payload, reading_level, constraints, image_descriptors)
		VALUES ($1, $2, $3, $4, $5)
	`
	getBriefQuery = `
		SELECT order_id, raw_payload, reading_level, constraints, image_descriptors
		FROM order_briefs WHERE order_id = $1
	`
	appendDescriptorsQuery = `
		UPDATE order_briefs SET image_descriptors = image_descriptors || $2::jsonb
		WHERE order_id = $1
	`
)

var _ interfaces.OrderRepository = (*pgOrderRepository)(nil)

type pgOrderRepository struct {
	logger *zap.Logger
}

// NewPgOrderRepository создает репозиторий заказов и брифов.
func NewPgOrderRepository(logger *zap.Logger) interfaces.OrderRepository {
	return &pgOrderRepository{logger: logger.Named("PgOrderRepo")}
}

func (r *pgOrderRepository) Create(ctx context.Context, querier interfaces.DBTX, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	now := order.CreatedAt
	order.UpdatedAt = now

	err := querier.QueryRow(ctx, createOrderQuery,
		order.ID, order.PartnerID, order.IdempotencyKey, order.Currency, order.Status, now,
	).Scan(&order.Number)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, models.ErrConflict) {
			r.logger.Info("Duplicate idempotency key on insert",
				zap.String("partner_id", order.PartnerID.String()),
				zap.String("idempotency_key", order.IdempotencyKey))
			return models.ErrConflict
		}
		r.logger.Error("Failed to create order", zap.String("order_id", order.ID.String()), zap.Error(err))
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *pgOrderRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := pgxscan.Get(ctx, querier, &order, getOrderByIDQuery, id); err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, mapError(err))
	}
	return &order, nil
}

func (r *pgOrderRepository) FindByIdempotencyKey(ctx context.Context, querier interfaces.DBTX, partnerID uuid.UUID, key string) (*models.Order, error) {
	var order models.Order
	if err := pgxscan.Get(ctx, querier, &order, getOrderByIdempotencyKey, partnerID, key); err != nil {
		return nil, fmt.Errorf("find order by idempotency key: %w", mapError(err))
	}
	return &order, nil
}

func (r *pgOrderRepository) UpdateStatus(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, status models.OrderStatus) error {
	tag, err := querier.Exec(ctx, updateOrderStatusQuery, id, status)
	if err != nil {
		r.logger.Error("Failed to update order status", zap.String("order_id", id.String()), zap.Error(err))
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update order status %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (r *pgOrderRepository) CreateBrief(ctx context.Context, querier interfaces.DBTX, brief *models.OrderBrief) error {
	descriptors := brief.ImageDescriptors
	if descriptors == nil {
		descriptors = []models.ImageDescriptor{}
	}
	if _, err := querier.Exec(ctx, createBriefQuery,
		brief.OrderID, brief.RawPayload, brief.ReadingLevel, brief.Constraints, descriptors,
	); err != nil {
		r.logger.Error("Failed to create brief", zap.String("order_id", brief.OrderID.String()), zap.Error(err))
		return fmt.Errorf("create brief: %w", mapError(err))
	}
	return nil
}

func (r *pgOrderRepository) GetBrief(ctx context.Context, querier interfaces.DBTX, orderID uuid.UUID) (*models.OrderBrief, error) {
	var brief models.OrderBrief
	if err := pgxscan.Get(ctx, querier, &brief, getBriefQuery, orderID); err != nil {
		return nil, fmt.Errorf("get brief %s: %w", orderID, mapError(err))
	}
	return &brief, nil
}

func (r *pgOrderRepository) AppendImageDescriptors(ctx context.Context, querier interfaces.DBTX, orderID uuid.UUID, descriptors []models.ImageDescriptor) error {
	if len(descriptors) == 0 {
		return nil
	}
	tag, err := querier.Exec(ctx, appendDescriptorsQuery, orderID, descriptors)
	if err != nil {
		r.logger.Error("Failed to append image descriptors", zap.String("order_id", orderID.String()), zap.Error(err))
		return fmt.Errorf("append image descriptors: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("append image descriptors %s: %w", orderID, models.ErrNotFound)
	}
	return nil
}
