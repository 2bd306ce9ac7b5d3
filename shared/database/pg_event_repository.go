package database

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kcs-server/shared/interfaces"
	"kcs-server/shared/models"
)

const (
	appendEventQuery       = `INSERT INTO events (id, order_id, type, payload, created_at) VALUES ($1, $2, $3, $4, $5)`
	listEventsByOrderQuery = `SELECT id, order_id, type, payload, created_at FROM events WHERE order_id = $1 ORDER BY created_at, id`
)

var _ interfaces.EventRepository = (*pgEventRepository)(nil)

type pgEventRepository struct {
	logger *zap.Logger
}

func NewPgEventRepository(logger *zap.Logger) interfaces.EventRepository {
	return &pgEventRepository{logger: logger.Named("PgEventRepo")}
}

func (r *pgEventRepository) Append(ctx context.Context, querier interfaces.DBTX, event *models.Event) error {
	if _, err := querier.Exec(ctx, appendEventQuery,
		event.ID, event.OrderID, event.Type, event.Payload, event.CreatedAt,
	); err != nil {
		r.logger.Error("Failed to append event",
			zap.String("order_id", event.OrderID.String()),
			zap.String("type", event.Type),
			zap.Error(err))
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (r *pgEventRepository) ListByOrder(ctx context.Context, querier interfaces.DBTX, orderID uuid.UUID) ([]*models.Event, error) {
	var events []*models.Event
	if err := pgxscan.Select(ctx, querier, &events, listEventsByOrderQuery, orderID); err != nil {
		return nil, fmt.Errorf("list events %s: %w", orderID, err)
	}
	return events, nil
}
