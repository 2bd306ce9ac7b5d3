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
	createAssetQuery = `
		INSERT INTO assets (id, order_id, type, url, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	listAssetsByOrderQuery = `
		SELECT id, order_id, type, url, metadata, created_at
		FROM assets WHERE order_id = $1 ORDER BY created_at, id
	`
)

var _ interfaces.AssetRepository = (*pgAssetRepository)(nil)

// Ассеты неизменяемы: в репозитории нет UPDATE.
type pgAssetRepository struct {
	logger *zap.Logger
}

func NewPgAssetRepository(logger *zap.Logger) interfaces.AssetRepository {
	return &pgAssetRepository{logger: logger.Named("PgAssetRepo")}
}

func (r *pgAssetRepository) Create(ctx context.Context, querier interfaces.DBTX, asset *models.Asset) error {
	if _, err := querier.Exec(ctx, createAssetQuery,
		asset.ID, asset.OrderID, asset.Type, asset.URL, asset.Metadata, asset.CreatedAt,
	); err != nil {
		r.logger.Error("Failed to create asset",
			zap.String("order_id", asset.OrderID.String()),
			zap.String("role", string(asset.Metadata.Role)),
			zap.Error(err))
		return fmt.Errorf("create asset: %w", mapError(err))
	}
	return nil
}

func (r *pgAssetRepository) ListByOrder(ctx context.Context, querier interfaces.DBTX, orderID uuid.UUID) ([]*models.Asset, error) {
	var assets []*models.Asset
	if err := pgxscan.Select(ctx, querier, &assets, listAssetsByOrderQuery, orderID); err != nil {
		return nil, fmt.Errorf("list assets %s: %w", orderID, err)
	}
	return assets, nil
}
