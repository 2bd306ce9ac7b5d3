package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kcs-server/shared/interfaces"
	"kcs-server/shared/models"
)

const (
	partnerFields        = `id, api_key, name, active, signing_secret, webhook_url, webhook_secret, drive_folder_id, created_at`
	getPartnerByKeyQuery = `SELECT ` + partnerFields + ` FROM partners WHERE api_key = $1`
	getPartnerByIDQuery  = `SELECT ` + partnerFields + ` FROM partners WHERE id = $1`
)

var _ interfaces.PartnerRepository = (*pgPartnerRepository)(nil)

type pgPartnerRepository struct {
	logger *zap.Logger
}

// NewPgPartnerRepository создает репозиторий партнеров.
func NewPgPartnerRepository(logger *zap.Logger) interfaces.PartnerRepository {
	return &pgPartnerRepository{logger: logger.Named("PgPartnerRepo")}
}

func (r *pgPartnerRepository) GetByAPIKey(ctx context.Context, querier interfaces.DBTX, apiKey string) (*models.Partner, error) {
	var partner models.Partner
	if err := pgxscan.Get(ctx, querier, &partner, getPartnerByKeyQuery, apiKey); err != nil {
		err = mapError(err)
		if !errors.Is(err, models.ErrNotFound) {
			r.logger.Error("Failed to get partner by api key", zap.Error(err))
		}
		return nil, fmt.Errorf("get partner by api key: %w", err)
	}
	return &partner, nil
}

func (r *pgPartnerRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Partner, error) {
	var partner models.Partner
	if err := pgxscan.Get(ctx, querier, &partner, getPartnerByIDQuery, id); err != nil {
		err = mapError(err)
		if !errors.Is(err, models.ErrNotFound) {
			r.logger.Error("Failed to get partner by id", zap.String("partner_id", id.String()), zap.Error(err))
		}
		return nil, fmt.Errorf("get partner %s: %w", id, err)
	}
	return &partner, nil
}
