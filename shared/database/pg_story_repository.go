package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kcs-server/shared/interfaces"
	"kcs-server/shared/models"
)

const (
	createStoryQuery = `
		INSERT INTO stories (order_id) VALUES ($1)
		ON CONFLICT (order_id) DO NOTHING
	`
	storyFields = `
		order_id, emotional_profile, outline, draft_text, revised_text, final_text,
		asset_plan, print_status, print_metadata, updated_at
	`
	getStoryQuery           = `SELECT ` + storyFields + ` FROM stories WHERE order_id = $1`
	lockPrintStatusQuery    = `SELECT print_status FROM stories WHERE order_id = $1 FOR UPDATE`
	forcePrintStatusQuery   = `UPDATE stories SET print_status = $2, updated_at = NOW() WHERE order_id = $1`
	createStoryVersionQuery = `INSERT INTO story_versions (id, order_id, label, text, created_at) VALUES ($1, $2, $3, $4, $5)`
)

var _ interfaces.StoryRepository = (*pgStoryRepository)(nil)

type pgStoryRepository struct {
	logger *zap.Logger
}

// NewPgStoryRepository создает репозиторий историй.
func NewPgStoryRepository(logger *zap.Logger) interfaces.StoryRepository {
	return &pgStoryRepository{logger: logger.Named("PgStoryRepo")}
}

func (r *pgStoryRepository) Create(ctx context.Context, querier interfaces.DBTX, orderID uuid.UUID) error {
	if _, err := querier.Exec(ctx, createStoryQuery, orderID); err != nil {
		r.logger.Error("Failed to create story", zap.String("order_id", orderID.String()), zap.Error(err))
		return fmt.Errorf("create story: %w", mapError(err))
	}
	return nil
}

func (r *pgStoryRepository) GetByOrderID(ctx context.Context, querier interfaces.DBTX, orderID uuid.UUID) (*models.Story, error) {
	var story models.Story
	if err := pgxscan.Get(ctx, querier, &story, getStoryQuery, orderID); err != nil {
		return nil, fmt.Errorf("get story %s: %w", orderID, mapError(err))
	}
	return &story, nil
}

// Apply строит UPDATE только по заданным полям. JSON-поля мержатся на уровне
// верхнеуровневых ключей (jsonb ||), поэтому секции других стадий сохраняются.
func (r *pgStoryRepository) Apply(ctx context.Context, querier interfaces.DBTX, orderID uuid.UUID, update *models.StoryUpdate) error {
	if update.IsEmpty() {
		return nil
	}
	log := r.logger.With(zap.String("order_id", orderID.String()))

	if update.PrintStatus != nil {
		var current *models.PrintStatus
		if err := querier.QueryRow(ctx, lockPrintStatusQuery, orderID).Scan(&current); err != nil {
			return fmt.Errorf("lock story %s: %w", orderID, mapError(err))
		}
		from := models.PrintStatusNone
		if current != nil {
			from = *current
		}
		if err := models.ValidateTransition(from, *update.PrintStatus); err != nil {
			log.Error("Rejected print status transition",
				zap.String("from", string(from)),
				zap.String("to", string(*update.PrintStatus)))
			return err
		}
	}

	query, args, err := buildStoryUpdate(orderID, update)
	if err != nil {
		return err
	}
	tag, err := querier.Exec(ctx, query, args...)
	if err != nil {
		log.Error("Failed to apply story update", zap.Error(err))
		return fmt.Errorf("apply story update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("apply story update %s: %w", orderID, models.ErrNotFound)
	}
	return nil
}

func (r *pgStoryRepository) ForcePrintStatus(ctx context.Context, querier interfaces.DBTX, orderID uuid.UUID, status models.PrintStatus) error {
	if _, err := querier.Exec(ctx, forcePrintStatusQuery, orderID, status); err != nil {
		r.logger.Error("Failed to force print status",
			zap.String("order_id", orderID.String()),
			zap.String("status", string(status)),
			zap.Error(err))
		return fmt.Errorf("force print status: %w", err)
	}
	return nil
}

func (r *pgStoryRepository) AddVersion(ctx context.Context, querier interfaces.DBTX, version *models.StoryVersion) error {
	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}
	if _, err := querier.Exec(ctx, createStoryVersionQuery,
		version.ID, version.OrderID, version.Label, version.Text, version.CreatedAt,
	); err != nil {
		r.logger.Error("Failed to add story version",
			zap.String("order_id", version.OrderID.String()),
			zap.String("label", version.Label),
			zap.Error(err))
		return fmt.Errorf("add story version: %w", err)
	}
	return nil
}

// buildStoryUpdate собирает SQL для частичного обновления. Вынесено для тестов.
func buildStoryUpdate(orderID uuid.UUID, update *models.StoryUpdate) (string, []any, error) {
	sets := make([]string, 0, 8)
	args := []any{orderID}
	add := func(expr string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if update.EmotionalProfile != nil {
		add("emotional_profile = $%d", *update.EmotionalProfile)
	}
	if update.Outline != nil {
		add("outline = $%d", *update.Outline)
	}
	if update.DraftText != nil {
		add("draft_text = $%d", *update.DraftText)
	}
	if update.RevisedText != nil {
		add("revised_text = $%d", *update.RevisedText)
	}
	if update.FinalText != nil {
		add("final_text = $%d", *update.FinalText)
	}
	if update.AssetPlan != nil {
		patch, err := json.Marshal(update.AssetPlan)
		if err != nil {
			return "", nil, fmt.Errorf("marshal asset plan patch: %w", err)
		}
		add("asset_plan = asset_plan || $%d::jsonb", string(patch))
	}
	if update.PrintStatus != nil {
		add("print_status = $%d", string(*update.PrintStatus))
	}
	if update.PrintMetadata != nil {
		patch, err := json.Marshal(update.PrintMetadata)
		if err != nil {
			return "", nil, fmt.Errorf("marshal print metadata patch: %w", err)
		}
		add("print_metadata = print_metadata || $%d::jsonb", string(patch))
	}
	sets = append(sets, "updated_at = NOW()")

	return "UPDATE stories SET " + strings.Join(sets, ", ") + " WHERE order_id = $1", args, nil
}
