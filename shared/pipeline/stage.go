package pipeline

import (
	"context"

	"go.uber.org/zap"

	"kcs-server/shared/messaging"
	"kcs-server/shared/models"
)

// StageContext - все, что стадия читает из хранилища. Заполняется Runner-ом.
type StageContext struct {
	Stage   messaging.Stage
	Order   *models.Order
	Brief   *models.OrderBrief
	Partner *models.Partner
	// Story равна nil до первой стадии, создающей историю.
	Story  *models.Story
	Assets []*models.Asset
	Logger *zap.Logger
}

// Result - единица изменений стадии. Runner сохраняет ее одной транзакцией.
type Result struct {
	StoryUpdate *models.StoryUpdate
	// OrderStatus переопределяет статус заказа, выведенный из стадии.
	OrderStatus *models.OrderStatus
	Version     *models.StoryVersion
	Assets      []*models.Asset
	Descriptors []models.ImageDescriptor
	// EventPayload попадает в событие stage.completed (или EventType, если задан).
	EventType    string
	EventPayload map[string]any
}

// Stage - контракт одной стадии пайплайна.
type Stage interface {
	Name() messaging.Stage
	// Requires проверяет артефакты предыдущих стадий. Отсутствие - models.IntegrityError.
	Requires(sc *StageContext) error
	Process(ctx context.Context, sc *StageContext) (*Result, error)
}

// PrintStage - стадия печатной подцепочки. Если целевой статус уже достигнут,
// задание подтверждается без повторной работы и без постановки следующей стадии.
type PrintStage interface {
	Stage
	TargetPrintStatus() models.PrintStatus
}

// PersistFailureHandler реализуют стадии с внешними последствиями (выгрузка, вебхук),
// которые уже случились к моменту записи результата. Если запись не удалась, Runner
// вызывает OnPersistFailure и возвращает ее ошибку вместо исходной.
type PersistFailureHandler interface {
	OnPersistFailure(ctx context.Context, sc *StageContext, err error) error
}

// OrderStatusFor - статус заказа, соответствующий стадии.
func OrderStatusFor(stage messaging.Stage) models.OrderStatus {
	switch stage {
	case messaging.StageImageAnalysis:
		return models.OrderStatusAnalyzing
	case messaging.StageAssets, messaging.StageAssetsRefine:
		return models.OrderStatusIllustrating
	case messaging.StagePackaging, messaging.StagePolish,
		messaging.StageCover, messaging.StageInterior, messaging.StageCMYK, messaging.StageAssembly:
		return models.OrderStatusFinishing
	case messaging.StageHandoff:
		return models.OrderStatusDelivering
	default:
		return models.OrderStatusWriting
	}
}

// RequireStory - общий Requires для стадий, которым нужна история.
func RequireStory(sc *StageContext) error {
	if sc.Story == nil {
		return models.NewIntegrityError(sc.Stage.String(), "story")
	}
	return nil
}

// RequireText проверяет, что текстовый артефакт истории заполнен.
func RequireText(sc *StageContext, artifact string, value *string) error {
	if err := RequireStory(sc); err != nil {
		return err
	}
	if value == nil || *value == "" {
		return models.NewIntegrityError(sc.Stage.String(), artifact)
	}
	return nil
}
