// Package stages - печатная подцепочка: обложка, разворот, CMYK, сборка PDF и handoff.
package stages

import (
	"context"
	"time"

	"github.com/google/uuid"

	"kcs-server/print-worker/internal/config"
	"kcs-server/print-worker/internal/drive"
	"kcs-server/shared/interfaces"
	"kcs-server/shared/models"
	"kcs-server/shared/pipeline"
	"kcs-server/shared/provider"
	"kcs-server/shared/storage"
	"kcs-server/shared/webhook"
)

// Маршруты вспомогательных vision-запросов.
const (
	RouteInteriorScore   = "story.interior.score"
	RouteAssemblyOverlay = "story.assembly.overlay"
)

// Options - общие параметры печатных стадий.
type Options struct {
	Layouts    config.Layouts
	ICCProfile string
	CaliperMM  float64
	FanOut     int
	Candidates int
	PromoPage  bool
	PromoText  string
	ImageSize  string
}

func (o Options) fanOut() int {
	if o.FanOut <= 0 {
		return 1
	}
	return o.FanOut
}

func (o Options) candidates() int {
	if o.Candidates <= 0 {
		return 1
	}
	return o.Candidates
}

// StatusForcer записывает финальный print_status в обход проверки порядка.
type StatusForcer interface {
	ForcePrintStatus(ctx context.Context, orderID uuid.UUID, status models.PrintStatus) error
}

type storyForcer struct {
	db      interfaces.DBTX
	stories interfaces.StoryRepository
}

// NewStoryForcer - StatusForcer поверх StoryRepository.ForcePrintStatus.
func NewStoryForcer(db interfaces.DBTX, stories interfaces.StoryRepository) StatusForcer {
	return &storyForcer{db: db, stories: stories}
}

func (f *storyForcer) ForcePrintStatus(ctx context.Context, orderID uuid.UUID, status models.PrintStatus) error {
	return f.stories.ForcePrintStatus(ctx, f.db, orderID, status)
}

// Deps - зависимости печатных стадий.
type Deps struct {
	Caller provider.Caller
	Store  storage.ObjectStore
	// Drive равен nil, если выгрузка в Drive отключена.
	Drive    drive.Uploader
	Webhooks webhook.Sender
	Forcer   StatusForcer
	Options  Options
	Now      func() time.Time
}

// All возвращает стадии в порядке цепочки.
func All(deps Deps) []pipeline.Stage {
	return []pipeline.Stage{
		NewCoverStage(deps.Caller, deps.Store, deps.Options),
		NewInteriorStage(deps.Caller, deps.Store, deps.Options),
		NewCMYKStage(deps.Store, deps.Options),
		NewAssemblyStage(deps.Caller, deps.Store, deps.Options),
		NewHandoffStage(deps.Store, deps.Drive, deps.Webhooks, deps.Forcer, deps.Now),
	}
}

func printMetadata(sc *pipeline.StageContext) models.PrintMetadata {
	if sc.Story == nil {
		return models.PrintMetadata{}
	}
	return sc.Story.PrintMetadata
}

func requireURL(sc *pipeline.StageContext, artifact, value string) error {
	if value == "" {
		return models.NewIntegrityError(sc.Stage.String(), artifact)
	}
	return nil
}

func finalParagraphs(sc *pipeline.StageContext) []string {
	if sc.Story == nil || sc.Story.FinalText == nil {
		return nil
	}
	return models.SplitParagraphs(*sc.Story.FinalText, models.MaxInteriorPages)
}

// dedication берется из исходного тела заказа; ошибка разбора означает "без посвящения".
func dedication(sc *pipeline.StageContext) string {
	if sc.Brief == nil {
		return ""
	}
	payload, err := sc.Brief.Payload()
	if err != nil {
		return ""
	}
	return payload.Brief.Dedication
}

func bookTitle(sc *pipeline.StageContext) string {
	if sc.Story != nil && sc.Story.AssetPlan.Packaging != nil && sc.Story.AssetPlan.Packaging.Title != "" {
		return sc.Story.AssetPlan.Packaging.Title
	}
	if sc.Brief != nil {
		if payload, err := sc.Brief.Payload(); err == nil && payload.Brief.Child.Name != "" {
			return payload.Brief.Child.Name + "'s Story"
		}
	}
	return "My Story"
}
