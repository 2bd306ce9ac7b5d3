package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kcs-server/shared/interfaces"
	"kcs-server/shared/messaging"
	"kcs-server/shared/models"
)

// Deps - зависимости Runner.
type Deps struct {
	DB        interfaces.DBTX
	Tx        interfaces.TxRunner
	Partners  interfaces.PartnerRepository
	Orders    interfaces.OrderRepository
	Assets    interfaces.AssetRepository
	Stories   interfaces.StoryRepository
	Events    interfaces.EventRepository
	Publisher messaging.Publisher
	Logger    *zap.Logger
}

// Runner одинаково для всех стадий выполняет контракт:
// загрузка -> проверка артефактов -> пропуск выполненного -> Process -> одна транзакция с публикацией преемника.
type Runner struct {
	deps   Deps
	logger *zap.Logger
}

func NewRunner(deps Deps) *Runner {
	return &Runner{deps: deps, logger: deps.Logger.Named("PipelineRunner")}
}

// Binding связывает стадию с consumer-ом.
func (r *Runner) Binding(stage Stage, concurrency int) messaging.StageBinding {
	return messaging.StageBinding{
		Stage:       stage.Name(),
		Concurrency: concurrency,
		Handle: func(ctx context.Context, job messaging.StageJob) error {
			return r.Run(ctx, stage, job)
		},
		OnDeadLetter: func(ctx context.Context, job messaging.StageJob, cause error) {
			if err := r.MarkFailed(ctx, stage.Name(), job.OrderID, cause); err != nil {
				r.logger.Error("Failed to mark order as failed",
					zap.String("order_id", job.OrderID.String()),
					zap.String("stage", stage.Name().String()),
					zap.Error(err),
				)
			}
		},
	}
}

// Run выполняет одну стадию для заказа.
func (r *Runner) Run(ctx context.Context, stage Stage, job messaging.StageJob) error {
	name := stage.Name()
	log := r.logger.With(zap.String("order_id", job.OrderID.String()), zap.String("stage", name.String()))

	sc, err := r.load(ctx, name, job.OrderID, log)
	if err != nil {
		log.Error("Failed to load stage context", zap.Error(err))
		return err
	}

	if err := stage.Requires(sc); err != nil {
		log.Error("Stage prerequisites are missing", zap.Error(err))
		return err
	}

	if ps, ok := stage.(PrintStage); ok {
		current := sc.Story.CurrentPrintStatus()
		if current.Reached(ps.TargetPrintStatus()) {
			log.Info("Print status already reached, skipping",
				zap.String("print_status", string(current)),
				zap.String("target", string(ps.TargetPrintStatus())),
			)
			return nil
		}
	}

	log.Info("Processing stage")
	result, err := stage.Process(ctx, sc)
	if err != nil {
		log.Error("Stage processing failed", zap.Error(err))
		return err
	}
	if result == nil {
		result = &Result{}
	}

	if err := r.persist(ctx, sc, result, job); err != nil {
		log.Error("Failed to persist stage result", zap.Error(err))
		if h, ok := stage.(PersistFailureHandler); ok {
			return h.OnPersistFailure(ctx, sc, err)
		}
		return err
	}
	log.Info("Stage completed")
	return nil
}

func (r *Runner) load(ctx context.Context, stage messaging.Stage, orderID uuid.UUID, log *zap.Logger) (*StageContext, error) {
	order, err := r.deps.Orders.GetByID(ctx, r.deps.DB, orderID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewIntegrityError(stage.String(), "order")
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	brief, err := r.deps.Orders.GetBrief(ctx, r.deps.DB, orderID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewIntegrityError(stage.String(), "brief")
		}
		return nil, fmt.Errorf("load brief: %w", err)
	}
	partner, err := r.deps.Partners.GetByID(ctx, r.deps.DB, order.PartnerID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewIntegrityError(stage.String(), "partner")
		}
		return nil, fmt.Errorf("load partner: %w", err)
	}
	story, err := r.deps.Stories.GetByOrderID(ctx, r.deps.DB, orderID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("load story: %w", err)
		}
		story = nil
	}
	assets, err := r.deps.Assets.ListByOrder(ctx, r.deps.DB, orderID)
	if err != nil {
		return nil, fmt.Errorf("load assets: %w", err)
	}

	return &StageContext{
		Stage:   stage,
		Order:   order,
		Brief:   brief,
		Partner: partner,
		Story:   story,
		Assets:  assets,
		Logger:  log,
	}, nil
}

func (r *Runner) persist(ctx context.Context, sc *StageContext, result *Result, job messaging.StageJob) error {
	orderID := sc.Order.ID

	eventType := result.EventType
	if eventType == "" {
		eventType = models.EventStageCompleted
	}
	payload := map[string]any{"stage": sc.Stage.String()}
	for k, v := range result.EventPayload {
		payload[k] = v
	}
	event, err := models.NewEvent(orderID, eventType, payload)
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}

	status := OrderStatusFor(sc.Stage)
	if result.OrderStatus != nil {
		status = *result.OrderStatus
	}

	return r.deps.Tx.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		if !result.StoryUpdate.IsEmpty() {
			if sc.Story == nil {
				if err := r.deps.Stories.Create(ctx, tx, orderID); err != nil {
					return err
				}
			}
			if err := r.deps.Stories.Apply(ctx, tx, orderID, result.StoryUpdate); err != nil {
				return err
			}
		}
		if status != sc.Order.Status {
			if err := r.deps.Orders.UpdateStatus(ctx, tx, orderID, status); err != nil {
				return err
			}
		}
		if len(result.Descriptors) > 0 {
			if err := r.deps.Orders.AppendImageDescriptors(ctx, tx, orderID, result.Descriptors); err != nil {
				return err
			}
		}
		if result.Version != nil {
			if err := r.deps.Stories.AddVersion(ctx, tx, result.Version); err != nil {
				return err
			}
		}
		for _, asset := range result.Assets {
			if err := r.deps.Assets.Create(ctx, tx, asset); err != nil {
				return err
			}
		}
		if err := r.deps.Events.Append(ctx, tx, event); err != nil {
			return err
		}
		if next, ok := sc.Stage.Next(); ok {
			if err := r.deps.Publisher.PublishStage(ctx, next, messaging.StageJob{OrderID: job.OrderID}); err != nil {
				return fmt.Errorf("enqueue %s: %w", next, err)
			}
		}
		return nil
	})
}

// MarkFailed фиксирует fail-stop: заказ failed и событие stage.failed.
func (r *Runner) MarkFailed(ctx context.Context, stage messaging.Stage, orderID uuid.UUID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	event, err := models.NewEvent(orderID, models.EventStageFailed, map[string]any{
		"stage": stage.String(),
		"error": msg,
	})
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}

	err = r.deps.Tx.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		if err := r.deps.Orders.UpdateStatus(ctx, tx, orderID, models.OrderStatusFailed); err != nil {
			return err
		}
		return r.deps.Events.Append(ctx, tx, event)
	})
	if errors.Is(err, models.ErrNotFound) {
		r.logger.Warn("Dead-lettered job references unknown order", zap.String("order_id", orderID.String()))
		return nil
	}
	return err
}
