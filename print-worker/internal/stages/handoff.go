package stages

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kcs-server/print-worker/internal/drive"
	"kcs-server/shared/messaging"
	"kcs-server/shared/metrics"
	"kcs-server/shared/models"
	"kcs-server/shared/pipeline"
	"kcs-server/shared/storage"
	"kcs-server/shared/webhook"
)

// HandoffPayload - тело вебхука о готовности книги.
type HandoffPayload struct {
	OrderID        string   `json:"orderId"`
	OrderNumber    string   `json:"orderNumber"`
	Status         string   `json:"status"`
	CoverSpreadURL string   `json:"coverSpreadUrl"`
	InsideBookURL  string   `json:"insideBookUrl"`
	DriveFolderID  string   `json:"driveFolderId,omitempty"`
	DriveFileIDs   []string `json:"driveFileIds"`
	CompletedAt    string   `json:"completedAt"`
}

// HandoffStage передает готовые файлы партнеру: Drive и/или вебхук.
// Стадия финальная, преемника нет.
type HandoffStage struct {
	store    storage.ObjectStore
	drive    drive.Uploader
	webhooks webhook.Sender
	forcer   StatusForcer
	now      func() time.Time
}

var (
	_ pipeline.PrintStage            = (*HandoffStage)(nil)
	_ pipeline.PersistFailureHandler = (*HandoffStage)(nil)
)

// NewHandoffStage создает стадию. uploader == nil отключает выгрузку в Drive.
func NewHandoffStage(store storage.ObjectStore, uploader drive.Uploader, webhooks webhook.Sender, forcer StatusForcer, now func() time.Time) *HandoffStage {
	if now == nil {
		now = time.Now
	}
	return &HandoffStage{store: store, drive: uploader, webhooks: webhooks, forcer: forcer, now: now}
}

func (s *HandoffStage) Name() messaging.Stage { return messaging.StageHandoff }

func (s *HandoffStage) TargetPrintStatus() models.PrintStatus {
	return models.PrintStatusCompleted
}

func (s *HandoffStage) Requires(sc *pipeline.StageContext) error {
	if err := pipeline.RequireStory(sc); err != nil {
		return err
	}
	meta := printMetadata(sc)
	if err := requireURL(sc, "print_metadata.cover_spread_url", meta.CoverSpreadURL); err != nil {
		return err
	}
	return requireURL(sc, "print_metadata.pdf_url", meta.PDFURL)
}

func (s *HandoffStage) Process(ctx context.Context, sc *pipeline.StageContext) (result *pipeline.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.forceFailed(ctx, sc, fmt.Errorf("panic: %v", r))
			panic(r)
		}
		if err != nil {
			s.forceFailed(ctx, sc, err)
			err = fmt.Errorf("%w: %w", models.ErrHandoffAborted, err)
		}
	}()
	return s.handoff(ctx, sc)
}

// OnPersistFailure: партнер уже мог получить вебхук, поэтому повтор через очередь
// недопустим. Статус принудительно становится upload_failed, ошибка терминальная.
func (s *HandoffStage) OnPersistFailure(ctx context.Context, sc *pipeline.StageContext, err error) error {
	s.forceFailed(ctx, sc, err)
	return fmt.Errorf("%w: persist final status: %w", models.ErrHandoffAborted, err)
}

func (s *HandoffStage) handoff(ctx context.Context, sc *pipeline.StageContext) (*pipeline.Result, error) {
	meta := printMetadata(sc)
	partner := sc.Partner
	if partner == nil {
		return nil, models.NewIntegrityError(sc.Stage.String(), "partner")
	}
	hasDrive := partner.HasDriveFolder() && s.drive != nil
	hasWebhook := partner.HasWebhook()
	driveSkipped := partner.HasDriveFolder() && s.drive == nil
	if driveSkipped {
		sc.Logger.Warn("Partner has a Drive folder but Drive upload is disabled",
			zap.String("drive_folder_id", *partner.DriveFolderID),
		)
	}

	status := models.PrintStatusCompleted
	var fileIDs []string
	if hasDrive {
		fileIDs = s.uploadToDrive(ctx, sc, *partner.DriveFolderID, meta)
		status = deriveHandoffStatus(len(fileIDs), 2)
	}

	completedAt := s.now().UTC().Format(time.RFC3339)
	if hasWebhook && status != models.PrintStatusUploadFailed {
		payload := HandoffPayload{
			OrderID:        sc.Order.ID.String(),
			OrderNumber:    sc.Order.OrderNumber(),
			Status:         string(status),
			CoverSpreadURL: meta.CoverSpreadURL,
			InsideBookURL:  meta.PDFURL,
			DriveFileIDs:   fileIDs,
			CompletedAt:    completedAt,
		}
		if hasDrive {
			payload.DriveFolderID = *partner.DriveFolderID
		}
		if payload.DriveFileIDs == nil {
			payload.DriveFileIDs = []string{}
		}
		if err := s.webhooks.Send(ctx, *partner.WebhookURL, partner.WebhookSigningSecret(), payload); err != nil {
			sc.Logger.Warn("Handoff webhook failed", zap.String("url", *partner.WebhookURL), zap.Error(err))
		}
	}

	metrics.PrintHandoffTotal.WithLabelValues(string(status), metrics.BoolLabel(hasDrive), metrics.BoolLabel(hasWebhook)).Inc()
	sc.Logger.Info("Print handoff finished",
		zap.String("print_status", string(status)),
		zap.Bool("has_drive", hasDrive),
		zap.Bool("has_webhook", hasWebhook),
		zap.Int("drive_files", len(fileIDs)),
	)

	delivered := models.OrderStatusDelivered
	return &pipeline.Result{
		StoryUpdate: &models.StoryUpdate{
			PrintStatus: &status,
			PrintMetadata: &models.PrintMetadataPatch{
				DriveFileIDs: fileIDs,
				DeliveredAt:  &completedAt,
			},
		},
		OrderStatus: &delivered,
		EventType:   models.EventPrintHandedOff,
		EventPayload: map[string]any{
			"status":        string(status),
			"has_drive":     hasDrive,
			"has_webhook":   hasWebhook,
			"drive_files":   fileIDs,
			"drive_skipped": driveSkipped,
		},
	}, nil
}

// uploadToDrive выгружает разворот и PDF независимо друг от друга.
// Ошибка скачивания считается ошибкой выгрузки этого файла.
func (s *HandoffStage) uploadToDrive(ctx context.Context, sc *pipeline.StageContext, folderID string, meta models.PrintMetadata) []string {
	number := sc.Order.OrderNumber()
	files := []struct {
		name string
		url  string
	}{
		{name: number + "-cover-spread.png", url: meta.CoverSpreadURL},
		{name: number + "-inside-book.pdf", url: meta.PDFURL},
	}

	var ids []string
	for _, f := range files {
		data, err := s.store.Download(ctx, f.url)
		if err != nil {
			sc.Logger.Warn("Drive upload skipped, download failed", zap.String("file", f.name), zap.Error(err))
			continue
		}
		id, err := s.drive.Upload(ctx, folderID, f.name, storage.ContentTypeForKey(f.name), data)
		if err != nil {
			sc.Logger.Warn("Drive upload failed", zap.String("file", f.name), zap.Error(err))
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// forceFailed записывает upload_failed в обход проверки порядка статусов.
func (s *HandoffStage) forceFailed(ctx context.Context, sc *pipeline.StageContext, cause error) {
	sc.Logger.Error("Handoff aborted, forcing upload_failed", zap.Error(cause))
	if s.forcer == nil {
		return
	}
	if err := s.forcer.ForcePrintStatus(context.WithoutCancel(ctx), sc.Order.ID, models.PrintStatusUploadFailed); err != nil {
		sc.Logger.Error("Failed to force upload_failed", zap.Error(err))
	}
}

// deriveHandoffStatus: все файлы выгружены - completed, ни одного - upload_failed,
// иначе partial_upload.
func deriveHandoffStatus(uploaded, total int) models.PrintStatus {
	switch {
	case uploaded >= total:
		return models.PrintStatusCompleted
	case uploaded == 0:
		return models.PrintStatusUploadFailed
	default:
		return models.PrintStatusPartialUpload
	}
}
