package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"kcs-server/shared/models"
)

// PartnerRepository - чтение партнеров.
type PartnerRepository interface {
	GetByAPIKey(ctx context.Context, querier DBTX, apiKey string) (*models.Partner, error)
	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.Partner, error)
}

// OrderRepository - заказы и брифы.
type OrderRepository interface {
	// Create вставляет заказ. Дубликат (partner, idempotency_key) возвращает models.ErrConflict.
	Create(ctx context.Context, querier DBTX, order *models.Order) error
	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.Order, error)
	FindByIdempotencyKey(ctx context.Context, querier DBTX, partnerID uuid.UUID, key string) (*models.Order, error)
	UpdateStatus(ctx context.Context, querier DBTX, id uuid.UUID, status models.OrderStatus) error

	CreateBrief(ctx context.Context, querier DBTX, brief *models.OrderBrief) error
	GetBrief(ctx context.Context, querier DBTX, orderID uuid.UUID) (*models.OrderBrief, error)
	// AppendImageDescriptors дописывает дескрипторы к брифу.
	AppendImageDescriptors(ctx context.Context, querier DBTX, orderID uuid.UUID, descriptors []models.ImageDescriptor) error
}

// AssetRepository - неизменяемые ассеты.
type AssetRepository interface {
	Create(ctx context.Context, querier DBTX, asset *models.Asset) error
	ListByOrder(ctx context.Context, querier DBTX, orderID uuid.UUID) ([]*models.Asset, error)
}

// StoryRepository - история и ее версии.
type StoryRepository interface {
	// Create создает пустую историю; повторный вызов для того же заказа ничего не делает.
	Create(ctx context.Context, querier DBTX, orderID uuid.UUID) error
	GetByOrderID(ctx context.Context, querier DBTX, orderID uuid.UUID) (*models.Story, error)
	// Apply применяет типизированное частичное обновление.
	// Переход print_status проверяется под блокировкой строки.
	Apply(ctx context.Context, querier DBTX, orderID uuid.UUID, update *models.StoryUpdate) error
	// ForcePrintStatus записывает финальный статус без проверки порядка.
	// Используется только для аварийного upload_failed в handoff.
	ForcePrintStatus(ctx context.Context, querier DBTX, orderID uuid.UUID, status models.PrintStatus) error
	AddVersion(ctx context.Context, querier DBTX, version *models.StoryVersion) error
}

// EventRepository - журнал событий и outbox.
type EventRepository interface {
	Append(ctx context.Context, querier DBTX, event *models.Event) error
	ListByOrder(ctx context.Context, querier DBTX, orderID uuid.UUID) ([]*models.Event, error)
}

// OutboxRepository - обязательства по вебхукам.
type OutboxRepository interface {
	Create(ctx context.Context, querier DBTX, entry *models.WebhookOutbox) error
	// ClaimDue блокирует (SKIP LOCKED) готовые к отправке записи.
	ClaimDue(ctx context.Context, querier DBTX, now time.Time, limit int) ([]*models.WebhookOutbox, error)
	MarkDelivered(ctx context.Context, querier DBTX, id uuid.UUID, at time.Time) error
	MarkAttemptFailed(ctx context.Context, querier DBTX, id uuid.UUID, errMsg string, nextAttemptAt time.Time, terminal bool) error
}
