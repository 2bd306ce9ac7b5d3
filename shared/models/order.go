package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderStatus отражает позицию заказа в пайплайне.
type OrderStatus string

const (
	OrderStatusQueued       OrderStatus = "queued"
	OrderStatusAnalyzing    OrderStatus = "analyzing"
	OrderStatusWriting      OrderStatus = "writing"
	OrderStatusIllustrating OrderStatus = "illustrating"
	OrderStatusFinishing    OrderStatus = "finishing"
	OrderStatusDelivering   OrderStatus = "delivering"
	OrderStatusDelivered    OrderStatus = "delivered"
	OrderStatusFailed       OrderStatus = "failed"
)

// Order - одна заявка партнера и весь ее жизненный цикл.
type Order struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	Number         int64       `db:"number" json:"number"`
	PartnerID      uuid.UUID   `db:"partner_id" json:"partner_id"`
	IdempotencyKey string      `db:"idempotency_key" json:"idempotency_key"`
	Currency       string      `db:"currency" json:"currency"`
	Status         OrderStatus `db:"status" json:"status"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// OrderNumber возвращает человекочитаемый номер заказа.
func (o *Order) OrderNumber() string {
	return fmt.Sprintf("KCS-%06d", o.Number)
}

// ImageDescriptor - результат анализа одной фотографии (или текстового описания).
type ImageDescriptor struct {
	AssetID     *uuid.UUID `json:"asset_id,omitempty"`
	Role        AssetRole  `json:"role"`
	Description string     `json:"description"`
	Provider    string     `json:"provider"`
	Model       string     `json:"model"`
	FromPhoto   bool       `json:"from_photo"`
}

// BriefConstraints - ограничения, выведенные из брифа на входе.
type BriefConstraints struct {
	ExcludedTopics []string `json:"excluded_topics"`
	MaxPages       int      `json:"max_pages"`
}

// OrderBrief хранит провалидированный запрос партнера и производные данные.
type OrderBrief struct {
	OrderID          uuid.UUID         `db:"order_id" json:"order_id"`
	RawPayload       json.RawMessage   `db:"raw_payload" json:"raw_payload"`
	ReadingLevel     string            `db:"reading_level" json:"reading_level"`
	Constraints      BriefConstraints  `db:"constraints" json:"constraints"`
	ImageDescriptors []ImageDescriptor `db:"image_descriptors" json:"image_descriptors"`
}

// Partner - внешний партнер, отправляющий заказы.
type Partner struct {
	ID            uuid.UUID `db:"id" json:"id"`
	APIKey        string    `db:"api_key" json:"api_key"`
	Name          string    `db:"name" json:"name"`
	Active        bool      `db:"active" json:"active"`
	SigningSecret string    `db:"signing_secret" json:"-"`
	WebhookURL    *string   `db:"webhook_url" json:"webhook_url,omitempty"`
	WebhookSecret *string   `db:"webhook_secret" json:"-"`
	DriveFolderID *string   `db:"drive_folder_id" json:"drive_folder_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// HasWebhook сообщает, настроен ли у партнера вебхук.
func (p *Partner) HasWebhook() bool {
	return p.WebhookURL != nil && *p.WebhookURL != ""
}

// WebhookSigningSecret - секрет подписи исходящих вебхуков; без отдельного
// секрета используется секрет подписи запросов.
func (p *Partner) WebhookSigningSecret() string {
	if p.WebhookSecret != nil && *p.WebhookSecret != "" {
		return *p.WebhookSecret
	}
	return p.SigningSecret
}

// HasDriveFolder сообщает, настроена ли папка для выгрузки.
func (p *Partner) HasDriveFolder() bool {
	return p.DriveFolderID != nil && *p.DriveFolderID != ""
}
