package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Типы событий аудита.
const (
	EventOrderCreated   = "order.created"
	EventStageCompleted = "stage.completed"
	EventStageFailed    = "stage.failed"
	EventPrintHandedOff = "print.handoff"
)

// Event - строка журнала аудита, одна на значимый переход состояния.
type Event struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	OrderID   uuid.UUID       `db:"order_id" json:"order_id"`
	Type      string          `db:"type" json:"type"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// NewEvent сериализует payload и проставляет id/время.
func NewEvent(orderID uuid.UUID, typ string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.New(),
		OrderID:   orderID,
		Type:      typ,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusDelivered OutboxStatus = "delivered"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// WebhookOutbox - обязательство уведомить партнера.
type WebhookOutbox struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	OrderID       uuid.UUID       `db:"order_id" json:"order_id"`
	PartnerID     uuid.UUID       `db:"partner_id" json:"partner_id"`
	EventType     string          `db:"event_type" json:"event_type"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	Status        OutboxStatus    `db:"status" json:"status"`
	Attempts      int             `db:"attempts" json:"attempts"`
	NextAttemptAt time.Time       `db:"next_attempt_at" json:"next_attempt_at"`
	LastError     *string         `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	DeliveredAt   *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
}
