// Package service - прием заказов партнеров: аутентификация, подпись, валидация
// и атомарное создание заказа с постановкой первой стадии.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kcs-server/intake-gateway/internal/cache"
	"kcs-server/shared/interfaces"
	"kcs-server/shared/messaging"
	"kcs-server/shared/metrics"
	"kcs-server/shared/models"
	"kcs-server/shared/webhook"
)

// Исходы приема для метрики intake_orders_total.
const (
	OutcomeAccepted     = "accepted"
	OutcomeInvalid      = "invalid"
	OutcomeUnauthorized = "unauthorized"
	OutcomeConflict     = "conflict"
	OutcomeError        = "error"
)

// SubmitRequest - сырые данные запроса партнера.
type SubmitRequest struct {
	APIKey         string
	IdempotencyKey string
	Timestamp      string
	Signature      string
	Body           []byte
}

// Accepted - ответ на принятый заказ.
type Accepted struct {
	OrderID    uuid.UUID          `json:"order_id"`
	PartnerID  uuid.UUID          `json:"-"`
	Status     models.OrderStatus `json:"status"`
	AcceptedAt time.Time          `json:"accepted_at"`
}

// OrderCreatedPayload - тело события order.created и уведомления партнеру.
type OrderCreatedPayload struct {
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
	AcceptedAt  string `json:"acceptedAt"`
}

// Deps - зависимости IntakeService.
type Deps struct {
	DB        interfaces.DBTX
	Tx        interfaces.TxRunner
	Partners  cache.PartnerLookup
	Orders    interfaces.OrderRepository
	Assets    interfaces.AssetRepository
	Events    interfaces.EventRepository
	Outbox    interfaces.OutboxRepository
	Publisher messaging.Publisher
	Skew      time.Duration
	Now       func() time.Time
	Logger    *zap.Logger
}

type IntakeService struct {
	deps     Deps
	validate *validator.Validate
	logger   *zap.Logger
}

func NewIntakeService(deps Deps) *IntakeService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Skew <= 0 {
		deps.Skew = 5 * time.Minute
	}
	return &IntakeService{
		deps:     deps,
		validate: newValidator(),
		logger:   deps.Logger.Named("IntakeService"),
	}
}

// Submit проверяет запрос и создает заказ. Порядок проверок: партнер, ключ
// идемпотентности, подпись, схема тела, дубликат.
func (s *IntakeService) Submit(ctx context.Context, req SubmitRequest) (*Accepted, error) {
	accepted, err := s.submit(ctx, req)
	metrics.IntakeOrdersTotal.WithLabelValues(Outcome(err)).Inc()
	return accepted, err
}

func (s *IntakeService) submit(ctx context.Context, req SubmitRequest) (*Accepted, error) {
	partner, err := s.authenticate(ctx, req.APIKey)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("partner_id", partner.ID.String()))

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		verr := models.NewValidationError()
		verr.Add("Idempotency-Key", "header is required")
		return nil, verr
	}

	if err := s.verifySignature(partner, req); err != nil {
		log.Warn("Rejected request signature", zap.Error(err))
		return nil, models.ErrUnauthorized
	}

	payload, err := decodePayload(s.validate, req.Body)
	if err != nil {
		return nil, err
	}

	if _, err := s.deps.Orders.FindByIdempotencyKey(ctx, s.deps.DB, partner.ID, key); err == nil {
		log.Info("Duplicate order submission", zap.String("idempotency_key", key))
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("check idempotency key: %w", err)
	}

	order := &models.Order{
		ID:             uuid.New(),
		PartnerID:      partner.ID,
		IdempotencyKey: key,
		Currency:       payload.Currency,
		Status:         models.OrderStatusQueued,
		CreatedAt:      s.deps.Now().UTC(),
	}
	err = s.deps.Tx.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		return s.createOrder(ctx, tx, partner, order, payload, req.Body)
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			log.Info("Duplicate order submission (race)", zap.String("idempotency_key", key))
			return nil, models.ErrConflict
		}
		log.Error("Failed to create order", zap.String("order_id", order.ID.String()), zap.Error(err))
		return nil, err
	}

	log.Info("Order accepted",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber()),
		zap.Int("uploads", len(payload.Uploads)),
	)
	return &Accepted{OrderID: order.ID, PartnerID: partner.ID, Status: order.Status, AcceptedAt: order.CreatedAt}, nil
}

func (s *IntakeService) authenticate(ctx context.Context, apiKey string) (*models.Partner, error) {
	if apiKey == "" {
		return nil, models.ErrUnauthorized
	}
	partner, err := s.deps.Partners.GetByAPIKey(ctx, apiKey)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("lookup partner: %w", err)
	}
	if !partner.Active {
		return nil, models.ErrUnauthorized
	}
	return partner, nil
}

// verifySignature проверяет окно времени и HMAC от "timestamp.body".
func (s *IntakeService) verifySignature(partner *models.Partner, req SubmitRequest) error {
	ts, err := strconv.ParseInt(strings.TrimSpace(req.Timestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q", req.Timestamp)
	}
	drift := s.deps.Now().Sub(time.Unix(ts, 0))
	if math.Abs(float64(drift)) > float64(s.deps.Skew) {
		return fmt.Errorf("timestamp outside window: drift %s", drift)
	}
	signed := append([]byte(strconv.FormatInt(ts, 10)+"."), req.Body...)
	if !webhook.Verify(partner.SigningSecret, signed, strings.TrimSpace(req.Signature)) {
		return errors.New("signature mismatch")
	}
	return nil
}

// createOrder выполняется внутри транзакции. Публикация идет до коммита:
// ошибка публикации откатывает заказ целиком.
func (s *IntakeService) createOrder(ctx context.Context, tx interfaces.DBTX, partner *models.Partner, order *models.Order, payload *models.OrderPayload, raw []byte) error {
	if err := s.deps.Orders.Create(ctx, tx, order); err != nil {
		return err
	}

	brief := &models.OrderBrief{
		OrderID:          order.ID,
		RawPayload:       raw,
		ReadingLevel:     models.DeriveReadingLevel(payload.Brief),
		Constraints:      models.DeriveConstraints(payload.Brief),
		ImageDescriptors: []models.ImageDescriptor{},
	}
	if err := s.deps.Orders.CreateBrief(ctx, tx, brief); err != nil {
		return fmt.Errorf("create brief: %w", err)
	}

	for i, up := range payload.Uploads {
		asset := models.NewAsset(order.ID, models.AssetTypeImage, up.URL, models.AssetMetadata{
			Role:       up.Role(),
			Ordinal:    i,
			Provenance: "upload",
			Filename:   up.Filename,
			ExternalID: up.AssetID,
		})
		if err := s.deps.Assets.Create(ctx, tx, asset); err != nil {
			return fmt.Errorf("create upload asset %s: %w", up.AssetID, err)
		}
	}

	created := OrderCreatedPayload{
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber(),
		Status:      string(order.Status),
		AcceptedAt:  order.CreatedAt.UTC().Format(time.RFC3339),
	}
	event, err := models.NewEvent(order.ID, models.EventOrderCreated, created)
	if err != nil {
		return fmt.Errorf("build order.created event: %w", err)
	}
	if err := s.deps.Events.Append(ctx, tx, event); err != nil {
		return fmt.Errorf("append order.created event: %w", err)
	}

	if partner.HasWebhook() {
		entry := &models.WebhookOutbox{
			ID:            uuid.New(),
			OrderID:       order.ID,
			PartnerID:     partner.ID,
			EventType:     models.EventOrderCreated,
			Payload:       event.Payload,
			Status:        models.OutboxStatusPending,
			CreatedAt:     order.CreatedAt,
		}
		if err := s.deps.Outbox.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("create outbox entry: %w", err)
		}
	}

	if err := s.deps.Publisher.PublishStage(ctx, messaging.StageImageAnalysis, messaging.StageJob{OrderID: order.ID}); err != nil {
		return fmt.Errorf("%w: publish image-analysis: %w", models.ErrTransient, err)
	}
	return nil
}

// Outcome - значение метки исхода для ошибки Submit.
func Outcome(err error) string {
	var verr *models.ValidationError
	switch {
	case err == nil:
		return OutcomeAccepted
	case errors.As(err, &verr):
		return OutcomeInvalid
	case errors.Is(err, models.ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, models.ErrConflict):
		return OutcomeConflict
	default:
		return OutcomeError
	}
}
