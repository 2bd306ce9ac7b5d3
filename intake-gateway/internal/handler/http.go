package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kcs-server/intake-gateway/internal/service"
	"kcs-server/shared/middleware"
	"kcs-server/shared/models"
)

// Заголовки подписи запроса партнера.
const (
	IdempotencyKeyHeader = "Idempotency-Key"
	TimestampHeader      = "X-KCS-Timestamp"
	SignatureHeader      = "X-KCS-Signature"
)

// Коды ошибок в теле ответа.
const (
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
)

// ErrorResponse - тело ответа с ошибкой.
type ErrorResponse struct {
	Code        string            `json:"code"`
	Message     string            `json:"message,omitempty"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// OrderSubmitter - операция приема заказа.
type OrderSubmitter interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*service.Accepted, error)
}

type IntakeHandler struct {
	submitter    OrderSubmitter
	maxBodyBytes int64
	logger       *zap.Logger
}

func NewIntakeHandler(submitter OrderSubmitter, maxBodyBytes int64, logger *zap.Logger) *IntakeHandler {
	return &IntakeHandler{
		submitter:    submitter,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.Named("IntakeHandler"),
	}
}

func (h *IntakeHandler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/v1")
	v1.POST("/orders", h.submitOrder)
}

func (h *IntakeHandler) submitOrder(c *gin.Context) {
	body, err := h.readBody(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			verr := models.NewValidationError()
			verr.Add("body", "request body too large")
			handleServiceError(c, verr)
			return
		}
		h.logger.Warn("Failed to read request body", zap.Error(err))
		handleServiceError(c, err)
		return
	}

	accepted, err := h.submitter.Submit(c.Request.Context(), service.SubmitRequest{
		APIKey:         bearerToken(c.GetHeader("Authorization")),
		IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
		Timestamp:      c.GetHeader(TimestampHeader),
		Signature:      c.GetHeader(SignatureHeader),
		Body:           body,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.Set(middleware.PartnerIDKey, accepted.PartnerID.String())
	c.JSON(http.StatusOK, accepted)
}

func (h *IntakeHandler) readBody(c *gin.Context) ([]byte, error) {
	reader := c.Request.Body
	if h.maxBodyBytes > 0 {
		reader = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}
	return io.ReadAll(reader)
}

// bearerToken достает ключ из "Authorization: Bearer <key>". Иначе пустая строка.
func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
