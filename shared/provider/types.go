package provider

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrUnsupported - провайдер не умеет запрошенную операцию (vision, генерация изображений).
	ErrUnsupported = errors.New("operation not supported by provider")
	// ErrEmptyResponse - провайдер ответил без содержимого.
	ErrEmptyResponse = errors.New("empty provider response")
)

// Image - изображение для vision-запроса. Достаточно URL или Data.
type Image struct {
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"data,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
}

// Request - текстовый или vision-запрос к модели.
type Request struct {
	OrderID     uuid.UUID `json:"orderId"`
	System      string    `json:"system,omitempty"`
	Prompt      string    `json:"prompt"`
	Images      []Image   `json:"images,omitempty"`
	MaxTokens   int       `json:"maxTokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	// JSON просит модель вернуть JSON-объект (там, где это поддерживается).
	JSON bool `json:"json,omitempty"`
	// Accept проверяет ответ до записи в ledger. Отвергнутый ответ не сохраняется
	// и возвращается как ошибка Call.
	Accept func(Response) error `json:"-"`
}

// Response называет провайдера и модель, которые фактически ответили.
type Response struct {
	Output           string `json:"output"`
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"promptTokens,omitempty"`
	CompletionTokens int    `json:"completionTokens,omitempty"`
}

// ImageRequest - генерация изображения.
type ImageRequest struct {
	OrderID uuid.UUID `json:"orderId"`
	Prompt  string    `json:"prompt"`
	Size    string    `json:"size,omitempty"`
	// Variant различает кандидатов с одинаковым промптом: у каждого свой токен ledger.
	Variant int `json:"variant,omitempty"`
}

// ImageResponse содержит либо URL, либо base64.
type ImageResponse struct {
	URL      string `json:"url,omitempty"`
	B64      string `json:"b64,omitempty"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Provider - адаптер одного вендора.
type Provider interface {
	Name() string
	Chat(ctx context.Context, model string, req Request) (Response, error)
}

// ImageProvider реализуют провайдеры, умеющие генерировать изображения.
type ImageProvider interface {
	Provider
	GenerateImage(ctx context.Context, model string, req ImageRequest) (ImageResponse, error)
}

// Caller - то, чем пользуются стадии.
type Caller interface {
	Call(ctx context.Context, stage string, req Request) (Response, error)
	CallImage(ctx context.Context, stage string, req ImageRequest) (ImageResponse, error)
}
