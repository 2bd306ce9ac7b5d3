package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaName - имя провайдера в маршрутах.
const OllamaName = "ollama"

// OllamaProvider - локальные модели через нативный API Ollama. Vision - байтами изображения.
type OllamaProvider struct {
	client *api.Client
}

var _ Provider = (*OllamaProvider)(nil)

func NewOllamaProvider(baseURL string, timeout time.Duration) (*OllamaProvider, error) {
	// api.NewClient ожидает URL без суффикса /v1
	baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url %q: %w", baseURL, err)
	}
	return &OllamaProvider{client: api.NewClient(parsed, &http.Client{Timeout: timeout})}, nil
}

func (p *OllamaProvider) Name() string { return OllamaName }

func (p *OllamaProvider) Chat(ctx context.Context, model string, req Request) (Response, error) {
	messages := make([]api.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	user := api.Message{Role: "user", Content: req.Prompt}
	for _, img := range req.Images {
		data, _, err := imageBytes(ctx, img)
		if err != nil {
			return Response{}, err
		}
		user.Images = append(user.Images, api.ImageData(data))
	}
	messages = append(messages, user)

	stream := false
	options := map[string]interface{}{}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}
	if req.JSON {
		chatReq.Format = []byte(`"json"`)
	}

	var resp api.ChatResponse
	err := p.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	if resp.Message.Content == "" {
		return Response{}, ErrEmptyResponse
	}
	return Response{
		Output:           resp.Message.Content,
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
	}, nil
}
