package provider

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicName - имя провайдера в маршрутах.
const AnthropicName = "anthropic"

const defaultAnthropicMaxTokens = 4096

// AnthropicProvider - только текстовый чат.
type AnthropicProvider struct {
	newMessage func(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

var _ Provider = (*AnthropicProvider)(nil)

func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{newMessage: client.Messages.New}
}

func (p *AnthropicProvider) Name() string { return AnthropicName }

func (p *AnthropicProvider) Chat(ctx context.Context, model string, req Request) (Response, error) {
	if len(req.Images) > 0 {
		return Response{}, ErrUnsupported
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := p.newMessage(ctx, params)
	if err != nil {
		return Response{}, err
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return Response{}, ErrEmptyResponse
	}
	return Response{
		Output:           out.String(),
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}
