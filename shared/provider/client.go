package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kcs-server/shared/ledger"
	"kcs-server/shared/metrics"
)

// Client выбирает маршрут стадии, пробует основной провайдер, затем резервный.
// Каждый вызов защищен ledger: повтор того же запроса той же стадии не идет к провайдеру.
type Client struct {
	registry *Registry
	guard    *ledger.Guard
	logger   *zap.Logger
	estimate func(model, text string) int
}

var _ Caller = (*Client)(nil)

func NewClient(registry *Registry, guard *ledger.Guard, logger *zap.Logger) *Client {
	return &Client{
		registry: registry,
		guard:    guard,
		logger:   logger.Named("ProviderClient"),
		estimate: EstimateTokens,
	}
}

// Call выполняет текстовый/vision запрос по маршруту стадии.
// Если задан req.Accept, в ledger попадает только принятый им ответ.
func (c *Client) Call(ctx context.Context, stage string, req Request) (Response, error) {
	key, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal provider request: %w", err)
	}

	var accept func([]byte) error
	if req.Accept != nil {
		accept = func(raw []byte) error {
			var resp Response
			if err := json.Unmarshal(raw, &resp); err != nil {
				return fmt.Errorf("failed to decode provider response: %w", err)
			}
			return req.Accept(resp)
		}
	}

	raw, cached, err := c.guard.DoChecked(ctx, req.OrderID, stage, key, func(ctx context.Context) ([]byte, error) {
		resp, err := c.callRoute(ctx, stage, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	}, accept)
	if err != nil {
		return Response{}, err
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, fmt.Errorf("failed to decode provider response: %w", err)
	}
	if cached {
		metrics.ProviderRequestsTotal.WithLabelValues(resp.Provider, resp.Model, stage, "cached").Inc()
	}
	return resp, nil
}

// CallImage генерирует изображение по маршруту стадии.
func (c *Client) CallImage(ctx context.Context, stage string, req ImageRequest) (ImageResponse, error) {
	key, err := json.Marshal(req)
	if err != nil {
		return ImageResponse{}, fmt.Errorf("failed to marshal image request: %w", err)
	}

	raw, cached, err := c.guard.Do(ctx, req.OrderID, stage, key, func(ctx context.Context) ([]byte, error) {
		resp, err := c.callImageRoute(ctx, stage, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	})
	if err != nil {
		return ImageResponse{}, err
	}

	var resp ImageResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ImageResponse{}, fmt.Errorf("failed to decode image response: %w", err)
	}
	if cached {
		metrics.ProviderRequestsTotal.WithLabelValues(resp.Provider, resp.Model, stage, "cached").Inc()
	}
	return resp, nil
}

func (c *Client) callRoute(ctx context.Context, stage string, req Request) (Response, error) {
	route := c.registry.Route(stage)
	resp, err := c.chatOnce(ctx, stage, route.Primary, req)
	if err == nil || route.Fallback == nil {
		return resp, err
	}
	c.logger.Warn("Primary provider failed, using fallback",
		zap.String("order_id", req.OrderID.String()),
		zap.String("stage", stage),
		zap.String("primary", route.Primary.String()),
		zap.String("fallback", route.Fallback.String()),
		zap.Error(err),
	)
	fbResp, fbErr := c.chatOnce(ctx, stage, *route.Fallback, req)
	if fbErr != nil {
		return Response{}, fmt.Errorf("stage %s: primary %s: %v; fallback %s: %w", stage, route.Primary, err, route.Fallback, fbErr)
	}
	return fbResp, nil
}

func (c *Client) chatOnce(ctx context.Context, stage string, target Target, req Request) (Response, error) {
	p, ok := c.registry.Provider(target.Provider)
	if !ok {
		return Response{}, fmt.Errorf("provider %q is not configured", target.Provider)
	}

	start := time.Now()
	resp, err := p.Chat(ctx, target.Model, req)
	metrics.ProviderRequestDuration.WithLabelValues(target.Provider, target.Model).Observe(time.Since(start).Seconds())
	if err == nil && resp.Output == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(target.Provider, target.Model, stage, "error").Inc()
		return Response{}, fmt.Errorf("%s: %w", target, err)
	}
	metrics.ProviderRequestsTotal.WithLabelValues(target.Provider, target.Model, stage, "success").Inc()

	resp.Provider = target.Provider
	resp.Model = target.Model
	if resp.PromptTokens == 0 && c.estimate != nil {
		resp.PromptTokens = c.estimate(target.Model, req.System+"\n"+req.Prompt)
	}
	if resp.CompletionTokens == 0 && c.estimate != nil {
		resp.CompletionTokens = c.estimate(target.Model, resp.Output)
	}
	metrics.ProviderTokensTotal.WithLabelValues(target.Provider, "prompt").Add(float64(resp.PromptTokens))
	metrics.ProviderTokensTotal.WithLabelValues(target.Provider, "completion").Add(float64(resp.CompletionTokens))
	return resp, nil
}

func (c *Client) callImageRoute(ctx context.Context, stage string, req ImageRequest) (ImageResponse, error) {
	route := c.registry.Route(stage)
	resp, err := c.imageOnce(ctx, stage, route.Primary, req)
	if err == nil || route.Fallback == nil {
		return resp, err
	}
	c.logger.Warn("Primary image provider failed, using fallback",
		zap.String("order_id", req.OrderID.String()),
		zap.String("stage", stage),
		zap.String("primary", route.Primary.String()),
		zap.String("fallback", route.Fallback.String()),
		zap.Error(err),
	)
	fbResp, fbErr := c.imageOnce(ctx, stage, *route.Fallback, req)
	if fbErr != nil {
		return ImageResponse{}, fmt.Errorf("stage %s: primary %s: %v; fallback %s: %w", stage, route.Primary, err, route.Fallback, fbErr)
	}
	return fbResp, nil
}

func (c *Client) imageOnce(ctx context.Context, stage string, target Target, req ImageRequest) (ImageResponse, error) {
	p, ok := c.registry.Provider(target.Provider)
	if !ok {
		return ImageResponse{}, fmt.Errorf("provider %q is not configured", target.Provider)
	}
	ip, ok := p.(ImageProvider)
	if !ok {
		metrics.ProviderRequestsTotal.WithLabelValues(target.Provider, target.Model, stage, "error").Inc()
		return ImageResponse{}, fmt.Errorf("%s: image generation: %w", target, ErrUnsupported)
	}

	start := time.Now()
	resp, err := ip.GenerateImage(ctx, target.Model, req)
	metrics.ProviderRequestDuration.WithLabelValues(target.Provider, target.Model).Observe(time.Since(start).Seconds())
	if err == nil && resp.URL == "" && resp.B64 == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(target.Provider, target.Model, stage, "error").Inc()
		return ImageResponse{}, fmt.Errorf("%s: %w", target, err)
	}
	metrics.ProviderRequestsTotal.WithLabelValues(target.Provider, target.Model, stage, "success").Inc()
	resp.Provider = target.Provider
	resp.Model = target.Model
	return resp, nil
}

// IsUnsupported сообщает, что ни один провайдер маршрута не поддерживает операцию.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}
