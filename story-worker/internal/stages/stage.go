// Package stages содержит стадии истории: от анализа фотографий до финальной полировки текста.
package stages

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"kcs-server/shared/messaging"
	"kcs-server/shared/pipeline"
	"kcs-server/shared/provider"
)

// textStage - стадия из одного вызова модели: промпт из контекста, результат в Result.
type textStage struct {
	name     messaging.Stage
	requires func(sc *pipeline.StageContext) error
	request  func(sc *pipeline.StageContext) provider.Request
	apply    func(sc *pipeline.StageContext, resp provider.Response) (*pipeline.Result, error)
	caller   provider.Caller
}

var _ pipeline.Stage = (*textStage)(nil)

func (s *textStage) Name() messaging.Stage { return s.name }

func (s *textStage) Requires(sc *pipeline.StageContext) error {
	if s.requires == nil {
		return nil
	}
	return s.requires(sc)
}

func (s *textStage) Process(ctx context.Context, sc *pipeline.StageContext) (*pipeline.Result, error) {
	req := s.request(sc)
	req.OrderID = sc.Order.ID
	// Ответ, который стадия не может разобрать, не должен попасть в ledger:
	// иначе повторная доставка получит тот же ответ.
	req.Accept = func(resp provider.Response) error {
		_, err := s.apply(sc, resp)
		return err
	}

	resp, err := s.caller.Call(ctx, s.name.String(), req)
	if err != nil {
		return nil, fmt.Errorf("%s provider call: %w", s.name, err)
	}
	sc.Logger.Debug("Model responded",
		zap.String("provider", resp.Provider),
		zap.String("model", resp.Model),
		zap.Int("output_len", len(resp.Output)),
	)

	result, err := s.apply(sc, resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	if result.EventPayload == nil {
		result.EventPayload = map[string]any{}
	}
	result.EventPayload["provider"] = resp.Provider
	result.EventPayload["model"] = resp.Model
	return result, nil
}

// Deps - зависимости стадий истории.
type Deps struct {
	Caller  provider.Caller
	Assets  *AssetGenerator
	Cropper FaceCropper
}

// All возвращает стадии в порядке цепочки.
func All(deps Deps) []pipeline.Stage {
	return []pipeline.Stage{
		NewImageAnalysisStage(deps.Caller, deps.Cropper),
		newAssetPlanStage(deps.Caller),
		newStyleStage(deps.Caller),
		newFocusStage(deps.Caller),
		newProfileStage(deps.Caller),
		newOutlineStage(deps.Caller),
		newDraftStage(deps.Caller),
		newReviseStage(deps.Caller),
		newPromptsStage(deps.Caller),
		NewAssetsStage(deps.Assets),
		NewAssetsRefineStage(deps.Assets),
		newPackagingStage(deps.Caller),
		newPolishStage(deps.Caller),
	}
}
