package stages

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"kcs-server/shared/messaging"
	"kcs-server/shared/models"
	"kcs-server/shared/pipeline"
	"kcs-server/shared/provider"
	"kcs-server/shared/storage"
)

const (
	generationDone   = "done"
	generationFailed = "failed"
)

// AssetGenerator рисует персонажей плана и сохраняет их в бакет.
type AssetGenerator struct {
	caller  provider.Caller
	store   storage.ObjectStore
	limiter *rate.Limiter
	size    string
}

// NewAssetGenerator создает генератор. perMinute <= 0 отключает ограничение частоты.
func NewAssetGenerator(caller provider.Caller, store storage.ObjectStore, perMinute float64, size string) *AssetGenerator {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	return &AssetGenerator{
		caller:  caller,
		store:   store,
		limiter: rate.NewLimiter(limit, 1),
		size:    size,
	}
}

type generated struct {
	asset    *models.Asset
	provider string
}

func (g *AssetGenerator) generate(ctx context.Context, stage messaging.Stage, sc *pipeline.StageContext, ch models.Character) (generated, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return generated{}, err
	}
	resp, err := g.caller.CallImage(ctx, stage.String(), provider.ImageRequest{
		OrderID: sc.Order.ID,
		Prompt:  characterPrompt(sc, ch),
		Size:    g.size,
	})
	if err != nil {
		return generated{}, err
	}

	key := storage.OrderKey(sc.Order.ID, "characters", slug(ch.Name)+".png")
	url, _, err := storage.PersistGenerated(ctx, g.store, key, resp.URL, resp.B64)
	if err != nil {
		return generated{}, err
	}

	role := ch.Role
	if role == "" {
		role = models.AssetRoleSecondaryCharacter
	}
	asset := models.NewAsset(sc.Order.ID, models.AssetTypeImage, url, models.AssetMetadata{
		Role:       role,
		Provenance: resp.Provider,
		Stage:      stage.String(),
		Filename:   key,
	})
	return generated{asset: asset, provider: resp.Provider}, nil
}

// run генерирует персонажей из names и возвращает патч с полными картами статусов.
func (g *AssetGenerator) run(ctx context.Context, stage messaging.Stage, sc *pipeline.StageContext, names map[string]bool) (*pipeline.Result, int, error) {
	plan := sc.Story.AssetPlan
	state := copyGeneration(plan.Generation)
	links := copyMap(plan.GeneratedLinks)

	var assets []*models.Asset
	failed := 0
	for i, ch := range plan.Characters {
		if !names[ch.Name] {
			continue
		}
		out, err := g.generate(ctx, stage, sc, ch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			sc.Logger.Warn("Character generation failed", zap.String("character", ch.Name), zap.Error(err))
			state.Status[ch.Name] = generationFailed
			failed++
			continue
		}
		out.asset.Metadata.Ordinal = i
		assets = append(assets, out.asset)
		state.Status[ch.Name] = generationDone
		state.ID[ch.Name] = out.asset.ID.String()
		state.Provider[ch.Name] = out.provider
		links[ch.Name] = out.asset.URL
	}

	return &pipeline.Result{
		StoryUpdate: &models.StoryUpdate{AssetPlan: &models.AssetPlanPatch{
			Generation:     state,
			GeneratedLinks: links,
		}},
		Assets: assets,
		EventPayload: map[string]any{
			"generated": len(assets),
			"failed":    failed,
		},
	}, failed, nil
}

// AssetsStage рисует всех персонажей плана. Отдельные неудачи помечаются failed
// и дорабатываются в assets_refine; если не удалось ничего - стадия повторяется.
type AssetsStage struct {
	gen *AssetGenerator
}

func NewAssetsStage(gen *AssetGenerator) *AssetsStage { return &AssetsStage{gen: gen} }

func (s *AssetsStage) Name() messaging.Stage { return messaging.StageAssets }

func (s *AssetsStage) Requires(sc *pipeline.StageContext) error {
	if err := requirePlanCharacters(sc); err != nil {
		return err
	}
	if sc.Story.AssetPlan.Style == "" {
		return models.NewIntegrityError(s.Name().String(), "illustration style")
	}
	return nil
}

func (s *AssetsStage) Process(ctx context.Context, sc *pipeline.StageContext) (*pipeline.Result, error) {
	names := make(map[string]bool, len(sc.Story.AssetPlan.Characters))
	for _, ch := range sc.Story.AssetPlan.Characters {
		names[ch.Name] = true
	}
	result, failed, err := s.gen.run(ctx, s.Name(), sc, names)
	if err != nil {
		return nil, err
	}
	if failed == len(names) {
		return nil, fmt.Errorf("%w: all %d character generations failed", models.ErrTransient, failed)
	}
	return result, nil
}

// AssetsRefineStage повторяет генерацию персонажей, оставшихся без изображения.
type AssetsRefineStage struct {
	gen *AssetGenerator
}

func NewAssetsRefineStage(gen *AssetGenerator) *AssetsRefineStage { return &AssetsRefineStage{gen: gen} }

func (s *AssetsRefineStage) Name() messaging.Stage { return messaging.StageAssetsRefine }

func (s *AssetsRefineStage) Requires(sc *pipeline.StageContext) error {
	if err := requirePlanCharacters(sc); err != nil {
		return err
	}
	if sc.Story.AssetPlan.Generation == nil {
		return models.NewIntegrityError(s.Name().String(), "generation state")
	}
	return nil
}

func (s *AssetsRefineStage) Process(ctx context.Context, sc *pipeline.StageContext) (*pipeline.Result, error) {
	pending := map[string]bool{}
	for _, ch := range sc.Story.AssetPlan.Characters {
		if sc.Story.AssetPlan.Generation.Status[ch.Name] != generationDone || sc.Story.AssetPlan.GeneratedLinks[ch.Name] == "" {
			pending[ch.Name] = true
		}
	}
	if len(pending) == 0 {
		return &pipeline.Result{EventPayload: map[string]any{"refined": 0}}, nil
	}

	result, failed, err := s.gen.run(ctx, s.Name(), sc, pending)
	if err != nil {
		return nil, err
	}
	if failed > 0 {
		return nil, fmt.Errorf("%w: %d characters still without images", models.ErrTransient, failed)
	}
	result.EventPayload["refined"] = len(pending)
	return result, nil
}

func characterPrompt(sc *pipeline.StageContext, ch models.Character) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s. Character sheet of %s, %s.", sc.Story.AssetPlan.Style, ch.Name, ch.Description)
	for _, d := range sc.Brief.ImageDescriptors {
		if ch.Role == models.AssetRoleMainCharacter && d.Role == models.AssetRoleChild {
			fmt.Fprintf(&b, " Appearance: %s", d.Description)
		}
	}
	b.WriteString(" Full body, plain background, no text.")
	return b.String()
}

func copyGeneration(src *models.GenerationState) *models.GenerationState {
	dst := &models.GenerationState{
		Status:   map[string]string{},
		ID:       map[string]string{},
		Provider: map[string]string{},
	}
	if src == nil {
		return dst
	}
	for k, v := range src.Status {
		dst.Status[k] = v
	}
	for k, v := range src.ID {
		dst.ID[k] = v
	}
	for k, v := range src.Provider {
		dst.Provider[k] = v
	}
	return dst
}

func copyMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(name string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if s == "" {
		return "character"
	}
	return s
}
