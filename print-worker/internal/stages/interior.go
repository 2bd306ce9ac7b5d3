package stages

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kcs-server/shared/messaging"
	"kcs-server/shared/metrics"
	"kcs-server/shared/models"
	"kcs-server/shared/pipeline"
	"kcs-server/shared/provider"
	"kcs-server/shared/storage"
	"kcs-server/shared/utils"
)

// InteriorStage рисует по иллюстрации на абзац. Для каждой страницы генерируется
// несколько кандидатов, лучший выбирается vision-оценкой.
type InteriorStage struct {
	caller provider.Caller
	store  storage.ObjectStore
	opts   Options
}

var _ pipeline.PrintStage = (*InteriorStage)(nil)

func NewInteriorStage(caller provider.Caller, store storage.ObjectStore, opts Options) *InteriorStage {
	return &InteriorStage{caller: caller, store: store, opts: opts}
}

func (s *InteriorStage) Name() messaging.Stage { return messaging.StageInterior }

func (s *InteriorStage) TargetPrintStatus() models.PrintStatus {
	return models.PrintStatusInteriorGenerated
}

func (s *InteriorStage) Requires(sc *pipeline.StageContext) error {
	if err := pipeline.RequireStory(sc); err != nil {
		return err
	}
	if err := pipeline.RequireText(sc, "final_text", sc.Story.FinalText); err != nil {
		return err
	}
	if len(finalParagraphs(sc)) == 0 {
		return models.NewIntegrityError(sc.Stage.String(), "final_text paragraphs")
	}
	return requireURL(sc, "print_metadata.cover_spread_url", sc.Story.PrintMetadata.CoverSpreadURL)
}

type interiorPage struct {
	url      string
	provider string
}

func (s *InteriorStage) Process(ctx context.Context, sc *pipeline.StageContext) (*pipeline.Result, error) {
	start := time.Now()
	paragraphs := finalParagraphs(sc)
	pages := make([]interiorPage, len(paragraphs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.fanOut())
	for i, text := range paragraphs {
		g.Go(func() error {
			page, err := s.page(gctx, sc, i, text)
			if err != nil {
				return fmt.Errorf("interior page %d: %w", i+1, err)
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	urls := make([]string, len(pages))
	assets := make([]*models.Asset, len(pages))
	for i, p := range pages {
		urls[i] = p.url
		assets[i] = models.NewAsset(sc.Order.ID, models.AssetTypeImage, p.url, models.AssetMetadata{
			Role:       models.AssetRoleInterior,
			Ordinal:    i,
			Provenance: p.provider,
			Stage:      s.Name().String(),
		})
	}

	metrics.PrintInteriorDuration.WithLabelValues(strconv.Itoa(len(pages))).Observe(time.Since(start).Seconds())
	sc.Logger.Info("Interior illustrated", zap.Int("pages", len(pages)), zap.Duration("took", time.Since(start)))

	status := models.PrintStatusInteriorGenerated
	return &pipeline.Result{
		StoryUpdate: &models.StoryUpdate{
			PrintStatus:   &status,
			PrintMetadata: &models.PrintMetadataPatch{InteriorURLs: urls},
		},
		Assets: assets,
		EventPayload: map[string]any{
			"pages":      len(pages),
			"candidates": s.opts.candidates(),
		},
	}, nil
}

// page генерирует кандидатов одной страницы и возвращает выбранного.
func (s *InteriorStage) page(ctx context.Context, sc *pipeline.StageContext, index int, text string) (interiorPage, error) {
	prompt := interiorPrompt(sc, index, text)
	candidates := make([]interiorPage, 0, s.opts.candidates())
	for c := 0; c < s.opts.candidates(); c++ {
		resp, err := s.caller.CallImage(ctx, s.Name().String(), provider.ImageRequest{
			OrderID: sc.Order.ID,
			Prompt:  prompt,
			Size:    s.opts.ImageSize,
			Variant: c,
		})
		if err != nil {
			return interiorPage{}, err
		}
		key := storage.OrderKey(sc.Order.ID, "interior", fmt.Sprintf("page_%02d_c%d.png", index+1, c+1))
		url, _, err := storage.PersistGenerated(ctx, s.store, key, resp.URL, resp.B64)
		if err != nil {
			return interiorPage{}, err
		}
		candidates = append(candidates, interiorPage{url: url, provider: resp.Provider})
	}

	best := 0
	if len(candidates) > 1 {
		best = s.score(ctx, sc, text, candidates)
	}
	if best > 0 {
		sc.Logger.Debug("Interior candidate picked", zap.Int("page", index+1), zap.Int("candidate", best+1))
	}
	return candidates[best], nil
}

type candidateScores struct {
	Scores []float64 `json:"scores"`
}

// score просит vision-модель оценить кандидатов. Любая ошибка - первый кандидат.
func (s *InteriorStage) score(ctx context.Context, sc *pipeline.StageContext, text string, candidates []interiorPage) int {
	images := make([]provider.Image, len(candidates))
	for i, c := range candidates {
		images[i] = provider.Image{URL: c.url}
	}
	resp, err := s.caller.Call(ctx, RouteInteriorScore, provider.Request{
		OrderID: sc.Order.ID,
		System:  "You grade children's book illustrations for print.",
		Prompt: fmt.Sprintf(
			"Rate each of the %d images from 0 to 10 for how well it illustrates this text and how clean it is for print. "+
				"Answer with JSON {\"scores\": [..]} in image order.\n\nText: %s", len(candidates), text),
		Images:    images,
		MaxTokens: 200,
		JSON:      true,
	})
	if err != nil {
		sc.Logger.Warn("Interior scoring failed, using first candidate", zap.Error(err))
		return 0
	}

	var parsed candidateScores
	if err := utils.DecodeJSONOutput(resp.Output, &parsed); err != nil || len(parsed.Scores) != len(candidates) {
		sc.Logger.Warn("Interior scoring returned unusable output, using first candidate",
			zap.String("output", resp.Output), zap.Error(err))
		return 0
	}

	best := 0
	for i, v := range parsed.Scores {
		if v > parsed.Scores[best] {
			best = i
		}
	}
	return best
}

func interiorPrompt(sc *pipeline.StageContext, index int, text string) string {
	plan := sc.Story.AssetPlan
	var b strings.Builder
	prompt := ""
	if index < len(plan.Paragraphs) {
		prompt = plan.Paragraphs[index].ImagePrompt
	}
	if prompt != "" {
		b.WriteString(prompt)
	} else {
		fmt.Fprintf(&b, "Illustration for a children's picture book page: %s", text)
	}
	if plan.Style != "" {
		fmt.Fprintf(&b, " Art style: %s.", plan.Style)
	}
	for _, ch := range plan.Characters {
		if ch.Description != "" && strings.Contains(text, ch.Name) {
			fmt.Fprintf(&b, " %s: %s.", ch.Name, ch.Description)
		}
	}
	b.WriteString(" Keep a calm area for text. No text in the image.")
	return b.String()
}
