package stages

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kcs-server/print-worker/internal/imaging"
	"kcs-server/shared/messaging"
	"kcs-server/shared/metrics"
	"kcs-server/shared/models"
	"kcs-server/shared/pipeline"
	"kcs-server/shared/provider"
	"kcs-server/shared/storage"
)

// CoverStage генерирует переднюю и заднюю обложки и собирает разворот с корешком.
type CoverStage struct {
	caller provider.Caller
	store  storage.ObjectStore
	opts   Options
}

var _ pipeline.PrintStage = (*CoverStage)(nil)

func NewCoverStage(caller provider.Caller, store storage.ObjectStore, opts Options) *CoverStage {
	return &CoverStage{caller: caller, store: store, opts: opts}
}

func (s *CoverStage) Name() messaging.Stage { return messaging.StageCover }

func (s *CoverStage) TargetPrintStatus() models.PrintStatus {
	return models.PrintStatusCoverGenerated
}

func (s *CoverStage) Requires(sc *pipeline.StageContext) error {
	if err := pipeline.RequireStory(sc); err != nil {
		return err
	}
	if err := pipeline.RequireText(sc, "final_text", sc.Story.FinalText); err != nil {
		return err
	}
	if sc.Story.AssetPlan.Packaging == nil {
		return models.NewIntegrityError(sc.Stage.String(), "asset_plan.packaging")
	}
	return nil
}

type coverSide struct {
	url      string
	img      image.Image
	provider string
}

func (s *CoverStage) Process(ctx context.Context, sc *pipeline.StageContext) (*pipeline.Result, error) {
	start := time.Now()
	orderID := sc.Order.ID

	front, err := s.generate(ctx, sc, "front", frontCoverPrompt(sc))
	if err != nil {
		return nil, err
	}
	back, err := s.generate(ctx, sc, "back", backCoverPrompt(sc))
	if err != nil {
		return nil, err
	}

	// Цвета обложек приводятся к печатному охвату до сборки разворота
	frontSafe := imaging.CMYKSafe(front.img)
	backSafe := imaging.CMYKSafe(back.img)
	frontSafeURL, err := s.uploadPNG(ctx, storage.OrderKey(orderID, "cover", "front_cmyk.png"), frontSafe)
	if err != nil {
		return nil, err
	}
	backSafeURL, err := s.uploadPNG(ctx, storage.OrderKey(orderID, "cover", "back_cmyk.png"), backSafe)
	if err != nil {
		return nil, err
	}

	layout := s.opts.Layouts.For(sc.Brief.ReadingLevel)
	pages := imaging.EstimatePages(len(finalParagraphs(sc)), dedication(sc) != "", s.opts.PromoPage)
	spineMM := imaging.SpineWidthMM(pages, s.opts.CaliperMM)
	// Разворот собирается в разрешении сгенерированной обложки
	spineDPI := layout.DPI
	if layout.PageHeightMM > 0 {
		spineDPI = int(float64(frontSafe.Bounds().Dy()) / (layout.PageHeightMM / 25.4))
	}
	spread, err := imaging.ComposeSpread(frontSafe, backSafe, imaging.SpreadSpec{
		Title:      bookTitle(sc),
		Badge:      sc.Order.OrderNumber(),
		SpineWidth: imaging.MMToPixels(spineMM, spineDPI),
		DPI:        spineDPI,
	})
	if err != nil {
		return nil, fmt.Errorf("compose cover spread: %w", err)
	}
	spreadURL, err := s.uploadPNG(ctx, storage.OrderKey(orderID, "cover", "spread.png"), spread)
	if err != nil {
		return nil, err
	}

	metrics.PrintCoverDuration.WithLabelValues(front.provider).Observe(time.Since(start).Seconds())
	sc.Logger.Info("Cover generated",
		zap.String("provider", front.provider),
		zap.Int("estimated_pages", pages),
		zap.Float64("spine_mm", spineMM),
	)

	status := models.PrintStatusCoverGenerated
	return &pipeline.Result{
		StoryUpdate: &models.StoryUpdate{
			PrintStatus: &status,
			PrintMetadata: &models.PrintMetadataPatch{
				FrontCoverURL:     &front.url,
				BackCoverURL:      &back.url,
				FrontCoverCMYKURL: &frontSafeURL,
				BackCoverCMYKURL:  &backSafeURL,
				CoverSpreadURL:    &spreadURL,
				CoverProvider:     &front.provider,
				EstimatedPages:    &pages,
			},
		},
		Assets: []*models.Asset{
			coverAsset(orderID, front.url, 0, front.provider),
			coverAsset(orderID, back.url, 1, back.provider),
			coverAsset(orderID, spreadURL, 2, "composed"),
		},
		EventPayload: map[string]any{
			"provider":        front.provider,
			"estimated_pages": pages,
			"spread_url":      spreadURL,
		},
	}, nil
}

func (s *CoverStage) generate(ctx context.Context, sc *pipeline.StageContext, side, prompt string) (coverSide, error) {
	resp, err := s.caller.CallImage(ctx, messaging.StageCover.String(), provider.ImageRequest{
		OrderID: sc.Order.ID,
		Prompt:  prompt,
		Size:    s.opts.ImageSize,
	})
	if err != nil {
		return coverSide{}, fmt.Errorf("generate %s cover: %w", side, err)
	}
	key := storage.OrderKey(sc.Order.ID, "cover", side+".png")
	url, data, err := storage.PersistGenerated(ctx, s.store, key, resp.URL, resp.B64)
	if err != nil {
		return coverSide{}, fmt.Errorf("persist %s cover: %w", side, err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return coverSide{}, fmt.Errorf("%s cover: %w", side, err)
	}
	return coverSide{url: url, img: img, provider: resp.Provider}, nil
}

func (s *CoverStage) uploadPNG(ctx context.Context, key string, img image.Image) (string, error) {
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return "", err
	}
	url, err := s.store.Upload(ctx, key, data)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return url, nil
}

func coverAsset(orderID uuid.UUID, url string, ordinal int, provenance string) *models.Asset {
	return models.NewAsset(orderID, models.AssetTypeImage, url, models.AssetMetadata{
		Role:       models.AssetRoleCover,
		Ordinal:    ordinal,
		Provenance: provenance,
		Stage:      messaging.StageCover.String(),
	})
}

func frontCoverPrompt(sc *pipeline.StageContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Front cover illustration for a children's picture book titled %q.", bookTitle(sc))
	if style := sc.Story.AssetPlan.Style; style != "" {
		fmt.Fprintf(&b, " Art style: %s.", style)
	}
	for _, ch := range sc.Story.AssetPlan.Characters {
		if ch.Role == models.AssetRoleMainCharacter {
			fmt.Fprintf(&b, " Main character: %s, %s.", ch.Name, ch.Description)
		}
	}
	b.WriteString(" Leave calm space at the top for the title. No text in the image.")
	return b.String()
}

func backCoverPrompt(sc *pipeline.StageContext) string {
	var b strings.Builder
	b.WriteString("Back cover background for a children's picture book, matching the front cover.")
	if style := sc.Story.AssetPlan.Style; style != "" {
		fmt.Fprintf(&b, " Art style: %s.", style)
	}
	if p := sc.Story.AssetPlan.Packaging; p != nil && p.Blurb != "" {
		fmt.Fprintf(&b, " Mood: %s.", p.Blurb)
	}
	b.WriteString(" Soft, uncluttered composition. No text in the image.")
	return b.String()
}
