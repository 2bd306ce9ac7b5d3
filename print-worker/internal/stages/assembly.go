package stages

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kcs-server/print-worker/internal/config"
	"kcs-server/print-worker/internal/imaging"
	"kcs-server/print-worker/internal/pdf"
	"kcs-server/shared/messaging"
	"kcs-server/shared/metrics"
	"kcs-server/shared/models"
	"kcs-server/shared/pipeline"
	"kcs-server/shared/provider"
	"kcs-server/shared/storage"
)

const pageJPEGQuality = 92

// AssemblyStage верстает внутренний блок: посвящение, страницы с текстом, промо,
// и собирает печатный PDF.
type AssemblyStage struct {
	caller provider.Caller
	store  storage.ObjectStore
	opts   Options
}

var _ pipeline.PrintStage = (*AssemblyStage)(nil)

func NewAssemblyStage(caller provider.Caller, store storage.ObjectStore, opts Options) *AssemblyStage {
	return &AssemblyStage{caller: caller, store: store, opts: opts}
}

func (s *AssemblyStage) Name() messaging.Stage { return messaging.StageAssembly }

func (s *AssemblyStage) TargetPrintStatus() models.PrintStatus {
	return models.PrintStatusAssembled
}

func (s *AssemblyStage) Requires(sc *pipeline.StageContext) error {
	if err := pipeline.RequireStory(sc); err != nil {
		return err
	}
	if len(sc.Story.PrintMetadata.InteriorCMYKURLs) == 0 {
		return models.NewIntegrityError(sc.Stage.String(), "print_metadata.interior_cmyk_urls")
	}
	return nil
}

func (s *AssemblyStage) Process(ctx context.Context, sc *pipeline.StageContext) (*pipeline.Result, error) {
	start := time.Now()
	meta := printMetadata(sc)
	layout := s.opts.Layouts.For(sc.Brief.ReadingLevel)
	width, height := layout.PagePixels()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: print layout has no page size", models.ErrUnprintable)
	}
	style := imaging.TextStyle{
		FontSize:    layout.FontSize,
		LineSpacing: layout.LineSpacing,
		DPI:         layout.DPI,
		Margin:      layout.MarginPixels(),
		Bold:        layout.Bold,
	}
	paragraphs := finalParagraphs(sc)

	interior := make([][]byte, len(meta.InteriorCMYKURLs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.fanOut())
	for i, u := range meta.InteriorCMYKURLs {
		text := ""
		if i < len(paragraphs) {
			text = paragraphs[i]
		}
		preview := ""
		if i < len(meta.InteriorURLs) {
			preview = meta.InteriorURLs[i]
		}
		g.Go(func() error {
			page, err := s.renderPage(gctx, sc, layout, style, u, preview, text)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			interior[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var pages [][]byte
	if text := dedication(sc); text != "" {
		page, err := textPageJPEG(width, height, text, style)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	pages = append(pages, interior...)
	if s.opts.PromoPage && s.opts.PromoText != "" {
		page, err := textPageJPEG(width, height, s.opts.PromoText, style)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	if len(pages)%2 != 0 {
		blank, err := blankPageJPEG(width, height)
		if err != nil {
			return nil, err
		}
		pages = append(pages, blank)
	}

	doc, err := pdf.Build(pages, pdf.Options{
		WidthMM:    layout.PageWidthMM,
		HeightMM:   layout.PageHeightMM,
		Title:      bookTitle(sc),
		Author:     partnerName(sc),
		ICCProfile: s.opts.ICCProfile,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUnprintable, err)
	}
	count, err := pdf.PageCount(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUnprintable, err)
	}
	if count != len(pages) {
		return nil, fmt.Errorf("%w: pdf has %d pages, expected %d", models.ErrUnprintable, count, len(pages))
	}

	url, err := s.store.Upload(ctx, storage.OrderKey(sc.Order.ID, "book.pdf"), doc)
	if err != nil {
		return nil, fmt.Errorf("upload book pdf: %w", err)
	}

	metrics.PrintAssemblyDuration.WithLabelValues(strconv.Itoa(count)).Observe(time.Since(start).Seconds())
	sc.Logger.Info("Book assembled",
		zap.Int("page_count", count),
		zap.Int("bytes", len(doc)),
		zap.String("reading_level", sc.Brief.ReadingLevel),
	)

	status := models.PrintStatusAssembled
	return &pipeline.Result{
		StoryUpdate: &models.StoryUpdate{
			PrintStatus: &status,
			PrintMetadata: &models.PrintMetadataPatch{
				PDFURL:    &url,
				PageCount: &count,
			},
		},
		Assets: []*models.Asset{
			models.NewAsset(sc.Order.ID, models.AssetTypePDF, url, models.AssetMetadata{
				Role:       models.AssetRoleBook,
				Provenance: "assembled",
				Stage:      s.Name().String(),
				Filename:   "book.pdf",
			}),
		},
		EventPayload: map[string]any{
			"page_count": count,
			"pdf_url":    url,
		},
	}, nil
}

// renderPage накладывает абзац на CMYK-страницу и возвращает JPEG.
func (s *AssemblyStage) renderPage(ctx context.Context, sc *pipeline.StageContext, layout config.Layout, style imaging.TextStyle, url, preview, text string) ([]byte, error) {
	data, err := s.store.Download(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrUnprintable, url, err)
	}

	pos := imaging.PositionBottom
	if layout.UseOverlayAI() && preview != "" && text != "" {
		pos = s.overlayPosition(ctx, sc, preview, text)
	}
	page, err := imaging.OverlayText(img, text, pos, style)
	if err != nil {
		return nil, err
	}
	return imaging.EncodeJPEG(page, pageJPEGQuality)
}

// overlayPosition спрашивает vision-модель, где на иллюстрации меньше деталей.
// Любая ошибка - bottom.
func (s *AssemblyStage) overlayPosition(ctx context.Context, sc *pipeline.StageContext, preview, text string) imaging.Position {
	resp, err := s.caller.Call(ctx, RouteAssemblyOverlay, provider.Request{
		OrderID: sc.Order.ID,
		Prompt: "Where on this illustration can a text block be placed without covering faces or key details? " +
			"Answer with exactly one word: top, middle or bottom.\n\nText length: " + strconv.Itoa(len(text)) + " characters.",
		Images:    []provider.Image{{URL: preview}},
		MaxTokens: 10,
	})
	if err != nil {
		sc.Logger.Warn("Overlay position call failed, using bottom", zap.Error(err))
		return imaging.PositionBottom
	}
	pos, ok := imaging.ParsePosition(resp.Output)
	if !ok {
		sc.Logger.Warn("Overlay position unparseable, using bottom", zap.String("output", resp.Output))
		return imaging.PositionBottom
	}
	return pos
}

func textPageJPEG(width, height int, text string, style imaging.TextStyle) ([]byte, error) {
	page, err := imaging.TextPage(width, height, text, style)
	if err != nil {
		return nil, err
	}
	return imaging.EncodeJPEG(page, pageJPEGQuality)
}

func blankPageJPEG(width, height int) ([]byte, error) {
	page := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(page, page.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return imaging.EncodeJPEG(page, pageJPEGQuality)
}

func partnerName(sc *pipeline.StageContext) string {
	if sc.Partner == nil {
		return ""
	}
	return sc.Partner.Name
}
