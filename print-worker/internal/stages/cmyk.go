package stages

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"kcs-server/print-worker/internal/imaging"
	"kcs-server/shared/messaging"
	"kcs-server/shared/metrics"
	"kcs-server/shared/models"
	"kcs-server/shared/pipeline"
	"kcs-server/shared/storage"
)

// CMYKStage масштабирует обложки и иллюстрации до печатного размера
// и сохраняет их как CMYK TIFF.
type CMYKStage struct {
	store storage.ObjectStore
	opts  Options
}

var _ pipeline.PrintStage = (*CMYKStage)(nil)

func NewCMYKStage(store storage.ObjectStore, opts Options) *CMYKStage {
	return &CMYKStage{store: store, opts: opts}
}

func (s *CMYKStage) Name() messaging.Stage { return messaging.StageCMYK }

func (s *CMYKStage) TargetPrintStatus() models.PrintStatus {
	return models.PrintStatusCMYKConverted
}

func (s *CMYKStage) Requires(sc *pipeline.StageContext) error {
	if err := pipeline.RequireStory(sc); err != nil {
		return err
	}
	meta := printMetadata(sc)
	if err := requireURL(sc, "print_metadata.front_cover_url", meta.FrontCoverURL); err != nil {
		return err
	}
	if err := requireURL(sc, "print_metadata.back_cover_url", meta.BackCoverURL); err != nil {
		return err
	}
	if len(meta.InteriorURLs) == 0 {
		return models.NewIntegrityError(sc.Stage.String(), "print_metadata.interior_urls")
	}
	for i, u := range meta.InteriorURLs {
		if err := requireURL(sc, fmt.Sprintf("print_metadata.interior_urls[%d]", i), u); err != nil {
			return err
		}
	}
	return nil
}

func (s *CMYKStage) Process(ctx context.Context, sc *pipeline.StageContext) (*pipeline.Result, error) {
	start := time.Now()
	meta := printMetadata(sc)
	layout := s.opts.Layouts.For(sc.Brief.ReadingLevel)
	width, height := layout.PagePixels()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: print layout has no page size", models.ErrUnprintable)
	}

	front, err := s.convert(ctx, sc, meta.FrontCoverURL, storage.OrderKey(sc.Order.ID, "cmyk", "front.tif"), width, height)
	if err != nil {
		return nil, err
	}
	back, err := s.convert(ctx, sc, meta.BackCoverURL, storage.OrderKey(sc.Order.ID, "cmyk", "back.tif"), width, height)
	if err != nil {
		return nil, err
	}
	interior := make([]string, len(meta.InteriorURLs))
	for i, u := range meta.InteriorURLs {
		key := storage.OrderKey(sc.Order.ID, "cmyk", fmt.Sprintf("page_%02d.tif", i+1))
		if interior[i], err = s.convert(ctx, sc, u, key, width, height); err != nil {
			return nil, err
		}
	}

	count := len(interior) + 2
	metrics.PrintCMYKDuration.WithLabelValues(strconv.Itoa(count)).Observe(time.Since(start).Seconds())
	sc.Logger.Info("CMYK conversion done",
		zap.Int("images", count),
		zap.String("icc_profile", s.opts.ICCProfile),
		zap.Int("width", width),
		zap.Int("height", height),
	)

	status := models.PrintStatusCMYKConverted
	profile := s.opts.ICCProfile
	return &pipeline.Result{
		StoryUpdate: &models.StoryUpdate{
			PrintStatus: &status,
			PrintMetadata: &models.PrintMetadataPatch{
				FrontCoverCMYKURL: &front,
				BackCoverCMYKURL:  &back,
				InteriorCMYKURLs:  interior,
				ICCProfile:        &profile,
			},
		},
		EventPayload: map[string]any{
			"images":      count,
			"icc_profile": profile,
		},
	}, nil
}

func (s *CMYKStage) convert(ctx context.Context, sc *pipeline.StageContext, url, key string, width, height int) (string, error) {
	data, err := s.store.Download(ctx, url)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", models.ErrUnprintable, url, err)
	}

	scaled := imaging.Upscale(img, width, height)
	if err := imaging.CheckSize(scaled, width, height); err != nil {
		sc.Logger.Warn("Print image size mismatch", zap.String("url", url), zap.Error(err))
	}
	tif, err := imaging.EncodeCMYKTIFF(imaging.ToCMYK(scaled))
	if err != nil {
		return "", err
	}
	stored, err := s.store.Upload(ctx, key, tif)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return stored, nil
}
