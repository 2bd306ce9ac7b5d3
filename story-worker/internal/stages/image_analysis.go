package stages

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"kcs-server/shared/messaging"
	"kcs-server/shared/models"
	"kcs-server/shared/pipeline"
	"kcs-server/shared/provider"
)

// MaxAnalysisRetries - число попыток анализа одной фотографии.
const MaxAnalysisRetries = 2

const analysisSystemPrompt = "You describe photos for a children's book illustrator. " +
	"Describe only visible appearance: hair, skin tone, eyes, clothing, distinctive features. " +
	"Never guess names, ages or locations. Answer in 2-4 sentences."

// ImageAnalysisStage описывает фотографии партнера (или текстовые описания без фото)
// и дописывает дескрипторы в бриф.
type ImageAnalysisStage struct {
	caller  provider.Caller
	cropper FaceCropper
}

var _ pipeline.Stage = (*ImageAnalysisStage)(nil)

// NewImageAnalysisStage создает стадию. cropper может быть nil.
func NewImageAnalysisStage(caller provider.Caller, cropper FaceCropper) *ImageAnalysisStage {
	return &ImageAnalysisStage{caller: caller, cropper: cropper}
}

func (s *ImageAnalysisStage) Name() messaging.Stage { return messaging.StageImageAnalysis }

func (s *ImageAnalysisStage) Requires(sc *pipeline.StageContext) error {
	if len(sc.Brief.RawPayload) == 0 {
		return models.NewIntegrityError(s.Name().String(), "brief payload")
	}
	return nil
}

func (s *ImageAnalysisStage) Process(ctx context.Context, sc *pipeline.StageContext) (*pipeline.Result, error) {
	payload, err := sc.Brief.Payload()
	if err != nil {
		return nil, models.NewIntegrityError(s.Name().String(), "valid brief payload")
	}

	var descriptors []models.ImageDescriptor
	photographed := map[models.AssetRole]bool{}
	for _, asset := range sc.Assets {
		if asset.Type != models.AssetTypeImage || !isUploadRole(asset.Metadata.Role) {
			continue
		}
		descriptor, err := s.describePhoto(ctx, sc, asset)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, descriptor)
		photographed[asset.Metadata.Role] = true
	}

	// Роли без фотографий описываются текстом из брифа.
	brief := payload.Brief
	if !photographed[models.AssetRoleChild] {
		descriptors = append(descriptors, textDescriptor(models.AssetRoleChild,
			joinNonEmpty(brief.Child.Name, brief.Child.Gender, fmt.Sprintf("age %d", brief.Child.Age), brief.Child.Description)))
	}
	if !photographed[models.AssetRoleSupporting] {
		for _, ch := range brief.Characters {
			descriptors = append(descriptors, textDescriptor(models.AssetRoleSupporting,
				joinNonEmpty(ch.Name, ch.Relation, ch.Description)))
		}
	}
	if !photographed[models.AssetRoleLocation] && brief.Location != nil {
		descriptors = append(descriptors, textDescriptor(models.AssetRoleLocation,
			joinNonEmpty(brief.Location.Name, brief.Location.Description)))
	}

	return &pipeline.Result{
		Descriptors: descriptors,
		EventPayload: map[string]any{
			"descriptors": len(descriptors),
			"photos":      len(descriptors) - countText(descriptors),
		},
	}, nil
}

// describePhoto делает до MaxAnalysisRetries попыток. Со второй попытки к запросу
// добавляется кроп лица, если его удалось получить.
func (s *ImageAnalysisStage) describePhoto(ctx context.Context, sc *pipeline.StageContext, asset *models.Asset) (models.ImageDescriptor, error) {
	req := provider.Request{
		OrderID:   sc.Order.ID,
		System:    analysisSystemPrompt,
		Prompt:    fmt.Sprintf("Describe the %s in this photo.", asset.Metadata.Role),
		Images:    []provider.Image{{URL: asset.URL}},
		MaxTokens: 300,
	}

	var lastErr error
	for attempt := 1; attempt <= MaxAnalysisRetries; attempt++ {
		if attempt > 1 && s.cropper != nil {
			crop, err := s.cropper.Crop(ctx, asset.URL)
			if err != nil {
				sc.Logger.Warn("Face crop enrichment failed", zap.String("asset_id", asset.ID.String()), zap.Error(err))
			} else {
				req.Images = []provider.Image{{URL: asset.URL}, crop}
				req.Prompt = fmt.Sprintf("Describe the %s in this photo. The second image is a close-up of the face.", asset.Metadata.Role)
			}
		}

		resp, err := s.caller.Call(ctx, s.Name().String(), req)
		if err == nil {
			assetID := asset.ID
			return models.ImageDescriptor{
				AssetID:     &assetID,
				Role:        asset.Metadata.Role,
				Description: strings.TrimSpace(resp.Output),
				Provider:    resp.Provider,
				Model:       resp.Model,
				FromPhoto:   true,
			}, nil
		}
		lastErr = err
		sc.Logger.Warn("Image analysis attempt failed",
			zap.String("asset_id", asset.ID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return models.ImageDescriptor{}, fmt.Errorf("analyze asset %s: %w", asset.ID, lastErr)
}

func isUploadRole(role models.AssetRole) bool {
	return role == models.AssetRoleChild || role == models.AssetRoleSupporting || role == models.AssetRoleLocation
}

func textDescriptor(role models.AssetRole, description string) models.ImageDescriptor {
	return models.ImageDescriptor{Role: role, Description: description}
}

func countText(descriptors []models.ImageDescriptor) int {
	n := 0
	for _, d := range descriptors {
		if !d.FromPhoto {
			n++
		}
	}
	return n
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
