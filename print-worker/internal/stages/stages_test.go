package stages

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"kcs-server/print-worker/internal/config"
	"kcs-server/print-worker/internal/imaging"
	"kcs-server/print-worker/internal/pdf"
	"kcs-server/shared/messaging"
	"kcs-server/shared/metrics"
	"kcs-server/shared/mocks"
	"kcs-server/shared/models"
	"kcs-server/shared/pipeline"
	"kcs-server/shared/provider"
)

var fixedNow = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

func testOptions() Options {
	return Options{
		Layouts: config.Layouts{Default: config.Layout{
			FontSize:     12,
			LineSpacing:  1.4,
			MarginMM:     5,
			PageWidthMM:  60,
			PageHeightMM: 60,
			DPI:          72,
		}},
		ICCProfile: "ISOcoated_v2_300_eci",
		CaliperMM:  0.1,
		FanOut:     1,
		Candidates: 2,
		PromoPage:  true,
		PromoText:  "Made with love",
		ImageSize:  "1024x1024",
	}
}

func newPrintContext(t *testing.T, stage messaging.Stage) *pipeline.StageContext {
	t.Helper()
	raw, err := json.Marshal(models.OrderPayload{
		Version: models.PayloadVersion,
		Brief: models.Brief{
			Child:      models.Child{Name: "Mia", Age: 6},
			Dedication: "For Mia, with love",
		},
	})
	require.NoError(t, err)

	orderID := uuid.New()
	finalText := "Mia found a map.\n\nThe map led to the garden."
	return &pipeline.StageContext{
		Stage: stage,
		Order: &models.Order{ID: orderID, Number: 42},
		Brief: &models.OrderBrief{OrderID: orderID, RawPayload: raw, ReadingLevel: models.ReadingLevelEarly},
		Story: &models.Story{
			OrderID:   orderID,
			FinalText: &finalText,
			AssetPlan: models.AssetPlan{
				Style:     "watercolor",
				Packaging: &models.Packaging{Title: "Mia and the Map"},
			},
		},
		Partner: &models.Partner{ID: uuid.New(), Name: "Acme Books"},
		Logger:  zap.NewNop(),
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: 120, B: uint8(y * 4), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadEcho(_ context.Context, key string, _ []byte) (string, error) {
	return "https://cdn.test/" + key, nil
}

type fakeUploader struct {
	failing map[string]bool
	names   []string
	panics  bool
}

func (u *fakeUploader) Upload(_ context.Context, _ string, name, _ string, _ []byte) (string, error) {
	if u.panics {
		panic("drive client exploded")
	}
	u.names = append(u.names, name)
	for suffix := range u.failing {
		if strings.HasSuffix(name, suffix) {
			return "", errors.New("drive quota exceeded")
		}
	}
	return "drv-" + name, nil
}

type fakeForcer struct {
	forced []models.PrintStatus
}

func (f *fakeForcer) ForcePrintStatus(_ context.Context, _ uuid.UUID, status models.PrintStatus) error {
	f.forced = append(f.forced, status)
	return nil
}

func TestCover_ComposesSpreadAndPatchesMetadata(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	store := mocks.NewMockObjectStore(t)
	stage := NewCoverStage(caller, store, testOptions())
	sc := newPrintContext(t, messaging.StageCover)

	b64 := base64.StdEncoding.EncodeToString(pngBytes(t, 64, 64))
	caller.On("CallImage", mock.Anything, "story.cover", mock.MatchedBy(func(r provider.ImageRequest) bool {
		return r.OrderID == sc.Order.ID
	})).Return(provider.ImageResponse{B64: b64, Provider: "openai", Model: "dall-e-3"}, nil).Twice()
	store.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(uploadEcho, nil).Times(5)

	require.NoError(t, stage.Requires(sc))
	result, err := stage.Process(context.Background(), sc)
	require.NoError(t, err)

	patch := result.StoryUpdate.PrintMetadata
	assert.Equal(t, models.PrintStatusCoverGenerated, *result.StoryUpdate.PrintStatus)
	assert.True(t, strings.HasSuffix(*patch.FrontCoverURL, "cover/front.png"))
	assert.True(t, strings.HasSuffix(*patch.BackCoverCMYKURL, "cover/back_cmyk.png"))
	assert.True(t, strings.HasSuffix(*patch.CoverSpreadURL, "cover/spread.png"))
	assert.Equal(t, "openai", *patch.CoverProvider)
	// 2 абзаца + посвящение + промо
	assert.Equal(t, 4, *patch.EstimatedPages)
	require.Len(t, result.Assets, 3)
	assert.Equal(t, models.AssetRoleCover, result.Assets[2].Metadata.Role)
}

func TestCover_RequiresFinalText(t *testing.T) {
	stage := NewCoverStage(mocks.NewMockCaller(t), mocks.NewMockObjectStore(t), testOptions())
	sc := newPrintContext(t, messaging.StageCover)
	sc.Story.FinalText = nil

	err := stage.Requires(sc)
	var integrity *models.IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, "final_text", integrity.Artifact)
}

func TestInterior_ScoringFailurePicksFirstCandidate(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	store := mocks.NewMockObjectStore(t)
	stage := NewInteriorStage(caller, store, testOptions())
	sc := newPrintContext(t, messaging.StageInterior)
	sc.Story.PrintMetadata.CoverSpreadURL = "https://cdn.test/spread.png"

	caller.On("CallImage", mock.Anything, "story.interior", mock.Anything).
		Return(provider.ImageResponse{B64: base64.StdEncoding.EncodeToString([]byte("img")), Provider: "openai"}, nil).Times(4)
	caller.On("Call", mock.Anything, RouteInteriorScore, mock.MatchedBy(func(r provider.Request) bool {
		return len(r.Images) == 2 && r.JSON
	})).Return(provider.Response{}, errors.New("vision unavailable")).Twice()
	store.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(uploadEcho, nil).Times(4)

	require.NoError(t, stage.Requires(sc))
	result, err := stage.Process(context.Background(), sc)
	require.NoError(t, err)

	assert.Equal(t, models.PrintStatusInteriorGenerated, *result.StoryUpdate.PrintStatus)
	urls := result.StoryUpdate.PrintMetadata.InteriorURLs
	require.Len(t, urls, 2)
	assert.True(t, strings.HasSuffix(urls[0], "interior/page_01_c1.png"))
	assert.True(t, strings.HasSuffix(urls[1], "interior/page_02_c1.png"))
	assert.Equal(t, models.AssetRoleInterior, result.Assets[1].Metadata.Role)
	assert.Equal(t, 1, result.Assets[1].Metadata.Ordinal)
}

func TestInterior_PicksHighestScore(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	store := mocks.NewMockObjectStore(t)
	stage := NewInteriorStage(caller, store, testOptions())
	sc := newPrintContext(t, messaging.StageInterior)
	sc.Story.FinalText = models.StringPtr("Only one page.")
	sc.Story.PrintMetadata.CoverSpreadURL = "https://cdn.test/spread.png"

	caller.On("CallImage", mock.Anything, "story.interior", mock.Anything).
		Return(provider.ImageResponse{URL: "https://provider.test/img.png", Provider: "openai"}, nil).Twice()
	store.On("Download", mock.Anything, "https://provider.test/img.png").Return([]byte("img"), nil).Twice()
	store.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(uploadEcho, nil).Twice()
	caller.On("Call", mock.Anything, RouteInteriorScore, mock.Anything).
		Return(provider.Response{Output: `{"scores": [4, 8.5]}`}, nil).Once()

	result, err := stage.Process(context.Background(), sc)
	require.NoError(t, err)
	urls := result.StoryUpdate.PrintMetadata.InteriorURLs
	require.Len(t, urls, 1)
	assert.True(t, strings.HasSuffix(urls[0], "interior/page_01_c2.png"))
}

func TestCMYK_MissingCoverFailsWithoutStorageCalls(t *testing.T) {
	store := mocks.NewMockObjectStore(t)
	stage := NewCMYKStage(store, testOptions())
	sc := newPrintContext(t, messaging.StageCMYK)
	sc.Story.PrintMetadata = models.PrintMetadata{
		BackCoverURL: "https://cdn.test/back.png",
		InteriorURLs: []string{"https://cdn.test/p1.png"},
	}

	err := stage.Requires(sc)
	var integrity *models.IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, "print_metadata.front_cover_url", integrity.Artifact)
	assert.True(t, models.IsTerminal(err))
	store.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
}

func TestCMYK_ConvertsToTIFF(t *testing.T) {
	store := mocks.NewMockObjectStore(t)
	stage := NewCMYKStage(store, testOptions())
	sc := newPrintContext(t, messaging.StageCMYK)
	sc.Story.PrintMetadata = models.PrintMetadata{
		FrontCoverURL: "https://cdn.test/front.png",
		BackCoverURL:  "https://cdn.test/back.png",
		InteriorURLs:  []string{"https://cdn.test/p1.png"},
	}

	var uploaded [][]byte
	store.On("Download", mock.Anything, mock.Anything).Return(pngBytes(t, 32, 32), nil).Times(3)
	store.On("Upload", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { uploaded = append(uploaded, args.Get(2).([]byte)) }).
		Return(uploadEcho, nil).Times(3)

	require.NoError(t, stage.Requires(sc))
	result, err := stage.Process(context.Background(), sc)
	require.NoError(t, err)

	patch := result.StoryUpdate.PrintMetadata
	assert.Equal(t, models.PrintStatusCMYKConverted, *result.StoryUpdate.PrintStatus)
	assert.True(t, strings.HasSuffix(*patch.FrontCoverCMYKURL, "cmyk/front.tif"))
	assert.Equal(t, []string{"https://cdn.test/orders/" + sc.Order.ID.String() + "/cmyk/page_01.tif"}, patch.InteriorCMYKURLs)
	assert.Equal(t, "ISOcoated_v2_300_eci", *patch.ICCProfile)

	require.Len(t, uploaded, 3)
	img, err := imaging.Decode(uploaded[2])
	require.NoError(t, err)
	_, isCMYK := img.(*image.CMYK)
	assert.True(t, isCMYK)
	// 60 мм при 72 dpi
	assert.Equal(t, 170, img.Bounds().Dx())
}

func TestAssembly_BuildsEvenPagePDF(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	store := mocks.NewMockObjectStore(t)
	stage := NewAssemblyStage(caller, store, testOptions())
	sc := newPrintContext(t, messaging.StageAssembly)
	sc.Story.FinalText = models.StringPtr("Mia found a map.")
	sc.Story.PrintMetadata.InteriorCMYKURLs = []string{"https://cdn.test/page_01.tif"}

	src, err := imaging.Decode(pngBytes(t, 40, 40))
	require.NoError(t, err)
	tif, err := imaging.EncodeCMYKTIFF(imaging.ToCMYK(imaging.Upscale(src, 170, 170)))
	require.NoError(t, err)

	var doc []byte
	store.On("Download", mock.Anything, "https://cdn.test/page_01.tif").Return(tif, nil).Once()
	store.On("Upload", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasSuffix(key, "book.pdf")
	}), mock.Anything).
		Run(func(args mock.Arguments) { doc = args.Get(2).([]byte) }).
		Return(uploadEcho, nil).Once()

	require.NoError(t, stage.Requires(sc))
	result, err := stage.Process(context.Background(), sc)
	require.NoError(t, err)

	// посвящение + 1 страница + промо + пустая до четного
	assert.Equal(t, 4, *result.StoryUpdate.PrintMetadata.PageCount)
	assert.Equal(t, models.PrintStatusAssembled, *result.StoryUpdate.PrintStatus)
	require.Len(t, result.Assets, 1)
	assert.Equal(t, models.AssetTypePDF, result.Assets[0].Type)
	assert.Equal(t, models.AssetRoleBook, result.Assets[0].Metadata.Role)

	count, err := pdf.PageCount(doc)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Contains(t, string(doc), "ISOcoated_v2_300_eci")
}

func TestAssembly_OverlayPositionFallsBackToBottom(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	stage := NewAssemblyStage(caller, mocks.NewMockObjectStore(t), testOptions())
	sc := newPrintContext(t, messaging.StageAssembly)

	caller.On("Call", mock.Anything, RouteAssemblyOverlay, mock.Anything).
		Return(provider.Response{}, errors.New("timeout")).Once()
	caller.On("Call", mock.Anything, RouteAssemblyOverlay, mock.Anything).
		Return(provider.Response{Output: "Top third looks empty."}, nil).Once()
	caller.On("Call", mock.Anything, RouteAssemblyOverlay, mock.Anything).
		Return(provider.Response{Output: "no idea"}, nil).Once()

	ctx := context.Background()
	assert.Equal(t, imaging.PositionBottom, stage.overlayPosition(ctx, sc, "https://cdn.test/p.png", "text"))
	assert.Equal(t, imaging.PositionTop, stage.overlayPosition(ctx, sc, "https://cdn.test/p.png", "text"))
	assert.Equal(t, imaging.PositionBottom, stage.overlayPosition(ctx, sc, "https://cdn.test/p.png", "text"))
}

func handoffContext(t *testing.T, drive, hook bool) *pipeline.StageContext {
	sc := newPrintContext(t, messaging.StageHandoff)
	sc.Story.PrintMetadata.CoverSpreadURL = "https://cdn.test/spread.png"
	sc.Story.PrintMetadata.PDFURL = "https://cdn.test/book.pdf"
	if drive {
		sc.Partner.DriveFolderID = models.StringPtr("folder-1")
	}
	if hook {
		sc.Partner.WebhookURL = models.StringPtr("https://partner.test/hook")
		sc.Partner.WebhookSecret = models.StringPtr("whsec")
	}
	return sc
}

func TestDeriveHandoffStatus(t *testing.T) {
	assert.Equal(t, models.PrintStatusCompleted, deriveHandoffStatus(2, 2))
	assert.Equal(t, models.PrintStatusPartialUpload, deriveHandoffStatus(1, 2))
	assert.Equal(t, models.PrintStatusUploadFailed, deriveHandoffStatus(0, 2))
}

func TestHandoff_DriveOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		failing     map[string]bool
		wantStatus  models.PrintStatus
		wantFiles   int
		wantWebhook bool
	}{
		{name: "both uploaded", wantStatus: models.PrintStatusCompleted, wantFiles: 2, wantWebhook: true},
		{name: "pdf failed", failing: map[string]bool{".pdf": true}, wantStatus: models.PrintStatusPartialUpload, wantFiles: 1, wantWebhook: true},
		{name: "both failed", failing: map[string]bool{".pdf": true, ".png": true}, wantStatus: models.PrintStatusUploadFailed, wantFiles: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mocks.NewMockObjectStore(t)
			hooks := mocks.NewMockWebhookSender(t)
			uploader := &fakeUploader{failing: tt.failing}
			forcer := &fakeForcer{}
			stage := NewHandoffStage(store, uploader, hooks, forcer, fixedNow)
			sc := handoffContext(t, true, true)

			store.On("Download", mock.Anything, mock.Anything).Return([]byte("file"), nil).Twice()
			if tt.wantWebhook {
				hooks.On("Send", mock.Anything, "https://partner.test/hook", "whsec", mock.MatchedBy(func(p HandoffPayload) bool {
					return p.Status == string(tt.wantStatus) && p.DriveFolderID == "folder-1" && len(p.DriveFileIDs) == tt.wantFiles
				})).Return(nil).Once()
			}

			require.NoError(t, stage.Requires(sc))
			result, err := stage.Process(context.Background(), sc)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, *result.StoryUpdate.PrintStatus)
			assert.Len(t, result.StoryUpdate.PrintMetadata.DriveFileIDs, tt.wantFiles)
			assert.Equal(t, models.OrderStatusDelivered, *result.OrderStatus)
			assert.Equal(t, models.EventPrintHandedOff, result.EventType)
			assert.Equal(t, []string{"KCS-000042-cover-spread.png", "KCS-000042-inside-book.pdf"}, uploader.names)
			assert.Empty(t, forcer.forced)
		})
	}
}

func TestHandoff_NoDriveWithWebhook(t *testing.T) {
	store := mocks.NewMockObjectStore(t)
	hooks := mocks.NewMockWebhookSender(t)
	stage := NewHandoffStage(store, &fakeUploader{}, hooks, &fakeForcer{}, fixedNow)
	sc := handoffContext(t, false, true)

	counter := metrics.PrintHandoffTotal.WithLabelValues("completed", "false", "true")
	before := testutil.ToFloat64(counter)

	hooks.On("Send", mock.Anything, "https://partner.test/hook", "whsec", mock.MatchedBy(func(p HandoffPayload) bool {
		return p.OrderNumber == "KCS-000042" &&
			p.Status == "completed" &&
			p.InsideBookURL == "https://cdn.test/book.pdf" &&
			p.CoverSpreadURL == "https://cdn.test/spread.png" &&
			p.DriveFolderID == "" &&
			p.CompletedAt == "2024-06-01T12:00:00Z"
	})).Return(errors.New("partner is down")).Once()

	result, err := stage.Process(context.Background(), sc)
	require.NoError(t, err, "webhook failure must not fail the handoff")

	assert.Equal(t, models.PrintStatusCompleted, *result.StoryUpdate.PrintStatus)
	assert.Equal(t, "2024-06-01T12:00:00Z", *result.StoryUpdate.PrintMetadata.DeliveredAt)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestHandoff_DriveDisabledIgnoresFolder(t *testing.T) {
	stage := NewHandoffStage(mocks.NewMockObjectStore(t), nil, mocks.NewMockWebhookSender(t), &fakeForcer{}, fixedNow)
	sc := handoffContext(t, true, false)
	core, logs := observer.New(zap.WarnLevel)
	sc.Logger = zap.New(core)

	result, err := stage.Process(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, models.PrintStatusCompleted, *result.StoryUpdate.PrintStatus)
	assert.Empty(t, result.StoryUpdate.PrintMetadata.DriveFileIDs)
	assert.Equal(t, true, result.EventPayload["drive_skipped"])
	assert.Equal(t, false, result.EventPayload["has_drive"])

	warned := logs.FilterMessage("Partner has a Drive folder but Drive upload is disabled").All()
	require.Len(t, warned, 1)
	assert.Equal(t, "folder-1", warned[0].ContextMap()["drive_folder_id"])
}

func TestHandoff_PersistFailureForcesUploadFailed(t *testing.T) {
	forcer := &fakeForcer{}
	stage := NewHandoffStage(mocks.NewMockObjectStore(t), nil, mocks.NewMockWebhookSender(t), forcer, fixedNow)
	sc := handoffContext(t, false, true)

	err := stage.OnPersistFailure(context.Background(), sc, errors.New("tx commit: conn reset"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrHandoffAborted)
	assert.True(t, models.IsTerminal(err), "webhook may already be sent, redelivery is not allowed")
	assert.Contains(t, err.Error(), "conn reset")
	assert.Equal(t, []models.PrintStatus{models.PrintStatusUploadFailed}, forcer.forced)
}

func TestHandoff_RunnerPersistFailureIsTerminal(t *testing.T) {
	orders := mocks.NewMockOrderRepository(t)
	partners := mocks.NewMockPartnerRepository(t)
	stories := mocks.NewMockStoryRepository(t)
	assets := mocks.NewMockAssetRepository(t)
	hooks := mocks.NewMockWebhookSender(t)
	forcer := &fakeForcer{}
	tx := &mocks.TxRunner{}

	sc := handoffContext(t, false, true)
	sc.Order.Status = models.OrderStatusDelivering
	sc.Story.PrintStatus = models.PrintStatusPtr(models.PrintStatusAssembled)
	orderID := sc.Order.ID

	orders.On("GetByID", mock.Anything, mock.Anything, orderID).Return(sc.Order, nil)
	orders.On("GetBrief", mock.Anything, mock.Anything, orderID).Return(sc.Brief, nil)
	partners.On("GetByID", mock.Anything, mock.Anything, sc.Order.PartnerID).Return(sc.Partner, nil)
	stories.On("GetByOrderID", mock.Anything, mock.Anything, orderID).Return(sc.Story, nil)
	assets.On("ListByOrder", mock.Anything, mock.Anything, orderID).Return([]*models.Asset{}, nil)
	hooks.On("Send", mock.Anything, "https://partner.test/hook", "whsec", mock.Anything).Return(nil).Once()
	stories.On("Apply", mock.Anything, mock.Anything, orderID, mock.Anything).Return(errors.New("conn reset")).Once()

	runner := pipeline.NewRunner(pipeline.Deps{
		Tx:       tx,
		Partners: partners,
		Orders:   orders,
		Assets:   assets,
		Stories:  stories,
		Events:   mocks.NewMockEventRepository(t),
		Logger:   zap.NewNop(),
	})
	stage := NewHandoffStage(mocks.NewMockObjectStore(t), nil, hooks, forcer, fixedNow)

	err := runner.Run(context.Background(), stage, messaging.StageJob{OrderID: orderID})
	require.Error(t, err)
	assert.True(t, models.IsTerminal(err))
	assert.Equal(t, []models.PrintStatus{models.PrintStatusUploadFailed}, forcer.forced)
	assert.Equal(t, 1, tx.Rollbacks)
}

func TestHandoff_RequiresPDF(t *testing.T) {
	stage := NewHandoffStage(mocks.NewMockObjectStore(t), nil, mocks.NewMockWebhookSender(t), &fakeForcer{}, fixedNow)
	sc := handoffContext(t, false, false)
	sc.Story.PrintMetadata.PDFURL = ""

	var integrity *models.IntegrityError
	require.ErrorAs(t, stage.Requires(sc), &integrity)
	assert.Equal(t, "print_metadata.pdf_url", integrity.Artifact)
}

func TestHandoff_ErrorForcesUploadFailed(t *testing.T) {
	forcer := &fakeForcer{}
	stage := NewHandoffStage(mocks.NewMockObjectStore(t), nil, mocks.NewMockWebhookSender(t), forcer, fixedNow)
	sc := handoffContext(t, false, false)
	sc.Partner = nil

	_, err := stage.Process(context.Background(), sc)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrHandoffAborted)
	assert.True(t, models.IsTerminal(err))
	assert.Equal(t, []models.PrintStatus{models.PrintStatusUploadFailed}, forcer.forced)
}

func TestHandoff_PanicForcesUploadFailedAndRepanics(t *testing.T) {
	store := mocks.NewMockObjectStore(t)
	forcer := &fakeForcer{}
	stage := NewHandoffStage(store, &fakeUploader{panics: true}, mocks.NewMockWebhookSender(t), forcer, fixedNow)
	sc := handoffContext(t, true, true)

	store.On("Download", mock.Anything, mock.Anything).Return([]byte("file"), nil).Once()

	assert.PanicsWithValue(t, "drive client exploded", func() {
		_, _ = stage.Process(context.Background(), sc)
	})
	assert.Equal(t, []models.PrintStatus{models.PrintStatusUploadFailed}, forcer.forced)
}
