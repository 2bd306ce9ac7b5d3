package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kcs-server/shared/messaging"
	"kcs-server/shared/metrics"
	"kcs-server/shared/mocks"
	"kcs-server/shared/models"
	"kcs-server/shared/webhook"
)

const (
	testAPIKey = "pk_test_acme"
	testSecret = "sign-me"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

const validBody = `{
	"version": "2024-06",
	"product_sku": "BOOK-HC-24",
	"customer": {"email": "parent@example.com", "name": "Anna Smith"},
	"currency": "EUR",
	"allow_edits": false,
	"brief": {
		"child": {"name": "Mia", "age": 7, "gender": "girl"},
		"characters": [{"name": "Rex", "relation": "dog"}],
		"theme": "space",
		"avoid_topics": ["monsters"]
	},
	"uploads": [
		{"asset_id": "a1", "url": "https://cdn.partner.test/mia.jpg", "usage": "child_photo", "filename": "mia.jpg"},
		{"asset_id": "a2", "url": "https://cdn.partner.test/rex.jpg", "usage": "supporting_character", "filename": "rex.jpg"}
	]
}`

type staticPartners map[string]*models.Partner

func (s staticPartners) GetByAPIKey(_ context.Context, apiKey string) (*models.Partner, error) {
	if p, ok := s[apiKey]; ok {
		return p, nil
	}
	return nil, models.ErrNotFound
}

type intakeFixture struct {
	svc       *IntakeService
	partner   *models.Partner
	tx        *mocks.TxRunner
	orders    *mocks.MockOrderRepository
	assets    *mocks.MockAssetRepository
	events    *mocks.MockEventRepository
	outbox    *mocks.MockOutboxRepository
	publisher *mocks.MockPublisher
}

func newIntakeFixture(t *testing.T) *intakeFixture {
	t.Helper()
	webhookURL := "https://partner.test/hooks"
	webhookSecret := "hook-secret"
	f := &intakeFixture{
		partner: &models.Partner{
			ID:            uuid.New(),
			APIKey:        testAPIKey,
			Name:          "Acme Books",
			Active:        true,
			SigningSecret: testSecret,
			WebhookURL:    &webhookURL,
			WebhookSecret: &webhookSecret,
		},
		tx:        &mocks.TxRunner{},
		orders:    mocks.NewMockOrderRepository(t),
		assets:    mocks.NewMockAssetRepository(t),
		events:    mocks.NewMockEventRepository(t),
		outbox:    mocks.NewMockOutboxRepository(t),
		publisher: mocks.NewMockPublisher(t),
	}
	f.svc = NewIntakeService(Deps{
		Tx:        f.tx,
		Partners:  staticPartners{testAPIKey: f.partner},
		Orders:    f.orders,
		Assets:    f.assets,
		Events:    f.events,
		Outbox:    f.outbox,
		Publisher: f.publisher,
		Now:       func() time.Time { return fixedNow },
		Logger:    zap.NewNop(),
	})
	return f
}

func signedRequest(body, key string, at time.Time) SubmitRequest {
	ts := strconv.FormatInt(at.Unix(), 10)
	return SubmitRequest{
		APIKey:         testAPIKey,
		IdempotencyKey: key,
		Timestamp:      ts,
		Signature:      webhook.Sign(testSecret, []byte(ts+"."+body)),
		Body:           []byte(body),
	}
}

// expectCreate настраивает успешную транзакцию создания заказа.
func (f *intakeFixture) expectCreate() {
	f.orders.On("Create", mock.Anything, mock.Anything, mock.AnythingOfType("*models.Order")).
		Run(func(args mock.Arguments) { args.Get(2).(*models.Order).Number = 42 }).
		Return(nil).Once()
	f.orders.On("CreateBrief", mock.Anything, mock.Anything, mock.AnythingOfType("*models.OrderBrief")).Return(nil).Once()
	f.assets.On("Create", mock.Anything, mock.Anything, mock.AnythingOfType("*models.Asset")).Return(nil).Times(2)
	f.events.On("Append", mock.Anything, mock.Anything, mock.AnythingOfType("*models.Event")).Return(nil).Once()
	f.outbox.On("Create", mock.Anything, mock.Anything, mock.AnythingOfType("*models.WebhookOutbox")).Return(nil).Once()
	f.publisher.On("PublishStage", mock.Anything, messaging.StageImageAnalysis, mock.AnythingOfType("messaging.StageJob")).Return(nil).Once()
}

func TestSubmit_Accepted(t *testing.T) {
	f := newIntakeFixture(t)
	f.orders.On("FindByIdempotencyKey", mock.Anything, mock.Anything, f.partner.ID, "key-1").Return(nil, models.ErrNotFound).Once()
	f.expectCreate()

	before := testutil.ToFloat64(metrics.IntakeOrdersTotal.WithLabelValues(OutcomeAccepted))
	accepted, err := f.svc.Submit(context.Background(), signedRequest(validBody, "key-1", fixedNow))
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusQueued, accepted.Status)
	assert.Equal(t, fixedNow, accepted.AcceptedAt)
	assert.Equal(t, f.partner.ID, accepted.PartnerID)
	assert.NotEqual(t, uuid.Nil, accepted.OrderID)
	assert.Equal(t, 1, f.tx.Commits)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.IntakeOrdersTotal.WithLabelValues(OutcomeAccepted)))

	order := f.orders.Calls[1].Arguments.Get(2).(*models.Order)
	assert.Equal(t, "EUR", order.Currency)
	assert.Equal(t, "key-1", order.IdempotencyKey)

	brief := f.orders.Calls[2].Arguments.Get(2).(*models.OrderBrief)
	assert.Equal(t, "6-8", brief.ReadingLevel)
	assert.Equal(t, []string{"monsters"}, brief.Constraints.ExcludedTopics)
	assert.JSONEq(t, validBody, string(brief.RawPayload))

	first := f.assets.Calls[0].Arguments.Get(2).(*models.Asset)
	second := f.assets.Calls[1].Arguments.Get(2).(*models.Asset)
	assert.Equal(t, "https://cdn.partner.test/mia.jpg", first.URL)
	assert.Equal(t, models.AssetRoleChild, first.Metadata.Role)
	assert.Equal(t, models.AssetRoleSupporting, second.Metadata.Role)
	assert.Equal(t, 1, second.Metadata.Ordinal)

	event := f.events.Calls[0].Arguments.Get(2).(*models.Event)
	assert.Equal(t, models.EventOrderCreated, event.Type)
	var payload OrderCreatedPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "KCS-000042", payload.OrderNumber)
	assert.Equal(t, "queued", payload.Status)
	assert.Equal(t, "2024-06-01T12:00:00Z", payload.AcceptedAt)

	entry := f.outbox.Calls[0].Arguments.Get(2).(*models.WebhookOutbox)
	assert.Equal(t, f.partner.ID, entry.PartnerID)
	assert.JSONEq(t, string(event.Payload), string(entry.Payload))

	job := f.publisher.Calls[0].Arguments.Get(2).(messaging.StageJob)
	assert.Equal(t, accepted.OrderID, job.OrderID)
}

func TestSubmit_SecondSubmitConflicts(t *testing.T) {
	f := newIntakeFixture(t)
	existing := &models.Order{ID: uuid.New(), PartnerID: f.partner.ID, IdempotencyKey: "key-1"}
	f.orders.On("FindByIdempotencyKey", mock.Anything, mock.Anything, f.partner.ID, "key-1").Return(nil, models.ErrNotFound).Once()
	f.orders.On("FindByIdempotencyKey", mock.Anything, mock.Anything, f.partner.ID, "key-1").Return(existing, nil).Once()
	f.expectCreate()

	_, err := f.svc.Submit(context.Background(), signedRequest(validBody, "key-1", fixedNow))
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), signedRequest(validBody, "key-1", fixedNow))
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, 1, f.tx.Commits)
	f.orders.AssertNumberOfCalls(t, "Create", 1)
}

func TestSubmit_UniqueRaceIsConflict(t *testing.T) {
	f := newIntakeFixture(t)
	f.orders.On("FindByIdempotencyKey", mock.Anything, mock.Anything, f.partner.ID, "key-1").Return(nil, models.ErrNotFound).Once()
	f.orders.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(models.ErrConflict).Once()

	_, err := f.svc.Submit(context.Background(), signedRequest(validBody, "key-1", fixedNow))
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, 1, f.tx.Rollbacks)
}

func TestSubmit_MutatedBodyIsUnauthorized(t *testing.T) {
	f := newIntakeFixture(t)
	req := signedRequest(validBody, "key-1", fixedNow)
	// Тело испорчено после подписи и заодно перестало быть валидным JSON.
	req.Body = append(req.Body[:len(req.Body)-1:len(req.Body)-1], []byte(`,"x":1`)...)

	_, err := f.svc.Submit(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	var verr *models.ValidationError
	assert.False(t, errors.As(err, &verr))
}

func TestSubmit_AuthBeforeIdempotencyKey(t *testing.T) {
	f := newIntakeFixture(t)

	req := signedRequest(validBody, "", fixedNow)
	req.APIKey = "pk_unknown"
	_, err := f.svc.Submit(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = f.svc.Submit(context.Background(), signedRequest(validBody, "  ", fixedNow))
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldErrors, "Idempotency-Key")
}

func TestSubmit_RejectsBadCredentials(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *intakeFixture, r *SubmitRequest)
	}{
		{"missing api key", func(_ *intakeFixture, r *SubmitRequest) { r.APIKey = "" }},
		{"inactive partner", func(f *intakeFixture, _ *SubmitRequest) { f.partner.Active = false }},
		{"stale timestamp", func(_ *intakeFixture, r *SubmitRequest) {
			*r = signedRequest(validBody, "key-1", fixedNow.Add(-6*time.Minute))
		}},
		{"future timestamp", func(_ *intakeFixture, r *SubmitRequest) {
			*r = signedRequest(validBody, "key-1", fixedNow.Add(6*time.Minute))
		}},
		{"garbage timestamp", func(_ *intakeFixture, r *SubmitRequest) { r.Timestamp = "yesterday" }},
		{"wrong secret", func(_ *intakeFixture, r *SubmitRequest) {
			r.Signature = webhook.Sign("other", []byte(r.Timestamp+"."+validBody))
		}},
		{"non-hex signature", func(_ *intakeFixture, r *SubmitRequest) { r.Signature = "zz" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIntakeFixture(t)
			req := signedRequest(validBody, "key-1", fixedNow)
			tt.mutate(f, &req)

			_, err := f.svc.Submit(context.Background(), req)
			assert.ErrorIs(t, err, models.ErrUnauthorized)
		})
	}
}

func TestSubmit_WithinSkewIsAccepted(t *testing.T) {
	f := newIntakeFixture(t)
	f.orders.On("FindByIdempotencyKey", mock.Anything, mock.Anything, f.partner.ID, "key-1").Return(nil, models.ErrNotFound).Once()
	f.expectCreate()

	_, err := f.svc.Submit(context.Background(), signedRequest(validBody, "key-1", fixedNow.Add(-4*time.Minute)))
	assert.NoError(t, err)
}

func TestSubmit_CollectsFieldErrors(t *testing.T) {
	f := newIntakeFixture(t)
	body := `{
		"version": "2023-01",
		"product_sku": "BOOK",
		"customer": {"email": "not-an-email", "name": "Anna"},
		"currency": "ZZZ",
		"brief": {"child": {"name": "Mia", "age": 20}, "reading_level": "1-2"},
		"uploads": [{"asset_id": "a1", "url": "nope", "usage": "selfie", "filename": "x.jpg"}]
	}`

	_, err := f.svc.Submit(context.Background(), signedRequest(body, "key-1", fixedNow))
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must be 2024-06", verr.FieldErrors["version"])
	assert.Equal(t, "must be a valid email", verr.FieldErrors["customer.email"])
	assert.Equal(t, "must be an ISO-4217 currency code", verr.FieldErrors["currency"])
	assert.Equal(t, "must be at most 14", verr.FieldErrors["brief.child.age"])
	assert.Contains(t, verr.FieldErrors, "brief.reading_level")
	assert.Equal(t, "must be a valid URL", verr.FieldErrors["uploads[0].url"])
	assert.Contains(t, verr.FieldErrors, "uploads[0].usage")
}

func TestSubmit_RejectsMalformedBodies(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"unknown field", `{"version":"2024-06","surprise":true}`, "surprise"},
		{"wrong type", `{"version":"2024-06","allow_edits":"yes"}`, "allow_edits"},
		{"syntax", `{"version":`, "body"},
		{"empty", ``, "body"},
		{"two objects", `{"version":"2024-06"} {}`, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIntakeFixture(t)
			_, err := f.svc.Submit(context.Background(), signedRequest(tt.body, "key-1", fixedNow))
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.FieldErrors, tt.field)
		})
	}
}

func TestSubmit_PublishFailureRollsBack(t *testing.T) {
	f := newIntakeFixture(t)
	f.orders.On("FindByIdempotencyKey", mock.Anything, mock.Anything, f.partner.ID, "key-1").Return(nil, models.ErrNotFound).Once()
	f.orders.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	f.orders.On("CreateBrief", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	f.assets.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil).Times(2)
	f.events.On("Append", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	f.outbox.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	f.publisher.On("PublishStage", mock.Anything, messaging.StageImageAnalysis, mock.Anything).Return(errors.New("broker down")).Once()

	accepted, err := f.svc.Submit(context.Background(), signedRequest(validBody, "key-1", fixedNow))
	assert.Nil(t, accepted)
	assert.ErrorIs(t, err, models.ErrTransient)
	assert.Equal(t, OutcomeError, Outcome(err))
	assert.Equal(t, 1, f.tx.Rollbacks)
	assert.Zero(t, f.tx.Commits)
}

func TestSubmit_NoWebhookSkipsOutbox(t *testing.T) {
	f := newIntakeFixture(t)
	f.partner.WebhookURL = nil
	f.orders.On("FindByIdempotencyKey", mock.Anything, mock.Anything, f.partner.ID, "key-1").Return(nil, models.ErrNotFound).Once()
	f.orders.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	f.orders.On("CreateBrief", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	f.assets.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil).Times(2)
	f.events.On("Append", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	f.publisher.On("PublishStage", mock.Anything, messaging.StageImageAnalysis, mock.Anything).Return(nil).Once()

	_, err := f.svc.Submit(context.Background(), signedRequest(validBody, "key-1", fixedNow))
	require.NoError(t, err)
	f.outbox.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeAccepted, Outcome(nil))
	assert.Equal(t, OutcomeInvalid, Outcome(models.NewValidationError()))
	assert.Equal(t, OutcomeUnauthorized, Outcome(models.ErrUnauthorized))
	assert.Equal(t, OutcomeConflict, Outcome(models.ErrConflict))
	assert.Equal(t, OutcomeError, Outcome(errors.New("boom")))
}
