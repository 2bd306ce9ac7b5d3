package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kcs-server/shared/ledger"
	"kcs-server/shared/messaging"
	"kcs-server/shared/models"
	"kcs-server/shared/provider"
)

// scriptedProvider отвечает по очереди заранее заданными текстами.
type scriptedProvider struct {
	outputs []string
	calls   int
}

func (p *scriptedProvider) Name() string { return "openai" }

func (p *scriptedProvider) Chat(_ context.Context, _ string, _ provider.Request) (provider.Response, error) {
	out := p.outputs[len(p.outputs)-1]
	if p.calls < len(p.outputs) {
		out = p.outputs[p.calls]
	}
	p.calls++
	return provider.Response{Output: out, PromptTokens: 1, CompletionTokens: 1}, nil
}

func newLedgerClient(t *testing.T, p provider.Provider, store ledger.Store) *provider.Client {
	t.Helper()
	reg, err := provider.NewRegistry(provider.Routes{Default: provider.Route{
		Primary: provider.Target{Provider: "openai", Model: "gpt-4o"},
	}}, p)
	require.NoError(t, err)
	return provider.NewClient(reg, ledger.NewGuard(store, zap.NewNop()), zap.NewNop())
}

func TestAssetPlanStage_RedeliveryRecoversFromUnparseableOutput(t *testing.T) {
	p := &scriptedProvider{outputs: []string{
		"sorry",
		`{"characters":[{"name":"Mia","role":"main-character","description":"brave"}]}`,
	}}
	store := ledger.NewMemoryStore()
	stage := newAssetPlanStage(newLedgerClient(t, p, store))
	sc := newStageContext(t, messaging.StageAssetPlan, samplePayload())

	_, err := stage.Process(context.Background(), sc)
	require.ErrorIs(t, err, models.ErrTransient)
	assert.Zero(t, store.Len(), "unparseable output must not be recorded")

	// Повторная доставка задания идет к провайдеру заново.
	result, err := stage.Process(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
	assert.Equal(t, "Mia", result.StoryUpdate.AssetPlan.Characters[0].Name)
	assert.Equal(t, 1, store.Len())

	// Принятый ответ берется из ledger.
	_, err = stage.Process(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
}

func TestStyleStage_BlankOutputIsRetried(t *testing.T) {
	p := &scriptedProvider{outputs: []string{"   ", "Soft watercolor with warm light."}}
	stage := newStyleStage(newLedgerClient(t, p, ledger.NewMemoryStore()))
	sc := newStageContext(t, messaging.StageStyle, samplePayload())
	sc.Story = &models.Story{
		OrderID:   sc.Order.ID,
		AssetPlan: models.AssetPlan{Characters: []models.Character{{Name: "Mia", Role: models.AssetRoleMainCharacter}}},
	}

	_, err := stage.Process(context.Background(), sc)
	require.ErrorIs(t, err, models.ErrTransient)

	result, err := stage.Process(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, "Soft watercolor with warm light.", *result.StoryUpdate.AssetPlan.Style)
}
