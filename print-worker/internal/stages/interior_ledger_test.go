package stages

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kcs-server/shared/ledger"
	"kcs-server/shared/messaging"
	"kcs-server/shared/provider"
)

// countingImageProvider отдает новое изображение на каждый вызов генерации.
type countingImageProvider struct {
	mu         sync.Mutex
	imageCalls int
	chatCalls  int
	variants   []int
	scores     string
}

func (p *countingImageProvider) Name() string { return "openai" }

func (p *countingImageProvider) Chat(_ context.Context, _ string, _ provider.Request) (provider.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chatCalls++
	return provider.Response{Output: p.scores, PromptTokens: 1, CompletionTokens: 1}, nil
}

func (p *countingImageProvider) GenerateImage(_ context.Context, _ string, req provider.ImageRequest) (provider.ImageResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.imageCalls++
	p.variants = append(p.variants, req.Variant)
	img := fmt.Sprintf("image-%d", p.imageCalls)
	return provider.ImageResponse{B64: base64.StdEncoding.EncodeToString([]byte(img))}, nil
}

type recordingStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *recordingStore) Upload(_ context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return "https://cdn.test/" + key, nil
}

func (s *recordingStore) Download(_ context.Context, url string) ([]byte, error) {
	return nil, fmt.Errorf("unexpected download of %s", url)
}

func (s *recordingStore) PublicURL(key string) string { return "https://cdn.test/" + key }

func (s *recordingStore) object(suffix string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, data := range s.objects {
		if strings.HasSuffix(key, suffix) {
			return data
		}
	}
	return nil
}

func TestInterior_LedgerKeepsCandidatesDistinct(t *testing.T) {
	p := &countingImageProvider{scores: `{"scores": [3, 9]}`}
	reg, err := provider.NewRegistry(provider.Routes{Default: provider.Route{
		Primary: provider.Target{Provider: "openai", Model: "gpt-image-1"},
	}}, p)
	require.NoError(t, err)
	store := ledger.NewMemoryStore()
	client := provider.NewClient(reg, ledger.NewGuard(store, zap.NewNop()), zap.NewNop())

	objects := &recordingStore{objects: map[string][]byte{}}
	stage := NewInteriorStage(client, objects, testOptions())
	sc := newPrintContext(t, messaging.StageInterior)
	sc.Story.PrintMetadata.CoverSpreadURL = "https://cdn.test/spread.png"

	result, err := stage.Process(context.Background(), sc)
	require.NoError(t, err)

	assert.Equal(t, 4, p.imageCalls, "2 pages x 2 candidates must each reach the provider")
	assert.ElementsMatch(t, []int{0, 1, 0, 1}, p.variants)
	for page := 1; page <= 2; page++ {
		c1 := objects.object(fmt.Sprintf("page_%02d_c1.png", page))
		c2 := objects.object(fmt.Sprintf("page_%02d_c2.png", page))
		require.NotNil(t, c1)
		require.NotNil(t, c2)
		assert.NotEqual(t, c1, c2, "page %d candidates must differ", page)
	}
	urls := result.StoryUpdate.PrintMetadata.InteriorURLs
	require.Len(t, urls, 2)
	assert.True(t, strings.HasSuffix(urls[0], "interior/page_01_c2.png"))
	assert.True(t, strings.HasSuffix(urls[1], "interior/page_02_c2.png"))

	// Повторная доставка берет кандидатов и оценки из ledger.
	_, err = stage.Process(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, 4, p.imageCalls)
	assert.Equal(t, 2, p.chatCalls)
}
