package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) Get(ctx context.Context, token string) ([]byte, error) {
	args := m.Called(ctx, token)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

func (m *mockStore) Put(ctx context.Context, token string, orderID uuid.UUID, stage string, output []byte) error {
	return m.Called(ctx, token, orderID, stage, output).Error(0)
}

func TestToken_DeterministicAndScoped(t *testing.T) {
	orderID := uuid.New()
	req := []byte(`{"prompt":"hello"}`)

	a := Token(orderID, "story.draft", req)
	assert.Len(t, a, 64)
	assert.Equal(t, a, Token(orderID, "story.draft", req))
	assert.NotEqual(t, a, Token(orderID, "story.revise", req))
	assert.NotEqual(t, a, Token(uuid.New(), "story.draft", req))
	assert.NotEqual(t, a, Token(orderID, "story.draft", []byte(`{"prompt":"hello!"}`)))
}

func TestGuard_HitSkipsCall(t *testing.T) {
	store := &mockStore{}
	orderID := uuid.New()
	req := []byte("req")
	store.On("Get", mock.Anything, Token(orderID, "story.draft", req)).Return([]byte("cached"), nil).Once()

	g := NewGuard(store, zap.NewNop())
	out, cached, err := g.Do(context.Background(), orderID, "story.draft", req, func(ctx context.Context) ([]byte, error) {
		t.Fatal("provider must not be called on ledger hit")
		return nil, nil
	})

	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, []byte("cached"), out)
	store.AssertExpectations(t)
}

func TestGuard_MissCallsAndStores(t *testing.T) {
	store := &mockStore{}
	orderID := uuid.New()
	req := []byte("req")
	token := Token(orderID, "story.draft", req)
	store.On("Get", mock.Anything, token).Return(nil, ErrMiss).Once()
	store.On("Put", mock.Anything, token, orderID, "story.draft", []byte("fresh")).Return(nil).Once()

	g := NewGuard(store, zap.NewNop())
	out, cached, err := g.Do(context.Background(), orderID, "story.draft", req, func(ctx context.Context) ([]byte, error) {
		return []byte("fresh"), nil
	})

	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []byte("fresh"), out)
	store.AssertExpectations(t)
}

func TestGuard_CallErrorIsNotStored(t *testing.T) {
	store := &mockStore{}
	store.On("Get", mock.Anything, mock.Anything).Return(nil, errors.New("redis down")).Once()

	g := NewGuard(store, zap.NewNop())
	_, _, err := g.Do(context.Background(), uuid.New(), "story.draft", []byte("x"), func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("provider down")
	})

	assert.EqualError(t, err, "provider down")
	store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGuard_NilStoreAlwaysCalls(t *testing.T) {
	var g *Guard
	out, cached, err := g.Do(context.Background(), uuid.New(), "story.draft", nil, func(ctx context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []byte("ok"), out)
}

func TestGuard_RejectedOutputIsNotStored(t *testing.T) {
	store := NewMemoryStore()
	orderID := uuid.New()
	outputs := [][]byte{[]byte("sorry"), []byte(`{"ok":true}`)}
	calls := 0
	call := func(ctx context.Context) ([]byte, error) {
		out := outputs[calls]
		calls++
		return out, nil
	}
	errUnparseable := errors.New("not json")
	accept := func(out []byte) error {
		if out[0] != '{' {
			return errUnparseable
		}
		return nil
	}
	g := NewGuard(store, zap.NewNop())

	_, _, err := g.DoChecked(context.Background(), orderID, "story.asset_plan", []byte("req"), call, accept)
	assert.ErrorIs(t, err, errUnparseable)
	assert.Zero(t, store.Len(), "rejected output must not be recorded")

	out, cached, err := g.DoChecked(context.Background(), orderID, "story.asset_plan", []byte("req"), call, accept)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, `{"ok":true}`, string(out))
	assert.Equal(t, 2, calls)

	out, cached, err = g.DoChecked(context.Background(), orderID, "story.asset_plan", []byte("req"), call, accept)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, `{"ok":true}`, string(out))
	assert.Equal(t, 2, calls, "accepted output is served from the ledger")
}

func TestGuard_RejectedLedgerEntryCallsAgain(t *testing.T) {
	store := NewMemoryStore()
	orderID := uuid.New()
	require.NoError(t, store.Put(context.Background(), Token(orderID, "story.style", []byte("req")), orderID, "story.style", []byte("")))

	g := NewGuard(store, zap.NewNop())
	out, cached, err := g.DoChecked(context.Background(), orderID, "story.style", []byte("req"),
		func(ctx context.Context) ([]byte, error) { return []byte("watercolor"), nil },
		func(out []byte) error {
			if len(out) == 0 {
				return errors.New("blank")
			}
			return nil
		})

	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "watercolor", string(out))
}
