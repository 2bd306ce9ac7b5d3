package drive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/option"
)

func TestClient_Upload(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/files"), r.URL.Path)
		assert.Contains(t, string(body), "folder-1")
		assert.Contains(t, string(body), "%PDF-fake")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"drv-123"}`))
	}))
	defer srv.Close()

	client, err := New(context.Background(), "", zaptest.NewLogger(t),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)

	id, err := client.Upload(context.Background(), "folder-1", "book.pdf", "application/pdf", []byte("%PDF-fake"))
	require.NoError(t, err)
	assert.Equal(t, "drv-123", id)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_UploadRequiresFolder(t *testing.T) {
	client := &Client{logger: zaptest.NewLogger(t)}
	_, err := client.Upload(context.Background(), "", "book.pdf", "application/pdf", nil)
	assert.Error(t, err)
}
