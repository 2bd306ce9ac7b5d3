package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	router := gin.New()
	router.Use(ZapLoggingMiddlewareForGin(zap.New(core)))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/v1/orders", func(c *gin.Context) {
		c.Set(PartnerIDKey, "partner-1")
		c.Status(http.StatusConflict)
	})
	return router, logs
}

func TestZapLogging_SkipsHealth(t *testing.T) {
	router, logs := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, logs.Len())
	assert.Empty(t, rec.Header().Get(RequestIDHeader))
}

func TestZapLogging_ClientErrorWithRequestID(t *testing.T) {
	router, logs := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "partner-1", fields["partner_id"])
	assert.EqualValues(t, http.StatusConflict, fields["status"])
}
