package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "meeting_relay/pkg/errors"
	"meeting_relay/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newRouter(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLogger(logger.NewWithWriter("debug", buf)))
	router.Use(ErrorHandler())
	router.GET("/ok", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/missing", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("room %q: %w", "r1", apperrors.ErrRoomNotFound))
	})
	return router
}

func TestErrorHandler_MapsDomainErrors(t *testing.T) {
	var buf bytes.Buffer
	router := newRouter(&buf)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body["error"], "room not found")
}

func TestRequestLogger_WritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	router := newRouter(&buf)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok?x=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "Request served", line["message"])
	require.Equal(t, "/ok?x=1", line["path"])
	require.Equal(t, float64(http.StatusOK), line["status"])
}

func TestCORS_AllowsConfiguredOrigin(t *testing.T) {
	var buf bytes.Buffer
	handler := CORS([]string{"https://meet.example.com"})(newRouter(&buf))

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("Origin", "https://meet.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, "https://meet.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
