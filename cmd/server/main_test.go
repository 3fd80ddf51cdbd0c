package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aliyun_voice_wizard/internal/config"
	"aliyun_voice_wizard/internal/logger"
	"aliyun_voice_wizard/internal/metrics"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Server.StaticDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Server.StaticDir, "app.js"), []byte("console.log(1)"), 0o644))
	return newEngine(cfg, logger.Nop(), metrics.New(prometheus.NewRegistry()))
}

func TestEngineRoutes(t *testing.T) {
	r := newTestEngine(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"健康检查", http.MethodGet, "/health", "", http.StatusOK},
		{"指标", http.MethodGet, "/metrics", "", http.StatusOK},
		{"静态页面", http.MethodGet, "/app.js", "", http.StatusOK},
		{"缺少凭据", http.MethodPost, "/api/get-token", `{"appKey":"a"}`, http.StatusBadRequest},
		{"缺少音频", http.MethodPost, "/api/recognize-audio", `{"token":"t"}`, http.StatusBadRequest},
		{"方法不允许", http.MethodGet, "/api/get-token", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestEngineCORSPreflight(t *testing.T) {
	r := newTestEngine(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/get-token", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
