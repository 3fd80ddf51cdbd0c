// Package routes 注册网关路由
package routes

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"aliyun_voice_wizard/internal/handlers"
	"aliyun_voice_wizard/internal/metrics"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Token     *handlers.TokenHandler
	Recognize *handlers.RecognizeHandler
	Stream    *handlers.StreamHandler
	Metrics   *metrics.Metrics
	StaticDir string
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, h Handlers) {
	r.HandleMethodNotAllowed = true
	r.NoMethod(handlers.MethodNotAllowed)

	r.GET("/health", handlers.Health)
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	api := r.Group("/api")
	api.POST("/get-token", h.Token.GetToken)
	api.POST("/recognize-audio", h.Recognize.Recognize)

	r.GET("/ws", h.Stream.HandleWebSocket)

	if h.StaticDir != "" {
		if info, err := os.Stat(h.StaticDir); err == nil && info.IsDir() {
			r.NoRoute(gin.WrapH(http.FileServer(http.Dir(h.StaticDir))))
		}
	}
}
