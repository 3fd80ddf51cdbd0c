// Package handlers 网关的HTTP和WebSocket处理器
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health 健康检查
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "aliyun_voice_wizard",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// MethodNotAllowed 返回JSON格式的405
func MethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
}
