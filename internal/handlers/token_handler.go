package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aliyun_voice_wizard/internal/clients/aliyun"
	"aliyun_voice_wizard/internal/logger"
	"aliyun_voice_wizard/internal/metrics"
	"aliyun_voice_wizard/internal/models"
)

// TokenHandler 获取Token处理器
type TokenHandler struct {
	issuer  aliyun.TokenIssuer
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

// NewTokenHandler 创建Token处理器
func NewTokenHandler(issuer aliyun.TokenIssuer, logger *zap.SugaredLogger, m *metrics.Metrics) *TokenHandler {
	return &TokenHandler{issuer: issuer, logger: logger, metrics: m}
}

// GetToken POST /api/get-token
func (h *TokenHandler) GetToken(c *gin.Context) {
	var req models.TokenRequest
	// 请求体无法解析时按缺少参数处理
	_ = c.ShouldBindJSON(&req)

	if req.AccessKeyID == "" || req.AccessKeySecret == "" {
		c.JSON(http.StatusBadRequest, models.TokenResponse{
			Success:   false,
			Error:     "缺少AccessKey ID或Secret",
			ErrorType: models.ErrorTypeCredential,
		})
		return
	}

	h.logger.Infow("获取Token请求", "accessKeyId", logger.Mask(req.AccessKeyID, 8))

	token, err := h.issuer.CreateToken(c.Request.Context(), req.AccessKeyID, req.AccessKeySecret)
	if err != nil {
		failure := aliyun.ClassifyTokenError(err)
		h.logger.Warnw("获取Token失败", "code", failure.Code, "errorType", failure.ErrorType, "error", err)
		h.metrics.TokenRequests.WithLabelValues(metrics.Result(false)).Inc()
		c.JSON(http.StatusBadRequest, models.TokenResponse{
			Success:   false,
			Error:     failure.Message,
			ErrorType: failure.ErrorType,
			Code:      failure.Code,
		})
		return
	}

	h.logger.Infow("Token获取成功", "token", logger.Mask(token.ID, 16), "expireTime", token.ExpireTime)
	h.metrics.TokenRequests.WithLabelValues(metrics.Result(true)).Inc()
	c.JSON(http.StatusOK, models.TokenResponse{
		Success:    true,
		Token:      token.ID,
		ExpireTime: token.ExpireTime,
	})
}
