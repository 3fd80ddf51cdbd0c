package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aliyun_voice_wizard/internal/clients/aliyun"
	"aliyun_voice_wizard/internal/logger"
	"aliyun_voice_wizard/internal/metrics"
	"aliyun_voice_wizard/internal/models"
)

// Confidence 一句话识别不返回置信度，固定为0.9
const Confidence = 0.9

// SpeechRecognizer 一句话识别
type SpeechRecognizer interface {
	Recognize(ctx context.Context, params aliyun.RecognizeParams, audio []byte) (*aliyun.Recognition, error)
}

// RecognizeHandler 一句话识别处理器
type RecognizeHandler struct {
	recognizer SpeechRecognizer
	logger     *zap.SugaredLogger
	metrics    *metrics.Metrics
}

// NewRecognizeHandler 创建识别处理器
func NewRecognizeHandler(recognizer SpeechRecognizer, logger *zap.SugaredLogger, m *metrics.Metrics) *RecognizeHandler {
	return &RecognizeHandler{recognizer: recognizer, logger: logger, metrics: m}
}

// Recognize POST /api/recognize-audio
func (h *RecognizeHandler) Recognize(c *gin.Context) {
	var req models.RecognizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.RecognizeResponse{Success: false, Error: "请求格式错误: " + err.Error()})
		return
	}
	if req.Token == "" || len(req.AudioData) == 0 {
		c.JSON(http.StatusBadRequest, models.RecognizeResponse{Success: false, Error: "缺少必要参数: token 或 audioData"})
		return
	}

	params := aliyun.RecognizeParams{
		AppKey:     req.AppKey,
		Token:      req.Token,
		Format:     req.Format,
		SampleRate: req.SampleRate,
	}
	if params.Format == "" {
		params.Format = "pcm"
	}
	if params.SampleRate == 0 {
		params.SampleRate = 16000
	}

	h.logger.Infow("语音识别请求",
		"bytes", len(req.AudioData),
		"format", params.Format,
		"sampleRate", params.SampleRate,
		"appKey", logger.Mask(params.AppKey, 8),
	)
	h.metrics.AudioBytes.Observe(float64(len(req.AudioData)))

	result, err := h.recognizer.Recognize(c.Request.Context(), params, req.AudioData)
	if err != nil {
		h.logger.Warnw("语音识别失败", "error", err)
		h.metrics.Recognitions.WithLabelValues(metrics.Result(false)).Inc()
		c.JSON(http.StatusBadRequest, models.RecognizeResponse{Success: false, Error: err.Error()})
		return
	}

	h.logger.Infow("语音识别成功", "taskId", result.TaskID, "result", result.Text)
	h.metrics.Recognitions.WithLabelValues(metrics.Result(true)).Inc()
	c.JSON(http.StatusOK, models.RecognizeResponse{
		Success:    true,
		Result:     result.Text,
		Confidence: Confidence,
		Timestamp:  time.Now().UnixMilli(),
	})
}
