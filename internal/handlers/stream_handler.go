package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"aliyun_voice_wizard/internal/clients/nls"
	"aliyun_voice_wizard/internal/config"
	"aliyun_voice_wizard/internal/metrics"
	"aliyun_voice_wizard/internal/models"
)

// StreamSession 一次上游实时识别
type StreamSession interface {
	Start(ctx context.Context, params nls.StartParams) error
	Events() <-chan nls.Event
	SendAudio(data []byte) error
	Stop(ctx context.Context) error
	Close() error
}

// StreamDialer 打开上游实时识别
type StreamDialer interface {
	Open(ctx context.Context, token, appKey string) (StreamSession, error)
}

// NLSDialer 连接阿里云实时识别网关
type NLSDialer struct {
	Config nls.Config
	Logger *zap.SugaredLogger
}

// Open 建立上游连接
func (d *NLSDialer) Open(ctx context.Context, token, appKey string) (StreamSession, error) {
	t, err := nls.Dial(ctx, d.Config, token, appKey, d.Logger)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// StreamHandler /ws 实时识别桥接
type StreamHandler struct {
	dialer   StreamDialer
	upgrader websocket.Upgrader
	config   config.WebSocketConfig
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics
}

// NewStreamHandler 创建桥接处理器
func NewStreamHandler(dialer StreamDialer, cfg config.WebSocketConfig, logger *zap.SugaredLogger, m *metrics.Metrics) *StreamHandler {
	return &StreamHandler{
		dialer: dialer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		config:  cfg,
		logger:  logger,
		metrics: m,
	}
}

// HandleWebSocket 处理 WebSocket 连接
func (h *StreamHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("升级 WebSocket 连接失败", "error", err)
		return
	}

	h.metrics.StreamSessions.Inc()
	defer h.metrics.StreamSessions.Dec()

	b := &bridge{handler: h, conn: conn, quit: make(chan struct{})}
	defer b.close()

	if h.config.PongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
		})
	}
	if h.config.PingPeriod > 0 {
		go b.keepAlive(h.config.PingPeriod)
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warnw("读取 WebSocket 消息错误", "error", err)
			}
			return
		}

		if messageType == websocket.BinaryMessage {
			b.audio(data)
			continue
		}

		var msg models.StreamClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			b.send(models.StreamServerMessage{Type: models.StreamError, Message: "消息格式错误"})
			continue
		}

		switch msg.Type {
		case models.StreamStart:
			b.start(c.Request.Context(), msg)
		case models.StreamAudio:
			b.audio(msg.Data)
		case models.StreamStop:
			b.stop()
		default:
			b.send(models.StreamServerMessage{Type: models.StreamError, Message: "未知的消息类型: " + msg.Type})
		}
	}
}

// bridge 单个客户端连接。session只在读循环中访问
type bridge struct {
	handler *StreamHandler
	conn    *websocket.Conn
	writeMu sync.Mutex
	quit    chan struct{}

	session   StreamSession
	forwarded chan struct{}
}

func (b *bridge) send(msg models.StreamServerMessage) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.conn.WriteJSON(msg); err != nil {
		b.handler.logger.Debugw("发送消息失败", "type", msg.Type, "error", err)
		return
	}
	b.handler.metrics.StreamEvents.WithLabelValues(msg.Type).Inc()
}

func (b *bridge) keepAlive(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-b.quit:
			return
		case <-ticker.C:
			b.writeMu.Lock()
			err := b.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(period))
			b.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (b *bridge) start(ctx context.Context, msg models.StreamClientMessage) {
	if b.session != nil {
		b.send(models.StreamServerMessage{Type: models.StreamError, Message: "识别已在进行中"})
		return
	}
	if msg.Token == "" || msg.AppKey == "" {
		b.send(models.StreamServerMessage{Type: models.StreamError, Message: "缺少token或appKey"})
		return
	}

	session, err := b.handler.dialer.Open(ctx, msg.Token, msg.AppKey)
	if err != nil {
		b.handler.logger.Warnw("连接实时识别失败", "error", err)
		b.send(models.StreamServerMessage{Type: models.StreamError, Message: err.Error()})
		return
	}

	b.session = session
	b.forwarded = make(chan struct{})
	go b.forward(session, b.forwarded)

	if err := session.Start(ctx, nls.DefaultStartParams()); err != nil {
		b.handler.logger.Warnw("启动实时识别失败", "error", err)
		b.send(models.StreamServerMessage{Type: models.StreamError, Message: err.Error()})
		b.closeSession()
	}
}

// forward 把上游事件转换为客户端消息，上游结束后发送closed
func (b *bridge) forward(session StreamSession, done chan struct{}) {
	defer close(done)
	for event := range session.Events() {
		switch event.Name {
		case nls.EventStarted:
			b.send(models.StreamServerMessage{Type: models.StreamStarted})
		case nls.EventResultChanged:
			b.send(models.StreamServerMessage{Type: models.StreamPartial, Text: event.Text})
		case nls.EventSentenceEnd:
			b.send(models.StreamServerMessage{Type: models.StreamFinal, Text: event.Text})
		case nls.EventTaskFailed:
			b.send(models.StreamServerMessage{Type: models.StreamError, Message: event.StatusText})
		}
	}
	b.send(models.StreamServerMessage{Type: models.StreamClosed})
}

func (b *bridge) audio(data []byte) {
	if b.session == nil {
		b.send(models.StreamServerMessage{Type: models.StreamError, Message: "识别未开始"})
		return
	}
	if len(data) == 0 {
		return
	}
	if err := b.session.SendAudio(data); err != nil {
		b.send(models.StreamServerMessage{Type: models.StreamError, Message: err.Error()})
	}
}

func (b *bridge) stop() {
	if b.session == nil {
		b.send(models.StreamServerMessage{Type: models.StreamError, Message: "识别未开始"})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.session.Stop(ctx); err != nil {
		b.handler.logger.Warnw("停止实时识别失败", "error", err)
	}
	b.closeSession()
}

func (b *bridge) closeSession() {
	if b.session == nil {
		return
	}
	_ = b.session.Close()
	<-b.forwarded
	b.session = nil
	b.forwarded = nil
}

func (b *bridge) close() {
	b.closeSession()
	close(b.quit)
	_ = b.conn.Close()
}
