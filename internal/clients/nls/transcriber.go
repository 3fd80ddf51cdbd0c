// Package nls 阿里云实时语音识别(SpeechTranscriber) WebSocket客户端
package nls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Namespace 实时识别命名空间
const Namespace = "SpeechTranscriber"

// 服务端事件名称
const (
	EventStarted       = "TranscriptionStarted"
	EventResultChanged = "TranscriptionResultChanged"
	EventSentenceBegin = "SentenceBegin"
	EventSentenceEnd   = "SentenceEnd"
	EventCompleted     = "TranscriptionCompleted"
	EventTaskFailed    = "TaskFailed"
)

var (
	ErrNotConnected = errors.New("实时识别连接未建立")
	ErrStartTimeout = errors.New("等待识别启动超时")
)

// Config 客户端配置
type Config struct {
	URL              string        // 网关地址
	HandshakeTimeout time.Duration // 握手超时
	StartTimeout     time.Duration // 等待TranscriptionStarted超时
}

// StartParams StartTranscription的参数
type StartParams struct {
	Format                         string `json:"format"`
	SampleRate                     int    `json:"sample_rate"`
	EnableIntermediateResult       bool   `json:"enable_intermediate_result"`
	EnablePunctuationPrediction    bool   `json:"enable_punctuation_prediction"`
	EnableInverseTextNormalization bool   `json:"enable_inverse_text_normalization"`
}

// DefaultStartParams 16k PCM，开启中间结果和标点
func DefaultStartParams() StartParams {
	return StartParams{
		Format:                         "pcm",
		SampleRate:                     16000,
		EnableIntermediateResult:       true,
		EnablePunctuationPrediction:    true,
		EnableInverseTextNormalization: true,
	}
}

type header struct {
	MessageID  string `json:"message_id"`
	TaskID     string `json:"task_id"`
	Namespace  string `json:"namespace"`
	Name       string `json:"name"`
	Appkey     string `json:"appkey,omitempty"`
	Status     int    `json:"status,omitempty"`
	StatusText string `json:"status_text,omitempty"`
}

type message struct {
	Header  header          `json:"header"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event 服务端事件
type Event struct {
	Name       string
	Status     int
	StatusText string
	Text       string
	Index      int
	Raw        []byte
}

// NewID 生成不带横线的消息ID
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Transcriber 一次实时识别会话
type Transcriber struct {
	config Config
	appKey string
	taskID string
	logger *zap.SugaredLogger

	conn     *websocket.Conn
	connLock sync.Mutex

	events    chan Event
	started   chan error
	startOnce sync.Once
	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// Dial 建立连接并启动接收循环
func Dial(ctx context.Context, config Config, token, appKey string, logger *zap.SugaredLogger) (*Transcriber, error) {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = 6 * time.Second
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: config.HandshakeTimeout,
	}
	h := http.Header{}
	h.Set("X-NLS-Token", token)
	conn, resp, err := dialer.DialContext(ctx, config.URL+"?token="+token, h)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("连接实时识别服务失败(状态码 %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("连接实时识别服务失败: %w", err)
	}

	t := &Transcriber{
		config:  config,
		appKey:  appKey,
		taskID:  NewID(),
		logger:  logger,
		conn:    conn,
		events:  make(chan Event, 64),
		started: make(chan error, 1),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go t.receiveLoop(conn)
	return t, nil
}

// TaskID 本次识别任务ID
func (t *Transcriber) TaskID() string { return t.taskID }

// Events 服务端事件，连接断开后关闭
func (t *Transcriber) Events() <-chan Event { return t.events }

// Start 发送StartTranscription并等待服务端确认
func (t *Transcriber) Start(ctx context.Context, params StartParams) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("序列化参数失败: %w", err)
	}
	if err := t.send("StartTranscription", payload); err != nil {
		return err
	}

	timer := time.NewTimer(t.config.StartTimeout)
	defer timer.Stop()
	select {
	case err := <-t.started:
		return err
	case <-timer.C:
		return ErrStartTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendAudio 发送一段PCM音频
func (t *Transcriber) SendAudio(data []byte) error {
	t.connLock.Lock()
	defer t.connLock.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("发送音频失败: %w", err)
	}
	return nil
}

// Stop 发送StopTranscription，等待服务端结束或ctx超时后关闭连接
func (t *Transcriber) Stop(ctx context.Context) error {
	err := t.send("StopTranscription", nil)
	if err == nil {
		select {
		case <-t.done:
		case <-ctx.Done():
		}
	}
	if cerr := t.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close 关闭连接，重复调用无效果
func (t *Transcriber) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		t.connLock.Lock()
		defer t.connLock.Unlock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = t.conn.Close()
		t.conn = nil
	})
	return err
}

func (t *Transcriber) send(name string, payload json.RawMessage) error {
	msg := message{
		Header: header{
			MessageID: NewID(),
			TaskID:    t.taskID,
			Namespace: Namespace,
			Name:      name,
			Appkey:    t.appKey,
		},
		Payload: payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("消息序列化失败: %w", err)
	}

	t.connLock.Lock()
	defer t.connLock.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("消息发送失败: %w", err)
	}
	return nil
}

// receiveLoop 接收消息循环
func (t *Transcriber) receiveLoop(conn *websocket.Conn) {
	defer close(t.done)
	defer close(t.events)
	defer t.signalStarted(errors.New("连接已关闭"))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Warnw("实时识别连接异常关闭", "taskId", t.taskID, "error", err)
			}
			return
		}

		event, err := parseEvent(data)
		if err != nil {
			t.logger.Warnw("解析识别事件失败", "error", err)
			continue
		}

		switch event.Name {
		case EventStarted:
			t.signalStarted(nil)
		case EventTaskFailed:
			t.signalStarted(fmt.Errorf("识别任务失败: %s", event.StatusText))
		}

		select {
		case t.events <- event:
		case <-t.closed:
			return
		}

		if event.Name == EventCompleted || event.Name == EventTaskFailed {
			return
		}
	}
}

func (t *Transcriber) signalStarted(err error) {
	t.startOnce.Do(func() {
		t.started <- err
	})
}

func parseEvent(data []byte) (Event, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, err
	}
	event := Event{
		Name:       msg.Header.Name,
		Status:     msg.Header.Status,
		StatusText: msg.Header.StatusText,
		Raw:        data,
	}
	if len(msg.Payload) > 0 {
		var payload struct {
			Result string `json:"result"`
			Index  int    `json:"index"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err == nil {
			event.Text = payload.Result
			event.Index = payload.Index
		}
	}
	return event, nil
}
