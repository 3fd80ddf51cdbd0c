// Package models 网关与客户端之间的请求和响应结构
package models

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// 错误类型
const (
	ErrorTypeCredential = "credential"
	ErrorTypeNetwork    = "network"
)

// TokenRequest 获取Token请求
type TokenRequest struct {
	AppKey          string `json:"appKey"`
	AccessKeyID     string `json:"accessKeyId"`
	AccessKeySecret string `json:"accessKeySecret"`
}

// TokenResponse 获取Token响应
type TokenResponse struct {
	Success    bool   `json:"success"`
	Token      string `json:"token,omitempty"`
	ExpireTime int64  `json:"expireTime,omitempty"` // Unix秒
	Error      string `json:"error,omitempty"`
	ErrorType  string `json:"errorType,omitempty"`
	Code       string `json:"code,omitempty"`
}

// RecognizeRequest 一句话识别请求
type RecognizeRequest struct {
	Token           string    `json:"token"`
	AudioData       ByteArray `json:"audioData"`
	Format          string    `json:"format"`
	SampleRate      int       `json:"sampleRate"`
	AppKey          string    `json:"appKey"`
	AccessKeyID     string    `json:"accessKeyId,omitempty"`
	AccessKeySecret string    `json:"accessKeySecret,omitempty"`
}

// RecognizeResponse 一句话识别响应
type RecognizeResponse struct {
	Success    bool    `json:"success"`
	Result     string  `json:"result,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Timestamp  int64   `json:"timestamp,omitempty"` // Unix毫秒
	Error      string  `json:"error,omitempty"`
}

// 实时识别桥接消息类型
const (
	StreamStart   = "start"
	StreamAudio   = "audio"
	StreamStop    = "stop"
	StreamStarted = "started"
	StreamPartial = "partial"
	StreamFinal   = "final"
	StreamError   = "error"
	StreamClosed  = "closed"
)

// StreamClientMessage 客户端发往 /ws 的消息
type StreamClientMessage struct {
	Type   string    `json:"type"`
	Token  string    `json:"token,omitempty"`
	AppKey string    `json:"appKey,omitempty"`
	Data   ByteArray `json:"data,omitempty"`
}

// StreamServerMessage /ws 发往客户端的消息
type StreamServerMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// ByteArray 二进制数据，JSON中可以是数字数组或base64字符串，序列化为数字数组
type ByteArray []byte

// MarshalJSON 输出数字数组
func (b ByteArray) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.Grow(len(b) * 4)
	buf.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%d", v)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON 接受数字数组或base64字符串
func (b *ByteArray) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*b = nil
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("音频数据base64解码失败: %w", err)
		}
		*b = decoded
		return nil
	case '[':
		var nums []int
		if err := json.Unmarshal(data, &nums); err != nil {
			return err
		}
		out := make([]byte, len(nums))
		for i, n := range nums {
			if n < 0 || n > 255 {
				return fmt.Errorf("音频数据第%d个字节超出范围: %d", i, n)
			}
			out[i] = byte(n)
		}
		*b = out
		return nil
	}
	return errors.New("音频数据格式无效")
}
