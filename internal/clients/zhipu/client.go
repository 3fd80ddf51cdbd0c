// Package zhipu 智谱AI对话补全客户端
package zhipu

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	ErrInvalidAPIKey = errors.New("API Key无效")
	ErrEmptyReply    = errors.New("AI返回内容为空")
)

// Config 智谱AI客户端配置
type Config struct {
	BaseURL     string        // 接口地址
	Model       string        // 模型名称
	Temperature float64       // 温度参数
	Timeout     time.Duration // 请求超时
}

// Message 对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 对话请求参数
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

// ChatResponse 对话响应
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role             string `json:"role"`
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client 智谱AI客户端
type Client struct {
	config Config
	client *resty.Client
}

// NewClient 创建新的智谱AI客户端
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		client: resty.New().
			SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
			SetTimeout(config.Timeout),
	}
}

// Chat 发送对话并返回回复文本，content为空时使用reasoning_content
func (c *Client) Chat(ctx context.Context, apiKey string, messages []Message) (string, error) {
	var result ChatResponse
	var apiErr errorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetBody(ChatRequest{
			Model:       c.config.Model,
			Messages:    messages,
			Temperature: c.config.Temperature,
			Stream:      false,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("发送请求失败: %w", err)
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		return "", ErrInvalidAPIKey
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return "", fmt.Errorf("服务器返回错误: %s", msg)
	}

	if len(result.Choices) == 0 {
		return "", ErrEmptyReply
	}
	reply := result.Choices[0].Message.Content
	if reply == "" {
		reply = result.Choices[0].Message.ReasoningContent
	}
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}
