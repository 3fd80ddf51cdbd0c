// Package gateway 向导访问本地网关的客户端，缓存当前Token
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"aliyun_voice_wizard/internal/apperr"
	"aliyun_voice_wizard/internal/models"
)

// ErrNoToken 没有可用Token
var ErrNoToken = errors.New("Token无效，请先验证阿里云凭据")

// Client 网关客户端
type Client struct {
	http *resty.Client
	now  func() time.Time

	mu         sync.RWMutex
	token      string
	expireTime int64
}

// NewClient 创建网关客户端
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		now: time.Now,
	}
}

// GetToken 用AccessKey获取Token，成功后缓存；请求失败返回NetworkError
func (c *Client) GetToken(ctx context.Context, req models.TokenRequest) (*models.TokenResponse, error) {
	var out models.TokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/api/get-token")
	if err != nil {
		return nil, &apperr.NetworkError{Op: "网络连接失败，请检查网络后重试", Err: err}
	}
	if resp.StatusCode() >= 500 && out.Error == "" {
		return nil, &apperr.NetworkError{Op: "网关服务异常", Err: fmt.Errorf("HTTP %d", resp.StatusCode())}
	}

	if out.Success && out.Token != "" {
		c.mu.Lock()
		c.token = out.Token
		c.expireTime = out.ExpireTime
		c.mu.Unlock()
	}
	return &out, nil
}

// CurrentToken 未过期的Token，没有时返回空字符串
func (c *Client) CurrentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" || c.now().Unix() >= c.expireTime {
		return ""
	}
	return c.token
}

// ClearToken 清除缓存的Token
func (c *Client) ClearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expireTime = 0
}

// RecognizeOptions 识别参数
type RecognizeOptions struct {
	Format          string
	SampleRate      int
	AppKey          string
	AccessKeyID     string
	AccessKeySecret string
}

// Recognize 提交整段PCM音频识别，需要先获取Token
func (c *Client) Recognize(ctx context.Context, audio []byte, opts RecognizeOptions) (*models.RecognizeResponse, error) {
	token := c.CurrentToken()
	if token == "" {
		return nil, ErrNoToken
	}
	if opts.Format == "" {
		opts.Format = "pcm"
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 16000
	}

	var out models.RecognizeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(models.RecognizeRequest{
			Token:           token,
			AudioData:       audio,
			Format:          opts.Format,
			SampleRate:      opts.SampleRate,
			AppKey:          opts.AppKey,
			AccessKeyID:     opts.AccessKeyID,
			AccessKeySecret: opts.AccessKeySecret,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/api/recognize-audio")
	if err != nil {
		return nil, &apperr.NetworkError{Op: "语音识别请求失败", Err: err}
	}
	if resp.IsError() && out.Error == "" {
		out.Success = false
		out.Error = fmt.Sprintf("HTTP error! status: %d", resp.StatusCode())
	}
	return &out, nil
}
