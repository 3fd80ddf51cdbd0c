// Package aliyun 阿里云智能语音交互的Token和一句话识别接口
package aliyun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk"
	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"

	"aliyun_voice_wizard/internal/models"
)

// ErrTokenMissing 响应中没有Token
var ErrTokenMissing = errors.New("Token获取失败")

// Token 访问令牌
type Token struct {
	ID         string
	ExpireTime int64 // Unix秒
}

// TokenIssuer 用AccessKey换取Token
type TokenIssuer interface {
	CreateToken(ctx context.Context, accessKeyID, accessKeySecret string) (*Token, error)
}

// TokenConfig CreateToken接口配置
type TokenConfig struct {
	Region  string
	Domain  string
	Version string
}

// SDKTokenIssuer 通过阿里云SDK的通用请求调用CreateToken
type SDKTokenIssuer struct {
	config TokenConfig
}

// NewSDKTokenIssuer 创建Token签发器
func NewSDKTokenIssuer(config TokenConfig) *SDKTokenIssuer {
	return &SDKTokenIssuer{config: config}
}

type createTokenResponse struct {
	ErrMsg string `json:"ErrMsg"`
	Token  struct {
		ID         string `json:"Id"`
		ExpireTime int64  `json:"ExpireTime"`
		UserID     string `json:"UserId"`
	} `json:"Token"`
}

// CreateToken 调用CreateToken，SDK不支持ctx，超时由ctx控制等待
func (s *SDKTokenIssuer) CreateToken(ctx context.Context, accessKeyID, accessKeySecret string) (*Token, error) {
	client, err := sdk.NewClientWithAccessKey(s.config.Region, accessKeyID, accessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("创建阿里云客户端失败: %w", err)
	}

	request := requests.NewCommonRequest()
	request.Method = "POST"
	request.Domain = s.config.Domain
	request.ApiName = "CreateToken"
	request.Version = s.config.Version

	type result struct {
		body string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		response, err := client.ProcessCommonRequest(request)
		if err != nil {
			ch <- result{err: err}
			return
		}
		ch <- result{body: response.GetHttpContentString()}
	}()

	var res result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.err != nil {
		return nil, res.err
	}
	return parseCreateToken(res.body)
}

func parseCreateToken(body string) (*Token, error) {
	var resp createTokenResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("解析Token响应失败: %w", err)
	}
	if resp.Token.ID == "" {
		if resp.ErrMsg != "" {
			return nil, fmt.Errorf("%w: %s", ErrTokenMissing, resp.ErrMsg)
		}
		return nil, ErrTokenMissing
	}
	return &Token{ID: resp.Token.ID, ExpireTime: resp.Token.ExpireTime}, nil
}

// codedError 阿里云SDK的ServerError/ClientError
type codedError interface {
	error
	ErrorCode() string
	Message() string
}

// TokenFailure 面向调用方的失败描述
type TokenFailure struct {
	Message   string
	ErrorType string
	Code      string
}

// ClassifyTokenError 把CreateToken的错误转换为友好的信息
func ClassifyTokenError(err error) TokenFailure {
	var coded codedError
	if errors.As(err, &coded) {
		code := coded.ErrorCode()
		if strings.HasPrefix(code, "SDK.") {
			return TokenFailure{
				Message:   "网络问题：" + coded.Message(),
				ErrorType: models.ErrorTypeNetwork,
				Code:      code,
			}
		}

		failure := TokenFailure{ErrorType: models.ErrorTypeCredential, Code: code}
		switch code {
		case "InvalidAccessKeyId.NotFound":
			failure.Message = "AccessKey ID 不存在，请检查是否正确"
		case "SignatureDoesNotMatch":
			failure.Message = "AccessKey Secret 不正确，请检查是否正确"
		case "Forbidden", "NoPermission":
			failure.Message = "权限不足，请检查AccessKey权限设置"
		default:
			failure.Message = "API错误: " + coded.Message()
		}
		return failure
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "network") || strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "connect") || errors.Is(err, context.DeadlineExceeded) {
		return TokenFailure{Message: "网络问题：" + msg, ErrorType: models.ErrorTypeNetwork}
	}
	return TokenFailure{Message: msg, ErrorType: models.ErrorTypeCredential}
}
