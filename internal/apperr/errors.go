// Package apperr 定义面向用户的错误分类
package apperr

import (
	"errors"
	"fmt"
)

// CredentialError 凭据错误：密钥不存在、签名不匹配、权限不足、API Key无效
type CredentialError struct {
	Code    string // 服务端错误码，可能为空
	Message string
}

func (e *CredentialError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// NetworkError 网络错误：连接失败、超时、服务端非成功状态
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError 输入校验错误
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// DeviceReason 录音设备错误原因
type DeviceReason int

const (
	DeviceUnavailable DeviceReason = iota
	DevicePermissionDenied
	DeviceUnsupported
)

// DeviceError 录音设备错误
type DeviceError struct {
	Reason DeviceReason
	Err    error
}

func (e *DeviceError) Error() string {
	switch e.Reason {
	case DevicePermissionDenied:
		return "麦克风权限被拒绝，请允许访问麦克风"
	case DeviceUnsupported:
		return "设备不支持录音功能"
	default:
		return "未找到麦克风设备，请检查设备连接"
	}
}

func (e *DeviceError) Unwrap() error { return e.Err }

// EncodingError 编码错误：空录音或编码器失败
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("音频编码失败: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// MaxMessageLength 超过该长度的错误信息不直接展示给用户
const MaxMessageLength = 100

// UserMessage 返回适合展示给用户的错误信息
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var credErr *CredentialError
	var netErr *NetworkError
	var validErr *ValidationError
	var devErr *DeviceError
	var encErr *EncodingError

	switch {
	case errors.As(err, &validErr):
		return validErr.Message
	case errors.As(err, &credErr):
		return credErr.Message
	case errors.As(err, &devErr):
		return devErr.Error()
	case errors.As(err, &encErr):
		return "录音处理失败，请重新尝试"
	case errors.As(err, &netErr):
		return netErr.Op
	}
	return err.Error()
}

// Truncate 信息超过limit个字符时返回fallback
func Truncate(message string, limit int, fallback string) string {
	if len([]rune(message)) > limit {
		return fallback
	}
	return message
}
