package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserMessage(t *testing.T) {
	base := errors.New("dial tcp: i/o timeout")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"空错误", nil, ""},
		{"校验错误", &ValidationError{Field: "appKey", Message: "请输入AppKey"}, "请输入AppKey"},
		{"凭据错误", &CredentialError{Code: "Forbidden", Message: "权限不足"}, "权限不足"},
		{"网络错误", &NetworkError{Op: "网络连接失败", Err: base}, "网络连接失败"},
		{"设备错误", &DeviceError{Reason: DevicePermissionDenied}, "麦克风权限被拒绝，请允许访问麦克风"},
		{"编码错误", &EncodingError{Err: base}, "录音处理失败，请重新尝试"},
		{"包装后的错误", fmt.Errorf("步骤4: %w", &ValidationError{Message: "AppKey不能为空"}), "AppKey不能为空"},
		{"普通错误", base, "dial tcp: i/o timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestUnwrap(t *testing.T) {
	base := errors.New("boom")
	assert.ErrorIs(t, &NetworkError{Op: "x", Err: base}, base)
	assert.ErrorIs(t, &DeviceError{Err: base}, base)
	assert.ErrorIs(t, &EncodingError{Err: base}, base)
}

func TestDeviceErrorMessages(t *testing.T) {
	assert.Contains(t, (&DeviceError{Reason: DeviceUnavailable}).Error(), "未找到麦克风设备")
	assert.Contains(t, (&DeviceError{Reason: DeviceUnsupported}).Error(), "不支持录音")
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("错", MaxMessageLength+1)
	assert.Equal(t, "通用信息", Truncate(long, MaxMessageLength, "通用信息"))
	assert.Equal(t, "短信息", Truncate("短信息", MaxMessageLength, "通用信息"))
}
