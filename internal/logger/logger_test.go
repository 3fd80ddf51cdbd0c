package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aliyun_voice_wizard/internal/config"
)

func TestNewWritesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "wizard.log")
	log, err := New(config.LogConfig{Level: "debug", Format: "json", File: file, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Infow("测试日志", "step", 4)
	_ = log.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "测试日志")
	assert.Contains(t, string(data), `"step":4`)
}

func TestNewInvalid(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = New(config.LogConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "LTAI5tAb...", Mask("LTAI5tAbCdEfGh", 8))
	assert.Equal(t, "short", Mask("short", 8))
}
