//go:build portaudio

// Package portaudio 使用PortAudio打开默认麦克风
package portaudio

import (
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"aliyun_voice_wizard/internal/apperr"
)

// Microphone 默认输入设备
type Microphone struct {
	mu     sync.Mutex
	stream *portaudio.Stream
}

// NewMicrophone 创建麦克风设备
func NewMicrophone() *Microphone {
	return &Microphone{}
}

// Open 初始化PortAudio并开始回调采集
func (m *Microphone) Open(sampleRate, blockSize int, onBlock func(block []float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return classify(err)
	}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), blockSize, func(in []float32) {
		onBlock(in)
	})
	if err != nil {
		_ = portaudio.Terminate()
		return classify(err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return classify(err)
	}
	m.stream = stream
	return nil
}

// Close 停止采集并释放PortAudio
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}
	stream := m.stream
	m.stream = nil

	err := stream.Stop()
	if cerr := stream.Close(); err == nil {
		err = cerr
	}
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}

func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "sample rate") || strings.Contains(msg, "format"):
		return &apperr.DeviceError{Reason: apperr.DeviceUnsupported, Err: err}
	case strings.Contains(msg, "permission") || strings.Contains(msg, "denied"):
		return &apperr.DeviceError{Reason: apperr.DevicePermissionDenied, Err: err}
	}
	return &apperr.DeviceError{Reason: apperr.DeviceUnavailable, Err: err}
}
