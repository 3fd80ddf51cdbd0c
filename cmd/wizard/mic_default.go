//go:build !portaudio

package main

import (
	"errors"

	"aliyun_voice_wizard/internal/apperr"
	"aliyun_voice_wizard/internal/audio"
)

// unsupportedDevice 未启用portaudio构建标签时的占位设备
type unsupportedDevice struct{}

func (unsupportedDevice) Open(int, int, func([]float32)) error {
	return &apperr.DeviceError{
		Reason: apperr.DeviceUnsupported,
		Err:    errors.New("未启用麦克风支持，请使用 -tags portaudio 构建或通过 -input 指定WAV文件"),
	}
}

func (unsupportedDevice) Close() error { return nil }

func newMicrophone() audio.Device {
	return unsupportedDevice{}
}
