//go:build portaudio

package main

import (
	"aliyun_voice_wizard/internal/audio"
	"aliyun_voice_wizard/internal/audio/portaudio"
)

func newMicrophone() audio.Device {
	return portaudio.NewMicrophone()
}
