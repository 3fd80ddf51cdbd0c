package audio

import (
	"math"
	"time"
)

// SilenceThreshold 峰值低于该值视为几乎无声
const SilenceThreshold = 0.001

// Analysis 录音质量分析
type Analysis struct {
	Samples      int
	Duration     time.Duration
	Peak         float64
	RMS          float64
	DB           float64
	NonZeroRatio float64
}

// Silent 是否几乎无声
func (a Analysis) Silent() bool {
	return a.Peak < SilenceThreshold
}

// Analyze 分析合并后的样本
func Analyze(samples []float32, sampleRate int) Analysis {
	a := Analysis{Samples: len(samples)}
	if len(samples) == 0 || sampleRate <= 0 {
		a.DB = math.Inf(-1)
		return a
	}
	a.Peak, a.RMS = Measure(samples)
	a.DB = DBFS(a.RMS)
	a.Duration = time.Duration(float64(len(samples)) / float64(sampleRate) * float64(time.Second))

	nonZero := 0
	for _, s := range samples {
		if s != 0 {
			nonZero++
		}
	}
	a.NonZeroRatio = float64(nonZero) / float64(len(samples))
	return a
}
