package audio

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"
)

// 波形参数
const (
	WaveformInterval = 100 * time.Millisecond
	MaxWaveformBars  = 300
	MaxBarHeight     = 25
)

var barGlyphs = []rune(" ▁▂▃▄▅▆▇█")

// Waveform 录音波形，纯展示用途
type Waveform struct {
	mu        sync.Mutex
	limit     time.Duration
	maxBars   int
	bars      []float64
	current   float64
	startedAt time.Time
	now       func() time.Time
}

// NewWaveform 创建波形，limit用于计算进度
func NewWaveform(limit time.Duration) *Waveform {
	return &Waveform{limit: limit, maxBars: MaxWaveformBars, now: time.Now}
}

// Reset 开始新的录音
func (w *Waveform) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bars = w.bars[:0]
	w.current = 0
	w.startedAt = w.now()
}

// Observe 记录一块数据的峰值
func (w *Waveform) Observe(amplitude float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if amplitude > w.current {
		w.current = amplitude
	}
}

// BarHeight 振幅转换为柱高
func BarHeight(amplitude float64) float64 {
	return math.Min(MaxBarHeight, math.Max(1, amplitude*150))
}

// Tick 生成一根柱子并重置当前最大值
func (w *Waveform) Tick() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	h := BarHeight(w.current)
	w.current = 0
	w.bars = append(w.bars, h)
	if len(w.bars) > w.maxBars {
		w.bars = w.bars[len(w.bars)-w.maxBars:]
	}
	return h
}

// Bars 当前全部柱高
func (w *Waveform) Bars() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]float64(nil), w.bars...)
}

// Progress 录音时长占上限的百分比
func (w *Waveform) Progress() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.limit <= 0 || w.startedAt.IsZero() {
		return 0
	}
	p := float64(w.now().Sub(w.startedAt)) / float64(w.limit) * 100
	return math.Min(100, p)
}

// Render 渲染最近width根柱子
func (w *Waveform) Render(width int) string {
	bars := w.Bars()
	if width > 0 && len(bars) > width {
		bars = bars[len(bars)-width:]
	}
	var sb strings.Builder
	top := len(barGlyphs) - 1
	for _, h := range bars {
		idx := int(math.Round(h / MaxBarHeight * float64(top)))
		if idx < 1 {
			idx = 1
		}
		sb.WriteRune(barGlyphs[idx])
	}
	return sb.String()
}

// Run 按固定间隔生成柱子直到ctx结束
func (w *Waveform) Run(ctx context.Context, onTick func(w *Waveform)) {
	ticker := time.NewTicker(WaveformInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick()
			if onTick != nil {
				onTick(w)
			}
		}
	}
}
