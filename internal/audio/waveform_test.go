package audio

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestBarHeight(t *testing.T) {
	assert.Equal(t, 1.0, BarHeight(0))
	assert.InDelta(t, 15.0, BarHeight(0.1), 1e-9)
	assert.Equal(t, 25.0, BarHeight(0.9))
}

func TestWaveformTickResetsMax(t *testing.T) {
	w := NewWaveform(30 * time.Second)
	w.Reset()
	w.Observe(0.05)
	w.Observe(0.1)
	w.Observe(0.02)

	assert.InDelta(t, 15.0, w.Tick(), 1e-9)
	assert.Equal(t, 1.0, w.Tick())
	assert.InDeltaSlice(t, []float64{15, 1}, w.Bars(), 1e-9)
}

func TestWaveformKeepsLastBars(t *testing.T) {
	w := NewWaveform(30 * time.Second)
	for i := 0; i < MaxWaveformBars+20; i++ {
		w.Tick()
	}
	assert.Len(t, w.Bars(), MaxWaveformBars)
	assert.Equal(t, 40, utf8.RuneCountInString(w.Render(40)))
}

func TestWaveformProgress(t *testing.T) {
	now := time.Now()
	w := NewWaveform(30 * time.Second)
	w.now = func() time.Time { return now }
	assert.Zero(t, w.Progress())

	w.Reset()
	now = now.Add(15 * time.Second)
	assert.InDelta(t, 50, w.Progress(), 1e-9)

	now = now.Add(time.Minute)
	assert.Equal(t, 100.0, w.Progress())
}
