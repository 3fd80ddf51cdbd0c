package audio

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasure(t *testing.T) {
	peak, rms := Measure([]float32{0.5, -0.5, 0.5, -0.5})
	assert.InDelta(t, 0.5, peak, 1e-9)
	assert.InDelta(t, 0.5, rms, 1e-9)

	peak, rms = Measure(nil)
	assert.Zero(t, peak)
	assert.Zero(t, rms)
}

func TestDBFS(t *testing.T) {
	assert.InDelta(t, 0, DBFS(1), 1e-9)
	assert.InDelta(t, -20, DBFS(0.1), 1e-9)
	assert.True(t, math.IsInf(DBFS(0), -1))
}

func TestCaptureCopiesBlocks(t *testing.T) {
	c := NewCapture(44100, 4)
	in := []float32{0.25, -0.75}
	c.Process(in)
	in[0] = 1

	block := <-c.Blocks()
	assert.Equal(t, []float32{0.25, -0.75}, block.Samples)
	assert.InDelta(t, 0.75, block.Peak, 1e-9)
}

func TestCaptureDropsWhenFull(t *testing.T) {
	c := NewCapture(44100, 2)
	for i := 0; i < 5; i++ {
		c.Process([]float32{0.1})
	}
	assert.Equal(t, int64(3), c.Dropped())
	assert.Len(t, c.Blocks(), 2)
}

func TestCaptureLevelReports(t *testing.T) {
	c := NewCapture(100, LevelReportInterval*2)
	for i := 0; i < LevelReportInterval; i++ {
		c.Process([]float32{0.5, 0.5})
	}

	select {
	case report := <-c.Levels():
		assert.Equal(t, LevelReportInterval, report.Blocks)
		assert.InDelta(t, 0.5, report.Peak, 1e-9)
		assert.Equal(t, time.Second, report.Duration)
	default:
		t.Fatal("缺少电平报告")
	}
}

func TestCaptureClose(t *testing.T) {
	c := NewCapture(44100, 1)
	c.Close()
	c.Close()
	c.Process([]float32{0.1})

	_, ok := <-c.Blocks()
	require.False(t, ok)
	_, ok = <-c.Levels()
	assert.False(t, ok)
}
