package audio

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// LevelReportInterval 每多少块上报一次电平
const LevelReportInterval = 50

// Block 一块采集数据及其电平
type Block struct {
	Samples []float32
	Peak    float64
	RMS     float64
}

// LevelReport 周期性电平报告
type LevelReport struct {
	Blocks   int
	Peak     float64
	RMS      float64
	DB       float64
	Duration time.Duration
}

// Capture 采集回调。Process运行在设备线程上，只做计算和非阻塞投递。
type Capture struct {
	sampleRate int

	mu      sync.Mutex
	closed  bool
	blocks  chan Block
	levels  chan LevelReport
	count   int
	samples int

	dropped atomic.Int64
}

// NewCapture 创建采集回调，queueSize为队列容量
func NewCapture(sampleRate, queueSize int) *Capture {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Capture{
		sampleRate: sampleRate,
		blocks:     make(chan Block, queueSize),
		levels:     make(chan LevelReport, 4),
	}
}

// Process 处理一块输入，复制数据后投递，队列满时丢弃
func (c *Capture) Process(in []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(in) == 0 {
		return
	}

	peak, rms := Measure(in)
	block := Block{Samples: append([]float32(nil), in...), Peak: peak, RMS: rms}

	select {
	case c.blocks <- block:
	default:
		c.dropped.Add(1)
		return
	}

	c.count++
	c.samples += len(in)
	if c.count%LevelReportInterval == 0 {
		report := LevelReport{
			Blocks:   c.count,
			Peak:     peak,
			RMS:      rms,
			DB:       DBFS(rms),
			Duration: time.Duration(float64(c.samples) / float64(c.sampleRate) * float64(time.Second)),
		}
		select {
		case c.levels <- report:
		default:
		}
	}
}

// Blocks 采集块通道，Close后关闭
func (c *Capture) Blocks() <-chan Block { return c.blocks }

// Levels 电平报告通道，Close后关闭
func (c *Capture) Levels() <-chan LevelReport { return c.levels }

// Dropped 因队列满丢弃的块数
func (c *Capture) Dropped() int64 { return c.dropped.Load() }

// Close 关闭通道，之后的Process调用被忽略
func (c *Capture) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.blocks)
	close(c.levels)
}

// Measure 计算峰值和均方根
func Measure(samples []float32) (peak, rms float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		if a := math.Abs(v); a > peak {
			peak = a
		}
		sum += v * v
	}
	return peak, math.Sqrt(sum / float64(len(samples)))
}

// DBFS 均方根转换为dBFS，静音返回负无穷
func DBFS(rms float64) float64 {
	if rms <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}
