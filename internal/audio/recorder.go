// Package audio 录音采集、编码和重采样
package audio

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"aliyun_voice_wizard/internal/apperr"
)

var (
	ErrAlreadyRecording = errors.New("正在录音中")
	ErrEmptyCapture     = errors.New("没有收集到音频数据")
)

// Options 录音参数
type Options struct {
	SampleRate  int
	BlockSize   int
	MaxDuration time.Duration
	QueueSize   int
	Codec       Codec
}

// Artifact 一次录音的编码结果
type Artifact struct {
	Data       []byte
	Format     string
	MimeType   string
	SampleRate int
	Duration   time.Duration
	CreatedAt  time.Time
}

// Size 字节数
func (a *Artifact) Size() int { return len(a.Data) }

// Recorder 录音会话，同一时间最多一个
type Recorder struct {
	opts   Options
	device Device
	logger *zap.SugaredLogger

	mu         sync.Mutex
	recording  bool
	deviceOpen bool
	seq        uint64
	capture    *Capture
	done       chan [][]float32
	timer      *time.Timer
	startedAt  time.Time

	raw        []float32
	last       *Artifact
	onAutoStop func(*Artifact, error)
	onLevel    func(LevelReport)

	waveform *Waveform
}

// NewRecorder 创建录音器
func NewRecorder(device Device, opts Options, logger *zap.SugaredLogger) *Recorder {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 44100
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = 4096
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 30 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Codec == nil {
		opts.Codec = MP3Codec{}
	}
	return &Recorder{
		opts:     opts,
		device:   device,
		logger:   logger,
		waveform: NewWaveform(opts.MaxDuration),
	}
}

// OnAutoStop 注册超时自动停止的回调
func (r *Recorder) OnAutoStop(fn func(*Artifact, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAutoStop = fn
}

// OnLevel 注册电平报告回调，回调中不能调用Recorder的方法
func (r *Recorder) OnLevel(fn func(LevelReport)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLevel = fn
}

// Waveform 当前录音的波形
func (r *Recorder) Waveform() *Waveform { return r.waveform }

// SampleRate 采集采样率
func (r *Recorder) SampleRate() int { return r.opts.SampleRate }

// MaxDuration 最长录音时间
func (r *Recorder) MaxDuration() time.Duration { return r.opts.MaxDuration }

// IsRecording 是否正在录音
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Start 打开设备开始录音，并设置超时自动停止
func (r *Recorder) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return ErrAlreadyRecording
	}

	capture := NewCapture(r.opts.SampleRate, r.opts.QueueSize)
	done := make(chan [][]float32, 1)
	go r.consume(capture, r.onLevel, done)

	if err := r.device.Open(r.opts.SampleRate, r.opts.BlockSize, capture.Process); err != nil {
		capture.Close()
		<-done
		r.logger.Errorw("打开录音设备失败", "error", err)
		return classifyDeviceError(err)
	}

	r.seq++
	seq := r.seq
	r.recording = true
	r.deviceOpen = true
	r.capture = capture
	r.done = done
	r.startedAt = time.Now()
	r.waveform.Reset()
	r.timer = time.AfterFunc(r.opts.MaxDuration, func() { r.autoStop(seq) })

	r.logger.Infow("开始录音", "sampleRate", r.opts.SampleRate, "blockSize", r.opts.BlockSize, "maxDuration", r.opts.MaxDuration)
	return nil
}

// consume 在独立goroutine中收集采集块，通道关闭后把全部块交给done
func (r *Recorder) consume(capture *Capture, onLevel func(LevelReport), done chan<- [][]float32) {
	var blocks [][]float32
	levels := capture.Levels()
	for {
		select {
		case block, ok := <-capture.Blocks():
			if !ok {
				done <- blocks
				return
			}
			blocks = append(blocks, block.Samples)
			r.waveform.Observe(block.Peak)
		case report, ok := <-levels:
			if !ok {
				levels = nil
				continue
			}
			r.logger.Debugw("录音电平", "blocks", report.Blocks, "peak", report.Peak, "rms", report.RMS, "db", report.DB)
			if onLevel != nil {
				onLevel(report)
			}
		}
	}
}

// Stop 停止录音并编码，未在录音时返回(nil, nil)
func (r *Recorder) Stop() (*Artifact, error) {
	artifact, _, err := r.stop(0)
	return artifact, err
}

func (r *Recorder) autoStop(seq uint64) {
	artifact, stopped, err := r.stop(seq)
	if !stopped {
		return
	}
	r.logger.Infow("录音达到时长上限，自动停止", "limit", r.opts.MaxDuration)

	r.mu.Lock()
	fn := r.onAutoStop
	r.mu.Unlock()
	if fn != nil {
		fn(artifact, err)
	}
}

// stop seq为0时停止当前会话，否则只停止指定会话
func (r *Recorder) stop(seq uint64) (*Artifact, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording || (seq != 0 && seq != r.seq) {
		return nil, false, nil
	}

	r.recording = false
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.releaseDevice()

	capture, done := r.capture, r.done
	r.capture, r.done = nil, nil
	capture.Close()
	blocks := <-done
	if n := capture.Dropped(); n > 0 {
		r.logger.Warnw("采集队列已满，丢弃部分数据", "dropped", n)
	}

	// 失败的录音不保留上一次的数据和文件
	r.raw, r.last = nil, nil
	if len(blocks) == 0 {
		return nil, true, &apperr.EncodingError{Err: ErrEmptyCapture}
	}

	merged := Merge(blocks)
	analysis := Analyze(merged, r.opts.SampleRate)
	r.logger.Infow("录音数据分析",
		"blocks", len(blocks),
		"samples", analysis.Samples,
		"duration", analysis.Duration,
		"peak", analysis.Peak,
		"rms", analysis.RMS,
		"db", analysis.DB,
		"nonZeroRatio", analysis.NonZeroRatio,
	)
	if analysis.Silent() {
		r.logger.Warnw("录音音量过低，可能没有正确录制到声音", "peak", analysis.Peak)
	}

	data, err := EncodePCM(r.opts.Codec, Float32ToInt16(merged), r.opts.SampleRate)
	if err != nil {
		r.logger.Errorw("音频编码失败", "error", err)
		return nil, true, &apperr.EncodingError{Err: err}
	}

	artifact := &Artifact{
		Data:       data,
		Format:     r.opts.Codec.Format(),
		MimeType:   r.opts.Codec.MimeType(),
		SampleRate: r.opts.SampleRate,
		Duration:   analysis.Duration,
		CreatedAt:  time.Now(),
	}
	r.raw = merged
	r.last = artifact
	r.logger.Infow("录音编码完成", "format", artifact.Format, "bytes", artifact.Size(), "elapsed", time.Since(r.startedAt))
	return artifact, true, nil
}

// releaseDevice 释放设备，重复调用无效果
func (r *Recorder) releaseDevice() {
	if !r.deviceOpen {
		return
	}
	r.deviceOpen = false
	if err := r.device.Close(); err != nil {
		r.logger.Warnw("释放录音设备失败", "error", err)
	}
}

// RawSamples 最近一次完成录音的原始样本
func (r *Recorder) RawSamples() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.raw
}

// LastArtifact 最近一次录音的编码结果
func (r *Recorder) LastArtifact() *Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func classifyDeviceError(err error) error {
	var devErr *apperr.DeviceError
	if errors.As(err, &devErr) {
		return devErr
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "denied"):
		return &apperr.DeviceError{Reason: apperr.DevicePermissionDenied, Err: err}
	case strings.Contains(msg, "not supported") || strings.Contains(msg, "unsupported") || strings.Contains(msg, "invalid sample rate"):
		return &apperr.DeviceError{Reason: apperr.DeviceUnsupported, Err: err}
	}
	return &apperr.DeviceError{Reason: apperr.DeviceUnavailable, Err: err}
}
