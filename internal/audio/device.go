package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"

	"aliyun_voice_wizard/internal/apperr"
)

// Device 录音输入设备。Open成功后设备在独立的goroutine中按块回调，
// Close返回后不再回调，重复Close不报错。
type Device interface {
	Open(sampleRate, blockSize int, onBlock func(block []float32)) error
	Close() error
}

// FastPlaybackSpeed 非实时回放的倍速
const FastPlaybackSpeed = 10

// WAVFileDevice 把WAV文件当作麦克风逐块回放。
// 回放不等待消费方，队列满时采集端会丢块，所以非实时模式也按FastPlaybackSpeed倍速限速。
type WAVFileDevice struct {
	path     string
	realtime bool

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewWAVFileDevice 创建文件输入设备，realtime为false时以FastPlaybackSpeed倍速回放
func NewWAVFileDevice(path string, realtime bool) *WAVFileDevice {
	return &WAVFileDevice{path: path, realtime: realtime}
}

// Open 解码文件并开始回放
func (d *WAVFileDevice) Open(sampleRate, blockSize int, onBlock func(block []float32)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return errors.New("设备已打开")
	}

	samples, rate, err := ReadWAV(d.path)
	if err != nil {
		return err
	}
	samples = Resample(samples, rate, sampleRate)

	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.play(samples, sampleRate, blockSize, onBlock, d.stop, d.done)
	return nil
}

func (d *WAVFileDevice) play(samples []float32, sampleRate, blockSize int, onBlock func([]float32), stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(playbackInterval(sampleRate, blockSize, d.realtime))
	defer ticker.Stop()

	block := make([]float32, blockSize)
	for offset := 0; offset < len(samples); offset += blockSize {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		// 最后一块不足时补零
		n := copy(block, samples[offset:])
		for i := n; i < blockSize; i++ {
			block[i] = 0
		}
		onBlock(block)
	}
}

// playbackInterval 每块的回放间隔
func playbackInterval(sampleRate, blockSize int, realtime bool) time.Duration {
	interval := time.Duration(blockSize) * time.Second / time.Duration(sampleRate)
	if !realtime {
		interval /= FastPlaybackSpeed
	}
	if interval <= 0 {
		interval = time.Microsecond
	}
	return interval
}

// Close 停止回放并等待回调结束
func (d *WAVFileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop == nil {
		return nil
	}
	close(d.stop)
	<-d.done
	d.stop, d.done = nil, nil
	return nil
}

// ReadWAV 读取WAV文件并转换为单声道[-1,1]浮点样本
func ReadWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, &apperr.DeviceError{Reason: apperr.DeviceUnavailable, Err: err}
		}
		if errors.Is(err, os.ErrPermission) {
			return nil, 0, &apperr.DeviceError{Reason: apperr.DevicePermissionDenied, Err: err}
		}
		return nil, 0, &apperr.DeviceError{Reason: apperr.DeviceUnavailable, Err: err}
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, &apperr.DeviceError{Reason: apperr.DeviceUnsupported, Err: fmt.Errorf("不是有效的WAV文件: %s", path)}
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, &apperr.DeviceError{Reason: apperr.DeviceUnsupported, Err: fmt.Errorf("解码WAV失败: %w", err)}
	}

	if dec.BitDepth < 16 {
		return nil, 0, &apperr.DeviceError{Reason: apperr.DeviceUnsupported, Err: fmt.Errorf("不支持的位深: %d", dec.BitDepth)}
	}

	channels := int(dec.NumChans)
	if channels <= 0 {
		channels = 1
	}
	scale := float32(int(1) << (int(dec.BitDepth) - 1))
	frames := len(buf.Data) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c]) / scale
		}
		out[i] = sum / float32(channels)
	}
	return out, int(dec.SampleRate), nil
}
