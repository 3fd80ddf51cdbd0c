package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/braheezy/shine-mp3/pkg/mp3"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// FrameSize 每帧样本数
const FrameSize = 1152

// MP3Bitrate shine固定使用的MP3码率(kbps)，编码器不提供其他码率
const MP3Bitrate = 128

// 编码相关错误
var (
	ErrUnknownFormat      = errors.New("不支持的音频格式")
	ErrUnsupportedBitrate = errors.New("不支持的MP3码率")
	ErrUnsupportedRate    = errors.New("MP3不支持该采样率")
)

// FrameEncoder 分帧编码，Flush输出剩余数据
type FrameEncoder interface {
	EncodeFrame(frame []int16) ([]byte, error)
	Flush() ([]byte, error)
}

// Codec 输出格式
type Codec interface {
	Format() string
	MimeType() string
	NewFrameEncoder(sampleRate int) (FrameEncoder, error)
}

// CodecFor 按名称选择编码格式，mp3只接受MP3Bitrate，0表示默认
func CodecFor(format string, bitrate int) (Codec, error) {
	switch format {
	case "mp3":
		if bitrate != 0 && bitrate != MP3Bitrate {
			return nil, fmt.Errorf("%w: %dkbps，仅支持%dkbps", ErrUnsupportedBitrate, bitrate, MP3Bitrate)
		}
		return MP3Codec{}, nil
	case "wav":
		return WAVCodec{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
}

// EncodePCM 以FrameSize为单位分帧编码，最后调用Flush
func EncodePCM(codec Codec, pcm []int16, sampleRate int) ([]byte, error) {
	enc, err := codec.NewFrameEncoder(sampleRate)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	for i := 0; i < len(pcm); i += FrameSize {
		end := i + FrameSize
		if end > len(pcm) {
			end = len(pcm)
		}
		b, err := enc.EncodeFrame(pcm[i:end])
		if err != nil {
			return nil, err
		}
		out.Write(b)
	}

	tail, err := enc.Flush()
	if err != nil {
		return nil, err
	}
	out.Write(tail)
	return out.Bytes(), nil
}

// MP3Codec 单声道MP3，码率固定为MP3Bitrate
type MP3Codec struct{}

func (MP3Codec) Format() string   { return "mp3" }
func (MP3Codec) MimeType() string { return "audio/mp3" }

func (MP3Codec) NewFrameEncoder(sampleRate int) (FrameEncoder, error) {
	if mp3.CheckConfig(sampleRate, MP3Bitrate) < 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedRate, sampleRate)
	}
	return &mp3FrameEncoder{enc: mp3.NewEncoder(sampleRate, 1)}, nil
}

// shine只能整段编码，EncodeFrame仅缓存样本，MP3帧在Flush时一次写出
type mp3FrameEncoder struct {
	enc *mp3.Encoder
	pcm []int16
}

func (e *mp3FrameEncoder) EncodeFrame(frame []int16) ([]byte, error) {
	e.pcm = append(e.pcm, frame...)
	return nil, nil
}

func (e *mp3FrameEncoder) Flush() ([]byte, error) {
	var out bytes.Buffer
	if err := e.enc.Write(&out, e.pcm); err != nil {
		return nil, fmt.Errorf("MP3编码失败: %w", err)
	}
	e.pcm = nil
	return out.Bytes(), nil
}

// WAVCodec 16位PCM WAV
type WAVCodec struct{}

func (WAVCodec) Format() string   { return "wav" }
func (WAVCodec) MimeType() string { return "audio/wav" }

func (WAVCodec) NewFrameEncoder(sampleRate int) (FrameEncoder, error) {
	ws := &memWriteSeeker{}
	return &wavFrameEncoder{
		ws:  ws,
		enc: wav.NewEncoder(ws, sampleRate, 16, 1, 1),
		format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
	}, nil
}

type wavFrameEncoder struct {
	ws     *memWriteSeeker
	enc    *wav.Encoder
	format *goaudio.Format
}

func (e *wavFrameEncoder) EncodeFrame(frame []int16) ([]byte, error) {
	buf := &goaudio.IntBuffer{
		Format:         e.format,
		Data:           make([]int, len(frame)),
		SourceBitDepth: 16,
	}
	for i, s := range frame {
		buf.Data[i] = int(s)
	}
	if err := e.enc.Write(buf); err != nil {
		return nil, fmt.Errorf("WAV编码失败: %w", err)
	}
	return nil, nil
}

// Flush 写入文件头长度并返回完整文件
func (e *wavFrameEncoder) Flush() ([]byte, error) {
	if err := e.enc.Close(); err != nil {
		return nil, fmt.Errorf("WAV编码失败: %w", err)
	}
	return e.ws.buf, nil
}

// memWriteSeeker 内存中的io.WriteSeeker，wav编码器需要回写文件头
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(m.pos)
	case io.SeekEnd:
		base = int64(len(m.buf))
	default:
		return 0, errors.New("无效的whence")
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("负的偏移量")
	}
	m.pos = int(next)
	return next, nil
}
