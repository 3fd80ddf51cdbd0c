package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n, sampleRate int, freq float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

func TestCodecFor(t *testing.T) {
	c, err := CodecFor("mp3", 128)
	require.NoError(t, err)
	assert.Equal(t, "audio/mp3", c.MimeType())

	c, err = CodecFor("wav", 0)
	require.NoError(t, err)
	assert.Equal(t, "wav", c.Format())

	_, err = CodecFor("flac", 0)
	assert.ErrorIs(t, err, ErrUnknownFormat)

	c, err = CodecFor("mp3", 0)
	require.NoError(t, err)
	assert.Equal(t, MP3Codec{}, c)

	_, err = CodecFor("mp3", 64)
	assert.ErrorIs(t, err, ErrUnsupportedBitrate)
}

func TestMP3UnsupportedSampleRate(t *testing.T) {
	_, err := MP3Codec{}.NewFrameEncoder(12345)
	assert.ErrorIs(t, err, ErrUnsupportedRate)

	_, err = EncodePCM(MP3Codec{}, make([]int16, FrameSize), 12345)
	assert.ErrorIs(t, err, ErrUnsupportedRate)
}

type countingCodec struct{ frames []int }

func (c *countingCodec) Format() string   { return "raw" }
func (c *countingCodec) MimeType() string { return "application/octet-stream" }
func (c *countingCodec) NewFrameEncoder(int) (FrameEncoder, error) {
	return &countingEncoder{codec: c}, nil
}

type countingEncoder struct{ codec *countingCodec }

func (e *countingEncoder) EncodeFrame(frame []int16) ([]byte, error) {
	e.codec.frames = append(e.codec.frames, len(frame))
	return []byte{byte(len(e.codec.frames))}, nil
}

func (e *countingEncoder) Flush() ([]byte, error) { return []byte{0xff}, nil }

func TestEncodePCMFrames(t *testing.T) {
	codec := &countingCodec{}
	data, err := EncodePCM(codec, make([]int16, FrameSize*2+100), 44100)
	require.NoError(t, err)

	assert.Equal(t, []int{FrameSize, FrameSize, 100}, codec.frames)
	assert.Equal(t, []byte{1, 2, 3, 0xff}, data)
}

func TestMP3Encode(t *testing.T) {
	pcm := Float32ToInt16(sine(44100, 44100, 440))
	data, err := EncodePCM(MP3Codec{}, pcm, 44100)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Less(t, len(data), len(pcm)*2)
}

func TestWAVRoundTripThroughDevice(t *testing.T) {
	samples := sine(1600, 16000, 200)
	data, err := EncodePCM(WAVCodec{}, Float32ToInt16(samples), 16000)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "input.wav")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	decoded, rate, err := ReadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
	require.Len(t, decoded, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], decoded[i], 1.0/16000)
	}
}

func TestMemWriteSeeker(t *testing.T) {
	m := &memWriteSeeker{}
	_, _ = m.Write([]byte("abcdef"))
	_, err := m.Seek(2, 0)
	require.NoError(t, err)
	_, _ = m.Write([]byte("XY"))
	assert.Equal(t, "abXYef", string(m.buf))

	_, err = m.Seek(-10, 1)
	assert.Error(t, err)
}
