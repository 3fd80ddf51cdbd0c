package audio

import (
	"errors"
	"sync"
)

type fakeDevice struct {
	mu      sync.Mutex
	openErr error
	onBlock func([]float32)
	opens   int
	closes  int
}

func (d *fakeDevice) Open(sampleRate, blockSize int, onBlock func([]float32)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return d.openErr
	}
	d.opens++
	d.onBlock = onBlock
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	d.onBlock = nil
	return nil
}

func (d *fakeDevice) emit(samples []float32) {
	d.mu.Lock()
	fn := d.onBlock
	d.mu.Unlock()
	if fn != nil {
		fn(samples)
	}
}

func (d *fakeDevice) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

type failingCodec struct{}

func (failingCodec) Format() string   { return "bad" }
func (failingCodec) MimeType() string { return "audio/bad" }
func (failingCodec) NewFrameEncoder(int) (FrameEncoder, error) {
	return nil, errors.New("encoder unavailable")
}
