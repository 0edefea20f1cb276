//go:build linux

package audio

import (
	"context"
	"sync"

	"github.com/gen2brain/malgo"
)

const captureQueueSize = 8

// Capture is the default microphone, read as mono float32 at the device's
// native rate. Buffers the reader has not taken are dropped. The sample
// channel is closed once the device stops, whether by Close or because the
// device went away.
type Capture struct {
	eng  *engine
	rate int

	mu      sync.Mutex
	ch      chan []float32
	stopped bool
}

func StartCapture(ctx context.Context) (*Capture, error) {
	c := &Capture{ch: make(chan []float32, captureQueueSize)}
	eng, err := startEngine(malgo.Capture, func(cfg *malgo.DeviceConfig) {
		cfg.Capture.Format = malgo.FormatF32
		cfg.Capture.Channels = CaptureChannels
	}, malgo.DeviceCallbacks{Data: c.deliver, Stop: c.finish})
	if err != nil {
		return nil, err
	}
	c.eng = eng
	c.rate = eng.sampleRate()

	eng.closeOnCancel(ctx, func() { _ = c.Close() })
	return c, nil
}

func (c *Capture) deliver(_, input []byte, _ uint32) {
	samples := DecodeFloat32LE(input)
	if samples == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	select {
	case c.ch <- samples:
	default:
	}
}

func (c *Capture) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.ch == nil {
		return
	}
	c.stopped = true
	close(c.ch)
}

func (c *Capture) Samples() <-chan []float32 {
	if c == nil {
		return nil
	}
	return c.ch
}

func (c *Capture) SampleRate() int {
	if c == nil {
		return 0
	}
	return c.rate
}

func (c *Capture) Close() error {
	if c == nil {
		return nil
	}
	c.eng.close()
	c.finish()
	return nil
}
