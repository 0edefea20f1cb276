//go:build linux

package audio

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/gen2brain/malgo"
)

// Playback is the default output device. It runs at the device's native
// rate and channel count; callers write interleaved PCM16 matching both.
type Playback struct {
	eng      *engine
	rate     int
	channels int

	mu      sync.Mutex
	queue   sampleQueue
	scratch []int16
	closed  bool
}

func StartPlayback(ctx context.Context) (*Playback, error) {
	p := &Playback{}
	eng, err := startEngine(malgo.Playback, func(cfg *malgo.DeviceConfig) {
		cfg.Playback.Format = malgo.FormatS16
		cfg.Playback.Channels = 0
	}, malgo.DeviceCallbacks{Data: p.fillOutput})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.eng = eng
	p.rate = eng.sampleRate()
	p.channels = eng.playbackChannels()
	p.queue.max = p.rate * p.channels * maxPlaybackBufferSeconds
	p.mu.Unlock()

	eng.closeOnCancel(ctx, func() { _ = p.Close() })
	return p, nil
}

func (p *Playback) SampleRate() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

func (p *Playback) Channels() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels
}

// Write queues interleaved samples behind whatever is already waiting.
// Writes after Close are discarded.
func (p *Playback) Write(samples []int16) {
	if p == nil || len(samples) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.queue.push(samples)
}

func (p *Playback) fillOutput(output, _ []byte, _ uint32) {
	n := len(output) / 2
	if p == nil || n == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if cap(p.scratch) < n {
		p.scratch = make([]int16, n)
	}
	frame := p.scratch[:n]
	p.queue.pop(frame)
	for i, s := range frame {
		binary.LittleEndian.PutUint16(output[i*2:], uint16(s))
	}
}

func (p *Playback) Close() error {
	if p == nil {
		return nil
	}
	p.eng.close()

	p.mu.Lock()
	p.closed = true
	p.queue.buf = nil
	p.scratch = nil
	p.mu.Unlock()
	return nil
}
