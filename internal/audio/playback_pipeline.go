package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/Avicted/callrelay/internal/media"
)

// PlaybackPipeline renders received 16 kHz PCM16 chunks on the output
// device in arrival order. There is no jitter buffer.
type PlaybackPipeline struct {
	sink Sink
	gain float64

	mu     sync.Mutex
	closed bool
}

// OpenPlayback opens the default output device and wraps it in a pipeline.
func OpenPlayback(ctx context.Context, gain float64) (*PlaybackPipeline, error) {
	sink, err := StartPlayback(ctx)
	if err != nil {
		return nil, err
	}
	return NewPlaybackPipeline(sink, gain), nil
}

func NewPlaybackPipeline(sink Sink, gain float64) *PlaybackPipeline {
	if gain <= 0 {
		gain = 1
	}
	return &PlaybackPipeline{sink: sink, gain: gain}
}

// Enqueue decodes, amplifies, resamples and upmixes one chunk, then hands
// it to the device.
func (p *PlaybackPipeline) Enqueue(pcm []byte) error {
	samples, err := DecodePCM16(pcm)
	if err != nil {
		return fmt.Errorf("decode playback chunk: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return media.ErrClosed
	}
	if len(samples) == 0 {
		return nil
	}

	floats := PCM16ToFloat(samples)
	ApplyGain(floats, p.gain)
	floats = Resample(floats, TargetSampleRate, p.sink.SampleRate())
	out := Interleave(FloatToPCM16(floats), p.sink.Channels())
	p.sink.Write(out)
	return nil
}

func (p *PlaybackPipeline) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.sink.Close()
}
