package audio

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Avicted/callrelay/internal/media"
)

type CaptureConfig struct {
	VADThreshold float64
	VADHangover  int
	Logger       *zap.Logger
}

// CapturePipeline turns microphone buffers into 16 kHz PCM16 frames. Frames
// are only emitted while the VAD reports speech; speaking transitions are
// reported as their own events.
type CapturePipeline struct {
	src    Source
	events chan<- media.Event
	vad    *VAD
	logger *zap.Logger
	now    func() time.Time

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// OpenCapture opens the default microphone and starts a pipeline on it.
func OpenCapture(ctx context.Context, events chan<- media.Event, cfg CaptureConfig) (*CapturePipeline, error) {
	src, err := StartCapture(ctx)
	if err != nil {
		return nil, err
	}
	return NewCapturePipeline(src, events, cfg), nil
}

func NewCapturePipeline(src Source, events chan<- media.Event, cfg CaptureConfig) *CapturePipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &CapturePipeline{
		src:    src,
		events: events,
		vad:    NewVAD(cfg.VADThreshold, cfg.VADHangover),
		logger: logger,
		now:    time.Now,
		done:   make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *CapturePipeline) run() {
	defer p.wg.Done()
	samples := p.src.Samples()
	for {
		select {
		case <-p.done:
			return
		case buf, ok := <-samples:
			if !ok {
				p.report(media.Event{Source: media.SourceAudioCapture, Type: media.EventError, Err: media.ErrDeviceUnavailable, At: p.now()})
				return
			}
			p.process(buf)
		}
	}
}

func (p *CapturePipeline) process(buf []float32) {
	if len(buf) == 0 {
		return
	}
	resampled := Resample(buf, p.src.SampleRate(), TargetSampleRate)
	pcm := FloatToPCM16(resampled)

	speaking, changed := p.vad.Update(RMS(pcm))
	if changed {
		p.report(media.Event{Source: media.SourceAudioCapture, Type: media.EventSpeaking, Speaking: speaking, At: p.now()})
	}
	if !speaking {
		return
	}
	ev := media.Event{Source: media.SourceAudioCapture, Type: media.EventFrame, Payload: EncodePCM16(pcm), At: p.now()}
	if !media.Emit(p.events, ev) {
		p.logger.Debug("audio frame dropped", zap.Int("samples", len(pcm)))
	}
}

// report delivers control events. Unlike frames they are not lossy, so it
// blocks until the consumer takes the event or the pipeline closes.
func (p *CapturePipeline) report(ev media.Event) {
	if p.events == nil {
		return
	}
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

func (p *CapturePipeline) Speaking() bool {
	return p.vad.Speaking()
}

func (p *CapturePipeline) Close() error {
	if p == nil {
		return nil
	}
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		err = p.src.Close()
	})
	return err
}
