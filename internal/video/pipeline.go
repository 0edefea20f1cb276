// Package video captures camera frames, rotates and scales them, encodes
// them as JPEG and emits them as relay events at a bounded rate.
package video

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/Avicted/callrelay/internal/media"
)

const (
	DefaultMinInterval = 100 * time.Millisecond
	DefaultQuality     = 50
	DefaultMaxWidth    = 640
	DefaultMaxHeight   = 480
)

// Camera is an open capture device. Read blocks until the next frame; the
// returned release func must be called once the image is no longer used.
type Camera interface {
	Read() (image.Image, func(), error)
	Close() error
}

type Opener func(media.Facing) (Camera, error)

type Config struct {
	Quality     int
	MinInterval time.Duration
	MaxWidth    int
	MaxHeight   int
	Clock       clock.Clock
	Logger      *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = DefaultQuality
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.MaxWidth <= 0 {
		c.MaxWidth = DefaultMaxWidth
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = DefaultMaxHeight
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

type Pipeline struct {
	open   Opener
	events chan<- media.Event
	cfg    Config

	mu       sync.Mutex
	cam      Camera
	facing   media.Facing
	lastSent time.Time
	closed   bool

	swapped   chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Start opens the camera with the given facing and begins emitting frames.
func Start(open Opener, facing media.Facing, events chan<- media.Event, cfg Config) (*Pipeline, error) {
	cam, err := open(facing)
	if err != nil {
		return nil, fmt.Errorf("open %s camera: %w", facing, err)
	}
	p := newPipeline(open, facing, events, cfg)
	p.cam = cam
	p.wg.Add(1)
	go p.run()
	return p, nil
}

func newPipeline(open Opener, facing media.Facing, events chan<- media.Event, cfg Config) *Pipeline {
	return &Pipeline{
		open:    open,
		events:  events,
		cfg:     cfg.withDefaults(),
		facing:  facing,
		swapped: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (p *Pipeline) run() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		cam, closed := p.cam, p.closed
		p.mu.Unlock()
		if closed {
			return
		}
		if cam == nil {
			select {
			case <-p.done:
				return
			case <-p.swapped:
				continue
			}
		}

		img, release, err := cam.Read()
		if err != nil {
			p.mu.Lock()
			current, closed := p.cam, p.closed
			p.mu.Unlock()
			if closed {
				return
			}
			if current != cam {
				continue
			}
			p.report(media.Event{Source: media.SourceVideoCapture, Type: media.EventError, Err: fmt.Errorf("read camera: %w", err), At: p.cfg.Clock.Now()})
			return
		}
		p.handle(img)
		if release != nil {
			release()
		}
	}
}

// handle rate-limits, transforms and emits one captured image.
func (p *Pipeline) handle(img image.Image) {
	if img == nil {
		return
	}
	now := p.cfg.Clock.Now()
	p.mu.Lock()
	if !p.lastSent.IsZero() && now.Sub(p.lastSent) < p.cfg.MinInterval {
		p.mu.Unlock()
		return
	}
	p.lastSent = now
	facing := p.facing
	p.mu.Unlock()

	payload, err := p.encode(img, facing)
	if err != nil {
		p.cfg.Logger.Debug("video frame encode failed", zap.Error(err))
		return
	}
	ev := media.Event{Source: media.SourceVideoCapture, Type: media.EventFrame, Payload: payload, At: now}
	if !media.Emit(p.events, ev) {
		p.cfg.Logger.Debug("video frame dropped", zap.Int("bytes", len(payload)))
	}
}

func (p *Pipeline) encode(img image.Image, facing media.Facing) ([]byte, error) {
	out := fit(img, p.cfg.MaxWidth, p.cfg.MaxHeight)
	if facing == media.FacingFront {
		out = rotate90(out)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: p.cfg.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *Pipeline) report(ev media.Event) {
	if p.events == nil {
		return
	}
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

func (p *Pipeline) Facing() media.Facing {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.facing
}

// SwitchCamera closes the current camera and opens the opposite one. On
// failure the previous facing is restored and its camera reopened; if that
// also fails the error wraps media.ErrCameraLost and no more frames follow.
func (p *Pipeline) SwitchCamera() (media.Facing, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return p.facing, media.ErrClosed
	}

	prev := p.facing
	next := prev.Opposite()
	if p.cam != nil {
		if err := p.cam.Close(); err != nil {
			p.cfg.Logger.Debug("close camera failed", zap.Error(err))
		}
		p.cam = nil
	}
	defer p.signalSwap()

	cam, err := p.open(next)
	if err != nil {
		p.facing = prev
		restored, rerr := p.open(prev)
		if rerr != nil {
			return prev, fmt.Errorf("switch to %s camera: %w: %w", next, media.ErrCameraLost, err)
		}
		p.cam = restored
		return prev, fmt.Errorf("switch to %s camera: %w", next, err)
	}
	p.cam = cam
	p.facing = next
	p.lastSent = time.Time{}
	return next, nil
}

func (p *Pipeline) signalSwap() {
	select {
	case p.swapped <- struct{}{}:
	default:
	}
}

func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		cam := p.cam
		p.cam = nil
		p.mu.Unlock()
		close(p.done)
		if cam != nil {
			err = cam.Close()
		}
		p.wg.Wait()
	})
	return err
}

// fit scales img down to fit within maxW x maxH, keeping aspect ratio.
func fit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return img
	}
	scale := float64(maxW) / float64(w)
	if s := float64(maxH) / float64(h); s < scale {
		scale = s
	}
	dw, dh := int(float64(w)*scale), int(float64(h)*scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// rotate90 rotates img a quarter turn clockwise.
func rotate90(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(h-1-y, x, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}
