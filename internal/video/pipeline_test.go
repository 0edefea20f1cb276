package video

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/Avicted/callrelay/internal/media"
)

type fakeCamera struct {
	facing media.Facing
	frames chan image.Image
	done   chan struct{}
	once   sync.Once
}

func newFakeCamera(facing media.Facing) *fakeCamera {
	return &fakeCamera{facing: facing, frames: make(chan image.Image, 4), done: make(chan struct{})}
}

func (c *fakeCamera) Read() (image.Image, func(), error) {
	select {
	case img := <-c.frames:
		return img, func() {}, nil
	case <-c.done:
		return nil, nil, errors.New("camera closed")
	}
}

func (c *fakeCamera) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

type fakeOpener struct {
	mu      sync.Mutex
	opened  []*fakeCamera
	failFor map[media.Facing]error
}

func (o *fakeOpener) open(f media.Facing) (Camera, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.failFor[f]; err != nil {
		return nil, err
	}
	cam := newFakeCamera(f)
	o.opened = append(o.opened, cam)
	return cam, nil
}

func (o *fakeOpener) last() *fakeCamera {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened[len(o.opened)-1]
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	return img
}

func TestHandleRateLimitsFrames(t *testing.T) {
	mock := clock.NewMock()
	events := make(chan media.Event, 8)
	p := newPipeline(nil, media.FacingBack, events, Config{Clock: mock})

	img := solid(8, 8)
	p.handle(img)
	mock.Add(50 * time.Millisecond)
	p.handle(img)
	mock.Add(50 * time.Millisecond)
	p.handle(img)
	mock.Add(99 * time.Millisecond)
	p.handle(img)

	if got := len(events); got != 2 {
		t.Fatalf("emitted %d frames, want 2", got)
	}
	first, second := <-events, <-events
	if gap := second.At.Sub(first.At); gap < DefaultMinInterval {
		t.Fatalf("frame gap = %v, want >= %v", gap, DefaultMinInterval)
	}
}

func TestHandleRotatesFrontCameraAndEncodesJPEG(t *testing.T) {
	tests := []struct {
		name   string
		facing media.Facing
		wantW  int
		wantH  int
	}{
		{name: "front rotated", facing: media.FacingFront, wantW: 4, wantH: 8},
		{name: "back unrotated", facing: media.FacingBack, wantW: 8, wantH: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := make(chan media.Event, 1)
			p := newPipeline(nil, tt.facing, events, Config{Clock: clock.NewMock()})
			p.handle(solid(8, 4))

			ev := <-events
			if ev.Type != media.EventFrame || ev.Source != media.SourceVideoCapture {
				t.Fatalf("event = %+v, want video frame", ev)
			}
			decoded, err := jpeg.Decode(bytes.NewReader(ev.Payload))
			if err != nil {
				t.Fatalf("payload is not a JPEG: %v", err)
			}
			b := decoded.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Fatalf("decoded size = %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestFitScalesDownKeepingAspect(t *testing.T) {
	out := fit(solid(1280, 720), 640, 480)
	if b := out.Bounds(); b.Dx() != 640 || b.Dy() != 360 {
		t.Fatalf("fit size = %dx%d, want 640x360", b.Dx(), b.Dy())
	}
	small := solid(10, 10)
	if fit(small, 640, 480) != small {
		t.Fatal("expected small image to pass through unscaled")
	}
}

func TestRotate90Clockwise(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.RGBA{R: 255, A: 255})
	src.Set(1, 0, color.RGBA{B: 255, A: 255})

	out := rotate90(src)
	if b := out.Bounds(); b.Dx() != 1 || b.Dy() != 2 {
		t.Fatalf("rotated size = %dx%d, want 1x2", b.Dx(), b.Dy())
	}
	if r, _, _, _ := out.At(0, 0).RGBA(); r == 0 {
		t.Fatal("expected left pixel to move to top")
	}
	if _, _, b, _ := out.At(0, 1).RGBA(); b == 0 {
		t.Fatal("expected right pixel to move to bottom")
	}
}

func TestStartEmitsFramesAndCloseStopsCamera(t *testing.T) {
	opener := &fakeOpener{}
	events := make(chan media.Event, 4)
	p, err := Start(opener.open, media.FacingFront, events, Config{})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	cam := opener.last()
	cam.frames <- solid(4, 4)
	select {
	case ev := <-events:
		if ev.Type != media.EventFrame {
			t.Fatalf("event = %+v, want frame", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	select {
	case <-cam.done:
	default:
		t.Fatal("expected camera to be closed")
	}
	if _, err := p.SwitchCamera(); !errors.Is(err, media.ErrClosed) {
		t.Fatalf("switch after close error = %v, want ErrClosed", err)
	}
}

func TestStartOpenError(t *testing.T) {
	opener := &fakeOpener{failFor: map[media.Facing]error{media.FacingFront: media.ErrPermissionDenied}}
	_, err := Start(opener.open, media.FacingFront, nil, Config{})
	if !errors.Is(err, media.ErrPermissionDenied) {
		t.Fatalf("error = %v, want ErrPermissionDenied", err)
	}
}

func TestSwitchCameraTogglesFacing(t *testing.T) {
	opener := &fakeOpener{}
	events := make(chan media.Event, 4)
	p, err := Start(opener.open, media.FacingFront, events, Config{})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer p.Close()

	first := opener.last()
	facing, err := p.SwitchCamera()
	if err != nil {
		t.Fatalf("SwitchCamera() error: %v", err)
	}
	if facing != media.FacingBack || p.Facing() != media.FacingBack {
		t.Fatalf("facing = %v, want back", facing)
	}
	select {
	case <-first.done:
	default:
		t.Fatal("expected previous camera to be closed")
	}

	second := opener.last()
	if second.facing != media.FacingBack {
		t.Fatalf("opened camera facing = %v, want back", second.facing)
	}
	second.frames <- solid(4, 4)
	select {
	case ev := <-events:
		if ev.Type != media.EventFrame {
			t.Fatalf("event = %+v, want frame from new camera", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame after switch")
	}
}

func TestSwitchCameraFailureRestoresPreviousFacing(t *testing.T) {
	opener := &fakeOpener{failFor: map[media.Facing]error{}}
	p, err := Start(opener.open, media.FacingFront, make(chan media.Event, 1), Config{})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer p.Close()

	opener.mu.Lock()
	opener.failFor[media.FacingBack] = media.ErrDeviceUnavailable
	opener.mu.Unlock()

	facing, err := p.SwitchCamera()
	if !errors.Is(err, media.ErrDeviceUnavailable) {
		t.Fatalf("error = %v, want ErrDeviceUnavailable", err)
	}
	if errors.Is(err, media.ErrCameraLost) {
		t.Fatalf("error = %v, previous camera should have been restored", err)
	}
	if facing != media.FacingFront || p.Facing() != media.FacingFront {
		t.Fatalf("facing = %v, want front restored", facing)
	}
	opener.mu.Lock()
	opened := len(opener.opened)
	opener.mu.Unlock()
	if opened != 2 {
		t.Fatalf("cameras opened = %d, want 2 (initial + restore)", opened)
	}
}

func TestSwitchCameraReportsLostCamera(t *testing.T) {
	opener := &fakeOpener{failFor: map[media.Facing]error{}}
	p, err := Start(opener.open, media.FacingFront, make(chan media.Event, 1), Config{})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer p.Close()

	opener.mu.Lock()
	opener.failFor[media.FacingBack] = media.ErrDeviceUnavailable
	opener.failFor[media.FacingFront] = media.ErrDeviceUnavailable
	opener.mu.Unlock()

	if _, err := p.SwitchCamera(); !errors.Is(err, media.ErrCameraLost) {
		t.Fatalf("error = %v, want media.ErrCameraLost", err)
	}
}

func TestReadErrorIsReported(t *testing.T) {
	opener := &fakeOpener{}
	events := make(chan media.Event, 1)
	p, err := Start(opener.open, media.FacingBack, events, Config{})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer p.Close()

	// closing the camera behind the pipeline's back looks like a device failure
	_ = opener.last().Close()
	select {
	case ev := <-events:
		if ev.Type != media.EventError || ev.Source != media.SourceVideoCapture {
			t.Fatalf("event = %+v, want video error", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error event")
	}
}
