//go:build linux

package audio

import (
	"context"
	"sync"

	"github.com/gen2brain/malgo"
)

// engine is one running malgo device together with the context it was
// created in.
type engine struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	once   sync.Once
	done   chan struct{}
}

// startEngine brings up a device at its native sample rate. configure
// adjusts the device config before init. A failure at any step releases
// what the earlier steps acquired.
func startEngine(kind malgo.DeviceType, configure func(*malgo.DeviceConfig), callbacks malgo.DeviceCallbacks) (*engine, error) {
	name := "capture"
	if kind == malgo.Playback {
		name = "playback"
	}

	mctx, err := malgoInitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, classifyDeviceError(name+": init context", err)
	}

	cfg := malgoDefaultDeviceConfig(kind)
	cfg.SampleRate = 0
	if configure != nil {
		configure(&cfg)
	}

	device, err := malgoInitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		releaseContext(mctx)
		return nil, classifyDeviceError(name+": init device", err)
	}
	if err := malgoDeviceStart(device); err != nil {
		malgoDeviceUninit(device)
		releaseContext(mctx)
		return nil, classifyDeviceError(name+": start device", err)
	}
	return &engine{ctx: mctx, device: device, done: make(chan struct{})}, nil
}

func (e *engine) sampleRate() int {
	if rate := int(malgoDeviceSampleRate(e.device)); rate > 0 {
		return rate
	}
	return fallbackSampleRate
}

func (e *engine) playbackChannels() int {
	if ch := int(malgoDevicePlaybackChannels(e.device)); ch > 0 {
		return ch
	}
	return 1
}

// close stops the device and frees the context. Device callbacks may still
// run while it is in progress.
func (e *engine) close() {
	if e == nil {
		return
	}
	e.once.Do(func() {
		if e.device != nil {
			malgoDeviceUninit(e.device)
		}
		if e.ctx != nil {
			releaseContext(e.ctx)
		}
		if e.done != nil {
			close(e.done)
		}
	})
}

// closeOnCancel runs stop when ctx ends. The watcher exits as soon as the
// engine is closed some other way.
func (e *engine) closeOnCancel(ctx context.Context, stop func()) {
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-e.done:
		}
	}()
}
