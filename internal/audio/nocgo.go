//go:build !linux

package audio

import (
	"context"
	"fmt"

	"github.com/Avicted/callrelay/internal/media"
)

// Only linux has a device backend. Elsewhere the device types exist so the
// pipelines build, and opening one reports media.ErrUnsupported.

type Capture struct{}

type Playback struct{}

func unsupported(what string) error {
	return fmt.Errorf("%s: %w", what, media.ErrUnsupported)
}

func StartCapture(context.Context) (*Capture, error) { return nil, unsupported("capture") }

func (*Capture) Samples() <-chan []float32 { return nil }
func (*Capture) SampleRate() int { return 0 }
func (*Capture) Close() error { return nil }

func StartPlayback(context.Context) (*Playback, error) { return nil, unsupported("playback") }

func (*Playback) SampleRate() int { return 0 }
func (*Playback) Channels() int { return 0 }
func (*Playback) Write([]int16) {}
func (*Playback) Close() error { return nil }
