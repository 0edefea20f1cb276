package audio

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Avicted/callrelay/internal/media"
)

const (
	CaptureChannels    = 1
	fallbackSampleRate = 48000

	// The playback queue keeps at most this much audio; older samples are
	// dropped first.
	maxPlaybackBufferSeconds = 10
)

// Source delivers microphone buffers as mono float32 at the device's native
// rate.
type Source interface {
	Samples() <-chan []float32
	SampleRate() int
	Close() error
}

// Sink renders interleaved PCM16 at the device's native rate and channel
// count.
type Sink interface {
	SampleRate() int
	Channels() int
	Write(samples []int16)
	Close() error
}

func classifyDeviceError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrPermission) || strings.Contains(strings.ToLower(err.Error()), "permission") {
		return fmt.Errorf("%s: %w: %w", op, media.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w: %w", op, media.ErrDeviceUnavailable, err)
}
