// Package media holds the contracts shared by the capture and playback
// pipelines and the call state machine: relay frames, pipeline events and
// the pipeline handles the machine owns.
package media

import (
	"errors"
	"time"
)

type Kind string

const (
	KindVideo   Kind = "video"
	KindAudio   Kind = "audio"
	KindUnknown Kind = "unknown"
)

var (
	ErrPermissionDenied  = errors.New("media permission denied")
	ErrDeviceUnavailable = errors.New("media device unavailable")
	ErrUnsupported       = errors.New("media capture unsupported on this platform")
	ErrClosed            = errors.New("media pipeline closed")
	ErrCameraLost        = errors.New("camera lost")
)

// Frame is one relayed media unit. Video payloads are JPEG images, audio
// payloads are 16 kHz mono little-endian PCM16 samples.
type Frame struct {
	RoomID     string
	SenderID   string
	SenderName string
	Kind       Kind
	Payload    []byte
	Timestamp  time.Time
}

type Source string

const (
	SourceAudioCapture Source = "audio-capture"
	SourceVideoCapture Source = "video-capture"
	SourcePlayback     Source = "playback"
)

type EventType int

const (
	EventFrame EventType = iota
	EventSpeaking
	EventError
)

// Event is what a pipeline reports upward. Pipelines never call into the
// state machine; they only send events on the channel they were built with.
type Event struct {
	Source   Source
	Type     EventType
	Payload  []byte
	Speaking bool
	Err      error
	At       time.Time
}

// Emit sends ev without blocking. Frames are lossy by contract, so a full
// channel drops the event and reports false.
func Emit(ch chan<- Event, ev Event) bool {
	if ch == nil {
		return false
	}
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}

type Facing int

const (
	FacingFront Facing = iota
	FacingBack
)

func (f Facing) String() string {
	if f == FacingBack {
		return "back"
	}
	return "front"
}

func (f Facing) Opposite() Facing {
	if f == FacingBack {
		return FacingFront
	}
	return FacingBack
}

type Pipeline interface {
	Close() error
}

type VideoCapture interface {
	Pipeline
	Facing() Facing
	SwitchCamera() (Facing, error)
}

type Playback interface {
	Pipeline
	Enqueue(pcm []byte) error
}
