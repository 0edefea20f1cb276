package call

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Avicted/callrelay/internal/media"
	"github.com/Avicted/callrelay/internal/signaling"
)

const (
	DefaultRingTimeout      = 30 * time.Second
	DefaultEndedResetDelay  = time.Second
	DefaultFailedResetDelay = 2 * time.Second
)

// Signaler is the part of the signal transport the machine uses.
type Signaler interface {
	Emit(event string, payload any)
	On(event string, h signaling.Handler)
	Registered() bool
}

// Devices opens the pipelines of a call. Capture pipelines report frames,
// speaking changes and failures on events.
type Devices interface {
	OpenAudioCapture(ctx context.Context, events chan<- media.Event) (media.Pipeline, error)
	OpenVideoCapture(ctx context.Context, facing media.Facing, events chan<- media.Event) (media.VideoCapture, error)
	OpenPlayback(ctx context.Context) (media.Playback, error)
}

// Recorder receives call and frame counters.
type Recorder interface {
	CallFinished(outcome string)
	FrameRelayed(direction string, kind media.Kind, result string)
}

type nopRecorder struct{}

func (nopRecorder) CallFinished(string) {}

func (nopRecorder) FrameRelayed(string, media.Kind, string) {}

type Config struct {
	UserID   string
	UserName string

	RingTimeout      time.Duration
	EndedResetDelay  time.Duration
	FailedResetDelay time.Duration

	Clock    clock.Clock
	Logger   *zap.Logger
	Recorder Recorder
}

func (c Config) withDefaults() Config {
	if c.RingTimeout <= 0 {
		c.RingTimeout = DefaultRingTimeout
	}
	if c.EndedResetDelay <= 0 {
		c.EndedResetDelay = DefaultEndedResetDelay
	}
	if c.FailedResetDelay <= 0 {
		c.FailedResetDelay = DefaultFailedResetDelay
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Recorder == nil {
		c.Recorder = nopRecorder{}
	}
	return c
}

// Outcome labels passed to Recorder.CallFinished.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeRejected  = "rejected"
	OutcomeTimeout   = "timeout"
	OutcomeFailed    = "failed"
	OutcomeBusy      = "busy"
)

// Frame directions and results passed to Recorder.FrameRelayed.
const (
	DirectionIn  = "in"
	DirectionOut = "out"

	ResultRelayed = "relayed"
	ResultDropped = "dropped"
)
