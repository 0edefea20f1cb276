package call

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Avicted/callrelay/internal/media"
	"github.com/Avicted/callrelay/internal/signaling"
)

// pipelineSet is the media owned by one call: audio capture and playback
// always, video capture only for video calls that could open a camera.
type pipelineSet struct {
	audio    media.Pipeline
	video    media.VideoCapture
	playback media.Playback
	videoErr error
	speaking bool
	cancel   context.CancelFunc
}

// close tears the set down playback first, so nothing is written to an
// output device whose sources are already gone.
func (p *pipelineSet) close(logger *zap.Logger) {
	if p == nil {
		return
	}
	if p.playback != nil {
		if err := p.playback.Close(); err != nil {
			logger.Debug("close playback", zap.Error(err))
		}
		p.playback = nil
	}
	if p.audio != nil {
		if err := p.audio.Close(); err != nil {
			logger.Debug("close audio capture", zap.Error(err))
		}
		p.audio = nil
	}
	if p.video != nil {
		if err := p.video.Close(); err != nil {
			logger.Debug("close video capture", zap.Error(err))
		}
		p.video = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

type pipelineResult struct {
	gen uint64
	set *pipelineSet
	err error
}

// startPipelines moves the call to Connecting and opens its pipelines off
// the loop. The result comes back on resultCh tagged with the session
// generation, so a result for a call that has since ended is discarded.
func (m *Machine) startPipelines() {
	if m.session == nil || m.pipes != nil || m.events != nil {
		return
	}
	m.events = make(chan media.Event, pipelineQueueSize)
	m.setState(State{Kind: Connecting, Session: m.session})

	if m.building > 0 {
		// devices are still held by a superseded build
		m.deferred = true
		return
	}
	m.launchBuild()
}

func (m *Machine) launchBuild() {
	m.deferred = false
	m.building++
	gen := m.gen
	video := m.session.IsVideoCall
	facing := m.facing
	events := m.events
	// devices live until the set is closed, not until the machine stops
	ctx, cancel := context.WithCancel(m.runCtx)
	go func() {
		set, err := m.buildPipelines(ctx, video, facing, events)
		if set == nil {
			cancel()
		} else {
			set.cancel = cancel
		}
		// shutdown drains every outstanding build, so the send never blocks
		// past the loop
		m.resultCh <- pipelineResult{gen: gen, set: set, err: err}
	}()
}

// drainBuilds waits for builds still opening devices and closes what they
// opened.
func (m *Machine) drainBuilds() {
	for m.building > 0 {
		r := <-m.resultCh
		m.building--
		r.set.close(m.logger)
	}
}

func (m *Machine) buildPipelines(ctx context.Context, video bool, facing media.Facing, events chan<- media.Event) (*pipelineSet, error) {
	set := &pipelineSet{}

	audio, err := m.devices.OpenAudioCapture(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("microphone: %w", err)
	}
	set.audio = audio

	if video {
		vc, err := m.devices.OpenVideoCapture(ctx, facing, events)
		if err != nil {
			set.videoErr = err
		} else {
			set.video = vc
		}
	}

	playback, err := m.devices.OpenPlayback(ctx)
	if err != nil {
		set.close(m.logger)
		return nil, fmt.Errorf("speaker: %w", err)
	}
	set.playback = playback
	return set, nil
}

func (m *Machine) handlePipelinesStarted(r pipelineResult) {
	m.building--
	if r.gen != m.gen || m.session == nil || m.state.Kind != Connecting {
		r.set.close(m.logger)
		if m.deferred && m.building == 0 && m.session != nil {
			m.launchBuild()
		}
		return
	}
	if r.err != nil {
		m.logger.Warn("media unavailable", zap.Error(r.err))
		reason := "Media unavailable"
		if errors.Is(r.err, media.ErrPermissionDenied) {
			reason = "Microphone permission denied"
		}
		m.emitEnd(reason)
		m.finish(CallFailed, reason, OutcomeFailed)
		return
	}
	if r.set.videoErr != nil {
		m.logger.Warn("camera unavailable; continuing audio-only", zap.Error(r.set.videoErr))
	}
	m.pipes = r.set
	if m.videoLost && m.pipes.video != nil {
		m.logger.Warn("video capture failed while connecting; continuing audio-only")
		if err := m.pipes.video.Close(); err != nil {
			m.logger.Debug("close video capture", zap.Error(err))
		}
		m.pipes.video = nil
	}
	m.videoLost = false
	m.setState(State{Kind: InCall, Session: m.session})
	m.logger.Info("call connected",
		zap.String("call_id", m.session.CallID),
		zap.String("room_id", m.session.RoomID),
		zap.Bool("video", m.pipes.video != nil))
}

// teardown releases everything tied to the current session.
func (m *Machine) teardown() {
	m.gen++
	if m.pipes != nil {
		m.pipes.close(m.logger)
		m.pipes = nil
	}
	m.events = nil
	m.deferred = false
	m.videoLost = false
	m.session = nil
	m.joined = ""
	m.rejoin = false
}

func (m *Machine) handlePipelineEvent(ev media.Event) {
	if m.session == nil {
		return
	}
	if m.state.Kind == Connecting && ev.Type == media.EventError {
		// a device opened by the running build failed before the rest of
		// the set came up
		if ev.Source == media.SourceVideoCapture {
			m.logger.Warn("video capture failed while connecting", zap.Error(ev.Err))
			m.videoLost = true
			return
		}
		m.handlePipelineError(ev)
		return
	}
	if m.pipes == nil || m.state.Kind != InCall {
		return
	}
	switch ev.Type {
	case media.EventFrame:
		kind := media.KindAudio
		if ev.Source == media.SourceVideoCapture {
			kind = media.KindVideo
		}
		m.sig.Emit(signaling.EventMediaFrame, signaling.NewMediaFrame(media.Frame{
			RoomID:     m.session.RoomID,
			SenderID:   m.cfg.UserID,
			SenderName: m.cfg.UserName,
			Kind:       kind,
			Payload:    ev.Payload,
			Timestamp:  m.cfg.Clock.Now(),
		}))
		m.cfg.Recorder.FrameRelayed(DirectionOut, kind, ResultRelayed)
	case media.EventSpeaking:
		if m.pipes.speaking != ev.Speaking {
			m.pipes.speaking = ev.Speaking
			m.refresh()
		}
	case media.EventError:
		m.handlePipelineError(ev)
	}
}

func (m *Machine) handlePipelineError(ev media.Event) {
	if ev.Source == media.SourceVideoCapture {
		m.logger.Warn("video capture failed; continuing audio-only", zap.Error(ev.Err))
		m.dropVideo()
		return
	}
	m.logger.Error("audio pipeline failed", zap.String("source", string(ev.Source)), zap.Error(ev.Err))
	reason := "Audio device failure"
	m.emitEnd(reason)
	m.finish(CallFailed, reason, OutcomeFailed)
}

func (m *Machine) dropVideo() {
	if m.pipes == nil || m.pipes.video == nil {
		return
	}
	if err := m.pipes.video.Close(); err != nil {
		m.logger.Debug("close video capture", zap.Error(err))
	}
	m.pipes.video = nil
	m.refresh()
}

func (m *Machine) handleRemoteFrame(data []byte) {
	if m.state.Kind != InCall || m.pipes == nil || m.session == nil {
		m.cfg.Recorder.FrameRelayed(DirectionIn, signaling.PeekFrameKind(data), ResultDropped)
		return
	}
	wire, err := signaling.Decode[signaling.MediaFrame](data)
	if err != nil {
		m.logger.Debug("malformed media frame", zap.Error(err))
		m.cfg.Recorder.FrameRelayed(DirectionIn, media.KindUnknown, ResultDropped)
		return
	}
	frame, err := wire.Frame()
	if err != nil {
		m.logger.Debug("unsupported media frame", zap.Error(err))
		m.cfg.Recorder.FrameRelayed(DirectionIn, media.KindUnknown, ResultDropped)
		return
	}
	if frame.SenderID == m.cfg.UserID || (frame.RoomID != "" && frame.RoomID != m.session.RoomID) {
		m.cfg.Recorder.FrameRelayed(DirectionIn, frame.Kind, ResultDropped)
		return
	}

	switch frame.Kind {
	case media.KindAudio:
		if err := m.pipes.playback.Enqueue(frame.Payload); err != nil {
			m.logger.Debug("playback rejected frame", zap.Error(err))
			m.cfg.Recorder.FrameRelayed(DirectionIn, frame.Kind, ResultDropped)
			return
		}
	case media.KindVideo:
		select {
		case m.remoteVideo <- frame:
		default:
			m.cfg.Recorder.FrameRelayed(DirectionIn, frame.Kind, ResultDropped)
			return
		}
	}
	m.cfg.Recorder.FrameRelayed(DirectionIn, frame.Kind, ResultRelayed)
}
