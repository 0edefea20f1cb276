package call

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Avicted/callrelay/internal/media"
	"github.com/Avicted/callrelay/internal/signaling"
)

func (m *Machine) handleIntent(in intent) intentResult {
	switch in.kind {
	case intentMakeCall:
		return intentResult{err: m.makeCall(in.req)}
	case intentAccept:
		return intentResult{err: m.acceptCall()}
	case intentReject:
		return intentResult{err: m.rejectCall()}
	case intentCancel:
		return intentResult{err: m.cancelCall()}
	case intentEnd:
		return intentResult{err: m.endCall()}
	case intentSwitchCamera:
		facing, err := m.switchCamera()
		return intentResult{facing: facing, err: err}
	}
	return intentResult{err: ErrInvalidState}
}

func (m *Machine) makeCall(req CallRequest) error {
	to := strings.TrimSpace(req.ToUserID)
	if to == "" {
		return ErrMissingCallee
	}
	if !m.sig.Registered() {
		return ErrNotConnected
	}
	if m.state.Kind.Busy() {
		return ErrCallInProgress
	}
	m.clearTerminal()

	m.gen++
	m.session = &Session{
		CallID:       tempIDPrefix + uuid.NewString(),
		RoomID:       uuid.NewString(),
		FromUserID:   m.cfg.UserID,
		FromUserName: m.cfg.UserName,
		ToUserID:     to,
		IsVideoCall:  req.Video,
		ChatID:       req.ChatID,
		CreatedAt:    m.cfg.Clock.Now(),
	}
	m.sig.Emit(signaling.EventCallRequest, signaling.CallRequest{
		RoomID:       m.session.RoomID,
		FromUserID:   m.session.FromUserID,
		FromUserName: m.session.FromUserName,
		ToUserID:     to,
		IsVideoCall:  req.Video,
		ChatID:       req.ChatID,
	})
	m.setState(State{Kind: OutgoingCall, CallID: m.session.CallID, Session: m.session})
	m.arm(timerRing, m.cfg.RingTimeout)
	m.logger.Info("calling",
		zap.String("to", to),
		zap.String("room_id", m.session.RoomID),
		zap.Bool("video", req.Video))
	return nil
}

func (m *Machine) acceptCall() error {
	if m.state.Kind != IncomingCall || m.session == nil {
		return ErrInvalidState
	}
	m.timer.disarm()
	m.sig.Emit(signaling.EventCallResponse, signaling.CallResponse{CallID: m.session.CallID, Accepted: true})
	m.joinRoom()
	m.startPipelines()
	return nil
}

func (m *Machine) rejectCall() error {
	if m.state.Kind != IncomingCall || m.session == nil {
		return ErrInvalidState
	}
	m.timer.disarm()
	m.sig.Emit(signaling.EventCallResponse, signaling.CallResponse{CallID: m.session.CallID, Accepted: false})
	m.teardown()
	m.setState(State{Kind: Idle})
	m.cfg.Recorder.CallFinished(OutcomeRejected)
	return nil
}

func (m *Machine) cancelCall() error {
	if m.state.Kind != OutgoingCall || m.session == nil {
		return ErrInvalidState
	}
	m.sig.Emit(signaling.EventCancelCall, signaling.CancelCall{CallID: m.session.CallID})
	m.finish(Ended, "Call cancelled", OutcomeCancelled)
	return nil
}

func (m *Machine) endCall() error {
	switch m.state.Kind {
	case Ended:
		return nil
	case InCall, Connecting:
	default:
		return ErrInvalidState
	}
	m.emitEnd("Call ended")
	m.finish(Ended, "Call ended", OutcomeCompleted)
	return nil
}

func (m *Machine) switchCamera() (media.Facing, error) {
	if m.state.Kind != InCall || m.pipes == nil || m.pipes.video == nil {
		return m.facing, ErrNoVideo
	}
	facing, err := m.pipes.video.SwitchCamera()
	m.facing = facing
	if err != nil {
		if errors.Is(err, media.ErrCameraLost) {
			m.logger.Warn("camera lost during switch; continuing audio-only", zap.Error(err))
			m.dropVideo()
		}
		return facing, err
	}
	return facing, nil
}
