package call

import (
	"go.uber.org/zap"

	"github.com/Avicted/callrelay/internal/signaling"
)

func (m *Machine) handleEvent(ev inboundEvent) {
	switch ev.name {
	case signaling.EventMediaFrame:
		m.handleRemoteFrame(ev.data)
	case signaling.EventConnect:
		m.logger.Debug("signaling connected")
	case signaling.EventReconnect:
		m.logger.Info("signaling reconnected")
	case signaling.EventDisconnect:
		m.logger.Warn("signaling disconnected", zap.Stringer("state", m.state.Kind))
		if m.joined != "" {
			m.rejoin = true
		}
	case signaling.EventError:
		info, _ := signaling.Decode[signaling.ErrorInfo](ev.data)
		m.logger.Debug("signaling error", zap.String("message", info.Message))
	case signaling.EventRegisterSuccess:
		m.onRegistered()
	case signaling.EventRegisterError:
		m.onRegisterError(ev)
	case signaling.EventIncomingCall:
		m.onIncomingCall(ev)
	case signaling.EventCallStarted:
		m.onCallStarted(ev)
	case signaling.EventCallResponse:
		m.onCallResponse(ev)
	case signaling.EventCallEnded, signaling.EventCallCancelled:
		m.onCallEnded(ev)
	case signaling.EventCallTimeout:
		if m.state.Kind.Pending() {
			m.finish(CallFailed, "Call timeout", OutcomeTimeout)
		}
	case signaling.EventCallRequestFailed:
		m.onCallRequestFailed(ev)
	case signaling.EventJoinCallRoom:
		m.onJoinCallRoom(ev)
	default:
		m.logger.Debug("unhandled event", zap.String("event", ev.name))
	}
}

// onRegistered rejoins the call room after the transport reconnected
// mid-call.
func (m *Machine) onRegistered() {
	m.logger.Debug("registered with signaling server")
	if !m.rejoin || m.session == nil {
		return
	}
	m.rejoin = false
	m.joined = ""
	m.joinRoom()
}

func (m *Machine) onRegisterError(ev inboundEvent) {
	res, _ := signaling.Decode[signaling.RegisterResult](ev.data)
	m.logger.Warn("registration rejected", zap.String("message", res.Message))
	if m.session == nil || !m.state.Kind.Busy() {
		return
	}
	reason := "Registration failed"
	if res.Message != "" {
		reason = reason + ": " + res.Message
	}
	m.finish(CallFailed, reason, OutcomeFailed)
}

func (m *Machine) onIncomingCall(ev inboundEvent) {
	payload, err := signaling.Decode[signaling.CallSession](ev.data)
	if err != nil {
		m.logger.Warn("malformed incoming call", zap.Error(err))
		return
	}
	if m.state.Kind.Busy() {
		m.logger.Info("busy; rejecting incoming call",
			zap.String("call_id", payload.CallID),
			zap.String("from", payload.FromUserID))
		m.sig.Emit(signaling.EventCallResponse, signaling.CallResponse{CallID: payload.CallID, Accepted: false})
		m.cfg.Recorder.CallFinished(OutcomeBusy)
		return
	}
	m.clearTerminal()

	m.gen++
	m.session = sessionFromWire(payload, m.cfg.Clock.Now())
	m.setState(State{Kind: IncomingCall, CallID: m.session.CallID, Session: m.session})
	m.arm(timerRing, m.cfg.RingTimeout)
	m.logger.Info("incoming call",
		zap.String("call_id", payload.CallID),
		zap.String("from", payload.FromUserID),
		zap.Bool("video", payload.IsVideoCall))
}

// onCallStarted carries the server's record of a call we placed, which
// replaces the locally generated id.
func (m *Machine) onCallStarted(ev inboundEvent) {
	payload, err := signaling.Decode[signaling.CallSession](ev.data)
	if err != nil || m.session == nil || m.state.Kind != OutgoingCall {
		return
	}
	if payload.RoomID != "" && payload.RoomID != m.session.RoomID {
		return
	}
	m.updateCallID(payload.CallID)
	m.refresh()
}

func (m *Machine) onCallResponse(ev inboundEvent) {
	payload, err := signaling.Decode[signaling.CallResponse](ev.data)
	if err != nil {
		m.logger.Warn("malformed call response", zap.Error(err))
		return
	}
	if m.state.Kind != OutgoingCall || m.session == nil || !m.session.matches(payload.CallID) {
		return
	}
	if !payload.Accepted {
		m.finish(CallFailed, "Call rejected", OutcomeRejected)
		return
	}
	m.timer.disarm()
	m.updateCallID(payload.CallID)
	m.refresh()
	m.logger.Info("call accepted; waiting for room", zap.String("call_id", m.session.CallID))
}

func (m *Machine) onCallEnded(ev inboundEvent) {
	payload, _ := signaling.Decode[signaling.CallEnd](ev.data)
	if !m.state.Kind.Busy() || m.session == nil {
		return
	}
	if !m.session.matches(payload.CallID) {
		m.logger.Debug("end for another call ignored", zap.String("call_id", payload.CallID))
		return
	}
	reason := payload.Reason
	outcome := OutcomeCompleted
	if ev.name == signaling.EventCallCancelled {
		outcome = OutcomeCancelled
		if reason == "" {
			reason = "Call cancelled"
		}
	}
	if reason == "" {
		reason = "Call ended"
	}
	m.finish(Ended, reason, outcome)
}

func (m *Machine) onCallRequestFailed(ev inboundEvent) {
	payload, _ := signaling.Decode[signaling.CallFailure](ev.data)
	reason := payload.Reason
	if reason == "" {
		reason = "Call failed"
	}
	m.finish(CallFailed, reason, OutcomeFailed)
}

func (m *Machine) onJoinCallRoom(ev inboundEvent) {
	payload, err := signaling.Decode[signaling.JoinCallRoom](ev.data)
	if err != nil {
		m.logger.Warn("malformed join-call-room", zap.Error(err))
		return
	}
	if m.session == nil || !m.state.Kind.Busy() {
		m.logger.Debug("join-call-room without a call", zap.String("room_id", payload.RoomID))
		return
	}
	if payload.RoomID != "" && payload.RoomID != m.session.RoomID {
		if !m.state.Kind.Pending() {
			m.logger.Debug("join-call-room for another room ignored", zap.String("room_id", payload.RoomID))
			return
		}
		m.session.RoomID = payload.RoomID
	}
	m.timer.disarm()
	m.updateCallID(payload.CallID)
	m.joinRoom()
	if m.state.Kind.Pending() {
		m.startPipelines()
		return
	}
	m.refresh()
}
