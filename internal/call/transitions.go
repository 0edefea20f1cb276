package call

import (
	"go.uber.org/zap"

	"github.com/Avicted/callrelay/internal/signaling"
)

// finish moves to a terminal state, releasing the session and its
// pipelines, and arms the reset back to Idle. A call that already ended
// stays ended.
func (m *Machine) finish(kind Kind, reason, outcome string) {
	if m.state.Kind.Terminal() {
		return
	}
	callID := m.state.CallID
	if m.session != nil {
		callID = m.session.CallID
	}
	m.teardown()
	m.setState(State{Kind: kind, CallID: callID, Reason: reason})

	delay := m.cfg.EndedResetDelay
	if kind == CallFailed {
		delay = m.cfg.FailedResetDelay
	}
	m.arm(timerReset, delay)
	m.cfg.Recorder.CallFinished(outcome)
	m.logger.Info("call finished",
		zap.String("call_id", callID),
		zap.Stringer("state", kind),
		zap.String("reason", reason))
}

func (m *Machine) emitEnd(reason string) {
	if m.session == nil {
		return
	}
	m.sig.Emit(signaling.EventEndCall, signaling.CallEnd{
		RoomID: m.session.RoomID,
		CallID: m.session.CallID,
		Reason: reason,
	})
}

// clearTerminal drops a displayed end state so a new call can begin.
func (m *Machine) clearTerminal() {
	if m.state.Kind.Terminal() {
		m.timer.disarm()
		m.setState(State{Kind: Idle})
	}
}

// joinRoom emits join-call once per room.
func (m *Machine) joinRoom() {
	if m.session == nil || m.session.RoomID == "" || m.joined == m.session.RoomID {
		return
	}
	m.joined = m.session.RoomID
	m.sig.Emit(signaling.EventJoinCall, signaling.JoinCall{
		RoomID:   m.session.RoomID,
		UserID:   m.cfg.UserID,
		UserName: m.cfg.UserName,
	})
}

func (m *Machine) updateCallID(callID string) {
	if m.session == nil || callID == "" || m.session.CallID == callID {
		return
	}
	m.logger.Debug("call id assigned", zap.String("from", m.session.CallID), zap.String("to", callID))
	m.session.CallID = callID
}
