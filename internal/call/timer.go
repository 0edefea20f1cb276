package call

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

type timerPurpose int

const (
	timerRing timerPurpose = iota
	timerReset
)

func (p timerPurpose) String() string {
	if p == timerReset {
		return "reset"
	}
	return "ring"
}

type timerFired struct {
	purpose timerPurpose
	gen     uint64
}

// timerSlot is the machine's only timer. Arming it cancels whatever was
// armed before, and every arm or disarm bumps the generation so a fire
// that was already in flight is recognised as stale.
type timerSlot struct {
	timer   *clock.Timer
	purpose timerPurpose
	armedIn Kind
	gen     uint64
	armed   bool
}

func (s *timerSlot) disarm() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armed = false
	s.gen++
}

func (m *Machine) arm(purpose timerPurpose, d time.Duration) {
	m.timer.disarm()
	m.timer.purpose = purpose
	m.timer.armedIn = m.state.Kind
	m.timer.armed = true
	gen := m.timer.gen
	m.timer.timer = m.cfg.Clock.AfterFunc(d, func() {
		select {
		case m.timerCh <- timerFired{purpose: purpose, gen: gen}:
		case <-m.done:
		}
	})
}

// fire reports whether f is the live timer, consuming it if so.
func (s *timerSlot) fire(f timerFired) bool {
	if !s.armed || f.gen != s.gen || f.purpose != s.purpose {
		return false
	}
	s.armed = false
	s.timer = nil
	return true
}

func (m *Machine) handleTimer(f timerFired) {
	if !m.timer.fire(f) {
		m.logger.Debug("stale timer ignored", zap.Stringer("timer", f.purpose))
		return
	}
	if m.state.Kind != m.timer.armedIn {
		return
	}
	switch f.purpose {
	case timerRing:
		if m.state.Kind.Pending() {
			m.logger.Info("call timed out", zap.String("call_id", m.state.CallID))
			m.finish(CallFailed, "Call timeout", OutcomeTimeout)
		}
	case timerReset:
		m.setState(State{Kind: Idle})
	}
}
