// Package call holds the call state machine: one loop goroutine that owns
// the current call, reacts to signaling events and user intents, drives the
// ring and reset timers, and owns the media pipelines of the active call.
package call

import (
	"errors"
	"strings"
	"time"

	"github.com/Avicted/callrelay/internal/signaling"
)

var (
	ErrNotConnected   = errors.New("not connected to signaling server")
	ErrCallInProgress = errors.New("another call is in progress")
	ErrInvalidState   = errors.New("action not valid in current call state")
	ErrNoVideo        = errors.New("no active video capture")
	ErrMissingCallee  = errors.New("missing callee")
	ErrStopped        = errors.New("call machine stopped")
)

type Kind int

const (
	Idle Kind = iota
	Connecting
	OutgoingCall
	IncomingCall
	InCall
	Ended
	CallFailed
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case OutgoingCall:
		return "outgoingCall"
	case IncomingCall:
		return "incomingCall"
	case InCall:
		return "inCall"
	case Ended:
		return "ended"
	case CallFailed:
		return "callFailed"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k := Idle; k <= CallFailed; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return Idle, false
}

// Pending reports whether the call is still being negotiated.
func (k Kind) Pending() bool {
	return k == OutgoingCall || k == IncomingCall
}

// Busy reports whether a session is pending or active.
func (k Kind) Busy() bool {
	return k == Connecting || k == OutgoingCall || k == IncomingCall || k == InCall
}

// Terminal reports whether the state is a display-only end state that
// resets to Idle on its own.
func (k Kind) Terminal() bool {
	return k == Ended || k == CallFailed
}

const tempIDPrefix = "temp_"

type Session struct {
	CallID       string
	RoomID       string
	FromUserID   string
	FromUserName string
	ToUserID     string
	IsVideoCall  bool
	ChatID       string
	CreatedAt    time.Time
}

// HasTempID reports whether the call id was generated locally and not yet
// replaced by the server's.
func (s *Session) HasTempID() bool {
	return strings.HasPrefix(s.CallID, tempIDPrefix)
}

// matches reports whether an event carrying callID belongs to s. Events
// without an id, and events arriving while s only has a local id, match.
func (s *Session) matches(callID string) bool {
	return callID == "" || s.CallID == "" || s.HasTempID() || s.CallID == callID
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func sessionFromWire(in signaling.CallSession, now time.Time) *Session {
	created := now
	if in.CreatedAt > 0 {
		created = time.UnixMilli(in.CreatedAt)
	}
	return &Session{
		CallID:       in.CallID,
		RoomID:       in.RoomID,
		FromUserID:   in.FromUserID,
		FromUserName: in.FromUserName,
		ToUserID:     in.ToUserID,
		IsVideoCall:  in.IsVideoCall,
		ChatID:       in.ChatID,
		CreatedAt:    created,
	}
}

// State is the observable call state. Kind selects the variant: CallID is
// set for OutgoingCall, Session for IncomingCall, Connecting and InCall,
// Reason for Ended and CallFailed. Video and Speaking describe the local
// pipelines while InCall.
type State struct {
	Kind     Kind
	CallID   string
	Session  *Session
	Reason   string
	Video    bool
	Speaking bool
}

func (s State) clone() State {
	s.Session = s.Session.clone()
	return s
}

// CallRequest is a user's request to call someone.
type CallRequest struct {
	ToUserID string
	Video    bool
	ChatID   string
}
