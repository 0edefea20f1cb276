// Package coordinator decides which call surfaces a front end shows for a
// given call state. It holds no protocol knowledge.
package coordinator

import (
	"github.com/Avicted/callrelay/internal/call"
)

// Flags are the surfaces to show. At most one of the overlays and the
// in-call screen is set. Banner is a one-line status, empty when there is
// nothing to say.
type Flags struct {
	IncomingOverlay bool
	OutgoingOverlay bool
	InCallScreen    bool
	Banner          string
	CanMakeCall     bool
	Terminal        bool
}

func FromState(s call.State) Flags {
	f := Flags{}
	switch s.Kind {
	case call.Idle:
		f.CanMakeCall = true
	case call.IncomingCall:
		f.IncomingOverlay = true
		f.Banner = "Incoming " + callType(s) + " call from " + peerName(s)
	case call.OutgoingCall:
		f.OutgoingOverlay = true
		f.Banner = "Calling " + peerName(s) + "..."
	case call.Connecting:
		f.InCallScreen = true
		f.Banner = "Connecting..."
	case call.InCall:
		f.InCallScreen = true
	case call.Ended, call.CallFailed:
		f.Terminal = true
		f.CanMakeCall = true
		f.Banner = s.Reason
		if f.Banner == "" {
			f.Banner = s.Kind.String()
		}
	}
	return f
}

// Peer returns the other party of a session from userID's point of view.
func Peer(sess *call.Session, userID string) (id, name string) {
	if sess == nil {
		return "", ""
	}
	if sess.FromUserID == userID {
		return sess.ToUserID, sess.ToUserID
	}
	name = sess.FromUserName
	if name == "" {
		name = sess.FromUserID
	}
	return sess.FromUserID, name
}

func peerName(s call.State) string {
	if s.Session == nil {
		return "unknown"
	}
	if s.Kind == call.OutgoingCall {
		return s.Session.ToUserID
	}
	if s.Session.FromUserName != "" {
		return s.Session.FromUserName
	}
	return s.Session.FromUserID
}

func callType(s call.State) string {
	if s.Session != nil && s.Session.IsVideoCall {
		return "video"
	}
	return "voice"
}
