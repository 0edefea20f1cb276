package signaling

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Avicted/callrelay/internal/media"
)

// Synthetic events raised by the transport itself.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventReconnect  = "reconnect"
	EventError      = "error"
)

// Server events.
const (
	EventRegisterSuccess   = "register-success"
	EventRegisterError     = "register-error"
	EventIncomingCall      = "incoming-call"
	EventCallStarted       = "call-started"
	EventCallResponse      = "call-response"
	EventCallEnded         = "call-ended"
	EventCallCancelled     = "call-cancelled"
	EventCallTimeout       = "call-timeout"
	EventCallRequestFailed = "call-request-failed"
	EventJoinCallRoom      = "join-call-room"
	EventMediaFrame        = "media-frame"
)

// Client events.
const (
	EventRegister    = "register"
	EventCallRequest = "call-request"
	EventCancelCall  = "cancel-call"
	EventEndCall     = "end-call"
	EventJoinCall    = "join-call"
	EventLeave       = "leave"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outgoing struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type Register struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type RegisterResult struct {
	UserID  string `json:"userId,omitempty"`
	Message string `json:"message,omitempty"`
}

type CallRequest struct {
	RoomID       string `json:"roomId"`
	FromUserID   string `json:"fromUserId"`
	FromUserName string `json:"fromUserName"`
	ToUserID     string `json:"toUserId"`
	IsVideoCall  bool   `json:"isVideoCall"`
	ChatID       string `json:"chatId,omitempty"`
}

// CallSession is the full session record carried by incoming-call and
// call-started. CreatedAt is unix milliseconds.
type CallSession struct {
	CallID       string `json:"callId"`
	RoomID       string `json:"roomId"`
	FromUserID   string `json:"fromUserId"`
	FromUserName string `json:"fromUserName"`
	ToUserID     string `json:"toUserId"`
	IsVideoCall  bool   `json:"isVideoCall"`
	ChatID       string `json:"chatId,omitempty"`
	CreatedAt    int64  `json:"createdAt,omitempty"`
}

type CallResponse struct {
	CallID   string `json:"callId"`
	Accepted bool   `json:"accepted"`
}

type CancelCall struct {
	CallID string `json:"callId"`
}

// CallEnd is used for both end-call and call-ended/call-cancelled.
type CallEnd struct {
	RoomID string `json:"roomId,omitempty"`
	CallID string `json:"callId,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type CallFailure struct {
	Reason string `json:"reason"`
}

type JoinCallRoom struct {
	RoomID string `json:"roomId"`
	CallID string `json:"callId"`
}

type JoinCall struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type Leave struct {
	UserID string `json:"userId"`
}

type ErrorInfo struct {
	Message string `json:"message"`
}

// MediaFrame is the wire form of media.Frame. Byte payloads are encoded as
// base64 by encoding/json; Timestamp is unix milliseconds.
type MediaFrame struct {
	RoomID    string `json:"roomId"`
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Timestamp int64  `json:"timestamp"`
	FrameData []byte `json:"frameData,omitempty"`
	AudioData []byte `json:"audioData,omitempty"`
}

func NewMediaFrame(f media.Frame) MediaFrame {
	out := MediaFrame{
		RoomID:    f.RoomID,
		Type:      string(f.Kind),
		UserID:    f.SenderID,
		UserName:  f.SenderName,
		Timestamp: f.Timestamp.UnixMilli(),
	}
	switch f.Kind {
	case media.KindVideo:
		out.FrameData = f.Payload
	case media.KindAudio:
		out.AudioData = f.Payload
	}
	return out
}

func (m MediaFrame) Frame() (media.Frame, error) {
	f := media.Frame{
		RoomID:     m.RoomID,
		SenderID:   m.UserID,
		SenderName: m.UserName,
		Kind:       media.Kind(m.Type),
		Timestamp:  time.UnixMilli(m.Timestamp),
	}
	switch f.Kind {
	case media.KindVideo:
		f.Payload = m.FrameData
	case media.KindAudio:
		f.Payload = m.AudioData
	default:
		return media.Frame{}, fmt.Errorf("unknown media frame type %q", m.Type)
	}
	return f, nil
}

// PeekFrameKind reads only the type of a wire media frame. Anything other
// than audio or video reports media.KindUnknown.
func PeekFrameKind(data json.RawMessage) media.Kind {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return media.KindUnknown
	}
	switch k := media.Kind(head.Type); k {
	case media.KindAudio, media.KindVideo:
		return k
	}
	return media.KindUnknown
}

// Decode unmarshals an event payload into T. A missing payload yields the
// zero value.
func Decode[T any](data json.RawMessage) (T, error) {
	var out T
	if len(data) == 0 || string(data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}
