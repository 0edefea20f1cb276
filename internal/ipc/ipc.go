// Package ipc is the newline-delimited JSON protocol between the call
// daemon and a front end, carried over a unix socket or a windows named
// pipe.
package ipc

import (
	"encoding/json"
	"runtime"
	"time"
)

// DefaultDialTimeout bounds how long a front end waits for the daemon.
const DefaultDialTimeout = 2 * time.Second

const (
	CommandCall         = "call"
	CommandAccept       = "accept"
	CommandReject       = "reject"
	CommandCancel       = "cancel"
	CommandEnd          = "end"
	CommandSwitchCamera = "switch_camera"
	CommandState        = "state"
	CommandPing         = "ping"

	EventReady      = "ready"
	EventState      = "state"
	EventIncoming   = "incoming"
	EventConnection = "connection"
	EventSpeaking   = "speaking"
	EventCamera     = "camera"
	EventError      = "error"
	EventPong       = "pong"
)

// KnownCommand reports whether cmd is part of the protocol.
func KnownCommand(cmd string) bool {
	switch cmd {
	case CommandCall, CommandAccept, CommandReject, CommandCancel, CommandEnd,
		CommandSwitchCamera, CommandState, CommandPing:
		return true
	}
	return false
}

// Message is both a command (Cmd set) and an event (Event set).
type Message struct {
	Cmd    string `json:"cmd,omitempty"`
	Event  string `json:"event,omitempty"`
	User   string `json:"user,omitempty"`
	Name   string `json:"name,omitempty"`
	Chat   string `json:"chat,omitempty"`
	Video  bool   `json:"video,omitempty"`
	State  string `json:"state,omitempty"`
	Call   string `json:"call,omitempty"`
	Room   string `json:"room,omitempty"`
	Peer   string `json:"peer,omitempty"`
	Reason string `json:"reason,omitempty"`
	Facing string `json:"facing,omitempty"`
	Active bool   `json:"active,omitempty"`
	Error  string `json:"error,omitempty"`
}

func NewDecoder(r interface{ Read([]byte) (int, error) }) *json.Decoder {
	return json.NewDecoder(r)
}

func NewEncoder(w interface{ Write([]byte) (int, error) }) *json.Encoder {
	return json.NewEncoder(w)
}

func DefaultAddr() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\callrelay`
	}
	return "/tmp/callrelay.sock"
}
