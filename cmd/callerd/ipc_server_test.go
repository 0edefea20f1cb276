package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Avicted/callrelay/internal/ipc"
)

func TestIPCServerReply(t *testing.T) {
	pong := func(context.Context, ipc.Message) (ipc.Message, error) {
		return ipc.Message{Event: ipc.EventPong}, nil
	}
	silent := func(context.Context, ipc.Message) (ipc.Message, error) {
		return ipc.Message{}, nil
	}
	failing := func(context.Context, ipc.Message) (ipc.Message, error) {
		return ipc.Message{}, fmt.Errorf("boom")
	}

	tests := []struct {
		name    string
		handle  ipcHandler
		cmd     string
		want    ipc.Message
		replies bool
	}{
		{"unknown command", pong, "bogus", ipc.Message{Event: ipc.EventError, Cmd: "bogus", Error: "unknown command"}, true},
		{"missing handler", nil, ipc.CommandPing, ipc.Message{Event: ipc.EventError, Cmd: ipc.CommandPing, Error: "ipc handler unavailable"}, true},
		{"handler error", failing, ipc.CommandAccept, ipc.Message{Event: ipc.EventError, Cmd: ipc.CommandAccept, Error: "boom"}, true},
		{"reply event", pong, ipc.CommandPing, ipc.Message{Event: ipc.EventPong}, true},
		{"state change only", silent, ipc.CommandEnd, ipc.Message{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newIPCServer("", tt.handle, nil, zap.NewNop())
			got, ok := s.reply(context.Background(), ipc.Message{Cmd: tt.cmd})
			if ok != tt.replies || got != tt.want {
				t.Fatalf("reply = %#v, %v; want %#v, %v", got, ok, tt.want, tt.replies)
			}
		})
	}
}

func TestIPCServerBroadcastAndDetach(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	s := newIPCServer("", nil, nil, zap.NewNop())
	c := s.attach(serverConn)
	if n := s.clientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}

	s.Broadcast(ipc.Message{Event: ipc.EventConnection, Active: true})
	var msg ipc.Message
	if err := json.NewDecoder(clientConn).Decode(&msg); err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if msg.Event != ipc.EventConnection || !msg.Active {
		t.Fatalf("broadcast = %#v", msg)
	}

	s.detach(c)
	s.detach(c)
	if n := s.clientCount(); n != 0 {
		t.Fatalf("clients after detach = %d, want 0", n)
	}
}

func TestIPCServerDropsStalledClient(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	s := newIPCServer("", nil, nil, zap.NewNop())
	s.attach(serverConn)

	// nothing reads clientConn: one event blocks in the writer, the queue
	// fills, and the next broadcast finds it full
	for i := 0; i < ipcClientQueue+2; i++ {
		s.Broadcast(ipc.Message{Event: ipc.EventSpeaking, Active: i%2 == 0})
	}
	if n := s.clientCount(); n != 0 {
		t.Fatalf("clients = %d, want stalled client dropped", n)
	}
}

func TestIPCServerRunGreetsAndServesClients(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix socket test")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := filepath.Join(t.TempDir(), "callerd.sock")
	handle := func(_ context.Context, msg ipc.Message) (ipc.Message, error) {
		if msg.Cmd == ipc.CommandPing {
			return ipc.Message{Event: ipc.EventPong}, nil
		}
		return ipc.Message{}, nil
	}
	greet := func() []ipc.Message {
		return []ipc.Message{{Event: ipc.EventState, State: "idle"}}
	}
	s := newIPCServer(addr, handle, greet, zap.NewNop())

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	var conn net.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		c, err := ipc.Dial(addr, ipc.DefaultDialTimeout)
		if err == nil {
			conn = c
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial ipc server: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer conn.Close()

	dec := ipc.NewDecoder(conn)
	var ready, state ipc.Message
	if err := dec.Decode(&ready); err != nil || ready.Event != ipc.EventReady {
		t.Fatalf("ready = %#v, %v", ready, err)
	}
	if err := dec.Decode(&state); err != nil || state.Event != ipc.EventState || state.State != "idle" {
		t.Fatalf("greeting state = %#v, %v", state, err)
	}

	enc := ipc.NewEncoder(conn)
	if err := enc.Encode(ipc.Message{Cmd: "dance"}); err != nil {
		t.Fatalf("encode unknown command: %v", err)
	}
	var rejected ipc.Message
	if err := dec.Decode(&rejected); err != nil || rejected.Event != ipc.EventError || rejected.Cmd != "dance" {
		t.Fatalf("unknown command reply = %#v, %v", rejected, err)
	}
	if err := enc.Encode(ipc.Message{Cmd: ipc.CommandPing}); err != nil {
		t.Fatalf("encode ping: %v", err)
	}
	var pong ipc.Message
	if err := dec.Decode(&pong); err != nil || pong.Event != ipc.EventPong {
		t.Fatalf("pong = %#v, %v", pong, err)
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
	deadline = time.Now().Add(2 * time.Second)
	for s.clientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("clients after stop = %d, want 0", s.clientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
