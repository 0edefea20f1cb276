package main

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/Avicted/callrelay/internal/ipc"
	"github.com/Avicted/callrelay/internal/securelog"
)

// ipcClientQueue bounds the events waiting for one front end. A front end
// that falls this far behind is disconnected.
const ipcClientQueue = 64

type ipcHandler func(ctx context.Context, msg ipc.Message) (ipc.Message, error)

// ipcGreeting returns the events a front end needs on connect to draw the
// current call without waiting for the next transition.
type ipcGreeting func() []ipc.Message

type ipcServer struct {
	addr   string
	logger *zap.Logger
	handle ipcHandler
	greet  ipcGreeting

	mu      sync.Mutex
	ln      net.Listener
	clients map[*ipcClient]struct{}
}

type ipcClient struct {
	conn net.Conn
	out  chan ipc.Message
	done chan struct{}
	once sync.Once
}

func newIPCServer(addr string, handle ipcHandler, greet ipcGreeting, logger *zap.Logger) *ipcServer {
	return &ipcServer{
		addr:    addr,
		logger:  logger,
		handle:  handle,
		greet:   greet,
		clients: make(map[*ipcClient]struct{}),
	}
}

func (s *ipcServer) Run(ctx context.Context) error {
	ln, err := ipc.Listen(s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.serveClient(ctx, s.attach(conn))
	}
}

// Close stops accepting and disconnects every front end.
func (s *ipcServer) Close() error {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	clients := s.snapshotClients()
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range clients {
		s.detach(c)
	}
	return nil
}

// Broadcast queues msg for every connected front end.
func (s *ipcServer) Broadcast(msg ipc.Message) {
	s.mu.Lock()
	clients := s.snapshotClients()
	s.mu.Unlock()
	for _, c := range clients {
		s.send(c, msg)
	}
}

func (s *ipcServer) snapshotClients() []*ipcClient {
	clients := make([]*ipcClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	return clients
}

func (s *ipcServer) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *ipcServer) attach(conn net.Conn) *ipcClient {
	c := &ipcClient{
		conn: conn,
		out:  make(chan ipc.Message, ipcClientQueue),
		done: make(chan struct{}),
	}
	s.mu.Lock()
	if s.clients == nil {
		s.clients = make(map[*ipcClient]struct{})
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.writeLoop(c)
	return c
}

func (s *ipcServer) detach(c *ipcClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// send queues msg for c without blocking the caller.
func (s *ipcServer) send(c *ipcClient, msg ipc.Message) {
	select {
	case <-c.done:
	case c.out <- msg:
	default:
		s.logger.Warn("front end is not reading; disconnecting", zap.String("event", msg.Event))
		s.detach(c)
	}
}

func (s *ipcServer) writeLoop(c *ipcClient) {
	enc := ipc.NewEncoder(c.conn)
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.out:
			if err := enc.Encode(msg); err != nil {
				s.logger.Debug("ipc write failed", zap.String("event", msg.Event), zap.Error(err))
				s.detach(c)
				return
			}
		}
	}
}

func (s *ipcServer) serveClient(ctx context.Context, c *ipcClient) {
	defer s.detach(c)

	s.send(c, ipc.Message{Event: ipc.EventReady})
	if s.greet != nil {
		for _, msg := range s.greet() {
			s.send(c, msg)
		}
	}

	dec := ipc.NewDecoder(c.conn)
	for {
		var msg ipc.Message
		if err := dec.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				securelog.Error(s.logger, "ipc decode", err)
			}
			return
		}
		if msg.Cmd == "" {
			continue
		}
		if resp, ok := s.reply(ctx, msg); ok {
			s.send(c, resp)
		}
	}
}

// reply answers one command. Errors name the command they answer. Commands
// whose effect arrives as a state broadcast get no reply of their own.
func (s *ipcServer) reply(ctx context.Context, msg ipc.Message) (ipc.Message, bool) {
	if !ipc.KnownCommand(msg.Cmd) {
		return errorReply(msg.Cmd, "unknown command"), true
	}
	if s.handle == nil {
		return errorReply(msg.Cmd, "ipc handler unavailable"), true
	}
	resp, err := s.handle(ctx, msg)
	if err != nil {
		return errorReply(msg.Cmd, err.Error()), true
	}
	return resp, resp.Event != ""
}

func errorReply(cmd, message string) ipc.Message {
	return ipc.Message{Event: ipc.EventError, Cmd: cmd, Error: message}
}
