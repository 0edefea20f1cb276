// Package signaling is the event socket between the client and the
// signaling server. Events are JSON text frames of the form
// {"event": name, "data": payload}.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	DefaultReadLimit      = 4 << 20
	DefaultOutboxSize     = 256
	DefaultWriteTimeout   = 5 * time.Second
	DefaultFlushTimeout   = 2 * time.Second
	DefaultReconnectDelay = time.Second
	DefaultMaxAttempts    = 1_000_000
)

// Handler receives the raw data of one event. Handlers run on the
// transport's read goroutine in arrival order and must not block.
type Handler func(data json.RawMessage)

type Config struct {
	URL               string
	Token             string
	ReconnectDelay    time.Duration
	ReconnectAttempts uint64
	ReadLimit         int64
	OutboxSize        int
	WriteTimeout      time.Duration
	FlushTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.ReconnectAttempts == 0 {
		c.ReconnectAttempts = DefaultMaxAttempts
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = DefaultReadLimit
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = DefaultOutboxSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = DefaultFlushTimeout
	}
	return c
}

type Transport struct {
	cfg    Config
	url    string
	logger *zap.Logger

	mu         sync.Mutex
	handlers   map[string]Handler
	userID     string
	userName   string
	cancel     context.CancelFunc
	done       chan struct{}
	outbox     chan []byte
	connected  bool
	registered bool
	watchers   map[int]chan bool
	nextWatch  int
}

func New(cfg Config, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Transport{
		cfg:      cfg,
		url:      websocketURL(cfg.URL),
		logger:   logger.Named("signaling"),
		handlers: make(map[string]Handler),
		watchers: make(map[int]chan bool),
	}
}

func websocketURL(raw string) string {
	u := strings.TrimSpace(raw)
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u
}

// Connect starts the connection loop and registers as userID once
// connected. Calling it again while running only updates the identity and
// re-registers.
func (t *Transport) Connect(userID, userName string) {
	t.mu.Lock()
	t.userID = userID
	t.userName = userName
	if t.cancel != nil {
		connected := t.connected
		t.mu.Unlock()
		if connected {
			t.Emit(EventRegister, Register{UserID: userID, UserName: userName})
		}
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go t.run(ctx, done)
}

// Disconnect sends whatever is still queued, closes the socket, stops
// reconnecting and clears all handlers.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.done = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	t.mu.Lock()
	t.handlers = make(map[string]Handler)
	t.connected = false
	t.registered = false
	t.outbox = nil
	t.mu.Unlock()
}

// On registers the handler for event, replacing any previous one. A nil
// handler removes the registration.
func (t *Transport) On(event string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h == nil {
		delete(t.handlers, event)
		return
	}
	t.handlers[event] = h
}

// Emit queues an event for sending. It never blocks and never fails: while
// disconnected, or when the outbox is full, the event is dropped.
func (t *Transport) Emit(event string, payload any) {
	data, err := json.Marshal(outgoing{Event: event, Data: payload})
	if err != nil {
		t.logger.Warn("encode event failed", zap.String("event", event), zap.Error(err))
		return
	}

	t.mu.Lock()
	outbox, connected := t.outbox, t.connected
	t.mu.Unlock()
	if !connected || outbox == nil {
		t.logger.Debug("emit dropped: not connected", zap.String("event", event))
		return
	}
	select {
	case outbox <- data:
	default:
		t.logger.Debug("emit dropped: outbox full", zap.String("event", event))
	}
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Registered reports whether the server has acknowledged the register
// handshake on the current connection.
func (t *Transport) Registered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected && t.registered
}

// Watch returns a channel carrying the connection state. The current state
// is delivered immediately; a slow reader only ever sees the latest value.
func (t *Transport) Watch() (<-chan bool, func()) {
	ch := make(chan bool, 1)
	t.mu.Lock()
	id := t.nextWatch
	t.nextWatch++
	t.watchers[id] = ch
	ch <- t.connected
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.watchers, id)
			t.mu.Unlock()
		})
	}
}

func (t *Transport) setConnected(connected bool, outbox chan []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = connected
	t.registered = false
	t.outbox = outbox
	for _, ch := range t.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- connected
	}
}

func (t *Transport) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	reconnect := false
	for {
		conn, err := t.dial(ctx)
		if err != nil {
			if ctx.Err() == nil {
				t.logger.Error("giving up on signaling server", zap.Error(err))
				t.dispatch(EventError, marshalData(ErrorInfo{Message: err.Error()}))
			}
			return
		}

		err = t.serve(ctx, conn, reconnect)
		if ctx.Err() != nil {
			return
		}
		t.logger.Info("signaling connection lost", zap.Error(err))
		t.dispatch(EventDisconnect, marshalData(ErrorInfo{Message: errorMessage(err)}))
		reconnect = true

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.cfg.ReconnectDelay):
		}
	}
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	options := &websocket.DialOptions{}
	if t.cfg.Token != "" {
		options.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + t.cfg.Token}}
	}

	op := func() (*websocket.Conn, error) {
		conn, _, err := websocket.Dial(ctx, t.url, options)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		return conn, nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(t.cfg.ReconnectDelay), t.cfg.ReconnectAttempts),
		ctx,
	)
	notify := func(err error, next time.Duration) {
		t.logger.Debug("signaling dial failed", zap.Error(err), zap.Duration("retry_in", next))
		t.dispatch(EventError, marshalData(ErrorInfo{Message: err.Error()}))
	}
	return backoff.RetryNotifyWithData(op, policy, notify)
}

// serve runs one connection until it fails or ctx ends. When ctx ends the
// outbox is flushed before the close handshake.
func (t *Transport) serve(ctx context.Context, conn *websocket.Conn, reconnect bool) error {
	connCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn.SetReadLimit(t.cfg.ReadLimit)

	outbox := make(chan []byte, t.cfg.OutboxSize)
	t.setConnected(true, outbox)

	flush := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		t.writeLoop(connCtx, conn, outbox, flush)
	}()

	t.logger.Info("signaling connected", zap.String("url", t.url))
	t.dispatch(EventConnect, nil)
	if reconnect {
		t.dispatch(EventReconnect, nil)
	}

	t.mu.Lock()
	reg := Register{UserID: t.userID, UserName: t.userName}
	t.mu.Unlock()
	t.Emit(EventRegister, reg)

	readErr := make(chan error, 1)
	go func() { readErr <- t.readLoop(connCtx, conn) }()

	select {
	case err := <-readErr:
		t.setConnected(false, nil)
		cancel()
		<-writerDone
		_ = conn.CloseNow()
		return err
	case <-ctx.Done():
		t.setConnected(false, nil)
		close(flush)
		<-writerDone
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		cancel()
		return <-readErr
	}
}

func (t *Transport) writeLoop(ctx context.Context, conn *websocket.Conn, outbox <-chan []byte, flush <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-flush:
			t.flush(conn, outbox)
			return
		case data := <-outbox:
			writeCtx, cancel := context.WithTimeout(ctx, t.cfg.WriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					t.logger.Warn("signaling write failed", zap.Error(err))
					_ = conn.CloseNow()
				}
				return
			}
		}
	}
}

// flush writes the events already queued, giving up at FlushTimeout.
func (t *Transport) flush(conn *websocket.Conn, outbox <-chan []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.FlushTimeout)
	defer cancel()
	for {
		select {
		case data := <-outbox:
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				t.logger.Debug("flush on disconnect failed", zap.Int("pending", len(outbox)), zap.Error(err))
				return
			}
		default:
			return
		}
	}
}

func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var msg envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			t.logger.Debug("ignoring malformed event", zap.Error(err))
			continue
		}
		event := strings.TrimSpace(msg.Event)
		if event == "" {
			continue
		}
		t.track(event)
		t.dispatch(event, msg.Data)
	}
}

// track updates registration state before handlers see the event.
func (t *Transport) track(event string) {
	switch event {
	case EventRegisterSuccess:
		t.mu.Lock()
		t.registered = true
		t.mu.Unlock()
	case EventRegisterError:
		t.mu.Lock()
		t.registered = false
		t.mu.Unlock()
		t.logger.Warn("signaling registration rejected")
	}
}

func (t *Transport) dispatch(event string, data json.RawMessage) {
	t.mu.Lock()
	h := t.handlers[event]
	t.mu.Unlock()
	if h != nil {
		h(data)
	}
}

func marshalData(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func errorMessage(err error) string {
	if err == nil {
		return "closed"
	}
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Reason != "" {
			return ce.Reason
		}
		return ce.Code.String()
	}
	return err.Error()
}
