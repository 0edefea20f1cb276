package call

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/Avicted/callrelay/internal/media"
	"github.com/Avicted/callrelay/internal/signaling"
)

const (
	inboundQueueSize  = 256
	pipelineQueueSize = 64
	remoteVideoSize   = 8
	subscriberSize    = 16
)

type inboundEvent struct {
	name string
	data json.RawMessage
}

type intentKind int

const (
	intentMakeCall intentKind = iota
	intentAccept
	intentReject
	intentCancel
	intentEnd
	intentSwitchCamera
)

type intent struct {
	kind  intentKind
	req   CallRequest
	reply chan intentResult
}

type intentResult struct {
	facing media.Facing
	err    error
}

// Machine is the call state machine. All state lives on the goroutine
// running Run; the exported methods only exchange messages with it.
type Machine struct {
	sig     Signaler
	devices Devices
	cfg     Config
	logger  *zap.Logger

	inbound  chan inboundEvent
	intents  chan intent
	timerCh  chan timerFired
	resultCh chan pipelineResult
	done     chan struct{}
	runOnce  sync.Once

	// loop-owned
	runCtx    context.Context
	state     State
	session   *Session
	timer     timerSlot
	events    chan media.Event
	pipes     *pipelineSet
	gen       uint64
	building  int
	deferred  bool
	videoLost bool
	joined    string
	rejoin    bool
	facing    media.Facing

	mu          sync.RWMutex
	snapshot    State
	invitation  *Session
	subs        map[int]chan State
	nextSub     int
	stopped     bool
	remoteVideo chan media.Frame
}

func New(sig Signaler, devices Devices, cfg Config) *Machine {
	cfg = cfg.withDefaults()
	m := &Machine{
		sig:         sig,
		devices:     devices,
		cfg:         cfg,
		logger:      cfg.Logger.Named("call"),
		inbound:     make(chan inboundEvent, inboundQueueSize),
		intents:     make(chan intent),
		timerCh:     make(chan timerFired, 1),
		resultCh:    make(chan pipelineResult, 1),
		done:        make(chan struct{}),
		subs:        make(map[int]chan State),
		remoteVideo: make(chan media.Frame, remoteVideoSize),
	}
	m.registerHandlers()
	return m
}

func (m *Machine) registerHandlers() {
	for _, name := range []string{
		signaling.EventConnect,
		signaling.EventDisconnect,
		signaling.EventReconnect,
		signaling.EventError,
		signaling.EventRegisterSuccess,
		signaling.EventRegisterError,
		signaling.EventIncomingCall,
		signaling.EventCallStarted,
		signaling.EventCallResponse,
		signaling.EventCallEnded,
		signaling.EventCallCancelled,
		signaling.EventCallTimeout,
		signaling.EventCallRequestFailed,
		signaling.EventJoinCallRoom,
	} {
		name := name
		m.sig.On(name, func(data json.RawMessage) { m.enqueue(name, data) })
	}
	m.sig.On(signaling.EventMediaFrame, func(data json.RawMessage) {
		select {
		case m.inbound <- inboundEvent{name: signaling.EventMediaFrame, data: data}:
		default:
			m.cfg.Recorder.FrameRelayed(DirectionIn, signaling.PeekFrameKind(data), ResultDropped)
		}
	})
}

// enqueue hands a control event to the loop. Control events are never
// dropped; the transport's reader waits for room.
func (m *Machine) enqueue(name string, data json.RawMessage) {
	select {
	case m.inbound <- inboundEvent{name: name, data: data}:
	case <-m.done:
	}
}

// Run processes events until ctx is done. On return any call in progress
// has been ended and a leave has been emitted.
func (m *Machine) Run(ctx context.Context) error {
	started := false
	m.runOnce.Do(func() { started = true })
	if !started {
		return ErrStopped
	}
	m.runCtx = ctx
	defer close(m.done)
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-m.inbound:
			m.handleEvent(ev)
		case in := <-m.intents:
			in.reply <- m.handleIntent(in)
		case f := <-m.timerCh:
			m.handleTimer(f)
		case r := <-m.resultCh:
			m.handlePipelinesStarted(r)
		case ev := <-m.events:
			m.handlePipelineEvent(ev)
		}
	}
}

func (m *Machine) shutdown() {
	m.timer.disarm()
	if m.session != nil {
		sess := m.session
		switch m.state.Kind {
		case OutgoingCall:
			m.sig.Emit(signaling.EventCancelCall, signaling.CancelCall{CallID: sess.CallID})
		case IncomingCall:
			m.sig.Emit(signaling.EventCallResponse, signaling.CallResponse{CallID: sess.CallID, Accepted: false})
		case Connecting, InCall:
			m.sig.Emit(signaling.EventEndCall, signaling.CallEnd{RoomID: sess.RoomID, CallID: sess.CallID, Reason: "Client shutting down"})
		}
	}
	m.teardown()
	m.drainBuilds()
	m.sig.Emit(signaling.EventLeave, signaling.Leave{UserID: m.cfg.UserID})
	m.setState(State{Kind: Idle})

	m.mu.Lock()
	m.stopped = true
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
	m.mu.Unlock()
}

func (m *Machine) do(ctx context.Context, in intent) intentResult {
	in.reply = make(chan intentResult, 1)
	select {
	case m.intents <- in:
	case <-ctx.Done():
		return intentResult{err: ctx.Err()}
	case <-m.done:
		return intentResult{err: ErrStopped}
	}
	select {
	case r := <-in.reply:
		return r
	case <-m.done:
		return intentResult{err: ErrStopped}
	}
}

// MakeCall starts an outgoing call. It fails with ErrNotConnected before
// registration and with ErrCallInProgress while another call is pending or
// active.
func (m *Machine) MakeCall(ctx context.Context, req CallRequest) error {
	return m.do(ctx, intent{kind: intentMakeCall, req: req}).err
}

func (m *Machine) AcceptCall(ctx context.Context) error {
	return m.do(ctx, intent{kind: intentAccept}).err
}

func (m *Machine) RejectCall(ctx context.Context) error {
	return m.do(ctx, intent{kind: intentReject}).err
}

func (m *Machine) CancelCall(ctx context.Context) error {
	return m.do(ctx, intent{kind: intentCancel}).err
}

// EndCall hangs up the active call. Ending an already ended call is a
// no-op.
func (m *Machine) EndCall(ctx context.Context) error {
	return m.do(ctx, intent{kind: intentEnd}).err
}

// SwitchCamera flips the active video capture between front and back and
// returns the facing in use afterwards.
func (m *Machine) SwitchCamera(ctx context.Context) (media.Facing, error) {
	r := m.do(ctx, intent{kind: intentSwitchCamera})
	return r.facing, r.err
}

func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot.clone()
}

// Invitation returns the pending incoming call, or nil.
func (m *Machine) Invitation() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.invitation.clone()
}

// Subscribe returns a channel receiving every state change, starting with
// the current state. A subscriber that falls behind loses the oldest
// states, never the newest.
func (m *Machine) Subscribe() (<-chan State, func()) {
	ch := make(chan State, subscriberSize)
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.snapshot.clone()
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			if c, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(c)
			}
			m.mu.Unlock()
		})
	}
}

// RemoteVideo delivers the peer's video frames. Frames are dropped when
// the reader falls behind.
func (m *Machine) RemoteVideo() <-chan media.Frame {
	return m.remoteVideo
}

func (m *Machine) setState(s State) {
	if s.CallID == "" && s.Session != nil {
		s.CallID = s.Session.CallID
	}
	if s.Kind == InCall && m.pipes != nil {
		s.Video = m.pipes.video != nil
		s.Speaking = m.pipes.speaking
	}
	m.state = s
	snap := s.clone()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = snap
	if s.Kind == IncomingCall {
		m.invitation = snap.Session.clone()
	} else {
		m.invitation = nil
	}
	for _, ch := range m.subs {
		select {
		case ch <- snap.clone():
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap.clone()
		}
	}
}

// refresh republishes the current state after a change to its details.
func (m *Machine) refresh() {
	s := m.state
	if s.Session != nil && m.session != nil {
		s.Session = m.session
		s.CallID = m.session.CallID
	}
	m.setState(s)
}
