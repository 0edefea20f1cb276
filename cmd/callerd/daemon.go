package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Avicted/callrelay/internal/call"
	"github.com/Avicted/callrelay/internal/config"
	"github.com/Avicted/callrelay/internal/coordinator"
	"github.com/Avicted/callrelay/internal/ipc"
	"github.com/Avicted/callrelay/internal/metrics"
	"github.com/Avicted/callrelay/internal/securelog"
	"github.com/Avicted/callrelay/internal/signaling"
)

// signalTransport is the transport surface the daemon drives.
type signalTransport interface {
	call.Signaler
	Connect(userID, userName string)
	Disconnect()
	Connected() bool
	Watch() (<-chan bool, func())
}

type daemon struct {
	cfg       config.Config
	logger    *zap.Logger
	transport signalTransport
	machine   *call.Machine
	metrics   *metrics.Metrics
	ipc       *ipcServer
}

func newDaemon(cfg config.Config, logger *zap.Logger) *daemon {
	transport := signaling.New(signaling.Config{
		URL:               cfg.ServerURL,
		Token:             cfg.Token,
		ReconnectDelay:    cfg.ReconnectDelay,
		ReconnectAttempts: cfg.ReconnectAttempts,
	}, logger)
	return newDaemonWith(cfg, logger, transport, newMediaDevices(cfg, logger))
}

func newDaemonWith(cfg config.Config, logger *zap.Logger, transport signalTransport, devices call.Devices) *daemon {
	m := metrics.New()
	machine := call.New(transport, devices, call.Config{
		UserID:   cfg.UserID,
		UserName: cfg.UserName,
		Logger:   logger,
		Recorder: m,
	})
	d := &daemon{
		cfg:       cfg,
		logger:    logger,
		transport: transport,
		machine:   machine,
		metrics:   m,
	}
	d.ipc = newIPCServer(cfg.IPCAddr, d.handleIPCCommand, d.greeting, logger.Named("ipc"))
	return d
}

func (d *daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go d.metrics.Stats().LogLoop(ctx, d.logger)
	if sampler, err := newCPUSampler(ctx, d.logger); err != nil {
		d.logger.Warn("cpu stats unavailable", zap.Error(err))
	} else {
		go sampler.run(ctx, d.reportCPU)
	}
	if d.cfg.MetricsAddr != "" {
		go d.serveMetrics(ctx)
	}

	machineDone := make(chan error, 1)
	go func() {
		machineDone <- d.machine.Run(ctx)
	}()
	go d.forwardStates(ctx)
	go d.forwardConnection(ctx)
	d.transport.Connect(d.cfg.UserID, d.cfg.UserName)

	ipcErr := make(chan error, 1)
	go func() {
		ipcErr <- d.ipc.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-ipcErr:
		if err != nil {
			runErr = fmt.Errorf("ipc server failed: %w", err)
		}
	case err := <-machineDone:
		machineDone <- err
	}

	// the machine emits its final end-call and leave on the way out, so the
	// transport stays up until it has stopped
	cancel()
	<-machineDone
	d.transport.Disconnect()
	_ = d.ipc.Close()
	return runErr
}

func (d *daemon) serveMetrics(ctx context.Context) {
	srv := &http.Server{
		Addr:              d.cfg.MetricsAddr,
		Handler:           d.metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	d.logger.Info("serving metrics", zap.String("addr", d.cfg.MetricsAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		securelog.Error(d.logger, "metrics server", err)
	}
}

func (d *daemon) reportCPU(percent float64) {
	d.metrics.SetCPUPercent(percent)
	d.logger.Debug("daemon cpu", zap.Float64("percent", percent))
}

// forwardStates pushes every call state change to the front ends.
func (d *daemon) forwardStates(ctx context.Context) {
	states, cancel := d.machine.Subscribe()
	defer cancel()
	var prev call.State
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			d.publishState(prev, st)
			prev = st
		}
	}
}

func (d *daemon) publishState(prev, st call.State) {
	if st.Kind != prev.Kind || st.CallID != prev.CallID || st.Video != prev.Video {
		d.ipc.Broadcast(d.stateMessage(st))
	}
	if st.Kind == call.IncomingCall && (prev.Kind != call.IncomingCall || prev.CallID != st.CallID) {
		d.ipc.Broadcast(incomingMessage(st.Session))
	}
	if st.Speaking != prev.Speaking {
		d.ipc.Broadcast(ipc.Message{Event: ipc.EventSpeaking, Active: st.Speaking})
	}
}

func (d *daemon) forwardConnection(ctx context.Context) {
	ch, cancel := d.transport.Watch()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case connected := <-ch:
			d.metrics.SetConnected(connected)
			d.ipc.Broadcast(ipc.Message{Event: ipc.EventConnection, Active: connected})
		}
	}
}

func (d *daemon) stateMessage(st call.State) ipc.Message {
	msg := ipc.Message{
		Event:  ipc.EventState,
		State:  st.Kind.String(),
		Call:   st.CallID,
		Video:  st.Video,
		Reason: st.Reason,
		Active: st.Speaking,
	}
	if st.Session != nil {
		msg.Room = st.Session.RoomID
		_, msg.Peer = coordinator.Peer(st.Session, d.cfg.UserID)
	}
	return msg
}

func incomingMessage(sess *call.Session) ipc.Message {
	if sess == nil {
		return ipc.Message{Event: ipc.EventIncoming}
	}
	name := sess.FromUserName
	if name == "" {
		name = sess.FromUserID
	}
	return ipc.Message{
		Event: ipc.EventIncoming,
		Call:  sess.CallID,
		User:  sess.FromUserID,
		Name:  name,
		Video: sess.IsVideoCall,
		Chat:  sess.ChatID,
	}
}

// greeting brings a newly connected front end up to date.
func (d *daemon) greeting() []ipc.Message {
	msgs := []ipc.Message{
		{Event: ipc.EventConnection, Active: d.transport.Connected()},
		d.stateMessage(d.machine.State()),
	}
	if inv := d.machine.Invitation(); inv != nil {
		msgs = append(msgs, incomingMessage(inv))
	}
	return msgs
}

func (d *daemon) handleIPCCommand(ctx context.Context, msg ipc.Message) (ipc.Message, error) {
	var err error
	switch msg.Cmd {
	case ipc.CommandCall:
		user := strings.TrimSpace(msg.User)
		if user == "" {
			return ipc.Message{}, fmt.Errorf("user is required")
		}
		err = d.machine.MakeCall(ctx, call.CallRequest{ToUserID: user, Video: msg.Video, ChatID: msg.Chat})
	case ipc.CommandAccept:
		err = d.machine.AcceptCall(ctx)
	case ipc.CommandReject:
		err = d.machine.RejectCall(ctx)
	case ipc.CommandCancel:
		err = d.machine.CancelCall(ctx)
	case ipc.CommandEnd:
		err = d.machine.EndCall(ctx)
	case ipc.CommandSwitchCamera:
		facing, err := d.machine.SwitchCamera(ctx)
		if err != nil {
			return ipc.Message{}, err
		}
		return ipc.Message{Event: ipc.EventCamera, Facing: facing.String()}, nil
	case ipc.CommandState:
		return d.stateMessage(d.machine.State()), nil
	case ipc.CommandPing:
		return ipc.Message{Event: ipc.EventPong}, nil
	default:
		return ipc.Message{}, fmt.Errorf("unknown command")
	}
	if err != nil {
		return ipc.Message{}, err
	}
	// state changes reach every front end through forwardStates
	return ipc.Message{}, nil
}
