package main

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/Avicted/callrelay/internal/ipc"
)

// daemonConn is the client's single connection to callerd. It dials lazily
// and drops the connection on the first encode or decode failure.
type daemonConn struct {
	addr string
	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

func newDaemonConn(addr string) *daemonConn {
	return &daemonConn{addr: addr}
}

func (d *daemonConn) send(msg ipc.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureConnLocked(); err != nil {
		return err
	}
	if err := d.enc.Encode(msg); err != nil {
		d.resetLocked()
		return err
	}
	return nil
}

// readLoop forwards daemon events to ch until the connection fails; the
// failure is delivered as an error event before ch is closed.
func (d *daemonConn) readLoop(ch chan<- ipc.Message) {
	defer close(ch)
	if err := d.ensureConn(); err != nil {
		ch <- ipc.Message{Event: ipc.EventError, Error: err.Error()}
		return
	}
	d.mu.Lock()
	dec := d.dec
	d.mu.Unlock()
	if dec == nil {
		ch <- ipc.Message{Event: ipc.EventError, Error: "daemon decoder not available"}
		return
	}
	for {
		var msg ipc.Message
		if err := dec.Decode(&msg); err != nil {
			d.reset()
			ch <- ipc.Message{Event: ipc.EventError, Error: err.Error()}
			return
		}
		ch <- msg
	}
}

func (d *daemonConn) close() {
	d.reset()
}

func (d *daemonConn) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

func (d *daemonConn) ensureConn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ensureConnLocked()
}

func (d *daemonConn) ensureConnLocked() error {
	if d.addr == "" {
		return fmt.Errorf("daemon ipc address is empty")
	}
	if d.conn == nil {
		conn, err := ipc.Dial(d.addr, ipc.DefaultDialTimeout)
		if err != nil {
			return fmt.Errorf("connect to callerd: %w", err)
		}
		d.conn = conn
		d.enc = ipc.NewEncoder(conn)
		d.dec = ipc.NewDecoder(conn)
	}
	if d.enc == nil || d.dec == nil {
		return fmt.Errorf("daemon encoder not available")
	}
	return nil
}

func (d *daemonConn) resetLocked() {
	if d.conn != nil {
		_ = d.conn.Close()
	}
	d.conn = nil
	d.enc = nil
	d.dec = nil
}
