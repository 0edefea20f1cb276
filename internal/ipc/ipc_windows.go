//go:build windows

package ipc

import (
	"net"
	"os"
	"time"

	"github.com/Microsoft/go-winio"
)

// ownerOnly grants the pipe's creator full access and nobody else.
const ownerOnly = "D:P(A;;GA;;;OW)"

func Listen(addr string) (net.Listener, error) {
	if addr == "" {
		return nil, os.ErrInvalid
	}
	return winio.ListenPipe(addr, &winio.PipeConfig{SecurityDescriptor: ownerOnly})
}

func Dial(addr string, timeout time.Duration) (net.Conn, error) {
	if addr == "" {
		return nil, os.ErrInvalid
	}
	return winio.DialPipe(addr, &timeout)
}
