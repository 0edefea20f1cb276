//go:build !windows

package ipc

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"
)

// Listen serves on a unix socket readable only by the current user. A stale
// socket left at addr by an earlier daemon is replaced; any other file is
// left alone.
func Listen(addr string) (net.Listener, error) {
	if addr == "" {
		return nil, os.ErrInvalid
	}
	if err := removeStaleSocket(addr); err != nil {
		return nil, err
	}
	ln, err := net.Listen("unix", addr)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(addr, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("restrict ipc socket: %w", err)
	}
	return ln, nil
}

func removeStaleSocket(addr string) error {
	info, err := os.Lstat(addr)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("ipc address %s exists and is not a socket", addr)
	}
	return os.Remove(addr)
}

func Dial(addr string, timeout time.Duration) (net.Conn, error) {
	if addr == "" {
		return nil, os.ErrInvalid
	}
	return net.DialTimeout("unix", addr, timeout)
}
