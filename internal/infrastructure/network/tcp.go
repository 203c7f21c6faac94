package network

import (
	"golang.org/x/sys/unix"

	"github.com/nvr-core/resolve/internal/domain"
)

// TCP is the non-blocking TCP client socket of spec §4.6.
type TCP struct {
	domain.BaseWaitable
	fd   int
	open bool
}

var _ domain.TCPConn = (*TCP)(nil)

// DialTCP starts a non-blocking connect to dst. EINPROGRESS/EINTR are
// not errors; the caller must wait for Write readiness and inspect
// SO_ERROR (via Connected) before using the socket.
func DialTCP(ip [4]byte, port int, nodelay bool) (*TCP, error) {
	fd, err := dialTCPFd(unix.SockaddrInet4{Port: port, Addr: ip}, nodelay)
	if err != nil {
		return nil, domain.ErrOpenFailed
	}
	return &TCP{fd: fd, open: true}, nil
}

// newOpenTCP wraps an already-connected fd, used by TCPListener.Accept.
func newOpenTCP(fd int) *TCP {
	return &TCP{fd: fd, open: true}
}

func (t *TCP) Fd() int { return t.fd }

// Connected reports whether an asynchronous connect completed
// successfully, clearing the socket's pending-connect state. Must be
// called once Write readiness fires for a socket returned by DialTCP.
func (t *TCP) Connected() (bool, error) {
	if !t.open {
		return false, domain.ErrNotOpen
	}
	errno, err := unix.GetsockoptInt(t.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return false, err
	}
	if errno != 0 {
		return false, unix.Errno(errno)
	}
	return true, nil
}

// Send writes buf[offset:], retrying EINTR internally and reporting 0
// on EAGAIN (spec §4.6).
func (t *TCP) Send(buf []byte, offset int) (int, error) {
	if !t.open {
		return 0, domain.ErrNotOpen
	}
	t.SetReadiness(t.Readiness() &^ domain.Write)

	for {
		n, err := unix.Write(t.fd, buf[offset:])
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

// Recv reads into buf[offset:], retrying EINTR internally and
// reporting 0 on EAGAIN or EOF (spec §4.6).
func (t *TCP) Recv(buf []byte, offset int) (int, error) {
	if !t.open {
		return 0, domain.ErrNotOpen
	}
	t.SetReadiness(t.Readiness() &^ domain.Read)

	for {
		n, err := unix.Read(t.fd, buf[offset:])
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

func (t *TCP) Close() error {
	if !t.open {
		return nil
	}
	t.open = false
	return unix.Close(t.fd)
}
