package network

import (
	"golang.org/x/sys/unix"

	"github.com/nvr-core/resolve/internal/domain"
)

// TCPListener is the non-blocking TCP server socket of spec §4.6.
type TCPListener struct {
	domain.BaseWaitable
	fd      int
	nodelay bool
	open    bool
}

var _ domain.TCPListener = (*TCPListener)(nil)

// ListenTCP opens, binds (with SO_REUSEADDR) and listens on port with
// the given backlog, generalizing the teacher's ListenTCP with the
// nodelay flag spec §4.6 requires for accepted connections.
func ListenTCP(port int, nodelay bool, backlog int) (*TCPListener, error) {
	fd, err := listenTCPFd(port, nodelay, backlog)
	if err != nil {
		return nil, domain.ErrOpenFailed
	}
	return &TCPListener{fd: fd, nodelay: nodelay, open: true}, nil
}

func (l *TCPListener) Fd() int { return l.fd }

// Accept returns a new non-blocking TCPConn, or (nil, nil) if there is
// no pending connection (spec §4.6: "invalid socket means no
// pending").
func (l *TCPListener) Accept() (domain.TCPConn, error) {
	if !l.open {
		return nil, domain.ErrNotOpen
	}
	l.SetReadiness(l.Readiness() &^ domain.Read)

	for {
		fd, _, err := unix.Accept(l.fd)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fd)
			return nil, err
		}
		if l.nodelay {
			_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		}
		return newOpenTCP(fd), nil
	}
}

func (l *TCPListener) Close() error {
	if !l.open {
		return nil
	}
	l.open = false
	return unix.Close(l.fd)
}
