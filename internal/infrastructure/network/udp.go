package network

import (
	"golang.org/x/sys/unix"

	"github.com/nvr-core/resolve/internal/domain"
)

// UDP is the non-blocking UDP datagram socket of spec §4.6. It owns
// its fd for its full lifetime and implements domain.Waitable so it
// can be registered directly into a WaitSet.
type UDP struct {
	domain.BaseWaitable
	fd   int
	open bool
}

var _ domain.UDPConn = (*UDP)(nil)

// OpenUDP binds a non-blocking UDP socket on port (0 = ephemeral),
// with SO_BROADCAST enabled per spec §4.6.
func OpenUDP(port int) (*UDP, error) {
	fd, err := bindUDPFd(port)
	if err != nil {
		return nil, err
	}
	return &UDP{fd: fd, open: true}, nil
}

func (u *UDP) Fd() int { return u.fd }

// Send transmits buf as one datagram to dst. sendto(2) on a datagram
// socket either transmits the whole buffer or fails outright — there
// is no byte count to check for a short write, unlike TCP's send
// (spec §4.6 — "a partial datagram send is never reported").
func (u *UDP) Send(buf []byte, dst domain.Addr) (int, error) {
	if !u.open {
		return 0, domain.ErrNotOpen
	}
	u.SetReadiness(u.Readiness() &^ domain.Write)

	sa := &unix.SockaddrInet4{Port: int(dst.Port), Addr: dst.IP}
	for {
		err := unix.Sendto(u.fd, buf, 0, sa)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		return len(buf), nil
	}
}

// Recv reads one datagram into buf, reporting the sender in src.
// Truncation is silent per spec §4.6.
func (u *UDP) Recv(buf []byte, src *domain.Addr) (int, error) {
	if !u.open {
		return 0, domain.ErrNotOpen
	}
	u.SetReadiness(u.Readiness() &^ domain.Read)

	for {
		n, from, err := unix.Recvfrom(u.fd, buf, 0)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		if sa4, ok := from.(*unix.SockaddrInet4); ok && src != nil {
			src.IP = sa4.Addr
			src.Port = uint16(sa4.Port)
		}
		return n, nil
	}
}

func (u *UDP) Close() error {
	if !u.open {
		return nil
	}
	u.open = false
	return unix.Close(u.fd)
}
