package domain

import (
	"fmt"
	"net"
	"strconv"
)

// Addr is an IPv4 endpoint, used at the UDP and socket-factory
// boundary instead of net.UDPAddr so the infrastructure layer is not
// forced to allocate/parse through the stdlib net package on the hot
// path.
type Addr struct {
	IP   [4]byte
	Port uint16
}

func (a Addr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", a.IP[0], a.IP[1], a.IP[2], a.IP[3], a.Port)
}

// ParseAddr parses a "host:port" string into an IPv4 Addr. It is the
// one place outside the infrastructure layer allowed to go through
// net/net.ResolveIPAddr: config loading and CLI flag parsing are
// startup-path, not hot-path, so the allocation is not a concern.
func ParseAddr(s string) (Addr, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Addr{}, fmt.Errorf("domain: invalid address %q: %w", s, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Addr{}, fmt.Errorf("domain: invalid port in %q: %w", s, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		resolved, err := net.ResolveIPAddr("ip4", host)
		if err != nil {
			return Addr{}, fmt.Errorf("domain: invalid host in %q: %w", s, err)
		}
		ip = resolved.IP
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return Addr{}, fmt.Errorf("domain: %q is not an IPv4 address", host)
	}
	var out Addr
	copy(out.IP[:], ip4)
	out.Port = uint16(port)
	return out, nil
}

// UDPConn is the non-blocking UDP datagram socket of spec §4.6. A
// single UDPConn is owned exclusively by the DNS worker for its full
// lifetime (spec §5 "Shared resources").
type UDPConn interface {
	Waitable

	// Send transmits buf as one datagram to dst. A UDP send is atomic
	// at the syscall level: sendto either transmits the whole datagram
	// or fails outright, so a call reports len(buf) when the datagram
	// was sent, 0 with a nil error when the socket would block, and
	// never a partial byte count (spec §4.6).
	Send(buf []byte, dst Addr) (int, error)

	// Recv reads one datagram into buf, reporting the sender in src.
	// Truncation (buf too small for the datagram) is silent, matching
	// standard UDP recv semantics.
	Recv(buf []byte, src *Addr) (int, error)

	// Close releases the underlying fd.
	Close() error
}

// TCPConn is the non-blocking TCP client socket of spec §4.6.
type TCPConn interface {
	Waitable

	// Send writes buf[offset:] and returns the number of bytes
	// actually written, which may be 0 (EAGAIN). EINTR is retried
	// internally.
	Send(buf []byte, offset int) (int, error)

	// Recv reads into buf[offset:], returning the number of bytes
	// read; 0 means no data available or EOF. EINTR is retried
	// internally.
	Recv(buf []byte, offset int) (int, error)

	// Close releases the underlying fd.
	Close() error
}

// TCPListener is the non-blocking TCP server socket of spec §4.6.
type TCPListener interface {
	Waitable

	// Accept returns a new non-blocking TCPConn, or (nil, nil) if
	// there is no pending connection.
	Accept() (TCPConn, error)

	// Close releases the underlying fd.
	Close() error
}
