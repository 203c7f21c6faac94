// Package network implements the non-blocking TCP/UDP socket layer of
// spec §4.6 (component C5) directly over golang.org/x/sys/unix,
// generalized from the teacher's socket_factory.go (which only needed
// a bare listener and an unbound UDP socket for a SOCKS proxy) to the
// full operation table: TCP client with non-blocking connect, TCP
// listener with configurable backlog/nodelay, and UDP with optional
// bound port and broadcast enabled.
package network

import (
	"golang.org/x/sys/unix"
)

func listenSocket(nodelay bool) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if nodelay {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			unix.Close(fd)
			return -1, err
		}
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// listenTCPFd opens, binds and listens on a non-blocking TCP socket
// (spec §4.6 TCPListener.open).
func listenTCPFd(port int, nodelay bool, backlog int) (int, error) {
	fd, err := listenSocket(nodelay)
	if err != nil {
		return -1, err
	}
	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// dialTCPFd creates a non-blocking TCP socket and starts an
// asynchronous connect to dst. EINPROGRESS and EINTR are not errors
// (spec §4.6 TCP.open): the caller waits for Write readiness and then
// checks SO_ERROR.
func dialTCPFd(dst unix.SockaddrInet4, nodelay bool) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if nodelay {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			unix.Close(fd)
			return -1, err
		}
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}

	err = unix.Connect(fd, &dst)
	for err == unix.EINTR {
		err = unix.Connect(fd, &dst)
	}
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// bindUDPFd opens a non-blocking UDP socket with broadcast enabled,
// bound to port (0 for an OS-assigned ephemeral port).
func bindUDPFd(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}
