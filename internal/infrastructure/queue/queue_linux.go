//go:build linux

package queue

import (
	"golang.org/x/sys/unix"

	"github.com/nvr-core/resolve/internal/domain"
)

// LinuxQueue wakes its consumer via an eventfd(2), the same primitive
// golang net pollers use for self-pipe style wakeups; it registers
// directly into the epoll-backed WaitSet alongside the UDP socket
// (spec §2 control flow).
type LinuxQueue struct {
	Queue
	fd int
}

var _ domain.MessageQueue = (*LinuxQueue)(nil)

// New creates a MessageQueue backed by an eventfd.
func New() (*LinuxQueue, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &LinuxQueue{fd: fd}, nil
}

func (q *LinuxQueue) Fd() int { return q.fd }

func (q *LinuxQueue) Post(fn func()) {
	q.post(fn, q.wake)
}

func (q *LinuxQueue) wake() {
	buf := make([]byte, 8)
	buf[7] = 1
	_, _ = unix.Write(q.fd, buf)
}

// Drain removes and returns every pending message, and resets the
// eventfd counter to zero so the WaitSet stops reporting Read until
// the next Post.
func (q *LinuxQueue) Drain() []func() {
	buf := make([]byte, 8)
	_, _ = unix.Read(q.fd, buf)
	q.SetReadiness(q.Readiness() &^ domain.Read)
	return q.Queue.Drain()
}

func (q *LinuxQueue) Close() error {
	return unix.Close(q.fd)
}
