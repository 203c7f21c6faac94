//go:build windows

package queue

import (
	"golang.org/x/sys/windows"

	"github.com/nvr-core/resolve/internal/domain"
)

// WindowsQueue wakes its consumer via a manual-reset Win32 event
// object, woken on every Post and reset on every Drain, mirroring the
// per-handle event-object WaitSet realization in
// internal/infrastructure/epoll/waitset_windows.go.
type WindowsQueue struct {
	Queue
	event windows.Handle
}

var _ domain.MessageQueue = (*WindowsQueue)(nil)

// New creates a MessageQueue backed by a manual-reset event object.
func New() (*WindowsQueue, error) {
	ev, err := windows.CreateEvent(nil, 1 /* manual reset */, 0, nil)
	if err != nil {
		return nil, err
	}
	return &WindowsQueue{event: ev}, nil
}

// Fd exposes the event handle as an int so it fits the domain.Waitable
// contract uniformly with the fd-based Unix realizations; the Windows
// WaitSet treats it as an opaque handle, never as a socket fd.
func (q *WindowsQueue) Fd() int { return int(q.event) }

// IsRawHandle marks this Waitable to the Windows WaitSet as a direct
// event handle rather than a socket needing WSAEventSelect.
func (q *WindowsQueue) IsRawHandle() bool { return true }

func (q *WindowsQueue) Post(fn func()) {
	q.post(fn, q.wake)
}

func (q *WindowsQueue) wake() {
	_ = windows.SetEvent(q.event)
}

func (q *WindowsQueue) Drain() []func() {
	_ = windows.ResetEvent(q.event)
	q.SetReadiness(q.Readiness() &^ domain.Read)
	return q.Queue.Drain()
}

func (q *WindowsQueue) Close() error {
	return windows.CloseHandle(q.event)
}
