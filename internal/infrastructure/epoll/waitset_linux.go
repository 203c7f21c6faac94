//go:build linux

// Package epoll provides the platform WaitSet realizations of spec
// §4.1 (component C4): epoll on Linux, per-handle event objects on
// Windows. Both satisfy domain.WaitSet.
package epoll

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/nvr-core/resolve/internal/domain"
)

// WaitSet is the epoll-backed domain.WaitSet realization, grounded on
// the teacher's internal/infrastructure/epoll/eventloop.go, adapted
// from a push-callback Run(handler) loop to the spec's pull Wait()
// model: a caller asks how many Waitables became ready and inspects
// each one's Readiness() itself.
type WaitSet struct {
	epfd    int
	events  []unix.EpollEvent
	members map[int]domain.Waitable
	cap     int
}

var _ domain.WaitSet = (*WaitSet)(nil)

// New creates a WaitSet bounded to size members (spec §4.1: "set size
// is fixed at construction").
func New(size int) (*WaitSet, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &WaitSet{
		epfd:    fd,
		events:  make([]unix.EpollEvent, size),
		members: make(map[int]domain.Waitable, size),
		cap:     size,
	}, nil
}

func toEpollEvents(mask domain.EventMask) uint32 {
	var e uint32
	if mask.Has(domain.Read) {
		e |= unix.EPOLLIN
	}
	if mask.Has(domain.Write) {
		e |= unix.EPOLLOUT
	}
	return e
}

func (w *WaitSet) Add(waitable domain.Waitable, mask domain.EventMask) error {
	if len(w.members) >= w.cap {
		return domain.ErrSetFull
	}
	fd := waitable.Fd()
	if _, ok := w.members[fd]; ok {
		return domain.ErrSetFull
	}
	ev := &unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(w.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return err
	}
	w.members[fd] = waitable
	return nil
}

func (w *WaitSet) Change(waitable domain.Waitable, mask domain.EventMask) error {
	fd := waitable.Fd()
	if _, ok := w.members[fd]; !ok {
		return domain.ErrNotInSet
	}
	ev := &unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	return unix.EpollCtl(w.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (w *WaitSet) Remove(waitable domain.Waitable) error {
	fd := waitable.Fd()
	if _, ok := w.members[fd]; !ok {
		return domain.ErrNotInSet
	}
	delete(w.members, fd)
	return unix.EpollCtl(w.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (w *WaitSet) Wait(timeout time.Duration) (int, error) {
	ms := int(timeout.Milliseconds())
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	for {
		n, err := unix.EpollWait(w.epfd, w.events, ms)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, err
		}

		ready := 0
		for i := 0; i < n; i++ {
			fd := int(w.events[i].Fd)
			waitable, ok := w.members[fd]
			if !ok {
				continue
			}
			var mask domain.EventMask
			evMask := w.events[i].Events
			if evMask&unix.EPOLLIN != 0 {
				mask |= domain.Read
			}
			if evMask&unix.EPOLLOUT != 0 {
				mask |= domain.Write
			}
			if evMask&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				mask |= domain.Error
			}
			waitable.SetReadiness(mask)
			ready++
		}
		return ready, nil
	}
}

func (w *WaitSet) Close() error {
	return unix.Close(w.epfd)
}
