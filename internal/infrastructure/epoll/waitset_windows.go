//go:build windows

package epoll

import (
	"time"

	"golang.org/x/sys/windows"

	"github.com/nvr-core/resolve/internal/domain"
)

// member pairs a registered Waitable with the manual-reset event
// object WSAEventSelect associates with its socket.
type member struct {
	waitable domain.Waitable
	event    windows.Handle
	mask     domain.EventMask
}

// WaitSet is the Windows realization of domain.WaitSet: an array of
// per-handle event objects woken via WSAEventSelect +
// WaitForMultipleObjects, grounded on the cross-platform build-tag
// split demonstrated in
// joshuafuller-beacon/internal/transport/socket_windows_test.go.
type WaitSet struct {
	cap     int
	members map[int]*member // keyed by fd
	order   []int           // fd order, parallel to the handles passed to WaitForMultipleObjects
}

var _ domain.WaitSet = (*WaitSet)(nil)

// New creates a WaitSet bounded to size members (spec §4.1).
func New(size int) (*WaitSet, error) {
	return &WaitSet{
		cap:     size,
		members: make(map[int]*member, size),
	}, nil
}

func toNetworkEvents(mask domain.EventMask) int32 {
	var e int32
	if mask.Has(domain.Read) {
		e |= windows.FD_READ | windows.FD_ACCEPT | windows.FD_CLOSE
	}
	if mask.Has(domain.Write) {
		e |= windows.FD_WRITE | windows.FD_CONNECT
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
	var ev windows.Handle
	if _, raw := waitable.(rawHandleWaitable); raw {
		// The message queue hands us a manual-reset event handle
		// directly (its Fd() *is* the event, not a socket); wait on it
		// as-is rather than binding it through WSAEventSelect.
		ev = windows.Handle(fd)
	} else {
		created, err := windows.WSACreateEvent()
		if err != nil {
			return err
		}
		if err := windows.WSAEventSelect(windows.Handle(fd), created, toNetworkEvents(mask)); err != nil {
			windows.WSACloseEvent(created)
			return err
		}
		ev = created
	}
	w.members[fd] = &member{waitable: waitable, event: ev, mask: mask}
	w.order = append(w.order, fd)
	return nil
}

func (w *WaitSet) Change(waitable domain.Waitable, mask domain.EventMask) error {
	fd := waitable.Fd()
	m, ok := w.members[fd]
	if !ok {
		return domain.ErrNotInSet
	}
	if err := windows.WSAEventSelect(windows.Handle(fd), m.event, toNetworkEvents(mask)); err != nil {
		return err
	}
	m.mask = mask
	return nil
}

// rawHandleWaitable is implemented by Waitables that are not sockets
// and should be waited on via their own event handle directly (the
// message queue), instead of a fresh event bound through
// WSAEventSelect.
type rawHandleWaitable interface {
	IsRawHandle() bool
}

func (w *WaitSet) Remove(waitable domain.Waitable) error {
	fd := waitable.Fd()
	m, ok := w.members[fd]
	if !ok {
		return domain.ErrNotInSet
	}
	if _, raw := waitable.(rawHandleWaitable); !raw {
		windows.WSACloseEvent(m.event)
	}
	delete(w.members, fd)
	for i, f := range w.order {
		if f == fd {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return nil
}

func (w *WaitSet) Wait(timeout time.Duration) (int, error) {
	if len(w.order) == 0 {
		time.Sleep(timeout)
		return 0, nil
	}

	handles := make([]windows.Handle, len(w.order))
	for i, fd := range w.order {
		handles[i] = w.members[fd].event
	}

	ms := uint32(timeout.Milliseconds())
	idx, err := windows.WaitForMultipleObjects(handles, false, ms)
	if err == windows.WAIT_TIMEOUT {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	ready := 0
	for i := int(idx); i < len(w.order); i++ {
		fd := w.order[i]
		m := w.members[fd]

		if _, raw := m.waitable.(rawHandleWaitable); raw {
			// A raw handle (the message queue) signals by itself being
			// set; there is no WSANetworkEvents to enumerate.
			m.waitable.SetReadiness(domain.Read)
			ready++
			continue
		}

		var netEvents windows.WSANetworkEvents
		if err := windows.WSAEnumNetworkEvents(windows.Handle(fd), m.event, &netEvents); err != nil {
			continue
		}
		if netEvents.Events == 0 {
			continue
		}

		mask := checkSignalled(netEvents, m.mask)
		if mask == 0 {
			continue
		}
		m.waitable.SetReadiness(mask)
		ready++
	}
	return ready, nil
}

// checkSignalled translates WSAEnumNetworkEvents results into the
// domain readiness vocabulary, limited to the bits the caller had
// actually requested via mask (WSAEventSelect may still report a
// sibling event on a shared handle).
func checkSignalled(events windows.WSANetworkEvents, requested domain.EventMask) domain.EventMask {
	var mask domain.EventMask
	if events.Events&(windows.FD_READ|windows.FD_ACCEPT|windows.FD_CLOSE) != 0 {
		if events.ErrorCode[windows.FD_CLOSE_BIT] != 0 {
			mask |= domain.Error
		} else if requested.Has(domain.Read) {
			mask |= domain.Read
		}
	}
	if events.Events&(windows.FD_WRITE|windows.FD_CONNECT) != 0 {
		if events.ErrorCode[windows.FD_CONNECT_BIT] != 0 {
			mask |= domain.Error
		} else if requested.Has(domain.Write) {
			mask |= domain.Write
		}
	}
	return mask
}

func (w *WaitSet) Close() error {
	for _, m := range w.members {
		windows.WSACloseEvent(m.event)
	}
	w.members = nil
	w.order = nil
	return nil
}
