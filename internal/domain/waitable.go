// Package domain defines the ports shared by the networking core: the
// Waitable/WaitSet readiness contract, the non-blocking socket
// interfaces, the message queue, the monotonic clock, and the
// resolver's result vocabulary. Concrete realizations live under
// internal/infrastructure; internal/dnsresolver consumes only these
// interfaces.
package domain

// EventMask is a bitset of readiness conditions. Error is always
// observed by a WaitSet regardless of which bits a caller requests.
type EventMask uint32

const (
	// Read indicates the Waitable has data available or, for a TCP
	// listener, a pending connection.
	Read EventMask = 1 << iota
	// Write indicates the Waitable can accept more data without
	// blocking, or that a non-blocking connect has completed.
	Write
	// Error indicates the Waitable entered an error state. Never
	// requested by a caller; always reported when present.
	Error
)

func (m EventMask) Has(bit EventMask) bool { return m&bit != 0 }

// Waitable is anything with an OS file descriptor that can be
// registered in a WaitSet and exposes the readiness mask the WaitSet
// last observed for it.
type Waitable interface {
	// Fd returns the underlying OS handle. Must stay stable for the
	// lifetime of the Waitable's registration in a WaitSet.
	Fd() int

	// Readiness returns the mask most recently observed by the owning
	// WaitSet. Undefined before the Waitable has been added to one.
	Readiness() EventMask

	// SetReadiness is called by WaitSet realizations after a Wait()
	// wakes to record what was observed for this Waitable. Not meant
	// to be called by application code.
	SetReadiness(EventMask)
}

// BaseWaitable implements the readiness-storage half of Waitable.
// Concrete fd-owning types (sockets, the message queue) embed it so
// they only need to supply Fd().
type BaseWaitable struct {
	readiness EventMask
}

func (b *BaseWaitable) Readiness() EventMask { return b.readiness }

func (b *BaseWaitable) SetReadiness(m EventMask) { b.readiness = m }
