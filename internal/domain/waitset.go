package domain

import "time"

// WaitSet multiplexes a bounded set of Waitables. A Waitable may be a
// member of at most one WaitSet at a time; violating that is a
// programmer error, not a recoverable runtime condition.
type WaitSet interface {
	// Add registers w for the given mask. Fails ErrSetFull if the set
	// is at capacity.
	Add(w Waitable, mask EventMask) error

	// Change updates the mask for an already-registered w. Fails
	// ErrNotInSet if w is not a member.
	Change(w Waitable, mask EventMask) error

	// Remove unregisters w. Fails ErrNotInSet if w is not a member.
	Remove(w Waitable) error

	// Wait blocks up to timeout for at least one member to become
	// ready, populating each ready Waitable's Readiness(). Returns the
	// number of Waitables that became ready, or 0 on timeout.
	Wait(timeout time.Duration) (int, error)

	// Close releases the underlying OS resources. The WaitSet must not
	// be used afterwards.
	Close() error
}
