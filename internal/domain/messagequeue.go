package domain

// MessageQueue is the bounded-free MPSC queue of closures posted from
// arbitrary goroutines and drained by a single worker (spec §3,
// component C2). It implements Waitable so it can sit in the same
// WaitSet as a UDP socket: posting a message makes the queue
// readable.
type MessageQueue interface {
	Waitable

	// Post enqueues fn for the worker to run. Safe to call from any
	// goroutine, including from inside a message the worker is
	// currently handling.
	Post(fn func())

	// Drain removes and returns every message currently queued,
	// leaving the queue empty. Called only by the worker goroutine.
	Drain() []func()

	// Close releases the queue's OS wake primitive.
	Close() error
}
