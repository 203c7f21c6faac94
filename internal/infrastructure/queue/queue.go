// Package queue implements the MPSC message queue of spec §3
// (component C2): any goroutine may Post a closure, the single
// consumer drains them from its WaitSet loop. The queue itself is a
// plain mutex-guarded slice; what makes it waitable is an OS wake
// primitive — an eventfd on Linux, a manual-reset event object on
// Windows — bumped on every Post and drained on every Drain.
package queue

import (
	"sync"

	"github.com/nvr-core/resolve/internal/domain"
)

// Queue is the platform-independent half of the message queue: the
// slice of pending closures and the mutex guarding it. Platform files
// (queue_linux.go, queue_windows.go) embed it and supply Fd()/wake().
type Queue struct {
	domain.BaseWaitable
	mu      sync.Mutex
	pending []func()
}

func (q *Queue) post(fn func(), wake func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
	wake()
}

// Drain removes and returns every message currently queued.
func (q *Queue) Drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	out := q.pending
	q.pending = nil
	return out
}
