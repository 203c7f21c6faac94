// Package dnsresolver implements the asynchronous DNS host-name
// resolver: the registry of in-flight lookups (this file), the wire
// codec and worker loop (worker.go, wire.go), and the public facade
// (resolver.go).
package dnsresolver

import (
	"container/heap"
	"sort"

	"github.com/nvr-core/resolve/internal/domain"
)

// Completer receives the outcome of a Resolve call exactly once. It is
// invoked on the worker goroutine with no locks held, and must not
// block or call back into the registry synchronously from within the
// same stack frame that holds the registry lock — Resolve/Cancel
// re-entrancy from inside OnCompleted is fine precisely because the
// callback runs lock-free.
type Completer interface {
	OnCompleted(result domain.Result, ipv4 uint32)
}

// CompleterFunc adapts a plain function to Completer.
type CompleterFunc func(result domain.Result, ipv4 uint32)

func (f CompleterFunc) OnCompleted(result domain.Result, ipv4 uint32) {
	f(result, ipv4)
}

// record is one active lookup (spec §3's ResolverRecord). It is
// referenced directly by pointer from every index that holds it — the
// caller map, the id map, one of the two deadline timelines, and
// (until sent) the send FIFO — so removal never needs a stable
// integer handle the way the C++ original's arena redesign does: a Go
// pointer to a struct that is never pooled or reused carries the same
// guarantee.
type record struct {
	caller   any
	hostname string
	id       uint16
	deadline uint32
	timeline int // 0 or 1: which of registry.timelines currently holds this record
	heapIdx  int // position within that timeline's heap slice; maintained by container/heap
	pending  bool
	complete Completer
}

// recordHeap is a container/heap.Interface ordering records by
// deadline_ticks (spec's T1/T2 deadline multimaps, realized as binary
// min-heaps since the worker only ever needs "peek/pop the smallest
// deadline" and "remove this specific record").
type recordHeap []*record

func (h recordHeap) Len() int            { return len(h) }
func (h recordHeap) Less(i, j int) bool  { return h[i].deadline < h[j].deadline }
func (h recordHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].heapIdx = i; h[j].heapIdx = j }
func (h *recordHeap) Push(x interface{}) {
	r := x.(*record)
	r.heapIdx = len(*h)
	*h = append(*h, r)
}
func (h *recordHeap) Pop() interface{} {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.heapIdx = -1
	*h = old[:n-1]
	return r
}

// Registry is the four-way-indexed collection of live records (spec
// §3). Registry has no lock of its own: callers are expected to hold
// the facade's registry mutex (Resolver.mu, shared with the worker)
// across any sequence of these methods that must appear atomic;
// Registry itself does not lock internally, matching the worker loop's need to hold the
// lock across several registry operations per iteration and release
// it only around the blocking WaitSet.Wait (spec §4.2, §5).
type Registry struct {
	byCaller  map[any]*record
	byID      map[uint16]*record
	usedIDs   []uint16 // sorted ascending, parallel to byID's keys
	timelines [2]recordHeap
	sendFIFO  []*record
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byCaller: make(map[any]*record),
		byID:     make(map[uint16]*record),
	}
}

// Empty reports whether any record is live.
func (reg *Registry) Empty() bool {
	return len(reg.byCaller) == 0
}

// Len reports the number of live records.
func (reg *Registry) Len() int {
	return len(reg.byCaller)
}

// Insert creates a new record for caller (spec §3 "Created by
// Resolve"). The caller must not already have a live record.
func (reg *Registry) Insert(caller any, hostname string, timeoutMs uint32, now uint32, complete Completer) (*record, error) {
	if _, ok := reg.byCaller[caller]; ok {
		return nil, domain.ErrAlreadyInProgress
	}
	id, err := reg.findFreeID()
	if err != nil {
		return nil, err
	}

	r := &record{
		caller:   caller,
		hostname: hostname,
		id:       id,
		complete: complete,
	}

	endTime := now + timeoutMs
	if endTime < now {
		// now + timeout wrapped past u32::MAX: this deadline belongs to
		// the next epoch and must not be compared against current-epoch
		// deadlines until the wrap actually happens (spec §3, §4.4).
		r.timeline = 1
	} else {
		r.timeline = 0
	}
	r.deadline = endTime

	heap.Push(&reg.timelines[r.timeline], r)
	reg.byCaller[caller] = r
	reg.byID[id] = r
	reg.insertUsedID(id)
	reg.pushSend(r)

	return r, nil
}

// RemoveByCaller detaches and returns the live record for caller, if
// any (used by Cancel).
func (reg *Registry) RemoveByCaller(caller any) (*record, bool) {
	r, ok := reg.byCaller[caller]
	if !ok {
		return nil, false
	}
	reg.remove(r)
	return r, true
}

// RemoveByID detaches and returns the live record with the given
// transaction id, if any (used when a reply arrives or a protocol
// error is detected for that id).
func (reg *Registry) RemoveByID(id uint16) (*record, bool) {
	r, ok := reg.byID[id]
	if !ok {
		return nil, false
	}
	reg.remove(r)
	return r, true
}

// remove detaches r from all four indices. r must currently be live.
func (reg *Registry) remove(r *record) {
	heap.Remove(&reg.timelines[r.timeline], r.heapIdx)
	delete(reg.byCaller, r.caller)
	delete(reg.byID, r.id)
	reg.removeUsedID(r.id)
	r.pending = false // PopSend skips tombstoned entries still sitting in the FIFO slice
}

// ExpireReadyT1 pops and detaches every record in timeline 0 whose
// deadline has passed, in deadline order (the worker's
// "while T1.min.deadline <= now: expire_one_as_TIMEOUT" step, §4.2).
func (reg *Registry) ExpireReadyT1(now uint32) []*record {
	var out []*record
	for len(reg.timelines[0]) > 0 && reg.timelines[0][0].deadline <= now {
		r := heap.Pop(&reg.timelines[0]).(*record)
		reg.detachNonTimeline(r)
		out = append(out, r)
	}
	return out
}

// PeekMinT1 returns the smallest deadline in timeline 0, if non-empty.
func (reg *Registry) PeekMinT1() (uint32, bool) {
	if len(reg.timelines[0]) == 0 {
		return 0, false
	}
	return reg.timelines[0][0].deadline, true
}

// DrainAllT1AsTimeout pops and detaches every record currently in
// timeline 0 regardless of deadline (the epoch-wrap sweep, §4.4).
func (reg *Registry) DrainAllT1AsTimeout() []*record {
	return reg.drainTimeline(0)
}

// DrainAllAsError detaches every live record in the registry,
// regardless of timeline (the fatal-I/O path, §4.2 "drain_all_as_error").
func (reg *Registry) DrainAllAsError() []*record {
	out := reg.drainTimeline(0)
	out = append(out, reg.drainTimeline(1)...)
	return out
}

func (reg *Registry) drainTimeline(i int) []*record {
	var out []*record
	for len(reg.timelines[i]) > 0 {
		r := heap.Pop(&reg.timelines[i]).(*record)
		reg.detachNonTimeline(r)
		out = append(out, r)
	}
	return out
}

// detachNonTimeline removes r from every index except the timeline
// heap, which the caller has already popped it from.
func (reg *Registry) detachNonTimeline(r *record) {
	delete(reg.byCaller, r.caller)
	delete(reg.byID, r.id)
	reg.removeUsedID(r.id)
	r.pending = false
}

// SwapTimelines relabels every record remaining in timeline 1 to
// timeline 0, then swaps the two timeline slices (the T1/T2 swap of
// §3/§4.4). Callers must have already drained timeline 0 completely
// (via DrainAllT1AsTimeout) before calling this.
func (reg *Registry) SwapTimelines() {
	for _, r := range reg.timelines[1] {
		r.timeline = 0
	}
	reg.timelines[0], reg.timelines[1] = reg.timelines[1], reg.timelines[0]
}

// pushSend appends r to the tail of the send FIFO.
func (reg *Registry) pushSend(r *record) {
	r.pending = true
	reg.sendFIFO = append(reg.sendFIFO, r)
}

// PopSend dequeues the head of the send FIFO, skipping any record
// that was cancelled or completed while still queued. Returns false
// once the FIFO is exhausted.
func (reg *Registry) PopSend() (*record, bool) {
	for len(reg.sendFIFO) > 0 {
		r := reg.sendFIFO[0]
		reg.sendFIFO = reg.sendFIFO[1:]
		if !r.pending {
			continue
		}
		r.pending = false
		return r, true
	}
	reg.sendFIFO = nil
	return nil, false
}

// SendPending reports whether the send FIFO has any record awaiting
// transmission (spec §8 invariant: while non-empty, the UDP socket's
// wait mask must include WRITE).
func (reg *Registry) SendPending() bool {
	for _, r := range reg.sendFIFO {
		if r.pending {
			return true
		}
	}
	return false
}

// findFreeID implements FindFreeId (spec §4.2) exactly, including its
// literal tie-break order, so tests can assert deterministic
// assignment. Grounded on
// _examples/original_source/branches/async_dns/src/ting/Socket.cpp's
// LookupThread::FindFreeId.
func (reg *Registry) findFreeID() (uint16, error) {
	if len(reg.usedIDs) == 0 {
		return 0, nil
	}
	if reg.usedIDs[0] != 0 {
		return reg.usedIDs[0] - 1, nil
	}
	if last := reg.usedIDs[len(reg.usedIDs)-1]; last != 0xFFFF {
		return last + 1, nil
	}
	for i := 0; i+1 < len(reg.usedIDs); i++ {
		if reg.usedIDs[i+1]-reg.usedIDs[i] > 1 {
			return reg.usedIDs[i] + 1, nil
		}
	}
	return 0, domain.ErrTooManyRequests
}

func (reg *Registry) insertUsedID(id uint16) {
	i := sort.Search(len(reg.usedIDs), func(i int) bool { return reg.usedIDs[i] >= id })
	reg.usedIDs = append(reg.usedIDs, 0)
	copy(reg.usedIDs[i+1:], reg.usedIDs[i:])
	reg.usedIDs[i] = id
}

func (reg *Registry) removeUsedID(id uint16) {
	i := sort.Search(len(reg.usedIDs), func(i int) bool { return reg.usedIDs[i] >= id })
	if i < len(reg.usedIDs) && reg.usedIDs[i] == id {
		reg.usedIDs = append(reg.usedIDs[:i], reg.usedIDs[i+1:]...)
	}
}
