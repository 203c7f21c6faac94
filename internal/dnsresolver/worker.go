package dnsresolver

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nvr-core/resolve/internal/domain"
)

// wrapGuardDivisor caps every WaitSet.Wait timeout at u32::MAX/4 so
// now() is polled at least four times per 32-bit tick wrap cycle; an
// is_low transition can never be missed under load (spec §4.4).
const wrapGuardDivisor = 4

// defaultUpstream is the default upstream resolver address (spec §6),
// used by Resolver.New unless overridden with WithUpstream; a real
// deployment typically sources the override from internal/config
// instead (see resolver.go).
var defaultUpstream = domain.Addr{IP: [4]byte{8, 8, 8, 8}, Port: 53}

// worker is the process-wide singleton of spec §3 "Worker lifecycle":
// one OS thread owning one UDP socket, draining a shared Registry
// until it empties.
//
// mu is the *same* mutex the facade (Resolver) locks around every
// registry mutation — spec §5: "all operations on the registry are
// protected by a single mutex". The worker does not own a private
// lock of its own; it borrows the facade's, so Resolve/Cancel running
// on a caller goroutine and the worker loop running on its own
// goroutine can never touch reg.byCaller/reg.byID/the heaps
// concurrently.
type worker struct {
	mu       *sync.Mutex
	registry *Registry
	queue    domain.MessageQueue
	waitset  domain.WaitSet
	udp      domain.UDPConn
	upstream domain.Addr
	clock    domain.Clock
	log      *zap.Logger

	lastLowHalf bool
	sendMask    domain.EventMask // current mask the udp socket is registered with
	quit        bool

	done chan struct{}
}

// newWorker constructs a worker; it does not start it — the caller
// runs w.run() on a goroutine of its own. newWorker takes no lock
// itself (the facade calls it with mu held). The worker takes
// ownership of waitset, udp and queue, and run closes them all when
// the loop exits. mu must be the same mutex the facade locks around
// every Resolve/Cancel registry mutation.
func newWorker(mu *sync.Mutex, registry *Registry, queue domain.MessageQueue, waitset domain.WaitSet, udp domain.UDPConn, upstream domain.Addr, clock domain.Clock, log *zap.Logger) *worker {
	w := &worker{
		mu:       mu,
		registry: registry,
		queue:    queue,
		waitset:  waitset,
		udp:      udp,
		upstream: upstream,
		clock:    clock,
		log:      log,
		sendMask: domain.Read,
		done:     make(chan struct{}),
	}
	w.lastLowHalf = clock.Now() < 1<<31
	return w
}

// run is the worker loop of spec §4.2, executed on its own goroutine
// (the "single dedicated OS thread" of spec §5 — Go's scheduler owns
// the actual OS thread mapping, but the goroutine never migrates work
// onto another concurrently-running goroutine, preserving single-
// writer access to the UDP socket).
func (w *worker) run() {
	defer close(w.done)
	defer w.waitset.Close()
	defer w.udp.Close()
	defer w.queue.Close()

	if err := w.waitset.Add(w.queue, domain.Read); err != nil {
		w.log.Error("worker: failed to register message queue", zap.Error(err))
		return
	}
	if err := w.waitset.Add(w.udp, domain.Read); err != nil {
		w.log.Error("worker: failed to register udp socket", zap.Error(err))
		return
	}

	buf := make([]byte, udpPacketSize)

	for {
		var waitTimeout time.Duration
		quit := func() bool {
			w.mu.Lock()
			defer w.mu.Unlock()

			if w.quit {
				return true
			}

			if w.udp.Readiness().Has(domain.Error) {
				w.drainAllAsError()
				return true
			}

			if w.udp.Readiness().Has(domain.Read) {
				w.recvOneReply(buf)
			}

			if w.udp.Readiness().Has(domain.Write) && w.registry.SendPending() {
				w.sendOneQuery(buf)
			}

			now := w.clock.Now()
			w.handleEpochWrap(now)

			for _, r := range w.registry.ExpireReadyT1(now) {
				w.complete(r, domain.Timeout, 0)
			}

			if w.registry.Empty() {
				return true
			}

			maxWait := time.Duration(^uint32(0)/wrapGuardDivisor) * time.Millisecond
			deadline, ok := w.registry.PeekMinT1()
			if !ok {
				// T1 is empty but T2 holds at least one straddling record
				// (registry.Empty() above already ruled out both being
				// empty); there is nothing in the active timeline to
				// bound the wait, so fall back to the wrap-guard cap.
				waitTimeout = maxWait
				return false
			}
			ticks := deadline - now // ExpireReadyT1 above guarantees deadline > now here
			ms := time.Duration(ticks) * time.Millisecond
			if ms > maxWait {
				ms = maxWait
			}
			waitTimeout = ms
			return false
		}()

		if quit {
			return
		}

		n, err := w.waitset.Wait(waitTimeout)
		if err != nil {
			w.log.Error("worker: waitset error", zap.Error(err))
			continue
		}
		if n == 0 {
			continue
		}

		if w.queue.Readiness().Has(domain.Read) {
			for _, fn := range w.queue.Drain() {
				fn()
			}
		}
	}
}

// handleEpochWrap implements spec §4.4: on the transition from the
// upper half of the 32-bit tick range back into the lower half,
// everything left in T1 belongs to the pre-wrap epoch and is expired,
// then T1 and T2 swap roles. Must be called with w.mu held.
func (w *worker) handleEpochWrap(now uint32) {
	isLow := now < 1<<31
	if isLow && !w.lastLowHalf {
		for _, r := range w.registry.DrainAllT1AsTimeout() {
			w.complete(r, domain.Timeout, 0)
		}
		w.registry.SwapTimelines()
	}
	w.lastLowHalf = isLow
}

// recvOneReply receives and processes exactly one datagram (spec
// §4.3). Must be called with w.mu held; releases it around the
// completion callback via complete.
func (w *worker) recvOneReply(buf []byte) {
	n, err := w.udp.Recv(buf, &domain.Addr{})
	if err != nil || n == 0 {
		return
	}

	reply, ok := parseReply(buf[:n])
	if !ok {
		return // too short to attribute to any id; dropped silently
	}

	r, found := w.registry.RemoveByID(reply.id)
	if !found {
		return // unknown id; dropped silently per spec §4.3
	}
	w.complete(r, reply.result, reply.ipv4)
}

// sendOneQuery dequeues and transmits the head of the send FIFO (spec
// §4.2's "dequeue head; build_query; udp.send()"). Must be called
// with w.mu held.
func (w *worker) sendOneQuery(buf []byte) {
	r, ok := w.registry.PopSend()
	if !ok {
		return
	}
	packet := buildQuery(buf, r.id, r.hostname)
	if _, err := w.udp.Send(packet, w.upstream); err != nil {
		w.log.Warn("worker: udp send failed", zap.Uint16("id", r.id), zap.Error(err))
	}
	if !w.registry.SendPending() {
		w.setUDPMask(domain.Read)
	}
}

// drainAllAsError implements the fatal-I/O path: every live record
// completes ERROR and the worker exits its loop (spec §4.2, §7).
func (w *worker) drainAllAsError() {
	for _, r := range w.registry.DrainAllAsError() {
		w.complete(r, domain.ErrorResult, 0)
	}
}

// complete detaches has already happened by the time complete is
// called (the registry methods above always remove before returning
// the record); complete's job is only to invoke the user callback
// with the registry lock released, then reacquire it, matching spec
// §3's "releases the lock, then calls the user completion callback
// exactly once" and §5's "callback ... runs ... with the registry
// mutex released". Must be called with w.mu held; it releases and
// reacquires it around the callback.
func (w *worker) complete(r *record, result domain.Result, ipv4 uint32) {
	w.mu.Unlock()
	r.complete.OnCompleted(result, ipv4)
	w.mu.Lock()
}

// setUDPMask changes the WaitSet registration for the UDP socket. It
// is a no-op if mask already matches (avoids a redundant syscall on
// every loop iteration).
func (w *worker) setUDPMask(mask domain.EventMask) {
	if w.sendMask == mask {
		return
	}
	if err := w.waitset.Change(w.udp, mask); err != nil {
		w.log.Warn("worker: failed to change udp waitset mask", zap.Error(err))
		return
	}
	w.sendMask = mask
}

// onStartSending is the message-queue handler posted by Resolve when
// it enqueues the first record into an otherwise-empty send FIFO
// (spec §4.2 "Send-queue wake protocol"). It must run on the worker
// goroutine (it is only ever invoked from inside run's Drain loop),
// so it takes the lock itself rather than assuming it is held.
func (w *worker) onStartSending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setUDPMask(domain.Read | domain.Write)
}

// requestQuit posts the Quit message of spec §4.5: a closure that
// marks the worker for exit, run on the worker goroutine itself
// (posted through the message queue so it is strictly ordered with
// respect to any in-flight sends/receives). The worker notices it at
// the top of its next loop iteration.
func (w *worker) requestQuit() {
	w.queue.Post(func() {
		w.mu.Lock()
		w.quit = true
		w.mu.Unlock()
	})
}
