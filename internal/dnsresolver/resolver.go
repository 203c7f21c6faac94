package dnsresolver

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nvr-core/resolve/internal/domain"
	"github.com/nvr-core/resolve/internal/infrastructure/clock"
	"github.com/nvr-core/resolve/internal/infrastructure/epoll"
	"github.com/nvr-core/resolve/internal/infrastructure/network"
	"github.com/nvr-core/resolve/internal/infrastructure/queue"
)

// waitSetCapacity is the fixed size of the worker's WaitSet: the
// message queue and the UDP socket, and nothing else (spec §4.1's
// "set size is fixed at construction").
const waitSetCapacity = 2

// Resolver is the public HostNameResolver facade of spec §6/C8: it
// mutates a shared Registry under a lock, lazily starts the singleton
// worker on first use, and tears it down cleanly on Shutdown.
//
// A Resolver is safe for concurrent use by multiple goroutines.
type Resolver struct {
	mu       sync.Mutex
	registry *Registry
	worker   *worker
	upstream domain.Addr
	clock    domain.Clock
	log      *zap.Logger

	// generation counts worker (re)starts, and resolves/cancels are
	// tallied lock-free since callers may hammer Resolve/Cancel from
	// many goroutines concurrently; plain sync/atomic would work just as
	// well, but the typed go.uber.org/atomic wrappers read better at the
	// call sites below and match this module's ambient-stack convention.
	generation atomic.Uint64
	resolves   atomic.Uint64
	cancels    atomic.Uint64
}

// Stats is a point-in-time snapshot of facade activity counters.
type Stats struct {
	Generation uint64
	Resolves   uint64
	Cancels    uint64
	Live       int
}

// Stats returns a snapshot of the resolver's activity counters.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	live := r.registry.Len()
	r.mu.Unlock()
	return Stats{
		Generation: r.generation.Load(),
		Resolves:   r.resolves.Load(),
		Cancels:    r.cancels.Load(),
		Live:       live,
	}
}

// Option configures a Resolver at construction.
type Option func(*Resolver)

// WithUpstream overrides the default 8.8.8.8:53 upstream (spec §6:
// "configurability is a future extension" that this module carries as
// an ambient config knob rather than a hardcoded constant).
func WithUpstream(addr domain.Addr) Option {
	return func(r *Resolver) { r.upstream = addr }
}

// WithClock overrides the monotonic tick source, used by tests to
// drive deterministic epoch-wrap scenarios (spec §8 scenario 6).
func WithClock(c domain.Clock) Option {
	return func(r *Resolver) { r.clock = c }
}

// WithLogger overrides the resolver's logger; the default is a no-op
// logger so importers who don't care about diagnostics pay nothing.
func WithLogger(log *zap.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// New constructs a Resolver. The worker is not started until the
// first Resolve call (spec §3 "Worker lifecycle").
func New(opts ...Option) *Resolver {
	r := &Resolver{
		registry: NewRegistry(),
		upstream: defaultUpstream,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve issues an asynchronous A-record lookup for hostname. complete
// is invoked exactly once, on the worker goroutine, with the registry
// lock released (spec §6, §8).
func (r *Resolver) Resolve(caller any, hostname string, timeoutMs uint32, complete Completer) error {
	if err := validateHostname(hostname); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureWorkerLocked(); err != nil {
		return err
	}

	wasEmptySend := !r.registry.SendPending()

	if _, err := r.registry.Insert(caller, hostname, timeoutMs, r.clock.Now(), complete); err != nil {
		return err
	}
	r.resolves.Inc()

	if wasEmptySend {
		// spec §4.2 "Send-queue wake protocol": wake the worker only on
		// the empty -> non-empty transition, so a burst of Resolve calls
		// posts one wake message, not one per call.
		w := r.worker
		w.queue.Post(w.onStartSending)
	}

	return nil
}

// Cancel removes caller's live record, if any, without invoking its
// completion callback (spec §4.5). Returns true iff a record was
// removed.
func (r *Resolver) Cancel(caller any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.worker == nil {
		return false
	}

	_, ok := r.registry.RemoveByCaller(caller)
	if !ok {
		return false
	}
	r.cancels.Inc()

	if r.registry.Empty() {
		r.worker.requestQuit()
	}

	return true
}

// Shutdown posts Quit to the worker and waits for it to exit,
// asserting the registry is empty first — a leaked lookup at shutdown
// time is a programmer error (spec §4.5).
func (r *Resolver) Shutdown() error {
	r.mu.Lock()
	w := r.worker
	empty := r.registry.Empty()
	r.mu.Unlock()

	if w == nil {
		return nil
	}

	var errs error
	if !empty {
		errs = multierr.Append(errs, domain.ErrLeakedLookups)
	}

	w.requestQuit()
	<-w.done

	return errs
}

// ensureWorkerLocked lazily starts the process-wide worker singleton.
// Must be called with r.mu held.
func (r *Resolver) ensureWorkerLocked() error {
	if r.worker != nil {
		return nil
	}
	if r.clock == nil {
		r.clock = clock.NewSystem()
	}

	ws, err := epoll.New(waitSetCapacity)
	if err != nil {
		return err
	}
	q, err := queue.New()
	if err != nil {
		ws.Close()
		return err
	}
	udp, err := network.OpenUDP(0)
	if err != nil {
		ws.Close()
		q.Close()
		return err
	}

	w := newWorker(&r.mu, r.registry, q, ws, udp, r.upstream, r.clock, r.log)
	r.worker = w
	r.generation.Inc()
	go w.run()
	go r.retireOnExit(w)
	return nil
}

// retireOnExit clears r.worker once w's loop has actually exited,
// regardless of why (registry drained, a cancel emptied it, or a
// fatal I/O error) — so the next Resolve spins up a fresh worker
// instead of finding a stale, dead one (spec §3 "Process-wide worker
// singleton": "a fresh worker after a prior fatal I/O failure is
// created on the next Resolve", generalized here to every exit path).
func (r *Resolver) retireOnExit(w *worker) {
	<-w.done
	r.mu.Lock()
	if r.worker == w {
		r.worker = nil
	}
	r.mu.Unlock()
}
