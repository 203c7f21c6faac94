// Package resolveclient is a synchronous, context-aware convenience
// wrapper around the asynchronous dnsresolver facade, for callers that
// would rather block on a channel than implement Completer directly.
package resolveclient

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nvr-core/resolve/internal/domain"
	"github.com/nvr-core/resolve/internal/dnsresolver"
)

var (
	// ErrEmptyHostname is returned when an empty hostname is provided.
	ErrEmptyHostname = fmt.Errorf("empty hostname")
)

// Resolver is the subset of *dnsresolver.Resolver this package depends
// on, so callers can substitute a fake in tests.
type Resolver interface {
	Resolve(caller any, hostname string, timeoutMs uint32, complete dnsresolver.Completer) error
	Cancel(caller any) bool
}

var _ Resolver = (*dnsresolver.Resolver)(nil)

// Client adapts a Resolver to a synchronous, context-cancellable API.
// Unlike lc-void's dnsresolver.Client, this package never opens its
// own socket: name resolution still funnels through the single shared
// worker, one DNS round trip per LookupHost call (A records only, no
// AAAA fan-out, since the underlying protocol is IPv4-only by design).
type Client struct {
	resolver Resolver
	timeout  time.Duration

	mu      sync.Mutex
	pending int
}

// Opt configures a Client.
type Opt func(*Client)

// WithTimeout overrides the per-lookup timeout passed to Resolve.
func WithTimeout(timeout time.Duration) Opt {
	return func(c *Client) { c.timeout = timeout }
}

// New creates a Client wrapping resolver, which must already be usable
// (dnsresolver.New starts its worker lazily on first Resolve).
func New(resolver Resolver, opts ...Opt) *Client {
	c := &Client{
		resolver: resolver,
		timeout:  5 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// LookupHost resolves hostname to a single IPv4 address, blocking
// until the worker completes the lookup, ctx is done, or the client's
// configured timeout elapses — whichever comes first. If hostname is
// already a dotted-quad, it is returned without a round trip.
func (c *Client) LookupHost(ctx context.Context, hostname string) (net.IP, error) {
	if hostname == "" {
		return nil, ErrEmptyHostname
	}
	if ip := net.ParseIP(hostname); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
	}

	deadline, ok := ctx.Deadline()
	timeoutMs := uint32(c.timeout.Milliseconds())
	if ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < c.timeout {
			timeoutMs = uint32(remaining.Milliseconds())
		}
	}

	caller := c.newCaller()
	done := make(chan callbackResult, 1)

	err := c.resolver.Resolve(caller, hostname, timeoutMs, dnsresolver.CompleterFunc(func(result domain.Result, ipv4 uint32) {
		done <- callbackResult{result: result, ipv4: ipv4}
	}))
	if err != nil {
		return nil, err
	}

	select {
	case res := <-done:
		return res.toIP(hostname)
	case <-ctx.Done():
		// Cancel loses the race if the worker already completed the
		// lookup; either way ctx.Err() is the reported cause.
		c.resolver.Cancel(caller)
		return nil, ctx.Err()
	}
}

// newCaller mints an opaque per-call token so concurrent LookupHost
// calls from the same Client never collide in the shared registry's
// by-caller index (dnsresolver's caller key must be unique per
// in-flight lookup).
func (c *Client) newCaller() *int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending++
	id := c.pending
	return &id
}

type callbackResult struct {
	result domain.Result
	ipv4   uint32
}

func (r callbackResult) toIP(hostname string) (net.IP, error) {
	switch r.result {
	case domain.OK:
		return net.IPv4(byte(r.ipv4>>24), byte(r.ipv4>>16), byte(r.ipv4>>8), byte(r.ipv4)), nil
	case domain.Timeout:
		return nil, fmt.Errorf("resolveclient: lookup for %q timed out", hostname)
	default:
		return nil, fmt.Errorf("resolveclient: lookup for %q failed", hostname)
	}
}

