package domain

// Clock is the 32-bit wrapping millisecond tick source (spec §4.4,
// component C1). Implementations wrap every 2^32 milliseconds
// (~49.7 days); the DNS worker relies on that wraparound being
// well-defined rather than avoided.
type Clock interface {
	// Now returns the current tick, truncated to 32 bits.
	Now() uint32
}
