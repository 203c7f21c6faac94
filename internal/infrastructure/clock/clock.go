// Package clock provides the 32-bit wrapping millisecond tick source
// the DNS worker uses to track deadlines across the wraparound
// boundary (spec §4.4).
package clock

import (
	"time"

	"github.com/nvr-core/resolve/internal/domain"
)

// System is the real clock, backed by the Go runtime's monotonic
// reading. Its only state is the instant NewSystem was called, which
// is the epoch ticks are counted from, so successive calls only ever
// move forward (until the 32-bit wrap).
type System struct {
	start time.Time
}

var _ domain.Clock = (*System)(nil)

// NewSystem returns a Clock anchored to the current instant. Every
// subsequent Now() call reports milliseconds elapsed since then,
// truncated to 32 bits.
func NewSystem() *System {
	return &System{start: time.Now()}
}

func (s *System) Now() uint32 {
	return uint32(time.Since(s.start).Milliseconds())
}
