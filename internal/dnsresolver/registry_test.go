package dnsresolver

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/nvr-core/resolve/internal/domain"
)

type noopCompleter struct{}

func (noopCompleter) OnCompleted(domain.Result, uint32) {}

type RegistryTestSuite struct {
	suite.Suite
	reg *Registry
}

func (s *RegistryTestSuite) SetupTest() {
	s.reg = NewRegistry()
}

// FindFreeId determinism law, spec §8 scenario 5.
func (s *RegistryTestSuite) TestFindFreeIDLaw() {
	testCases := []struct {
		name string
		used []uint16
		want uint16
	}{
		{"empty", nil, 0},
		{"free id just below the smallest used one is taken first", []uint16{1, 2, 3}, 0},
		{"gap in middle is not preferred over appending past max", []uint16{0, 1, 2, 5}, 6},
		{"dense from 0 except top", []uint16{0, 65535}, 1},
		{"dense up to but not including max", seq(0, 65534), 65535},
		{"gap scan only kicks in once slot 0 and max are both used", []uint16{0, 1, 3, 65535}, 2},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			reg := NewRegistry()
			for _, id := range tc.used {
				reg.usedIDs = append(reg.usedIDs, id)
			}
			got, err := reg.findFreeID()
			s.NoError(err)
			s.Equal(tc.want, got)
		})
	}
}

func (s *RegistryTestSuite) TestFindFreeIDExhausted() {
	reg := NewRegistry()
	reg.usedIDs = seq(0, 65535)
	_, err := reg.findFreeID()
	s.ErrorIs(err, domain.ErrTooManyRequests)
}

func seq(from, to uint16) []uint16 {
	out := make([]uint16, 0, int(to-from)+1)
	for i := from; ; i++ {
		out = append(out, i)
		if i == to {
			break
		}
	}
	return out
}

func (s *RegistryTestSuite) TestInsertRejectsDuplicateCaller() {
	caller := "alice"
	_, err := s.reg.Insert(caller, "example.com", 1000, 0, noopCompleter{})
	s.Require().NoError(err)

	_, err = s.reg.Insert(caller, "example.com", 1000, 0, noopCompleter{})
	s.ErrorIs(err, domain.ErrAlreadyInProgress)
}

func (s *RegistryTestSuite) TestInsertTimelineSelection() {
	// no wraparound: now + timeout stays in range -> T1
	r1, err := s.reg.Insert("a", "a.com", 1000, 0, noopCompleter{})
	s.Require().NoError(err)
	s.Equal(0, r1.timeline)

	// now + timeout wraps past u32::MAX -> T2
	r2, err := s.reg.Insert("b", "b.com", 1000, ^uint32(0)-10, noopCompleter{})
	s.Require().NoError(err)
	s.Equal(1, r2.timeline)
}

func (s *RegistryTestSuite) TestFourWayIndexConsistency() {
	r, err := s.reg.Insert("alice", "example.com", 1000, 0, noopCompleter{})
	s.Require().NoError(err)

	s.Same(r, s.reg.byCaller["alice"])
	s.Same(r, s.reg.byID[r.id])
	s.True(r.pending)
	s.True(s.reg.SendPending())

	removed, ok := s.reg.RemoveByCaller("alice")
	s.True(ok)
	s.Same(r, removed)
	s.Empty(s.reg.byCaller)
	s.Empty(s.reg.byID)
	s.False(s.reg.SendPending())
	s.True(s.reg.Empty())
}

func (s *RegistryTestSuite) TestCancelUnknownCallerReturnsFalse() {
	_, ok := s.reg.RemoveByCaller("nobody")
	s.False(ok)
}

func (s *RegistryTestSuite) TestPopSendSkipsCancelledEntries() {
	_, err := s.reg.Insert("a", "a.com", 1000, 0, noopCompleter{})
	s.Require().NoError(err)
	_, err = s.reg.Insert("b", "b.com", 1000, 0, noopCompleter{})
	s.Require().NoError(err)

	_, ok := s.reg.RemoveByCaller("a")
	s.True(ok)

	r, ok := s.reg.PopSend()
	s.True(ok)
	s.Equal("b", r.caller)

	_, ok = s.reg.PopSend()
	s.False(ok)
}

func (s *RegistryTestSuite) TestExpireReadyT1OrdersByDeadline() {
	now := uint32(1000)
	_, err := s.reg.Insert("late", "a.com", 500, now, noopCompleter{}) // deadline 1500
	s.Require().NoError(err)
	_, err = s.reg.Insert("early", "b.com", 100, now, noopCompleter{}) // deadline 1100
	s.Require().NoError(err)

	ready := s.reg.ExpireReadyT1(1600)
	s.Require().Len(ready, 2)
	s.Equal("early", ready[0].caller)
	s.Equal("late", ready[1].caller)
	s.True(s.reg.Empty())
}

func (s *RegistryTestSuite) TestSwapTimelinesRelabelsAndExchanges() {
	// r1 lands in T1 (no wrap), r2 lands in T2 (wraps).
	r1, err := s.reg.Insert("a", "a.com", 1000, 0, noopCompleter{})
	s.Require().NoError(err)
	r2, err := s.reg.Insert("b", "b.com", 1000, ^uint32(0)-10, noopCompleter{})
	s.Require().NoError(err)
	s.Equal(0, r1.timeline)
	s.Equal(1, r2.timeline)

	drained := s.reg.DrainAllT1AsTimeout()
	s.Require().Len(drained, 1)
	s.Equal("a", drained[0].caller)

	s.reg.SwapTimelines()

	s.Equal(0, r2.timeline)
	got, ok := s.reg.RemoveByID(r2.id)
	s.True(ok)
	s.Same(r2, got)
}

func (s *RegistryTestSuite) TestDrainAllAsErrorCoversBothTimelines() {
	_, err := s.reg.Insert("a", "a.com", 1000, 0, noopCompleter{})
	s.Require().NoError(err)
	_, err = s.reg.Insert("b", "b.com", 1000, ^uint32(0)-10, noopCompleter{})
	s.Require().NoError(err)

	drained := s.reg.DrainAllAsError()
	s.Len(drained, 2)
	s.True(s.reg.Empty())
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}
