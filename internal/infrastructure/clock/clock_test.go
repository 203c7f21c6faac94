package clock

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type ClockTestSuite struct {
	suite.Suite
}

func (s *ClockTestSuite) TestSystemNowStartsNearZeroAndAdvances() {
	c := NewSystem()
	first := c.Now()
	s.Less(first, uint32(1000), "freshly anchored clock should read a small tick count")

	second := c.Now()
	s.GreaterOrEqual(second, first)
}

func (s *ClockTestSuite) TestFakeAdvance() {
	f := NewFake(100)
	s.Equal(uint32(100), f.Now())

	f.Advance(50)
	s.Equal(uint32(150), f.Now())
}

func (s *ClockTestSuite) TestFakeAdvanceWrapsAt32Bits() {
	f := NewFake(^uint32(0) - 10)
	f.Advance(20)
	s.Equal(uint32(9), f.Now(), "advancing past 2^32-1 must wrap, not overflow into an error")
}

func (s *ClockTestSuite) TestFakeSetPinsExactValue() {
	f := NewFake(0)
	f.Set(1 << 31)
	s.Equal(uint32(1<<31), f.Now())
}

func TestClockSuite(t *testing.T) {
	suite.Run(t, new(ClockTestSuite))
}
