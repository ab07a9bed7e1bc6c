package httpapi

import (
	"fmt"
	"time"

	"github.com/juju/clock/testclock"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(TokenBucketTestSuite))

type TokenBucketTestSuite struct {
	clock *testclock.Clock
}

func (s *TokenBucketTestSuite) SetUpTest(c *gc.C) {
	s.clock = testclock.NewClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
}

func (s *TokenBucketTestSuite) TestLimitsAndRefills(c *gc.C) {
	l := NewTokenBucket(2, 2, s.clock)
	c.Assert(l.allow("10.0.0.1"), gc.Equals, true)
	c.Assert(l.allow("10.0.0.1"), gc.Equals, true)
	c.Assert(l.allow("10.0.0.1"), gc.Equals, false)
	c.Assert(l.allow("10.0.0.2"), gc.Equals, true)

	s.clock.Advance(30 * time.Second)
	c.Assert(l.allow("10.0.0.1"), gc.Equals, true)
	c.Assert(l.allow("10.0.0.1"), gc.Equals, false)
}

func (s *TokenBucketTestSuite) TestIdleBucketsAreDropped(c *gc.C) {
	l := NewTokenBucket(10, 10, s.clock)
	for i := 0; i < 50; i++ {
		c.Assert(l.allow(fmt.Sprintf("10.0.0.%d", i)), gc.Equals, true)
	}
	c.Assert(l.state, gc.HasLen, 50)

	s.clock.Advance(30 * time.Second)
	c.Assert(l.allow("10.0.1.1"), gc.Equals, true)
	c.Assert(l.state, gc.HasLen, 51)

	s.clock.Advance(45 * time.Second)
	c.Assert(l.allow("10.0.1.2"), gc.Equals, true)
	// only the bucket touched within the last refill period survives
	c.Assert(l.state, gc.HasLen, 2)
}

func (s *TokenBucketTestSuite) TestDroppedBucketStartsFull(c *gc.C) {
	l := NewTokenBucket(1, 1, s.clock)
	c.Assert(l.allow("10.0.0.1"), gc.Equals, true)
	c.Assert(l.allow("10.0.0.1"), gc.Equals, false)

	s.clock.Advance(time.Minute)
	c.Assert(l.allow("10.0.0.1"), gc.Equals, true)
	c.Assert(l.allow("10.0.0.1"), gc.Equals, false)
}
