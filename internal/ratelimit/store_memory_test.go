package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type InMemoryStoreSuite struct {
	suite.Suite
	now   time.Time
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s.store = NewInMemoryStore(func() time.Time { return s.now })
}

func (s *InMemoryStoreSuite) allow(key string) *Result {
	res, err := s.store.Allow(context.Background(), key, 3, time.Minute)
	s.Require().NoError(err)
	return res
}

func (s *InMemoryStoreSuite) TestLimitWithinWindow() {
	for i := 2; i >= 0; i-- {
		res := s.allow("login:10.0.0.1")
		s.True(res.Allowed)
		s.Equal(i, res.Remaining)
		s.now = s.now.Add(time.Second)
	}

	res := s.allow("login:10.0.0.1")
	s.False(res.Allowed)
	s.Equal(57*time.Second, res.RetryAfter)
	s.Equal(time.Date(2025, 3, 1, 10, 1, 0, 0, time.UTC), res.ResetAt)
}

func (s *InMemoryStoreSuite) TestWindowSlides() {
	for range 3 {
		s.True(s.allow("k").Allowed)
	}
	s.False(s.allow("k").Allowed)

	s.now = s.now.Add(time.Minute + time.Millisecond)
	res := s.allow("k")
	s.True(res.Allowed)
	s.Equal(2, res.Remaining)
}

func (s *InMemoryStoreSuite) TestKeysAreIndependent() {
	for range 3 {
		s.allow("a")
	}
	s.False(s.allow("a").Allowed)
	s.True(s.allow("b").Allowed)
}
