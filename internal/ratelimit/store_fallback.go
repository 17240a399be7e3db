package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"accman/pkg/platform/circuit"
)

// FallbackStore counts in primary and switches to fallback once the breaker
// opens. The primary is still tried on every call so it can close again.
type FallbackStore struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFallbackStore(primary, fallback Store, breaker *circuit.Breaker, logger *slog.Logger) *FallbackStore {
	return &FallbackStore{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

func (s *FallbackStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	res, err := s.primary.Allow(ctx, key, limit, window)
	if err != nil {
		useFallback, change := s.breaker.RecordFailure()
		if change.Opened {
			s.logger.WarnContext(ctx, "rate limit store unavailable, using fallback",
				"store", s.breaker.Name(),
				"error", err,
			)
		}
		if !useFallback {
			return nil, err
		}
		return s.fallback.Allow(ctx, key, limit, window)
	}

	usePrimary, change := s.breaker.RecordSuccess()
	if change.Closed {
		s.logger.InfoContext(ctx, "rate limit store recovered", "store", s.breaker.Name())
	}
	if !usePrimary {
		return s.fallback.Allow(ctx, key, limit, window)
	}
	return res, nil
}
