package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accman/pkg/platform/circuit"
)

type flakyStore struct {
	err   error
	calls int
}

func (f *flakyStore) Allow(_ context.Context, _ string, limit int, _ time.Duration) (*Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Result{Allowed: true, Limit: limit, Remaining: limit}, nil
}

func TestFallbackStore(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	primary := &flakyStore{err: errors.New("connection refused")}
	fallback := NewInMemoryStore(nil)
	breaker := circuit.New("redis", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(2))
	store := NewFallbackStore(primary, fallback, breaker, logger)

	_, err := store.Allow(ctx, "auth:10.0.0.1", 5, time.Minute)
	require.Error(t, err, "below threshold the error surfaces")

	res, err := store.Allow(ctx, "auth:10.0.0.1", 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Remaining, "fallback counts once the breaker opens")

	primary.err = nil
	res, err = store.Allow(ctx, "auth:10.0.0.1", 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Remaining, "still on fallback while recovering")

	res, err = store.Allow(ctx, "auth:10.0.0.1", 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Remaining, "primary again after enough successes")
	assert.False(t, breaker.IsOpen())
	assert.Equal(t, 4, primary.calls)
}
