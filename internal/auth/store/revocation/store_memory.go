package revocation

import (
	"context"
	"sync"
	"time"
)

// InMemoryTRL keeps revoked JTIs in process memory. Suitable for a single
// instance and for tests.
type InMemoryTRL struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	clock   Clock
}

func NewInMemoryTRL(clock Clock) *InMemoryTRL {
	if clock == nil {
		clock = time.Now
	}
	return &InMemoryTRL{revoked: make(map[string]time.Time), clock: clock}
}

func (t *InMemoryTRL) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	expiresAt := t.clock().Add(ttl)
	if current, ok := t.revoked[jti]; !ok || expiresAt.After(current) {
		t.revoked[jti] = expiresAt
	}
	return nil
}

func (t *InMemoryTRL) IsRevoked(_ context.Context, jti string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	expiresAt, ok := t.revoked[jti]
	return ok && t.clock().Before(expiresAt), nil
}

func (t *InMemoryTRL) PurgeExpired(context.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	var n int64
	for jti, expiresAt := range t.revoked {
		if !now.Before(expiresAt) {
			delete(t.revoked, jti)
			n++
		}
	}
	return n, nil
}
