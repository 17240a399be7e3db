package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"ACCMAN_ADDR", "DATABASE_URL", "REDIS_URL", "ACCESS_TOKEN_TTL", "KAFKA_BROKERS", "SEARCH_PAGE_SIZE", "AUTH_RATE_LIMIT"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, 2*time.Hour, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, "sid", cfg.Auth.CookieName)
	assert.Equal(t, 6, cfg.Auth.Password.MinLength)
	assert.Equal(t, 20, cfg.Auth.RateLimit)
	assert.Equal(t, time.Minute, cfg.Auth.RateLimitWindow)
	assert.Equal(t, 50, cfg.Accounts.SearchPageSize)
	assert.Empty(t, cfg.Audit.Brokers)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("ACCMAN_ADDR", ":9000")
	t.Setenv("ACCESS_TOKEN_TTL", "15m")
	t.Setenv("SEARCH_PAGE_SIZE", "10")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("ACCMAN_ORIGINS", "https://x.example")

	cfg := FromEnv()
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 10, cfg.Accounts.SearchPageSize)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Audit.Brokers)
	assert.Equal(t, []string{"https://x.example"}, cfg.Server.AllowedOrigins)
}

func TestFromEnv_BadNumbersFallBack(t *testing.T) {
	t.Setenv("SEARCH_PAGE_SIZE", "many")
	t.Setenv("ACCESS_TOKEN_TTL", "soon")

	cfg := FromEnv()
	assert.Equal(t, 50, cfg.Accounts.SearchPageSize)
	assert.Equal(t, 2*time.Hour, cfg.Auth.AccessTokenTTL)
}
