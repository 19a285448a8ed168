package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachable(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestClient_Key(t *testing.T) {
	c := Wrap(nil, "")
	assert.Equal(t, "lesson-forge:ruleset:default:doctrinal", c.Key("ruleset", "default", "doctrinal"))

	c = Wrap(nil, " staging: ")
	assert.Equal(t, "staging:ratelimit:lessons.generate:10.0.0.7", NewRateLimiter(c).Key("lessons.generate", "10.0.0.7"))
}

func TestRateLimiter_PropagatesConnectionError(t *testing.T) {
	l := NewRateLimiter(Wrap(unreachable(t), "test"))
	allowed, err := l.Allow(context.Background(), "k", 10, time.Minute)
	require.Error(t, err)
	assert.False(t, allowed)
}

func TestCache_LoaderNotCalledOnReadError(t *testing.T) {
	c := NewCache(Wrap(unreachable(t), "test"))
	called := false
	_, err := c.GetOrLoadSafe(context.Background(), "ruleset:x", 0, func() (interface{}, error) {
		called = true
		return 1, nil
	})
	require.Error(t, err)
	assert.False(t, called)

	assert.NoError(t, c.Delete(context.Background()))
}
