package utils

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestCountFixedWindow_RejectsBadArguments(t *testing.T) {
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	_, err := CountFixedWindow(ctx, nil, "k", 1, time.Second)
	assert.ErrorContains(t, err, "nil")
	_, err = CountFixedWindow(ctx, rdb, "", 1, time.Second)
	assert.ErrorContains(t, err, "key")
	_, err = CountFixedWindow(ctx, rdb, "k", 0, time.Second)
	assert.ErrorContains(t, err, "limit")
	_, err = CountFixedWindow(ctx, rdb, "k", 1, 0)
	assert.ErrorContains(t, err, "window")
}

func TestWindowResult(t *testing.T) {
	assert.Equal(t, WindowResult{Allowed: true}, windowResult(3, 500, 3))
	assert.Equal(t, WindowResult{RetryAfter: 1500 * time.Millisecond}, windowResult(4, 1500, 3))
	assert.Equal(t, WindowResult{}, windowResult(4, -1, 3))
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	_, err := OpenRedis(context.Background(), RedisConfig{})
	assert.Error(t, err)
}

func TestRedisConfig_Defaults(t *testing.T) {
	c := RedisConfig{PoolSize: -1}.withDefaults()
	assert.Equal(t, 10, c.PoolSize)
	assert.Equal(t, 2*time.Second, c.Timeout)
	assert.Equal(t, 2*time.Second, c.PingTimeout)
}
