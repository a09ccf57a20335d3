package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db, "qwen3", time.Hour)
	ctx := context.Background()
	key := c.Key("prompt")

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet(key).SetVal(`{"score": 1}`)
		val, ok, err := c.Get(ctx, "prompt")
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `{"score": 1}`, val)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet(key).SetErr(redis.Nil)
		val, ok, err := c.Get(ctx, "prompt")
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, val)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error", func(t *testing.T) {
		redisErr := errors.New("connection reset")
		mock.ExpectGet(key).SetErr(redisErr)
		_, ok, err := c.Get(ctx, "prompt")
		assert.ErrorIs(t, err, redisErr)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRedisSet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db, "qwen3", 24*time.Hour)

	mock.ExpectSet(c.Key("p"), "raw", 24*time.Hour).SetVal("OK")
	assert.NoError(t, c.Set(context.Background(), "p", "raw"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyDependsOnModel(t *testing.T) {
	a := NewRedis(nil, "model-a", 0)
	b := NewRedis(nil, "model-b", 0)
	assert.NotEqual(t, a.Key("p"), b.Key("p"))
	assert.Equal(t, a.Key("p"), a.Key("p"))
	assert.NotEqual(t, a.Key("p"), a.Key("q"))
	assert.Contains(t, a.Key("p"), keyPrefix)
}
