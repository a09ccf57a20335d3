// Package cache keeps model responses in Redis so that identical grading
// prompts are not sent twice.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "quizmark:grading:"

// Redis stores raw responses keyed by a hash of the model name and the
// prompt.
type Redis struct {
	client redis.Cmdable
	model  string
	ttl    time.Duration
}

// NewRedis creates a cache for responses of model. A zero ttl keeps
// entries forever.
func NewRedis(client redis.Cmdable, model string, ttl time.Duration) *Redis {
	return &Redis{client: client, model: model, ttl: ttl}
}

// Key returns the Redis key used for prompt.
func (r *Redis) Key(prompt string) string {
	h := sha256.New()
	h.Write([]byte(r.model))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached response for prompt. ok is false on a miss.
func (r *Redis) Get(ctx context.Context, prompt string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.Key(prompt)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set stores response for prompt.
func (r *Redis) Set(ctx context.Context, prompt, response string) error {
	return r.client.Set(ctx, r.Key(prompt), response, r.ttl).Err()
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
