// Package cache holds the Redis read-through cache for assembled boards.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Board caches one value per space. A nil client or zero ttl turns every
// call into a pass-through to the loader.
type Board[T any] struct {
	redis *redis.Client
	ttl   time.Duration
	log   log.FieldLogger
}

func NewBoard[T any](client *redis.Client, ttl time.Duration, logger log.FieldLogger) *Board[T] {
	if ttl < 0 {
		ttl = 0
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Board[T]{redis: client, ttl: ttl, log: logger}
}

func (c *Board[T]) Enabled() bool {
	return c != nil && c.redis != nil && c.ttl > 0
}

// Get returns the cached board for spaceID, or calls load and caches its
// result. Redis failures never fail the read.
//
// Entries are keyed by a per-space generation that Evict bumps, so a load
// that raced an eviction is written under a generation nobody reads again.
func (c *Board[T]) Get(ctx context.Context, spaceID string, load func(ctx context.Context) (T, error)) (T, error) {
	gen, ok := c.generation(ctx, spaceID)
	if !ok {
		return load(ctx)
	}
	key := boardKey(spaceID, gen)
	if value, ok := c.lookup(ctx, key); ok {
		return value, nil
	}
	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	c.store(ctx, key, value)
	return value, nil
}

// Evict invalidates the cached boards of the given spaces. Empty ids are
// ignored.
func (c *Board[T]) Evict(ctx context.Context, spaceIDs ...string) {
	if !c.Enabled() {
		return
	}
	for _, id := range spaceIDs {
		if id == "" {
			continue
		}
		gen, err := c.redis.Incr(ctx, generationKey(id)).Result()
		if err != nil {
			c.log.WithError(err).WithField("space_id", id).Warn("board cache eviction failed")
			continue
		}
		_ = c.redis.Del(ctx, boardKey(id, gen-1)).Err()
	}
}

// generation reads the space's current cache generation. ok is false when
// the cache is off or Redis cannot answer.
func (c *Board[T]) generation(ctx context.Context, spaceID string) (int64, bool) {
	if !c.Enabled() {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, generationKey(spaceID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		c.log.WithError(err).WithField("space_id", spaceID).Warn("board cache read failed")
		return 0, false
	}
	return gen, true
}

func (c *Board[T]) lookup(ctx context.Context, key string) (T, bool) {
	var zero T
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).WithField("key", key).Warn("board cache read failed")
			_ = c.redis.Del(ctx, key).Err()
		}
		return zero, false
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return zero, false
	}
	return value, true
}

func (c *Board[T]) store(ctx context.Context, key string, value T) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("board cache write failed")
	}
}

// boardKey names a space's board at a generation. Generation 0 is the plain
// space key.
func boardKey(spaceID string, gen int64) string {
	if gen == 0 {
		return "kanban:board:" + spaceID
	}
	return "kanban:board:" + spaceID + ":" + strconv.FormatInt(gen, 10)
}

func generationKey(spaceID string) string {
	return "kanban:board-gen:" + spaceID
}
