package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ratings caches per-post rating averages in Redis.
type Ratings struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRatings(rdb *redis.Client, ttl time.Duration) *Ratings {
	return &Ratings{rdb: rdb, ttl: ttl}
}

// Connect dials Redis and checks the connection.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func averageKey(postID uint) string {
	return "ratings:avg:" + strconv.FormatUint(uint64(postID), 10)
}

func generationKey(postID uint) string {
	return "ratings:gen:" + strconv.FormatUint(uint64(postID), 10)
}

// generationTTL bounds how long an idle post's generation counter lives.
const generationTTL = 24 * time.Hour

// Average returns the cached average and whether it was present.
func (c *Ratings) Average(ctx context.Context, postID uint) (float64, bool, error) {
	avg, err := c.rdb.Get(ctx, averageKey(postID)).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return avg, true, nil
}

func (c *Ratings) Generation(ctx context.Context, postID uint) (int64, error) {
	return generation(ctx, c.rdb, postID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func generation(ctx context.Context, rdb getter, postID uint) (int64, error) {
	gen, err := rdb.Get(ctx, generationKey(postID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetAverage caches avg unless Forget ran since gen was read. The check and
// the write happen under WATCH, so a concurrent Forget aborts the write.
func (c *Ratings) SetAverage(ctx context.Context, postID uint, avg float64, gen int64) error {
	genKey := generationKey(postID)
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := generation(ctx, tx, postID)
		if err != nil {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, averageKey(postID), avg, c.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

// Forget drops the cached average and advances the generation.
func (c *Ratings) Forget(ctx context.Context, postID uint) error {
	genKey := generationKey(postID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, averageKey(postID))
		return nil
	})
	return err
}
