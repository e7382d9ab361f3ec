package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// insertAttempts bounds WATCH retries inside Insert. Losing the race means
// another writer touched the same key, so the next attempt normally ends in
// ErrAlreadyExists.
const insertAttempts = 3

var errVersionMismatch = errors.New("version mismatch")

// RedisBackend stores each record as a hash {v: version, d: data} and each
// index as a sorted set scored at insert time by a write counter, so ZRANGE
// yields insertion order. Versions are drawn from the same counter.
//
//	<prefix><entity>:<key>   hash
//	<prefix><index>          sorted set of keys
//	<prefix><index>:seq      write counter
type RedisBackend struct {
	rdb    *redis.Client
	prefix string
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend wraps rdb. prefix namespaces every key this backend
// touches; it may be empty.
func NewRedisBackend(rdb *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{rdb: rdb, prefix: prefix}
}

func (b *RedisBackend) dataKey(c Collection, key string) string {
	return b.prefix + c.Entity + ":" + key
}

func (b *RedisBackend) indexKey(c Collection) string {
	return b.prefix + c.Index
}

func (b *RedisBackend) Exists(ctx context.Context, c Collection, key string) (bool, error) {
	_, err := b.rdb.ZScore(ctx, b.indexKey(c), key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *RedisBackend) Get(ctx context.Context, c Collection, key string) (Versioned, error) {
	var (
		score  *redis.FloatCmd
		fields *redis.SliceCmd
	)

	// MULTI so the index check and the record read see the same snapshot.
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		score = pipe.ZScore(ctx, b.indexKey(c), key)
		fields = pipe.HMGet(ctx, b.dataKey(c, key), "v", "d")
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Versioned{}, err
	}
	if errors.Is(score.Err(), redis.Nil) {
		return Versioned{}, ErrNotFound
	}

	vals := fields.Val()
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Versioned{}, ErrNotFound
	}

	vs, _ := vals[0].(string)
	version, err := strconv.ParseInt(vs, 10, 64)
	if err != nil {
		return Versioned{}, fmt.Errorf("corrupt version for %s: %w", b.dataKey(c, key), err)
	}
	ds, _ := vals[1].(string)

	return Versioned{Data: []byte(ds), Version: version}, nil
}

func (b *RedisBackend) Insert(ctx context.Context, c Collection, key string, data []byte) error {
	dk := b.dataKey(c, key)
	ik := b.indexKey(c)

	txf := func(tx *redis.Tx) error {
		_, err := tx.ZScore(ctx, ik, key).Result()
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}

		seq, err := tx.Incr(ctx, ik+":seq").Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, dk, "v", seq, "d", data)
			pipe.ZAdd(ctx, ik, redis.Z{Score: float64(seq), Member: key})
			return nil
		})
		return err
	}

	for i := 0; i < insertAttempts; i++ {
		err := b.rdb.Watch(ctx, txf, dk)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return fmt.Errorf("insert %s: %w", dk, ErrConflict)
}

func (b *RedisBackend) CompareAndSwap(ctx context.Context, c Collection, key string, version int64, data []byte) (bool, error) {
	dk := b.dataKey(c, key)

	txf := func(tx *redis.Tx) error {
		if _, err := tx.ZScore(ctx, b.indexKey(c), key).Result(); err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}

		cur, err := tx.HGet(ctx, dk, "v").Int64()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if cur != version {
			return errVersionMismatch
		}

		next, err := tx.Incr(ctx, b.indexKey(c)+":seq").Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, dk, "v", next, "d", data)
			return nil
		})
		return err
	}

	err := b.rdb.Watch(ctx, txf, dk)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, errVersionMismatch):
		return false, nil
	default:
		return false, err
	}
}

func (b *RedisBackend) Delete(ctx context.Context, c Collection, key string) (bool, error) {
	var removed *redis.IntCmd

	// Deleting the hash also invalidates any WATCH held by a concurrent
	// CompareAndSwap on the same key.
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, b.indexKey(c), key)
		pipe.Del(ctx, b.dataKey(c, key))
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed.Val() > 0, nil
}

func (b *RedisBackend) List(ctx context.Context, c Collection) ([][]byte, error) {
	keys, err := b.rdb.ZRange(ctx, b.indexKey(c), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringCmd, len(keys))
	_, err = b.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HGet(ctx, b.dataKey(c, k), "d")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([][]byte, 0, len(keys))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			// Deleted between ZRANGE and HGET.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func (b *RedisBackend) Count(ctx context.Context, c Collection) (int64, error) {
	return b.rdb.ZCard(ctx, b.indexKey(c)).Result()
}
