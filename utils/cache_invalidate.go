package utils

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Response cache key layout, shared with middlewares.ResponseCache:
//
//	cache:events:list:<subject hash>:<query hash>
//	cache:events:item:<event id>:<subject hash>
const (
	CachePrefix     = "cache:events:"
	ListCachePrefix = CachePrefix + "list:"
	ItemCachePrefix = CachePrefix + "item:"

	// CacheGenerationKey counts purges. A response computed while the
	// generation moved may predate the write that caused the purge, so the
	// cache must not store it.
	CacheGenerationKey = "cache:generation"
)

// CacheGeneration returns the current purge generation; 0 before any purge.
func CacheGeneration(ctx context.Context, rdb redis.StringCmdable) (int64, error) {
	n, err := rdb.Get(ctx, CacheGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// CacheInvalidator drops cached event responses after writes.
type CacheInvalidator struct{ rdb *redis.Client }

func NewCacheInvalidator(rdb *redis.Client) *CacheInvalidator { return &CacheInvalidator{rdb} }

// PurgeEventsList drops every cached listing. Any event write can change
// what any invited user sees, so listings are not purged per subject.
func (ci *CacheInvalidator) PurgeEventsList(ctx context.Context) error {
	return ci.purge(ctx, ListCachePrefix+"*")
}

// PurgeEventItem drops every subject's cached copy of event id.
func (ci *CacheInvalidator) PurgeEventItem(ctx context.Context, id string) error {
	return ci.purge(ctx, ItemCachePrefix+escapeGlob(id)+":*")
}

// PurgeAll drops every cached event response. Profile edits use it since
// a user's name is embedded in every event they created or answered.
func (ci *CacheInvalidator) PurgeAll(ctx context.Context) error {
	return ci.purge(ctx, CachePrefix+"*")
}

func (ci *CacheInvalidator) purge(ctx context.Context, pattern string) error {
	// Bump first: a reader that stores after this point sees the new
	// generation and drops its possibly stale body.
	if err := ci.rdb.Incr(ctx, CacheGenerationKey).Err(); err != nil {
		return err
	}

	iter := ci.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return ci.rdb.Del(ctx, keys...).Err()
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[]\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
