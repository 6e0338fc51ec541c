package guard

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldDeleted = "d"
	fieldLocked  = "l"
	fieldReset   = "r"
)

// RedisCache caches account facts in Redis for a short TTL in front of a Source.
// Facts are cached rather than the decision so a lock expiring mid-TTL is
// observed on the next check. Redis failures fall through to the Source.
type RedisCache struct {
	next   Source
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

// NewRedisCache wraps next. ttl <= 0 disables caching.
func NewRedisCache(next Source, rdb *redis.Client, ttl time.Duration, log *slog.Logger) *RedisCache {
	if log == nil {
		log = slog.Default()
	}
	return &RedisCache{next: next, rdb: rdb, ttl: ttl, prefix: "sessiond:guard:", log: log}
}

func (c *RedisCache) key(subjectID string) string { return c.prefix + subjectID }

func (c *RedisCache) Check(ctx context.Context, subjectID string, now time.Time) (Status, error) {
	f, err := c.Facts(ctx, subjectID)
	if err != nil {
		return StatusActive, err
	}
	return f.Status(now), nil
}

func (c *RedisCache) Facts(ctx context.Context, subjectID string) (Facts, error) {
	if c.rdb == nil || c.ttl <= 0 {
		return c.next.Facts(ctx, subjectID)
	}

	vals, err := c.rdb.HGetAll(ctx, c.key(subjectID)).Result()
	if err != nil {
		c.log.Warn("guard.cache.read.fail", "err", err)
	} else if f, ok := decodeFacts(vals); ok {
		return f, nil
	}

	f, err := c.next.Facts(ctx, subjectID)
	if err != nil {
		return Facts{}, err
	}

	if _, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, c.key(subjectID), encodeFacts(f))
		p.Expire(ctx, c.key(subjectID), c.ttl)
		return nil
	}); err != nil {
		c.log.Warn("guard.cache.write.fail", "err", err)
	}
	return f, nil
}

// Invalidate drops the cached facts for a subject.
func (c *RedisCache) Invalidate(ctx context.Context, subjectID string) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, c.key(subjectID)).Err()
}

func encodeFacts(f Facts) map[string]any {
	var locked int64
	if !f.LockedUntil.IsZero() {
		locked = f.LockedUntil.UnixMilli()
	}
	return map[string]any{
		fieldDeleted: strconv.FormatBool(f.Deleted),
		fieldLocked:  strconv.FormatInt(locked, 10),
		fieldReset:   strconv.FormatBool(f.PasswordResetRequired),
	}
}

func decodeFacts(vals map[string]string) (Facts, bool) {
	if len(vals) == 0 {
		return Facts{}, false
	}
	deleted, err := strconv.ParseBool(vals[fieldDeleted])
	if err != nil {
		return Facts{}, false
	}
	reset, err := strconv.ParseBool(vals[fieldReset])
	if err != nil {
		return Facts{}, false
	}
	lockedMS, err := strconv.ParseInt(vals[fieldLocked], 10, 64)
	if err != nil {
		return Facts{}, false
	}
	f := Facts{Deleted: deleted, PasswordResetRequired: reset}
	if lockedMS > 0 {
		f.LockedUntil = time.UnixMilli(lockedMS).UTC()
	}
	return f, true
}
