package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// TagCache keeps each owner's tag list in Redis. Every failure degrades to
// a cache miss; the store stays the source of truth.
//
// Each owner also has a generation counter that Evict bumps. Get reports
// the generation it saw and Set only writes when it is still current, so a
// snapshot read before a write can never land after that write's eviction.
type TagCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewTagCache creates a Redis-backed tag cache. A non-positive ttl keeps
// entries until they are evicted.
func NewTagCache(client *redis.Client, ttl time.Duration) *TagCache {
	if client == nil {
		panic("cache.NewTagCache: redis client is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &TagCache{redis: client, ttl: ttl}
}

var errStaleGeneration = errors.New("tags generation changed")

func tagsCacheKey(ownerID string) string {
	return "teamflow:tags:" + ownerID
}

// Generation keys carry no TTL: expiring one would reset it to zero and let
// an old snapshot match again.
func tagsGenKey(ownerID string) string {
	return "teamflow:tags:gen:" + ownerID
}

func parseGen(v interface{}) (uint64, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, errors.New("unexpected generation type")
	}
	return strconv.ParseUint(s, 10, 64)
}

// Get returns the cached tags and the owner's current generation. The
// generation is meaningful on a miss too; pass it back to Set.
func (c *TagCache) Get(ctx context.Context, ownerID string) ([]string, uint64, bool) {
	vals, err := c.redis.MGet(ctx, tagsGenKey(ownerID), tagsCacheKey(ownerID)).Result()
	if err != nil || len(vals) != 2 {
		log.WithError(err).WithField("user", ownerID).Warn("failed to load tags cache entry")
		return nil, 0, false
	}
	gen, err := parseGen(vals[0])
	if err != nil {
		log.WithError(err).WithField("user", ownerID).Warn("corrupt tags generation")
		return nil, 0, false
	}
	raw, ok := vals[1].(string)
	if !ok {
		return nil, gen, false
	}
	var tags []string
	if err := sonic.UnmarshalString(raw, &tags); err != nil {
		log.WithError(err).WithField("user", ownerID).Warn("dropping corrupt tags cache entry")
		_ = c.redis.Del(ctx, tagsCacheKey(ownerID)).Err()
		return nil, gen, false
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, gen, true
}

// Set stores tags for the owner if no eviction happened since the Get that
// returned gen. A lost race is silently dropped.
func (c *TagCache) Set(ctx context.Context, ownerID string, gen uint64, tags []string) {
	if tags == nil {
		tags = []string{}
	}
	data, err := sonic.Marshal(tags)
	if err != nil {
		log.WithError(err).WithField("user", ownerID).Error("failed to marshal tags cache payload")
		return
	}

	genKey := tagsGenKey(ownerID)
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, tagsCacheKey(ownerID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		log.WithField("user", ownerID).Debug("tags cache entry superseded by a write")
	default:
		log.WithError(err).WithField("user", ownerID).Error("failed to store tags cache entry")
	}
}

// Evict drops the owner's entry and invalidates snapshots taken before it.
func (c *TagCache) Evict(ctx context.Context, ownerID string) {
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, tagsGenKey(ownerID))
		pipe.Del(ctx, tagsCacheKey(ownerID))
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("user", ownerID).Error("failed to delete tags cache entry")
	}
}
