package reputation

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// RedisCache is a Cache backed by a shared Redis, so multiple engine
// instances behind one load balancer converge on the same reputations.
// Records are stored as JSON under `rep:<patternID>` with a TTL, layered
// over a small local read-through cache to keep the fast path off the
// network on repeat lookups.
type RedisCache struct {
	rdb   *redis.Client
	local *MemoryCache
	ttl   time.Duration
}

// NewRedisCache connects to Redis and wraps it in the Cache interface.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	log.Printf("[Reputation] Connected to Redis at %s", addr)
	return &RedisCache{
		rdb:   rdb,
		local: NewMemoryCache(),
		ttl:   7 * 24 * time.Hour,
	}, nil
}

func (c *RedisCache) key(patternID string) string {
	return "rep:" + patternID
}

// Get checks the local cache first, then Redis. A Redis error degrades to a
// miss: the request continues without reputation, never fails.
func (c *RedisCache) Get(patternID string) (models.PatternReputation, bool) {
	if rep, ok := c.local.Get(patternID); ok {
		return rep, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	raw, err := c.rdb.Get(ctx, c.key(patternID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[Reputation] Redis get failed for %s: %v", patternID, err)
		}
		return models.PatternReputation{}, false
	}

	var rep models.PatternReputation
	if err := json.Unmarshal(raw, &rep); err != nil {
		log.Printf("[Reputation] Corrupt record for %s: %v", patternID, err)
		return models.PatternReputation{}, false
	}
	c.local.Set(rep)
	return rep, true
}

// Set writes through to Redis and the local cache.
func (c *RedisCache) Set(rep models.PatternReputation) {
	c.local.Set(rep)

	raw, err := json.Marshal(rep)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := c.rdb.Set(ctx, c.key(rep.PatternID), raw, c.ttl).Err(); err != nil {
		log.Printf("[Reputation] Redis set failed for %s: %v", rep.PatternID, err)
	}
}

// TryFastAllow reports whether the pattern qualifies for the fast allow path.
func (c *RedisCache) TryFastAllow(patternID string) bool {
	rep, ok := c.Get(patternID)
	return ok && rep.CanTriggerFastAllow()
}

// TryFastAbort reports whether the pattern qualifies for the fast abort path.
func (c *RedisCache) TryFastAbort(patternID string) bool {
	rep, ok := c.Get(patternID)
	return ok && rep.CanTriggerFastAbort()
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
