// Package reputation closes the learning loop: verdicts observed on past
// requests bias future requests that match the same client pattern.
//
// The in-memory cache is the hot path — the fast-path contributor consults
// it on every request, so reads must never contend with the maintenance
// writer for long. Long-term history lives behind the TimeSeriesProvider
// interface (Postgres reference implementation in this package); a shared
// Redis-backed store is available for multi-instance deployments.
package reputation

import (
	"sync"

	"github.com/rawblock/sentinel-engine/pkg/models"
)

// Cache is the interface the orchestrator consumes. Reads are lock-free in
// spirit: the implementation uses an RWMutex so concurrent readers never
// block each other.
type Cache interface {
	Get(patternID string) (models.PatternReputation, bool)
	Set(rep models.PatternReputation)
	TryFastAllow(patternID string) bool
	TryFastAbort(patternID string) bool
}

// MemoryCache is the default in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	records map[string]models.PatternReputation
}

// NewMemoryCache creates an empty reputation cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{records: make(map[string]models.PatternReputation)}
}

// Get returns the reputation record for a pattern, if present.
func (c *MemoryCache) Get(patternID string) (models.PatternReputation, bool) {
	c.mu.RLock()
	rep, ok := c.records[patternID]
	c.mu.RUnlock()
	return rep, ok
}

// Set stores or replaces a record. State transitions are single-step; the
// caller provides the complete new record.
func (c *MemoryCache) Set(rep models.PatternReputation) {
	c.mu.Lock()
	c.records[rep.PatternID] = rep
	c.mu.Unlock()
}

// TryFastAllow reports whether the pattern's record is strong enough for the
// fast-path allow exit.
func (c *MemoryCache) TryFastAllow(patternID string) bool {
	rep, ok := c.Get(patternID)
	return ok && rep.CanTriggerFastAllow()
}

// TryFastAbort reports whether the pattern's record is strong enough for the
// fast-path abort exit.
func (c *MemoryCache) TryFastAbort(patternID string) bool {
	rep, ok := c.Get(patternID)
	return ok && rep.CanTriggerFastAbort()
}

// Len returns the number of cached patterns.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}
