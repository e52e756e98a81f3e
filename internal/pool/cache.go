package pool

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Cache is the process-wide in-memory mapping from tenant key to its live
// pool. It holds at most one live DB per key. Pure lookup/mutation, no I/O.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *zap.Logger
}

type entry struct {
	db       DB
	lastUsed time.Time
}

// NewCache creates an empty pool cache.
func NewCache(logger *zap.Logger) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Get returns the cached pool for key, touching its idle clock.
func (c *Cache) Get(key string) (DB, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e.lastUsed = time.Now()
	return e.db, true
}

// Put inserts db under key and returns the pool callers must use. When a
// racing writer already cached a pool for the same key, the existing pool
// wins and db is closed; both necessarily target the identical store, so
// discarding the loser is harmless.
func (c *Cache) Put(key string, db DB) DB {
	c.mu.Lock()

	if existing, ok := c.entries[key]; ok && existing.db != db {
		existing.lastUsed = time.Now()
		winner := existing.db
		c.mu.Unlock()
		db.Close()
		c.logger.Debug("discarded redundant pool from provisioning race",
			zap.String("tenant_key", key))
		return winner
	}

	c.entries[key] = &entry{db: db, lastUsed: time.Now()}
	c.mu.Unlock()
	return db
}

// RemoveAndClose evicts key and fully closes its pool before returning, so a
// subsequent Get is guaranteed to miss rather than return a closed handle.
func (c *Cache) RemoveAndClose(key string) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	e.db.Close()
	return true
}

// Len returns the number of cached pools.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep closes and evicts every pool idle for longer than idleFor and
// returns how many were reaped.
func (c *Cache) Sweep(idleFor time.Duration) int {
	cutoff := time.Now().Add(-idleFor)

	c.mu.Lock()
	var victims []DB
	for key, e := range c.entries {
		if e.lastUsed.Before(cutoff) {
			victims = append(victims, e.db)
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	for _, db := range victims {
		db.Close()
	}
	return len(victims)
}

// CloseAll evicts and closes every cached pool. Used on shutdown.
func (c *Cache) CloseAll() {
	c.mu.Lock()
	victims := make([]DB, 0, len(c.entries))
	for _, e := range c.entries {
		victims = append(victims, e.db)
	}
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	for _, db := range victims {
		db.Close()
	}
}
