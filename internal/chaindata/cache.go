package chaindata

import (
	"sync"
	"time"

	"eth-trace-lab/internal/domain"
)

// DefaultCacheTTL keeps responses long enough to absorb repeated lookups of
// the same address across nodes and incidents.
const DefaultCacheTTL = 10 * time.Minute

type cacheEntry struct {
	txs     []domain.Transaction
	storedAt time.Time
}

// Cache is a TTL response cache keyed by (address, startBlock). It is shared
// across incidents and safe for concurrent use. Entries expire passively;
// nothing is invalidated early.
type Cache struct {
	mu   sync.RWMutex
	ttl  time.Duration
	data map[cacheKey]cacheEntry
}

type cacheKey struct {
	address    string
	startBlock int64
}

// NewCache creates a cache with the given TTL. Zero or negative TTL falls
// back to DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:  ttl,
		data: make(map[cacheKey]cacheEntry),
	}
}

// Get returns the cached transactions for the key if present and fresh.
func (c *Cache) Get(address string, startBlock int64) ([]domain.Transaction, bool) {
	c.mu.RLock()
	entry, ok := c.data[cacheKey{address, startBlock}]
	c.mu.RUnlock()

	if !ok || time.Since(entry.storedAt) > c.ttl {
		return nil, false
	}

	txs := make([]domain.Transaction, len(entry.txs))
	copy(txs, entry.txs)
	return txs, true
}

// Put stores transactions for the key.
func (c *Cache) Put(address string, startBlock int64, txs []domain.Transaction) {
	stored := make([]domain.Transaction, len(txs))
	copy(stored, txs)

	c.mu.Lock()
	c.data[cacheKey{address, startBlock}] = cacheEntry{txs: stored, storedAt: time.Now()}
	c.mu.Unlock()
}

// Len reports the number of entries, fresh or expired.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
