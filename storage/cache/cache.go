package cache

import (
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/opencivic/datahub/core"
	"github.com/opencivic/datahub/storage"
)

const (
	defaultMaxRecords  = 1 << 16
	defaultNumCounters = 10 * defaultMaxRecords
)

// Cache is an in-process batch cache on ristretto. One entry holds the full
// processed batch for a category; cost accounting is per record.
type Cache struct {
	inner  *ristretto.Cache[string, []*core.Record]
	logger *slog.Logger
}

var _ storage.BatchCache = (*Cache)(nil)

// New creates a batch cache.
func New() (storage.BatchCache, error) {
	inner, err := ristretto.NewCache(&ristretto.Config[string, []*core.Record]{
		NumCounters: defaultNumCounters,
		MaxCost:     defaultMaxRecords,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{
		inner:  inner,
		logger: slog.Default().With("backend", "cache"),
	}, nil
}

// PutBatch caches the batch under the category for the given TTL.
// The write is synchronous: a following GetBatch sees the entry.
func (c *Cache) PutBatch(category string, records []*core.Record, ttl time.Duration) error {
	cost := int64(len(records))
	if cost == 0 {
		cost = 1
	}
	c.inner.SetWithTTL(category, records, cost, ttl)
	c.inner.Wait()
	return nil
}

// GetBatch returns the cached batch for the category, or false on a miss.
func (c *Cache) GetBatch(category string) ([]*core.Record, bool) {
	return c.inner.Get(category)
}

// Close releases the cache's resources.
func (c *Cache) Close() error {
	c.inner.Close()
	return nil
}
