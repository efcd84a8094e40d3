package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencivic/datahub/core"
	"github.com/opencivic/datahub/storage"
)

func newTestCache(t *testing.T) storage.BatchCache {
	t.Helper()
	c, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func batchOf(titles ...string) []*core.Record {
	records := make([]*core.Record, len(titles))
	for i, title := range titles {
		records[i] = &core.Record{
			Category: "news",
			Fields:   map[string]any{"title": title},
		}
	}
	return records
}

func TestPutBatchReadAfterWrite(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.PutBatch("news", batchOf("a", "b"), time.Hour))

	got, ok := c.GetBatch("news")
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].StringField("title"))
}

func TestGetBatchMiss(t *testing.T) {
	c := newTestCache(t)

	_, ok := c.GetBatch("never-stored")
	assert.False(t, ok)
}

func TestPutBatchReplacesPrevious(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.PutBatch("news", batchOf("old"), time.Hour))
	require.NoError(t, c.PutBatch("news", batchOf("new", "newer"), time.Hour))

	got, ok := c.GetBatch("news")
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].StringField("title"))
}

func TestPutBatchTTLExpiry(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.PutBatch("news", batchOf("fleeting"), 10*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	_, ok := c.GetBatch("news")
	assert.False(t, ok)
}

func TestPutBatchEmpty(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.PutBatch("news", nil, time.Hour))

	got, ok := c.GetBatch("news")
	require.True(t, ok)
	assert.Empty(t, got)
}
