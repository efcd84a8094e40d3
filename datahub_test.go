package datahub

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencivic/datahub/core"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub, err := NewHub("", WithInMemory(), WithoutEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { hub.Close() })
	return hub
}

func TestNewHub(t *testing.T) {
	t.Run("on disk", func(t *testing.T) {
		dataDir := filepath.Join(t.TempDir(), "hub")
		hub, err := NewHub(dataDir, WithoutEmbedder())
		require.NoError(t, err)
		require.NotNil(t, hub)
		defer hub.Close()

		assert.NotNil(t, hub.Policies())
		assert.NotNil(t, hub.Metrics())
	})

	t.Run("in memory", func(t *testing.T) {
		hub := newTestHub(t)
		assert.NotNil(t, hub.Policies())
	})

	t.Run("missing policy file", func(t *testing.T) {
		_, err := NewHub("", WithInMemory(), WithoutEmbedder(),
			WithPolicyFile(filepath.Join(t.TempDir(), "absent.yaml")))
		assert.Error(t, err)
	})
}

func TestHubStoreRetrieveRoundTrip(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	rtr, err := hub.NewRouter()
	require.NoError(t, err)
	defer rtr.Release()

	facade, err := hub.NewFacade()
	require.NoError(t, err)

	batch := []core.RawRecord{{
		"category":     "news",
		"extracted_at": "2026-01-15T10:00:00Z",
		"title":        "Budget hearing",
		"content":      "The council approved the updated budget.",
		"description":  "Budget update",
	}}
	outcome := rtr.Store(ctx, "news", batch)
	require.True(t, outcome.Success)
	assert.Equal(t, core.GradeHigh, outcome.Grade)
	assert.True(t, outcome.StoredAt(core.LocationDurable))
	assert.True(t, outcome.StoredAt(core.LocationCache))

	// Cached read.
	records, err := facade.Retrieve(ctx, "news", true)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Budget hearing", records[0].StringField("title"))

	// Primary read.
	records, err = facade.Retrieve(ctx, "news", false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Budget hearing", records[0].StringField("title"))
}

func TestHubStoreResubmissionIsIdempotent(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	rtr, err := hub.NewRouter()
	require.NoError(t, err)
	defer rtr.Release()

	batch := []core.RawRecord{
		{"type": "news", "title": "A", "content": "B"},
		{"type": "news", "title": "C", "content": "D"},
	}

	first := rtr.Store(ctx, "news", batch)
	require.True(t, first.Success)
	require.Equal(t, 2, first.RecordCount)

	count, err := hub.durable.CountByCategory(ctx, "news")
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	// Resubmitting the identical batch upserts on (category, content_hash)
	// rather than inserting new rows.
	second := rtr.Store(ctx, "news", batch)
	require.True(t, second.Success)
	assert.Equal(t, 2, second.RecordCount)

	count, err = hub.durable.CountByCategory(ctx, "news")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	records, err := hub.durable.QueryRecent(ctx, "news", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	hashes := make(map[string]bool, len(records))
	for _, rec := range records {
		hashes[rec.ContentHash] = true
	}
	assert.Len(t, hashes, 2)
}

func TestHubSearchWithoutEmbedder(t *testing.T) {
	hub := newTestHub(t)

	facade, err := hub.NewFacade()
	require.NoError(t, err)

	matches, err := facade.SearchSimilar(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestHubProcessor(t *testing.T) {
	hub := newTestHub(t)

	p, err := hub.NewProcessor()
	require.NoError(t, err)
	assert.NotNil(t, p)
}
