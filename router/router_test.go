// Copyright 2025 OpenCivic Works
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencivic/datahub/core"
	"github.com/opencivic/datahub/embed/mock"
	"github.com/opencivic/datahub/pipeline"
	"github.com/opencivic/datahub/policy"
	"github.com/opencivic/datahub/storage"
)

// stubDurable implements storage.DurableStore for testing.
type stubDurable struct {
	mu       sync.Mutex
	saved    []*core.Record
	failures int // fail this many Save calls before succeeding
	alwaysOn bool
}

func (s *stubDurable) Save(ctx context.Context, category string, record *core.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alwaysOn || s.failures > 0 {
		if !s.alwaysOn {
			s.failures--
		}
		return 0, errors.New("durable down")
	}
	s.saved = append(s.saved, record)
	return int64(len(s.saved)), nil
}

func (s *stubDurable) QueryRecent(ctx context.Context, category string, limit int) ([]*core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*core.Record{}, s.saved...), nil
}

func (s *stubDurable) CountByCategory(ctx context.Context, category string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.saved)), nil
}

func (s *stubDurable) Close() error { return nil }

func (s *stubDurable) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

// stubDocuments implements storage.DocumentStore for testing.
type stubDocuments struct {
	mu          sync.Mutex
	docs        map[string]*core.Record // collection/docID
	shouldError bool
	expired     map[string]int
}

func newStubDocuments() *stubDocuments {
	return &stubDocuments{docs: make(map[string]*core.Record), expired: make(map[string]int)}
}

func (s *stubDocuments) Put(ctx context.Context, collection, docID string, record *core.Record, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shouldError {
		return errors.New("documents down")
	}
	s.docs[collection+"/"+docID] = record
	return nil
}

func (s *stubDocuments) Get(ctx context.Context, collection, docID string) (*core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[collection+"/"+docID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec, nil
}

func (s *stubDocuments) List(ctx context.Context, collection string, limit int) ([]*core.Record, error) {
	return nil, nil
}

func (s *stubDocuments) DeleteExpired(ctx context.Context, collection string, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired[collection], nil
}

func (s *stubDocuments) Collections(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.expired))
	for c := range s.expired {
		out = append(out, c)
	}
	return out, nil
}

func (s *stubDocuments) Close() error { return nil }

func (s *stubDocuments) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// stubVectors implements storage.VectorIndex for testing.
type stubVectors struct {
	mu          sync.Mutex
	units       map[string]core.EmbeddingUnit
	shouldError bool
}

func newStubVectors() *stubVectors {
	return &stubVectors{units: make(map[string]core.EmbeddingUnit)}
}

func (s *stubVectors) Upsert(ctx context.Context, units []core.EmbeddingUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shouldError {
		return errors.New("vectors down")
	}
	for _, u := range units {
		s.units[u.ID] = u
	}
	return nil
}

func (s *stubVectors) Query(ctx context.Context, vector []float32, k int) ([]core.SearchMatch, error) {
	return nil, nil
}

func (s *stubVectors) Close() error { return nil }

func (s *stubVectors) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.units)
}

// stubCache implements storage.BatchCache for testing.
type stubCache struct {
	mu      sync.Mutex
	batches map[string][]*core.Record
}

func newStubCache() *stubCache {
	return &stubCache{batches: make(map[string][]*core.Record)}
}

func (s *stubCache) PutBatch(category string, records []*core.Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[category] = records
	return nil
}

func (s *stubCache) GetBatch(category string) ([]*core.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.batches[category]
	return records, ok
}

func (s *stubCache) Close() error { return nil }

// faultyProcessor simulates a pipeline fault.
type faultyProcessor struct{}

func (faultyProcessor) Process(category string, batch []core.RawRecord) (*pipeline.Result, error) {
	return nil, errors.New("pipeline fault")
}

func rawBatch(titles ...string) []core.RawRecord {
	batch := make([]core.RawRecord, len(titles))
	for i, title := range titles {
		batch[i] = core.RawRecord{
			"category":     "news",
			"extracted_at": "2026-01-15T10:00:00Z",
			"title":        title,
			"content":      "Content for " + title,
			"description":  "Description for " + title,
		}
	}
	return batch
}

func newTestTable(t *testing.T, opts ...policy.Option) *policy.Table {
	t.Helper()
	table, err := policy.NewTable(opts...)
	require.NoError(t, err)
	return table
}

func newTestRouter(t *testing.T, table *policy.Table, opts ...Option) *Router {
	t.Helper()
	r, err := NewRouter(table, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r
}

func TestStoreFansOutPerPolicy(t *testing.T) {
	durable := &stubDurable{}
	vectors := newStubVectors()
	cache := newStubCache()

	r := newTestRouter(t, newTestTable(t),
		WithDurableStore(durable),
		WithVectorIndex(vectors),
		WithBatchCache(cache),
		WithEmbedder(mock.NewEmbedder()),
	)

	outcome := r.Store(context.Background(), "news", rawBatch("one", "two"))

	assert.True(t, outcome.Success)
	assert.Equal(t, []string{core.LocationCache, core.LocationDurable, core.LocationVector}, outcome.StoredIn)
	assert.Equal(t, core.GradeHigh, outcome.Grade)
	assert.Equal(t, 2, outcome.RecordCount)
	assert.Empty(t, outcome.Errors)
	assert.NotEmpty(t, outcome.BatchID)

	assert.Equal(t, 2, durable.count())
	assert.Equal(t, 2, vectors.count())
	cached, ok := cache.GetBatch("news")
	require.True(t, ok)
	assert.Len(t, cached, 2)
}

func TestStorePartialFailureIsolation(t *testing.T) {
	durable := &stubDurable{alwaysOn: true}
	vectors := newStubVectors()
	cache := newStubCache()

	r := newTestRouter(t, newTestTable(t),
		WithDurableStore(durable),
		WithVectorIndex(vectors),
		WithBatchCache(cache),
		WithEmbedder(mock.NewEmbedder()),
		WithRetry(1, time.Millisecond),
	)

	outcome := r.Store(context.Background(), "news", rawBatch("one"))

	// The durable failure is reported but does not block the others.
	assert.True(t, outcome.Success)
	assert.Equal(t, []string{core.LocationCache, core.LocationVector}, outcome.StoredIn)
	require.Len(t, outcome.Errors, 1)
	assert.Contains(t, outcome.Errors[0], "durable")
	assert.Equal(t, 1, vectors.count())
}

func TestStoreAllBackendsFail(t *testing.T) {
	durable := &stubDurable{alwaysOn: true}

	table := newTestTable(t, policy.WithPolicy("news", core.Policy{
		Primary:     core.PrimaryDurable,
		Criticality: 6,
	}))
	r := newTestRouter(t, table,
		WithDurableStore(durable),
		WithRetry(1, time.Millisecond),
	)

	outcome := r.Store(context.Background(), "news", rawBatch("one"))

	assert.False(t, outcome.Success)
	assert.Empty(t, outcome.StoredIn)
	assert.NotEmpty(t, outcome.Errors)
	// Data quality is still reported even when nothing was stored.
	assert.Equal(t, core.GradeHigh, outcome.Grade)
	assert.Equal(t, 1, outcome.RecordCount)
}

func TestStoreMandatedBackendMissing(t *testing.T) {
	// "news" mandates the durable store, which is not configured.
	r := newTestRouter(t, newTestTable(t), WithBatchCache(newStubCache()))

	outcome := r.Store(context.Background(), "news", rawBatch("one"))

	assert.False(t, outcome.Success)
	assert.Empty(t, outcome.StoredIn)
	require.NotEmpty(t, outcome.Errors)
	assert.Contains(t, outcome.Errors[len(outcome.Errors)-1], ErrDurableStoreRequired.Error())
}

func TestStoreProcessorFaultAbortsBeforeWrites(t *testing.T) {
	durable := &stubDurable{}
	r := newTestRouter(t, newTestTable(t),
		WithDurableStore(durable),
		WithProcessor(faultyProcessor{}),
	)

	outcome := r.Store(context.Background(), "news", rawBatch("one"))

	assert.False(t, outcome.Success)
	assert.Equal(t, core.GradeInvalid, outcome.Grade)
	require.Len(t, outcome.Errors, 1)
	assert.Contains(t, outcome.Errors[0], "processing failed")
	assert.Zero(t, durable.count())
}

func TestStoreNoSurvivingRecords(t *testing.T) {
	durable := &stubDurable{}
	r := newTestRouter(t, newTestTable(t), WithDurableStore(durable))

	// The record carries an unparseable date; validation drops it.
	outcome := r.Store(context.Background(), "news", []core.RawRecord{
		{"title": "orphan", "published_date": "never"},
	})

	assert.False(t, outcome.Success)
	assert.Zero(t, outcome.RecordCount)
	assert.NotEmpty(t, outcome.Errors)
	assert.Zero(t, durable.count())
}

func TestStoreSkipsUnconfiguredOptionalBackends(t *testing.T) {
	// "news" wants similarity and cache, but neither is configured. Only
	// the mandated durable store blocks the call when missing.
	durable := &stubDurable{}
	r := newTestRouter(t, newTestTable(t), WithDurableStore(durable))

	outcome := r.Store(context.Background(), "news", rawBatch("one"))

	assert.True(t, outcome.Success)
	assert.Equal(t, []string{core.LocationDurable}, outcome.StoredIn)
	assert.Empty(t, outcome.Errors)
}

func TestStoreDocumentCategoryUsesExpiry(t *testing.T) {
	docs := newStubDocuments()
	r := newTestRouter(t, newTestTable(t), WithDocumentStore(docs), WithBatchCache(newStubCache()))

	batch := rawBatch("alert")
	batch[0]["category"] = "traffic_alert"
	outcome := r.Store(context.Background(), "traffic_alert", batch)

	assert.True(t, outcome.Success)
	assert.Equal(t, []string{core.LocationCache, core.LocationDocument}, outcome.StoredIn)
	assert.Equal(t, 1, docs.count())
}

func TestStoreSimilarityOnlyRequiresVectorPath(t *testing.T) {
	table := newTestTable(t, policy.WithPolicy("embeddings_only", core.Policy{
		Primary:     core.PrimaryNone,
		Similarity:  true,
		Criticality: 4,
	}))

	// No vector index configured: the call must fail loudly, since no
	// backend could ever make it succeed.
	r := newTestRouter(t, table, WithDurableStore(&stubDurable{}))

	batch := rawBatch("doc")
	batch[0]["category"] = "embeddings_only"
	outcome := r.Store(context.Background(), "embeddings_only", batch)

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Errors[len(outcome.Errors)-1], ErrPrimaryUnavailable.Error())
}

func TestStoreRetriesTransientFailures(t *testing.T) {
	durable := &stubDurable{failures: 2}
	r := newTestRouter(t, newTestTable(t),
		WithDurableStore(durable),
		WithRetry(3, time.Millisecond),
	)

	outcome := r.Store(context.Background(), "news", rawBatch("one"))

	assert.True(t, outcome.Success)
	assert.Equal(t, []string{core.LocationDurable}, outcome.StoredIn)
	assert.Empty(t, outcome.Errors)
	assert.Equal(t, 1, durable.count())
}

func TestStoreEmptyBatch(t *testing.T) {
	r := newTestRouter(t, newTestTable(t), WithDurableStore(&stubDurable{}))

	outcome := r.Store(context.Background(), "news", nil)

	assert.False(t, outcome.Success)
	assert.Equal(t, core.GradeInvalid, outcome.Grade)
	assert.Empty(t, outcome.Errors)
}

func TestCleanupExpired(t *testing.T) {
	docs := newStubDocuments()
	docs.expired["traffic_alert"] = 3
	docs.expired["notices"] = 0

	r := newTestRouter(t, newTestTable(t), WithDocumentStore(docs))

	deleted, err := r.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"traffic_alert": 3}, deleted)
}

func TestCleanupExpiredWithoutDocumentStore(t *testing.T) {
	r := newTestRouter(t, newTestTable(t))

	deleted, err := r.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestNewRouterRequiresPolicyTable(t *testing.T) {
	_, err := NewRouter(nil)
	assert.ErrorIs(t, err, ErrPolicyTableRequired)
}

func TestStorageOutcomeStoredAt(t *testing.T) {
	outcome := &core.StorageOutcome{StoredIn: []string{core.LocationDurable, core.LocationCache}}
	assert.True(t, outcome.StoredAt(core.LocationDurable))
	assert.False(t, outcome.StoredAt(core.LocationVector))
}
