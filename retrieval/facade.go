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


package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/opencivic/datahub/core"
	"github.com/opencivic/datahub/embed"
	"github.com/opencivic/datahub/metrics"
	"github.com/opencivic/datahub/policy"
	"github.com/opencivic/datahub/storage"
)

const defaultQueryLimit = 1000

// Facade serves cached-first reads and similarity queries. All operations
// are read-only and never mutate stored state.
type Facade struct {
	policies   *policy.Table
	durable    storage.DurableStore
	documents  storage.DocumentStore
	vectors    storage.VectorIndex
	cache      storage.BatchCache
	embedder   embed.Embedder
	metrics    metrics.Sink
	queryLimit int
	logger     *slog.Logger
}

// Option configures a Facade.
type Option func(*Facade) error

// WithDurableStore configures the durable backend for fallback reads.
func WithDurableStore(s storage.DurableStore) Option {
	return func(f *Facade) error {
		f.durable = s
		return nil
	}
}

// WithDocumentStore configures the document backend for fallback reads.
func WithDocumentStore(s storage.DocumentStore) Option {
	return func(f *Facade) error {
		f.documents = s
		return nil
	}
}

// WithVectorIndex configures the similarity index for SearchSimilar.
func WithVectorIndex(v storage.VectorIndex) Option {
	return func(f *Facade) error {
		f.vectors = v
		return nil
	}
}

// WithBatchCache configures the cache consulted first by Retrieve.
func WithBatchCache(c storage.BatchCache) Option {
	return func(f *Facade) error {
		f.cache = c
		return nil
	}
}

// WithEmbedder configures the embedding service used for query embedding.
func WithEmbedder(e embed.Embedder) Option {
	return func(f *Facade) error {
		f.embedder = e
		return nil
	}
}

// WithMetrics sets the metrics sink.
// Default is metrics.Noop.
func WithMetrics(s metrics.Sink) Option {
	return func(f *Facade) error {
		if s == nil {
			s = metrics.Noop{}
		}
		f.metrics = s
		return nil
	}
}

// WithQueryLimit caps the number of records returned by fallback reads.
func WithQueryLimit(limit int) Option {
	return func(f *Facade) error {
		if limit > 0 {
			f.queryLimit = limit
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *Facade) error {
		if logger == nil {
			logger = slog.Default()
		}
		f.logger = logger
		return nil
	}
}

// NewFacade creates a retrieval facade. The policy table is required; all
// backends are optional and reads against an unconfigured backend return
// empty results rather than failing.
func NewFacade(policies *policy.Table, opts ...Option) (*Facade, error) {
	if policies == nil {
		return nil, ErrPolicyTableRequired
	}

	f := &Facade{
		policies:   policies,
		metrics:    metrics.Noop{},
		queryLimit: defaultQueryLimit,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Retrieve returns the records stored for a category. With useCache it
// consults the cache entry first and returns it on a hit; otherwise it
// falls back to the category's primary backend (durable, then document for
// "both" policies).
func (f *Facade) Retrieve(ctx context.Context, category string, useCache bool) ([]*core.Record, error) {
	if useCache && f.cache != nil {
		start := time.Now()
		if records, ok := f.cache.GetBatch(category); ok {
			f.metrics.RecordRead(core.LocationCache, category, time.Since(start))
			f.logger.Debug("cache hit", "category", category, "records", len(records))
			return records, nil
		}
	}

	pol := f.policies.Resolve(category)
	switch pol.Primary {
	case core.PrimaryDurable:
		return f.readDurable(ctx, category)
	case core.PrimaryDocument:
		return f.readDocument(ctx, category)
	case core.PrimaryBoth:
		records, err := f.readDurable(ctx, category)
		if err == nil && len(records) > 0 {
			return records, nil
		}
		if err != nil {
			f.logger.Warn("durable read failed, falling back to document store", "category", category, "err", err)
		}
		return f.readDocument(ctx, category)
	default:
		return []*core.Record{}, nil
	}
}

// SearchSimilar embeds the query and returns the k nearest entries from the
// similarity index, sorted by descending relevance (1 - distance). An
// unconfigured similarity backend yields an empty list, not an error.
func (f *Facade) SearchSimilar(ctx context.Context, query string, k int) ([]core.SearchMatch, error) {
	if f.vectors == nil || f.embedder == nil {
		return []core.SearchMatch{}, nil
	}
	if k <= 0 {
		k = 10
	}

	vector, err := f.embedder.EmbedText(ctx, query)
	if err != nil {
		f.logger.Error("query embedding failed", "err", err)
		return nil, err
	}

	start := time.Now()
	matches, err := f.vectors.Query(ctx, vector, k)
	if err != nil {
		f.metrics.RecordError(core.LocationVector, "", "query_error")
		return nil, err
	}
	f.metrics.RecordRead(core.LocationVector, "", time.Since(start))

	// Query returns matches closest first, which is already descending
	// relevance order.
	return matches, nil
}

func (f *Facade) readDurable(ctx context.Context, category string) ([]*core.Record, error) {
	if f.durable == nil {
		return []*core.Record{}, nil
	}
	start := time.Now()
	records, err := f.durable.QueryRecent(ctx, category, f.queryLimit)
	if err != nil {
		f.metrics.RecordError(core.LocationDurable, category, "read_error")
		return nil, err
	}
	f.metrics.RecordRead(core.LocationDurable, category, time.Since(start))
	return records, nil
}

func (f *Facade) readDocument(ctx context.Context, category string) ([]*core.Record, error) {
	if f.documents == nil {
		return []*core.Record{}, nil
	}
	start := time.Now()
	records, err := f.documents.List(ctx, category, f.queryLimit)
	if err != nil {
		f.metrics.RecordError(core.LocationDocument, category, "read_error")
		return nil, err
	}
	f.metrics.RecordRead(core.LocationDocument, category, time.Since(start))
	return records, nil
}
