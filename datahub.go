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


package datahub

import (
	"log/slog"
	"path/filepath"

	"github.com/opencivic/datahub/embed"
	"github.com/opencivic/datahub/embed/openai"
	"github.com/opencivic/datahub/metrics"
	"github.com/opencivic/datahub/pipeline"
	"github.com/opencivic/datahub/policy"
	"github.com/opencivic/datahub/retrieval"
	"github.com/opencivic/datahub/router"
	"github.com/opencivic/datahub/storage"
	"github.com/opencivic/datahub/storage/badger"
	"github.com/opencivic/datahub/storage/cache"
	"github.com/opencivic/datahub/storage/sqlite"
)

// Hub wires every backend behind a single handle: the SQLite durable
// store, the badger document store and vector index, the ristretto
// batch cache, the policy table, the text embedder and the metrics
// sink. Callers build a Router and a Facade from the Hub rather than
// assembling backends by hand.
type Hub struct {
	durable  storage.DurableStore
	backend  *badger.Backend
	docs     storage.DocumentStore
	vectors  storage.VectorIndex
	batches  storage.BatchCache
	embedder embed.Embedder
	policies *policy.Table
	metrics  *metrics.Memory
	logger   *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*hubOptions)

type hubOptions struct {
	embedConfig *embed.Config
	policyFile  string
	inMemory    bool
	noEmbedder  bool
}

// WithEmbeddingConfig overrides the embedding provider settings.
func WithEmbeddingConfig(cfg *embed.Config) HubOption {
	return func(o *hubOptions) {
		o.embedConfig = cfg
	}
}

// WithPolicyFile loads category storage policies from a YAML file on
// top of the built-in defaults.
func WithPolicyFile(path string) HubOption {
	return func(o *hubOptions) {
		o.policyFile = path
	}
}

// WithInMemory keeps all backends in memory. Used by tests.
func WithInMemory() HubOption {
	return func(o *hubOptions) {
		o.inMemory = true
	}
}

// WithoutEmbedder disables the embedding provider. Similarity indexing
// and search are skipped for all categories.
func WithoutEmbedder() HubOption {
	return func(o *hubOptions) {
		o.noEmbedder = true
	}
}

// NewHub opens every backend under dataDir and returns the assembled
// hub. On any error the backends opened so far are closed.
func NewHub(dataDir string, opts ...HubOption) (*Hub, error) {
	options := &hubOptions{
		embedConfig: embed.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	sqlDir := filepath.Join(dataDir, "sql")
	kvPath := filepath.Join(dataDir, "kv")
	if options.inMemory {
		sqlDir = ":memory:"
		kvPath = ""
	}

	durable, err := sqlite.Open(sqlDir)
	if err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(kvPath, options.inMemory)
	if err != nil {
		durable.Close()
		return nil, err
	}

	docs, err := badger.NewDocumentStore(backend)
	if err != nil {
		backend.Close()
		durable.Close()
		return nil, err
	}

	vectors, err := badger.NewVectorIndex(backend)
	if err != nil {
		backend.Close()
		durable.Close()
		return nil, err
	}

	batches, err := cache.New()
	if err != nil {
		backend.Close()
		durable.Close()
		return nil, err
	}

	var embedder embed.Embedder
	if !options.noEmbedder {
		embedder, err = openai.NewEmbedder(options.embedConfig)
		if err != nil {
			batches.Close()
			backend.Close()
			durable.Close()
			return nil, err
		}
	}

	policies, err := policy.NewTable()
	if err != nil {
		batches.Close()
		backend.Close()
		durable.Close()
		return nil, err
	}
	if options.policyFile != "" {
		if err := policies.LoadFile(options.policyFile); err != nil {
			batches.Close()
			backend.Close()
			durable.Close()
			return nil, err
		}
	}

	return &Hub{
		durable:  durable,
		backend:  backend,
		docs:     docs,
		vectors:  vectors,
		batches:  batches,
		embedder: embedder,
		policies: policies,
		metrics:  metrics.NewMemory(),
		logger:   slog.Default(),
	}, nil
}

// Close releases all backends. Safe to call once after all routers and
// facades built from the hub are done.
func (h *Hub) Close() error {
	if err := h.batches.Close(); err != nil {
		h.logger.Error("error closing batch cache", "err", err)
	}
	if err := h.vectors.Close(); err != nil {
		h.logger.Error("error closing vector index", "err", err)
	}
	if err := h.docs.Close(); err != nil {
		h.logger.Error("error closing document store", "err", err)
	}
	if err := h.backend.Close(); err != nil {
		h.logger.Error("error closing key-value backend", "err", err)
		return err
	}
	if err := h.durable.Close(); err != nil {
		h.logger.Error("error closing durable store", "err", err)
		return err
	}
	return nil
}

// Policies exposes the policy table, e.g. for a file watcher.
func (h *Hub) Policies() *policy.Table {
	return h.policies
}

// Metrics exposes the in-memory metrics sink.
func (h *Hub) Metrics() *metrics.Memory {
	return h.metrics
}

// NewRouter builds a storage router over the hub's backends. Extra
// options are applied after the hub's own wiring.
func (h *Hub) NewRouter(opts ...router.Option) (*router.Router, error) {
	base := []router.Option{
		router.WithDurableStore(h.durable),
		router.WithDocumentStore(h.docs),
		router.WithVectorIndex(h.vectors),
		router.WithBatchCache(h.batches),
		router.WithMetrics(h.metrics),
		router.WithLogger(h.logger),
	}
	if h.embedder != nil {
		base = append(base, router.WithEmbedder(h.embedder))
	}
	return router.NewRouter(h.policies, append(base, opts...)...)
}

// NewFacade builds a retrieval facade over the hub's backends.
func (h *Hub) NewFacade(opts ...retrieval.Option) (*retrieval.Facade, error) {
	base := []retrieval.Option{
		retrieval.WithDurableStore(h.durable),
		retrieval.WithDocumentStore(h.docs),
		retrieval.WithVectorIndex(h.vectors),
		retrieval.WithBatchCache(h.batches),
		retrieval.WithMetrics(h.metrics),
		retrieval.WithLogger(h.logger),
	}
	if h.embedder != nil {
		base = append(base, retrieval.WithEmbedder(h.embedder))
	}
	return retrieval.NewFacade(h.policies, append(base, opts...)...)
}

// NewProcessor builds a standalone quality pipeline with the default
// configuration.
func (h *Hub) NewProcessor(opts ...pipeline.Option) (*pipeline.Processor, error) {
	return pipeline.NewProcessor(opts...)
}
