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
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/opencivic/datahub/core"
	"github.com/opencivic/datahub/embed"
	"github.com/opencivic/datahub/metrics"
	"github.com/opencivic/datahub/pipeline"
	"github.com/opencivic/datahub/policy"
	"github.com/opencivic/datahub/storage"
)

const (
	defaultBackendTimeout = 30 * time.Second
	defaultCacheTTL       = 24 * time.Hour
	defaultMaxAttempts    = 3
	defaultRetryDelay     = 200 * time.Millisecond
)

// Processor is the quality pipeline dependency of the router. A non-nil
// error means the pipeline itself faulted, which aborts the Store call
// before any backend write.
type Processor interface {
	Process(category string, batch []core.RawRecord) (*pipeline.Result, error)
}

// Router fans processed batches out to the configured backends according to
// each category's policy. Backends are optional dependencies: a nil handle
// means "not configured" and the corresponding write is skipped, unless the
// category's policy mandates that backend, in which case the call fails as
// a configuration error.
type Router struct {
	processor Processor
	policies  *policy.Table
	durable   storage.DurableStore
	documents storage.DocumentStore
	vectors   storage.VectorIndex
	cache     storage.BatchCache
	embedder  embed.Embedder
	metrics   metrics.Sink
	pool      *ants.Pool

	backendTimeout time.Duration
	cacheTTL       time.Duration
	maxAttempts    int
	retryDelay     time.Duration
	logger         *slog.Logger
}

// Option configures a Router.
type Option func(*Router) error

// WithDurableStore configures the durable relational backend.
func WithDurableStore(s storage.DurableStore) Option {
	return func(r *Router) error {
		r.durable = s
		return nil
	}
}

// WithDocumentStore configures the document backend.
func WithDocumentStore(s storage.DocumentStore) Option {
	return func(r *Router) error {
		r.documents = s
		return nil
	}
}

// WithVectorIndex configures the similarity index backend.
func WithVectorIndex(v storage.VectorIndex) Option {
	return func(r *Router) error {
		r.vectors = v
		return nil
	}
}

// WithBatchCache configures the fast-access cache backend.
func WithBatchCache(c storage.BatchCache) Option {
	return func(r *Router) error {
		r.cache = c
		return nil
	}
}

// WithEmbedder configures the embedding service used for similarity indexing.
func WithEmbedder(e embed.Embedder) Option {
	return func(r *Router) error {
		r.embedder = e
		return nil
	}
}

// WithMetrics sets the metrics sink.
// Default is metrics.Noop.
func WithMetrics(s metrics.Sink) Option {
	return func(r *Router) error {
		if s == nil {
			s = metrics.Noop{}
		}
		r.metrics = s
		return nil
	}
}

// WithProcessor replaces the quality pipeline processor.
func WithProcessor(p Processor) Option {
	return func(r *Router) error {
		if p == nil {
			return errors.New("processor required")
		}
		r.processor = p
		return nil
	}
}

// WithPoolSize sets the worker pool size for per-record write parallelism.
// Default is runtime.NumCPU(), with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(r *Router) error {
		if size < 1 {
			size = 1
		}
		if r.pool != nil {
			r.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		r.pool = pool
		return nil
	}
}

// WithBackendTimeout sets the independent per-backend call timeout.
func WithBackendTimeout(d time.Duration) Option {
	return func(r *Router) error {
		if d > 0 {
			r.backendTimeout = d
		}
		return nil
	}
}

// WithCacheTTL sets the expiry for cache entries.
// Default is 24 hours.
func WithCacheTTL(d time.Duration) Option {
	return func(r *Router) error {
		if d > 0 {
			r.cacheTTL = d
		}
		return nil
	}
}

// WithRetry sets the retry budget for transient backend errors.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(r *Router) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		r.maxAttempts = maxAttempts
		r.retryDelay = baseDelay
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRouter creates a storage router. The policy table is required; all
// backends are optional.
func NewRouter(policies *policy.Table, opts ...Option) (*Router, error) {
	if policies == nil {
		return nil, ErrPolicyTableRequired
	}

	processor, err := pipeline.NewProcessor()
	if err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(runtime.NumCPU())
	if err != nil {
		return nil, err
	}

	r := &Router{
		processor:      processor,
		policies:       policies,
		metrics:        metrics.Noop{},
		pool:           pool,
		backendTimeout: defaultBackendTimeout,
		cacheTTL:       defaultCacheTTL,
		maxAttempts:    defaultMaxAttempts,
		retryDelay:     defaultRetryDelay,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(r); optErr != nil {
			r.Release()
			return nil, optErr
		}
	}

	return r, nil
}

// Release releases the worker pool. The router should not be used after
// calling Release.
func (r *Router) Release() {
	if r.pool != nil {
		r.pool.Release()
	}
}

// Store processes one raw batch and fans it out to the backends selected by
// the category's policy. It always returns a fully populated outcome: the
// quality grade, duplicate count and record count are present regardless of
// storage success, so callers can tell "data was bad" apart from "data was
// good but unstorable".
func (r *Router) Store(ctx context.Context, category string, batch []core.RawRecord) *core.StorageOutcome {
	outcome := &core.StorageOutcome{
		BatchID: uuid.NewString(),
		Grade:   core.GradeInvalid,
	}

	result, err := r.processor.Process(category, batch)
	if err != nil {
		// A pipeline fault is fatal for the call: abort before any backend
		// write rather than persist partially processed data.
		r.logger.Error("processing failed", "category", category, "err", err)
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("processing failed: %v", err))
		return outcome
	}

	outcome.Grade = result.Grade
	outcome.DuplicateCount = result.DuplicateCount
	outcome.RecordCount = len(result.Records)
	outcome.Warnings = result.Warnings
	outcome.Errors = append(outcome.Errors, result.Errors...)

	if len(result.Records) == 0 {
		return outcome
	}

	pol := r.policies.Resolve(category)
	if err := r.checkPolicy(pol); err != nil {
		outcome.Errors = append(outcome.Errors, err.Error())
		return outcome
	}

	records := result.Records

	var mu sync.Mutex
	addLocation := func(loc string) {
		mu.Lock()
		outcome.StoredIn = append(outcome.StoredIn, loc)
		mu.Unlock()
	}
	addError := func(msg string) {
		mu.Lock()
		outcome.Errors = append(outcome.Errors, msg)
		mu.Unlock()
	}

	// The four backend writes are independent of each other; run them
	// concurrently, each under its own timeout so one slow backend cannot
	// block the others.
	var g errgroup.Group

	if (pol.Primary == core.PrimaryDurable || pol.Primary == core.PrimaryBoth) && r.durable != nil {
		g.Go(func() error {
			r.storeDurable(ctx, category, records, addLocation, addError)
			return nil
		})
	}

	if (pol.Primary == core.PrimaryDocument || pol.Primary == core.PrimaryBoth) && r.documents != nil {
		g.Go(func() error {
			r.storeDocument(ctx, category, records, pol.Expiry, addLocation, addError)
			return nil
		})
	}

	if pol.Similarity && r.vectors != nil && r.embedder != nil {
		g.Go(func() error {
			r.storeVector(ctx, category, records, addLocation, addError)
			return nil
		})
	}

	if pol.CacheEnabled && r.cache != nil {
		g.Go(func() error {
			r.storeCache(category, records, addLocation)
			return nil
		})
	}

	g.Wait()

	sort.Strings(outcome.StoredIn)
	outcome.Success = len(outcome.StoredIn) > 0

	r.logger.Info("batch stored",
		"batch", outcome.BatchID,
		"category", category,
		"records", outcome.RecordCount,
		"duplicates", outcome.DuplicateCount,
		"grade", outcome.Grade.String(),
		"locations", outcome.StoredIn,
		"success", outcome.Success)

	return outcome
}

// checkPolicy verifies that every backend the policy mandates is
// configured. A missing mandated backend is a misconfiguration, not
// transient trouble, so it fails the whole call.
func (r *Router) checkPolicy(pol core.Policy) error {
	switch pol.Primary {
	case core.PrimaryDurable:
		if r.durable == nil {
			return ErrDurableStoreRequired
		}
	case core.PrimaryDocument:
		if r.documents == nil {
			return ErrDocumentStoreRequired
		}
	case core.PrimaryBoth:
		if r.durable == nil && r.documents == nil {
			return ErrPrimaryUnavailable
		}
	case core.PrimaryNone:
		// Similarity-only categories need a working similarity path for
		// success to be reachable at all.
		if pol.Similarity && (r.vectors == nil || r.embedder == nil) {
			return ErrPrimaryUnavailable
		}
	}
	return nil
}

// storeDurable writes every record to the durable store, with per-record
// parallelism on the worker pool. A failing record never cancels its
// siblings.
func (r *Router) storeDurable(ctx context.Context, category string, records []*core.Record, addLocation, addError func(string)) {
	ctx, cancel := context.WithTimeout(ctx, r.backendTimeout)
	defer cancel()

	start := time.Now()
	var (
		wg     sync.WaitGroup
		saved  atomic.Int64
		failed atomic.Int64
	)
	for _, record := range records {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			err := r.retry(ctx, func() error {
				_, saveErr := r.durable.Save(ctx, category, record)
				return saveErr
			})
			if err != nil {
				failed.Add(1)
				r.metrics.RecordError(core.LocationDurable, category, errorClass(err))
				r.logger.Error("durable write failed", "category", category, "hash", record.ContentHash, "err", err)
				return
			}
			saved.Add(1)
		}
		if err := r.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	r.metrics.RecordWrite(core.LocationDurable, category, time.Since(start))
	r.metrics.RecordVolume(core.LocationDurable, category, int(saved.Load()))

	if saved.Load() > 0 {
		addLocation(core.LocationDurable)
	}
	if n := failed.Load(); n > 0 {
		addError(fmt.Sprintf("durable: %d of %d records failed", n, len(records)))
	}
}

// storeDocument writes every record to the document store under the
// category's collection. Documents are keyed by content hash so
// re-submitting an identical batch overwrites instead of duplicating; a
// non-zero policy expiry makes them time-limited.
func (r *Router) storeDocument(ctx context.Context, category string, records []*core.Record, expiry time.Duration, addLocation, addError func(string)) {
	ctx, cancel := context.WithTimeout(ctx, r.backendTimeout)
	defer cancel()

	start := time.Now()
	var (
		wg     sync.WaitGroup
		saved  atomic.Int64
		failed atomic.Int64
	)
	for _, record := range records {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			err := r.retry(ctx, func() error {
				return r.documents.Put(ctx, category, record.ContentHash, record, expiry)
			})
			if err != nil {
				failed.Add(1)
				r.metrics.RecordError(core.LocationDocument, category, errorClass(err))
				r.logger.Error("document write failed", "category", category, "hash", record.ContentHash, "err", err)
				return
			}
			saved.Add(1)
		}
		if err := r.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	r.metrics.RecordWrite(core.LocationDocument, category, time.Since(start))
	r.metrics.RecordVolume(core.LocationDocument, category, int(saved.Load()))

	if saved.Load() > 0 {
		addLocation(core.LocationDocument)
	}
	if n := failed.Load(); n > 0 {
		addError(fmt.Sprintf("document: %d of %d records failed", n, len(records)))
	}
}

// storeVector embeds the batch and upserts the vectors. Records yielding no
// embeddable text are skipped. Failures are recorded but indexing stays
// best-effort relative to the primary backends.
func (r *Router) storeVector(ctx context.Context, category string, records []*core.Record, addLocation, addError func(string)) {
	ctx, cancel := context.WithTimeout(ctx, r.backendTimeout)
	defer cancel()

	var (
		texts      []string
		embeddable []*core.Record
	)
	for _, record := range records {
		text := pipeline.ExtractText(record)
		if strings.TrimSpace(text) == "" {
			continue
		}
		texts = append(texts, text)
		embeddable = append(embeddable, record)
	}
	if len(texts) == 0 {
		return
	}

	start := time.Now()
	var vectors [][]float32
	err := r.retry(ctx, func() error {
		var embedErr error
		vectors, embedErr = r.embedder.EmbedTexts(ctx, texts)
		return embedErr
	})
	if err != nil {
		r.metrics.RecordError(core.LocationVector, category, errorClass(err))
		addError(fmt.Sprintf("vector_search: embedding failed: %v", err))
		return
	}
	if len(vectors) != len(embeddable) {
		addError(fmt.Sprintf("vector_search: embedding result mismatch, expected %d received %d", len(embeddable), len(vectors)))
		return
	}

	units := make([]core.EmbeddingUnit, len(embeddable))
	for i, record := range embeddable {
		units[i] = core.EmbeddingUnit{
			ID:     record.Category + "_" + record.ContentHash,
			Vector: vectors[i],
			Metadata: map[string]string{
				"category":     record.Category,
				"content_hash": record.ContentHash,
				"extracted_at": record.ExtractedAt.Format(time.RFC3339),
			},
		}
	}

	err = r.retry(ctx, func() error {
		return r.vectors.Upsert(ctx, units)
	})
	if err != nil {
		r.metrics.RecordError(core.LocationVector, category, errorClass(err))
		addError(fmt.Sprintf("vector_search: upsert failed: %v", err))
		return
	}

	r.metrics.RecordWrite(core.LocationVector, category, time.Since(start))
	r.metrics.RecordVolume(core.LocationVector, category, len(units))
	addLocation(core.LocationVector)
}

// storeCache writes the whole processed batch as one cache entry keyed by
// category. Cache failure is logged but never fails the call and never
// appends an error.
func (r *Router) storeCache(category string, records []*core.Record, addLocation func(string)) {
	start := time.Now()
	if err := r.cache.PutBatch(category, records, r.cacheTTL); err != nil {
		r.metrics.RecordError(core.LocationCache, category, errorClass(err))
		r.logger.Warn("cache write failed", "category", category, "err", err)
		return
	}
	r.metrics.RecordWrite(core.LocationCache, category, time.Since(start))
	addLocation(core.LocationCache)
}

// CleanupExpired sweeps every document collection, deleting documents whose
// expiry has passed. Returns deleted counts per collection.
func (r *Router) CleanupExpired(ctx context.Context) (map[string]int, error) {
	if r.documents == nil {
		return map[string]int{}, nil
	}

	collections, err := r.documents.Collections(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	deleted := make(map[string]int)
	for _, collection := range collections {
		count, err := r.documents.DeleteExpired(ctx, collection, now)
		if err != nil {
			r.logger.Error("cleanup failed", "collection", collection, "err", err)
			continue
		}
		if count > 0 {
			deleted[collection] = count
		}
	}
	return deleted, nil
}

// errorClass buckets backend errors for metrics labels.
func errorClass(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "backend_error"
	}
}
