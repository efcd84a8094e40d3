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


package storage

import (
	"context"
	"time"

	"github.com/opencivic/datahub/core"
)

// DurableStore is a relational-style backend with strong persistence and no
// expiry. Implementations must be thread-safe and idempotent on content
// hash: re-saving a record with an already-stored hash must not create a
// duplicate row.
type DurableStore interface {
	// Save persists one record and returns its row ID.
	// Saving a record whose (category, content_hash) already exists
	// updates the existing row instead of inserting.
	Save(ctx context.Context, category string, record *core.Record) (int64, error)

	// QueryRecent returns up to limit records for the category, most
	// recently stored first.
	QueryRecent(ctx context.Context, category string, limit int) ([]*core.Record, error)

	// CountByCategory returns the number of stored rows for the category.
	CountByCategory(ctx context.Context, category string) (int64, error)

	// Close closes the store and releases resources.
	Close() error
}

// DocumentStore is a flexible-schema backend with optional per-document
// expiry. Implementations must be thread-safe.
type DocumentStore interface {
	// Put stores a record under the collection and document ID. A non-zero
	// expiry makes the document disappear after now+expiry.
	Put(ctx context.Context, collection, docID string, record *core.Record, expiry time.Duration) error

	// Get retrieves a document. Returns ErrNotFound if absent or expired.
	Get(ctx context.Context, collection, docID string) (*core.Record, error)

	// List returns up to limit live documents in the collection.
	List(ctx context.Context, collection string, limit int) ([]*core.Record, error)

	// DeleteExpired removes documents in the collection stored before the
	// given time whose expiry has passed, returning how many were removed.
	DeleteExpired(ctx context.Context, collection string, before time.Time) (int, error)

	// Collections lists the known collection keys.
	Collections(ctx context.Context) ([]string, error)

	// Close closes the store and releases resources.
	Close() error
}

// VectorIndex stores embedding vectors and answers nearest-neighbor
// queries. Upserting an existing ID overwrites rather than duplicates.
type VectorIndex interface {
	// Upsert writes the embedding units, overwriting entries with the
	// same ID.
	Upsert(ctx context.Context, units []core.EmbeddingUnit) error

	// Query returns the k nearest entries to the vector, closest first.
	Query(ctx context.Context, vector []float32, k int) ([]core.SearchMatch, error)

	// Close closes the index and releases resources.
	Close() error
}

// BatchCache is a fast-access cache holding whole processed batches keyed
// by category.
type BatchCache interface {
	// PutBatch caches the batch under the category for the given TTL.
	PutBatch(category string, records []*core.Record, ttl time.Duration) error

	// GetBatch returns the cached batch for the category, or false if
	// absent or expired.
	GetBatch(category string) ([]*core.Record, bool)

	// Close closes the cache and releases resources.
	Close() error
}
