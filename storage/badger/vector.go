package badger

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/opencivic/datahub/core"
	"github.com/opencivic/datahub/storage"
)

// vectorEntry is the persisted form of one similarity index entry.
type vectorEntry struct {
	ID       string            `json:"id"`
	Vector   []float32         `json:"vector"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// vectorIndex implements storage.VectorIndex on a badger Backend.
// Queries scan the full index; at the volumes this system handles
// (thousands of entries per deployment) a flat scan beats maintaining an
// approximate-nearest-neighbor structure.
type vectorIndex struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.VectorIndex = (*vectorIndex)(nil)

// NewVectorIndex creates a vector index on the given backend.
func NewVectorIndex(backend *Backend) (storage.VectorIndex, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	return &vectorIndex{
		backend: backend,
		logger:  slog.Default().With("backend", "vector_search"),
	}, nil
}

// Upsert writes the embedding units, overwriting entries with the same ID.
func (v *vectorIndex) Upsert(ctx context.Context, units []core.EmbeddingUnit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	return v.backend.WithTx(func(tx *badger.Txn) error {
		for _, unit := range units {
			data, err := json.Marshal(vectorEntry{
				ID:       unit.ID,
				Vector:   unit.Vector,
				Metadata: unit.Metadata,
			})
			if err != nil {
				return err
			}
			if err := tx.Set(makeVectorKey(unit.ID), data); err != nil {
				return err
			}
		}
		return nil
	}, true)
}

// Query returns the k nearest entries to the vector by cosine distance,
// closest first.
func (v *vectorIndex) Query(ctx context.Context, vector []float32, k int) ([]core.SearchMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	var matches []core.SearchMatch
	err := v.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				var entry vectorEntry
				if err := json.Unmarshal(val, &entry); err != nil {
					return err
				}
				if len(entry.Vector) == 0 {
					return nil
				}
				distance := cosineDistance(vector, entry.Vector)
				matches = append(matches, core.SearchMatch{
					ID:        entry.ID,
					Distance:  distance,
					Relevance: 1 - distance,
					Metadata:  entry.Metadata,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(a, b core.SearchMatch) int {
		if a.Distance < b.Distance {
			return -1
		}
		if a.Distance > b.Distance {
			return 1
		}
		return 0
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Close is a no-op; the shared backend owns the database lifecycle.
func (v *vectorIndex) Close() error {
	return nil
}

// cosineDistance computes 1 - cosine similarity. Vectors with zero norm are
// treated as maximally distant.
func cosineDistance(a, b []float32) float32 {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < minLen; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)))
}
