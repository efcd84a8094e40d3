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


package badger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/opencivic/datahub/core"
	"github.com/opencivic/datahub/storage"
)

// docEnvelope wraps a stored document with its bookkeeping timestamps.
// ExpiresAt is the absolute expiry computed from the write-time TTL;
// zero means the document never expires.
type docEnvelope struct {
	Payload   json.RawMessage `json:"payload"`
	StoredAt  time.Time       `json:"stored_at"`
	ExpiresAt time.Time       `json:"expires_at,omitzero"`
}

// documentStore implements storage.DocumentStore on a badger Backend.
type documentStore struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.DocumentStore = (*documentStore)(nil)

// NewDocumentStore creates a document store on the given backend.
func NewDocumentStore(backend *Backend) (storage.DocumentStore, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	return &documentStore{
		backend: backend,
		logger:  slog.Default().With("backend", "document"),
	}, nil
}

// Put stores a record under the collection and document ID. A non-zero
// expiry fixes an absolute expiry timestamp of now+expiry.
func (d *documentStore) Put(ctx context.Context, collection, docID string, record *core.Record, expiry time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	payload, err := storage.MarshalRecord(record)
	if err != nil {
		return err
	}

	env := docEnvelope{
		Payload:  payload,
		StoredAt: time.Now().UTC(),
	}
	if expiry > 0 {
		env.ExpiresAt = env.StoredAt.Add(expiry)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	return d.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeDocumentKey(collection, docID), data); err != nil {
			return err
		}
		return tx.Set(makeCollectionKey(collection), []byte{1})
	}, true)
}

// Get retrieves a document. Expired documents are reported as not found.
func (d *documentStore) Get(ctx context.Context, collection, docID string) (*core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record *core.Record
	err := d.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeDocumentKey(collection, docID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			env, err := decodeEnvelope(val)
			if err != nil {
				return err
			}
			if env.expired(time.Now().UTC()) {
				return storage.ErrNotFound
			}
			record, err = storage.UnmarshalRecord(env.Payload)
			return err
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// List returns up to limit live documents in the collection.
func (d *documentStore) List(ctx context.Context, collection string, limit int) ([]*core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var records []*core.Record

	err := d.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeCollectionScanKey(collection)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if limit > 0 && len(records) >= limit {
				break
			}
			err := iter.Item().Value(func(val []byte) error {
				env, err := decodeEnvelope(val)
				if err != nil {
					return err
				}
				if env.expired(now) {
					return nil
				}
				record, err := storage.UnmarshalRecord(env.Payload)
				if err != nil {
					return err
				}
				records = append(records, record)
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
	return records, nil
}

// DeleteExpired removes documents in the collection whose expiry has passed
// relative to before, returning how many were removed.
func (d *documentStore) DeleteExpired(ctx context.Context, collection string, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var expiredKeys [][]byte
	err := d.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeCollectionScanKey(collection)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			err := item.Value(func(val []byte) error {
				env, err := decodeEnvelope(val)
				if err != nil {
					return err
				}
				if env.expired(before) {
					expiredKeys = append(expiredKeys, item.KeyCopy(nil))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}

	if len(expiredKeys) == 0 {
		return 0, nil
	}

	err = d.backend.WithTx(func(tx *badger.Txn) error {
		for _, key := range expiredKeys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	}, true)
	if err != nil {
		return 0, err
	}

	d.logger.Info("deleted expired documents", "collection", collection, "count", len(expiredKeys))
	return len(expiredKeys), nil
}

// Collections lists the known collection keys.
func (d *documentStore) Collections(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := collectionPrefix + ":"
	var collections []string
	err := d.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := string(iter.Item().Key())
			collections = append(collections, strings.TrimPrefix(key, prefix))
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return collections, nil
}

// Close is a no-op; the shared backend owns the database lifecycle.
func (d *documentStore) Close() error {
	return nil
}

func decodeEnvelope(val []byte) (*docEnvelope, error) {
	var env docEnvelope
	if err := json.Unmarshal(val, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *docEnvelope) expired(at time.Time) bool {
	return !e.ExpiresAt.IsZero() && !e.ExpiresAt.After(at)
}
