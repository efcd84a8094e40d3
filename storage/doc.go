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


// Package storage defines the backend abstraction layer for datahub.
//
// Four backend capabilities are modeled, each with different
// consistency/latency/retention characteristics:
//
//   - DurableStore: relational persistence, no expiry (storage/sqlite)
//   - DocumentStore: flexible schema, optional per-document TTL (storage/badger)
//   - VectorIndex: embedding storage and nearest-neighbor queries (storage/badger)
//   - BatchCache: short-lived whole-batch cache (storage/cache)
//
// Public constructors in the implementation packages return these
// interfaces, keeping consumers decoupled from the concrete backends and
// letting tests substitute in-memory implementations.
//
// All implementations must be thread-safe. Methods accept context.Context
// for cancellation and timeout support; the router gives every backend call
// its own independent timeout.
package storage
