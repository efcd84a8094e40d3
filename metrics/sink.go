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


package metrics

import (
	"sync"
	"time"
)

// Sink receives fire-and-forget measurements for backend operations,
// labeled by backend and category. Implementations must be thread-safe and
// must never block the caller; the sink is never on the critical path for
// correctness.
type Sink interface {
	// RecordWrite records the latency of one backend write operation.
	RecordWrite(backend, category string, duration time.Duration)

	// RecordRead records the latency of one backend read operation.
	RecordRead(backend, category string, duration time.Duration)

	// RecordError counts one backend error of the given class.
	RecordError(backend, category, class string)

	// RecordVolume counts records written to a backend.
	RecordVolume(backend, category string, count int)
}

// Noop is a Sink that discards all measurements.
type Noop struct{}

var _ Sink = Noop{}

func (Noop) RecordWrite(string, string, time.Duration) {}
func (Noop) RecordRead(string, string, time.Duration)  {}
func (Noop) RecordError(string, string, string)        {}
func (Noop) RecordVolume(string, string, int)          {}

// OpStats aggregates one backend+category operation counter.
type OpStats struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	MaxDuration   time.Duration `json:"max_duration"`
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Writes map[string]OpStats `json:"writes"`
	Reads  map[string]OpStats `json:"reads"`
	Errors map[string]int64   `json:"errors"`
	Volume map[string]int64   `json:"volume"`
}

// Memory is an in-process Sink aggregating counters for the monitoring
// collaborator to scrape.
type Memory struct {
	mu     sync.Mutex
	writes map[string]OpStats
	reads  map[string]OpStats
	errors map[string]int64
	volume map[string]int64
}

var _ Sink = (*Memory)(nil)

// NewMemory creates an in-memory metrics sink.
func NewMemory() *Memory {
	return &Memory{
		writes: make(map[string]OpStats),
		reads:  make(map[string]OpStats),
		errors: make(map[string]int64),
		volume: make(map[string]int64),
	}
}

func key(backend, category string) string {
	return backend + "/" + category
}

// RecordWrite records the latency of one backend write operation.
func (m *Memory) RecordWrite(backend, category string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes[key(backend, category)] = accumulate(m.writes[key(backend, category)], duration)
}

// RecordRead records the latency of one backend read operation.
func (m *Memory) RecordRead(backend, category string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[key(backend, category)] = accumulate(m.reads[key(backend, category)], duration)
}

// RecordError counts one backend error of the given class.
func (m *Memory) RecordError(backend, category, class string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[key(backend, category)+"/"+class]++
}

// RecordVolume counts records written to a backend.
func (m *Memory) RecordVolume(backend, category string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume[key(backend, category)] += int64(count)
}

// Snapshot returns a copy of all counters.
func (m *Memory) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Writes: copyStats(m.writes),
		Reads:  copyStats(m.reads),
		Errors: copyCounts(m.errors),
		Volume: copyCounts(m.volume),
	}
}

func accumulate(s OpStats, d time.Duration) OpStats {
	s.Count++
	s.TotalDuration += d
	if d > s.MaxDuration {
		s.MaxDuration = d
	}
	return s
}

func copyStats(in map[string]OpStats) map[string]OpStats {
	out := make(map[string]OpStats, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
