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


package policy

import (
	"time"

	"github.com/opencivic/datahub/core"
)

// DefaultPolicy is the safe fallback applied to unknown categories:
// durable store, cache on, similarity on, no expiry.
func DefaultPolicy() core.Policy {
	return core.Policy{
		Primary:      core.PrimaryDurable,
		CacheEnabled: true,
		Similarity:   true,
		Criticality:  5,
	}
}

// defaultPolicies is the built-in category table. Long-lived reference
// categories live in the durable store; short-lived alert categories live in
// the document store with a TTL matching their real-world validity.
func defaultPolicies() map[string]core.Policy {
	return map[string]core.Policy{
		"news": {
			Primary:      core.PrimaryDurable,
			CacheEnabled: true,
			Similarity:   true,
			Criticality:  6,
		},
		"procedures": {
			Primary:      core.PrimaryDurable,
			CacheEnabled: true,
			Similarity:   true,
			Criticality:  8,
		},
		"service_requests": {
			Primary:      core.PrimaryDurable,
			CacheEnabled: true,
			Similarity:   true,
			Criticality:  7,
		},
		"traffic_alert": {
			Primary:      core.PrimaryDocument,
			CacheEnabled: true,
			Similarity:   false,
			Expiry:       24 * time.Hour,
			Criticality:  10,
		},
		"notices": {
			Primary:      core.PrimaryDocument,
			CacheEnabled: true,
			Similarity:   false,
			Expiry:       7 * 24 * time.Hour,
			Criticality:  9,
		},
		"programs": {
			Primary:      core.PrimaryBoth,
			CacheEnabled: true,
			Similarity:   true,
			Criticality:  7,
		},
		"temporal": {
			Primary:      core.PrimaryDocument,
			CacheEnabled: false,
			Similarity:   false,
			Expiry:       72 * time.Hour,
			Criticality:  3,
		},
	}
}
