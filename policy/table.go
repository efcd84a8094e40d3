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
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opencivic/datahub/core"
)

// Table holds the category policies and answers policy lookups for the
// router. Lookups are read-only and safe for concurrent use; the whole
// table may be swapped by a reload.
type Table struct {
	mu       sync.RWMutex
	policies map[string]core.Policy
	fallback core.Policy
	logger   *slog.Logger
}

// Option configures a Table.
type Option func(*Table) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Table) error {
		if logger == nil {
			logger = slog.Default()
		}
		t.logger = logger
		return nil
	}
}

// WithFallback overrides the policy applied to unknown categories.
func WithFallback(p core.Policy) Option {
	return func(t *Table) error {
		t.fallback = p
		return nil
	}
}

// WithPolicy sets or replaces one category's policy.
func WithPolicy(category string, p core.Policy) Option {
	return func(t *Table) error {
		t.policies[category] = p
		return nil
	}
}

// NewTable creates a policy table pre-populated with the default category
// policies.
func NewTable(opts ...Option) (*Table, error) {
	t := &Table{
		policies: defaultPolicies(),
		fallback: DefaultPolicy(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Resolve returns the policy for a category. Every category resolves:
// unknown categories get the fallback policy (durable store, cache on,
// similarity on, no expiry) so availability wins over strictness.
func (t *Table) Resolve(category string) core.Policy {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.policies[category]; ok {
		return p
	}
	return t.fallback
}

// Categories returns the configured category names.
func (t *Table) Categories() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.policies))
	for category := range t.policies {
		out = append(out, category)
	}
	return out
}

// Set installs or replaces a single category policy.
func (t *Table) Set(category string, p core.Policy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.policies[category] = p
}

// filePolicy is the YAML form of one category policy. Booleans are
// pointers so omitted keys inherit the fallback's defaults.
type filePolicy struct {
	Primary     string `yaml:"primary"`
	Cache       *bool  `yaml:"cache"`
	Similarity  *bool  `yaml:"similarity"`
	Expiry      string `yaml:"expiry"`
	Criticality int    `yaml:"criticality"`
}

type policyFile struct {
	Categories map[string]filePolicy `yaml:"categories"`
}

// LoadFile replaces the table's policies with the contents of a YAML policy
// file. On any parse error the previous policies are kept.
func (t *Table) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading policy file: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parsing policy file: %w", err)
	}

	parsed := make(map[string]core.Policy, len(pf.Categories))
	for category, fp := range pf.Categories {
		p, err := fp.toPolicy()
		if err != nil {
			return fmt.Errorf("category %q: %w", category, err)
		}
		parsed[category] = p
	}

	t.mu.Lock()
	t.policies = parsed
	t.mu.Unlock()

	t.logger.Info("policy table loaded", "path", path, "categories", len(parsed))
	return nil
}

func (fp filePolicy) toPolicy() (core.Policy, error) {
	p := DefaultPolicy()

	switch core.PrimaryBackend(fp.Primary) {
	case core.PrimaryDurable, core.PrimaryDocument, core.PrimaryBoth, core.PrimaryNone:
		p.Primary = core.PrimaryBackend(fp.Primary)
	case "":
		// keep default
	default:
		return core.Policy{}, fmt.Errorf("unknown primary backend %q", fp.Primary)
	}

	if fp.Cache != nil {
		p.CacheEnabled = *fp.Cache
	}
	if fp.Similarity != nil {
		p.Similarity = *fp.Similarity
	}
	if fp.Expiry != "" {
		d, err := time.ParseDuration(fp.Expiry)
		if err != nil {
			return core.Policy{}, fmt.Errorf("invalid expiry %q: %w", fp.Expiry, err)
		}
		p.Expiry = d
	}
	if fp.Criticality != 0 {
		if fp.Criticality < 1 || fp.Criticality > 10 {
			return core.Policy{}, fmt.Errorf("criticality %d out of range 1-10", fp.Criticality)
		}
		p.Criticality = fp.Criticality
	}
	return p, nil
}
