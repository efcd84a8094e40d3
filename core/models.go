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


package core

import (
	"encoding/json"
	"time"
)

// Bookkeeping field names recognized on raw records. Cleaning lifts them out
// of the field map and onto the Record itself.
const (
	FieldCategory    = "category"
	FieldType        = "type" // legacy alias for category
	FieldExtractedAt = "extracted_at"
	FieldContentHash = "content_hash"
)

// CategoryUnknown is assigned to records that arrive without a category tag.
const CategoryUnknown = "unknown"

// RawRecord is an untyped field map produced by an upstream collector.
// No schema is guaranteed beyond an optional category tag.
type RawRecord map[string]any

// Record is a raw record after cleaning: the canonical bookkeeping fields are
// lifted into named struct fields, everything else stays in Fields.
// Records are immutable once they leave the quality pipeline.
type Record struct {
	Category    string         `json:"category"`
	ExtractedAt time.Time      `json:"extracted_at"`
	ContentHash string         `json:"content_hash"`
	Fields      map[string]any `json:"fields"`
}

// StringField returns the named field as a string, or "" if absent or not a string.
func (r *Record) StringField(name string) string {
	if s, ok := r.Fields[name].(string); ok {
		return s
	}
	return ""
}

// HasField reports whether the named field is present and non-empty.
func (r *Record) HasField(name string) bool {
	v, ok := r.Fields[name]
	if !ok {
		return false
	}
	if s, isStr := v.(string); isStr {
		return s != ""
	}
	return v != nil
}

// QualityGrade classifies a processed batch by completeness and error rate.
// Values are ordered so a higher grade compares greater than a lower one.
type QualityGrade int

const (
	GradeInvalid QualityGrade = iota
	GradeLow
	GradeMedium
	GradeHigh
)

// String returns the lowercase name of the grade.
func (g QualityGrade) String() string {
	switch g {
	case GradeHigh:
		return "high"
	case GradeMedium:
		return "medium"
	case GradeLow:
		return "low"
	default:
		return "invalid"
	}
}

// MarshalJSON renders the grade by name rather than ordinal.
func (g QualityGrade) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.String())
}

// PrimaryBackend selects which backend(s) act as the source of truth for a category.
type PrimaryBackend string

const (
	// PrimaryDurable stores records in the relational durable store.
	PrimaryDurable PrimaryBackend = "durable"
	// PrimaryDocument stores records in the document store, optionally with expiry.
	PrimaryDocument PrimaryBackend = "document"
	// PrimaryBoth stores records in both; either succeeding is sufficient.
	PrimaryBoth PrimaryBackend = "both"
	// PrimaryNone is for categories served only by secondary backends,
	// e.g. similarity-only categories.
	PrimaryNone PrimaryBackend = "none"
)

// Policy configures storage routing for one data category.
// Policies are read-only at request time.
type Policy struct {
	Primary      PrimaryBackend `yaml:"primary"`
	CacheEnabled bool           `yaml:"cache"`
	Similarity   bool           `yaml:"similarity"`
	Expiry       time.Duration  `yaml:"expiry"`      // zero means no expiry
	Criticality  int            `yaml:"criticality"` // 1-10
}

// Backend location names reported in StorageOutcome.StoredIn.
const (
	LocationDurable  = "durable"
	LocationDocument = "document"
	LocationVector   = "vector_search"
	LocationCache    = "cache"
)

// StorageOutcome is the structured result of one Store call. It is always
// fully populated: callers can distinguish "data was bad" from "data was
// good but unstorable".
type StorageOutcome struct {
	BatchID        string       `json:"batch_id"`
	Success        bool         `json:"success"`
	StoredIn       []string     `json:"stored_in"`
	Errors         []string     `json:"errors,omitempty"`
	Warnings       []string     `json:"warnings,omitempty"`
	Grade          QualityGrade `json:"quality_grade"`
	DuplicateCount int          `json:"duplicate_count"`
	RecordCount    int          `json:"record_count"`
}

// StoredAt reports whether the outcome includes a successful write to the
// named backend location.
func (o *StorageOutcome) StoredAt(location string) bool {
	for _, loc := range o.StoredIn {
		if loc == location {
			return true
		}
	}
	return false
}

// EmbeddingUnit is one entry destined for the similarity index. The ID is
// derived from category and content hash so re-submission overwrites.
type EmbeddingUnit struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// SearchMatch is one ranked result from a similarity query.
type SearchMatch struct {
	ID        string            `json:"id"`
	Distance  float32           `json:"distance"`
	Relevance float32           `json:"relevance"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
