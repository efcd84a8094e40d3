package core

import (
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/go-crypt/x/blake2b"
)

// hashVersion is mixed into every content hash. Changing the hash algorithm
// or the canonical encoding changes storage identities, so any such change
// must bump this version.
const hashVersion = "v1"

// HashFields computes a stable content hash over a record's semantic fields.
// The hash is independent of field order: fields are encoded in sorted key
// order, with nested maps canonicalized by encoding/json. Bookkeeping fields
// (extracted_at, a pre-existing content_hash) are excluded; the category is
// always included so identical payloads in different categories hash apart.
func HashFields(category string, fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == FieldExtractedAt || k == FieldContentHash {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h, _ := blake2b.New(16, nil)
	h.Write([]byte(hashVersion))
	h.Write([]byte{0})
	h.Write([]byte(category))
	for _, k := range keys {
		// json.Marshal sorts nested map keys, so nested structures are
		// canonical too. Unencodable values are skipped rather than failing:
		// hashing must be total.
		encoded, err := json.Marshal(fields[k])
		if err != nil {
			continue
		}
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write(encoded)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the content hash of a processed record.
func (r *Record) Hash() string {
	return HashFields(r.Category, r.Fields)
}
