package pipeline

import (
	"sort"
	"strings"

	"github.com/opencivic/datahub/core"
)

// embedFields are the semantically rich fields preferred for embedding
// generation, concatenated in this order.
var embedFields = []string{"title", "content", "description", "summary", "body", "text"}

// minFallbackLen is the minimum length for fallback fields, to skip short
// noisy tokens like status codes.
const minFallbackLen = 10

// ExtractText selects the text worth embedding from a record. It prefers
// the priority fields; if none are present it falls back to all string
// fields longer than minFallbackLen, in sorted key order for determinism.
// ExtractText is total: it returns "" when nothing qualifies, and the
// caller must then skip embedding generation for the record.
func ExtractText(rec *core.Record) string {
	var parts []string
	for _, field := range embedFields {
		if s := rec.StringField(field); s != "" {
			parts = append(parts, s)
		}
	}

	if len(parts) == 0 {
		keys := make([]string, 0, len(rec.Fields))
		for k := range rec.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s := rec.StringField(k); len(s) > minFallbackLen {
				parts = append(parts, s)
			}
		}
	}

	return strings.Join(parts, " ")
}
