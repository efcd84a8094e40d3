package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opencivic/datahub/core"
)

func TestExtractTextPrefersPriorityFields(t *testing.T) {
	rec := &core.Record{Fields: map[string]any{
		"title":   "Road closure",
		"content": "Main street closed for repairs",
		"zone":    "a long irrelevant field value",
	}}

	assert.Equal(t, "Road closure Main street closed for repairs", ExtractText(rec))
}

func TestExtractTextFallsBackToLongStrings(t *testing.T) {
	rec := &core.Record{Fields: map[string]any{
		"remarks": "closure extended through friday",
		"zone":    "north", // too short for the fallback
		"address": "14 Elm Street, Ward 3",
	}}

	// Fallback fields come out in sorted key order.
	assert.Equal(t, "14 Elm Street, Ward 3 closure extended through friday", ExtractText(rec))
}

func TestExtractTextEmptyWhenNothingQualifies(t *testing.T) {
	rec := &core.Record{Fields: map[string]any{
		"zone":  "north",
		"count": 12,
	}}

	assert.Equal(t, "", ExtractText(rec))
}
