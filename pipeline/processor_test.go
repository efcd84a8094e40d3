package pipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencivic/datahub/core"
)

func newTestProcessor(t *testing.T, opts ...Option) *Processor {
	t.Helper()
	p, err := NewProcessor(opts...)
	require.NoError(t, err)
	return p
}

func completeRecord(title string) core.RawRecord {
	return core.RawRecord{
		"category":     "news",
		"extracted_at": "2026-01-15T10:00:00Z",
		"title":        title,
		"content":      "The council approved the updated budget.",
		"description":  "Budget update",
	}
}

func TestProcessDuplicateBatch(t *testing.T) {
	p := newTestProcessor(t)

	batch := []core.RawRecord{completeRecord("Budget hearing"), completeRecord("Budget hearing")}
	result, err := p.Process("news", batch)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, 1, result.DuplicateCount)
	assert.Equal(t, core.GradeHigh, result.Grade)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)

	rec := result.Records[0]
	assert.Equal(t, "news", rec.Category)
	assert.NotEmpty(t, rec.ContentHash)
	assert.Equal(t, "2026-01-15T10:00:00Z", rec.ExtractedAt.Format(time.RFC3339))
}

func TestProcessDefaultsCanonicalFields(t *testing.T) {
	p := newTestProcessor(t)

	// Neither record carries an extraction timestamp; cleaning defaults
	// it and validation lets the records through.
	batch := []core.RawRecord{
		{"type": "news", "title": "A", "content": "B"},
		{"type": "news", "title": "A", "content": "B"},
	}
	result, err := p.Process("news", batch)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, 1, result.DuplicateCount)
	assert.Equal(t, core.GradeHigh, result.Grade)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "news", result.Records[0].Category)
	assert.False(t, result.Records[0].ExtractedAt.IsZero())
}

func TestProcessRequiresRawCanonicalFieldsWhenConfigured(t *testing.T) {
	p := newTestProcessor(t,
		WithRequiredFields("filings", core.FieldCategory, core.FieldExtractedAt))

	// "filings" demands both canonical fields in the raw input; the
	// defaults filled in during cleaning do not satisfy them.
	batch := []core.RawRecord{{"title": "orphan"}}
	result, err := p.Process("filings", batch)
	require.NoError(t, err)

	assert.Empty(t, result.Records)
	assert.Equal(t, core.GradeInvalid, result.Grade)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "category")
	assert.Contains(t, result.Errors[1], "extracted_at")
}

func TestProcessRecordCategoryWinsOverBatch(t *testing.T) {
	p := newTestProcessor(t)

	rec := completeRecord("tagged")
	rec["category"] = "notices"
	result, err := p.Process("news", []core.RawRecord{rec})
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "notices", result.Records[0].Category)
}

func TestProcessTypeAliasForCategory(t *testing.T) {
	p := newTestProcessor(t)

	rec := completeRecord("aliased")
	delete(rec, "category")
	rec["type"] = "procedures"
	result, err := p.Process("", []core.RawRecord{rec})
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "procedures", result.Records[0].Category)
	assert.False(t, result.Records[0].HasField("type"))
}

func TestProcessNormalizesDateFields(t *testing.T) {
	p := newTestProcessor(t)

	rec := completeRecord("dated")
	rec["publish_date"] = "15/01/2026"
	result, err := p.Process("news", []core.RawRecord{rec})
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "2026-01-15T00:00:00Z", result.Records[0].StringField("publish_date"))
}

func TestProcessRejectsInvalidDateAndURL(t *testing.T) {
	p := newTestProcessor(t)

	badDate := completeRecord("bad date")
	badDate["event_date"] = "sometime soon"
	badURL := completeRecord("bad url")
	badURL["source_url"] = "ftp://example.gov/feed"

	result, err := p.Process("news", []core.RawRecord{badDate, badURL, completeRecord("fine")})
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "fine", result.Records[0].StringField("title"))
	assert.Len(t, result.Errors, 2)
}

func TestProcessNormalizesWhitespaceAndLists(t *testing.T) {
	p := newTestProcessor(t)

	rec := completeRecord("messy")
	rec["content"] = "  lots \t of \n internal   space  "
	rec["tags"] = []any{"roads", nil, "", "transit"}
	result, err := p.Process("news", []core.RawRecord{rec})
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	got := result.Records[0]
	assert.Equal(t, "lots of internal space", got.StringField("content"))
	assert.Equal(t, []any{"roads", "transit"}, got.Fields["tags"])
}

func TestProcessWarnsOnMissingImportantFields(t *testing.T) {
	p := newTestProcessor(t)

	sparse := core.RawRecord{
		"category":     "news",
		"extracted_at": "2026-01-15T10:00:00Z",
		"title":        "only a title",
	}
	result, err := p.Process("news", []core.RawRecord{sparse})
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "content")
	assert.Contains(t, result.Warnings[0], "description")
}

func TestProcessGradeDegradesWithErrorRatio(t *testing.T) {
	p := newTestProcessor(t)

	makeBatch := func(bad int) []core.RawRecord {
		batch := make([]core.RawRecord, 0, 10)
		for i := 0; i < 10-bad; i++ {
			batch = append(batch, completeRecord(fmt.Sprintf("good %d", i)))
		}
		for i := 0; i < bad; i++ {
			rec := completeRecord(fmt.Sprintf("bad %d", i))
			rec["event_date"] = "not a date"
			batch = append(batch, rec)
		}
		return batch
	}

	tests := []struct {
		bad  int
		want core.QualityGrade
	}{
		{0, core.GradeHigh},
		{1, core.GradeHigh},
		{2, core.GradeMedium},
		{3, core.GradeLow},
		{4, core.GradeInvalid},
	}
	for _, tt := range tests {
		result, err := p.Process("news", makeBatch(tt.bad))
		require.NoError(t, err)
		assert.Equal(t, tt.want, result.Grade, "%d bad records", tt.bad)
	}
}

func TestProcessCustomRequiredFields(t *testing.T) {
	p := newTestProcessor(t, WithRequiredFields("permits", "permit_id"))

	withID := completeRecord("has id")
	withID["category"] = "permits"
	withID["permit_id"] = "P-100"
	withoutID := completeRecord("no id")
	withoutID["category"] = "permits"

	result, err := p.Process("permits", []core.RawRecord{withID, withoutID})
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "P-100", result.Records[0].StringField("permit_id"))
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "permit_id")
}

func TestProcessEmptyBatch(t *testing.T) {
	p := newTestProcessor(t)

	result, err := p.Process("news", nil)
	require.NoError(t, err)

	assert.Empty(t, result.Records)
	assert.Equal(t, core.GradeInvalid, result.Grade)
	assert.Empty(t, result.Errors)
}
