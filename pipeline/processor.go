package pipeline

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opencivic/datahub/core"
)

// Result is the outcome of processing one raw batch.
type Result struct {
	Records        []*core.Record
	Errors         []string
	Warnings       []string
	Grade          core.QualityGrade
	DuplicateCount int
}

// Thresholds are the completeness/error-ratio cutoffs for quality grading.
// The defaults come from the production deployment; they are configuration,
// not business law.
type Thresholds struct {
	HighCompleteness   float64
	HighErrorRatio     float64
	MediumCompleteness float64
	MediumErrorRatio   float64
	LowCompleteness    float64
	LowErrorRatio      float64
}

// DefaultThresholds returns the default grading cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighCompleteness:   0.9,
		HighErrorRatio:     0.1,
		MediumCompleteness: 0.7,
		MediumErrorRatio:   0.2,
		LowCompleteness:    0.5,
		LowErrorRatio:      0.3,
	}
}

// defaultImportant are the fields whose collective absence triggers a
// warning. Warnings are observational only.
var defaultImportant = []string{"title", "content", "description"}

// Processor cleans, validates, deduplicates and grades raw record batches.
// It never fails on malformed input: bad records are dropped and reported
// as errors in the Result.
type Processor struct {
	required   map[string][]string // per-category required fields
	important  []string
	thresholds Thresholds
	logger     *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor) error

// WithRequiredFields sets the required fields for a category. Records of
// that category missing any of them are dropped during structural
// validation. Listing "category" or "extracted_at" requires the raw input
// to carry them; a value defaulted during cleaning does not count.
func WithRequiredFields(category string, fields ...string) Option {
	return func(p *Processor) error {
		p.required[category] = fields
		return nil
	}
}

// WithImportantFields overrides the field set used for missing-field warnings.
func WithImportantFields(fields ...string) Option {
	return func(p *Processor) error {
		p.important = fields
		return nil
	}
}

// WithThresholds overrides the quality grading cutoffs.
func WithThresholds(t Thresholds) Option {
	return func(p *Processor) error {
		p.thresholds = t
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewProcessor creates a quality pipeline processor.
func NewProcessor(opts ...Option) (*Processor, error) {
	p := &Processor{
		required:   make(map[string][]string),
		important:  defaultImportant,
		thresholds: DefaultThresholds(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// cleaned pairs a cleaned record with which canonical fields had to be
// defaulted, so categories that require raw provenance can still reject
// them during structural validation.
type cleaned struct {
	rec                *core.Record
	defaultedCategory  bool
	defaultedExtracted bool
}

// Process runs the full pipeline over one batch: clean, validate structure,
// deduplicate, normalize, grade, and collect warnings. Step order matters:
// duplicates are counted after cleaning but before normalization, so
// normalization can neither hide genuine duplicates nor introduce false ones.
func (p *Processor) Process(category string, batch []core.RawRecord) (*Result, error) {
	result := &Result{Grade: core.GradeInvalid}
	if len(batch) == 0 {
		return result, nil
	}

	p.logger.Info("processing batch", "category", category, "records", len(batch))

	cleanedBatch := p.clean(category, batch)
	validated := p.validateStructure(category, cleanedBatch, result)
	deduped := p.dedupe(validated, result)
	p.normalize(deduped)

	result.Records = deduped
	result.Grade = p.grade(deduped, len(batch), len(result.Errors))
	result.Warnings = p.warnings(deduped)

	p.logger.Debug("batch processed",
		"category", category,
		"records", len(result.Records),
		"errors", len(result.Errors),
		"duplicates", result.DuplicateCount,
		"grade", result.Grade.String())

	return result, nil
}

// clean trims string fields, drops empty and null values, and lifts the
// canonical bookkeeping fields onto the record, defaulting them if absent.
func (p *Processor) clean(category string, batch []core.RawRecord) []cleaned {
	now := time.Now().UTC()
	out := make([]cleaned, 0, len(batch))

	for _, raw := range batch {
		if raw == nil {
			continue
		}

		c := cleaned{rec: &core.Record{Fields: make(map[string]any, len(raw))}}
		for key, value := range raw {
			switch v := value.(type) {
			case string:
				trimmed := strings.TrimSpace(v)
				if trimmed != "" {
					c.rec.Fields[key] = trimmed
				}
			case nil:
				// dropped
			default:
				c.rec.Fields[key] = value
			}
		}

		// Lift category. A record's own tag wins over the batch category;
		// "type" is accepted as a legacy alias.
		switch {
		case c.rec.StringField(core.FieldCategory) != "":
			c.rec.Category = c.rec.StringField(core.FieldCategory)
		case c.rec.StringField(core.FieldType) != "":
			c.rec.Category = c.rec.StringField(core.FieldType)
		case category != "":
			c.rec.Category = category
			c.defaultedCategory = true
		default:
			c.rec.Category = core.CategoryUnknown
			c.defaultedCategory = true
		}
		delete(c.rec.Fields, core.FieldCategory)
		delete(c.rec.Fields, core.FieldType)

		// Lift extraction timestamp.
		if s := c.rec.StringField(core.FieldExtractedAt); s != "" {
			if ts, ok := core.ParseDate(s); ok {
				c.rec.ExtractedAt = ts
			}
		} else if ts, ok := c.rec.Fields[core.FieldExtractedAt].(time.Time); ok {
			c.rec.ExtractedAt = ts
		}
		if c.rec.ExtractedAt.IsZero() {
			c.rec.ExtractedAt = now
			c.defaultedExtracted = true
		}
		delete(c.rec.Fields, core.FieldExtractedAt)
		delete(c.rec.Fields, core.FieldContentHash)

		out = append(out, c)
	}
	return out
}

// validateStructure drops records missing the category's required fields
// or carrying unparseable dates or non-http URLs. One error string is
// appended per violation; dropped records go no further. The canonical
// fields count as missing only when they were defaulted during cleaning
// and the category lists them as required.
func (p *Processor) validateStructure(category string, batch []cleaned, result *Result) []*core.Record {
	required := p.required[category]

	out := make([]*core.Record, 0, len(batch))
	for i, c := range batch {
		var recErrors []string

		for _, field := range required {
			missing := false
			switch field {
			case core.FieldCategory:
				missing = c.defaultedCategory
			case core.FieldExtractedAt:
				missing = c.defaultedExtracted
			default:
				missing = !c.rec.HasField(field)
			}
			if missing {
				recErrors = append(recErrors, fmt.Sprintf("record %d: missing required field %q", i, field))
			}
		}

		for key, value := range c.rec.Fields {
			s, isStr := value.(string)
			if !isStr || s == "" {
				continue
			}
			if core.IsDateField(key) {
				parsed, ok := core.ParseDate(s)
				if !ok {
					recErrors = append(recErrors, fmt.Sprintf("record %d: invalid date format in %q", i, key))
					continue
				}
				c.rec.Fields[key] = parsed.Format(time.RFC3339)
			}
			if core.IsURLField(key) && !core.ValidURL(s) {
				recErrors = append(recErrors, fmt.Sprintf("record %d: invalid URL in %q", i, key))
			}
		}

		if len(recErrors) == 0 {
			out = append(out, c.rec)
		} else {
			result.Errors = append(result.Errors, recErrors...)
		}
	}
	return out
}

// dedupe keeps the first record per unique content hash and attaches the
// hash to the survivor.
func (p *Processor) dedupe(batch []*core.Record, result *Result) []*core.Record {
	seen := make(map[string]bool, len(batch))
	out := make([]*core.Record, 0, len(batch))
	for _, rec := range batch {
		hash := rec.Hash()
		if seen[hash] {
			result.DuplicateCount++
			continue
		}
		seen[hash] = true
		rec.ContentHash = hash
		out = append(out, rec)
	}
	return out
}

// normalize collapses whitespace runs in string fields and drops empty or
// null entries from sequence fields. Numeric and boolean fields are left
// untouched.
func (p *Processor) normalize(batch []*core.Record) {
	for _, rec := range batch {
		for key, value := range rec.Fields {
			switch v := value.(type) {
			case string:
				rec.Fields[key] = strings.Join(strings.Fields(v), " ")
			case []any:
				kept := make([]any, 0, len(v))
				for _, item := range v {
					if item == nil || item == "" {
						continue
					}
					kept = append(kept, item)
				}
				rec.Fields[key] = kept
			}
		}
	}
}

// grade computes the batch quality grade. Completeness is measured over the
// surviving records via presence of the canonical fields; the error ratio is
// measured against the total input size. An empty output batch is INVALID
// regardless of the ratios.
func (p *Processor) grade(records []*core.Record, totalInput, errorCount int) core.QualityGrade {
	if len(records) == 0 || totalInput == 0 {
		return core.GradeInvalid
	}

	complete := 0
	for _, rec := range records {
		if rec.Category != "" && !rec.ExtractedAt.IsZero() {
			complete++
		}
	}
	completeness := float64(complete) / float64(len(records))
	errorRatio := float64(errorCount) / float64(totalInput)

	t := p.thresholds
	switch {
	case completeness >= t.HighCompleteness && errorRatio <= t.HighErrorRatio:
		return core.GradeHigh
	case completeness >= t.MediumCompleteness && errorRatio <= t.MediumErrorRatio:
		return core.GradeMedium
	case completeness >= t.LowCompleteness && errorRatio <= t.LowErrorRatio:
		return core.GradeLow
	default:
		return core.GradeInvalid
	}
}

// warnings flags surviving records missing two or more of the important
// fields. Warnings never affect the grade and never drop records.
func (p *Processor) warnings(records []*core.Record) []string {
	var out []string
	for i, rec := range records {
		var missing []string
		for _, field := range p.important {
			if !rec.HasField(field) {
				missing = append(missing, field)
			}
		}
		if len(missing) >= 2 {
			out = append(out, fmt.Sprintf("record %d: missing important fields: %s", i, strings.Join(missing, ", ")))
		}
	}
	return out
}
