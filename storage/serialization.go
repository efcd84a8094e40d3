package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/opencivic/datahub/core"
)

// storedRecord is the persisted envelope for a processed record. Records are
// schema-less field maps, so the encoding is JSON with an explicit envelope
// for the canonical fields.
type storedRecord struct {
	Category    string         `json:"category"`
	ExtractedAt time.Time      `json:"extracted_at"`
	ContentHash string         `json:"content_hash"`
	Fields      map[string]any `json:"fields"`
}

// MarshalRecord serializes a Record to bytes.
func MarshalRecord(record *core.Record) ([]byte, error) {
	data, err := json.Marshal(storedRecord{
		Category:    record.Category,
		ExtractedAt: record.ExtractedAt,
		ContentHash: record.ContentHash,
		Fields:      record.Fields,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalRecord deserializes a Record from bytes.
func UnmarshalRecord(data []byte) (*core.Record, error) {
	var sr storedRecord
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &core.Record{
		Category:    sr.Category,
		ExtractedAt: sr.ExtractedAt,
		ContentHash: sr.ContentHash,
		Fields:      sr.Fields,
	}, nil
}
