// Package pipeline provides the ingestion quality pipeline for raw record
// batches.
//
// A Processor runs each batch through a fixed sequence of steps:
//   - Clean: trim string fields, drop empty values, default the canonical
//     category and extracted_at fields
//   - Structural validation: drop records missing required fields or
//     carrying malformed dates or URLs
//   - Dedup: keep the first record per unique content hash
//   - Normalize: collapse whitespace runs, prune empty sequence entries
//   - Grade: classify the batch HIGH/MEDIUM/LOW/INVALID
//
// Malformed records never fail the call; they are dropped and reported as
// error strings on the Result.
package pipeline
