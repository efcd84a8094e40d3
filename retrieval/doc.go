// Package retrieval provides read access to stored batches: cached-first
// category reads, nearest-neighbor similarity queries, and quality reports
// over stored data. All operations are read-only.
package retrieval
