// Package metrics defines the fire-and-forget measurement sink for backend
// operations. The in-memory implementation aggregates counters for an
// external monitoring collaborator to scrape; Noop discards everything.
package metrics
