// Package router implements the multi-backend storage router, the central
// state machine of datahub.
//
// Store runs one raw batch through the quality pipeline, resolves the
// category's policy, and fans the processed records out to the configured
// backends: durable store and/or document store as the primary, similarity
// index and batch cache as best-effort secondaries. The four writes run
// concurrently, each under its own timeout, with capped exponential retry
// at the single-backend-call level. Partial backend failure never aborts
// the call; the outcome records which backends succeeded and which failed.
//
// Backends are explicit optional dependencies: a nil handle is "not
// configured" and is silently skipped, unless the category's policy
// mandates that backend, in which case the call fails as a configuration
// error.
package router
