// Package embed defines the text embedding abstraction used by the storage
// router and the retrieval facade.
//
// The production implementation (embed/openai) talks to any OpenAI-compatible
// embedding API; embed/mock provides a deterministic in-process implementation
// for tests and minimal deployments.
package embed
