package router

import "errors"

var (
	// ErrPolicyTableRequired is returned when a policy table is not provided.
	ErrPolicyTableRequired = errors.New("policy table required")

	// ErrDurableStoreRequired indicates a category policy mandates the
	// durable store but none is configured.
	ErrDurableStoreRequired = errors.New("policy requires durable store but none is configured")

	// ErrDocumentStoreRequired indicates a category policy mandates the
	// document store but none is configured.
	ErrDocumentStoreRequired = errors.New("policy requires document store but none is configured")

	// ErrPrimaryUnavailable indicates none of the backends a policy
	// mandates are configured.
	ErrPrimaryUnavailable = errors.New("no configured backend can satisfy the category policy")

	// ErrInvalidMaxAttempts is returned for a non-positive retry attempt count.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")
)
