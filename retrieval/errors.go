package retrieval

import "errors"

var (
	// ErrPolicyTableRequired is returned when a policy table is not provided.
	ErrPolicyTableRequired = errors.New("policy table required")
)
