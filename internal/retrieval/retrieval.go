// Package retrieval implements the two knowledge source adapters: vector
// search over the unstructured document corpus and text-to-SQL over the
// structured relational corpus.
//
// Both adapters share one failure contract: an unreachable or timed-out
// backend raises ErrUnavailable, while zero matching results is a valid,
// empty response. Callers must never conflate the two.
package retrieval

import (
	"errors"
)

// Sentinel errors for adapter failures. Check with errors.Is().
var (
	// ErrUnavailable indicates the backing service could not be reached or
	// timed out. Distinct from an empty result set, which is not an error.
	ErrUnavailable = errors.New("retrieval unavailable")

	// ErrRejectedQuery indicates the generated SQL failed the read-only
	// guard and was not executed. Never retried.
	ErrRejectedQuery = errors.New("generated query rejected")
)

// SourceUnstructured and SourceStructured name the adapters in routing
// decisions, degraded-source lists and logs.
const (
	SourceUnstructured = "unstructured"
	SourceStructured   = "structured"
)

// Filters are optional metadata constraints passed through to the vector
// search unmodified (AND semantics), e.g. {"product_type": "cookbook"}.
type Filters map[string]string
