// Package oracle implements the semantic extraction and assessment ports
// of the intake engine: an OpenAI-backed oracle, an offline heuristic one,
// and the retrying wrapper every production call goes through.
package oracle

import "errors"

// ErrNonRetryable marks failures that a retry cannot fix, such as a
// rejected API key or a malformed request.
var ErrNonRetryable = errors.New("non-retryable oracle error")
