package enrichment

import "context"

// ====================================================================================
// The model invoker boundary. Instead of sentinel errors the invoker reports a
// tagged outcome, so the retry loop branches on the tag rather than matching
// error types. Only throttling is retryable; everything else degrades straight
// to the fallback summary.
// ====================================================================================

// OutcomeKind tags an invocation result.
type OutcomeKind int

const (
	// OutcomeOK means the model returned a summary.
	OutcomeOK OutcomeKind = iota
	// OutcomeThrottled means the dependency signalled rate limiting; the call
	// may be retried with backoff.
	OutcomeThrottled
	// OutcomeFatal means the call failed in a way retrying cannot fix.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// InvokeResult is the typed result of one model invocation.
type InvokeResult struct {
	Kind    OutcomeKind
	Summary string
	Err     error
}

// ModelInvoker performs a single content-to-summary inference call.
type ModelInvoker interface {
	Invoke(ctx context.Context, prompt string) InvokeResult
}
