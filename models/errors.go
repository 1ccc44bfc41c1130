package models

import "errors"

var (
	// ErrFatalInput marks an empty or unusable document. Never retried.
	ErrFatalInput = errors.New("fatal input error")
	// ErrTransientProvider marks rate limits, timeouts and 5xx responses
	// from embedding, LLM or vector services.
	ErrTransientProvider = errors.New("transient provider error")
	// ErrProviderRejected marks a non-retryable provider failure such as an
	// invalid request or a content policy block.
	ErrProviderRejected = errors.New("provider rejected request")
	ErrStageFailure     = errors.New("stage failure")
	ErrCacheCorruption  = errors.New("cache corruption")
	ErrTaskTimeout      = errors.New("task timed out")
	ErrTaskNotFound     = errors.New("task not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidRequest   = errors.New("invalid request")
)

// ResultStatusFor maps a stage error onto an AgentResult status.
func ResultStatusFor(err error) ResultStatus {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrTransientProvider):
		return ResultRetryableError
	default:
		return ResultFatalError
	}
}
