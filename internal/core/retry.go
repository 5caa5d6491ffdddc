package core

// RetryPolicy gates when a retry of the last submission is permitted. Retry
// is offered only after a timeout while the same file is still selected;
// Failed and Completed submissions require a fresh user action instead.
type RetryPolicy struct{}

// NewRetryPolicy creates a new retry policy.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{}
}

// Allowed reports whether a retry may be issued for the given controller
// state and selected file.
func (p *RetryPolicy) Allowed(state SubmissionState, file *SelectedFile) bool {
	return state == StateTimedOut && file != nil
}
