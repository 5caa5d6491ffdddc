package core

import "fmt"

// ValidationError is returned when a picked file is not an acceptable input.
// It is local to the picker and never reaches the submission controller.
type ValidationError struct {
	FileName string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid file %q: %s", e.FileName, e.Reason)
}

// NetworkError wraps a transport-level connection failure.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServiceError is a non-2xx answer from the analysis service, carrying the
// message extracted from the response body when one was present.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("analysis service returned status %d", e.StatusCode)
}

// TimeoutError indicates the service did not answer within the bounded wait.
type TimeoutError struct {
	Elapsed string
}

func (e *TimeoutError) Error() string {
	return "the analysis server is taking too long to respond"
}
