package srcom

import "fmt"

// TransientError indicates a retryable failure: rate limiting, server
// errors, or transport problems. Callers should try again later.
type TransientError struct {
	Status int
	URL    string
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transient API error: HTTP %d (%s)", e.Status, e.URL)
	}
	return fmt.Sprintf("transient API error: %v (%s)", e.Err, e.URL)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError indicates a failure that will not resolve by retrying:
// a bad request, an unknown resource, or a response we cannot decode.
type PermanentError struct {
	Status int
	URL    string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("permanent API error: HTTP %d (%s)", e.Status, e.URL)
	}
	return fmt.Sprintf("permanent API error: %v (%s)", e.Err, e.URL)
}

func (e *PermanentError) Unwrap() error { return e.Err }
