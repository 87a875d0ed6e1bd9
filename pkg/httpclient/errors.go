package httpclient

import "fmt"

// RetryableError reports a request that was abandoned after exhausting
// its retry budget.
type RetryableError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RetryableError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}
