package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// TransientError wraps failures worth retrying: network errors, 5xx
// responses, and rate-limit rejections.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps failures that will not succeed on retry, such as
// a rejected credential or a malformed request.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// classifyStatus maps a non-2xx HTTP status to the retry taxonomy.
func classifyStatus(op string, code int, body string) error {
	err := fmt.Errorf("%s: status %d: %s", op, code, body)
	if code == http.StatusTooManyRequests || code >= 500 {
		return &TransientError{Err: err}
	}
	return &PermanentError{Err: err}
}
