package remote

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/collapsinghierarchy/repsync/model"
)

// NetworkError covers transport failures, non-2xx answers and bodies that
// are not a valid response envelope.
type NetworkError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Retryable  bool
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: http %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() []error { return []error{model.ErrNetwork, e.Err} }

// RejectionError is a well-formed answer with status=false.
type RejectionError struct {
	Op     string
	Reason string
}

func (e *RejectionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: rejected by server", e.Op)
	}
	return fmt.Sprintf("%s: rejected by server: %s", e.Op, e.Reason)
}

func (e *RejectionError) Unwrap() error { return model.ErrRejected }

// IsRetryable reports whether err is a NetworkError worth retrying later.
func IsRetryable(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.Retryable
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}
