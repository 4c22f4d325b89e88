package fabricbridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/go-multierror"
)

// ErrInvalidRequest is returned before any network traffic when a request
// cannot be issued as described.
var ErrInvalidRequest = errors.New("invalid request")

// AuthError means the token provider could not supply a credential.
// It is never retried.
type AuthError struct {
	Audience string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("acquiring token for audience %q: %v", e.Audience, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError is a network level failure that outlived the retry budget.
// Err aggregates the error of every attempt.
type TransportError struct {
	Method   string
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.last())
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the final attempt failed because it timed out.
func (e *TransportError) Timeout() bool {
	return isTimeout(e.last())
}

func (e *TransportError) last() error {
	var merr *multierror.Error
	if errors.As(e.Err, &merr) && len(merr.Errors) > 0 {
		return merr.Errors[len(merr.Errors)-1]
	}
	return e.Err
}

// OperationError is the error object a failed operation reports in its
// status body.
type OperationError struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// OperationFailedError means an accepted operation reached a terminal state
// other than Succeeded, or its status could not be read.
type OperationFailedError struct {
	OperationID string
	State       OperationState
	StatusCode  int
	Diagnostics *OperationError
	Body        any

	// LastStatus is the last status read before the operation ended. It is
	// zero when the status endpoint itself failed on the first check.
	LastStatus OperationStatus
}

func (e *OperationFailedError) Error() string {
	msg := fmt.Sprintf("operation %s ended in state %s", e.OperationID, e.State)
	if e.StatusCode != 0 && (e.StatusCode < 200 || e.StatusCode > 299) {
		msg += fmt.Sprintf(" (status endpoint returned %d)", e.StatusCode)
	}
	if e.Diagnostics != nil && (e.Diagnostics.ErrorCode != "" || e.Diagnostics.Message != "") {
		msg += fmt.Sprintf(": %s: %s", e.Diagnostics.ErrorCode, e.Diagnostics.Message)
	}
	return msg
}

// OperationTimedOutError means the operation was still in progress when the
// poll budget ran out.
type OperationTimedOutError struct {
	OperationID string
	LastState   OperationState
	Waited      time.Duration
	LastStatus  OperationStatus
}

func (e *OperationTimedOutError) Error() string {
	msg := fmt.Sprintf("operation %s still %s after %s", e.OperationID, e.LastState, e.Waited.Round(time.Millisecond))
	if pct := e.LastStatus.PercentComplete; pct != nil {
		msg += fmt.Sprintf(" (%g%% complete)", *pct)
	}
	return msg
}

// UnexpectedStatusError means the status endpoint reported a value outside
// the known set. One occurrence is terminal.
type UnexpectedStatusError struct {
	OperationID string
	Status      string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("operation %s reported unrecognized status %q", e.OperationID, e.Status)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
