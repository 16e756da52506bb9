package onboarding

import (
	"errors"
	"fmt"
	"strings"
)

// Validation failure reasons, matched with errors.Is against a *ValidationError.
var (
	ErrMissingKey          = errors.New("entities must not have empty keys")
	ErrDuplicateKeys       = errors.New("collection contains duplicate keys")
	ErrDuplicateProperties = errors.New("entities contain duplicated properties")
)

// PreconditionError reports an argument the caller must never pass, such as a
// nil entity slice or a blank data source.
type PreconditionError struct {
	Argument string
	Message  string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Argument, e.Message)
}

// ValidationError reports a structural problem with an entity batch. Keys lists
// the offending entity keys for duplicate key and duplicate property failures.
type ValidationError struct {
	Reason error
	Keys   []string
}

func (e *ValidationError) Error() string {
	switch {
	case errors.Is(e.Reason, ErrDuplicateKeys):
		return fmt.Sprintf("%v: %s", e.Reason, strings.Join(e.Keys, ","))
	case errors.Is(e.Reason, ErrDuplicateProperties):
		return fmt.Sprintf("entities %s contain duplicated properties", strings.Join(e.Keys, ","))
	default:
		return e.Reason.Error()
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// AuthenticationError is returned when the service refuses to issue a token.
// The service gives no detail, so neither does the message.
type AuthenticationError struct {
	StatusCode int
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("couldn't obtain a token (status %d): check your data provider credentials", e.StatusCode)
}

// AuthorizationError is returned when an import is rejected with 401 or 403.
type AuthorizationError struct {
	StatusCode int
	Reason     string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s (status %d): check your data provider credentials and data source name", e.Reason, e.StatusCode)
}

// DeserializationError is returned when a response body does not match the
// expected envelope. StatusCode and Reason describe the response the body came
// with; they are zero when no status applies.
type DeserializationError struct {
	Operation  string
	StatusCode int
	Reason     string
	Err        error
}

func (e *DeserializationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to parse %s response (status %d %s): %v", e.Operation, e.StatusCode, e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to parse %s response: %v", e.Operation, e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// BatchError ties a failure to the position of its batch in ImportBatches.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// BatchErrors flattens the error returned by ImportBatches into its
// per-batch failures, keyed by batch index.
func BatchErrors(err error) map[int]error {
	out := map[int]error{}
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if be, ok := err.(*BatchError); ok {
			out[be.Index] = be.Err
			return
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				walk(e)
			}
		}
	}
	walk(err)
	return out
}
