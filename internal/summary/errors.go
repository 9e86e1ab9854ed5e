package summary

import (
	"errors"
	"fmt"
)

// Error kinds
const (
	KindUnresolvedNetwork = "unresolved_network"
	KindUpstream          = "upstream"
)

// ErrUnresolvedNetwork is wrapped by every error raised when a network cannot be
// mapped to an organization
var ErrUnresolvedNetwork = errors.New("network could not be resolved")

// Error is a request-level summary failure
type Error struct {
	Kind    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// CauseString returns the underlying cause as text, or an empty string
func (e *Error) CauseString() string {
	if e.Cause == nil {
		return ""
	}
	return e.Cause.Error()
}

func unresolved(networkID string, cause error) *Error {
	if cause == nil {
		cause = ErrUnresolvedNetwork
	} else {
		cause = fmt.Errorf("%w: %w", ErrUnresolvedNetwork, cause)
	}
	return &Error{
		Kind:    KindUnresolvedNetwork,
		Message: fmt.Sprintf("network %s could not be resolved to an organization", networkID),
		Cause:   cause,
	}
}

func upstreamFailure(what string, cause error) *Error {
	return &Error{
		Kind:    KindUpstream,
		Message: fmt.Sprintf("failed to fetch %s", what),
		Cause:   cause,
	}
}
