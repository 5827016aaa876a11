package session

import (
	"errors"
	"fmt"

	"peercall/internal/signaling"
)

var (
	// ErrNotConnected is returned when an operation needs a connected
	// signaling identity.
	ErrNotConnected = errors.New("session: not connected to signaling")
	// ErrCallInProgress guards the at-most-one-call invariant.
	ErrCallInProgress = errors.New("session: a call is already active")
	// ErrOpenTimeout fires when the signaling server never acknowledges
	// our identity.
	ErrOpenTimeout = errors.New("session: timed out waiting for signaling open")
	// ErrCallTimeout fires when an outgoing call never produces remote media.
	ErrCallTimeout = errors.New("session: timed out waiting for remote media")
	// ErrAlreadyInitialized is returned by a second Initialize; use Retry
	// to restart.
	ErrAlreadyInitialized = errors.New("session: already initialized")
)

// ErrorKind classifies failures for diagnostic messaging only; every kind
// drives the same error status.
type ErrorKind int

const (
	ErrorOther ErrorKind = iota
	ErrorNetwork
	ErrorIDTaken
	ErrorIncompatible
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNetwork:
		return "network"
	case ErrorIDTaken:
		return "id-taken"
	case ErrorIncompatible:
		return "incompatible"
	default:
		return "other"
	}
}

// ClassifiedError pairs a failure with its diagnostic kind.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

func classify(kind ErrorKind, err error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Err: err}
}

// KindOf extracts the diagnostic kind from an error chain.
func KindOf(err error) ErrorKind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrorOther
}

func kindForCode(code string) ErrorKind {
	switch code {
	case signaling.CodeIDTaken:
		return ErrorIDTaken
	case signaling.CodeIncompatible:
		return ErrorIncompatible
	case signaling.CodeServerError:
		return ErrorNetwork
	default:
		return ErrorOther
	}
}
