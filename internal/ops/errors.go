package ops

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation       Kind = "validation"
	KindPermissionDenied Kind = "permission_denied"
	KindNotFound         Kind = "not_found"
	KindPrecondition     Kind = "precondition_failed"
	// KindTransient means the request did not take effect and may be retried.
	KindTransient Kind = "transient"
	// KindUnknownOutcome means the request may or may not have been applied.
	KindUnknownOutcome Kind = "unknown_outcome"
	KindInternal       Kind = "internal"
)

// Wire error codes shared by the server and the client.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidBody  = "INVALID_BODY"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodePrecondition = "PRECONDITION_FAILED"
	CodeConflict     = "CONFLICT"
	CodeInProgress   = "IDEMPOTENCY_IN_PROGRESS"
	CodeUnavailable  = "UNAVAILABLE"
	CodeServerError  = "SERVER_ERROR"
)

type Error struct {
	Kind      Kind
	Operation Name
	Code      string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Operation == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Operation, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var opErr *Error
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return KindInternal
}

func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// WireError is a failure reported by the server in the error envelope.
type WireError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func (e *WireError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// DeliveryError is a failure below the envelope. Written is false only when
// the request is known not to have reached the server.
type DeliveryError struct {
	Written bool
	Err     error
}

func (e *DeliveryError) Error() string {
	if e.Written {
		return "request outcome unknown: " + e.Err.Error()
	}
	return "request not sent: " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// KindForCode maps a wire error code to the client-facing kind.
func KindForCode(code string) Kind {
	switch code {
	case CodeValidation, CodeInvalidBody:
		return KindValidation
	case CodeUnauthorized, CodeForbidden:
		return KindPermissionDenied
	case CodeNotFound:
		return KindNotFound
	case CodePrecondition:
		return KindPrecondition
	case CodeInProgress, CodeUnavailable:
		return KindTransient
	default:
		return KindInternal
	}
}

func validationError(op Name, msg string) *Error {
	return &Error{Kind: KindValidation, Operation: op, Code: CodeValidation, Message: msg}
}

func preconditionError(op Name, msg string) *Error {
	return &Error{Kind: KindPrecondition, Operation: op, Code: CodePrecondition, Message: msg}
}
