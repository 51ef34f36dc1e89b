// Package apperr classifies the failures a user action can surface: rejected
// credentials, unreachable backends, and malformed input. Every failure is
// converted to a local message at the triggering call site; nothing here is
// retried automatically.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindAuth Kind = iota + 1
	KindNetwork
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Code    string // protocol error code when the backend supplied one, e.g. M_FORBIDDEN
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Auth(code, message string) *Error {
	return &Error{Kind: KindAuth, Code: code, Message: message}
}

func Network(message string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Err: err}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsAuth(err error) bool       { return kindOf(err) == KindAuth }
func IsNetwork(err error) bool    { return kindOf(err) == KindNetwork }
func IsValidation(err error) bool { return kindOf(err) == KindValidation }
