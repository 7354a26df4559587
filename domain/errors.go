package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies every error surfaced to callers of the orchestration core.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"
	KindNetwork    ErrorKind = "network"
	KindValidation ErrorKind = "validation"
	KindProvider   ErrorKind = "provider"
	KindState      ErrorKind = "state"
)

func (k ErrorKind) String() string {
	return string(k)
}

// Retryable reports whether an operation failing with this kind may succeed
// when repeated without changing its input.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindAuth, KindNetwork, KindProvider:
		return true
	default:
		return false
	}
}

func ParseErrorKind(s string) (ErrorKind, error) {
	switch k := ErrorKind(s); k {
	case KindAuth, KindNetwork, KindValidation, KindProvider, KindState:
		return k, nil
	default:
		return "", fmt.Errorf("invalid error kind: %q", s)
	}
}

// Error is the classified error type. Op names the operation that failed,
// Message is safe to show to a user and Err keeps the underlying cause.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// Sentinels for errors.Is matching by kind only.
var (
	ErrAuth       = &Error{Kind: KindAuth}
	ErrNetwork    = &Error{Kind: KindNetwork}
	ErrValidation = &Error{Kind: KindValidation}
	ErrProvider   = &Error{Kind: KindProvider}
	ErrState      = &Error{Kind: KindState}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(string(e.Kind))
		b.WriteString(" error")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare sentinel (no Op, Message or Err) by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Message != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func AuthError(op, format string, args ...any) *Error {
	return newError(KindAuth, op, format, args...)
}

func NetworkError(op, format string, args ...any) *Error {
	return newError(KindNetwork, op, format, args...)
}

func ValidationError(op, format string, args ...any) *Error {
	return newError(KindValidation, op, format, args...)
}

func ProviderError(op, format string, args ...any) *Error {
	return newError(KindProvider, op, format, args...)
}

func StateError(op, format string, args ...any) *Error {
	return newError(KindState, op, format, args...)
}

// Wrap classifies err under kind. An err that is already a *Error keeps its
// own classification.
func Wrap(kind ErrorKind, op string, err error, message string) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

func IsRetryable(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind.Retryable()
}

// UserMessage returns the part of err that is meant for people.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		if de.Message != "" {
			return de.Message
		}
		if de.Err != nil {
			return de.Err.Error()
		}
		return string(de.Kind) + " error"
	}
	return err.Error()
}
