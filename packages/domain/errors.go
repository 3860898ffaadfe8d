package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures for per-indexer reporting.
type Kind string

const (
	KindAuth       Kind = "auth"
	KindTransport  Kind = "transport"
	KindParse      Kind = "parse"
	KindExtraction Kind = "extraction"
	KindDefinition Kind = "definition"
)

// Error is a classified failure. Two errors match with errors.Is when their kinds match.
type Error struct {
	Kind    Kind
	Indexer string
	Message string
	cause   error
}

var (
	ErrAuth       = &Error{Kind: KindAuth, Message: "authentication failed"}
	ErrTransport  = &Error{Kind: KindTransport, Message: "transport failure"}
	ErrParse      = &Error{Kind: KindParse, Message: "malformed response"}
	ErrExtraction = &Error{Kind: KindExtraction, Message: "extraction failed"}
	ErrDefinition = &Error{Kind: KindDefinition, Message: "invalid definition"}
)

func (e *Error) Error() string {
	msg := e.Message
	if e.Indexer != "" {
		msg = e.Indexer + ": " + msg
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func newError(kind Kind, indexer string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Indexer: indexer, Message: fmt.Sprintf(format, args...), cause: cause}
}

func AuthError(indexer string, cause error, format string, args ...any) *Error {
	return newError(KindAuth, indexer, cause, format, args...)
}

func TransportError(indexer string, cause error, format string, args ...any) *Error {
	return newError(KindTransport, indexer, cause, format, args...)
}

func ParseError(indexer string, cause error, format string, args ...any) *Error {
	return newError(KindParse, indexer, cause, format, args...)
}

func ExtractionError(indexer string, cause error, format string, args ...any) *Error {
	return newError(KindExtraction, indexer, cause, format, args...)
}

func DefinitionError(indexer string, cause error, format string, args ...any) *Error {
	return newError(KindDefinition, indexer, cause, format, args...)
}
