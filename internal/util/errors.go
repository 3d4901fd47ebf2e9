// Package util holds the closed error-kind taxonomy shared by every layer
// of the engine, plus the typed error that carries it.
package util

import "fmt"

// Kind is the closed set of error categories the engine can surface.
// Callers that need to branch on failure reason should switch on Kind
// rather than string-match an error message.
type Kind int

const (
	KindInvalidDatabase Kind = iota
	KindInvalidDatabaseVersion
	KindFileNotFound
	KindFileCorrupted
	KindLockTimeout
	KindIndexDuplicateKey
	KindIndexNotFound
	KindIndexKeyTooLong
	KindInvalidFormat
	KindDocumentMaxDepth
	KindInvalidDataType
	KindCollectionLimitSize
)

func (k Kind) String() string {
	switch k {
	case KindInvalidDatabase:
		return "InvalidDatabase"
	case KindInvalidDatabaseVersion:
		return "InvalidDatabaseVersion"
	case KindFileNotFound:
		return "FileNotFound"
	case KindFileCorrupted:
		return "FileCorrupted"
	case KindLockTimeout:
		return "LockTimeout"
	case KindIndexDuplicateKey:
		return "IndexDuplicateKey"
	case KindIndexNotFound:
		return "IndexNotFound"
	case KindIndexKeyTooLong:
		return "IndexKeyTooLong"
	case KindInvalidFormat:
		return "InvalidFormat"
	case KindDocumentMaxDepth:
		return "DocumentMaxDepth"
	case KindInvalidDataType:
		return "InvalidDataType"
	case KindCollectionLimitSize:
		return "CollectionLimitSize"
	default:
		return "Unknown"
	}
}

// Error is the engine's typed error. It carries a closed Kind plus free-form
// context and an optional wrapped cause, so both errors.Is/As and
// github.com/pkg/errors.Cause can unwrap it.
type Error struct {
	Kind    Kind
	Context string
	cause   error
}

func New(kind Kind, context string) *Error {
	return &Error{Kind: kind, Context: context}
}

func Wrap(kind Kind, context string, cause error) *Error {
	return &Error{Kind: kind, Context: context, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.cause)
	}
	if e.Context != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Context)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.cause }

// Cause satisfies github.com/pkg/errors' Causer interface.
func (e *Error) Cause() error { return e.cause }

// Is lets errors.Is(err, util.New(KindX, "")) match on Kind alone, ignoring
// Context and cause.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}
