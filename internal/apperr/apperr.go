// Package apperr classifies the failures the engine returns to callers.
// Every expected failure carries a Kind; anything without one is treated as
// an internal storage fault.
package apperr

import "errors"

type Kind string

const (
	NotFound     Kind = "NOT_FOUND"
	Unauthorized Kind = "UNAUTHORIZED"
	Conflict     Kind = "CONFLICT"
	InvalidState Kind = "INVALID_STATE"
	Blocked      Kind = "BLOCKED"
	Validation   Kind = "VALIDATION_ERROR"
	Internal     Kind = "INTERNAL"
)

// Error is a typed failure. Packages declare them as sentinels and add
// detail by wrapping with fmt.Errorf("%w: ...").
type Error struct {
	Kind    Kind
	Message string
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// KindOf returns the kind of the first typed error in err's chain, or
// Internal when there is none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return Internal
}

// IsKind reports whether err is a typed failure of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
