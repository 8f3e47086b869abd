package compiler

import "fmt"

// Kind tags a compiler error with one of the taxonomy entries named by the
// specification, so callers can switch on it with errors.As.
type Kind string

const (
	UndeclaredName           Kind = "UndeclaredName"
	DuplicateName            Kind = "DuplicateName"
	UnknownType              Kind = "UnknownType"
	NotAMember               Kind = "NotAMember"
	ConstructorDeclaredTwice Kind = "ConstructorDeclaredTwice"
	InvalidAssignmentTarget  Kind = "InvalidAssignmentTarget"
)

// Error is the concrete error type returned by every failing compiler
// operation; it carries the taxonomy kind plus a human-readable detail.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Detail) }

func errf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
