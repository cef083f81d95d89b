package update

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedOperator  = errors.New("unsupported operator")
	ErrUnsupportedNesting   = errors.New("unsupported nesting")
	ErrMissingFieldMetadata = errors.New("missing field metadata")
	ErrShapeMismatch        = errors.New("shape mismatch")
	ErrConflictingUpdate    = errors.New("conflicting update")
	ErrEmptyModifier        = errors.New("modifier has no clauses")
)

// UnsupportedOperatorError is returned for operators outside
// $set, $unset, $inc, $push and $addToSet, and for operator objects
// ({"$gt": 1}, {"$each": [...]}) used as values.
type UnsupportedOperatorError struct {
	Operator string
	Field    string
}

func (e *UnsupportedOperatorError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("unsupported operator %q", e.Operator)
	}
	return fmt.Sprintf("unsupported operator %q on field %q", e.Operator, e.Field)
}

func (e *UnsupportedOperatorError) Is(target error) bool { return target == ErrUnsupportedOperator }

// UnsupportedNestingError is returned when a clause reaches deeper into a
// JSONB column than the lowering supports.
type UnsupportedNestingError struct {
	Op     Op
	Path   string
	Reason string
}

func (e *UnsupportedNestingError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("%s on nested path %q is not supported", e.Op, e.Path)
}

func (e *UnsupportedNestingError) Is(target error) bool { return target == ErrUnsupportedNesting }

// MissingFieldMetadataError is returned when the registry does not know a
// referenced column.
type MissingFieldMetadataError struct {
	Table string
	Field string
}

func (e *MissingFieldMetadataError) Error() string {
	return fmt.Sprintf("no type metadata for field %q of table %q", e.Field, e.Table)
}

func (e *MissingFieldMetadataError) Is(target error) bool { return target == ErrMissingFieldMetadata }

// ShapeMismatchError is returned when a value or a path does not fit the
// column's representation.
type ShapeMismatchError struct {
	Table  string
	Field  string
	Op     Op
	Repr   string
	Reason string
}

func (e *ShapeMismatchError) Error() string {
	var b strings.Builder
	b.WriteString("shape mismatch")
	if e.Field != "" {
		fmt.Fprintf(&b, " on field %q", e.Field)
	}
	if e.Repr != "" {
		fmt.Fprintf(&b, " (%s)", e.Repr)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *ShapeMismatchError) Is(target error) bool { return target == ErrShapeMismatch }

// ConflictingUpdateError is returned when two clauses would assign the same
// column in ways that cannot be folded into one assignment.
type ConflictingUpdateError struct {
	Table  string
	Column string
	Paths  []string
}

func (e *ConflictingUpdateError) Error() string {
	return fmt.Sprintf("conflicting updates to column %q: %s", e.Column, strings.Join(e.Paths, ", "))
}

func (e *ConflictingUpdateError) Is(target error) bool { return target == ErrConflictingUpdate }

// IsCompileError reports whether err was produced by the compiler because of
// the caller's input, as opposed to an execution failure.
func IsCompileError(err error) bool {
	return errors.Is(err, ErrUnsupportedOperator) ||
		errors.Is(err, ErrUnsupportedNesting) ||
		errors.Is(err, ErrMissingFieldMetadata) ||
		errors.Is(err, ErrShapeMismatch) ||
		errors.Is(err, ErrConflictingUpdate) ||
		errors.Is(err, ErrEmptyModifier) ||
		errors.Is(err, ErrInvalidInput)
}

// ErrInvalidInput wraps malformed selector or modifier documents.
var ErrInvalidInput = errors.New("invalid input")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// withField fills in the location of a shape mismatch raised by Cast.
func withField(err error, table, field string, op Op) error {
	var sm *ShapeMismatchError
	if errors.As(err, &sm) {
		out := *sm
		out.Table, out.Field, out.Op = table, field, op
		return &out
	}
	return err
}
