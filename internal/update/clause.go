package update

import (
	"fmt"
	"strings"
)

// Op is a modifier operator.
type Op int

const (
	OpSet Op = iota
	OpInc
	OpPush
	OpAddToSet
	OpUnset
)

// opNames is also the canonical operator order used for unordered input.
var opNames = [...]string{
	OpSet:      "$set",
	OpInc:      "$inc",
	OpPush:     "$push",
	OpAddToSet: "$addToSet",
	OpUnset:    "$unset",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// ParseOp resolves an operator name such as "$set".
func ParseOp(name string) (Op, error) {
	for i, n := range opNames {
		if n == name {
			return Op(i), nil
		}
	}
	return 0, &UnsupportedOperatorError{Operator: name}
}

// Clause is one field-level instruction of a modifier. The set of clauses
// is closed: Set, Unset, Inc, Push and AddToSet.
type Clause interface {
	Op() Op
	Path() string
	clause()
}

// Set assigns Value to Field. A nil Value clears the field.
type Set struct {
	Field string
	Value any
}

// Unset clears Field.
type Unset struct {
	Field string
}

// Inc adds Delta to a numeric Field; a NULL field counts as zero.
type Inc struct {
	Field string
	Delta any
}

// Push appends Value to an array Field.
type Push struct {
	Field string
	Value any
}

// AddToSet appends Value to an array Field unless already present.
type AddToSet struct {
	Field string
	Value any
}

func (Set) Op() Op      { return OpSet }
func (Unset) Op() Op    { return OpUnset }
func (Inc) Op() Op      { return OpInc }
func (Push) Op() Op     { return OpPush }
func (AddToSet) Op() Op { return OpAddToSet }

func (c Set) Path() string      { return c.Field }
func (c Unset) Path() string    { return c.Field }
func (c Inc) Path() string      { return c.Field }
func (c Push) Path() string     { return c.Field }
func (c AddToSet) Path() string { return c.Field }

func (Set) clause()      {}
func (Unset) clause()    {}
func (Inc) clause()      {}
func (Push) clause()     {}
func (AddToSet) clause() {}

// NewClause builds the clause for op. The value of an $unset is ignored.
func NewClause(op Op, path string, value any) (Clause, error) {
	switch op {
	case OpSet:
		return Set{Field: path, Value: value}, nil
	case OpUnset:
		return Unset{Field: path}, nil
	case OpInc:
		return Inc{Field: path, Delta: value}, nil
	case OpPush:
		return Push{Field: path, Value: value}, nil
	case OpAddToSet:
		return AddToSet{Field: path, Value: value}, nil
	}
	return nil, &UnsupportedOperatorError{Operator: op.String(), Field: path}
}

// Modifier is an ordered list of clauses.
type Modifier []Clause

// Eq is a single equality predicate of a selector.
type Eq struct {
	Field string
	Value any
}

// Selector is an ordered conjunction of equality predicates.
type Selector []Eq

// ByID selects the row whose _id equals id.
func ByID(id string) Selector {
	return Selector{{Field: "_id", Value: id}}
}

// splitPath splits "c.d.e" into the column "c" and the remaining segments.
func splitPath(path string) (string, []string, error) {
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return "", nil, invalidf("invalid field path %q", path)
		}
	}
	return parts[0], parts[1:], nil
}
