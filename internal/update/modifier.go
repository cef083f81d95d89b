package update

import (
	"strings"

	"github.com/atlekbai/docwrite/internal/schema"
)

// columnGroup collects the clauses that assign the same column.
type columnGroup struct {
	column  string
	clauses []Clause
	nested  [][]string // path segments below the column, per clause
}

// CompileModifier lowers mod to the assignment list of an UPDATE.
//
// Non-$unset clauses come first, in input order, followed by the $unset
// clauses. Clauses touching the same JSONB column are folded into one
// assignment, applied in that order.
func CompileModifier(reg Registry, table string, mod Modifier) (Fragment, error) {
	if len(mod) == 0 {
		return nil, ErrEmptyModifier
	}

	groups, err := groupClauses(table, orderClauses(mod))
	if err != nil {
		return nil, err
	}

	var out Concat
	for i, g := range groups {
		f, err := compileGroup(reg, table, g)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			out = append(out, Literal(","))
		}
		out = append(out, f)
	}
	return out, nil
}

func orderClauses(mod Modifier) Modifier {
	out := make(Modifier, 0, len(mod))
	for _, c := range mod {
		if c.Op() != OpUnset {
			out = append(out, c)
		}
	}
	for _, c := range mod {
		if c.Op() == OpUnset {
			out = append(out, c)
		}
	}
	return out
}

func groupClauses(table string, mod Modifier) ([]*columnGroup, error) {
	var groups []*columnGroup
	byColumn := make(map[string]*columnGroup)

	for _, c := range mod {
		column, rest, err := splitPath(c.Path())
		if err != nil {
			return nil, err
		}
		g := byColumn[column]
		if g == nil {
			g = &columnGroup{column: column}
			byColumn[column] = g
			groups = append(groups, g)
		}
		g.clauses = append(g.clauses, c)
		g.nested = append(g.nested, rest)
	}

	for _, g := range groups {
		if err := g.checkConflicts(table); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// checkConflicts rejects a whole-column assignment next to any other clause
// on that column, and nested paths that repeat or contain one another.
func (g *columnGroup) checkConflicts(table string) error {
	if len(g.clauses) < 2 {
		return nil
	}
	for i, a := range g.nested {
		for j := i + 1; j < len(g.nested); j++ {
			b := g.nested[j]
			if len(a) == 0 || len(b) == 0 || isPrefix(a, b) || isPrefix(b, a) {
				return &ConflictingUpdateError{
					Table:  table,
					Column: g.column,
					Paths:  []string{g.clauses[i].Path(), g.clauses[j].Path()},
				}
			}
		}
	}
	return nil
}

func isPrefix(prefix, path []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if prefix[i] != path[i] {
			return false
		}
	}
	return true
}

func compileGroup(reg Registry, table string, g *columnGroup) (Fragment, error) {
	repr, ok := reg.Representation(table, g.column)
	if !ok {
		return nil, &MissingFieldMetadataError{Table: table, Field: g.column}
	}
	col := schema.QuoteIdent(g.column)

	if len(g.clauses) == 1 && len(g.nested[0]) == 0 {
		rhs, err := lowerTopLevel(table, col, repr, g.clauses[0])
		if err != nil {
			return nil, err
		}
		return Concat{Literal(col + " ="), rhs}, nil
	}

	if !repr.IsJSON() {
		return nil, &ShapeMismatchError{
			Table:  table,
			Field:  g.clauses[0].Path(),
			Op:     g.clauses[0].Op(),
			Repr:   repr.String(),
			Reason: "nested path on a non-JSON column",
		}
	}

	var expr Fragment = Literal(col)
	for i, c := range g.clauses {
		var err error
		expr, err = lowerNested(table, expr, g.nested[i], c)
		if err != nil {
			return nil, err
		}
	}
	return Concat{Literal(col + " ="), expr}, nil
}

// lowerTopLevel returns the right-hand side of an assignment to a whole
// column.
func lowerTopLevel(table, col string, repr schema.Representation, c Clause) (Fragment, error) {
	switch c := c.(type) {
	case Set:
		arg, cast, err := Cast(c.Value, repr)
		if err != nil {
			return nil, withField(err, table, c.Field, OpSet)
		}
		return Placeholder{Value: arg, Cast: cast}, nil

	case Unset:
		return Placeholder{Value: nil}, nil

	case Inc:
		if !repr.IsNumeric() {
			return nil, &ShapeMismatchError{
				Table: table, Field: c.Field, Op: OpInc, Repr: repr.String(),
				Reason: "$inc needs a numeric column",
			}
		}
		if !isNumber(c.Delta) {
			return nil, &ShapeMismatchError{
				Table: table, Field: c.Field, Op: OpInc, Repr: repr.String(),
				Reason: "cannot increment by " + describe(c.Delta),
			}
		}
		arg, cast, err := Cast(c.Delta, repr)
		if err != nil {
			return nil, withField(err, table, c.Field, OpInc)
		}
		return Concat{
			Literal("COALESCE("), Literal(col), Literal(", 0 ) +"),
			Placeholder{Value: arg, Cast: cast},
		}, nil

	case Push:
		return lowerAppend(table, col, repr, c.Field, c.Value, OpPush, "ARRAY_APPEND(")

	case AddToSet:
		return lowerAppend(table, col, repr, c.Field, c.Value, OpAddToSet, "fm_add_to_set(")
	}
	return nil, &UnsupportedOperatorError{Operator: c.Op().String(), Field: c.Path()}
}

func lowerAppend(table, col string, repr schema.Representation, field string, value any, op Op, fn string) (Fragment, error) {
	if opName, ok := operatorKey(value); ok {
		return nil, &UnsupportedOperatorError{Operator: opName, Field: field}
	}
	if !repr.IsArray() {
		return nil, &ShapeMismatchError{
			Table: table, Field: field, Op: op, Repr: repr.String(),
			Reason: op.String() + " needs an array column",
		}
	}
	arg, cast, err := Cast(value, *repr.Elem)
	if err != nil {
		return nil, withField(err, table, field, op)
	}
	if value == nil {
		cast = "::" + repr.Elem.String()
	}
	return Concat{
		Literal(fn), Literal(col), Literal(","),
		Placeholder{Value: arg, Cast: cast},
		Literal(")"),
	}, nil
}

// lowerNested wraps base, the current value of a JSONB column, in the
// expression applying clause c at the given path below the column.
func lowerNested(table string, base Fragment, path []string, c Clause) (Fragment, error) {
	switch c := c.(type) {
	case Set:
		if c.Value == nil {
			return lowerNestedUnset(base, path, c)
		}
		if opName, ok := operatorKey(c.Value); ok {
			return nil, &UnsupportedOperatorError{Operator: opName, Field: c.Field}
		}
		arg, hint, err := HintFor(c.Value)
		if err != nil {
			return nil, withField(err, table, c.Field, OpSet)
		}
		return Concat{
			Literal("JSONB_SET("), base, Literal(","),
			Literal(pathLiteral(path)),
			Literal("::TEXT[], TO_JSONB("),
			Placeholder{Value: arg, Cast: hint},
			Literal("), TRUE)"),
		}, nil

	case Unset:
		return lowerNestedUnset(base, path, c)

	case AddToSet:
		if opName, ok := operatorKey(c.Value); ok {
			return nil, &UnsupportedOperatorError{Operator: opName, Field: c.Field}
		}
		if c.Value == nil {
			return nil, &ShapeMismatchError{
				Table: table, Field: c.Field, Op: OpAddToSet, Repr: "JSONB",
				Reason: "cannot add null to a set",
			}
		}
		arg, hint, err := HintFor(c.Value)
		if err != nil {
			return nil, withField(err, table, c.Field, OpAddToSet)
		}
		return Concat{
			Literal("fm_add_to_set("), base, Literal(","),
			Literal(pathLiteral(path)),
			Literal("::TEXT[]"), Literal(","),
			Placeholder{Value: arg, Cast: hint},
			Literal(")"),
		}, nil
	}
	return nil, &UnsupportedNestingError{Op: c.Op(), Path: c.Path()}
}

func lowerNestedUnset(base Fragment, path []string, c Clause) (Fragment, error) {
	if len(path) > 1 {
		return nil, &UnsupportedNestingError{
			Op:     c.Op(),
			Path:   c.Path(),
			Reason: "Unsetting a field past the first level of a JSON blob is not yet supported.",
		}
	}
	return Concat{base, Literal("- " + quoteLit(path[0]))}, nil
}

// pathLiteral renders segments as a Postgres TEXT[] literal, e.g. '{d, e}'.
func pathLiteral(segments []string) string {
	elems := make([]string, len(segments))
	for i, s := range segments {
		elems[i] = arrayElem(s)
	}
	return quoteLit("{" + strings.Join(elems, ", ") + "}")
}

func arrayElem(s string) string {
	if s != "" && !strings.ContainsAny(s, ",{}\" \\\t\n") && !strings.EqualFold(s, "null") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
