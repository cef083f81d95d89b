package update

import (
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/atlekbai/docwrite/internal/schema"
)

// Registry supplies the storage representation of top-level columns.
// *schema.Cache implements it.
type Registry interface {
	Representation(table, field string) (schema.Representation, bool)
}

const idField = "_id"

// CompileSelector lowers sel to a WHERE body. Predicates are ANDed in the
// order given; an empty selector yields an empty fragment.
func CompileSelector(reg Registry, table string, sel Selector) (Fragment, error) {
	var out Concat
	for i, eq := range sel {
		f, err := compileEq(reg, table, eq)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			out = append(out, Literal("AND"))
		}
		out = append(out, f)
	}
	return out, nil
}

func compileEq(reg Registry, table string, eq Eq) (Fragment, error) {
	if strings.HasPrefix(eq.Field, "$") {
		return nil, &UnsupportedOperatorError{Operator: eq.Field}
	}
	if op, ok := operatorKey(eq.Value); ok {
		return nil, &UnsupportedOperatorError{Operator: op, Field: eq.Field}
	}

	column, rest, err := splitPath(eq.Field)
	if err != nil {
		return nil, err
	}
	repr, ok := reg.Representation(table, column)
	if !ok {
		if column != idField || len(rest) > 0 {
			return nil, &MissingFieldMetadataError{Table: table, Field: column}
		}
		repr = schema.Text
	}
	col := schema.QuoteIdent(column)
	// squirrel output is not escaped like Literal, so a '?' in the
	// identifier is doubled before it reaches sq.Eq.
	eqCol := strings.ReplaceAll(col, "?", "??")

	if len(rest) > 0 {
		if !repr.IsJSON() {
			return nil, &ShapeMismatchError{
				Table: table, Field: eq.Field, Repr: repr.String(),
				Reason: "nested path on a non-JSON column",
			}
		}
		return compileJSONPathEq(col, rest, eq.Value)
	}

	switch v := eq.Value.(type) {
	case nil:
		return Sqlizer(sq.Eq{eqCol: nil}), nil
	case bool:
		if repr.Kind == schema.KindBool {
			if v {
				return Literal(col + " IS TRUE"), nil
			}
			return Literal(col + " IS FALSE"), nil
		}
	}

	switch {
	case repr.IsJSON():
		arg, cast, err := Cast(eq.Value, repr)
		if err != nil {
			return nil, withField(err, table, eq.Field, OpSet)
		}
		return Concat{Literal(col + " ="), Placeholder{Value: arg, Cast: cast}}, nil

	case repr.IsArray():
		if isSlice(eq.Value) {
			arg, cast, err := Cast(eq.Value, repr)
			if err != nil {
				return nil, withField(err, table, eq.Field, OpSet)
			}
			return Concat{Literal(col + " ="), Placeholder{Value: arg, Cast: cast}}, nil
		}
		arg, _, err := Cast(eq.Value, *repr.Elem)
		if err != nil {
			return nil, withField(err, table, eq.Field, OpSet)
		}
		return Concat{
			Literal(col + " @> ARRAY["),
			Placeholder{Value: arg},
			Literal("]::" + repr.String()),
		}, nil
	}

	if isSlice(eq.Value) {
		return nil, &ShapeMismatchError{
			Table: table, Field: eq.Field, Repr: repr.String(),
			Reason: "cannot compare a scalar column with an array",
		}
	}
	if _, isObject := eq.Value.(map[string]any); isObject {
		return nil, &ShapeMismatchError{
			Table: table, Field: eq.Field, Repr: repr.String(),
			Reason: "cannot compare a scalar column with an object",
		}
	}
	return Sqlizer(sq.Eq{eqCol: eq.Value}), nil
}

// compileJSONPathEq compares a value nested in a JSONB column, casting the
// extracted element to the type of the value.
func compileJSONPathEq(col string, rest []string, value any) (Fragment, error) {
	arg, hint, err := HintFor(value)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("(")
	b.WriteString(col)
	for i, seg := range rest {
		arrow := "->"
		if i == len(rest)-1 && (hint == "::TEXT" || value == nil) {
			arrow = "->>"
		}
		b.WriteString(arrow)
		b.WriteString(jsonKey(seg))
	}
	b.WriteString(")")

	if value == nil {
		return Literal(b.String() + " IS NULL"), nil
	}
	if hint == "::JSONB" {
		return Concat{Literal(b.String() + " ="), Placeholder{Value: arg, Cast: hint}}, nil
	}
	return Concat{Literal(b.String() + hint + " ="), Placeholder{Value: arg}}, nil
}

// jsonKey renders one JSONB path step: an array index for digits, a quoted
// key otherwise.
func jsonKey(seg string) string {
	if n, err := strconv.Atoi(seg); err == nil && n >= 0 && strconv.Itoa(n) == seg {
		return seg
	}
	return quoteLit(seg)
}

// quoteLit quotes a SQL string literal.
func quoteLit(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
