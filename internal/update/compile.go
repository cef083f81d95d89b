package update

import (
	"fmt"

	"github.com/atlekbai/docwrite/internal/schema"
)

// Options controls the statement around the compiled modifier.
type Options struct {
	// Limit caps the number of affected rows when positive.
	Limit int
	// ReturnUpdated returns whole rows instead of their _id.
	ReturnUpdated bool
}

// Query is a compiled statement. Args[i-1] binds $i.
type Query struct {
	SQL  string
	Args []any
}

// Compile lowers a selector and a modifier into a single UPDATE statement.
// Modifier placeholders come first, then the selector's, then the limit.
func Compile(reg Registry, table string, sel Selector, mod Modifier, opts Options) (*Query, error) {
	if err := checkTarget(table, opts); err != nil {
		return nil, err
	}
	set, err := CompileModifier(reg, table, mod)
	if err != nil {
		return nil, err
	}
	where, err := CompileSelector(reg, table, sel)
	if err != nil {
		return nil, err
	}

	tbl := schema.QuoteIdent(table)
	stmt := Concat{Literal("UPDATE"), Literal(tbl), Literal("SET"), set}
	stmt = append(stmt, whereClause(tbl, where, opts.Limit, true))
	stmt = append(stmt, returning(opts.ReturnUpdated))
	return render(stmt)
}

// CompileDelete lowers a selector into a DELETE statement returning the
// removed _id values. ReturnUpdated returns whole rows instead.
func CompileDelete(reg Registry, table string, sel Selector, opts Options) (*Query, error) {
	if err := checkTarget(table, opts); err != nil {
		return nil, err
	}
	where, err := CompileSelector(reg, table, sel)
	if err != nil {
		return nil, err
	}

	tbl := schema.QuoteIdent(table)
	stmt := Concat{Literal("DELETE FROM"), Literal(tbl)}
	stmt = append(stmt, whereClause(tbl, where, opts.Limit, false))
	stmt = append(stmt, returning(opts.ReturnUpdated))
	return render(stmt)
}

func checkTarget(table string, opts Options) error {
	if table == "" {
		return invalidf("table name is empty")
	}
	if opts.Limit < 0 {
		return invalidf("limit must not be negative, got %d", opts.Limit)
	}
	return nil
}

// whereClause restricts the statement to rows matching where. With a limit
// the matching ids are picked by a subquery, locking them when lock is set.
func whereClause(tbl string, where Fragment, limit int, lock bool) Fragment {
	if limit > 0 {
		out := Concat{Literal("WHERE _id IN ("), Literal(`SELECT "_id" FROM`), Literal(tbl)}
		if !isEmpty(where) {
			out = append(out, Literal("WHERE"), where)
		}
		out = append(out, Literal("LIMIT"), Placeholder{Value: limit})
		if lock {
			return append(out, Literal("FOR UPDATE)"))
		}
		return append(out, Literal(")"))
	}
	if isEmpty(where) {
		return nil
	}
	return Concat{Literal("WHERE"), where}
}

func returning(all bool) Fragment {
	if all {
		return Literal("RETURNING *")
	}
	return Literal(`RETURNING "_id"`)
}

func render(stmt Fragment) (*Query, error) {
	sql, args, err := Render(stmt)
	if err != nil {
		return nil, fmt.Errorf("render statement: %w", err)
	}
	return &Query{SQL: sql, Args: args}, nil
}
