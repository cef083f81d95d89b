package update

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Fragment is a piece of SQL together with the values bound inside it.
// Fragments are rendered by joining their atoms with single spaces; every
// Placeholder becomes the next $n in textual order.
type Fragment interface {
	render(r *renderer)
}

// Literal is raw SQL text. A '?' in it is kept literally.
type Literal string

// Placeholder binds Value, optionally followed by a cast such as "::TEXT".
type Placeholder struct {
	Value any
	Cast  string
}

// Concat is a sequence of fragments.
type Concat []Fragment

// Sqlizer adapts a squirrel expression (written with '?' placeholders).
func Sqlizer(s sq.Sqlizer) Fragment { return sqlizerFragment{s} }

type sqlizerFragment struct{ s sq.Sqlizer }

type renderer struct {
	parts []string
	args  []any
	marks int
	err   error
}

func (l Literal) render(r *renderer) {
	if l == "" {
		return
	}
	r.parts = append(r.parts, strings.ReplaceAll(string(l), "?", "??"))
}

func (p Placeholder) render(r *renderer) {
	r.parts = append(r.parts, "?"+p.Cast)
	r.args = append(r.args, p.Value)
	r.marks++
}

func (c Concat) render(r *renderer) {
	for _, f := range c {
		if f != nil {
			f.render(r)
		}
	}
}

func (f sqlizerFragment) render(r *renderer) {
	sql, args, err := f.s.ToSql()
	if err != nil {
		if r.err == nil {
			r.err = err
		}
		return
	}
	if sql == "" {
		return
	}
	r.parts = append(r.parts, sql)
	r.args = append(r.args, args...)
	r.marks += countMarks(sql)
}

// ToSql renders the fragment with '?' placeholders, so a Concat can be used
// anywhere squirrel expects a Sqlizer.
func (c Concat) ToSql() (string, []any, error) {
	r := &renderer{}
	c.render(r)
	if r.err != nil {
		return "", nil, r.err
	}
	if r.marks != len(r.args) {
		return "", nil, fmt.Errorf("fragment has %d placeholders for %d args", r.marks, len(r.args))
	}
	return strings.Join(r.parts, " "), r.args, nil
}

// Render renders f with Postgres $n placeholders. The number of
// placeholders always equals len(args).
func Render(f Fragment) (string, []any, error) {
	sql, args, err := Concat{f}.ToSql()
	if err != nil {
		return "", nil, err
	}
	sql, err = sq.Dollar.ReplacePlaceholders(sql)
	if err != nil {
		return "", nil, fmt.Errorf("renumber placeholders: %w", err)
	}
	return sql, args, nil
}

// isEmpty reports whether f renders no SQL at all.
func isEmpty(f Fragment) bool {
	if f == nil {
		return true
	}
	switch f := f.(type) {
	case Literal:
		return f == ""
	case Concat:
		for _, c := range f {
			if !isEmpty(c) {
				return false
			}
		}
		return true
	}
	return false
}

// countMarks counts '?' placeholders, skipping the "??" escape.
func countMarks(sql string) int {
	n := 0
	for i := 0; i < len(sql); i++ {
		if sql[i] != '?' {
			continue
		}
		if i+1 < len(sql) && sql[i+1] == '?' {
			i++
			continue
		}
		n++
	}
	return n
}
