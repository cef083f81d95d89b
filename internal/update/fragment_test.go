package update

import (
	"errors"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderNumbersInTextualOrder(t *testing.T) {
	f := Concat{
		Literal("SELECT"),
		Placeholder{Value: 1, Cast: "::INTEGER"},
		Literal(","),
		Concat{Placeholder{Value: "a"}, Literal(""), Concat{}},
		Literal("WHERE"),
		Sqlizer(sq.Eq{`"x"`: 2}),
		Literal("AND"),
		Sqlizer(sq.Expr(`"y" BETWEEN ? AND ?`, 3, 4)),
	}

	sql, args, err := Render(f)
	require.NoError(t, err)
	assert.Equal(t, `SELECT $1::INTEGER , $2 WHERE "x" = $3 AND "y" BETWEEN $4 AND $5`, sql)
	assert.Equal(t, []any{1, "a", 2, 3, 4}, args)
}

func TestLiteralQuestionMarksAreNotPlaceholders(t *testing.T) {
	sql, args, err := Render(Concat{Literal(`'{a?}'`), Placeholder{Value: 1}, Literal("?")})
	require.NoError(t, err)
	assert.Equal(t, `'{a?}' $1 ?`, sql)
	assert.Equal(t, []any{1}, args)
}

func TestConcatIsASqlizer(t *testing.T) {
	inner := Concat{Literal(`"a" =`), Placeholder{Value: 5}}
	sql, args, err := sq.Select("*").From("t").Where(inner).PlaceholderFormat(sq.Dollar).ToSql()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM t WHERE "a" = $1`, sql)
	assert.Equal(t, []any{5}, args)
}

type failingSqlizer struct{}

func (failingSqlizer) ToSql() (string, []any, error) { return "", nil, errors.New("boom") }

type lyingSqlizer struct{}

func (lyingSqlizer) ToSql() (string, []any, error) { return "? = ?", []any{1}, nil }

func TestRenderErrors(t *testing.T) {
	_, _, err := Render(Concat{Literal("x"), Sqlizer(failingSqlizer{})})
	require.EqualError(t, err, "boom")

	_, _, err = Render(Sqlizer(lyingSqlizer{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 placeholders for 1 args")
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, isEmpty(nil))
	assert.True(t, isEmpty(Concat{}))
	assert.True(t, isEmpty(Concat{Literal(""), Concat{nil}}))
	assert.False(t, isEmpty(Concat{Placeholder{}}))
	assert.False(t, isEmpty(Literal("x")))
}
