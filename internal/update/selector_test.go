package update

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileSelector(t *testing.T) {
	tests := []struct {
		name     string
		sel      Selector
		wantSQL  string
		wantArgs []any
	}{
		{"empty", nil, "", nil},
		{"by id", ByID("x1"), `"_id" = $1`, []any{"x1"}},
		{"and in order", Selector{{Field: "b", Value: "q"}, {Field: "a", Value: 1}}, `"b" = $1 AND "a" = $2`, []any{"q", 1}},
		{"null", Selector{{Field: "b", Value: nil}}, `"b" IS NULL`, nil},
		{"false", Selector{{Field: "flag", Value: false}}, `"flag" IS FALSE`, nil},
		{"array contains", Selector{{Field: "nums", Value: 3}}, `"nums" @> ARRAY[ $1 ]::INTEGER[]`, []any{3}},
		{"array equals", Selector{{Field: "tags", Value: []any{"a"}}}, `"tags" = $1::TEXT[]`, []any{[]any{"a"}}},
		{"json column", Selector{{Field: "meta", Value: map[string]any{"k": 1}}}, `"meta" = $1::JSONB`, []any{`{"k":1}`}},
		{"json path number", Selector{{Field: "c.n", Value: 2}}, `("c"->'n')::INTEGER = $1`, []any{2}},
		{"json path index", Selector{{Field: "c.list.0", Value: "a"}}, `("c"->'list'->>0)::TEXT = $1`, []any{"a"}},
		{"json path null", Selector{{Field: "c.d", Value: nil}}, `("c"->>'d') IS NULL`, nil},
		{"question mark in column", Selector{{Field: "ok?", Value: "y"}, {Field: "a", Value: 1}}, `"ok?" = $1 AND "a" = $2`, []any{"y", 1}},
		{"question mark in column null", Selector{{Field: "ok?", Value: nil}}, `"ok?" IS NULL`, nil},
		{"json path big int", Selector{{Field: "c.n", Value: int64(3_000_000_000)}}, `("c"->'n')::BIGINT = $1`, []any{int64(3_000_000_000)}},
		{"json path object", Selector{{Field: "c.d", Value: []any{1}}}, `("c"->'d') = $1::JSONB`, []any{`[1]`}},
	}

	reg := testRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := CompileSelector(reg, "table", tt.sel)
			require.NoError(t, err)
			sql, args, err := Render(f)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestCompileSelectorErrors(t *testing.T) {
	tests := []struct {
		name string
		sel  Selector
		want error
	}{
		{"unknown field", Selector{{Field: "nope", Value: 1}}, ErrMissingFieldMetadata},
		{"logical operator", Selector{{Field: "$or", Value: []any{}}}, ErrUnsupportedOperator},
		{"comparison operator", Selector{{Field: "a", Value: map[string]any{"$gt": 1}}}, ErrUnsupportedOperator},
		{"path into text", Selector{{Field: "b.x", Value: 1}}, ErrShapeMismatch},
		{"array against scalar column", Selector{{Field: "a", Value: []any{1}}}, ErrShapeMismatch},
		{"object against scalar column", Selector{{Field: "b", Value: map[string]any{"k": 1}}}, ErrShapeMismatch},
		{"bad element", Selector{{Field: "nums", Value: "x"}}, ErrShapeMismatch},
	}

	reg := testRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileSelector(reg, "table", tt.sel)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

// _id is accepted without registry metadata.
func TestSelectorIDWithoutMetadata(t *testing.T) {
	reg := testRegistry()
	f, err := CompileSelector(reg, "other", ByID("1"))
	require.NoError(t, err)
	sql, _, err := Render(f)
	require.NoError(t, err)
	assert.Equal(t, `"_id" = $1`, sql)
}

func TestCompileQuestionMarkColumn(t *testing.T) {
	q, err := Compile(testRegistry(), "table",
		Selector{{Field: "ok?", Value: "y"}},
		Modifier{Set{Field: "ok?", Value: "z"}, Set{Field: "big", Value: int64(3_000_000_000)}},
		Options{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t,
		`UPDATE "table" SET "ok?" = $1::TEXT , "big" = $2::BIGINT WHERE _id IN ( SELECT "_id" FROM "table" WHERE "ok?" = $3 LIMIT $4 FOR UPDATE) RETURNING "_id"`,
		q.SQL)
	assert.Equal(t, []any{"z", int64(3_000_000_000), "y", 1}, q.Args)
}
