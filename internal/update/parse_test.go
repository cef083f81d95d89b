package update

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelector(t *testing.T) {
	sel, err := ParseSelector([]byte(`"abc"`))
	require.NoError(t, err)
	assert.Equal(t, ByID("abc"), sel)

	sel, err = ParseSelector([]byte(` {"z": 1, "a": 2.5, "m": null, "o": {"k": [1]}} `))
	require.NoError(t, err)
	assert.Equal(t, Selector{
		{Field: "z", Value: int64(1)},
		{Field: "a", Value: 2.5},
		{Field: "m", Value: nil},
		{Field: "o", Value: map[string]any{"k": []any{int64(1)}}},
	}, sel)

	for _, empty := range []string{"", "null", "{}"} {
		sel, err = ParseSelector([]byte(empty))
		require.NoError(t, err, empty)
		assert.Empty(t, sel, empty)
	}

	_, err = ParseSelector([]byte(`[1]`))
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = ParseSelector([]byte(`{"a": 1} {"b": 2}`))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseModifierKeepsOrder(t *testing.T) {
	mod, err := ParseModifier([]byte(`{
		"$unset": {"b": ""},
		"$set": {"z": "x", "c.d": 1e3},
		"$inc": {"n": 2},
		"$push": {"tags": "t"},
		"$addToSet": {"c.e": true}
	}`))
	require.NoError(t, err)
	assert.Equal(t, Modifier{
		Unset{Field: "b"},
		Set{Field: "z", Value: "x"},
		Set{Field: "c.d", Value: float64(1000)},
		Inc{Field: "n", Delta: int64(2)},
		Push{Field: "tags", Value: "t"},
		AddToSet{Field: "c.e", Value: true},
	}, mod)
}

func TestParseModifierErrors(t *testing.T) {
	_, err := ParseModifier([]byte(`{"$rename": {"a": "b"}}`))
	require.ErrorIs(t, err, ErrUnsupportedOperator)

	_, err = ParseModifier([]byte(`{"$set": 1}`))
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = ParseModifier([]byte(`{"$set": {"a": }}`))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestFromMapIsSorted(t *testing.T) {
	sel := SelectorFromMap(map[string]any{"b": 1, "a": 2})
	assert.Equal(t, Selector{{Field: "a", Value: 2}, {Field: "b", Value: 1}}, sel)

	mod, err := ModifierFromMap(map[string]any{
		"$unset": map[string]any{"y": "", "x": ""},
		"$set":   map[string]any{"b": 1, "a": 2},
		"$inc":   map[string]any{"n": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, Modifier{
		Set{Field: "a", Value: 2},
		Set{Field: "b", Value: 1},
		Inc{Field: "n", Delta: 1},
		Unset{Field: "x"},
		Unset{Field: "y"},
	}, mod)

	_, err = ModifierFromMap(map[string]any{"$set": "nope"})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = ModifierFromMap(map[string]any{"$pull": map[string]any{}})
	require.ErrorIs(t, err, ErrUnsupportedOperator)
}

func TestParsedInputCompiles(t *testing.T) {
	sel, err := ParseSelector([]byte(`{"a": 3}`))
	require.NoError(t, err)
	mod, err := ParseModifier([]byte(`{"$unset": {"b": ""}, "$set": {"c": "test"}}`))
	require.NoError(t, err)

	q, err := Compile(testRegistry(), "table", sel, mod, Options{})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "table" SET "c" = $1::JSONB , "b" = $2 WHERE "a" = $3 RETURNING "_id"`, q.SQL)
	assert.Equal(t, []any{`"test"`, nil, int64(3)}, q.Args)
}
