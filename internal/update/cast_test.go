package update

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlekbai/docwrite/internal/schema"
)

func TestCast(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 30, 0, 5_000_000, time.FixedZone("X", 3600))

	tests := []struct {
		name       string
		value      any
		repr       schema.Representation
		wantArg    any
		wantSuffix string
	}{
		{"nil text", nil, schema.Text, nil, ""},
		{"nil json", nil, schema.JSONB, nil, ""},
		{"text", "hi", schema.Text, "hi", "::TEXT"},
		{"go int", 7, schema.Integer, 7, "::INTEGER"},
		{"integral float", float64(7), schema.Integer, int64(7), "::INTEGER"},
		{"json number", json.Number("12"), schema.Integer, int64(12), "::INTEGER"},
		{"int32 bounds", int64(math.MaxInt32), schema.Integer, int64(math.MaxInt32), "::INTEGER"},
		{"bigint", int64(3_000_000_000), schema.BigInt, int64(3_000_000_000), "::BIGINT"},
		{"bigint from float", float64(1 << 40), schema.BigInt, int64(1 << 40), "::BIGINT"},
		{"numeric", int64(123456789012345678), schema.Numeric, int64(123456789012345678), "::NUMERIC"},
		{"numeric fraction", 2.5, schema.Numeric, 2.5, "::NUMERIC"},
		{"numeric digits", json.Number("12345678901234567890.125"), schema.Numeric, "12345678901234567890.125", "::NUMERIC"},
		{"float", 1.25, schema.Float, 1.25, "::DOUBLE PRECISION"},
		{"int into float", 2, schema.Float, 2, "::DOUBLE PRECISION"},
		{"bool", false, schema.Bool, false, "::BOOL"},
		{"time", when, schema.Timestamp, when, "::TIMESTAMPTZ"},
		{"time string", "2024-03-01", schema.Timestamp, "2024-03-01", "::TIMESTAMPTZ"},
		{"json string", "x", schema.JSONB, `"x"`, "::JSONB"},
		{"json scalar", 3, schema.JSONContainer, "3", "::JSONB"},
		{"json array", []any{1, "a", nil}, schema.JSONB, `[1,"a",null]`, "::JSONB"},
		{"json object", map[string]any{"b": 1, "a": true}, schema.JSONB, `{"a":true,"b":1}`, "::JSONB"},
		{"json time", when, schema.JSONB, `"2024-03-01T11:30:00.005Z"`, "::JSONB"},
		{"json nested time", map[string]any{"at": when}, schema.JSONB, `{"at":"2024-03-01T11:30:00.005Z"}`, "::JSONB"},
		{"generic array", []any{float64(1), float64(2)}, schema.NativeArray(schema.Integer), []any{int64(1), int64(2)}, "::INTEGER[]"},
		{"typed array", []int64{1, 2}, schema.NativeArray(schema.Integer), []int64{1, 2}, "::INTEGER[]"},
		{"typed text array", []string{"a"}, schema.NativeArray(schema.Text), []string{"a"}, "::TEXT[]"},
		{"bigint array", []int64{3_000_000_000}, schema.NativeArray(schema.BigInt), []int64{3_000_000_000}, "::BIGINT[]"},
		{"json array column", []any{map[string]any{"a": 1}}, schema.NativeArray(schema.JSONB), []any{`{"a":1}`}, "::JSONB[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arg, suffix, err := Cast(tt.value, tt.repr)
			require.NoError(t, err)
			assert.Equal(t, tt.wantArg, arg)
			assert.Equal(t, tt.wantSuffix, suffix)
		})
	}
}

func TestCastMismatch(t *testing.T) {
	tests := []struct {
		name  string
		value any
		repr  schema.Representation
	}{
		{"number into text", 1, schema.Text},
		{"fraction into integer", 1.5, schema.Integer},
		{"integer overflow", int64(3_000_000_000), schema.Integer},
		{"negative integer overflow", int64(math.MinInt32) - 1, schema.Integer},
		{"bigint overflow", uint64(math.MaxUint64), schema.BigInt},
		{"string into numeric", "1.5", schema.Numeric},
		{"bad json number into numeric", json.Number("x"), schema.Numeric},
		{"typed ints into text array", []int{1, 2}, schema.NativeArray(schema.Text)},
		{"typed maps into text array", []map[string]int{{"a": 1}}, schema.NativeArray(schema.Text)},
		{"typed overflow into integer array", []int64{3_000_000_000}, schema.NativeArray(schema.Integer)},
		{"string into float", "1.5", schema.Float},
		{"string into bool", "true", schema.Bool},
		{"number into timestamp", 5, schema.Timestamp},
		{"scalar into array", "a", schema.NativeArray(schema.Text)},
		{"bad element", []any{"a"}, schema.NativeArray(schema.Integer)},
		{"bytes into array", []byte("ab"), schema.NativeArray(schema.Integer)},
		{"unencodable json", map[string]any{"f": func() {}}, schema.JSONB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Cast(tt.value, tt.repr)
			require.ErrorIs(t, err, ErrShapeMismatch)
		})
	}
}

func TestHintFor(t *testing.T) {
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name     string
		value    any
		wantArg  any
		wantHint string
	}{
		{"nil", nil, nil, ""},
		{"string", "s", "s", "::TEXT"},
		{"int", 4, 4, "::INTEGER"},
		{"integral float", 4.0, int64(4), "::INTEGER"},
		{"big int", int64(3_000_000_000), int64(3_000_000_000), "::BIGINT"},
		{"fraction", 3.14159265, 3.14159265, "::DOUBLE PRECISION"},
		{"json number", json.Number("4.5"), 4.5, "::DOUBLE PRECISION"},
		{"json integer", json.Number("7"), int64(7), "::INTEGER"},
		{"bool", true, true, "::BOOL"},
		{"time", when, when, "::TIMESTAMPTZ"},
		{"object", map[string]any{"k": "v"}, `{"k":"v"}`, "::JSONB"},
		{"array", []any{1, 2}, `[1,2]`, "::JSONB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arg, hint, err := HintFor(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.wantArg, arg)
			assert.Equal(t, tt.wantHint, hint)
		})
	}
}

// The representation comes from the registry, never from the value: the same
// string lands as TEXT in a text column and as JSON text in a JSONB column.
func TestCastFollowsRepresentation(t *testing.T) {
	arg, suffix, err := Cast("v", schema.Text)
	require.NoError(t, err)
	assert.Equal(t, "v", arg)
	assert.Equal(t, "::TEXT", suffix)

	arg, suffix, err = Cast("v", schema.JSONContainer)
	require.NoError(t, err)
	assert.Equal(t, `"v"`, arg)
	assert.Equal(t, "::JSONB", suffix)
}

// Registries loaded from information_schema keep the declared width.
func TestCastUsesDeclaredNumericType(t *testing.T) {
	bigint, err := schema.ParseType("bigint")
	require.NoError(t, err)
	_, suffix, err := Cast(int64(3_000_000_000), bigint)
	require.NoError(t, err)
	assert.Equal(t, "::BIGINT", suffix)

	numeric, err := schema.ParseType("numeric")
	require.NoError(t, err)
	arg, suffix, err := Cast(int64(123456789012345678), numeric)
	require.NoError(t, err)
	assert.Equal(t, int64(123456789012345678), arg)
	assert.Equal(t, "::NUMERIC", suffix)
}
