package update

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/atlekbai/docwrite/internal/schema"
)

// jsTimeLayout is the ISO-8601 form documents use for dates stored in JSONB.
const jsTimeLayout = "2006-01-02T15:04:05.000Z"

// Cast converts value for a column stored as repr. It returns the value to
// bind and the "::TYPE" suffix to place after its placeholder. A nil value
// binds NULL without a cast.
func Cast(value any, repr schema.Representation) (any, string, error) {
	if value == nil {
		return nil, "", nil
	}
	suffix := "::" + repr.String()

	if repr.IsJSON() {
		s, err := marshalJSON(value)
		if err != nil {
			return nil, "", &ShapeMismatchError{Repr: repr.String(), Reason: err.Error()}
		}
		return s, suffix, nil
	}

	switch repr.Kind {
	case schema.KindText:
		if s, ok := value.(string); ok {
			return s, suffix, nil
		}
	case schema.KindInteger:
		if n, ok := intInRange(value, math.MinInt32, math.MaxInt32); ok {
			return n, suffix, nil
		}
	case schema.KindBigInt:
		if n, ok := intInRange(value, math.MinInt64, math.MaxInt64); ok {
			return n, suffix, nil
		}
	case schema.KindFloat:
		if isNumber(value) {
			return value, suffix, nil
		}
	case schema.KindNumeric:
		// json.Number keeps every digit when bound as text.
		if n, ok := value.(json.Number); ok {
			if _, err := n.Float64(); err == nil {
				return n.String(), suffix, nil
			}
		} else if isNumber(value) {
			return value, suffix, nil
		}
	case schema.KindBool:
		if b, ok := value.(bool); ok {
			return b, suffix, nil
		}
	case schema.KindTimestamp:
		switch v := value.(type) {
		case time.Time:
			return v, suffix, nil
		case string:
			return v, suffix, nil
		}
	case schema.KindNativeArray:
		if repr.IsArray() {
			if arr, ok := castArray(value, *repr.Elem); ok {
				return arr, suffix, nil
			}
		}
	}
	return nil, "", &ShapeMismatchError{
		Repr:   repr.String(),
		Reason: fmt.Sprintf("cannot store %s", describe(value)),
	}
}

// HintFor chooses a cast from the value itself. It is used for values written
// inside a JSONB column, where the registry has no per-path type.
func HintFor(value any) (any, string, error) {
	switch v := value.(type) {
	case nil:
		return nil, "", nil
	case string:
		return v, "::TEXT", nil
	case bool:
		return v, "::BOOL", nil
	case time.Time:
		return v, "::TIMESTAMPTZ", nil
	case json.Number:
		if _, err := v.Float64(); err != nil {
			return nil, "", &ShapeMismatchError{Reason: err.Error()}
		}
	}
	if isNumber(value) {
		if n, ok := intInRange(value, math.MinInt32, math.MaxInt32); ok {
			return n, "::INTEGER", nil
		}
		if n, ok := intInRange(value, math.MinInt64, math.MaxInt64); ok {
			return n, "::BIGINT", nil
		}
		if n, ok := value.(json.Number); ok {
			f, _ := n.Float64()
			return f, "::DOUBLE PRECISION", nil
		}
		return value, "::DOUBLE PRECISION", nil
	}
	s, err := marshalJSON(value)
	if err != nil {
		return nil, "", &ShapeMismatchError{Repr: "JSONB", Reason: err.Error()}
	}
	return s, "::JSONB", nil
}

// castArray normalizes the elements of a slice for a native array column.
func castArray(value any, elem schema.Representation) (any, bool) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if _, isBytes := value.([]byte); isBytes {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		v, _, err := Cast(rv.Index(i).Interface(), elem)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	if _, generic := value.([]any); !generic && !elem.IsJSON() {
		// Typed slices ([]string, []int64, ...) are bound as they are once
		// every element fits.
		return value, true
	}
	return out, true
}

// intInRange is asInteger limited to [lo, hi].
func intInRange(value any, lo, hi int64) (any, bool) {
	n, ok := asInteger(value)
	if !ok {
		return nil, false
	}
	rv := reflect.ValueOf(n)
	if rv.CanUint() {
		if rv.Uint() > uint64(hi) {
			return nil, false
		}
		return n, true
	}
	if i := rv.Int(); i < lo || i > hi {
		return nil, false
	}
	return n, true
}

// asInteger returns an integral number ready to bind. Go integers are
// returned unchanged; integral floats and json.Number become int64.
func asInteger(value any) (any, bool) {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return v, true
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) && math.Abs(v) < 1<<53 {
			return int64(v), true
		}
	case float32:
		f := float64(v)
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return int64(f), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
	}
	return nil, false
}

func isNumber(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	}
	return false
}

func isSlice(value any) bool {
	if _, ok := value.([]byte); ok {
		return false
	}
	if value == nil {
		return false
	}
	k := reflect.TypeOf(value).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// operatorKey returns the first "$"-prefixed key of an operator object.
func operatorKey(value any) (string, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return "", false
	}
	for k := range m {
		if len(k) > 0 && k[0] == '$' {
			return k, true
		}
	}
	return "", false
}

func describe(value any) string {
	switch value.(type) {
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case time.Time:
		return "a time"
	case map[string]any:
		return "an object"
	}
	if isNumber(value) {
		return "a number"
	}
	if isSlice(value) {
		return "an array"
	}
	return fmt.Sprintf("a value of type %T", value)
}

// marshalJSON serializes value as JSON text without HTML escaping. Times,
// including those nested in objects and arrays, use jsTimeLayout in UTC.
func marshalJSON(value any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(jsonTimes(value)); err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func jsonTimes(value any) any {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(jsTimeLayout)
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.UTC().Format(jsTimeLayout)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = jsonTimes(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = jsonTimes(e)
		}
		return out
	}
	return value
}
