package update

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type member struct {
	key string
	raw json.RawMessage
}

// ParseSelector decodes a selector from JSON. A JSON string is a bare _id;
// an object keeps its key order. null and empty input select every row.
func ParseSelector(data []byte) (Selector, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return nil, invalidf("selector: %v", err)
		}
		return ByID(id), nil
	}

	members, err := readObject(data)
	if err != nil {
		return nil, invalidf("selector: %v", err)
	}
	sel := make(Selector, 0, len(members))
	for _, m := range members {
		v, err := decodeValue(m.raw)
		if err != nil {
			return nil, invalidf("selector field %q: %v", m.key, err)
		}
		sel = append(sel, Eq{Field: m.key, Value: v})
	}
	return sel, nil
}

// ParseModifier decodes a modifier from JSON, keeping the order of both the
// operators and the fields inside each operator.
func ParseModifier(data []byte) (Modifier, error) {
	ops, err := readObject(bytes.TrimSpace(data))
	if err != nil {
		return nil, invalidf("modifier: %v", err)
	}

	var mod Modifier
	for _, o := range ops {
		op, err := ParseOp(o.key)
		if err != nil {
			return nil, err
		}
		fields, err := readObject(o.raw)
		if err != nil {
			return nil, invalidf("modifier %s: %v", o.key, err)
		}
		for _, f := range fields {
			v, err := decodeValue(f.raw)
			if err != nil {
				return nil, invalidf("modifier %s field %q: %v", o.key, f.key, err)
			}
			c, err := NewClause(op, f.key, v)
			if err != nil {
				return nil, err
			}
			mod = append(mod, c)
		}
	}
	return mod, nil
}

// SelectorFromMap builds a selector from an unordered map; keys are sorted.
func SelectorFromMap(m map[string]any) Selector {
	keys := sortedKeys(m)
	sel := make(Selector, 0, len(keys))
	for _, k := range keys {
		sel = append(sel, Eq{Field: k, Value: m[k]})
	}
	return sel
}

// ModifierFromMap builds a modifier from an unordered map. Operators follow
// the order $set, $inc, $push, $addToSet, $unset; fields are sorted.
func ModifierFromMap(m map[string]any) (Modifier, error) {
	byOp := make(map[Op]map[string]any, len(m))
	for name, v := range m {
		op, err := ParseOp(name)
		if err != nil {
			return nil, err
		}
		fields, ok := v.(map[string]any)
		if !ok {
			return nil, invalidf("modifier %s: expected an object, got %s", name, describe(v))
		}
		byOp[op] = fields
	}

	var mod Modifier
	for op := range opNames {
		fields := byOp[Op(op)]
		for _, k := range sortedKeys(fields) {
			c, err := NewClause(Op(op), k, fields[k])
			if err != nil {
				return nil, err
			}
			mod = append(mod, c)
		}
	}
	return mod, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// readObject returns the members of a JSON object in document order.
func readObject(data []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected an object")
	}

	var out []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected an object key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, member{key: key, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after object")
	}
	return out, nil
}

// decodeValue decodes a JSON value, turning numbers into int64 when they are
// integral and float64 otherwise.
func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch v := v.(type) {
	case json.Number:
		if !strings.ContainsAny(string(v), ".eE") {
			if n, err := v.Int64(); err == nil {
				return n
			}
		}
		f, _ := v.Float64()
		return f
	case map[string]any:
		for k, e := range v {
			v[k] = normalizeNumbers(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = normalizeNumbers(e)
		}
		return v
	}
	return v
}
