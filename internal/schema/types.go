package schema

import (
	"fmt"
	"strings"
)

// QuoteIdent quotes a SQL identifier, escaping embedded double quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Kind is the storage kind of a column.
type Kind int

const (
	KindText Kind = iota
	KindInteger // 32-bit INTEGER
	KindBigInt
	KindFloat
	KindNumeric // arbitrary precision NUMERIC
	KindBool
	KindTimestamp
	KindJSONB         // JSONB blob holding any JSON value
	KindJSONContainer // JSONB object addressed through dotted paths
	KindNativeArray   // TYPE[] column, see Representation.Elem
)

// Representation describes how a column is stored in Postgres.
type Representation struct {
	Kind Kind
	Elem *Representation // only for KindNativeArray
}

var (
	Text          = Representation{Kind: KindText}
	Integer       = Representation{Kind: KindInteger}
	BigInt        = Representation{Kind: KindBigInt}
	Float         = Representation{Kind: KindFloat}
	Numeric       = Representation{Kind: KindNumeric}
	Bool          = Representation{Kind: KindBool}
	Timestamp     = Representation{Kind: KindTimestamp}
	JSONB         = Representation{Kind: KindJSONB}
	JSONContainer = Representation{Kind: KindJSONContainer}
)

// NativeArray returns the representation of a native Postgres array of elem.
func NativeArray(elem Representation) Representation {
	return Representation{Kind: KindNativeArray, Elem: &elem}
}

// IsJSON reports whether the column is stored as JSONB.
func (r Representation) IsJSON() bool {
	return r.Kind == KindJSONB || r.Kind == KindJSONContainer
}

// IsNumeric reports whether the column accepts $inc.
func (r Representation) IsNumeric() bool {
	switch r.Kind {
	case KindInteger, KindBigInt, KindFloat, KindNumeric:
		return true
	}
	return false
}

// IsArray reports whether the column is a native array.
func (r Representation) IsArray() bool {
	return r.Kind == KindNativeArray && r.Elem != nil
}

// String returns the Postgres type name, suitable for a :: cast.
func (r Representation) String() string {
	switch r.Kind {
	case KindText:
		return "TEXT"
	case KindInteger:
		return "INTEGER"
	case KindBigInt:
		return "BIGINT"
	case KindFloat:
		return "DOUBLE PRECISION"
	case KindNumeric:
		return "NUMERIC"
	case KindBool:
		return "BOOL"
	case KindTimestamp:
		return "TIMESTAMPTZ"
	case KindJSONB, KindJSONContainer:
		return "JSONB"
	case KindNativeArray:
		if r.Elem == nil {
			return "UNKNOWN[]"
		}
		return r.Elem.String() + "[]"
	default:
		return "UNKNOWN"
	}
}

// ParseType maps a Postgres type name (as written in DDL, in a schema file,
// or reported by information_schema) to a Representation.
func ParseType(typ string) (Representation, error) {
	t := strings.ToLower(strings.TrimSpace(typ))
	if t == "" {
		return Representation{}, fmt.Errorf("empty type")
	}

	if elem, ok := strings.CutSuffix(t, "[]"); ok {
		er, err := ParseType(elem)
		if err != nil {
			return Representation{}, err
		}
		if er.Kind == KindNativeArray {
			return Representation{}, fmt.Errorf("nested array type %q not supported", typ)
		}
		return NativeArray(er), nil
	}
	// information_schema reports array element types as "_int4", "_text", ...
	if elem, ok := strings.CutPrefix(t, "_"); ok {
		return ParseType(elem + "[]")
	}

	if strings.HasPrefix(t, "varchar") || strings.HasPrefix(t, "character varying") ||
		strings.HasPrefix(t, "char") {
		return Text, nil
	}
	// numeric(10,2), decimal(20)
	if strings.HasPrefix(t, "numeric(") || strings.HasPrefix(t, "decimal(") {
		return Numeric, nil
	}

	switch t {
	case "text", "string", "citext":
		return Text, nil
	case "integer", "int", "int2", "int4", "smallint", "serial":
		return Integer, nil
	case "int8", "bigint", "bigserial":
		return BigInt, nil
	case "float", "float4", "float8", "real", "double precision":
		return Float, nil
	case "numeric", "decimal":
		return Numeric, nil
	case "bool", "boolean":
		return Bool, nil
	case "timestamptz", "timestamp", "date",
		"timestamp with time zone", "timestamp without time zone":
		return Timestamp, nil
	case "jsonb", "json":
		return JSONB, nil
	case "json-container", "jsoncontainer", "jsonb-container":
		return JSONContainer, nil
	default:
		return Representation{}, fmt.Errorf("unsupported column type %q", typ)
	}
}

type FieldDef struct {
	Name string
	Repr Representation
}

type TableDef struct {
	Name         string
	Fields       []FieldDef
	FieldsByName map[string]*FieldDef
}

// NewTable builds a TableDef and its name index.
func NewTable(name string, fields ...FieldDef) *TableDef {
	t := &TableDef{
		Name:         name,
		Fields:       fields,
		FieldsByName: make(map[string]*FieldDef, len(fields)),
	}
	for i := range t.Fields {
		t.FieldsByName[t.Fields[i].Name] = &t.Fields[i]
	}
	return t
}

// TableName returns the quoted table name.
func (t *TableDef) TableName() string {
	return QuoteIdent(t.Name)
}
