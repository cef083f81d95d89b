package schema

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"
)

const loadQuery = `
SELECT c.table_name, c.column_name, c.data_type, c.udt_name
FROM information_schema.columns c
WHERE c.table_schema = $1
ORDER BY c.table_name, c.ordinal_position
`

// Cache is the field type registry: table name -> column representations.
// It is safe for concurrent use and may be reloaded while being read.
type Cache struct {
	mu     sync.RWMutex
	tables map[string]*TableDef
}

func NewCache() *Cache {
	return &Cache{
		tables: make(map[string]*TableDef),
	}
}

// NewCacheFromTables builds a cache from in-memory definitions.
func NewCacheFromTables(tables ...*TableDef) *Cache {
	c := NewCache()
	for _, t := range tables {
		c.tables[t.Name] = t
	}
	return c
}

// Load replaces the cache contents with the columns of every table in the
// given Postgres schema.
func (c *Cache) Load(ctx context.Context, pool *pgxpool.Pool, dbSchema string) error {
	rows, err := pool.Query(ctx, loadQuery, dbSchema)
	if err != nil {
		return fmt.Errorf("schema cache load: %w", err)
	}
	defer rows.Close()

	fields := make(map[string][]FieldDef)
	var order []string

	for rows.Next() {
		var tableName, columnName, dataType, udtName string
		if err := rows.Scan(&tableName, &columnName, &dataType, &udtName); err != nil {
			return fmt.Errorf("schema cache scan: %w", err)
		}

		typ := dataType
		if dataType == "ARRAY" || dataType == "USER-DEFINED" {
			typ = udtName
		}
		repr, err := ParseType(typ)
		if err != nil {
			// Columns we cannot write to (vectors, enums, ...) stay unknown and
			// surface as missing metadata if a modifier references them.
			continue
		}

		if _, ok := fields[tableName]; !ok {
			order = append(order, tableName)
		}
		fields[tableName] = append(fields[tableName], FieldDef{Name: columnName, Repr: repr})
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("schema cache rows: %w", err)
	}

	tables := make(map[string]*TableDef, len(order))
	for _, name := range order {
		tables[name] = NewTable(name, fields[name]...)
	}

	c.replace(tables)
	return nil
}

// fileSchema is the YAML layout accepted by LoadFile:
//
//	tables:
//	  posts:
//	    title: text
//	    tags: text[]
//	    meta: jsonb
type fileSchema struct {
	Tables map[string]yaml.Node `yaml:"tables"`
}

// LoadFile reads table definitions from a YAML file.
func LoadFile(path string) (*Cache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	c := NewCache()
	if err := c.LoadYAML(data); err != nil {
		return nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	return c, nil
}

// LoadYAML replaces the cache contents with the tables described in data.
// Column order follows the document order.
func (c *Cache) LoadYAML(data []byte) error {
	var doc fileSchema
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}

	tables := make(map[string]*TableDef, len(doc.Tables))
	for name, node := range doc.Tables {
		if node.Kind != yaml.MappingNode {
			return fmt.Errorf("table %q: expected a mapping of column -> type", name)
		}
		var fields []FieldDef
		for i := 0; i+1 < len(node.Content); i += 2 {
			col := node.Content[i].Value
			repr, err := ParseType(node.Content[i+1].Value)
			if err != nil {
				return fmt.Errorf("table %q column %q: %w", name, col, err)
			}
			fields = append(fields, FieldDef{Name: col, Repr: repr})
		}
		tables[name] = NewTable(name, fields...)
	}

	c.replace(tables)
	return nil
}

func (c *Cache) replace(tables map[string]*TableDef) {
	c.mu.Lock()
	c.tables = tables
	c.mu.Unlock()
}

// Get returns the table definition, or nil when the table is unknown.
func (c *Cache) Get(table string) *TableDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tables[table]
}

// Representation returns the storage representation of a top-level column.
func (c *Cache) Representation(table, field string) (Representation, bool) {
	t := c.Get(table)
	if t == nil {
		return Representation{}, false
	}
	f := t.FieldsByName[field]
	if f == nil {
		return Representation{}, false
	}
	return f.Repr, true
}

// TableNames returns the loaded table names, sorted.
func (c *Cache) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TableCount returns the number of loaded tables.
func (c *Cache) TableCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}
