package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Function is a SQL helper function that compiled statements call.
type Function struct {
	Name     string
	Overload string
	Source   string
}

// Key identifies an overload, e.g. "fm_add_to_set_json".
func (f Function) Key() string {
	if f.Overload == "" {
		return f.Name
	}
	return f.Name + "_" + f.Overload
}

// Functions lists the helpers in dependency order.
var Functions = []Function{
	{
		Name: "fm_build_nested_jsonb",
		Source: `CREATE OR REPLACE FUNCTION fm_build_nested_jsonb(
  target_path TEXT[],
  terminal_element JSONB
)
RETURNS JSONB LANGUAGE sql IMMUTABLE AS
'SELECT JSONB_BUILD_OBJECT(
  target_path[1],
  CASE
    WHEN CARDINALITY(target_path) = 1 THEN terminal_element
    ELSE fm_build_nested_jsonb(
      target_path[2:CARDINALITY(target_path)],
      terminal_element
    )
  END
);'`,
	},
	{
		Name:     "fm_add_to_set",
		Overload: "native",
		Source: `CREATE OR REPLACE FUNCTION fm_add_to_set(ANYARRAY, ANYELEMENT)
RETURNS ANYARRAY LANGUAGE sql IMMUTABLE AS
'SELECT CASE WHEN ARRAY_POSITION($1, $2) IS NULL THEN $1 || $2 ELSE $1 END;'`,
	},
	{
		Name:     "fm_add_to_set",
		Overload: "json",
		Source: `CREATE OR REPLACE FUNCTION fm_add_to_set(
  base_field JSONB,
  target_path TEXT[],
  value_to_add ANYELEMENT
)
RETURNS JSONB LANGUAGE sql IMMUTABLE AS
'SELECT CASE
WHEN base_field #> target_path IS NULL
  THEN COALESCE(base_field, ''{}''::JSONB) || fm_build_nested_jsonb(
    target_path,
    JSONB_BUILD_ARRAY(value_to_add)
  )
WHEN EXISTS (
  SELECT *
  FROM JSONB_ARRAY_ELEMENTS(base_field #> target_path) AS elem
  WHERE elem = TO_JSONB(value_to_add)
)
  THEN base_field
ELSE JSONB_INSERT(
  base_field,
  (SUBSTRING(target_path::TEXT FROM ''(.*)}.*$'') || '', -1}'')::TEXT[],
  TO_JSONB(value_to_add),
  TRUE
)
END;'`,
	},
}

// DDL returns the statements creating every helper, separated by blank lines.
func DDL() string {
	parts := make([]string, len(Functions))
	for i, f := range Functions {
		parts[i] = f.Source + ";"
	}
	return strings.Join(parts, "\n\n") + "\n"
}

// Beginner starts transactions; *pgxpool.Pool implements it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// InstallFunctions creates or replaces the helpers in one transaction.
func InstallFunctions(ctx context.Context, db Beginner) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, f := range Functions {
		if _, err := tx.Exec(ctx, f.Source); err != nil {
			return fmt.Errorf("install %s: %w", f.Key(), err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
