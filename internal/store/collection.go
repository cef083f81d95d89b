package store

import (
	"context"
	"fmt"

	"github.com/atlekbai/docwrite/internal/update"
)

// Collection runs document-style writes against a single table.
type Collection struct {
	store *Store
	table string
}

// UpdateOne applies mod to at most one row matching sel and returns the
// number of rows updated.
func (c *Collection) UpdateOne(ctx context.Context, sel update.Selector, mod update.Modifier) (int64, error) {
	return c.update(ctx, "updateOne", sel, mod, update.Options{Limit: 1})
}

// UpdateMany applies mod to every row matching sel.
func (c *Collection) UpdateMany(ctx context.Context, sel update.Selector, mod update.Modifier) (int64, error) {
	return c.update(ctx, "updateMany", sel, mod, update.Options{})
}

// FindOneAndUpdate applies mod to one matching row and returns the row as
// updated, or nil when nothing matched.
func (c *Collection) FindOneAndUpdate(ctx context.Context, sel update.Selector, mod update.Modifier) (map[string]any, error) {
	q, err := update.Compile(c.store.reg, c.table, sel, mod, update.Options{Limit: 1, ReturnUpdated: true})
	if err != nil {
		return nil, fmt.Errorf("compile findOneAndUpdate %s: %w", c.table, err)
	}
	var docs []map[string]any
	if err := c.store.run(ctx, "findOneAndUpdate", c.table, q, collectMaps(&docs)); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// Delete removes rows matching sel, at most limit of them when limit is
// positive, and returns the number removed.
func (c *Collection) Delete(ctx context.Context, sel update.Selector, limit int) (int64, error) {
	q, err := update.CompileDelete(c.store.reg, c.table, sel, update.Options{Limit: limit})
	if err != nil {
		return 0, fmt.Errorf("compile delete %s: %w", c.table, err)
	}
	var n int64
	if err := c.store.run(ctx, "delete", c.table, q, countRows(&n)); err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteMany removes every row matching sel.
func (c *Collection) DeleteMany(ctx context.Context, sel update.Selector) (int64, error) {
	return c.Delete(ctx, sel, 0)
}

func (c *Collection) update(ctx context.Context, op string, sel update.Selector, mod update.Modifier, opts update.Options) (int64, error) {
	q, err := update.Compile(c.store.reg, c.table, sel, mod, opts)
	if err != nil {
		return 0, fmt.Errorf("compile %s %s: %w", op, c.table, err)
	}
	var n int64
	if err := c.store.run(ctx, op, c.table, q, countRows(&n)); err != nil {
		return 0, err
	}
	return n, nil
}
