// Package store executes compiled write statements against Postgres.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/atlekbai/docwrite/internal/update"
)

// Querier runs a statement and returns its rows. *pgxpool.Pool and pgx.Tx
// implement it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store compiles and runs writes for any table known to the registry.
type Store struct {
	db            Querier
	reg           update.Registry
	logger        *slog.Logger
	slowThreshold time.Duration
	stats         stats
}

type stats struct {
	queries atomic.Int64
	errors  atomic.Int64
	slow    atomic.Int64
}

// Stats is a snapshot of executed statement counts.
type Stats struct {
	Queries int64
	Errors  int64
	Slow    int64
}

func (s Stats) String() string {
	return fmt.Sprintf("queries=%d errors=%d slow=%d", s.Queries, s.Errors, s.Slow)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for failed and slow statements.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithSlowThreshold logs statements running longer than d. Zero disables it.
func WithSlowThreshold(d time.Duration) Option {
	return func(s *Store) { s.slowThreshold = d }
}

func New(db Querier, reg update.Registry, opts ...Option) *Store {
	s := &Store{
		db:            db,
		reg:           reg,
		logger:        slog.Default(),
		slowThreshold: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns the statement counters.
func (s *Store) Stats() Stats {
	return Stats{
		Queries: s.stats.queries.Load(),
		Errors:  s.stats.errors.Load(),
		Slow:    s.stats.slow.Load(),
	}
}

// Registry returns the field type registry used for compilation.
func (s *Store) Registry() update.Registry { return s.reg }

// Collection returns a handle on one table.
func (s *Store) Collection(table string) *Collection {
	return &Collection{store: s, table: table}
}

// run executes q and hands its rows to scan. Duration covers reading the
// rows; failures and slow statements are logged with the SQL and its args.
func (s *Store) run(ctx context.Context, op, table string, q *update.Query, scan func(pgx.Rows) error) error {
	start := time.Now()
	err := s.exec(ctx, q, scan)
	elapsed := time.Since(start)

	s.stats.queries.Add(1)
	if err != nil {
		s.stats.errors.Add(1)
		s.logger.ErrorContext(ctx, "statement failed",
			"op", op, "table", table, "sql", q.SQL, "args", q.Args, "error", err)
		return fmt.Errorf("%s %s: %w", op, table, err)
	}
	if s.slowThreshold > 0 && elapsed > s.slowThreshold {
		s.stats.slow.Add(1)
		s.logger.WarnContext(ctx, "slow statement",
			"op", op, "table", table, "duration", elapsed, "sql", q.SQL, "args", q.Args)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, q *update.Query, scan func(pgx.Rows) error) error {
	rows, err := s.db.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	if err := scan(rows); err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

func countRows(n *int64) func(pgx.Rows) error {
	return func(rows pgx.Rows) error {
		for rows.Next() {
			*n++
		}
		return rows.Err()
	}
}

func collectMaps(out *[]map[string]any) func(pgx.Rows) error {
	return func(rows pgx.Rows) error {
		docs, err := pgx.CollectRows(rows, pgx.RowToMap)
		if err != nil {
			return err
		}
		*out = docs
		return nil
	}
}
