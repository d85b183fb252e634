// Package sqlitecoll exposes a SQLite table as an [idxcheck.Collection].
//
// Documents are rows of a single table with one INTEGER column per active
// field. The compound index is a regular SQLite index; an index hint becomes
// INDEXED BY and a natural-order hint becomes NOT INDEXED, so the two query
// paths are chosen by SQLite's own planner constraints rather than by us.
package sqlitecoll

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // sqlite driver (pure Go)

	"github.com/calvinalkan/idxcheck/pkg/idxcheck"
)

// Driver names accepted by [Options.Driver].
const (
	DriverCGo    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrNoIndex is returned when a query hints an index that does not exist.
var ErrNoIndex = errors.New("sqlitecoll: index not found")

// Options configures [Open].
type Options struct {
	// Driver is [DriverCGo] (default) or [DriverPureGo].
	Driver string

	// Path is the database file. Defaults to [MemoryPath].
	Path string

	// Logger receives debug output. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Collection is a SQLite-backed [idxcheck.Collection].
type Collection struct {
	db     *sql.DB
	logger *zap.Logger

	fields []idxcheck.Field
	index  idxcheck.IndexSpec
	insert *sql.Stmt
}

var _ idxcheck.Collection = (*Collection)(nil)

// Open opens the database described by opts.
func Open(ctx context.Context, opts Options) (*Collection, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverCGo
	}

	if driver != DriverCGo && driver != DriverPureGo {
		return nil, fmt.Errorf("open sqlite: unknown driver %q", driver)
	}

	path := opts.Path
	if path == "" {
		path = MemoryPath
	}

	db, err := openSqlite(ctx, driver, path)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Debug("sqlite opened", zap.String("driver", driver), zap.String("path", path))

	return &Collection{db: db, logger: logger}, nil
}

// Close releases the database.
func (c *Collection) Close() error {
	if c.insert != nil {
		_ = c.insert.Close()
	}

	err := c.db.Close()
	if err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}

	return nil
}

// Reset implements [idxcheck.Collection]. It drops the table (and with it
// the index) and recreates it for fields.
func (c *Collection) Reset(ctx context.Context, fields []idxcheck.Field) error {
	if c.insert != nil {
		_ = c.insert.Close()
		c.insert = nil
	}

	create, err := createTableSQL(fields)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	_, err = c.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+tableName)
	if err != nil {
		return fmt.Errorf("reset: drop table: %w", err)
	}

	_, err = c.db.ExecContext(ctx, create)
	if err != nil {
		return fmt.Errorf("reset: create table: %w", err)
	}

	c.insert, err = c.db.PrepareContext(ctx, insertSQL(fields))
	if err != nil {
		return fmt.Errorf("reset: prepare insert: %w", err)
	}

	c.fields = slices.Clone(fields)
	c.index = nil

	c.logger.Debug("sqlite reset", zap.String("sql", create))

	return nil
}

// CreateIndex implements [idxcheck.Collection].
func (c *Collection) CreateIndex(ctx context.Context, spec idxcheck.IndexSpec) error {
	if c.index != nil {
		return fmt.Errorf("create index: %s already exists", indexName)
	}

	stmt, err := createIndexSQL(spec)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	_, err = c.db.ExecContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	c.index = slices.Clone(spec)

	c.logger.Debug("sqlite index created", zap.String("sql", stmt))

	return nil
}

// Insert implements [idxcheck.Collection].
func (c *Collection) Insert(ctx context.Context, doc idxcheck.Document) error {
	if c.insert == nil {
		return errors.New("insert: collection not reset")
	}

	args := make([]any, len(c.fields))

	for i, f := range c.fields {
		v, ok := doc[f]
		if !ok {
			return fmt.Errorf("insert: document missing field %q", f)
		}

		args[i] = v
	}

	_, err := c.insert.ExecContext(ctx, args...)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	return nil
}

// DeleteByExample implements [idxcheck.Collection].
func (c *Collection) DeleteByExample(ctx context.Context, template idxcheck.Document) (int, error) {
	var (
		conds []string
		args  []any
	)

	for _, f := range c.fields {
		v, ok := template[f]
		if !ok {
			continue
		}

		col, err := quoteField(f)
		if err != nil {
			return 0, fmt.Errorf("delete: %w", err)
		}

		conds = append(conds, col+" = ?")
		args = append(args, v)
	}

	stmt := "DELETE FROM " + tableName
	if len(conds) > 0 {
		stmt += " WHERE " + strings.Join(conds, " AND ")
	}

	res, err := c.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete: rows affected: %w", err)
	}

	return int(n), nil
}

// Query implements [idxcheck.Collection].
func (c *Collection) Query(ctx context.Context, q idxcheck.Query) ([]idxcheck.Document, error) {
	if !q.Hint.Natural() && (c.index == nil || !slices.Equal(c.index, q.Hint.Index())) {
		return nil, fmt.Errorf("%w: %s", ErrNoIndex, q.Hint)
	}

	stmt, args, err := selectSQL(c.fields, q)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	defer func() { _ = rows.Close() }()

	cols := slices.Clone(c.fields)
	if !q.ExcludeID {
		cols = append(cols, idxcheck.IDField)
	}

	values := make([]int64, len(cols))

	dest := make([]any, len(cols))
	for i := range dest {
		dest[i] = &values[i]
	}

	out := make([]idxcheck.Document, 0)

	for rows.Next() {
		err = rows.Scan(dest...)
		if err != nil {
			return nil, fmt.Errorf("query: scan: %w", err)
		}

		doc := make(idxcheck.Document, len(cols))
		for i, f := range cols {
			doc[f] = int(values[i])
		}

		out = append(out, doc)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("query: rows: %w", err)
	}

	return out, nil
}

// Validate implements [idxcheck.Collection] with PRAGMA integrity_check,
// which cross-checks the table against every index entry.
func (c *Collection) Validate(ctx context.Context) (idxcheck.Validation, error) {
	rows, err := c.db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return idxcheck.Validation{}, fmt.Errorf("validate: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var lines []string

	for rows.Next() {
		var line string

		err = rows.Scan(&line)
		if err != nil {
			return idxcheck.Validation{}, fmt.Errorf("validate: scan: %w", err)
		}

		lines = append(lines, line)
	}

	err = rows.Err()
	if err != nil {
		return idxcheck.Validation{}, fmt.Errorf("validate: rows: %w", err)
	}

	details := strings.Join(lines, "; ")

	return idxcheck.Validation{Valid: len(lines) == 1 && lines[0] == "ok", Details: details}, nil
}

// Explain returns SQLite's query plan for q, one line per plan step.
func (c *Collection) Explain(ctx context.Context, q idxcheck.Query) ([]string, error) {
	stmt, args, err := selectSQL(c.fields, q)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, "EXPLAIN QUERY PLAN "+stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var plan []string

	for rows.Next() {
		var (
			id, parent, notused int64
			detail              string
		)

		err = rows.Scan(&id, &parent, &notused, &detail)
		if err != nil {
			return nil, fmt.Errorf("explain: scan: %w", err)
		}

		plan = append(plan, detail)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("explain: rows: %w", err)
	}

	return plan, nil
}
