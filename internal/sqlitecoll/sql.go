package sqlitecoll

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/calvinalkan/idxcheck/pkg/idxcheck"
)

const (
	tableName = "docs"
	indexName = "docs_idx"
)

// sqliteBusyTimeout is the time SQLite waits when the database is locked.
const sqliteBusyTimeout = 10000 // milliseconds

var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// openSqlite opens the database and applies the configured pragmas.
func openSqlite(ctx context.Context, driver, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("open sqlite: path is empty")
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection: ":memory:" databases are per connection, and every
	// operation is serialized anyway.
	db.SetMaxOpenConns(1)

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	err = applyPragmas(ctx, db)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return db, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	statements := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", sqliteBusyTimeout),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -20000",
		"PRAGMA temp_store = MEMORY",
	}

	for _, stmt := range statements {
		_, err := db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}

	return nil
}

// quoteField validates f as a plain column name and returns it quoted.
func quoteField(f idxcheck.Field) (string, error) {
	if !identRe.MatchString(string(f)) {
		return "", fmt.Errorf("invalid field name %q", f)
	}

	return `"` + string(f) + `"`, nil
}

func createTableSQL(fields []idxcheck.Field) (string, error) {
	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, `"_id" INTEGER PRIMARY KEY AUTOINCREMENT`)

	for _, f := range fields {
		col, err := quoteField(f)
		if err != nil {
			return "", err
		}

		cols = append(cols, col+" INTEGER NOT NULL")
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", tableName, strings.Join(cols, ", ")), nil
}

func insertSQL(fields []idxcheck.Field) string {
	cols := make([]string, len(fields))
	marks := make([]string, len(fields))

	for i, f := range fields {
		cols[i] = `"` + string(f) + `"`
		marks[i] = "?"
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName, strings.Join(cols, ", "), strings.Join(marks, ", "))
}

func createIndexSQL(spec idxcheck.IndexSpec) (string, error) {
	parts := make([]string, len(spec))

	for i, p := range spec {
		col, err := quoteField(p.Field)
		if err != nil {
			return "", err
		}

		parts[i] = col + " " + direction(p.Direction)
	}

	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", indexName, tableName, strings.Join(parts, ", ")), nil
}

func direction(d idxcheck.Direction) string {
	if d == idxcheck.Descending {
		return "DESC"
	}

	return "ASC"
}

// selectSQL renders q as a SELECT with an INDEXED BY or NOT INDEXED clause.
func selectSQL(fields []idxcheck.Field, q idxcheck.Query) (string, []any, error) {
	cols := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		cols = append(cols, `"`+string(f)+`"`)
	}

	if !q.ExcludeID {
		cols = append(cols, `"_id"`)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), tableName)

	if q.Hint.Natural() {
		b.WriteString(" NOT INDEXED")
	} else {
		fmt.Fprintf(&b, " INDEXED BY %s", indexName)
	}

	var args []any

	if len(q.Predicate) > 0 {
		conds := make([]string, len(q.Predicate))

		for i, c := range q.Predicate {
			col, err := quoteField(c.Field)
			if err != nil {
				return "", nil, err
			}

			switch cond := c.Condition.(type) {
			case idxcheck.Range:
				conds[i] = fmt.Sprintf("(%s %s ? AND %s %s ?)",
					col, lowerOp(cond), col, upperOp(cond))
				args = append(args, cond.Lower, cond.Upper)
			case idxcheck.Membership:
				marks := make([]string, len(cond.Values))
				for j, v := range cond.Values {
					marks[j] = "?"
					args = append(args, v)
				}

				conds[i] = fmt.Sprintf("%s IN (%s)", col, strings.Join(marks, ", "))
			default:
				return "", nil, fmt.Errorf("unsupported condition %T", c.Condition)
			}
		}

		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	if len(q.Sort) > 0 {
		order := make([]string, len(q.Sort))

		for i, p := range q.Sort {
			col, err := quoteField(p.Field)
			if err != nil {
				return "", nil, err
			}

			order[i] = col + " " + direction(p.Direction)
		}

		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(order, ", "))
	}

	return b.String(), args, nil
}

func lowerOp(r idxcheck.Range) string {
	if r.LowerInclusive {
		return ">="
	}

	return ">"
}

func upperOp(r idxcheck.Range) string {
	if r.UpperInclusive {
		return "<="
	}

	return "<"
}
