// Package staging provides the local relational store the pipeline stages
// warehouse extracts into. It wraps database/sql with bulk chunked writes,
// targeted row updates, and named-column reads.
package staging

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
	_ "modernc.org/sqlite"              // sqlite driver
)

//go:embed schema.sql
var schemaSQL string

// chunkRows bounds the number of rows written per transaction. Bulk loads
// are split into chunks of this size to cap transaction memory, not for
// concurrency control. Variable so tests can exercise chunk boundaries.
var chunkRows = 100000

// Store is the staging database. A single logical writer uses it at a time.
type Store struct {
	db     *sql.DB
	driver string
	path   string
	logger *slog.Logger
}

// NamedRows holds a result set together with its column names, for
// dictionary-style consumption by the summary builders.
type NamedRows struct {
	Columns []string
	Rows    [][]any
}

// Open opens a staging store. Supported drivers are "sqlite" (default) and
// "duckdb". Use ":memory:" as the path for an in-memory database.
func Open(driver, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if driver == "" {
		driver = "sqlite"
	}
	if path == "" {
		path = ":memory:"
	}

	switch driver {
	case "sqlite", "duckdb":
	default:
		return nil, fmt.Errorf("unsupported staging driver: %s", driver)
	}

	dsn := path
	if driver == "duckdb" && path == ":memory:" {
		// duckdb opens in-memory on an empty DSN
		dsn = ""
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s staging store: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s staging store: %w", driver, err)
	}

	// The store is used by exactly one writer; a single connection keeps
	// in-memory databases stable across calls.
	db.SetMaxOpenConns(1)

	return &Store{db: db, driver: driver, path: path, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Driver returns the configured driver name.
func (s *Store) Driver() string {
	return s.driver
}

// InitSchema drops and recreates the full staging table set. Every run
// rebuilds the working set from scratch.
func (s *Store) InitSchema(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("staging store not opened")
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize staging schema: %w", err)
	}
	return nil
}

// Execute runs a query and returns positional rows.
func (s *Store) Execute(ctx context.Context, query string, args ...any) ([][]any, error) {
	named, err := s.ExecuteNamed(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return named.Rows, nil
}

// ExecuteNamed runs a query and returns rows along with column names.
func (s *Store) ExecuteNamed(ctx context.Context, query string, args ...any) (*NamedRows, error) {
	if s.db == nil {
		return nil, fmt.Errorf("staging store not opened")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute staging query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	result := &NamedRows{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		scan := make([]any, len(cols))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("failed to scan staging row: %w", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating staging rows: %w", err)
	}

	return result, nil
}

// Exec runs a statement that returns no rows (DDL, DELETE).
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	if s.db == nil {
		return fmt.Errorf("staging store not opened")
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to execute staging statement: %w", err)
	}
	return nil
}

// Insert bulk-writes rows into table. Writes are chunked into bounded
// transactions. When replaceExisting is set, the table's current contents
// are cleared first.
func (s *Store) Insert(ctx context.Context, table string, fields []string, rows [][]any, replaceExisting bool) error {
	if s.db == nil {
		return fmt.Errorf("staging store not opened")
	}
	if err := validateIdentifiers(table, fields); err != nil {
		return err
	}

	if replaceExisting {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil { //nolint:gosec // identifier validated above
			return fmt.Errorf("failed to clear table %s: %w", table, err)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(fields)), ", ") + ")"
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", //nolint:gosec // identifiers validated above
		table, strings.Join(fields, ", "), placeholders)

	tracker := s.newInsertTracker(table, len(rows))

	for start := 0; start < len(rows); start += chunkRows {
		end := min(start+chunkRows, len(rows))
		chunk := rows[start:end]

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin insert transaction: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to prepare insert into %s: %w", table, err)
		}
		for _, row := range chunk {
			if len(row) != len(fields) {
				_ = stmt.Close()
				_ = tx.Rollback()
				return fmt.Errorf("row width %d does not match %d fields for table %s", len(row), len(fields), table)
			}
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				_ = stmt.Close()
				_ = tx.Rollback()
				return fmt.Errorf("failed to insert into %s: %w", table, err)
			}
		}
		if err := stmt.Close(); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to close insert statement: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit insert into %s: %w", table, err)
		}

		tracker.advance(int64(len(chunk)))
	}
	tracker.done()

	s.logger.Debug("bulk insert complete", "table", table, "rows", len(rows))
	return nil
}

// Update applies per-row updates to table. The first field is the key; each
// row issues a parameterized UPDATE keyed on it. Rows whose every non-key
// value is nil are skipped entirely rather than written as NULLs.
func (s *Store) Update(ctx context.Context, table string, fields []string, rows [][]any) error {
	if s.db == nil {
		return fmt.Errorf("staging store not opened")
	}
	if len(fields) < 2 {
		return fmt.Errorf("update on %s needs a key field and at least one value field", table)
	}
	if err := validateIdentifiers(table, fields); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	var sets []string
	for _, f := range fields[1:] {
		sets = append(sets, f+" = ?")
	}
	updateSQL := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", //nolint:gosec // identifiers validated above
		table, strings.Join(sets, ", "), fields[0])

	for start := 0; start < len(rows); start += chunkRows {
		end := min(start+chunkRows, len(rows))

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin update transaction: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, updateSQL)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to prepare update on %s: %w", table, err)
		}
		for _, row := range rows[start:end] {
			if len(row) != len(fields) {
				_ = stmt.Close()
				_ = tx.Rollback()
				return fmt.Errorf("row width %d does not match %d fields for table %s", len(row), len(fields), table)
			}
			if allNil(row[1:]) {
				continue
			}
			args := make([]any, 0, len(row))
			args = append(args, row[1:]...)
			args = append(args, row[0])
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				_ = stmt.Close()
				_ = tx.Rollback()
				return fmt.Errorf("failed to update %s: %w", table, err)
			}
		}
		if err := stmt.Close(); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to close update statement: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit update on %s: %w", table, err)
		}
	}

	return nil
}

func allNil(values []any) bool {
	for _, v := range values {
		if v != nil {
			return false
		}
	}
	return true
}

// validateIdentifiers rejects table or field names that are not plain
// identifiers. All names originate from package constants, so a failure
// here is a programming error.
func validateIdentifiers(table string, fields []string) error {
	names := append([]string{table}, fields...)
	for _, name := range names {
		if name == "" {
			return fmt.Errorf("empty identifier")
		}
		for _, r := range name {
			if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
				continue
			}
			return fmt.Errorf("invalid identifier %q", name)
		}
	}
	return nil
}
