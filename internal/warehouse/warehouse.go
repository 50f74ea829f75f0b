// Package warehouse provides the remote analytical source client. The
// pipeline reads from exactly one warehouse per run; adapters exist for
// Trino and PostgreSQL and register themselves by type name.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Config holds the connection settings for a warehouse.
type Config struct {
	// Type selects the adapter ("trino", "postgres").
	Type string

	// Host is the warehouse hostname.
	Host string

	// Port is the warehouse port.
	Port int

	// User for authentication.
	User string

	// Password for authentication.
	Password string

	// Catalog is the catalog to query (trino).
	Catalog string

	// Schema is the default schema.
	Schema string

	// Options carries driver-specific settings.
	Options map[string]string
}

// Adapter is the contract every warehouse client implements. Query
// failures are fatal to the run; callers do not retry.
type Adapter interface {
	// Connect establishes the connection described by cfg.
	Connect(ctx context.Context, cfg Config) error

	// Close releases the connection.
	Close() error

	// Query executes a parameterized query and returns positional rows.
	Query(ctx context.Context, query string, args ...any) ([][]any, error)

	// DialectName names the SQL dialect spoken by this adapter.
	DialectName() string
}

// baseAdapter provides the database/sql plumbing shared by the concrete
// adapters.
type baseAdapter struct {
	db     *sql.DB
	cfg    Config
	logger *slog.Logger
}

func (b *baseAdapter) Close() error {
	if b.db != nil {
		b.logger.Debug("closing warehouse connection")
		return b.db.Close()
	}
	return nil
}

func (b *baseAdapter) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	if b.db == nil {
		return nil, fmt.Errorf("warehouse connection not established")
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute warehouse query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read warehouse columns: %w", err)
	}

	var result [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		scan := make([]any, len(cols))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("failed to scan warehouse row: %w", err)
		}
		result = append(result, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating warehouse rows: %w", err)
	}

	return result, nil
}

// sqlAdapter wraps an externally managed database/sql handle.
type sqlAdapter struct {
	baseAdapter
	dialect string
}

// FromDB wraps an existing database/sql handle in an Adapter. The caller
// owns the handle's lifecycle choices; Connect is a no-op. Used by tests
// and by callers that manage their own pool.
func FromDB(db *sql.DB, dialect string, logger *slog.Logger) Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &sqlAdapter{baseAdapter: baseAdapter{db: db, logger: logger}, dialect: dialect}
}

func (a *sqlAdapter) Connect(ctx context.Context, cfg Config) error { return nil }

func (a *sqlAdapter) DialectName() string { return a.dialect }

var _ Adapter = (*sqlAdapter)(nil)
