package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/trinodb/trino-go-client/trino"
)

func init() {
	Register("trino", func(logger *slog.Logger) Adapter { return NewTrinoAdapter(logger) })
}

// TrinoAdapter implements Adapter for Trino over HTTPS with basic auth.
type TrinoAdapter struct {
	baseAdapter
}

// NewTrinoAdapter creates a Trino adapter. A nil logger uses a discard logger.
func NewTrinoAdapter(logger *slog.Logger) *TrinoAdapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TrinoAdapter{baseAdapter{logger: logger}}
}

// DialectName returns the SQL dialect for this adapter.
func (a *TrinoAdapter) DialectName() string {
	return "trino"
}

// Connect establishes a connection to the Trino coordinator.
func (a *TrinoAdapter) Connect(ctx context.Context, cfg Config) error {
	dsn, err := buildTrinoDSN(cfg)
	if err != nil {
		return err
	}

	a.logger.Debug("connecting to trino",
		slog.String("host", cfg.Host), slog.String("catalog", cfg.Catalog))

	db, err := sql.Open("trino", dsn)
	if err != nil {
		return fmt.Errorf("failed to open trino connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping trino: %w", err)
	}

	a.db = db
	a.cfg = cfg
	return nil
}

// buildTrinoDSN constructs a Trino DSN with credentials in the server URI.
func buildTrinoDSN(cfg Config) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("trino host not configured")
	}

	port := cfg.Port
	if port == 0 {
		port = 443
	}

	server := url.URL{
		Scheme: "https",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, port),
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			server.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			server.User = url.User(cfg.User)
		}
	}

	trinoCfg := &trino.Config{
		ServerURI: server.String(),
		Source:    "fieldscope",
		Catalog:   cfg.Catalog,
		Schema:    cfg.Schema,
	}

	dsn, err := trinoCfg.FormatDSN()
	if err != nil {
		return "", fmt.Errorf("failed to build trino DSN: %w", err)
	}
	return dsn, nil
}

var _ Adapter = (*TrinoAdapter)(nil)
