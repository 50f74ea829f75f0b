package commands

import (
	"log/slog"

	cliconfig "github.com/fieldscope-labs/fieldscope/internal/cli/config"
	intconfig "github.com/fieldscope-labs/fieldscope/internal/config"
	"github.com/fieldscope-labs/fieldscope/internal/engine"
	"github.com/fieldscope-labs/fieldscope/internal/staging"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *intconfig.Config
	Logger *slog.Logger
	Engine *engine.Engine
}

// NewCommandContext creates a CommandContext with a connected engine.
// Returns the context and a cleanup function that must be called
// (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := cliconfig.GetLogger(cmd.Context())

	eng, err := engine.New(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = eng.Close() }

	return &CommandContext{Cfg: cfg, Logger: logger, Engine: eng}, cleanup, nil
}

// openStore opens the staging store for commands that work entirely on
// already-staged data and never touch the warehouse.
func openStore(cmd *cobra.Command) (*intconfig.Config, *staging.Store, *slog.Logger, error) {
	cfg := getConfig()
	logger := cliconfig.GetLogger(cmd.Context())

	store, err := staging.Open(cfg.Staging.Driver, cfg.Staging.Path, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, store, logger, nil
}

// getConfig returns the current configuration, falling back to defaults
// when no config has been loaded.
func getConfig() *intconfig.Config {
	if cfg := cliconfig.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg := &intconfig.Config{}
	intconfig.ApplyDefaults(cfg)
	return cfg
}
