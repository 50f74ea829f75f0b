package commands

import (
	"github.com/fieldscope-labs/fieldscope/internal/derive"
	"github.com/spf13/cobra"
)

// NewDeriveCommand creates the derive command.
func NewDeriveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "derive",
		Short: "Derive per-installation metrics from staged data",
		Long: `Compute deployment and enforcement-level percentages, renewal
quarters, and air-gap flags over the already-staged working set. Needs
no warehouse connection.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, logger, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return derive.New(store, logger).Run(cmd.Context())
		},
	}
}
