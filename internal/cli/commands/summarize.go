package commands

import (
	"fmt"

	"github.com/fieldscope-labs/fieldscope/internal/summary"
	"github.com/spf13/cobra"
)

// NewSummarizeCommand creates the summarize command.
func NewSummarizeCommand() *cobra.Command {
	var product string

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Build the summary tables for one product line",
		Long: `Rebuild the installation and account summary tables from staged
data. The summary tables hold one product line at a time; pass --product
to pick it, otherwise the first configured product is used.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, store, logger, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if product == "" {
				if len(cfg.Products) == 0 {
					return fmt.Errorf("no product lines configured")
				}
				product = cfg.Products[0]
			}

			b := summary.NewBuilder(store, logger)
			if err := b.BuildInstallationSummary(cmd.Context(), product); err != nil {
				return fmt.Errorf("failed to build installation summary for %s: %w", product, err)
			}
			if err := b.BuildAccountSummary(cmd.Context(), product); err != nil {
				return fmt.Errorf("failed to build account summary for %s: %w", product, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&product, "product", "p", "", "Product line to summarize")
	return cmd
}
