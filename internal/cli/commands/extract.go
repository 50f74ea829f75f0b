package commands

import (
	"github.com/spf13/cobra"
)

// NewExtractCommand creates the extract command.
func NewExtractCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Extract the working set from the warehouse",
		Long: `Reset the staging schema and run the extraction query sequence:
installation seed, account translation, installation detail, accounts,
opportunities, subscriptions, CTAs, and support activity.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cc.Engine.Store().InitSchema(cmd.Context()); err != nil {
				return err
			}
			return cc.Engine.Extract(cmd.Context())
		},
	}
}
