package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:     "stop",
	Aliases: []string{"shutdown"},
	Short:   "Stop the scanguard daemon",
	Long: `Stop the scanguard daemon gracefully.

The daemon removes its NFQUEUE rule before exiting, so traffic flows
unfiltered once it is gone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c ClientInterface) error {
			return runStop(ctx, c, cmd.OutOrStdout())
		})
	},
}

func runStop(ctx context.Context, client ClientInterface, out io.Writer) error {
	if err := client.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	fmt.Fprintln(out, "Shutdown requested.")
	return nil
}
