package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show runtime statistics",
	Long: `Query the scanguard daemon for classification statistics.

Shows: packets received, accepted and dropped, per-rule matches, extraction
errors and average classification latency.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c ClientInterface) error {
			return runStats(ctx, c, cmd.OutOrStdout())
		})
	},
}

func runStats(ctx context.Context, client ClientInterface, out io.Writer) error {
	stats, err := client.EngineStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to query stats: %w", err)
	}
	resultJSON, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	fmt.Fprintln(out, string(resultJSON))
	return nil
}
